package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

/*** DTOs ***/

type SessionDTO struct {
	ID              string            `json:"id"`
	StartTime       int64             `json:"startTime"` // unix ms
	CurrentQuestion int               `json:"currentQuestion"`
	Answers         map[string]string `json:"answers"`
	Flagged         []int             `json:"flagged"`
	TabSwitches     int               `json:"tabSwitches"`
	Completed       bool              `json:"completed"`
}

func toSessionDTO(s *Session) SessionDTO {
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[strconv.Itoa(k)] = v
	}
	return SessionDTO{
		ID:              s.ID,
		StartTime:       s.StartTime.UnixMilli(),
		CurrentQuestion: s.CurrentQuestion,
		Answers:         answers,
		Flagged:         s.FlaggedIndices(),
		TabSwitches:     s.TabSwitches,
		Completed:       s.Completed,
	}
}

// Pointer fields so that 0, "" and false pass the required check.
type AnswerReq struct {
	SessionID     string  `json:"sessionId" binding:"required"`
	QuestionIndex *int    `json:"questionIndex" binding:"required"`
	Answer        *string `json:"answer" binding:"required"`
}

type FlagReq struct {
	SessionID     string `json:"sessionId" binding:"required"`
	QuestionIndex *int   `json:"questionIndex" binding:"required"`
	Flagged       *bool  `json:"flagged" binding:"required"`
}

type SessionReq struct {
	SessionID string `json:"sessionId" binding:"required"`
}

var success = gin.H{"success": true}

// writeError maps lifecycle errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, ErrInvalidQuestionIndex):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, ErrSessionCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "session already submitted"})
	default:
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

/*** Questions ***/

func ListQuestions(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Questions())
	}
}

/*** Session lifecycle ***/

func StartSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svc.CreateSession(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toSessionDTO(s))
	}
}

func GetSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svc.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toSessionDTO(s))
	}
}

func SubmitAnswer(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AnswerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := svc.RecordAnswer(c.Request.Context(), req.SessionID, *req.QuestionIndex, *req.Answer); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, success)
	}
}

func FlagQuestion(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FlagReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := svc.ToggleFlag(c.Request.Context(), req.SessionID, *req.QuestionIndex, *req.Flagged); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, success)
	}
}

func LogTabSwitch(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SessionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := svc.RecordTabSwitch(c.Request.Context(), req.SessionID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, success)
	}
}

func SubmitSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SessionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required"})
			return
		}
		res, err := svc.Submit(c.Request.Context(), req.SessionID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

/*** Results ***/

func GetResults(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Results(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
