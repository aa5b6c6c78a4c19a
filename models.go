package main

import (
	"sort"
	"time"
)

// --- Questions ---

type Question struct {
	ID            string  `json:"id"`
	Text          string  `json:"text"`
	Code          *string `json:"code,omitempty"`
	Topic         string  `json:"topic"`
	GuidanceNotes *string `json:"guidanceNotes,omitempty"`
}

// --- Session ---

// Session is the mutable state of one assessment attempt.
// Answers and Flagged are keyed by 0-based catalog index.
type Session struct {
	ID              string
	StartTime       time.Time
	EndTime         *time.Time
	CurrentQuestion int
	Answers         map[int]string
	Flagged         map[int]struct{}
	TabSwitches     int
	Completed       bool
}

func newSession(id string, start time.Time) *Session {
	return &Session{
		ID:        id,
		StartTime: start,
		Answers:   map[int]string{},
		Flagged:   map[int]struct{}{},
	}
}

func (s *Session) clone() *Session {
	out := *s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	out.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.Flagged = make(map[int]struct{}, len(s.Flagged))
	for k := range s.Flagged {
		out.Flagged[k] = struct{}{}
	}
	return &out
}

// FlaggedIndices returns the flagged set in ascending order.
func (s *Session) FlaggedIndices() []int {
	out := make([]int, 0, len(s.Flagged))
	for k := range s.Flagged {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// --- Results ---

type QuestionResult struct {
	QuestionID      string  `json:"questionId"`
	Question        string  `json:"question"`
	Code            *string `json:"code,omitempty"`
	SubmittedAnswer *string `json:"submittedAnswer,omitempty"`
	Topic           string  `json:"topic"`
	GuidanceNotes   *string `json:"guidanceNotes,omitempty"`
}

type Result struct {
	ID              string           `json:"id"`
	TotalQuestions  int              `json:"totalQuestions"`
	TimeTaken       int64            `json:"timeTaken"` // whole seconds
	QuestionResults []QuestionResult `json:"questionResults"`
}

func (r *Result) clone() *Result {
	out := *r
	out.QuestionResults = append([]QuestionResult(nil), r.QuestionResults...)
	return &out
}

// --- DB rows (GormStore) ---

type SessionRow struct {
	ID              string      `gorm:"primaryKey;size:36"`
	StartedAt       time.Time   `gorm:"not null"`
	FinishedAt      *time.Time
	CurrentQuestion int         `gorm:"not null;default:0"`
	TabSwitches     int         `gorm:"not null;default:0"`
	Completed       bool        `gorm:"not null;default:false"`
	Answers         []AnswerRow `gorm:"foreignKey:SessionID"`
	Flags           []FlagRow   `gorm:"foreignKey:SessionID"`
}

func (SessionRow) TableName() string { return "sessions" }

type AnswerRow struct {
	SessionID     string    `gorm:"primaryKey;size:36"`
	QuestionIndex int       `gorm:"primaryKey;autoIncrement:false"`
	Text          string    `gorm:"not null"`
	UpdatedAt     time.Time
}

func (AnswerRow) TableName() string { return "session_answers" }

type FlagRow struct {
	SessionID     string `gorm:"primaryKey;size:36"`
	QuestionIndex int    `gorm:"primaryKey;autoIncrement:false"`
}

func (FlagRow) TableName() string { return "session_flags" }

type ResultRow struct {
	SessionID string `gorm:"primaryKey;size:36"`
	Payload   string `gorm:"not null"` // JSON-encoded Result
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ResultRow) TableName() string { return "results" }
