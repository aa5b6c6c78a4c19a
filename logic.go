package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuestionIndex = errors.New("question index out of range")
	ErrSessionCompleted     = errors.New("session already submitted")
)

// Service runs the session lifecycle: start, answer/flag/tab-switch,
// complete, and result materialization.
type Service struct {
	store    Store
	catalog  *Catalog
	now      func() time.Time
	newID    func() string
	duration time.Duration
	logger   *slog.Logger
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(f func() string) ServiceOption {
	return func(s *Service) { s.newID = f }
}

func WithDuration(d time.Duration) ServiceOption {
	return func(s *Service) { s.duration = d }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(store Store, catalog *Catalog, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		catalog:  catalog,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		duration: AssessmentDuration,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Questions() []Question {
	return s.catalog.Questions()
}

func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	sess := newSession(s.newID(), s.now())
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("session started", "session_id", sess.ID)
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.store.GetSession(ctx, id)
}

func (s *Service) RecordAnswer(ctx context.Context, id string, index int, answer string) error {
	if !s.catalog.ValidIndex(index) {
		return ErrInvalidQuestionIndex
	}
	return s.store.UpdateSession(ctx, id, func(sess *Session) error {
		if sess.Completed {
			return ErrSessionCompleted
		}
		sess.Answers[index] = answer
		sess.CurrentQuestion = index
		s.logger.Debug("answer recorded",
			"session_id", id,
			"question_index", index,
			"remaining_s", int64(Remaining(sess.StartTime, s.now(), s.duration)/time.Second),
		)
		return nil
	})
}

func (s *Service) ToggleFlag(ctx context.Context, id string, index int, flagged bool) error {
	if !s.catalog.ValidIndex(index) {
		return ErrInvalidQuestionIndex
	}
	return s.store.UpdateSession(ctx, id, func(sess *Session) error {
		if sess.Completed {
			return ErrSessionCompleted
		}
		if flagged {
			sess.Flagged[index] = struct{}{}
		} else {
			delete(sess.Flagged, index)
		}
		return nil
	})
}

// RecordTabSwitch counts after completion too; the signal stays useful
// for reviewers.
func (s *Service) RecordTabSwitch(ctx context.Context, id string) error {
	return s.store.UpdateSession(ctx, id, func(sess *Session) error {
		sess.TabSwitches++
		s.logger.Info("tab switch", "session_id", id, "count", sess.TabSwitches)
		return nil
	})
}

// CompleteSession marks the session completed. The end time of the first
// completion is kept.
func (s *Service) CompleteSession(ctx context.Context, id string) error {
	return s.store.UpdateSession(ctx, id, func(sess *Session) error {
		if sess.Completed && sess.EndTime != nil {
			return nil
		}
		end := s.now()
		sess.Completed = true
		sess.EndTime = &end
		if over := Overtime(sess.StartTime, end, s.duration); over > 0 {
			s.logger.Warn("session completed after deadline",
				"session_id", id,
				"overtime_s", int64(over/time.Second),
			)
		}
		return nil
	})
}

// MaterializeResult joins the session with the catalog and caches the
// outcome, replacing any earlier result for the session.
func (s *Service) MaterializeResult(ctx context.Context, id string) (*Result, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	end := s.now()
	if sess.EndTime != nil {
		end = *sess.EndTime
	}
	res := buildResult(sess, s.catalog.Questions(), end)
	if err := s.store.PutResult(ctx, res); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	return res, nil
}

func (s *Service) GetCachedResult(ctx context.Context, id string) (*Result, error) {
	return s.store.GetResult(ctx, id)
}

// Results returns the cached result, materializing one on a miss. A
// session that was never submitted is measured up to now.
func (s *Service) Results(ctx context.Context, id string) (*Result, error) {
	res, err := s.store.GetResult(ctx, id)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrResultNotFound) {
		return nil, err
	}
	return s.MaterializeResult(ctx, id)
}

// Submit completes the session and materializes its result. The two
// steps are not atomic; Results recovers a completed session without one.
func (s *Service) Submit(ctx context.Context, id string) (*Result, error) {
	if err := s.CompleteSession(ctx, id); err != nil {
		return nil, err
	}
	res, err := s.MaterializeResult(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session submitted",
		"session_id", id,
		"time_taken_s", res.TimeTaken,
		"answered", answeredCount(res),
	)
	return res, nil
}

func buildResult(sess *Session, questions []Question, end time.Time) *Result {
	items := make([]QuestionResult, 0, len(questions))
	for i, q := range questions {
		var submitted *string
		if a, ok := sess.Answers[i]; ok {
			submitted = &a
		}
		items = append(items, QuestionResult{
			QuestionID:      q.ID,
			Question:        q.Text,
			Code:            q.Code,
			SubmittedAnswer: submitted,
			Topic:           q.Topic,
			GuidanceNotes:   q.GuidanceNotes,
		})
	}
	return &Result{
		ID:              sess.ID,
		TotalQuestions:  len(questions),
		TimeTaken:       elapsedSeconds(sess.StartTime, end),
		QuestionResults: items,
	}
}

// elapsedSeconds floors to whole seconds; a clock that went backwards
// yields zero.
func elapsedSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func answeredCount(r *Result) int {
	n := 0
	for _, qr := range r.QuestionResults {
		if qr.SubmittedAnswer != nil && *qr.SubmittedAnswer != "" {
			n++
		}
	}
	return n
}
