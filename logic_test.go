package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := OpenDB(dsn)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	gs := NewGormStore(db)
	t.Cleanup(func() { _ = gs.Close() })
	return gs
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, svc *Service, clock *fakeClock)) {
	stores := map[string]func(*testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemStore() },
		"sqlite": func(t *testing.T) Store { return newTestGormStore(t) },
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			svc := NewService(mk(t), DefaultCatalog(),
				WithClock(clock.Now),
				WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			)
			fn(t, svc, clock)
		})
	}
}

func TestCreateSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, clock *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)
		assert.True(t, s.StartTime.Equal(clock.Now()))
		assert.Empty(t, s.Answers)
		assert.Empty(t, s.Flagged)
		assert.Zero(t, s.TabSwitches)
		assert.False(t, s.Completed)
		assert.Nil(t, s.EndTime)

		other, err := svc.CreateSession(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, s.ID, other.ID)

		got, err := svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.True(t, got.StartTime.Equal(s.StartTime))
	})
}

func TestGetSessionNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ *fakeClock) {
		_, err := svc.GetSession(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestRecordAnswer(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			text := fmt.Sprintf("answer %d", i)
			require.NoError(t, svc.RecordAnswer(ctx, s.ID, i, text))
			res, err := svc.MaterializeResult(ctx, s.ID)
			require.NoError(t, err)
			require.NotNil(t, res.QuestionResults[i].SubmittedAnswer)
			assert.Equal(t, text, *res.QuestionResults[i].SubmittedAnswer)
		}
	})
}

func TestRecordAnswerLastWriteWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		require.NoError(t, svc.RecordAnswer(ctx, s.ID, 2, "first"))
		require.NoError(t, svc.RecordAnswer(ctx, s.ID, 2, "second"))
		require.NoError(t, svc.RecordAnswer(ctx, s.ID, 2, "second"))

		res, err := svc.MaterializeResult(ctx, s.ID)
		require.NoError(t, err)
		require.NotNil(t, res.QuestionResults[2].SubmittedAnswer)
		assert.Equal(t, "second", *res.QuestionResults[2].SubmittedAnswer)

		got, err := svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, map[int]string{2: "second"}, got.Answers)
	})
}

func TestRecordAnswerRejects(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		assert.ErrorIs(t, svc.RecordAnswer(ctx, s.ID, -1, "x"), ErrInvalidQuestionIndex)
		assert.ErrorIs(t, svc.RecordAnswer(ctx, s.ID, 4, "x"), ErrInvalidQuestionIndex)
		assert.ErrorIs(t, svc.RecordAnswer(ctx, "missing", 0, "x"), ErrSessionNotFound)

		require.NoError(t, svc.CompleteSession(ctx, s.ID))
		assert.ErrorIs(t, svc.RecordAnswer(ctx, s.ID, 0, "late"), ErrSessionCompleted)
		assert.ErrorIs(t, svc.ToggleFlag(ctx, s.ID, 0, true), ErrSessionCompleted)

		got, err := svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Answers)
	})
}

func TestToggleFlag(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		require.NoError(t, svc.ToggleFlag(ctx, s.ID, 1, true))
		require.NoError(t, svc.ToggleFlag(ctx, s.ID, 1, true))
		require.NoError(t, svc.ToggleFlag(ctx, s.ID, 3, true))
		got, err := svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 3}, got.FlaggedIndices())

		require.NoError(t, svc.ToggleFlag(ctx, s.ID, 1, false))
		require.NoError(t, svc.ToggleFlag(ctx, s.ID, 1, false))
		require.NoError(t, svc.ToggleFlag(ctx, s.ID, 0, false))
		got, err = svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, []int{3}, got.FlaggedIndices())

		assert.ErrorIs(t, svc.ToggleFlag(ctx, s.ID, 9, true), ErrInvalidQuestionIndex)
	})
}

func TestRecordTabSwitch(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		const n = 7
		for i := 0; i < n; i++ {
			require.NoError(t, svc.RecordTabSwitch(ctx, s.ID))
		}
		got, err := svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, n, got.TabSwitches)

		assert.ErrorIs(t, svc.RecordTabSwitch(ctx, "missing"), ErrSessionNotFound)
	})
}

func TestCompleteSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, clock *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		clock.Advance(90 * time.Second)
		require.NoError(t, svc.CompleteSession(ctx, s.ID))
		got, err := svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.Completed)
		require.NotNil(t, got.EndTime)
		firstEnd := *got.EndTime

		clock.Advance(time.Hour)
		require.NoError(t, svc.CompleteSession(ctx, s.ID))
		got, err = svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.True(t, got.EndTime.Equal(firstEnd))

		// tab switches still count after completion
		require.NoError(t, svc.RecordTabSwitch(ctx, s.ID))

		assert.ErrorIs(t, svc.CompleteSession(ctx, "missing"), ErrSessionNotFound)
	})
}

func TestMaterializeResultEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		res, err := svc.MaterializeResult(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, res.ID)
		assert.Equal(t, 4, res.TotalQuestions)
		require.Len(t, res.QuestionResults, 4)
		for i, qr := range res.QuestionResults {
			assert.Nil(t, qr.SubmittedAnswer, "question %d", i)
		}
		assert.Equal(t, []string{"q1", "q2", "q3", "q4"}, []string{
			res.QuestionResults[0].QuestionID,
			res.QuestionResults[1].QuestionID,
			res.QuestionResults[2].QuestionID,
			res.QuestionResults[3].QuestionID,
		})

		_, err = svc.MaterializeResult(ctx, "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestMaterializeResultElapsed(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, clock *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		// not completed: measured up to now, floored
		clock.Advance(12*time.Second + 900*time.Millisecond)
		res, err := svc.MaterializeResult(ctx, s.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 12, res.TimeTaken)

		require.NoError(t, svc.CompleteSession(ctx, s.ID))
		clock.Advance(time.Minute)
		res, err = svc.MaterializeResult(ctx, s.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 12, res.TimeTaken)
	})
}

func TestResultsCacheAndFallback(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, clock *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		_, err = svc.GetCachedResult(ctx, s.ID)
		assert.ErrorIs(t, err, ErrResultNotFound)

		clock.Advance(30 * time.Second)
		res, err := svc.Results(ctx, s.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 30, res.TimeTaken)

		// cached now; a later fetch returns the same snapshot
		clock.Advance(30 * time.Second)
		cached, err := svc.GetCachedResult(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, res, cached)
		again, err := svc.Results(ctx, s.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 30, again.TimeTaken)

		_, err = svc.Results(ctx, "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestSubmitEndToEnd(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, clock *fakeClock) {
		ctx := context.Background()
		s, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		require.NoError(t, svc.RecordAnswer(ctx, s.ID, 0, "hash tables give O(1) average lookup"))
		require.NoError(t, svc.RecordAnswer(ctx, s.ID, 3, "check APM traces first"))
		clock.Advance(20 * time.Minute)

		res, err := svc.Submit(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, res.TotalQuestions)
		assert.GreaterOrEqual(t, res.TimeTaken, int64(0))
		assert.EqualValues(t, 1200, res.TimeTaken)
		require.NotNil(t, res.QuestionResults[0].SubmittedAnswer)
		assert.Equal(t, "hash tables give O(1) average lookup", *res.QuestionResults[0].SubmittedAnswer)
		assert.Nil(t, res.QuestionResults[1].SubmittedAnswer)
		assert.Nil(t, res.QuestionResults[2].SubmittedAnswer)
		require.NotNil(t, res.QuestionResults[3].SubmittedAnswer)
		assert.Equal(t, "check APM traces first", *res.QuestionResults[3].SubmittedAnswer)

		got, err := svc.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.Completed)

		cached, err := svc.GetCachedResult(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, res, cached)

		_, err = svc.Submit(ctx, "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestElapsedSeconds(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		end  time.Time
		want int64
	}{
		{name: "same instant", end: start, want: 0},
		{name: "floors fraction", end: start.Add(1999 * time.Millisecond), want: 1},
		{name: "full duration", end: start.Add(45 * time.Minute), want: 2700},
		{name: "clock went backwards", end: start.Add(-time.Second), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, elapsedSeconds(start, tt.end))
		})
	}
}
