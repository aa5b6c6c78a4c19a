package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// MemoryDSN is a shared-cache in-memory database; it dies with the process.
const MemoryDSN = "file::memory:?cache=shared"

func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SessionRow{},
		&AnswerRow{},
		&FlagRow{},
		&ResultRow{},
	)
}

// GormStore is a Store over gorm. Each call runs in its own transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *GormStore) CreateSession(ctx context.Context, s *Session) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SessionRow{}).Where("id = ?", s.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSessionExists
		}
		row := toSessionRow(s)
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return err
		}
		return writeChildren(tx, s)
	})
}

func (g *GormStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var s *Session
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		s, err = loadSession(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (g *GormStore) UpdateSession(ctx context.Context, id string, fn func(*Session) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := loadSession(tx, id)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		if err := tx.Model(&SessionRow{}).Where("id = ?", id).Updates(map[string]any{
			"finished_at":      s.EndTime,
			"current_question": s.CurrentQuestion,
			"tab_switches":     s.TabSwitches,
			"completed":        s.Completed,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&FlagRow{}).Error; err != nil {
			return err
		}
		return writeChildren(tx, s)
	})
}

func (g *GormStore) PutResult(ctx context.Context, r *Result) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	row := ResultRow{SessionID: r.ID, Payload: string(raw)}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
}

func (g *GormStore) GetResult(ctx context.Context, id string) (*Result, error) {
	var row ResultRow
	if err := g.db.WithContext(ctx).First(&row, "session_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	var r Result
	if err := json.Unmarshal([]byte(row.Payload), &r); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	return &r, nil
}

func loadSession(tx *gorm.DB, id string) (*Session, error) {
	var row SessionRow
	err := tx.Preload("Answers").Preload("Flags").First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toSession(), nil
}

// writeChildren upserts answers (never removed) and inserts flags.
// Callers clear the flag rows first when replacing the set.
func writeChildren(tx *gorm.DB, s *Session) error {
	if len(s.Answers) > 0 {
		answers := make([]AnswerRow, 0, len(s.Answers))
		for idx, text := range s.Answers {
			answers = append(answers, AnswerRow{SessionID: s.ID, QuestionIndex: idx, Text: text})
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "updated_at"}),
		}).Create(&answers).Error; err != nil {
			return err
		}
	}
	if len(s.Flagged) > 0 {
		flags := make([]FlagRow, 0, len(s.Flagged))
		for _, idx := range s.FlaggedIndices() {
			flags = append(flags, FlagRow{SessionID: s.ID, QuestionIndex: idx})
		}
		if err := tx.Create(&flags).Error; err != nil {
			return err
		}
	}
	return nil
}

func toSessionRow(s *Session) SessionRow {
	return SessionRow{
		ID:              s.ID,
		StartedAt:       s.StartTime,
		FinishedAt:      s.EndTime,
		CurrentQuestion: s.CurrentQuestion,
		TabSwitches:     s.TabSwitches,
		Completed:       s.Completed,
	}
}

func (r SessionRow) toSession() *Session {
	s := newSession(r.ID, r.StartedAt)
	if r.FinishedAt != nil {
		end := *r.FinishedAt
		s.EndTime = &end
	}
	s.CurrentQuestion = r.CurrentQuestion
	s.TabSwitches = r.TabSwitches
	s.Completed = r.Completed
	for _, a := range r.Answers {
		s.Answers[a.QuestionIndex] = a.Text
	}
	for _, f := range r.Flags {
		s.Flagged[f.QuestionIndex] = struct{}{}
	}
	return s
}

// OpenStore builds the configured Store. The returned cleanup releases
// any database handle.
func OpenStore(cfg Config) (Store, func() error, error) {
	switch cfg.Store {
	case StoreMemory:
		return NewMemStore(), func() error { return nil }, nil
	case StoreSQLite:
		db, err := OpenDB(cfg.DBDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		if err := AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		gs := NewGormStore(db)
		return gs, gs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
