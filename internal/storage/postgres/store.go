// Package postgres implements storage.Store on PostgreSQL with gorm.
// Recording and transcript nested fields are stored as JSONB columns.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/storage"
)

// Store is a gorm-backed store.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL using dsn.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

const parentSessionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_rec_parent_session_unique
	ON recordings (session_id) WHERE is_parent_session`

// EnsureReady migrates the recordings and transcripts tables and their
// indexes. Safe to call on every start.
func (s *Store) EnsureReady(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&models.Recording{}, &models.Transcript{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	// one parent per session id
	if err := db.Exec(parentSessionIndex).Error; err != nil {
		return fmt.Errorf("create parent session index: %w", err)
	}
	log.Info().Msg("Postgres schema ready")
	return nil
}

func (s *Store) CreateRecording(ctx context.Context, r *models.Recording) error {
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *Store) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	var r models.Recording
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// UpdateRecording locks the row with SELECT ... FOR UPDATE for the duration
// of fn and the write.
func (s *Store) UpdateRecording(ctx context.Context, id string, fn storage.MutateFunc) (*models.Recording, error) {
	var out models.Recording
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Recording
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&r).Error; err != nil {
			return translate(err)
		}
		if err := fn(&r); err != nil {
			return err
		}
		r.ID = id
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recording{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) FindParentBySession(ctx context.Context, sessionID string) (*models.Recording, error) {
	var r models.Recording
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND is_parent_session = ?", sessionID, true).
		First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) ListParentSessions(ctx context.Context, userID string) ([]*models.Recording, error) {
	var rs []*models.Recording
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_parent_session = ?", userID, true).
		Order("created_at DESC").
		Find(&rs).Error
	return rs, err
}

func (s *Store) GetRecordingsByIDs(ctx context.Context, ids []string) ([]*models.Recording, error) {
	if len(ids) == 0 {
		return []*models.Recording{}, nil
	}
	var rs []*models.Recording
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rs).Error; err != nil {
		return nil, err
	}
	return orderByIDs(rs, ids), nil
}

func (s *Store) CreateTranscript(ctx context.Context, t *models.Transcript) error {
	return translate(s.db.WithContext(ctx).Create(t).Error)
}

func (s *Store) GetTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	var t models.Transcript
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Store) ListTranscriptsByRecording(ctx context.Context, recordingID string) ([]*models.Transcript, error) {
	var ts []*models.Transcript
	err := s.db.WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Order("created_at ASC").
		Find(&ts).Error
	return ts, err
}

func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Transcript{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Ping checks the connection pool.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrConflict
	default:
		return err
	}
}

// orderByIDs returns rs in the order given by ids, skipping ids not found.
func orderByIDs(rs []*models.Recording, ids []string) []*models.Recording {
	byID := make(map[string]*models.Recording, len(rs))
	for _, r := range rs {
		byID[r.ID] = r
	}
	out := make([]*models.Recording, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

var _ storage.Store = (*Store)(nil)
