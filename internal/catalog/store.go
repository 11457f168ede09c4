package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stumperworks/stumper/backend/internal/answers"
)

var (
	// ErrQuestionNotFound indicates the referenced question does not exist.
	ErrQuestionNotFound = errors.New("catalog: question not found")
	// ErrEmptyOverride indicates an override with no usable text.
	ErrEmptyOverride = errors.New("catalog: override text is empty")
	// ErrDuplicateOverride indicates the phrasing is already accepted for the question.
	ErrDuplicateOverride = errors.New("catalog: override already exists")

	errMissingDatabase = errors.New("database handle is required")

	noOpLogger = zap.NewNop()
)

// StoreConfig describes the dependencies for the catalog store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store reads questions and manages the append-only override list.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs the catalog store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("catalog: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// GetQuestion loads a question by id.
func (s *Store) GetQuestion(ctx context.Context, questionID int64) (*Question, error) {
	var question Question
	err := s.db.WithContext(ctx).Take(&question, questionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		s.logger.Error("question load failed", zap.Int64("question_id", questionID), zap.Error(err))
		return nil, err
	}
	return &question, nil
}

// GetCategory loads a category by id.
func (s *Store) GetCategory(ctx context.Context, categoryID int64) (*Category, error) {
	var category Category
	err := s.db.WithContext(ctx).Take(&category, categoryID).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ListOverrides returns the accepted override phrasings for a question.
func (s *Store) ListOverrides(ctx context.Context, questionID int64) ([]string, error) {
	var rows []AnswerOverride
	if err := s.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		s.logger.Error("override list failed", zap.Int64("question_id", questionID), zap.Error(err))
		return nil, err
	}
	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		texts = append(texts, row.AcceptedText)
	}
	return texts, nil
}

// AddOverride appends an accepted phrasing for a question. Duplicates are
// detected against the normalized form so trivially re-spelled variants of
// an existing override are rejected.
func (s *Store) AddOverride(ctx context.Context, questionID int64, text, createdBy string, origin OverrideOrigin) (*AnswerOverride, error) {
	trimmed := strings.TrimSpace(text)
	if answers.Normalize(trimmed) == "" {
		return nil, ErrEmptyOverride
	}

	var override *AnswerOverride
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var question Question
		if err := tx.Select("id").Take(&question, questionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestionNotFound
			}
			return err
		}

		var existing []AnswerOverride
		if err := tx.Where("question_id = ?", questionID).Find(&existing).Error; err != nil {
			return err
		}
		normalized := answers.Normalize(trimmed)
		for _, row := range existing {
			if answers.Normalize(row.AcceptedText) == normalized {
				return ErrDuplicateOverride
			}
		}

		row := AnswerOverride{
			QuestionID:   questionID,
			AcceptedText: trimmed,
			CreatedBy:    createdBy,
			Origin:       origin,
			CreatedAt:    s.clock().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		override = &row
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("answer override added",
		zap.Int64("question_id", questionID),
		zap.String("origin", string(origin)))
	return override, nil
}
