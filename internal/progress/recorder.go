package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stumperworks/stumper/backend/internal/catalog"
)

var (
	// ErrQuestionNotFound aborts a record-answer call whose question is
	// missing; the whole transaction rolls back, no history row persists.
	ErrQuestionNotFound = errors.New("progress: question not found")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")

	noOpLogger = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opRecorderNew  = "progress.recorder.new"
	opRecordAnswer = "progress.record_answer"
	opResetHistory = "progress.reset_history"
	opListProgress = "progress.list_progress"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// RecorderConfig describes the dependencies for the progress recorder.
type RecorderConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Recorder is the single choke point through which every flow updates
// per-user aggregates. No other code path mutates UserProgress.
type Recorder struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewRecorder constructs the recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opRecorderNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opRecorderNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Recorder{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// RecordInput names the outcome to append.
type RecordInput struct {
	UserID     string
	QuestionID int64
	Correct    bool
	Points     int
}

// RecordOutcome reports the appended history row and the updated aggregate.
type RecordOutcome struct {
	HistoryID string
	Progress  UserProgress
}

// RecordAnswer appends a history row and updates the per-category aggregate
// as one atomic transaction.
func (r *Recorder) RecordAnswer(ctx context.Context, input RecordInput) (RecordOutcome, error) {
	var outcome RecordOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recorded, err := r.RecordAnswerIn(tx, input)
		if err != nil {
			return err
		}
		outcome = recorded
		return nil
	})
	if err != nil {
		return RecordOutcome{}, err
	}
	return outcome, nil
}

// RecordAnswerIn performs the record-answer steps inside the caller's
// transaction. Flows that migrate several outcomes atomically (guest claim)
// compose this with their own writes.
func (r *Recorder) RecordAnswerIn(tx *gorm.DB, input RecordInput) (RecordOutcome, error) {
	if input.UserID == "" {
		return RecordOutcome{}, newServiceError(opRecordAnswer, "missing_user_id", errMissingUserID)
	}

	historyID, err := r.idProvider.NewID()
	if err != nil {
		r.logError(opRecordAnswer, "id_generation_failed", err, zap.String("user_id", input.UserID))
		return RecordOutcome{}, newServiceError(opRecordAnswer, "id_generation_failed", err)
	}

	now := r.clock().UTC()
	history := GameHistory{
		ID:         historyID,
		UserID:     input.UserID,
		QuestionID: input.QuestionID,
		Correct:    input.Correct,
		Points:     input.Points,
		AnsweredAt: now,
	}
	if err := tx.Create(&history).Error; err != nil {
		r.logError(opRecordAnswer, "history_insert_failed", err, zap.String("user_id", input.UserID))
		return RecordOutcome{}, newServiceError(opRecordAnswer, "history_insert_failed", err)
	}

	var question catalog.Question
	err = tx.Select("id", "category_id").Take(&question, input.QuestionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RecordOutcome{}, ErrQuestionNotFound
	}
	if err != nil {
		r.logError(opRecordAnswer, "question_load_failed", err, zap.Int64("question_id", input.QuestionID))
		return RecordOutcome{}, newServiceError(opRecordAnswer, "question_load_failed", err)
	}

	correctDelta := 0
	if input.Correct {
		correctDelta = 1
	}
	row := UserProgress{
		UserID:       input.UserID,
		CategoryID:   question.CategoryID,
		CorrectCount: int64(correctDelta),
		TotalCount:   1,
		Points:       int64(input.Points),
		UpdatedAt:    now,
	}
	// The conflict-target upsert is what serializes concurrent answers for
	// the same (user, category): the store locks the aggregate row while it
	// applies the increments.
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "category_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"correct_count": gorm.Expr("correct_count + ?", correctDelta),
			"total_count":   gorm.Expr("total_count + 1"),
			"points":        gorm.Expr("points + ?", input.Points),
			"updated_at":    now,
		}),
	}).Create(&row).Error
	if err != nil {
		r.logError(opRecordAnswer, "aggregate_upsert_failed", err,
			zap.String("user_id", input.UserID),
			zap.Int64("category_id", question.CategoryID))
		return RecordOutcome{}, newServiceError(opRecordAnswer, "aggregate_upsert_failed", err)
	}

	var updated UserProgress
	if err := tx.
		Where("user_id = ? AND category_id = ?", input.UserID, question.CategoryID).
		Take(&updated).Error; err != nil {
		r.logError(opRecordAnswer, "aggregate_reload_failed", err, zap.String("user_id", input.UserID))
		return RecordOutcome{}, newServiceError(opRecordAnswer, "aggregate_reload_failed", err)
	}

	return RecordOutcome{HistoryID: historyID, Progress: updated}, nil
}

// ListProgress returns every per-category aggregate for a user.
func (r *Recorder) ListProgress(ctx context.Context, userID string) ([]UserProgress, error) {
	if userID == "" {
		return nil, newServiceError(opListProgress, "missing_user_id", errMissingUserID)
	}
	var rows []UserProgress
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("category_id ASC").
		Find(&rows).Error; err != nil {
		r.logError(opListProgress, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListProgress, "query_failed", err)
	}
	return rows, nil
}

// Totals is a user's lifetime aggregate across all categories.
type Totals struct {
	Correct int64
	Total   int64
	Points  int64
}

// LifetimeTotals sums the per-category aggregates for a user.
func (r *Recorder) LifetimeTotals(ctx context.Context, userID string) (Totals, error) {
	var totals Totals
	err := r.db.WithContext(ctx).
		Model(&UserProgress{}).
		Select("COALESCE(SUM(correct_count), 0) AS correct, COALESCE(SUM(total_count), 0) AS total, COALESCE(SUM(points), 0) AS points").
		Where("user_id = ?", userID).
		Scan(&totals).Error
	if err != nil {
		r.logError(opListProgress, "totals_failed", err, zap.String("user_id", userID))
		return Totals{}, newServiceError(opListProgress, "totals_failed", err)
	}
	return totals, nil
}

// CurrentStreak counts the user's consecutive correct answers ending at
// their most recent one.
func (r *Recorder) CurrentStreak(ctx context.Context, userID string) (int, error) {
	var recent []GameHistory
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("answered_at DESC, id DESC").
		Limit(200).
		Find(&recent).Error; err != nil {
		r.logError(opListProgress, "streak_query_failed", err, zap.String("user_id", userID))
		return 0, newServiceError(opListProgress, "streak_query_failed", err)
	}
	streak := 0
	for _, row := range recent {
		if !row.Correct {
			break
		}
		streak++
	}
	return streak, nil
}

// ResetHistory removes a user's history rows and aggregates in one
// transaction. This is the only path that ever decrements progress.
func (r *Recorder) ResetHistory(ctx context.Context, userID string) error {
	if userID == "" {
		return newServiceError(opResetHistory, "missing_user_id", errMissingUserID)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&GameHistory{}).Error; err != nil {
			return newServiceError(opResetHistory, "history_delete_failed", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&UserProgress{}).Error; err != nil {
			return newServiceError(opResetHistory, "aggregate_delete_failed", err)
		}
		return nil
	})
	if err != nil {
		r.logError(opResetHistory, "transaction_failed", err, zap.String("user_id", userID))
		return err
	}
	r.logger.Info("history reset", zap.String("user_id", userID))
	return nil
}

func (r *Recorder) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("progress recorder error", attrs...)
}
