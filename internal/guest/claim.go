package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stumperworks/stumper/backend/internal/catalog"
	"github.com/stumperworks/stumper/backend/internal/daily"
	"github.com/stumperworks/stumper/backend/internal/progress"
)

// MigrationError wraps an internal failure during the claim transaction.
// The transaction rolled back, so the session is still claimable and the
// caller may retry.
type MigrationError struct {
	Err error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("guest: migration failed: %v", e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// AnswerRecorder is the slice of the progress recorder the claim flow
// composes into its transaction.
type AnswerRecorder interface {
	RecordAnswerIn(tx *gorm.DB, input progress.RecordInput) (progress.RecordOutcome, error)
}

// ClaimerConfig describes the dependencies for the claim transaction.
type ClaimerConfig struct {
	Database   *gorm.DB
	Recorder   AnswerRecorder
	Clock      func() time.Time
	IDProvider progress.IDProvider
	Logger     *zap.Logger
}

// Claimer converts one guest session into durable records under a newly
// authenticated user, exactly once.
type Claimer struct {
	db         *gorm.DB
	recorder   AnswerRecorder
	clock      func() time.Time
	idProvider progress.IDProvider
	logger     *zap.Logger
}

// NewClaimer constructs the claimer.
func NewClaimer(cfg ClaimerConfig) (*Claimer, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("guest: %w", errMissingDatabase)
	}
	if cfg.Recorder == nil {
		return nil, errors.New("guest: answer recorder is required")
	}
	if cfg.IDProvider == nil {
		return nil, errors.New("guest: id provider is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Claimer{
		db:         cfg.Database,
		recorder:   cfg.Recorder,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ClaimResult reports the durable records produced by a successful claim.
// CorrectAnswers counts how many of the migrated history rows were correct.
type ClaimResult struct {
	SessionID          string
	Kind               Kind
	HistoryIDs         []string
	CorrectAnswers     int
	GameID             string
	ChallengeID        int64
	RedirectCategoryID int64
}

// Claim migrates the session's outcomes to the user. The claim marker is
// set inside the same transaction as the data migration, so a retried call
// on an already-claimed session is a uniform failure, never a double
// credit. Either the full migration commits or none of it does.
func (c *Claimer) Claim(ctx context.Context, sessionID, userID string) (ClaimResult, error) {
	if sessionID == "" || userID == "" {
		return ClaimResult{}, ErrSessionUnusable
	}

	var result ClaimResult
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := c.clock().UTC()

		// The conditional update is the exactly-once gate: zero rows means
		// the session is missing, expired, or already claimed, and all
		// three collapse into the same outcome.
		gate := tx.Model(&Session{}).
			Where("id = ? AND claimed_at IS NULL AND expires_at > ?", sessionID, now).
			Updates(map[string]interface{}{"claimed_at": now, "claimed_by": userID})
		if gate.Error != nil {
			return &MigrationError{Err: gate.Error}
		}
		if gate.RowsAffected == 0 {
			return ErrSessionUnusable
		}

		var session Session
		if err := tx.Take(&session, "id = ?", sessionID).Error; err != nil {
			return &MigrationError{Err: err}
		}

		result = ClaimResult{SessionID: sessionID, Kind: session.Kind}
		switch session.Kind {
		case KindSingleQuestion:
			return c.migrateSingleQuestion(tx, &session, userID, &result)
		case KindDailyAttempt:
			return c.migrateDailyAttempt(tx, &session, userID, now, &result)
		case KindBoardGame:
			return c.migrateBoardGame(tx, &session, userID, now, &result)
		default:
			return &MigrationError{Err: fmt.Errorf("%w: %q", ErrUnknownKind, session.Kind)}
		}
	})
	if err != nil {
		if !errors.Is(err, ErrSessionUnusable) {
			c.logger.Error("guest claim failed",
				zap.String("session_id", sessionID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return ClaimResult{}, err
	}

	c.logger.Info("guest session claimed",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("kind", string(result.Kind)))
	return result, nil
}

func (c *Claimer) migrateSingleQuestion(tx *gorm.DB, session *Session, userID string, result *ClaimResult) error {
	var payload SingleQuestionPayload
	if err := json.Unmarshal([]byte(session.PayloadJSON), &payload); err != nil {
		return &MigrationError{Err: err}
	}

	if payload.Answered {
		outcome, err := c.recorder.RecordAnswerIn(tx, progress.RecordInput{
			UserID:     userID,
			QuestionID: payload.QuestionID,
			Correct:    payload.Correct,
			Points:     payload.Points,
		})
		if err != nil {
			return &MigrationError{Err: err}
		}
		result.HistoryIDs = append(result.HistoryIDs, outcome.HistoryID)
		if payload.Correct {
			result.CorrectAnswers++
		}
	}

	// The category id only feeds post-claim navigation; a vanished
	// question leaves it zero without failing the claim of an unanswered
	// session.
	var question catalog.Question
	err := tx.Select("id", "category_id").Take(&question, payload.QuestionID).Error
	if err == nil {
		result.RedirectCategoryID = question.CategoryID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return &MigrationError{Err: err}
	}
	return nil
}

func (c *Claimer) migrateDailyAttempt(tx *gorm.DB, session *Session, userID string, now time.Time, result *ClaimResult) error {
	var payload DailyAttemptPayload
	if err := json.Unmarshal([]byte(session.PayloadJSON), &payload); err != nil {
		return &MigrationError{Err: err}
	}

	// A user who already played this date while authenticated keeps their
	// original row; pre-existence is silently treated as already migrated.
	row := daily.UserChallenge{
		UserID:      userID,
		ChallengeID: payload.ChallengeID,
		Answer:      payload.Answer,
		Correct:     payload.Correct,
		CompletedAt: now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return &MigrationError{Err: err}
	}
	result.ChallengeID = payload.ChallengeID
	return nil
}

func (c *Claimer) migrateBoardGame(tx *gorm.DB, session *Session, userID string, now time.Time, result *ClaimResult) error {
	var payload BoardPayload
	if err := json.Unmarshal([]byte(session.PayloadJSON), &payload); err != nil {
		return &MigrationError{Err: err}
	}

	gameID, err := c.idProvider.NewID()
	if err != nil {
		return &MigrationError{Err: err}
	}
	configJSON, err := json.Marshal(payload.Config)
	if err != nil {
		return &MigrationError{Err: err}
	}

	status := progress.GameStatusInProgress
	if payload.Completed {
		status = progress.GameStatusCompleted
	}
	game := progress.Game{
		ID:         gameID,
		UserID:     userID,
		Seed:       payload.Seed,
		ConfigJSON: string(configJSON),
		Score:      payload.Score,
		Status:     status,
		CreatedAt:  now,
	}
	if err := tx.Create(&game).Error; err != nil {
		return &MigrationError{Err: err}
	}

	for _, boardQuestion := range payload.Questions {
		rowID, err := c.idProvider.NewID()
		if err != nil {
			return &MigrationError{Err: err}
		}
		row := progress.GameQuestion{
			ID:         rowID,
			GameID:     gameID,
			QuestionID: boardQuestion.QuestionID,
			Answered:   boardQuestion.Answered,
			Correct:    boardQuestion.Correct,
			Points:     boardQuestion.Points,
		}
		if err := tx.Create(&row).Error; err != nil {
			return &MigrationError{Err: err}
		}

		if boardQuestion.Answered {
			outcome, err := c.recorder.RecordAnswerIn(tx, progress.RecordInput{
				UserID:     userID,
				QuestionID: boardQuestion.QuestionID,
				Correct:    boardQuestion.Correct,
				Points:     boardQuestion.Points,
			})
			if err != nil {
				return &MigrationError{Err: err}
			}
			result.HistoryIDs = append(result.HistoryIDs, outcome.HistoryID)
			if boardQuestion.Correct {
				result.CorrectAnswers++
			}
		}
	}

	result.GameID = gameID
	return nil
}
