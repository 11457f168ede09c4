package daily

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stumperworks/stumper/backend/internal/catalog"
	"github.com/stumperworks/stumper/backend/internal/progress"
)

const (
	defaultEpisodeLookbackDays = 30
	// selectionAttempts bounds re-selection when a concurrently created
	// challenge for a different date claims the question we picked. The
	// date race itself is resolved by re-reading the winner, never by
	// retrying.
	selectionAttempts = 3
)

var (
	// ErrNoEligibleQuestion indicates the pool of unused final-round
	// questions outside the episode look-back window is empty.
	ErrNoEligibleQuestion = errors.New("daily: no eligible question")
	// ErrChallengeNotFound indicates no challenge exists for the date.
	ErrChallengeNotFound = errors.New("daily: challenge not found")
	// ErrAlreadySubmitted indicates the user already completed the date.
	ErrAlreadySubmitted = errors.New("daily: result already submitted")

	errMissingDatabase = errors.New("database handle is required")

	noOpLogger = zap.NewNop()
)

// AnswerRecorder is the slice of the progress recorder a challenge
// completion composes into its transaction.
type AnswerRecorder interface {
	RecordAnswerIn(tx *gorm.DB, input progress.RecordInput) (progress.RecordOutcome, error)
}

// SchedulerConfig describes the dependencies for the challenge scheduler.
type SchedulerConfig struct {
	Database            *gorm.DB
	Recorder            AnswerRecorder
	Clock               func() time.Time
	EpisodeLookbackDays int
	Logger              *zap.Logger
}

// Scheduler assigns one unused final-round question to each calendar date,
// tolerating concurrent callers racing to create the same date.
type Scheduler struct {
	db       *gorm.DB
	recorder AnswerRecorder
	clock    func() time.Time
	lookback int
	logger   *zap.Logger
}

// NewScheduler constructs the scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("daily: %w", errMissingDatabase)
	}
	if cfg.Recorder == nil {
		return nil, errors.New("daily: answer recorder is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	lookback := cfg.EpisodeLookbackDays
	if lookback <= 0 {
		lookback = defaultEpisodeLookbackDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Scheduler{
		db:       cfg.Database,
		recorder: cfg.Recorder,
		clock:    clock,
		lookback: lookback,
		logger:   logger,
	}, nil
}

// EnsureChallenge returns the challenge for the date, creating it when
// absent. Concurrent callers for a brand-new date all receive the single
// winning row: a unique-constraint loss is recovered by re-reading, never
// surfaced.
func (s *Scheduler) EnsureChallenge(ctx context.Context, date time.Time) (*Challenge, error) {
	day := truncateToDay(date)

	if existing, err := s.GetChallenge(ctx, day); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrChallengeNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < selectionAttempts; attempt++ {
		question, err := s.pickQuestion(ctx, day)
		if err != nil {
			return nil, err
		}

		challenge := Challenge{
			Date:       day,
			QuestionID: question.ID,
			EpisodeID:  question.EpisodeID,
			CreatedAt:  s.clock().UTC(),
		}
		err = s.db.WithContext(ctx).Create(&challenge).Error
		if err == nil {
			s.logger.Info("daily challenge created",
				zap.Time("date", day),
				zap.Int64("question_id", question.ID))
			return &challenge, nil
		}
		if !isUniqueViolation(err) {
			s.logger.Error("daily challenge insert failed", zap.Time("date", day), zap.Error(err))
			return nil, err
		}

		// Someone else won a race. If it was the date, their row is the
		// answer; if it was the question, pick again.
		if existing, err := s.GetChallenge(ctx, day); err == nil {
			return existing, nil
		} else if !errors.Is(err, ErrChallengeNotFound) {
			return nil, err
		}
	}

	return nil, ErrNoEligibleQuestion
}

// GetChallenge loads the challenge for a date without creating one.
func (s *Scheduler) GetChallenge(ctx context.Context, date time.Time) (*Challenge, error) {
	day := truncateToDay(date)
	var challenge Challenge
	err := s.db.WithContext(ctx).Take(&challenge, "challenge_date = ?", day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// CompletionInput carries everything a graded daily submission writes.
type CompletionInput struct {
	UserID      string
	ChallengeID int64
	QuestionID  int64
	Answer      string
	Correct     bool
	Points      int
}

// CompleteChallenge records a user's completion and its history row in one
// transaction. A duplicate submission for the same (user, challenge) pair is
// reported as ErrAlreadySubmitted and the first row stands; a recorder
// failure rolls the completion back so no half-credited state persists.
func (s *Scheduler) CompleteChallenge(ctx context.Context, input CompletionInput) (*UserChallenge, progress.RecordOutcome, error) {
	row := UserChallenge{
		UserID:      input.UserID,
		ChallengeID: input.ChallengeID,
		Answer:      input.Answer,
		Correct:     input.Correct,
		CompletedAt: s.clock().UTC(),
	}
	var outcome progress.RecordOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadySubmitted
			}
			return err
		}
		recorded, err := s.recorder.RecordAnswerIn(tx, progress.RecordInput{
			UserID:     input.UserID,
			QuestionID: input.QuestionID,
			Correct:    input.Correct,
			Points:     input.Points,
		})
		if err != nil {
			return err
		}
		outcome = recorded
		return nil
	})
	if errors.Is(err, ErrAlreadySubmitted) {
		return nil, progress.RecordOutcome{}, ErrAlreadySubmitted
	}
	if err != nil {
		s.logger.Error("daily completion failed",
			zap.String("user_id", input.UserID),
			zap.Int64("challenge_id", input.ChallengeID),
			zap.Error(err))
		return nil, progress.RecordOutcome{}, err
	}
	return &row, outcome, nil
}

// CompletedCount returns how many daily challenges a user has finished.
func (s *Scheduler) CompletedCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&UserChallenge{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// pickQuestion selects an eligible final-round question: never used by any
// challenge, and not sourced from an episode used inside the look-back
// window.
func (s *Scheduler) pickQuestion(ctx context.Context, day time.Time) (*catalog.Question, error) {
	cutoff := day.AddDate(0, 0, -s.lookback)

	var question catalog.Question
	err := s.db.WithContext(ctx).
		Where("round = ?", catalog.RoundFinal).
		Where("NOT EXISTS (SELECT 1 FROM daily_challenges dc WHERE dc.question_id = questions.id)").
		Where("episode_id NOT IN (SELECT episode_id FROM daily_challenges WHERE challenge_date > ?)", cutoff).
		Order("RANDOM()").
		Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoEligibleQuestion
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func truncateToDay(value time.Time) time.Time {
	utc := value.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
