package achievements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stumperworks/stumper/backend/internal/progress"
)

// EventType enumerates the lifecycle events that can unlock achievements.
type EventType string

const (
	// EventQuestionAnswered fires after a Progress Recorder commit.
	EventQuestionAnswered EventType = "question_answered"
	// EventGameCompleted fires when a board game finishes.
	EventGameCompleted EventType = "game_completed"
	// EventStreakReached fires when a correct-answer streak grows.
	EventStreakReached EventType = "streak_reached"
	// EventScoreReached fires when a lifetime score threshold is crossed.
	EventScoreReached EventType = "score_reached"
	// EventDailyCompleted fires when a daily challenge is submitted.
	EventDailyCompleted EventType = "daily_completed"
)

// Event carries the payload of the triggering lifecycle event.
type Event struct {
	Type           EventType
	Correct        bool
	FinalScore     int
	Accuracy       float64
	StreakLength   int
	DailyCompleted int64
}

// StatsSource supplies the user's lifetime aggregates.
type StatsSource interface {
	LifetimeTotals(ctx context.Context, userID string) (progress.Totals, error)
}

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingStats    = errors.New("stats source is required")

	noOpLogger = zap.NewNop()
)

// EvaluatorConfig describes the dependencies for the evaluator.
type EvaluatorConfig struct {
	Database *gorm.DB
	Stats    StatsSource
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Evaluator unlocks qualifying achievements exactly once each. Evaluation
// is read-then-write; the unique unlock row is the idempotency boundary, so
// duplicate evaluation attempts are always safe.
type Evaluator struct {
	db     *gorm.DB
	stats  StatsSource
	clock  func() time.Time
	logger *zap.Logger
}

// NewEvaluator constructs the evaluator.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("achievements: %w", errMissingDatabase)
	}
	if cfg.Stats == nil {
		return nil, fmt.Errorf("achievements: %w", errMissingStats)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Evaluator{db: cfg.Database, stats: cfg.Stats, clock: clock, logger: logger}, nil
}

// evaluationState is what predicates see: lifetime aggregates plus the
// event payload.
type evaluationState struct {
	Totals progress.Totals
	Event  Event
}

// Evaluate determines which not-yet-unlocked achievements now qualify and
// unlocks each exactly once. A uniqueness violation on the unlock insert
// means a concurrent evaluation won; it is folded into "already unlocked".
func (e *Evaluator) Evaluate(ctx context.Context, userID string, event Event) ([]string, error) {
	if userID == "" {
		return nil, errors.New("achievements: user identifier is required")
	}

	totals, err := e.stats.LifetimeTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	state := evaluationState{Totals: totals, Event: event}

	var catalogRows []Achievement
	if err := e.db.WithContext(ctx).Order("id ASC").Find(&catalogRows).Error; err != nil {
		return nil, err
	}

	var unlockedRows []UserAchievement
	if err := e.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&unlockedRows).Error; err != nil {
		return nil, err
	}
	unlocked := make(map[int64]struct{}, len(unlockedRows))
	for _, row := range unlockedRows {
		unlocked[row.AchievementID] = struct{}{}
	}

	now := e.clock().UTC()
	var codes []string
	for _, entry := range catalogRows {
		if _, already := unlocked[entry.ID]; already {
			continue
		}
		if !qualifies(entry.Code, state) {
			continue
		}

		row := UserAchievement{UserID: userID, AchievementID: entry.ID, UnlockedAt: now}
		err := e.db.WithContext(ctx).Create(&row).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent evaluation inserted first; that unlock stands.
			continue
		}
		if err != nil {
			e.logger.Error("achievement unlock failed",
				zap.String("user_id", userID),
				zap.String("code", entry.Code),
				zap.Error(err))
			return nil, err
		}

		e.logger.Info("achievement unlocked",
			zap.String("user_id", userID),
			zap.String("code", entry.Code))
		codes = append(codes, entry.Code)
	}

	return codes, nil
}

// ListUnlocked returns the user's unlocked achievement codes.
func (e *Evaluator) ListUnlocked(ctx context.Context, userID string) ([]string, error) {
	var codes []string
	err := e.db.WithContext(ctx).
		Model(&UserAchievement{}).
		Joins("JOIN achievements ON achievements.id = user_achievements.achievement_id").
		Where("user_achievements.user_id = ?", userID).
		Order("user_achievements.unlocked_at ASC").
		Pluck("achievements.code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// qualifies is the per-code predicate table.
func qualifies(code string, state evaluationState) bool {
	switch code {
	case CodeFirstCorrect:
		return state.Totals.Correct >= 1
	case CodeCenturyClub:
		return state.Totals.Correct >= 100
	case CodePointCollector:
		return state.Totals.Points >= 10000
	case CodeStreakFive:
		return state.Event.Type == EventStreakReached && state.Event.StreakLength >= 5
	case CodeStreakTwenty:
		return state.Event.Type == EventStreakReached && state.Event.StreakLength >= 20
	case CodePerfectGame:
		return state.Event.Type == EventGameCompleted && state.Event.Accuracy >= 1.0
	case CodeHighRoller:
		return state.Event.Type == EventGameCompleted && state.Event.FinalScore >= 5000
	case CodeFirstDaily:
		return state.Event.Type == EventDailyCompleted && state.Event.DailyCompleted >= 1
	case CodeDailyDevotee:
		return state.Event.Type == EventDailyCompleted && state.Event.DailyCompleted >= 30
	default:
		return false
	}
}
