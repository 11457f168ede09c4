package guest

import "time"

// Kind enumerates the closed set of guest session kinds. The claim
// transaction switches over this tag in one place so the exactly-once and
// atomicity invariants hold regardless of kind.
type Kind string

const (
	// KindSingleQuestion is one random practice question.
	KindSingleQuestion Kind = "single_question"
	// KindBoardGame is an in-progress board game.
	KindBoardGame Kind = "board_game"
	// KindDailyAttempt is a daily-challenge attempt.
	KindDailyAttempt Kind = "daily_attempt"
)

// Session is an ephemeral anonymous play record. It is actionable only
// while unexpired and unclaimed.
type Session struct {
	ID          string     `gorm:"column:id;primaryKey;size:190;not null"`
	Kind        Kind       `gorm:"column:kind;size:32;not null"`
	PayloadJSON string     `gorm:"column:payload_json;type:text;not null"`
	ExpiresAt   time.Time  `gorm:"column:expires_at;not null;index"`
	ClaimedAt   *time.Time `gorm:"column:claimed_at"`
	ClaimedBy   string     `gorm:"column:claimed_by;size:190"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "guest_sessions"
}

// Config is the process-wide guest tunables row: trial quotas and session
// TTL. Singleton, read-mostly, created with defaults on first read.
type Config struct {
	ID                 int64 `gorm:"column:id;primaryKey"`
	SessionTTLMinutes  int   `gorm:"column:session_ttl_minutes;not null"`
	MaxSingleQuestions int   `gorm:"column:max_single_questions;not null"`
	MaxBoardGames      int   `gorm:"column:max_board_games;not null"`
	MaxDailyAttempts   int   `gorm:"column:max_daily_attempts;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Config) TableName() string {
	return "guest_config"
}

const (
	configRowID               = 1
	defaultSessionTTLMinutes  = 120
	defaultMaxSingleQuestions = 10
	defaultMaxBoardGames      = 1
	defaultMaxDailyAttempts   = 1
)

func defaultConfig() Config {
	return Config{
		ID:                 configRowID,
		SessionTTLMinutes:  defaultSessionTTLMinutes,
		MaxSingleQuestions: defaultMaxSingleQuestions,
		MaxBoardGames:      defaultMaxBoardGames,
		MaxDailyAttempts:   defaultMaxDailyAttempts,
	}
}

// SingleQuestionPayload is the stored outcome of a single-question session.
type SingleQuestionPayload struct {
	QuestionID int64 `json:"question_id"`
	Answered   bool  `json:"answered"`
	Correct    bool  `json:"correct"`
	Points     int   `json:"points"`
}

// DailyAttemptPayload is the stored outcome of a guest daily-challenge
// attempt.
type DailyAttemptPayload struct {
	ChallengeID int64  `json:"challenge_id"`
	Answer      string `json:"answer"`
	Correct     bool   `json:"correct"`
}

// BoardConfig is the board shape carried over unchanged on claim so an
// unfinished board stays resumable.
type BoardConfig struct {
	Rounds             int `json:"rounds"`
	CategoriesPerRound int `json:"categories_per_round"`
	QuestionsPerColumn int `json:"questions_per_column"`
}

// BoardQuestion is the per-question state within a guest board.
type BoardQuestion struct {
	QuestionID int64 `json:"question_id"`
	Answered   bool  `json:"answered"`
	Correct    bool  `json:"correct"`
	Points     int   `json:"points"`
}

// BoardPayload is the board-state payload for a board-kind session.
type BoardPayload struct {
	Seed      int64           `json:"seed"`
	Config    BoardConfig     `json:"config"`
	Score     int             `json:"score"`
	Completed bool            `json:"completed"`
	Questions []BoardQuestion `json:"questions"`
}
