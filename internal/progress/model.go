package progress

import "time"

// GameHistory is the append-only fact log: one row per answered question per
// user. Rows are never updated, and deleted only by a full-history reset.
type GameHistory struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	UserID     string    `gorm:"column:user_id;size:190;not null;index:idx_history_user_time,priority:1"`
	QuestionID int64     `gorm:"column:question_id;not null"`
	Correct    bool      `gorm:"column:correct;not null"`
	Points     int       `gorm:"column:points;not null"`
	AnsweredAt time.Time `gorm:"column:answered_at;not null;index:idx_history_user_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (GameHistory) TableName() string {
	return "game_history"
}

// UserProgress is the running per-user per-category aggregate kept
// consistent with the history log. TotalCount equals the number of matching
// history rows; CorrectCount never exceeds it.
type UserProgress struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	CategoryID   int64     `gorm:"column:category_id;primaryKey;not null"`
	CorrectCount int64     `gorm:"column:correct_count;not null;default:0"`
	TotalCount   int64     `gorm:"column:total_count;not null;default:0"`
	Points       int64     `gorm:"column:points;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (UserProgress) TableName() string {
	return "user_progress"
}

// GameStatus enumerates the lifecycle of a durable board game.
type GameStatus string

const (
	// GameStatusInProgress marks a resumable board.
	GameStatusInProgress GameStatus = "in_progress"
	// GameStatusCompleted marks a finished board.
	GameStatusCompleted GameStatus = "completed"
)

// Game is a durable board game owned by an authenticated user. Boards
// migrated from guest play keep their seed and configuration so an
// unfinished board stays resumable.
type Game struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null"`
	UserID     string     `gorm:"column:user_id;size:190;not null;index"`
	Seed       int64      `gorm:"column:seed;not null"`
	ConfigJSON string     `gorm:"column:config_json;type:text;not null"`
	Score      int        `gorm:"column:score;not null"`
	Status     GameStatus `gorm:"column:status;size:32;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Game) TableName() string {
	return "games"
}

// GameQuestion is the per-question state within a durable board game.
type GameQuestion struct {
	ID         string `gorm:"column:id;primaryKey;size:190;not null"`
	GameID     string `gorm:"column:game_id;size:190;not null;index"`
	QuestionID int64  `gorm:"column:question_id;not null"`
	Answered   bool   `gorm:"column:answered;not null;default:false"`
	Correct    bool   `gorm:"column:correct;not null;default:false"`
	Points     int    `gorm:"column:points;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (GameQuestion) TableName() string {
	return "game_questions"
}
