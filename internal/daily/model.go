package daily

import "time"

// Challenge maps one calendar date to exactly one final-round question.
// Both the date and the question are globally unique: a question used for
// any date is permanently ineligible for future dates.
type Challenge struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Date       time.Time `gorm:"column:challenge_date;not null;uniqueIndex"`
	QuestionID int64     `gorm:"column:question_id;not null;uniqueIndex"`
	EpisodeID  string    `gorm:"column:episode_id;size:64;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Challenge) TableName() string {
	return "daily_challenges"
}

// UserChallenge records one user's completion of a date's challenge. The
// (user, challenge) pair is unique: one completion per user per date.
type UserChallenge struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID      string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_user_challenge,priority:1"`
	ChallengeID int64     `gorm:"column:challenge_id;not null;uniqueIndex:idx_user_challenge,priority:2"`
	Answer      string    `gorm:"column:answer;type:text"`
	Correct     bool      `gorm:"column:correct;not null"`
	CompletedAt time.Time `gorm:"column:completed_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (UserChallenge) TableName() string {
	return "user_daily_challenges"
}
