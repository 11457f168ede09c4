package achievements

import "time"

// Achievement is a static catalog entry. The code is the stable identifier
// predicates are keyed on.
type Achievement struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Code        string `gorm:"column:code;size:64;not null;uniqueIndex"`
	Title       string `gorm:"column:title;size:190;not null"`
	Description string `gorm:"column:description;type:text;not null"`
	Hidden      bool   `gorm:"column:hidden;not null;default:false"`
	Tier        string `gorm:"column:tier;size:16;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Achievement) TableName() string {
	return "achievements"
}

// UserAchievement marks an unlock. Presence means "unlocked"; the composite
// primary key makes a concurrent double unlock impossible, and rows are
// immutable once created.
type UserAchievement struct {
	UserID        string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	AchievementID int64     `gorm:"column:achievement_id;primaryKey;not null"`
	UnlockedAt    time.Time `gorm:"column:unlocked_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (UserAchievement) TableName() string {
	return "user_achievements"
}
