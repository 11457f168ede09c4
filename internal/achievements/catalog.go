package achievements

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Stable achievement codes.
const (
	CodeFirstCorrect   = "FIRST_CORRECT"
	CodeCenturyClub    = "CENTURY_CLUB"
	CodePointCollector = "POINT_COLLECTOR"
	CodeStreakFive     = "STREAK_5"
	CodeStreakTwenty   = "STREAK_20"
	CodePerfectGame    = "PERFECT_GAME"
	CodeHighRoller     = "HIGH_ROLLER"
	CodeFirstDaily     = "FIRST_DAILY"
	CodeDailyDevotee   = "DAILY_DEVOTEE"
)

// Catalog is the static achievement set seeded at migration time.
func Catalog() []Achievement {
	return []Achievement{
		{Code: CodeFirstCorrect, Title: "First Blood", Description: "Answer your first question correctly", Tier: "bronze"},
		{Code: CodeCenturyClub, Title: "Century Club", Description: "Answer 100 questions correctly", Tier: "silver"},
		{Code: CodePointCollector, Title: "Point Collector", Description: "Accumulate 10,000 points", Tier: "silver"},
		{Code: CodeStreakFive, Title: "On a Roll", Description: "Answer 5 questions correctly in a row", Tier: "bronze"},
		{Code: CodeStreakTwenty, Title: "Unstoppable", Description: "Answer 20 questions correctly in a row", Tier: "gold"},
		{Code: CodePerfectGame, Title: "Perfect Game", Description: "Finish a board without a single miss", Tier: "gold", Hidden: true},
		{Code: CodeHighRoller, Title: "High Roller", Description: "Finish a board with 5,000 points or more", Tier: "silver"},
		{Code: CodeFirstDaily, Title: "Daily Debut", Description: "Complete your first daily challenge", Tier: "bronze"},
		{Code: CodeDailyDevotee, Title: "Daily Devotee", Description: "Complete 30 daily challenges", Tier: "gold"},
	}
}

// SeedCatalog inserts any missing catalog rows. Existing codes are left
// untouched so re-running migrations is safe.
func SeedCatalog(db *gorm.DB) error {
	for _, entry := range Catalog() {
		row := entry
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
