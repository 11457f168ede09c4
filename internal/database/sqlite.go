package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stumperworks/stumper/backend/internal/achievements"
	"github.com/stumperworks/stumper/backend/internal/catalog"
	"github.com/stumperworks/stumper/backend/internal/daily"
	"github.com/stumperworks/stumper/backend/internal/guest"
	"github.com/stumperworks/stumper/backend/internal/progress"
)

// OpenSQLite establishes a SQLite connection, performs schema migrations,
// and seeds the static achievement catalog.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&catalog.Category{},
		&catalog.Question{},
		&catalog.AnswerOverride{},
		&progress.GameHistory{},
		&progress.UserProgress{},
		&progress.Game{},
		&progress.GameQuestion{},
		&guest.Session{},
		&guest.Config{},
		&achievements.Achievement{},
		&achievements.UserAchievement{},
		&daily.Challenge{},
		&daily.UserChallenge{},
	); err != nil {
		return nil, err
	}

	if err := achievements.SeedCatalog(db); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
