package guest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/stumperworks/stumper/backend/internal/catalog"
	"github.com/stumperworks/stumper/backend/internal/daily"
	"github.com/stumperworks/stumper/backend/internal/progress"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:stumper_guest_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&catalog.Category{}, &catalog.Question{},
		&progress.GameHistory{}, &progress.UserProgress{},
		&progress.Game{}, &progress.GameQuestion{},
		&Session{}, &Config{},
		&daily.Challenge{}, &daily.UserChallenge{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func newTestManager(t *testing.T, db *gorm.DB, clock *manualClock) *Manager {
	t.Helper()
	manager, err := NewManager(ManagerConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	return manager
}

func TestCreateSessionUsesConfiguredTTL(t *testing.T) {
	db := newTestDB(t)
	clock := &manualClock{now: time.Unix(1700000000, 0).UTC()}
	manager := newTestManager(t, db, clock)

	created, err := manager.CreateSession(context.Background(), KindSingleQuestion, SingleQuestionPayload{QuestionID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected a session id")
	}

	expected := clock.now.Add(defaultSessionTTLMinutes * time.Minute)
	if !created.ExpiresAt.Equal(expected) {
		t.Fatalf("expected expiry %v, got %v", expected, created.ExpiresAt)
	}

	var cfg Config
	if err := db.Take(&cfg, configRowID).Error; err != nil {
		t.Fatalf("config row should be lazily created: %v", err)
	}
}

func TestCreateSessionRejectsUnknownKind(t *testing.T) {
	db := newTestDB(t)
	clock := &manualClock{now: time.Unix(1700000000, 0).UTC()}
	manager := newTestManager(t, db, clock)

	_, err := manager.CreateSession(context.Background(), Kind("mystery"), nil)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestGetSessionFoldsAllUnusableStates(t *testing.T) {
	db := newTestDB(t)
	clock := &manualClock{now: time.Unix(1700000000, 0).UTC()}
	manager := newTestManager(t, db, clock)

	created, err := manager.CreateSession(context.Background(), KindSingleQuestion, SingleQuestionPayload{QuestionID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := manager.GetSession(context.Background(), created.ID); err != nil {
		t.Fatalf("fresh session should be usable: %v", err)
	}

	if _, err := manager.GetSession(context.Background(), "no-such-session"); !errors.Is(err, ErrSessionUnusable) {
		t.Fatalf("missing session must be uniformly unusable, got %v", err)
	}

	clock.now = created.ExpiresAt
	if _, err := manager.GetSession(context.Background(), created.ID); !errors.Is(err, ErrSessionUnusable) {
		t.Fatalf("expired session must be uniformly unusable, got %v", err)
	}

	clock.now = time.Unix(1700000000, 0).UTC()
	claimedAt := clock.now
	if err := db.Model(&Session{}).
		Where("id = ?", created.ID).
		Updates(map[string]interface{}{"claimed_at": claimedAt, "claimed_by": "user-1"}).Error; err != nil {
		t.Fatalf("failed to mark claimed: %v", err)
	}
	if _, err := manager.GetSession(context.Background(), created.ID); !errors.Is(err, ErrSessionUnusable) {
		t.Fatalf("claimed session must be uniformly unusable, got %v", err)
	}
}

func TestCheckLimitIsPurePolicy(t *testing.T) {
	db := newTestDB(t)
	clock := &manualClock{now: time.Unix(1700000000, 0).UTC()}
	manager := newTestManager(t, db, clock)

	tests := []struct {
		name    string
		kind    Kind
		current int
		allowed bool
	}{
		{name: "single-under", kind: KindSingleQuestion, current: defaultMaxSingleQuestions - 1, allowed: true},
		{name: "single-at", kind: KindSingleQuestion, current: defaultMaxSingleQuestions, allowed: false},
		{name: "board-under", kind: KindBoardGame, current: 0, allowed: true},
		{name: "board-at", kind: KindBoardGame, current: defaultMaxBoardGames, allowed: false},
		{name: "daily-at", kind: KindDailyAttempt, current: defaultMaxDailyAttempts, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := manager.CheckLimit(context.Background(), tt.kind, tt.current)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if verdict.Allowed != tt.allowed {
				t.Fatalf("CheckLimit(%s, %d) = %v, want %v", tt.kind, tt.current, verdict.Allowed, tt.allowed)
			}
			if !verdict.Allowed && verdict.Reason == "" {
				t.Fatalf("denied verdict should carry a reason")
			}
		})
	}

	var sessionCount int64
	if err := db.Model(&Session{}).Count(&sessionCount).Error; err != nil {
		t.Fatalf("failed to count sessions: %v", err)
	}
	if sessionCount != 0 {
		t.Fatalf("CheckLimit must not create sessions, got %d", sessionCount)
	}
}

func TestUpdatePayloadRefusesUnusableSession(t *testing.T) {
	db := newTestDB(t)
	clock := &manualClock{now: time.Unix(1700000000, 0).UTC()}
	manager := newTestManager(t, db, clock)

	created, err := manager.CreateSession(context.Background(), KindBoardGame, BoardPayload{Seed: 11})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := manager.UpdatePayload(context.Background(), created.ID, BoardPayload{Seed: 11, Score: 600}); err != nil {
		t.Fatalf("usable session should accept payload updates: %v", err)
	}

	clock.now = created.ExpiresAt.Add(time.Minute)
	err = manager.UpdatePayload(context.Background(), created.ID, BoardPayload{Seed: 11, Score: 800})
	if !errors.Is(err, ErrSessionUnusable) {
		t.Fatalf("expired session must refuse updates, got %v", err)
	}
}
