package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrSessionUnusable folds missing, expired, and already-claimed
	// sessions into one outcome. Callers must not distinguish the three to
	// end users.
	ErrSessionUnusable = errors.New("guest: session not found, expired, or claimed")
	// ErrUnknownKind indicates a kind outside the closed enum.
	ErrUnknownKind = errors.New("guest: unknown session kind")

	errMissingDatabase = errors.New("database handle is required")

	noOpLogger = zap.NewNop()
)

// ManagerConfig describes the dependencies for the session manager. The
// TTL and quota fields seed the tunables row on first read; once the row
// exists it is the source of truth.
type ManagerConfig struct {
	Database           *gorm.DB
	Clock              func() time.Time
	SessionTTLMinutes  int
	MaxSingleQuestions int
	MaxBoardGames      int
	MaxDailyAttempts   int
	Logger             *zap.Logger
}

// Manager creates, reads, and lazily expires guest sessions.
type Manager struct {
	db     *gorm.DB
	clock  func() time.Time
	seed   Config
	logger *zap.Logger
}

// NewManager constructs the session manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("guest: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	seed := defaultConfig()
	if cfg.SessionTTLMinutes > 0 {
		seed.SessionTTLMinutes = cfg.SessionTTLMinutes
	}
	if cfg.MaxSingleQuestions > 0 {
		seed.MaxSingleQuestions = cfg.MaxSingleQuestions
	}
	if cfg.MaxBoardGames > 0 {
		seed.MaxBoardGames = cfg.MaxBoardGames
	}
	if cfg.MaxDailyAttempts > 0 {
		seed.MaxDailyAttempts = cfg.MaxDailyAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Manager{db: cfg.Database, clock: clock, seed: seed, logger: logger}, nil
}

// CreatedSession reports the identifiers a client needs to resume play.
type CreatedSession struct {
	ID        string
	ExpiresAt time.Time
}

// CreateSession persists a new guest session of the given kind. The payload
// must be one of the kind's payload types; it is stored as JSON.
func (m *Manager) CreateSession(ctx context.Context, kind Kind, payload any) (CreatedSession, error) {
	switch kind {
	case KindSingleQuestion, KindBoardGame, KindDailyAttempt:
	default:
		return CreatedSession{}, ErrUnknownKind
	}

	cfg, err := m.loadConfig(ctx)
	if err != nil {
		return CreatedSession{}, err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return CreatedSession{}, fmt.Errorf("guest: encode payload: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return CreatedSession{}, err
	}

	now := m.clock().UTC()
	session := Session{
		ID:          id.String(),
		Kind:        kind,
		PayloadJSON: string(encoded),
		ExpiresAt:   now.Add(time.Duration(cfg.SessionTTLMinutes) * time.Minute),
		CreatedAt:   now,
	}
	if err := m.db.WithContext(ctx).Create(&session).Error; err != nil {
		m.logger.Error("guest session create failed", zap.String("kind", string(kind)), zap.Error(err))
		return CreatedSession{}, err
	}

	m.logger.Info("guest session created",
		zap.String("session_id", session.ID),
		zap.String("kind", string(kind)))
	return CreatedSession{ID: session.ID, ExpiresAt: session.ExpiresAt}, nil
}

// GetSession returns a usable session or ErrSessionUnusable. Expiry is
// checked lazily here; sessions are never actively revoked.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	err := m.db.WithContext(ctx).Take(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionUnusable
	}
	if err != nil {
		m.logger.Error("guest session load failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	if session.ClaimedAt != nil || !m.clock().UTC().Before(session.ExpiresAt) {
		return nil, ErrSessionUnusable
	}
	return &session, nil
}

// UpdatePayload replaces the stored payload of a usable session, keeping
// guest board state current between requests.
func (m *Manager) UpdatePayload(ctx context.Context, sessionID string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("guest: encode payload: %w", err)
	}
	now := m.clock().UTC()
	result := m.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND claimed_at IS NULL AND expires_at > ?", sessionID, now).
		Update("payload_json", string(encoded))
	if result.Error != nil {
		m.logger.Error("guest payload update failed", zap.String("session_id", sessionID), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionUnusable
	}
	return nil
}

// Verdict is the outcome of a quota check.
type Verdict struct {
	Allowed bool
	Reason  string
}

// CheckLimit is a pure policy check against the configured trial quotas.
// It mutates nothing; handlers call it before incrementing their counters.
func (m *Manager) CheckLimit(ctx context.Context, kind Kind, currentCount int) (Verdict, error) {
	cfg, err := m.loadConfig(ctx)
	if err != nil {
		return Verdict{}, err
	}

	var limit int
	switch kind {
	case KindSingleQuestion:
		limit = cfg.MaxSingleQuestions
	case KindBoardGame:
		limit = cfg.MaxBoardGames
	case KindDailyAttempt:
		limit = cfg.MaxDailyAttempts
	default:
		return Verdict{}, ErrUnknownKind
	}

	if currentCount >= limit {
		return Verdict{Allowed: false, Reason: fmt.Sprintf("trial limit of %d reached", limit)}, nil
	}
	return Verdict{Allowed: true}, nil
}

// loadConfig reads the singleton tunables row, creating the defaults when
// absent. The conflict clause makes concurrent first reads converge on one
// row.
func (m *Manager) loadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	err := m.db.WithContext(ctx).Take(&cfg, configRowID).Error
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Config{}, err
	}

	cfg = m.seed
	if err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&cfg).Error; err != nil {
		return Config{}, err
	}
	if err := m.db.WithContext(ctx).Take(&cfg, configRowID).Error; err != nil {
		return Config{}, err
	}
	return cfg, nil
}
