package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stumperworks/stumper/backend/internal/guest"
)

type createSessionPayload struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *httpHandler) handleCreateGuestSession(c *gin.Context) {
	var request createSessionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	payload, err := decodeGuestPayload(guest.Kind(request.Kind), request.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	created, err := h.deps.Guests.CreateSession(c.Request.Context(), guest.Kind(request.Kind), payload)
	if errors.Is(err, guest.ErrUnknownKind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_kind"})
		return
	}
	if err != nil {
		h.logger.Error("guest session creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_create_failed"})
		return
	}

	// The handoff token lets the client later claim the session without
	// storing the raw id anywhere tamperable.
	token, _, err := h.deps.GuestTokens.Issue(c.Request.Context(), created.ID)
	if err != nil {
		h.logger.Error("guest handoff token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_create_failed"})
		return
	}

	c.JSON(http.StatusOK, createSessionResponse{
		SessionID: created.ID,
		Token:     token,
		ExpiresAt: created.ExpiresAt,
	})
}

type sessionResponse struct {
	SessionID string          `json:"session_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (h *httpHandler) handleGetGuestSession(c *gin.Context) {
	session, err := h.deps.Guests.GetSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, guest.ErrSessionUnusable) {
		// Missing, expired, and claimed all answer identically.
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("guest session load failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_load_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		SessionID: session.ID,
		Kind:      string(session.Kind),
		Payload:   json.RawMessage(session.PayloadJSON),
		ExpiresAt: session.ExpiresAt,
	})
}

type checkLimitPayload struct {
	Kind         string `json:"kind"`
	CurrentCount int    `json:"current_count"`
}

func (h *httpHandler) handleCheckGuestLimit(c *gin.Context) {
	var request checkLimitPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	verdict, err := h.deps.Guests.CheckLimit(c.Request.Context(), guest.Kind(request.Kind), request.CurrentCount)
	if errors.Is(err, guest.ErrUnknownKind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_kind"})
		return
	}
	if err != nil {
		h.logger.Error("guest limit check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "limit_check_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"allowed": verdict.Allowed, "reason": verdict.Reason})
}

type claimPayload struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

type claimResponse struct {
	SessionID          string   `json:"session_id"`
	Kind               string   `json:"kind"`
	HistoryIDs         []string `json:"history_ids,omitempty"`
	GameID             string   `json:"game_id,omitempty"`
	ChallengeID        int64    `json:"challenge_id,omitempty"`
	RedirectCategoryID int64    `json:"redirect_category_id,omitempty"`
}

func (h *httpHandler) handleClaimGuestSession(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request claimPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	sessionID := strings.TrimSpace(request.SessionID)
	if sessionID == "" && request.Token != "" {
		subject, err := h.deps.GuestTokens.Validate(request.Token)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		sessionID = subject
	}

	result, err := h.deps.Claimer.Claim(c.Request.Context(), sessionID, userID)
	if errors.Is(err, guest.ErrSessionUnusable) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	var migration *guest.MigrationError
	if errors.As(err, &migration) {
		h.logger.Error("guest claim migration failed", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim_failed"})
		return
	}
	if err != nil {
		h.logger.Error("guest claim failed", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim_failed"})
		return
	}

	// Achievement evaluation is best-effort: a committed claim never fails
	// because evaluation errored.
	unlocked := h.evaluateQuietly(c, userID, result)

	response := claimResponse{
		SessionID:          result.SessionID,
		Kind:               string(result.Kind),
		HistoryIDs:         result.HistoryIDs,
		GameID:             result.GameID,
		ChallengeID:        result.ChallengeID,
		RedirectCategoryID: result.RedirectCategoryID,
	}
	c.JSON(http.StatusOK, gin.H{"claim": response, "unlocked": unlocked})
}

func decodeGuestPayload(kind guest.Kind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch kind {
	case guest.KindSingleQuestion:
		var payload guest.SingleQuestionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case guest.KindBoardGame:
		var payload guest.BoardPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case guest.KindDailyAttempt:
		var payload guest.DailyAttemptPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	default:
		// Kind validation happens in the manager; pass the raw payload.
		return raw, nil
	}
}
