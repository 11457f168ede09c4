package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/stumperworks/stumper/backend/internal/achievements"
	"github.com/stumperworks/stumper/backend/internal/answers"
	"github.com/stumperworks/stumper/backend/internal/catalog"
	"github.com/stumperworks/stumper/backend/internal/daily"
	"github.com/stumperworks/stumper/backend/internal/guest"
	"github.com/stumperworks/stumper/backend/internal/progress"
)

const userIDContextKey = "stumper_user_id"

var (
	errMissingCatalog   = errors.New("catalog store dependency required")
	errMissingChecker   = errors.New("answer checker dependency required")
	errMissingRecorder  = errors.New("progress recorder dependency required")
	errMissingGuests    = errors.New("guest manager dependency required")
	errMissingClaimer   = errors.New("guest claimer dependency required")
	errMissingEvaluator = errors.New("achievement evaluator dependency required")
	errMissingScheduler = errors.New("daily scheduler dependency required")
	errMissingTokens    = errors.New("token manager dependency required")

	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates bearer tokens for one audience.
type TokenManager interface {
	Issue(ctx context.Context, subject string) (string, int64, error)
	Validate(token string) (string, error)
}

// Dependencies wires the engine services into the transport.
type Dependencies struct {
	Catalog     *catalog.Store
	Checker     *answers.Checker
	Recorder    *progress.Recorder
	Guests      *guest.Manager
	Claimer     *guest.Claimer
	Evaluator   *achievements.Evaluator
	Scheduler   *daily.Scheduler
	UserTokens  TokenManager
	GuestTokens TokenManager
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin router over the engine contracts.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errMissingCatalog
	case deps.Checker == nil:
		return nil, errMissingChecker
	case deps.Recorder == nil:
		return nil, errMissingRecorder
	case deps.Guests == nil:
		return nil, errMissingGuests
	case deps.Claimer == nil:
		return nil, errMissingClaimer
	case deps.Evaluator == nil:
		return nil, errMissingEvaluator
	case deps.Scheduler == nil:
		return nil, errMissingScheduler
	case deps.UserTokens == nil || deps.GuestTokens == nil:
		return nil, errMissingTokens
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{deps: deps, logger: logger}

	router.POST("/auth/token", handler.handleIssueToken)
	router.POST("/guest/sessions", handler.handleCreateGuestSession)
	router.GET("/guest/sessions/:id", handler.handleGetGuestSession)
	router.POST("/guest/limits/check", handler.handleCheckGuestLimit)
	router.GET("/daily/:date", handler.handleGetDailyChallenge)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/guest/claim", handler.handleClaimGuestSession)
	protected.POST("/answers", handler.handleSubmitAnswer)
	protected.GET("/progress", handler.handleListProgress)
	protected.GET("/achievements", handler.handleListAchievements)
	protected.POST("/daily/:date/answer", handler.handleSubmitDailyAnswer)
	protected.POST("/admin/daily/ensure", handler.handleEnsureDailyChallenge)
	protected.POST("/admin/questions/:id/overrides", handler.handleAddOverride)

	return router, nil
}

type httpHandler struct {
	deps   Dependencies
	logger *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.deps.UserTokens.Validate(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

type tokenRequestPayload struct {
	UserID string `json:"user_id"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// handleIssueToken mints a bearer token for a caller-supplied user id.
// Production identity verification lives in front of this service; the
// engine only needs a stable subject.
func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.deps.UserTokens.Issue(c.Request.Context(), strings.TrimSpace(request.UserID))
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{AccessToken: token, ExpiresIn: expiresIn, TokenType: "Bearer"})
}
