package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stumperworks/stumper/backend/internal/achievements"
	"github.com/stumperworks/stumper/backend/internal/catalog"
	"github.com/stumperworks/stumper/backend/internal/daily"
	"github.com/stumperworks/stumper/backend/internal/guest"
	"github.com/stumperworks/stumper/backend/internal/progress"
)

const dateLayout = "2006-01-02"

type submitAnswerPayload struct {
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer"`
}

type progressPayload struct {
	CategoryID   int64 `json:"category_id"`
	CorrectCount int64 `json:"correct_count"`
	TotalCount   int64 `json:"total_count"`
	Points       int64 `json:"points"`
}

func toProgressPayload(row progress.UserProgress) progressPayload {
	return progressPayload{
		CategoryID:   row.CategoryID,
		CorrectCount: row.CorrectCount,
		TotalCount:   row.TotalCount,
		Points:       row.Points,
	}
}

type submitAnswerResponse struct {
	Accepted        bool            `json:"accepted"`
	CanonicalAnswer string          `json:"canonical_answer"`
	PointsAwarded   int             `json:"points_awarded"`
	HistoryID       string          `json:"history_id"`
	Progress        progressPayload `json:"progress"`
	Unlocked        []string        `json:"unlocked,omitempty"`
}

func (h *httpHandler) handleSubmitAnswer(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request submitAnswerPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.QuestionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	question, err := h.deps.Catalog.GetQuestion(c.Request.Context(), request.QuestionID)
	if errors.Is(err, catalog.ErrQuestionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("question load failed", zap.Int64("question_id", request.QuestionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "answer_failed"})
		return
	}

	overrides, err := h.deps.Catalog.ListOverrides(c.Request.Context(), question.ID)
	if err != nil {
		h.logger.Error("override list failed", zap.Int64("question_id", question.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "answer_failed"})
		return
	}

	accepted := h.deps.Checker.IsAnswerAccepted(request.Answer, question.CanonicalAnswer, overrides)
	points := 0
	if accepted {
		points = question.Value
	}

	outcome, err := h.deps.Recorder.RecordAnswer(c.Request.Context(), progress.RecordInput{
		UserID:     userID,
		QuestionID: question.ID,
		Correct:    accepted,
		Points:     points,
	})
	if errors.Is(err, progress.ErrQuestionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("answer record failed",
			zap.String("user_id", userID),
			zap.Int64("question_id", question.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "answer_failed"})
		return
	}

	unlocked := h.evaluateAnswerEvents(c, userID, accepted)

	c.JSON(http.StatusOK, submitAnswerResponse{
		Accepted:        accepted,
		CanonicalAnswer: question.CanonicalAnswer,
		PointsAwarded:   points,
		HistoryID:       outcome.HistoryID,
		Progress:        toProgressPayload(outcome.Progress),
		Unlocked:        unlocked,
	})
}

func (h *httpHandler) handleListProgress(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	rows, err := h.deps.Recorder.ListProgress(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("progress list failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "progress_failed"})
		return
	}
	totals, err := h.deps.Recorder.LifetimeTotals(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("totals failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "progress_failed"})
		return
	}
	streak, err := h.deps.Recorder.CurrentStreak(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("streak failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "progress_failed"})
		return
	}

	categories := make([]progressPayload, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, toProgressPayload(row))
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
		"totals": gin.H{
			"correct": totals.Correct,
			"total":   totals.Total,
			"points":  totals.Points,
		},
		"current_streak": streak,
	})
}

func (h *httpHandler) handleListAchievements(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	codes, err := h.deps.Evaluator.ListUnlocked(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("achievement list failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "achievements_failed"})
		return
	}
	if codes == nil {
		codes = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"unlocked": codes})
}

type dailyChallengeResponse struct {
	ChallengeID int64  `json:"challenge_id"`
	Date        string `json:"date"`
	QuestionID  int64  `json:"question_id"`
	Category    string `json:"category"`
	Question    string `json:"question"`
	Value       int    `json:"value"`
}

// handleGetDailyChallenge exposes the challenge without its answer; grading
// happens server-side on submission.
func (h *httpHandler) handleGetDailyChallenge(c *gin.Context) {
	date, ok := parseDateParam(c)
	if !ok {
		return
	}

	challenge, err := h.deps.Scheduler.GetChallenge(c.Request.Context(), date)
	if errors.Is(err, daily.ErrChallengeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("challenge load failed", zap.Time("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "challenge_failed"})
		return
	}

	question, err := h.deps.Catalog.GetQuestion(c.Request.Context(), challenge.QuestionID)
	if err != nil {
		h.logger.Error("challenge question load failed",
			zap.Int64("question_id", challenge.QuestionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "challenge_failed"})
		return
	}

	categoryName := ""
	if category, err := h.deps.Catalog.GetCategory(c.Request.Context(), question.CategoryID); err == nil {
		categoryName = category.Name
	}

	c.JSON(http.StatusOK, dailyChallengeResponse{
		ChallengeID: challenge.ID,
		Date:        challenge.Date.Format(dateLayout),
		QuestionID:  question.ID,
		Category:    categoryName,
		Question:    question.Text,
		Value:       question.Value,
	})
}

type dailyAnswerPayload struct {
	Answer string `json:"answer"`
}

func (h *httpHandler) handleSubmitDailyAnswer(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	date, ok := parseDateParam(c)
	if !ok {
		return
	}
	var request dailyAnswerPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	challenge, err := h.deps.Scheduler.GetChallenge(c.Request.Context(), date)
	if errors.Is(err, daily.ErrChallengeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("challenge load failed", zap.Time("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "daily_answer_failed"})
		return
	}

	question, err := h.deps.Catalog.GetQuestion(c.Request.Context(), challenge.QuestionID)
	if err != nil {
		h.logger.Error("challenge question load failed",
			zap.Int64("question_id", challenge.QuestionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "daily_answer_failed"})
		return
	}
	overrides, err := h.deps.Catalog.ListOverrides(c.Request.Context(), question.ID)
	if err != nil {
		h.logger.Error("override list failed", zap.Int64("question_id", question.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "daily_answer_failed"})
		return
	}

	correct := h.deps.Checker.IsAnswerAccepted(request.Answer, question.CanonicalAnswer, overrides)
	points := 0
	if correct {
		points = question.Value
	}

	// The completion row and the history row commit together, so the
	// client never sees a graded submission that earned no progress.
	if _, _, err := h.deps.Scheduler.CompleteChallenge(c.Request.Context(), daily.CompletionInput{
		UserID:      userID,
		ChallengeID: challenge.ID,
		QuestionID:  question.ID,
		Answer:      request.Answer,
		Correct:     correct,
		Points:      points,
	}); err != nil {
		if errors.Is(err, daily.ErrAlreadySubmitted) {
			c.JSON(http.StatusConflict, gin.H{"error": "already_submitted"})
			return
		}
		h.logger.Error("daily result failed",
			zap.String("user_id", userID),
			zap.Int64("challenge_id", challenge.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "daily_answer_failed"})
		return
	}

	unlocked := h.evaluateDailyEvents(c, userID)

	c.JSON(http.StatusOK, gin.H{
		"correct":          correct,
		"canonical_answer": question.CanonicalAnswer,
		"points_awarded":   points,
		"unlocked":         unlocked,
	})
}

type ensureDailyPayload struct {
	Date string `json:"date"`
}

func (h *httpHandler) handleEnsureDailyChallenge(c *gin.Context) {
	var request ensureDailyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(request.Date))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	challenge, err := h.deps.Scheduler.EnsureChallenge(c.Request.Context(), date)
	if errors.Is(err, daily.ErrNoEligibleQuestion) {
		c.JSON(http.StatusConflict, gin.H{"error": "no_eligible_question"})
		return
	}
	if err != nil {
		h.logger.Error("challenge ensure failed", zap.Time("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ensure_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge_id": challenge.ID,
		"date":         challenge.Date.Format(dateLayout),
		"question_id":  challenge.QuestionID,
	})
}

type addOverridePayload struct {
	Text   string `json:"text"`
	Origin string `json:"origin"`
}

func (h *httpHandler) handleAddOverride(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	questionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || questionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_question_id"})
		return
	}
	var request addOverridePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	origin := catalog.OverrideOrigin(request.Origin)
	if origin == "" {
		origin = catalog.OriginCurator
	}

	override, err := h.deps.Catalog.AddOverride(c.Request.Context(), questionID, request.Text, userID, origin)
	switch {
	case errors.Is(err, catalog.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "question_not_found"})
		return
	case errors.Is(err, catalog.ErrEmptyOverride):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_override"})
		return
	case errors.Is(err, catalog.ErrDuplicateOverride):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_override"})
		return
	case err != nil:
		h.logger.Error("override add failed", zap.Int64("question_id", questionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "override_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            override.ID,
		"question_id":   override.QuestionID,
		"accepted_text": override.AcceptedText,
		"origin":        string(override.Origin),
	})
}

// evaluateAnswerEvents runs achievement evaluation after an answer commit.
// Evaluation failures are logged and swallowed: the recorded answer stands.
func (h *httpHandler) evaluateAnswerEvents(c *gin.Context, userID string, correct bool) []string {
	ctx := c.Request.Context()
	var unlocked []string

	codes, err := h.deps.Evaluator.Evaluate(ctx, userID, achievements.Event{
		Type:    achievements.EventQuestionAnswered,
		Correct: correct,
	})
	if err != nil {
		h.logger.Warn("achievement evaluation failed", zap.String("user_id", userID), zap.Error(err))
	} else {
		unlocked = append(unlocked, codes...)
	}

	if correct {
		streak, err := h.deps.Recorder.CurrentStreak(ctx, userID)
		if err != nil {
			h.logger.Warn("streak lookup failed", zap.String("user_id", userID), zap.Error(err))
			return unlocked
		}
		codes, err := h.deps.Evaluator.Evaluate(ctx, userID, achievements.Event{
			Type:         achievements.EventStreakReached,
			Correct:      true,
			StreakLength: streak,
		})
		if err != nil {
			h.logger.Warn("achievement evaluation failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			unlocked = append(unlocked, codes...)
		}
	}
	return unlocked
}

// evaluateDailyEvents runs achievement evaluation after a daily submission.
func (h *httpHandler) evaluateDailyEvents(c *gin.Context, userID string) []string {
	ctx := c.Request.Context()

	completed, err := h.deps.Scheduler.CompletedCount(ctx, userID)
	if err != nil {
		h.logger.Warn("daily completed count failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	codes, err := h.deps.Evaluator.Evaluate(ctx, userID, achievements.Event{
		Type:           achievements.EventDailyCompleted,
		DailyCompleted: completed,
	})
	if err != nil {
		h.logger.Warn("achievement evaluation failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return codes
}

// evaluateQuietly runs achievement evaluation after a guest claim commit.
func (h *httpHandler) evaluateQuietly(c *gin.Context, userID string, result guest.ClaimResult) []string {
	var unlocked []string

	if len(result.HistoryIDs) > 0 {
		unlocked = append(unlocked, h.evaluateAnswerEvents(c, userID, result.CorrectAnswers > 0)...)
	}
	if result.ChallengeID != 0 {
		unlocked = append(unlocked, h.evaluateDailyEvents(c, userID)...)
	}
	return unlocked
}

func parseDateParam(c *gin.Context) (time.Time, bool) {
	date, err := time.Parse(dateLayout, c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return time.Time{}, false
	}
	return date, true
}
