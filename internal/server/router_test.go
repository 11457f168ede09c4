package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stumperworks/stumper/backend/internal/achievements"
	"github.com/stumperworks/stumper/backend/internal/answers"
	"github.com/stumperworks/stumper/backend/internal/auth"
	"github.com/stumperworks/stumper/backend/internal/catalog"
	"github.com/stumperworks/stumper/backend/internal/daily"
	"github.com/stumperworks/stumper/backend/internal/database"
	"github.com/stumperworks/stumper/backend/internal/guest"
	"github.com/stumperworks/stumper/backend/internal/progress"
)

const testSigningSecret = "router-test-secret"

type testEnvironment struct {
	handler http.Handler
	deps    Dependencies
	db      *gorm.DB
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:stumper_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	catalogStore, err := catalog.NewStore(catalog.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	recorder, err := progress.NewRecorder(progress.RecorderConfig{
		Database:   db,
		IDProvider: progress.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct recorder: %v", err)
	}
	guests, err := guest.NewManager(guest.ManagerConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	claimer, err := guest.NewClaimer(guest.ClaimerConfig{
		Database:   db,
		Recorder:   recorder,
		IDProvider: progress.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct claimer: %v", err)
	}
	evaluator, err := achievements.NewEvaluator(achievements.EvaluatorConfig{
		Database: db,
		Stats:    recorder,
	})
	if err != nil {
		t.Fatalf("failed to construct evaluator: %v", err)
	}
	scheduler, err := daily.NewScheduler(daily.SchedulerConfig{Database: db, Recorder: recorder})
	if err != nil {
		t.Fatalf("failed to construct scheduler: %v", err)
	}

	deps := Dependencies{
		Catalog:   catalogStore,
		Checker:   answers.NewChecker(answers.CheckerConfig{}),
		Recorder:  recorder,
		Guests:    guests,
		Claimer:   claimer,
		Evaluator: evaluator,
		Scheduler: scheduler,
		UserTokens: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(testSigningSecret),
			Issuer:        "stumper-auth",
			Audience:      "stumper-api",
		}),
		GuestTokens: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(testSigningSecret),
			Issuer:        "stumper-auth",
			Audience:      "stumper-guest",
		}),
	}

	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testEnvironment{handler: handler, deps: deps, db: db}
}

func (env *testEnvironment) seedQuestion(t *testing.T, categoryName, answer string, value int, round catalog.Round) *catalog.Question {
	t.Helper()
	db := env.db
	category := catalog.Category{Name: categoryName}
	if err := db.Where("name = ?", categoryName).FirstOrCreate(&category).Error; err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}
	question := catalog.Question{
		CategoryID:      category.ID,
		Text:            "seeded question",
		CanonicalAnswer: answer,
		Value:           value,
		Round:           round,
		EpisodeID:       fmt.Sprintf("ep-%s-%d", categoryName, time.Now().UnixNano()),
	}
	if err := db.Create(&question).Error; err != nil {
		t.Fatalf("failed to seed question: %v", err)
	}
	return &question
}

func (env *testEnvironment) issueUserToken(t *testing.T, userID string) string {
	t.Helper()
	response := env.do(t, http.MethodPost, "/auth/token", "", map[string]any{"user_id": userID})
	if response.Code != http.StatusOK {
		t.Fatalf("token issue failed: %d %s", response.Code, response.Body.String())
	}
	var payload tokenResponsePayload
	if err := json.Unmarshal(response.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	return payload.AccessToken
}

func (env *testEnvironment) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnvironment(t)

	response := env.do(t, http.MethodGet, "/progress", "", nil)
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", response.Code)
	}

	response = env.do(t, http.MethodGet, "/progress", "not-a-real-token", nil)
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", response.Code)
	}
}

func TestSubmitAnswerAcceptsPhrasedAnswer(t *testing.T) {
	env := newTestEnvironment(t)
	question := env.seedQuestion(t, "Presidents", "Abraham Lincoln", 400, catalog.RoundFirst)
	token := env.issueUserToken(t, "user-1")

	response := env.do(t, http.MethodPost, "/answers", token, map[string]any{
		"question_id": question.ID,
		"answer":      "Who is Abraham Lincoln?",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", response.Code, response.Body.String())
	}

	var payload submitAnswerResponse
	if err := json.Unmarshal(response.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.Accepted {
		t.Fatalf("phrased answer should be accepted")
	}
	if payload.PointsAwarded != 400 {
		t.Fatalf("expected full value awarded, got %d", payload.PointsAwarded)
	}
	if payload.Progress.CorrectCount != 1 || payload.Progress.TotalCount != 1 {
		t.Fatalf("unexpected aggregate: %+v", payload.Progress)
	}

	found := false
	for _, code := range payload.Unlocked {
		if code == achievements.CodeFirstCorrect {
			found = true
		}
	}
	if !found {
		t.Fatalf("first correct answer should unlock %s, got %v", achievements.CodeFirstCorrect, payload.Unlocked)
	}
}

func TestSubmitAnswerRejectsWrongAnswerWithoutPoints(t *testing.T) {
	env := newTestEnvironment(t)
	question := env.seedQuestion(t, "Presidents", "Abraham Lincoln", 400, catalog.RoundFirst)
	token := env.issueUserToken(t, "user-2")

	response := env.do(t, http.MethodPost, "/answers", token, map[string]any{
		"question_id": question.ID,
		"answer":      "George Washington",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.Code)
	}
	var payload submitAnswerResponse
	if err := json.Unmarshal(response.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Accepted {
		t.Fatalf("wrong answer must not be accepted")
	}
	if payload.PointsAwarded != 0 {
		t.Fatalf("wrong answer must award no points, got %d", payload.PointsAwarded)
	}
	if payload.Progress.TotalCount != 1 || payload.Progress.CorrectCount != 0 {
		t.Fatalf("wrong answer still counts toward totals: %+v", payload.Progress)
	}
}

func TestSubmitAnswerUnknownQuestion(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueUserToken(t, "user-3")

	response := env.do(t, http.MethodPost, "/answers", token, map[string]any{
		"question_id": 424242,
		"answer":      "anything",
	})
	if response.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown question, got %d", response.Code)
	}
}

func TestGuestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnvironment(t)
	question := env.seedQuestion(t, "Rivers", "The Nile", 200, catalog.RoundFirst)

	created := env.do(t, http.MethodPost, "/guest/sessions", "", map[string]any{
		"kind": "single_question",
		"payload": map[string]any{
			"question_id": question.ID,
			"answered":    true,
			"correct":     true,
			"points":      200,
		},
	})
	if created.Code != http.StatusOK {
		t.Fatalf("session create failed: %d %s", created.Code, created.Body.String())
	}
	var session createSessionResponse
	if err := json.Unmarshal(created.Body.Bytes(), &session); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if session.SessionID == "" || session.Token == "" {
		t.Fatalf("expected session id and handoff token: %+v", session)
	}

	fetched := env.do(t, http.MethodGet, "/guest/sessions/"+session.SessionID, "", nil)
	if fetched.Code != http.StatusOK {
		t.Fatalf("session fetch failed: %d", fetched.Code)
	}

	token := env.issueUserToken(t, "claimer-1")
	claimed := env.do(t, http.MethodPost, "/guest/claim", token, map[string]any{"token": session.Token})
	if claimed.Code != http.StatusOK {
		t.Fatalf("claim failed: %d %s", claimed.Code, claimed.Body.String())
	}

	// The claimed session is now uniformly gone from every surface.
	refetched := env.do(t, http.MethodGet, "/guest/sessions/"+session.SessionID, "", nil)
	if refetched.Code != http.StatusNotFound {
		t.Fatalf("claimed session must read as not found, got %d", refetched.Code)
	}
	reclaimed := env.do(t, http.MethodPost, "/guest/claim", token, map[string]any{"session_id": session.SessionID})
	if reclaimed.Code != http.StatusNotFound {
		t.Fatalf("second claim must fail uniformly, got %d", reclaimed.Code)
	}

	progressResponse := env.do(t, http.MethodGet, "/progress", token, nil)
	if progressResponse.Code != http.StatusOK {
		t.Fatalf("progress fetch failed: %d", progressResponse.Code)
	}
	var progressPayload struct {
		Totals struct {
			Correct int64 `json:"correct"`
			Points  int64 `json:"points"`
		} `json:"totals"`
	}
	if err := json.Unmarshal(progressResponse.Body.Bytes(), &progressPayload); err != nil {
		t.Fatalf("failed to decode progress: %v", err)
	}
	if progressPayload.Totals.Correct != 1 || progressPayload.Totals.Points != 200 {
		t.Fatalf("migrated outcome missing from progress: %+v", progressPayload.Totals)
	}
}

func TestGuestLimitCheckOverHTTP(t *testing.T) {
	env := newTestEnvironment(t)

	allowed := env.do(t, http.MethodPost, "/guest/limits/check", "", map[string]any{
		"kind":          "board_game",
		"current_count": 0,
	})
	if allowed.Code != http.StatusOK {
		t.Fatalf("limit check failed: %d", allowed.Code)
	}
	var verdict struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(allowed.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("failed to decode verdict: %v", err)
	}
	if !verdict.Allowed {
		t.Fatalf("first board game should be allowed")
	}

	denied := env.do(t, http.MethodPost, "/guest/limits/check", "", map[string]any{
		"kind":          "board_game",
		"current_count": 1,
	})
	if err := json.Unmarshal(denied.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("failed to decode verdict: %v", err)
	}
	if verdict.Allowed || verdict.Reason == "" {
		t.Fatalf("exhausted quota should be denied with a reason: %+v", verdict)
	}
}

func TestDailyChallengeFlowOverHTTP(t *testing.T) {
	env := newTestEnvironment(t)
	env.seedQuestion(t, "Final Frontier", "Jupiter", 1000, catalog.RoundFinal)
	token := env.issueUserToken(t, "daily-user")

	ensured := env.do(t, http.MethodPost, "/admin/daily/ensure", token, map[string]any{"date": "2026-08-29"})
	if ensured.Code != http.StatusOK {
		t.Fatalf("ensure failed: %d %s", ensured.Code, ensured.Body.String())
	}

	fetched := env.do(t, http.MethodGet, "/daily/2026-08-29", "", nil)
	if fetched.Code != http.StatusOK {
		t.Fatalf("daily fetch failed: %d", fetched.Code)
	}
	var challenge dailyChallengeResponse
	if err := json.Unmarshal(fetched.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("failed to decode challenge: %v", err)
	}
	if challenge.Date != "2026-08-29" || challenge.QuestionID == 0 {
		t.Fatalf("unexpected challenge payload: %+v", challenge)
	}
	if bytes.Contains(fetched.Body.Bytes(), []byte("Jupiter")) {
		t.Fatalf("daily challenge payload must not leak the answer")
	}

	answered := env.do(t, http.MethodPost, "/daily/2026-08-29/answer", token, map[string]any{"answer": "what is jupiter"})
	if answered.Code != http.StatusOK {
		t.Fatalf("daily answer failed: %d %s", answered.Code, answered.Body.String())
	}
	var result struct {
		Correct  bool     `json:"correct"`
		Unlocked []string `json:"unlocked"`
	}
	if err := json.Unmarshal(answered.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Correct {
		t.Fatalf("phrased daily answer should be correct")
	}
	foundDaily := false
	for _, code := range result.Unlocked {
		if code == achievements.CodeFirstDaily {
			foundDaily = true
		}
	}
	if !foundDaily {
		t.Fatalf("first daily completion should unlock %s, got %v", achievements.CodeFirstDaily, result.Unlocked)
	}

	repeated := env.do(t, http.MethodPost, "/daily/2026-08-29/answer", token, map[string]any{"answer": "jupiter"})
	if repeated.Code != http.StatusConflict {
		t.Fatalf("second daily submission must conflict, got %d", repeated.Code)
	}

	missing := env.do(t, http.MethodGet, "/daily/2030-01-01", "", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("unscheduled date must be 404, got %d", missing.Code)
	}
}

func TestOverrideEndpointsOverHTTP(t *testing.T) {
	env := newTestEnvironment(t)
	question := env.seedQuestion(t, "Literature", "Mark Twain", 600, catalog.RoundFirst)
	token := env.issueUserToken(t, "curator-1")
	path := fmt.Sprintf("/admin/questions/%d/overrides", question.ID)

	added := env.do(t, http.MethodPost, path, token, map[string]any{"text": "Samuel Clemens", "origin": "curator"})
	if added.Code != http.StatusOK {
		t.Fatalf("override add failed: %d %s", added.Code, added.Body.String())
	}

	duplicated := env.do(t, http.MethodPost, path, token, map[string]any{"text": "samuel  clemens"})
	if duplicated.Code != http.StatusConflict {
		t.Fatalf("normalized duplicate must conflict, got %d", duplicated.Code)
	}

	empty := env.do(t, http.MethodPost, path, token, map[string]any{"text": "  !!! "})
	if empty.Code != http.StatusBadRequest {
		t.Fatalf("empty override must be rejected, got %d", empty.Code)
	}

	answered := env.do(t, http.MethodPost, "/answers", token, map[string]any{
		"question_id": question.ID,
		"answer":      "who is samuel clemens",
	})
	var payload submitAnswerResponse
	if err := json.Unmarshal(answered.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.Accepted {
		t.Fatalf("override phrasing should now be accepted")
	}
}
