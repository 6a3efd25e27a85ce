package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
	"github.com/aiwuxian/abyss-engine/internal/services"
	"github.com/aiwuxian/abyss-engine/internal/storage"
)

const (
	choiceA = "경찰서로 달려가 도움을 요청한다"
	choiceB = "지하 주차장에 숨어 밤을 기다린다"
)

// fixedGenerator 固定返回同一份回复
type fixedGenerator struct {
	raw string
}

func (g fixedGenerator) GenerateTurn(context.Context, services.TurnRequest) (string, error) {
	return g.raw, nil
}

func apiScenario() *models.Scenario {
	return &models.Scenario{
		ID:    "outbreak",
		Title: "서울 봉쇄",
		Stats: []models.StatDefinition{
			{ID: "cityChaos", DisplayName: "도시 혼란도", Min: 0, Max: 100, InitialValue: 40, Polarity: models.PolarityNegative},
		},
		Endings: []models.EndingArchetype{
			{ID: "time_up", Title: "봉쇄의 끝", TimeLimit: true},
		},
		InitialSurvivors: 4,
		MaxDays:          3,
		OpeningDilemma:   models.Dilemma{Prompt: "무엇부터 할까?", ChoiceA: choiceA, ChoiceB: choiceB},
	}
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.New(filepath.Join(t.TempDir(), "abyss.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	raw, err := json.Marshal(map[string]interface{}{
		"log":     "거리는 조용하다.",
		"dilemma": map[string]interface{}{"prompt": "이제 어떻게 할 것인가?", "choice_a": choiceA, "choice_b": choiceB},
		"statChanges": map[string]interface{}{
			"scenarioStats":     map[string]interface{}{"cityChaos": 5},
			"shouldAdvanceTime": false,
		},
	})
	require.NoError(t, err)

	sessions, err := services.NewSessionService(store, fixedGenerator{raw: string(raw)},
		[]*models.Scenario{apiScenario()}, models.DefaultEngineConfig(), zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	NewHandler(sessions, models.LLMConfig{}, zap.NewNop()).Register(r.Group("/api"))
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startSession(t *testing.T, r http.Handler) models.Session {
	t.Helper()
	w := do(r, http.MethodPost, "/api/sessions", gin.H{"scenario_id": "outbreak"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	return session
}

func turn(actionType, text string) gin.H {
	return gin.H{"action": gin.H{"type": actionType, "text": text}}
}

func TestListScenarios(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodGet, "/api/scenarios", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"outbreak"`)
}

func TestStartSession(t *testing.T) {
	r := setupRouter(t)

	session := startSession(t, r)
	assert.Equal(t, models.SessionActive, session.Status)
	assert.Equal(t, 40, session.State.Stats["cityChaos"])

	w := do(r, http.MethodPost, "/api/sessions", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/sessions", gin.H{"scenario_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlayTurn(t *testing.T) {
	r := setupRouter(t)
	session := startSession(t, r)
	path := "/api/sessions/" + session.ID

	w := do(r, http.MethodPost, path+"/turns", turn("choice", choiceA))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Turn)
	assert.Equal(t, 45, result.State.Stats["cityChaos"])
	assert.False(t, result.Fallback)

	w = do(r, http.MethodPost, path+"/turns", turn("teleport", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_action_type")

	w = do(r, http.MethodPost, path+"/turns", gin.H{"action": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 剩余两点行动力
	for i := 0; i < 2; i++ {
		w = do(r, http.MethodPost, path+"/turns", turn("talk", "민서에게 말을 건다"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w = do(r, http.MethodPost, path+"/turns", turn("choice", choiceA))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_action_points")
}

func TestQuoteAction(t *testing.T) {
	r := setupRouter(t)
	session := startSession(t, r)

	w := do(r, http.MethodPost, "/api/sessions/"+session.ID+"/quote", turn("explore", "지하 주차장에 숨어 기다린다"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var quote models.ActionQuote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, models.ActionExploration, quote.Type)
	assert.Equal(t, 1, quote.Cost)
	assert.True(t, quote.Affordable)
	require.NotNil(t, quote.Hint)
	assert.Equal(t, models.RiskLow, quote.Hint.Risk)
}

func TestUndoTurn(t *testing.T) {
	r := setupRouter(t)
	session := startSession(t, r)
	path := "/api/sessions/" + session.ID

	w := do(r, http.MethodPost, path+"/undo", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "nothing_to_undo")

	w = do(r, http.MethodPost, path+"/turns", turn("choice", choiceA))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, path+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var undone models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &undone))
	assert.Equal(t, 0, undone.State.Turn)
	assert.Equal(t, 40, undone.State.Stats["cityChaos"])
}

func TestSaves(t *testing.T) {
	r := setupRouter(t)
	session := startSession(t, r)
	path := "/api/sessions/" + session.ID

	w := do(r, http.MethodPost, path+"/saves", gin.H{"name": "시작"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var save models.SaveGame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &save))
	assert.Equal(t, "시작", save.Name)

	w = do(r, http.MethodPost, path+"/turns", turn("choice", choiceA))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, path+"/saves", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var saves []models.SaveGame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saves))
	require.Len(t, saves, 1)

	w = do(r, http.MethodPost, "/api/saves/"+save.ID+"/load", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var restored models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &restored))
	assert.Equal(t, session.ID, restored.ID)
	assert.Equal(t, 0, restored.State.Turn)

	w = do(r, http.MethodDelete, "/api/saves/"+save.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/api/saves/"+save.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/sessions/missing/saves", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrSessionNotFound, http.StatusNotFound},
		{models.ErrSaveNotFound, http.StatusNotFound},
		{models.ErrTurnInProgress, http.StatusConflict},
		{models.ErrStoryEnded, http.StatusGone},
		{models.ErrUnknownActionType, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
