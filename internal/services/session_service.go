package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// maxHistory 可回退的最大回合数
const maxHistory = 20

// SessionStore 会话与存档的持久化
type SessionStore interface {
	CreateSession(session *models.Session) error
	UpdateSession(session *models.Session) error
	GetSession(id string) (*models.Session, error)
	CreateSaveGame(save *models.SaveGame) error
	GetSaveGame(id string) (*models.SaveGame, error)
	ListSaveGames(sessionID string) ([]models.SaveGame, error)
	DeleteSaveGame(id string) error
}

// SessionService 会话生命周期：开局、回合、回退、存读档
type SessionService struct {
	store     SessionStore
	generator TurnGenerator
	engines   map[string]*Engine
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	now func() time.Time
}

func NewSessionService(store SessionStore, generator TurnGenerator, scenarios []*models.Scenario,
	cfg models.EngineConfig, logger *zap.Logger) (*SessionService, error) {
	engines := make(map[string]*Engine, len(scenarios))
	for _, sc := range scenarios {
		if _, dup := engines[sc.ID]; dup {
			return nil, fmt.Errorf("%w: 重复的剧本ID %s", models.ErrInvalidScenario, sc.ID)
		}
		engine, err := NewEngine(sc, cfg, logger)
		if err != nil {
			return nil, err
		}
		engines[sc.ID] = engine
	}

	return &SessionService{
		store:     store,
		generator: generator,
		engines:   engines,
		logger:    logger.Named("SessionService"),
		inFlight:  make(map[string]struct{}),
		now:       time.Now,
	}, nil
}

// Scenarios 全部已加载剧本，按ID排序
func (ss *SessionService) Scenarios() []*models.Scenario {
	out := make([]*models.Scenario, 0, len(ss.engines))
	for _, e := range ss.engines {
		out = append(out, e.Scenario())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (ss *SessionService) engine(scenarioID string) (*Engine, error) {
	e, ok := ss.engines[scenarioID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrScenarioNotFound, scenarioID)
	}
	return e, nil
}

// Start 开始新会话
func (ss *SessionService) Start(_ context.Context, scenarioID string) (*models.Session, error) {
	engine, err := ss.engine(scenarioID)
	if err != nil {
		return nil, err
	}
	sc := engine.Scenario()

	state := engine.NewGame()
	dilemma := sc.OpeningDilemma
	if dilemma.Prompt == "" {
		dilemma = engine.FallbackDilemma()
	}

	now := ss.now()
	session := &models.Session{
		ID:         uuid.New().String(),
		ScenarioID: sc.ID,
		State:      state,
		History:    []models.TurnSnapshot{},
		Dilemma:    dilemma,
		Narrative:  []models.NarrativeLog{},
		Status:     models.SessionActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if sc.OpeningNarrative != "" {
		session.Narrative = append(session.Narrative, models.NarrativeLog{
			Turn:      0,
			Type:      "system",
			Content:   sc.OpeningNarrative,
			Timestamp: now,
		})
	}
	if session.StateHash, err = stateHash("", state); err != nil {
		return nil, err
	}

	if err := ss.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("保存会话失败: %w", err)
	}

	ss.logger.Info("会话已开始", zap.String("session_id", session.ID), zap.String("scenario_id", sc.ID))
	return session, nil
}

// Get 获取会话
func (ss *SessionService) Get(id string) (*models.Session, error) {
	return ss.store.GetSession(id)
}

// Quote 行动报价
func (ss *SessionService) Quote(id string, action models.PlayerAction) (*models.ActionQuote, error) {
	session, err := ss.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	engine, err := ss.engine(session.ScenarioID)
	if err != nil {
		return nil, err
	}
	if action.Type, err = engine.Ledger().Classify(string(action.Type)); err != nil {
		return nil, err
	}
	quote, err := engine.Quote(session.State, action)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// acquire 同一会话同时只允许一个回合在处理
func (ss *SessionService) acquire(id string) (func(), error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, busy := ss.inFlight[id]; busy {
		return nil, fmt.Errorf("%w: %s", models.ErrTurnInProgress, id)
	}
	ss.inFlight[id] = struct{}{}
	return func() {
		ss.mu.Lock()
		delete(ss.inFlight, id)
		ss.mu.Unlock()
	}, nil
}

// PlayTurn 执行玩家行动并推进一个回合
func (ss *SessionService) PlayTurn(ctx context.Context, id string, action models.PlayerAction) (*models.TurnResult, error) {
	return ss.PlayTurnWith(ctx, ss.generator, id, action)
}

// PlayTurnWith 使用指定的叙事生成器推进回合（请求自带模型配置时）
func (ss *SessionService) PlayTurnWith(ctx context.Context, generator TurnGenerator, id string, action models.PlayerAction) (*models.TurnResult, error) {
	release, err := ss.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := ss.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, fmt.Errorf("%w: %s", models.ErrStoryEnded, session.EndingID)
	}
	engine, err := ss.engine(session.ScenarioID)
	if err != nil {
		return nil, err
	}

	if action.Type, err = engine.Ledger().Classify(string(action.Type)); err != nil {
		return nil, err
	}
	// 先报价，负担不起就不去调用模型
	quote, err := engine.Quote(session.State, action)
	if err != nil {
		return nil, err
	}
	if !quote.Affordable {
		return nil, fmt.Errorf("%w: 需要 %d，剩余 %d", models.ErrInsufficientActionPoints, quote.Cost, quote.CurrentAP)
	}

	raw, err := generator.GenerateTurn(ctx, TurnRequest{
		Scenario: engine.Scenario(),
		State:    session.State,
		Zones:    zonesOf(engine, session.State),
		Action:   action,
		Dilemma:  session.Dilemma,
		Recent:   session.Narrative,
		Rules:    engine.Config().Sanitizer,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// 模型不可用时也走兜底抉择，不阻塞玩家
		ss.logger.Warn("叙事生成失败", zap.String("session_id", id), zap.Error(err))
		raw = ""
	}

	result, err := engine.ResolveTurn(ctx, session.State, action, raw)
	if err != nil {
		return nil, err
	}

	now := ss.now()
	if result.Fallback {
		session.Dilemma = result.Dilemma
		session.UpdatedAt = now
		if err := ss.store.UpdateSession(session); err != nil {
			return nil, fmt.Errorf("更新会话失败: %w", err)
		}
		return result, nil
	}

	session.History = append(session.History, models.TurnSnapshot{
		State:     session.State,
		Dilemma:   session.Dilemma,
		StateHash: session.StateHash,
	})
	if len(session.History) > maxHistory {
		session.History = session.History[len(session.History)-maxHistory:]
	}

	session.Narrative = append(session.Narrative,
		models.NarrativeLog{Turn: result.Turn, Type: "action", Content: action.Text, Timestamp: now},
		models.NarrativeLog{Turn: result.Turn, Type: "result", Content: result.Narrative, Timestamp: now},
	)
	if result.Ending != nil {
		session.Status = models.SessionEnded
		session.EndingID = result.Ending.ID
		session.Narrative = append(session.Narrative, models.NarrativeLog{
			Turn:      result.Turn,
			Type:      "system",
			Content:   fmt.Sprintf("【%s】\n\n%s", result.Ending.Title, result.Ending.Description),
			Timestamp: now,
		})
	}

	hash, err := stateHash(session.StateHash, result.State)
	if err != nil {
		return nil, err
	}
	session.State = result.State
	session.Dilemma = result.Dilemma
	session.StateHash = hash
	session.UpdatedAt = now

	if err := ss.store.UpdateSession(session); err != nil {
		return nil, fmt.Errorf("更新会话失败: %w", err)
	}

	ss.logger.Info("回合完成",
		zap.String("session_id", id),
		zap.Int("turn", result.Turn),
		zap.Int("day", result.State.Day),
		zap.Int("notices", len(result.Notices)),
	)
	return result, nil
}

// Undo 回退到上一个回合
func (ss *SessionService) Undo(id string) (*models.Session, error) {
	release, err := ss.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := ss.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if len(session.History) == 0 {
		return nil, models.ErrNothingToUndo
	}

	snapshot := session.History[len(session.History)-1]
	session.History = session.History[:len(session.History)-1]
	session.State = snapshot.State
	session.Dilemma = snapshot.Dilemma
	session.StateHash = snapshot.StateHash
	session.Status = models.SessionActive
	session.EndingID = ""

	kept := session.Narrative[:0]
	for _, entry := range session.Narrative {
		if entry.Turn <= snapshot.State.Turn {
			kept = append(kept, entry)
		}
	}
	session.Narrative = kept
	session.UpdatedAt = ss.now()

	if err := ss.store.UpdateSession(session); err != nil {
		return nil, fmt.Errorf("更新会话失败: %w", err)
	}

	ss.logger.Info("已回退", zap.String("session_id", id), zap.Int("turn", session.State.Turn))
	return session, nil
}

// CreateSave 创建存档
func (ss *SessionService) CreateSave(id, name string) (*models.SaveGame, error) {
	session, err := ss.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("%d일차 %d턴", session.State.Day, session.State.Turn)
	}

	save := &models.SaveGame{
		ID:        uuid.New().String(),
		Name:      name,
		SessionID: session.ID,
		Turn:      session.State.Turn,
		Day:       session.State.Day,
		Snapshot:  *session,
		CreatedAt: ss.now(),
	}
	if err := ss.store.CreateSaveGame(save); err != nil {
		return nil, fmt.Errorf("保存存档失败: %w", err)
	}
	return save, nil
}

// ListSaves 会话的全部存档
func (ss *SessionService) ListSaves(id string) ([]models.SaveGame, error) {
	if _, err := ss.store.GetSession(id); err != nil {
		return nil, err
	}
	return ss.store.ListSaveGames(id)
}

// DeleteSave 删除存档
func (ss *SessionService) DeleteSave(saveID string) error {
	if _, err := ss.store.GetSaveGame(saveID); err != nil {
		return err
	}
	return ss.store.DeleteSaveGame(saveID)
}

// LoadSave 读档：用存档快照覆盖原会话
func (ss *SessionService) LoadSave(saveID string) (*models.Session, error) {
	save, err := ss.store.GetSaveGame(saveID)
	if err != nil {
		return nil, err
	}

	release, err := ss.acquire(save.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := ss.engine(save.Snapshot.ScenarioID); err != nil {
		return nil, err
	}

	session := save.Snapshot
	session.ID = save.SessionID
	session.UpdatedAt = ss.now()
	if err := ss.store.UpdateSession(&session); err != nil {
		return nil, fmt.Errorf("更新会话失败: %w", err)
	}

	ss.logger.Info("已读档", zap.String("session_id", session.ID), zap.String("save_id", saveID))
	return &session, nil
}

// zonesOf 当前各属性所处区间
func zonesOf(engine *Engine, state models.GameState) map[string]models.Zone {
	zones := make(map[string]models.Zone, len(engine.Scenario().Stats))
	for _, d := range engine.Scenario().Stats {
		zones[d.ID] = engine.Amplifier().Classify(d, state.Stats[d.ID])
	}
	return zones
}

// stateHash 链式状态哈希：上一个哈希 + 规范化的状态 JSON
func stateHash(previous string, state models.GameState) (string, error) {
	payload, err := json.Marshal(struct {
		Previous string           `json:"_ph"`
		State    models.GameState `json:"state"`
	}{previous, state})
	if err != nil {
		return "", fmt.Errorf("计算状态哈希失败: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
