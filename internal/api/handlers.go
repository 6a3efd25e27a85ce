package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aiwuxian/abyss-engine/internal/models"
	"github.com/aiwuxian/abyss-engine/internal/services"
)

type Handler struct {
	sessions      *services.SessionService
	defaultConfig models.LLMConfig
	logger        *zap.Logger
}

func NewHandler(sessions *services.SessionService, defaultConfig models.LLMConfig, logger *zap.Logger) *Handler {
	return &Handler{
		sessions:      sessions,
		defaultConfig: defaultConfig,
		logger:        logger.Named("Handler"),
	}
}

// Register 注册 /api 路由
func (h *Handler) Register(r gin.IRouter) {
	// 剧本
	r.GET("/scenarios", h.ListScenarios)

	// 会话
	r.POST("/sessions", h.StartSession)
	r.GET("/sessions/:id", h.GetSession)
	r.POST("/sessions/:id/turns", h.PlayTurn)
	r.POST("/sessions/:id/quote", h.QuoteAction)
	r.POST("/sessions/:id/undo", h.UndoTurn)

	// 存档
	r.POST("/sessions/:id/saves", h.CreateSave)
	r.GET("/sessions/:id/saves", h.ListSaves)
	r.POST("/saves/:save_id/load", h.LoadSave)
	r.DELETE("/saves/:save_id", h.DeleteSave)
}

// customGenerator 请求头带了自定义模型配置时使用临时的 LLMService
func (h *Handler) customGenerator(c *gin.Context) services.TurnGenerator {
	apiKey := c.GetHeader("X-Custom-API-Key")
	if apiKey == "" {
		return nil
	}

	config := h.defaultConfig
	config.APIKey = apiKey
	if base := c.GetHeader("X-Custom-API-Base"); base != "" {
		config.APIBase = base
	}
	if model := c.GetHeader("X-Custom-API-Model"); model != "" {
		config.Model = model
	}
	return services.NewLLMService(config, h.logger)
}

// statusOf 错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrScenarioNotFound),
		errors.Is(err, models.ErrSaveNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientActionPoints),
		errors.Is(err, models.ErrTurnInProgress),
		errors.Is(err, models.ErrNothingToUndo):
		return http.StatusConflict
	case errors.Is(err, models.ErrStoryEnded):
		return http.StatusGone
	case errors.Is(err, models.ErrUnknownActionType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// reasonOf 机器可读的错误原因
func reasonOf(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientActionPoints):
		return "insufficient_action_points"
	case errors.Is(err, models.ErrTurnInProgress):
		return "turn_in_progress"
	case errors.Is(err, models.ErrNothingToUndo):
		return "nothing_to_undo"
	case errors.Is(err, models.ErrStoryEnded):
		return "story_ended"
	case errors.Is(err, models.ErrUnknownActionType):
		return "unknown_action_type"
	default:
		return ""
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
	}
	body := gin.H{"error": err.Error()}
	if reason := reasonOf(err); reason != "" {
		body["reason"] = reason
	}
	c.JSON(status, body)
}

// ListScenarios 列出剧本
func (h *Handler) ListScenarios(c *gin.Context) {
	type summary struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		MaxDays     int    `json:"max_days,omitempty"`
	}

	scenarios := h.sessions.Scenarios()
	out := make([]summary, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, summary{ID: sc.ID, Title: sc.Title, Description: sc.Description, MaxDays: sc.MaxDays})
	}
	c.JSON(http.StatusOK, out)
}

// StartSession 开始会话
func (h *Handler) StartSession(c *gin.Context) {
	var req struct {
		ScenarioID string `json:"scenario_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	session, err := h.sessions.Start(c.Request.Context(), req.ScenarioID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetSession 获取会话
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

type actionRequest struct {
	Action struct {
		Type   string `json:"type" binding:"required"`
		Text   string `json:"text"`
		Target string `json:"target"`
	} `json:"action"`
}

func (r actionRequest) toAction() models.PlayerAction {
	return models.PlayerAction{
		Type:   models.ActionType(r.Action.Type),
		Text:   r.Action.Text,
		Target: r.Action.Target,
	}
}

// PlayTurn 执行行动
func (h *Handler) PlayTurn(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	var (
		result *models.TurnResult
		err    error
	)
	if generator := h.customGenerator(c); generator != nil {
		result, err = h.sessions.PlayTurnWith(c.Request.Context(), generator, c.Param("id"), req.toAction())
	} else {
		result, err = h.sessions.PlayTurn(c.Request.Context(), c.Param("id"), req.toAction())
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// QuoteAction 行动报价
func (h *Handler) QuoteAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	quote, err := h.sessions.Quote(c.Param("id"), req.toAction())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// UndoTurn 回退
func (h *Handler) UndoTurn(c *gin.Context) {
	session, err := h.sessions.Undo(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// CreateSave 存档
func (h *Handler) CreateSave(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	// 名称可选，空请求体也接受
	_ = c.ShouldBindJSON(&req)

	save, err := h.sessions.CreateSave(c.Param("id"), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, save)
}

// ListSaves 存档列表
func (h *Handler) ListSaves(c *gin.Context) {
	saves, err := h.sessions.ListSaves(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, saves)
}

// LoadSave 读档
func (h *Handler) LoadSave(c *gin.Context) {
	session, err := h.sessions.LoadSave(c.Param("save_id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// DeleteSave 删除存档
func (h *Handler) DeleteSave(c *gin.Context) {
	if err := h.sessions.DeleteSave(c.Param("save_id")); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}
