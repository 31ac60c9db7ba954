package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/user/tvtracker/internal/model"
	"github.com/user/tvtracker/internal/repository"
	"github.com/user/tvtracker/internal/service"
	"github.com/user/tvtracker/internal/utils"
)

// DiscoveryController 抓取进度查询和跳页
type DiscoveryController interface {
	Status() service.DiscoveryStatus
	SkipPage(ctx context.Context) (bool, error)
}

// PolicyReporter 错误策略查询
type PolicyReporter interface {
	Status() service.PolicyStatus
}

// CreditResolver 角色查询，本地没有时从上游补全
type CreditResolver interface {
	ShowCredits(ctx context.Context, showID uint) ([]model.Credit, error)
	ActorCredits(ctx context.Context, actorID uint) ([]model.Credit, error)
}

// StatsProvider 入库数据统计
type StatsProvider interface {
	Stats(ctx context.Context) (*repository.Stats, error)
}

// Handler HTTP 处理器
type Handler struct {
	Discovery DiscoveryController
	Collector PolicyReporter
	Credits   CreditResolver
	Stats     StatsProvider
	Logger    hclog.Logger
}

// NewHandler 创建处理器
func NewHandler(discovery DiscoveryController, collector PolicyReporter, credits CreditResolver, stats StatsProvider, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		Discovery: discovery,
		Collector: collector,
		Credits:   credits,
		Stats:     stats,
		Logger:    logger,
	}
}

// DiscoveryStatus 抓取进度、错误策略和入库统计
func (h *Handler) DiscoveryStatus(c *gin.Context) {
	data := gin.H{
		"discovery": h.Discovery.Status(),
		"policy":    h.Collector.Status(),
	}
	stats, err := h.Stats.Stats(c.Request.Context())
	if err != nil {
		h.Logger.Warn("统计入库数据失败", "error", err)
	} else {
		data["stats"] = stats
	}
	utils.Success(c, data)
}

// SkipPage 手动跳过当前页
func (h *Handler) SkipPage(c *gin.Context) {
	skipped, err := h.Discovery.SkipPage(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	msg := "已跳过当前页"
	if !skipped {
		msg = "没有可跳过的页面"
	}
	utils.SuccessWithMessage(c, msg, gin.H{
		"skipped":   skipped,
		"discovery": h.Discovery.Status(),
	})
}

// ShowCredits 剧集角色列表
func (h *Handler) ShowCredits(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	credits, err := h.Credits.ShowCredits(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Success(c, credits)
}

// ActorCredits 演员角色列表
func (h *Handler) ActorCredits(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	credits, err := h.Credits.ActorCredits(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Success(c, credits)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.BadRequest(c, "无效的 ID")
		return 0, false
	}
	return uint(id), true
}

// respondError 按错误类型映射状态码
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, service.ErrNotFound):
		utils.NotFound(c, "")
	case errors.Is(err, service.ErrRateLimited), errors.Is(err, service.ErrStoreUnavailable):
		utils.ServiceUnavailable(c, err.Error())
	case errors.Is(err, service.ErrUpstreamUnavailable), errors.Is(err, service.ErrUpstreamMalformed):
		utils.BadGateway(c, err.Error())
	default:
		utils.InternalServerError(c, "")
	}
}
