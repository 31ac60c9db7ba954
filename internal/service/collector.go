package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/user/tvtracker/internal/logging"
)

const (
	DefaultErrorThreshold = 3
	DefaultCooldown       = 2 * time.Minute
	DefaultInterval       = 10 * time.Second
)

// Engine 由调度器驱动的抓取引擎
type Engine interface {
	Discover(ctx context.Context) (*StepResult, error)
	SkipPage(ctx context.Context) (bool, error)
	SeedGenres(ctx context.Context) (int, error)
}

// Gate 每次调度前检查是否允许抓取
type Gate interface {
	Open(ctx context.Context) (bool, error)
}

// Sizer 查询数据库当前大小
type Sizer interface {
	SizeMB(ctx context.Context) (int64, error)
}

// CapacityGate 抓取开关打开且数据库未超过容量上限时放行。
// 数据库大小每次实时查询，不做缓存
type CapacityGate struct {
	enabled bool
	maxMB   int64
	sizer   Sizer
}

// NewCapacityGate 创建容量检查
func NewCapacityGate(enabled bool, maxMB int64, sizer Sizer) *CapacityGate {
	return &CapacityGate{enabled: enabled, maxMB: maxMB, sizer: sizer}
}

// Open 实现 Gate
func (g *CapacityGate) Open(ctx context.Context) (bool, error) {
	if !g.enabled {
		return false, nil
	}
	size, err := g.sizer.SizeMB(ctx)
	if err != nil {
		return false, storeError("查询数据库大小失败", err)
	}
	return size < g.maxMB, nil
}

// PolicyStatus 错误策略快照
type PolicyStatus struct {
	ConsecutiveErrors int        `json:"consecutive_errors"`
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty"`
}

// ErrorPolicy 连续失败计数和冷却窗口
type ErrorPolicy struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	errors        int
	cooldownUntil time.Time
	snapshot      atomic.Pointer[PolicyStatus]
}

// NewErrorPolicy 创建错误策略，now 为 nil 时使用系统时间
func NewErrorPolicy(threshold int, cooldown time.Duration, now func() time.Time) *ErrorPolicy {
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	if now == nil {
		now = time.Now
	}
	p := &ErrorPolicy{threshold: threshold, cooldown: cooldown, now: now}
	p.publish()
	return p
}

// Admit 判断本次调度能否执行。冷却结束时清零错误计数
func (p *ErrorPolicy) Admit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cooldownUntil.IsZero() {
		return true
	}
	if p.now().After(p.cooldownUntil) {
		p.errors = 0
		p.cooldownUntil = time.Time{}
		p.publish()
		return true
	}
	return false
}

// Success 记录一次成功
func (p *ErrorPolicy) Success() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = 0
	p.publish()
}

// Failure 记录一次失败，达到阈值时进入冷却并返回 true
func (p *ErrorPolicy) Failure() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.errors++
	tripped := p.errors >= p.threshold && p.cooldownUntil.IsZero()
	if tripped {
		p.cooldownUntil = p.now().Add(p.cooldown)
	}
	p.publish()
	return tripped
}

// Status 无锁读取
func (p *ErrorPolicy) Status() PolicyStatus {
	return *p.snapshot.Load()
}

// publish 调用方需持有 mu
func (p *ErrorPolicy) publish() {
	s := PolicyStatus{ConsecutiveErrors: p.errors}
	if !p.cooldownUntil.IsZero() {
		until := p.cooldownUntil
		s.CooldownUntil = &until
	}
	p.snapshot.Store(&s)
}

// TickOutcome 一次调度的结果
type TickOutcome string

const (
	TickRan         TickOutcome = "ran"
	TickCoolingDown TickOutcome = "cooling_down"
	TickGateClosed  TickOutcome = "gate_closed"
	TickFailed      TickOutcome = "failed"
	TickTripped     TickOutcome = "tripped"
)

// Collector 定时驱动抓取引擎，同一时间只有一次抓取在执行
type Collector struct {
	mu       sync.Mutex
	engine   Engine
	gate     Gate
	policy   *ErrorPolicy
	interval time.Duration
	logger   hclog.Logger

	cron   *cron.Cron
	seeded chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCollector 创建调度器
func NewCollector(engine Engine, gate Gate, policy *ErrorPolicy, interval time.Duration, logger hclog.Logger) *Collector {
	if interval < time.Second {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Collector{
		engine:   engine,
		gate:     gate,
		policy:   policy,
		interval: interval,
		logger:   logger,
	}
}

// Tick 执行一次调度
func (c *Collector) Tick(ctx context.Context) (TickOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.policy.Admit() {
		c.logger.Debug("冷却中，跳过本次抓取", "until", c.policy.Status().CooldownUntil)
		return TickCoolingDown, nil
	}

	open, err := c.gate.Open(ctx)
	if err == nil && !open {
		c.logger.Debug("抓取未开启或数据库已达容量上限")
		return TickGateClosed, nil
	}
	if err == nil {
		_, err = c.engine.Discover(ctx)
	}
	if err == nil {
		c.policy.Success()
		return TickRan, nil
	}

	if !c.policy.Failure() {
		c.logger.Warn("抓取失败", "consecutive_errors", c.policy.Status().ConsecutiveErrors, "error", err)
		return TickFailed, err
	}

	c.logger.Error("连续抓取失败，进入冷却并跳过当前页",
		"consecutive_errors", c.policy.Status().ConsecutiveErrors,
		"until", c.policy.Status().CooldownUntil,
		"error", err)
	if _, serr := c.engine.SkipPage(ctx); serr != nil {
		c.logger.Error("跳过页面失败", "error", serr)
	}
	return TickTripped, err
}

// Start 在后台同步剧集类型，完成后开始定时抓取。立即返回
func (c *Collector) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.seeded = make(chan struct{})

	cl := logging.CronLogger{Logger: c.logger}
	c.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.cron.Schedule(cron.Every(c.interval), cron.FuncJob(func() {
		c.Tick(c.ctx)
	}))

	go func() {
		defer close(c.seeded)
		if _, err := c.engine.SeedGenres(c.ctx); err != nil {
			c.logger.Error("剧集类型同步失败", "error", err)
		}
		if c.ctx.Err() != nil {
			return
		}
		c.cron.Start()
		c.logger.Info("定时抓取已启动", "interval", c.interval)
	}()
}

// Stop 停止调度并等待正在执行的抓取结束，超过 ctx 期限则直接取消。
// 类型同步尚未完成时直接取消同步
func (c *Collector) Stop(ctx context.Context) {
	if c.cron == nil {
		return
	}
	select {
	case <-c.seeded:
	default:
		c.cancel()
	}
	select {
	case <-c.seeded:
	case <-ctx.Done():
	}

	select {
	case <-c.cron.Stop().Done():
	case <-ctx.Done():
		c.logger.Warn("等待抓取结束超时")
	}
	c.cancel()
	c.logger.Info("定时抓取已停止")
}

// Status 错误策略快照
func (c *Collector) Status() PolicyStatus {
	return c.policy.Status()
}
