package uvc

import (
	"sync"

	"github.com/wfunc/uvc-capture/internal/errors"
	"github.com/wfunc/uvc-capture/internal/logger"
	"go.uber.org/zap"
)

// StopCause 会话结束原因
type StopCause string

const (
	StopCauseManual StopCause = "manual" // 手动停止命令
	StopCauseTimer  StopCause = "timer"  // 定时器到期
)

// SessionResult 一个会话结束时的统计
type SessionResult struct {
	Tag      string
	Cause    StopCause
	Received int
	Dropped  int
}

// StreamController 推流编排器：拥有采集状态机，是唯一调用HardwareLink
// 推流原语并安装帧回调的组件
//
// 状态由互斥锁保护：命令goroutine和硬件回调goroutine都会读取它，
// 绝不能以普通共享变量方式访问
type StreamController struct {
	mu    sync.Mutex
	state AcquisitionState

	link      *HardwareLink
	converter *FrameConverter
	timer     *AcquisitionTimer
	logger    *zap.Logger

	// 会话期间的共享计数，与状态同锁保护
	framesReceived int
	framesDropped  int

	// 当前会话的推流配置和调用方标识
	sessionCfg StreamConfig
	sessionTag string

	// 消费者回调，在产帧goroutine上同步调用
	onFrame func(*FrameBuffer)
	// 会话结束回调，在执行拆除的goroutine上调用
	onSessionEnd func(SessionResult)

	timerWG sync.WaitGroup
}

// NewStreamController 创建推流编排器
func NewStreamController(link *HardwareLink) *StreamController {
	return &StreamController{
		state:     StateIdle,
		link:      link,
		converter: NewFrameConverter(),
		timer:     NewAcquisitionTimer(),
		logger:    logger.WithModule("controller"),
	}
}

// OnFrame 注册唯一的帧消费者
func (c *StreamController) OnFrame(fn func(*FrameBuffer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = fn
}

// OnSessionEnd 注册会话结束回调
func (c *StreamController) OnSessionEnd(fn func(SessionResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSessionEnd = fn
}

// State 当前采集状态
func (c *StreamController) State() AcquisitionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counters 当前会话的帧计数
func (c *StreamController) Counters() (received, dropped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framesReceived, c.framesDropped
}

// StartSession 开始一个采集会话，tag是调用方的会话标识，原样带回结束回调
// 状态机：Idle -> Connecting -> Streaming；协商或启动失败回退到Idle，
// 错误向上报告一次，不自动重试
func (c *StreamController) StartSession(serialNumber string, cfg StreamConfig, mode OperatingMode, frameCount int, tag string) error {
	c.mu.Lock()
	switch c.state {
	case StateStreaming:
		c.mu.Unlock()
		return errors.New(errors.ErrAlreadyStreaming)
	case StateConnecting, StateStopping:
		c.mu.Unlock()
		return errors.Newf(errors.ErrInvalidCommand, "当前状态不接受开始命令: %s", c.state)
	}
	c.state = StateConnecting
	c.framesReceived = 0
	c.framesDropped = 0
	c.sessionCfg = cfg
	c.sessionTag = tag
	c.mu.Unlock()

	// 等待上一个会话的定时器goroutine退出
	c.timerWG.Wait()

	// 未连接则先连接设备
	if !c.link.IsConnected() {
		if _, err := c.link.Connect(serialNumber); err != nil {
			c.revertToIdle()
			return err
		}
	}

	c.converter.Reset()

	if err := c.link.NegotiateFormat(cfg); err != nil {
		c.revertToIdle()
		return err
	}

	// 捕获型闭包回调：在硬件goroutine上执行，与本方法返回后的代码无顺序保证
	if err := c.link.StartStreaming(func(frame *RawFrame) {
		c.handleFrame(frame)
	}); err != nil {
		c.revertToIdle()
		return err
	}

	c.mu.Lock()
	c.state = StateStreaming
	c.mu.Unlock()

	c.logger.Info("采集会话已开始",
		zap.String("mode", string(mode)),
		zap.Int("frame_rate", cfg.FrameRate),
		zap.Int("frame_count", frameCount),
	)

	// 定时器goroutine：到期走与手动停止完全相同的停止流程
	c.timer.Begin()
	c.timerWG.Add(1)
	go func() {
		defer c.timerWG.Done()
		if c.timer.Wait(mode, cfg.FrameRate, frameCount) == WaitExpired {
			c.doStop(StopCauseTimer)
		}
	}()

	return nil
}

// revertToIdle 协商或启动失败后回退状态，不留下看似成功的部分状态
func (c *StreamController) revertToIdle() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

// Stop 停止当前会话
// Stopping/Idle状态下的重复停止是幂等空操作
func (c *StreamController) Stop() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateStreaming:
		c.doStop(StopCauseManual)
		return nil
	case StateConnecting:
		return errors.New(errors.ErrInvalidCommand, "连接协商尚未完成")
	default:
		// 幂等：重复停止不是错误
		return nil
	}
}

// doStop 手动停止和定时器到期共用的停止流程，并发请求下恰好执行一次拆除
func (c *StreamController) doStop(cause StopCause) {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.mu.Unlock()

	// 唤醒定时器goroutine（定时器到期路径下已停止，幂等）
	c.timer.Stop()

	// 同步屏障：返回后不会再有帧回调执行
	c.link.StopStreaming()

	c.mu.Lock()
	c.state = StateIdle
	result := SessionResult{
		Tag:      c.sessionTag,
		Cause:    cause,
		Received: c.framesReceived,
		Dropped:  c.framesDropped,
	}
	c.sessionTag = ""
	c.framesReceived = 0
	c.framesDropped = 0
	onEnd := c.onSessionEnd
	c.mu.Unlock()

	c.logger.Info("采集会话已结束",
		zap.String("cause", string(cause)),
		zap.Int("received", result.Received),
		zap.Int("dropped", result.Dropped),
	)

	if onEnd != nil {
		onEnd(result)
	}
}

// handleFrame 硬件goroutine上的帧回调
// 转换前置条件违规只记录丢帧，绝不触发停止：会话只因停止命令或定时器到期结束
func (c *StreamController) handleFrame(raw *RawFrame) {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	target := c.sessionCfg.Format
	onFrame := c.onFrame
	c.mu.Unlock()

	buf, err := c.converter.Convert(raw, target)
	if err != nil {
		c.mu.Lock()
		c.framesDropped++
		c.mu.Unlock()
		logger.LogUVCError("handleFrame", err)
		return
	}

	c.mu.Lock()
	c.framesReceived++
	c.mu.Unlock()

	// 同步交付，交付后缓冲区所有权归消费者
	if onFrame != nil {
		onFrame(buf)
	}
}
