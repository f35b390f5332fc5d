package uvc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/uvc-capture/internal/config"
	"github.com/wfunc/uvc-capture/internal/errors"
	"github.com/wfunc/uvc-capture/internal/logger"
	"github.com/wfunc/uvc-capture/internal/models"
	"github.com/wfunc/uvc-capture/internal/repository"
	"go.uber.org/zap"
)

// DeviceConfig 设备采集配置，写入在下一次Start时生效
type DeviceConfig struct {
	SerialNumber string        `json:"serial_number"`
	Format       PixelType     `json:"format"`
	Width        int           `json:"width"`
	Height       int           `json:"height"`
	FrameRate    int           `json:"frame_rate"`
	Mode         OperatingMode `json:"mode"`
	FrameCount   int           `json:"frame_count"`
}

// DeviceStatus 设备状态快照
type DeviceStatus struct {
	State          AcquisitionState `json:"state"`
	Connected      bool             `json:"connected"`
	Identity       *DeviceIdentity  `json:"identity,omitempty"`
	Config         DeviceConfig     `json:"config"`
	SessionID      string           `json:"session_id,omitempty"`
	FramesReceived int              `json:"frames_received"`
	FramesDropped  int              `json:"frames_dropped"`
}

// DeviceController 顶层设备控制器：组合硬件链路和推流编排器，
// 对外暴露命令接口和帧交付接口，并把会话元数据写入存储
type DeviceController struct {
	mu sync.Mutex

	link       *HardwareLink
	controller *StreamController
	logger     *zap.Logger

	cfg       DeviceConfig
	consumer  func(*FrameBuffer)
	sessionID string

	repos *repository.Manager
}

// NewDeviceController 创建设备控制器
// repos可为nil，此时不记录会话元数据
func NewDeviceController(hw Hardware, camCfg *config.CameraConfig, repos *repository.Manager) *DeviceController {
	link := NewHardwareLink(hw)
	d := &DeviceController{
		link:       link,
		controller: NewStreamController(link),
		logger:     logger.WithModule("device"),
		repos:      repos,
		cfg: DeviceConfig{
			SerialNumber: camCfg.SerialNumber,
			Format:       PixelType(camCfg.Format),
			Width:        camCfg.Width,
			Height:       camCfg.Height,
			FrameRate:    camCfg.FrameRate,
			Mode:         OperatingMode(camCfg.Mode),
			FrameCount:   camCfg.FrameCount,
		},
	}

	d.controller.OnFrame(d.deliverFrame)
	d.controller.OnSessionEnd(d.recordSessionEnd)
	return d
}

// OnFrame 注册唯一的帧消费者，交付在产帧goroutine上同步进行
func (d *DeviceController) OnFrame(consumer func(*FrameBuffer)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumer = consumer
}

// SetSerialNumber 设置目标设备序列号，下一次Start生效
func (d *DeviceController) SetSerialNumber(serialNumber string) error {
	if serialNumber == "" {
		return errors.New(errors.ErrInvalidParam, "序列号不能为空")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.SerialNumber = serialNumber
	return nil
}

// SetFrameRate 设置目标帧率，下一次Start生效
func (d *DeviceController) SetFrameRate(frameRate int) error {
	if frameRate <= 0 {
		return errors.Newf(errors.ErrInvalidFrameRate, "帧率必须为正: %d", frameRate)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.FrameRate = frameRate
	return nil
}

// SetOperatingMode 设置采集模式，下一次Start生效
func (d *DeviceController) SetOperatingMode(mode OperatingMode) error {
	if !mode.Valid() {
		return errors.Newf(errors.ErrInvalidMode, "未知采集模式: %s", mode)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Mode = mode
	return nil
}

// SetRequestedFrameCount 设置定量模式请求帧数，下一次Start生效
func (d *DeviceController) SetRequestedFrameCount(frameCount int) error {
	if frameCount <= 0 {
		return errors.Newf(errors.ErrInvalidFrameCount, "请求帧数必须为正: %d", frameCount)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.FrameCount = frameCount
	return nil
}

// SetFrameSize 设置帧尺寸，下一次Start生效
func (d *DeviceController) SetFrameSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Newf(errors.ErrInvalidParam, "帧尺寸非法: %dx%d", width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Width = width
	d.cfg.Height = height
	return nil
}

// Config 当前配置快照
func (d *DeviceController) Config() DeviceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Start 按当前配置开始采集
func (d *DeviceController) Start() error {
	if state := d.controller.State(); state != StateIdle {
		if state == StateStreaming {
			return errors.New(errors.ErrAlreadyStreaming)
		}
		return errors.Newf(errors.ErrInvalidCommand, "当前状态不接受开始命令: %s", state)
	}

	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	streamCfg := StreamConfig{
		Format:    cfg.Format,
		Width:     cfg.Width,
		Height:    cfg.Height,
		FrameRate: cfg.FrameRate,
	}

	// 先落库会话记录：单帧模式下定时器可能在毫秒级结束会话，
	// 结束回调要求会话行已存在
	sessionID := uuid.NewString()
	d.recordSessionStart(sessionID, cfg)

	if err := d.controller.StartSession(cfg.SerialNumber, streamCfg, cfg.Mode, cfg.FrameCount, sessionID); err != nil {
		d.recordSessionFailure(sessionID, err)
		return err
	}

	d.mu.Lock()
	d.sessionID = sessionID
	d.mu.Unlock()
	return nil
}

// recordSessionFailure 启动失败时关闭会话记录
func (d *DeviceController) recordSessionFailure(sessionID string, cause error) {
	if d.repos == nil {
		return
	}
	ctx := context.Background()
	if err := d.repos.CaptureSession().MarkStopped(ctx, sessionID, time.Now(), models.StopReasonError, cause.Error()); err != nil {
		d.logger.Warn("记录会话失败状态失败", zap.Error(err))
	}
}

// Stop 立即停止采集，重复停止是幂等空操作
func (d *DeviceController) Stop() error {
	return d.controller.Stop()
}

// State 当前采集状态
func (d *DeviceController) State() AcquisitionState {
	return d.controller.State()
}

// Identity 已连接设备的标识
func (d *DeviceController) Identity() *DeviceIdentity {
	return d.link.Identity()
}

// Status 状态快照
func (d *DeviceController) Status() *DeviceStatus {
	received, dropped := d.controller.Counters()
	d.mu.Lock()
	cfg := d.cfg
	sessionID := d.sessionID
	d.mu.Unlock()

	return &DeviceStatus{
		State:          d.controller.State(),
		Connected:      d.link.IsConnected(),
		Identity:       d.link.Identity(),
		Config:         cfg,
		SessionID:      sessionID,
		FramesReceived: received,
		FramesDropped:  dropped,
	}
}

// Shutdown 停止采集并断开设备，服务关闭时调用
func (d *DeviceController) Shutdown() {
	if d.controller.State() == StateStreaming {
		if err := d.controller.Stop(); err != nil {
			d.logger.Warn("关闭时停止采集失败", zap.Error(err))
		}
	}

	connected := d.link.IsConnected()
	identity := d.link.Identity()
	d.link.Disconnect()

	if connected && d.repos != nil && identity != nil {
		event := &models.DeviceEvent{
			EventType:    models.DeviceEventDisconnected,
			SerialNumber: identity.SerialNumber,
			Detail:       "服务关闭",
		}
		if err := d.repos.DeviceEvent().Create(context.Background(), event); err != nil {
			d.logger.Warn("记录设备事件失败", zap.Error(err))
		}
	}
}

// deliverFrame 把完成的缓冲区同步转发给注册的消费者
func (d *DeviceController) deliverFrame(buf *FrameBuffer) {
	d.mu.Lock()
	consumer := d.consumer
	d.mu.Unlock()

	if consumer != nil {
		consumer(buf)
	}
}

// recordSessionStart 记录会话开始
func (d *DeviceController) recordSessionStart(sessionID string, cfg DeviceConfig) {
	if d.repos == nil {
		return
	}

	ctx := context.Background()
	now := time.Now()
	session := &models.CaptureSession{
		SessionID:    sessionID,
		SerialNumber: cfg.SerialNumber,
		Mode:         models.CaptureMode(cfg.Mode),
		Width:        cfg.Width,
		Height:       cfg.Height,
		Format:       string(cfg.Format),
		FrameRate:    cfg.FrameRate,
		StartedAt:    &now,
	}
	if cfg.Mode == ModeSnapshot {
		session.RequestedFrames = cfg.FrameCount
	}
	if err := d.repos.CaptureSession().Create(ctx, session); err != nil {
		d.logger.Warn("记录采集会话失败", zap.Error(err))
		return
	}

	event := &models.DeviceEvent{
		EventType:    models.DeviceEventStreamStart,
		SerialNumber: cfg.SerialNumber,
		SessionID:    sessionID,
	}
	if err := d.repos.DeviceEvent().Create(ctx, event); err != nil {
		d.logger.Warn("记录设备事件失败", zap.Error(err))
	}

	logger.LogCaptureEvent("session_start", sessionID, map[string]interface{}{
		"mode":       string(cfg.Mode),
		"frame_rate": cfg.FrameRate,
	})
}

// recordSessionEnd 会话结束回调：落库并清理当前会话ID
func (d *DeviceController) recordSessionEnd(result SessionResult) {
	sessionID := result.Tag

	d.mu.Lock()
	serialNumber := d.cfg.SerialNumber
	if d.sessionID == sessionID {
		d.sessionID = ""
	}
	d.mu.Unlock()

	if d.repos == nil || sessionID == "" {
		return
	}

	ctx := context.Background()
	reason := models.StopReasonManual
	if result.Cause == StopCauseTimer {
		reason = models.StopReasonTimer
	}

	if err := d.repos.CaptureSession().UpdateFrameCounts(ctx, sessionID, result.Received, result.Dropped); err != nil {
		d.logger.Warn("更新帧计数失败", zap.Error(err))
	}
	if err := d.repos.CaptureSession().MarkStopped(ctx, sessionID, time.Now(), reason, ""); err != nil {
		d.logger.Warn("记录会话结束失败", zap.Error(err))
	}

	event := &models.DeviceEvent{
		EventType:    models.DeviceEventStreamStop,
		SerialNumber: serialNumber,
		SessionID:    sessionID,
	}
	if err := d.repos.DeviceEvent().Create(ctx, event); err != nil {
		d.logger.Warn("记录设备事件失败", zap.Error(err))
	}

	logger.LogCaptureEvent("session_end", sessionID, map[string]interface{}{
		"cause":    string(result.Cause),
		"received": result.Received,
		"dropped":  result.Dropped,
	})
}
