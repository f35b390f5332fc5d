package uvc

import (
	"sync"

	"github.com/wfunc/uvc-capture/internal/errors"
	"github.com/wfunc/uvc-capture/internal/logger"
	"go.uber.org/zap"
)

// HardwareLink 持有物理设备句柄和协商好的推流上下文
// 独占拥有 上下文->设备引用->句柄->推流控制 的所有权链，
// 其他组件不得直接调用硬件释放原语
type HardwareLink struct {
	mu     sync.Mutex
	hw     Hardware
	logger *zap.Logger

	// 资源所有权链，按获取顺序持有，按相反顺序释放
	ctxActive bool
	device    Device
	handle    Handle
	stream    Stream

	identity  *DeviceIdentity
	connected bool
}

// NewHardwareLink 创建硬件链路
func NewHardwareLink(hw Hardware) *HardwareLink {
	return &HardwareLink{
		hw:     hw,
		logger: logger.WithModule("uvc"),
	}
}

// Connect 按严格顺序连接设备：上下文初始化 -> 按序列号查找 -> 独占打开
// 任何一步失败都会先释放之前已获取的资源再返回错误
func (l *HardwareLink) Connect(serialNumber string) (*DeviceIdentity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil, errors.New(errors.ErrInvalidCommand, "设备已连接")
	}

	// 第一步：上下文初始化
	if err := l.hw.InitContext(); err != nil {
		logger.LogUVCError("InitContext", err, zap.String("serial_number", serialNumber))
		return nil, errors.Wrap(err, errors.ErrContextInit)
	}
	l.ctxActive = true

	// 第二步：按序列号查找设备
	device, err := l.hw.FindDevice(serialNumber)
	if err != nil {
		logger.LogUVCError("FindDevice", err, zap.String("serial_number", serialNumber))
		l.releaseLocked()
		return nil, errors.Wrap(err, errors.ErrDeviceNotFound)
	}
	l.device = device

	// 第三步：独占打开
	handle, err := device.Open()
	if err != nil {
		logger.LogUVCError("Open", err, zap.String("serial_number", serialNumber))
		l.releaseLocked()
		return nil, errors.Wrap(err, errors.ErrDeviceOpen)
	}
	l.handle = handle

	// 读取设备描述符填充设备标识
	desc, err := device.Descriptor()
	if err != nil {
		logger.LogUVCError("Descriptor", err, zap.String("serial_number", serialNumber))
		l.releaseLocked()
		return nil, errors.Wrap(err, errors.ErrDeviceOpen, "读取设备描述符失败")
	}
	l.identity = &DeviceIdentity{
		Manufacturer: desc.Manufacturer,
		VendorID:     desc.VendorID,
		ProductID:    desc.ProductID,
		SerialNumber: desc.SerialNumber,
	}
	l.connected = true

	l.logger.Info("UVC设备连接成功",
		zap.String("serial_number", desc.SerialNumber),
		zap.String("manufacturer", desc.Manufacturer),
		zap.Uint16("vendor_id", desc.VendorID),
		zap.Uint16("product_id", desc.ProductID),
	)

	identity := *l.identity
	return &identity, nil
}

// NegotiateFormat 协商推流格式，硬件无法精确满足时失败
func (l *HardwareLink) NegotiateFormat(cfg StreamConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return errors.New(errors.ErrNotConnected)
	}

	stream, err := l.handle.NegotiateStream(cfg)
	if err != nil {
		logger.LogUVCError("NegotiateStream", err,
			zap.String("format", string(cfg.Format)),
			zap.Int("width", cfg.Width),
			zap.Int("height", cfg.Height),
			zap.Int("frame_rate", cfg.FrameRate),
		)
		return errors.Wrap(err, errors.ErrNegotiation)
	}
	l.stream = stream

	l.logger.Info("推流格式协商成功",
		zap.String("format", string(cfg.Format)),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("frame_rate", cfg.FrameRate),
	)
	return nil
}

// StartStreaming 开始推流，回调在硬件goroutine上执行
// 调用返回后回调可能与调用方后续代码并发执行
func (l *HardwareLink) StartStreaming(cb FrameCallback) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return errors.New(errors.ErrNotConnected)
	}
	if l.stream == nil {
		return errors.New(errors.ErrStreamStart, "推流格式尚未协商")
	}

	if err := l.stream.Start(cb); err != nil {
		logger.LogUVCError("StartStreaming", err)
		return errors.Wrap(err, errors.ErrStreamStart)
	}

	l.logger.Info("硬件推流已开始")
	return nil
}

// StopStreaming 停止推流，阻塞直到最后一次在途回调执行完毕
// 这是会话边界上把并发模型收敛为顺序模型的同步屏障
func (l *HardwareLink) StopStreaming() {
	l.mu.Lock()
	stream := l.stream
	l.mu.Unlock()

	if stream == nil {
		return
	}

	stream.Stop()
	l.logger.Info("硬件推流已停止")
}

// Disconnect 按获取的相反顺序释放所有资源，幂等
func (l *HardwareLink) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ctxActive && l.device == nil && l.handle == nil {
		return
	}

	l.releaseLocked()
	l.logger.Info("UVC设备已断开")
}

// releaseLocked 按相反顺序释放已获取的资源，容忍部分连接状态
// 调用方必须持有l.mu
func (l *HardwareLink) releaseLocked() {
	if l.stream != nil {
		l.stream.Stop()
		l.stream = nil
	}
	if l.handle != nil {
		l.handle.Close()
		l.handle = nil
	}
	if l.device != nil {
		l.device.Unref()
		l.device = nil
	}
	if l.ctxActive {
		l.hw.ExitContext()
		l.ctxActive = false
	}
	l.identity = nil
	l.connected = false
}

// IsConnected 是否已连接
func (l *HardwareLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Identity 获取设备标识的只读副本
func (l *HardwareLink) Identity() *DeviceIdentity {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.identity == nil {
		return nil
	}
	identity := *l.identity
	return &identity
}
