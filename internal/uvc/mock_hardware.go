package uvc

import (
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/uvc-capture/internal/logger"
	"go.uber.org/zap"
)

// HardwareCalls 硬件原语调用计数，用于验证资源平衡
type HardwareCalls struct {
	InitContext int
	ExitContext int
	Find        int
	Unref       int
	Open        int
	Close       int
	Negotiate   int
	StreamStart int
	StreamStop  int
}

// MockHardware 模拟UVC硬件（用于测试和mock模式）
type MockHardware struct {
	mu     sync.Mutex
	logger *zap.Logger

	// 模拟设备表：序列号 -> 描述符
	devices map[string]*DeviceDescriptor

	// 故障注入
	FailInit       bool
	FailFind       bool
	FailOpen       bool
	FailDescriptor bool
	FailNegotiate  bool
	FailStart      bool

	// 禁用自动产帧（测试手动注入时使用）
	DisableProducer bool

	calls      HardwareCalls
	ctxActive  bool
	lastStream *mockStream
	lastCfg    StreamConfig
}

// NewMockHardware 创建模拟硬件
func NewMockHardware() *MockHardware {
	return &MockHardware{
		logger: logger.GetLogger(),
		devices: map[string]*DeviceDescriptor{
			"CAM001": {
				Manufacturer: "MockVision",
				VendorID:     0x0bda,
				ProductID:    0x5806,
				SerialNumber: "CAM001",
			},
		},
	}
}

// AddDevice 注册一个模拟设备
func (m *MockHardware) AddDevice(desc *DeviceDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[desc.SerialNumber] = desc
}

// Calls 获取调用计数快照
func (m *MockHardware) Calls() HardwareCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// NegotiatedConfig 获取最近一次协商的配置
func (m *MockHardware) NegotiatedConfig() StreamConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCfg
}

// PushFrame 手动注入一帧（同步调用回调，模拟硬件goroutine）
func (m *MockHardware) PushFrame(frame *RawFrame) bool {
	m.mu.Lock()
	stream := m.lastStream
	m.mu.Unlock()
	if stream == nil {
		return false
	}
	return stream.push(frame)
}

// InitContext 模拟上下文初始化
func (m *MockHardware) InitContext() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls.InitContext++
	if m.FailInit {
		return fmt.Errorf("UVC_ERROR_OTHER: context init failed")
	}
	m.ctxActive = true
	m.logger.Debug("模拟UVC上下文已初始化")
	return nil
}

// ExitContext 模拟上下文释放
func (m *MockHardware) ExitContext() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls.ExitContext++
	m.ctxActive = false
	m.logger.Debug("模拟UVC上下文已释放")
}

// FindDevice 模拟设备查找
func (m *MockHardware) FindDevice(serialNumber string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls.Find++
	if m.FailFind {
		return nil, fmt.Errorf("UVC_ERROR_NO_DEVICE: device not found")
	}
	desc, ok := m.devices[serialNumber]
	if !ok {
		return nil, fmt.Errorf("UVC_ERROR_NO_DEVICE: no device with serial %s", serialNumber)
	}
	return &mockDevice{hw: m, desc: desc}, nil
}

// ErrorName 模拟错误码翻译
func (m *MockHardware) ErrorName(code int) string {
	names := map[int]string{
		0:   "UVC_SUCCESS",
		-1:  "UVC_ERROR_IO",
		-3:  "UVC_ERROR_ACCESS",
		-4:  "UVC_ERROR_NO_DEVICE",
		-6:  "UVC_ERROR_BUSY",
		-51: "UVC_ERROR_NOT_SUPPORTED",
	}
	if name, ok := names[code]; ok {
		return name
	}
	return fmt.Sprintf("UVC_ERROR_UNKNOWN(%d)", code)
}

// mockDevice 模拟设备引用
type mockDevice struct {
	hw   *MockHardware
	desc *DeviceDescriptor
}

// Descriptor 读取描述符
func (d *mockDevice) Descriptor() (*DeviceDescriptor, error) {
	if d.hw.FailDescriptor {
		return nil, fmt.Errorf("UVC_ERROR_IO: descriptor read failed")
	}
	copied := *d.desc
	return &copied, nil
}

// Open 模拟独占打开
func (d *mockDevice) Open() (Handle, error) {
	d.hw.mu.Lock()
	defer d.hw.mu.Unlock()

	d.hw.calls.Open++
	if d.hw.FailOpen {
		return nil, fmt.Errorf("UVC_ERROR_ACCESS: exclusive open failed")
	}
	return &mockHandle{hw: d.hw}, nil
}

// Unref 释放设备引用
func (d *mockDevice) Unref() {
	d.hw.mu.Lock()
	defer d.hw.mu.Unlock()
	d.hw.calls.Unref++
}

// mockHandle 模拟设备句柄
type mockHandle struct {
	hw *MockHardware
}

// NegotiateStream 模拟协商
func (h *mockHandle) NegotiateStream(cfg StreamConfig) (Stream, error) {
	h.hw.mu.Lock()
	defer h.hw.mu.Unlock()

	h.hw.calls.Negotiate++
	if h.hw.FailNegotiate {
		return nil, fmt.Errorf("UVC_ERROR_NOT_SUPPORTED: format not supported")
	}
	if cfg.Format != PixelTypeMJPEG || cfg.Width <= 0 || cfg.Height <= 0 || cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("UVC_ERROR_NOT_SUPPORTED: %s %dx%d@%d",
			cfg.Format, cfg.Width, cfg.Height, cfg.FrameRate)
	}
	h.hw.lastCfg = cfg
	stream := &mockStream{hw: h.hw, cfg: cfg}
	h.hw.lastStream = stream
	return stream, nil
}

// Close 关闭句柄
func (h *mockHandle) Close() {
	h.hw.mu.Lock()
	defer h.hw.mu.Unlock()
	h.hw.calls.Close++
}

// mockStream 模拟推流控制
type mockStream struct {
	hw  *MockHardware
	cfg StreamConfig

	mu      sync.Mutex
	running bool
	cb      FrameCallback
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Start 开始模拟产帧
func (s *mockStream) Start(cb FrameCallback) error {
	s.hw.mu.Lock()
	s.hw.calls.StreamStart++
	failStart := s.hw.FailStart
	disableProducer := s.hw.DisableProducer
	s.hw.mu.Unlock()

	if failStart {
		return fmt.Errorf("UVC_ERROR_BUSY: stream start rejected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("UVC_ERROR_BUSY: already streaming")
	}
	s.running = true
	s.cb = cb
	s.stopCh = make(chan struct{})

	if !disableProducer {
		s.wg.Add(1)
		go s.produce()
	}
	return nil
}

// Stop 停止产帧，阻塞到最后一次回调完成
func (s *mockStream) Stop() {
	s.hw.mu.Lock()
	s.hw.calls.StreamStop++
	s.hw.mu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// 等待产帧goroutine和在途回调全部结束
	s.wg.Wait()
}

// push 同步注入一帧，返回是否已投递
func (s *mockStream) push(frame *RawFrame) bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	cb := s.cb
	s.mu.Unlock()

	defer s.wg.Done()
	cb(frame)
	return true
}

// produce 按协商帧率模拟产帧
func (s *mockStream) produce() {
	defer s.wg.Done()

	interval := time.Second / time.Duration(s.cfg.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 模拟MJPEG负载
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}
			cb := s.cb
			s.mu.Unlock()

			cb(&RawFrame{
				Format:      s.cfg.Format,
				Width:       s.cfg.Width,
				Height:      s.cfg.Height,
				Data:        payload,
				CaptureTime: time.Now(),
			})
		}
	}
}
