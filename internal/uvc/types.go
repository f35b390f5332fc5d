package uvc

import "time"

// PixelType 像素数据类型
type PixelType string

const (
	PixelTypeMJPEG PixelType = "mjpeg" // MJPEG压缩格式（当前唯一支持的格式）
)

// OperatingMode 采集模式
type OperatingMode string

const (
	ModeSingleShot OperatingMode = "single"     // 单帧采集
	ModeSnapshot   OperatingMode = "snapshot"   // 定量采集
	ModeContinuous OperatingMode = "continuous" // 连续采集
)

// Valid 检查采集模式是否有效
func (m OperatingMode) Valid() bool {
	switch m {
	case ModeSingleShot, ModeSnapshot, ModeContinuous:
		return true
	}
	return false
}

// AcquisitionState 采集状态
type AcquisitionState string

const (
	StateIdle       AcquisitionState = "idle"       // 待机状态
	StateConnecting AcquisitionState = "connecting" // 连接协商中
	StateStreaming  AcquisitionState = "streaming"  // 推流中
	StateStopping   AcquisitionState = "stopping"   // 停止中
)

// DeviceIdentity 设备标识，连接成功后从硬件描述符读取，只读
type DeviceIdentity struct {
	Manufacturer string `json:"manufacturer"`
	VendorID     uint16 `json:"vendor_id"`
	ProductID    uint16 `json:"product_id"`
	SerialNumber string `json:"serial_number"`
}

// StreamConfig 推流配置，开始前设置，会话期间不可变
type StreamConfig struct {
	Format    PixelType `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	FrameRate int       `json:"frame_rate"`
}

// RawFrame 硬件层产生的原始帧
// 回调返回后硬件可能立即复用底层缓冲区，使用方必须在返回前完成读取
type RawFrame struct {
	Format      PixelType
	Width       int
	Height      int
	Data        []byte
	CaptureTime time.Time
}

// FrameBuffer 交付给消费者的图像缓冲区
// 交付后所有权转移给消费者，核心不再持有引用
type FrameBuffer struct {
	PixelType PixelType `json:"pixel_type"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Data      []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  uint64    `json:"sequence"`
}
