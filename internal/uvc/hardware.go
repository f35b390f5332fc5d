package uvc

// FrameCallback 帧回调，在硬件自己的goroutine上执行
// 与调用方启动推流之后的代码没有顺序保证
type FrameCallback func(frame *RawFrame)

// DeviceDescriptor 硬件设备描述符
type DeviceDescriptor struct {
	Manufacturer string
	VendorID     uint16
	ProductID    uint16
	SerialNumber string
}

// Hardware UVC硬件库接口：上下文初始化、设备查找、错误翻译
type Hardware interface {
	// InitContext 初始化设备上下文
	InitContext() error
	// ExitContext 释放设备上下文
	ExitContext()
	// FindDevice 按序列号查找设备
	FindDevice(serialNumber string) (Device, error)
	// ErrorName 将硬件错误码翻译为可读文本
	ErrorName(code int) string
}

// Device 已发现但未打开的设备引用
type Device interface {
	// Descriptor 读取设备描述符
	Descriptor() (*DeviceDescriptor, error)
	// Open 独占打开设备
	Open() (Handle, error)
	// Unref 释放设备引用
	Unref()
}

// Handle 已独占打开的设备句柄
type Handle interface {
	// NegotiateStream 协商推流控制结构，硬件无法精确满足时失败，不做自动降级
	NegotiateStream(cfg StreamConfig) (Stream, error)
	// Close 关闭设备句柄
	Close()
}

// Stream 协商完成的推流控制
type Stream interface {
	// Start 开始产帧，回调在硬件goroutine上执行
	Start(cb FrameCallback) error
	// Stop 停止产帧，阻塞直到最后一次在途回调执行完毕
	Stop()
}
