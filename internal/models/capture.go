package models

import (
	"time"

	"gorm.io/gorm"
)

// CaptureMode 采集模式
type CaptureMode string

const (
	CaptureModeSingle     CaptureMode = "single"     // 单帧采集
	CaptureModeSnapshot   CaptureMode = "snapshot"   // 定量采集
	CaptureModeContinuous CaptureMode = "continuous" // 连续采集
)

// StopReason 采集停止原因
type StopReason string

const (
	StopReasonManual   StopReason = "manual"   // 手动停止
	StopReasonTimer    StopReason = "timer"    // 定时器到期
	StopReasonError    StopReason = "error"    // 错误停止
	StopReasonShutdown StopReason = "shutdown" // 服务关闭
)

// CaptureSession 采集会话记录
type CaptureSession struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 会话标识
	SessionID    string `gorm:"type:varchar(64);uniqueIndex;not null" json:"session_id"` // 会话UUID
	SerialNumber string `gorm:"type:varchar(64);index" json:"serial_number"`             // 目标设备序列号

	// 采集参数
	Mode      CaptureMode `gorm:"type:varchar(20);not null" json:"mode"` // 采集模式
	Width     int         `gorm:"not null" json:"width"`                 // 帧宽度
	Height    int         `gorm:"not null" json:"height"`                // 帧高度
	Format    string      `gorm:"type:varchar(20)" json:"format"`        // 像素格式
	FrameRate int         `gorm:"not null" json:"frame_rate"`            // 帧率

	// 采集结果
	RequestedFrames int `gorm:"default:0" json:"requested_frames"` // 请求帧数（定量模式）
	ReceivedFrames  int `gorm:"default:0" json:"received_frames"`  // 实际接收帧数
	DroppedFrames   int `gorm:"default:0" json:"dropped_frames"`   // 丢弃帧数

	// 时间信息
	StartedAt *time.Time `gorm:"index" json:"started_at,omitempty"` // 开始时间
	StoppedAt *time.Time `json:"stopped_at,omitempty"`              // 结束时间

	// 结束状态
	StopReason StopReason `gorm:"type:varchar(20)" json:"stop_reason,omitempty"` // 停止原因
	ErrorMsg   string     `gorm:"type:text" json:"error_msg,omitempty"`          // 错误信息
}

// TableName 指定表名
func (CaptureSession) TableName() string {
	return "capture_sessions"
}

// BeforeCreate 创建前的钩子
func (s *CaptureSession) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return nil
}

// Duration 返回会话持续时长
func (s *CaptureSession) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if s.StoppedAt != nil {
		end = *s.StoppedAt
	}
	return end.Sub(*s.StartedAt)
}

// IsActive 判断会话是否仍在采集中
func (s *CaptureSession) IsActive() bool {
	return s.StartedAt != nil && s.StoppedAt == nil
}

// FrameRecord 帧元数据记录（仅元数据，不存储像素负载）
type FrameRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	SessionID string `gorm:"type:varchar(64);index;not null" json:"session_id"` // 所属会话UUID
	Sequence  uint64 `gorm:"index;not null" json:"sequence"`                    // 帧序号
	Width     int    `gorm:"not null" json:"width"`                             // 帧宽度
	Height    int    `gorm:"not null" json:"height"`                            // 帧高度
	Bytes     int    `gorm:"not null" json:"bytes"`                             // 负载字节数
	Timestamp int64  `gorm:"index;not null" json:"timestamp"`                   // 采集时间戳（毫秒）
}

// TableName 指定表名
func (FrameRecord) TableName() string {
	return "frame_records"
}

// DeviceEventType 设备事件类型
type DeviceEventType string

const (
	DeviceEventConnected    DeviceEventType = "connected"    // 设备连接
	DeviceEventDisconnected DeviceEventType = "disconnected" // 设备断开
	DeviceEventStreamStart  DeviceEventType = "stream_start" // 开始推流
	DeviceEventStreamStop   DeviceEventType = "stream_stop"  // 停止推流
	DeviceEventError        DeviceEventType = "error"        // 设备错误
)

// DeviceEvent 设备事件记录
type DeviceEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	EventType    DeviceEventType `gorm:"type:varchar(20);index;not null" json:"event_type"`  // 事件类型
	SerialNumber string          `gorm:"type:varchar(64);index" json:"serial_number"`        // 设备序列号
	SessionID    string          `gorm:"type:varchar(64);index" json:"session_id,omitempty"` // 关联会话
	Detail       string          `gorm:"type:text" json:"detail,omitempty"`                  // 事件详情
}

// TableName 指定表名
func (DeviceEvent) TableName() string {
	return "device_events"
}

// CaptureSessionQuery 会话查询参数
type CaptureSessionQuery struct {
	SerialNumber string      `json:"serial_number,omitempty"`
	Mode         CaptureMode `json:"mode,omitempty"`
	StopReason   StopReason  `json:"stop_reason,omitempty"`
	StartTime    *time.Time  `json:"start_time,omitempty"`
	EndTime      *time.Time  `json:"end_time,omitempty"`
	HasError     *bool       `json:"has_error,omitempty"`
	Limit        int         `json:"limit,omitempty"`
	Offset       int         `json:"offset,omitempty"`
}
