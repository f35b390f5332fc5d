package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	// 仓储实例（使用懒加载）
	captureSessionOnce sync.Once
	captureSession     CaptureSessionRepository

	frameRecordOnce sync.Once
	frameRecord     FrameRecordRepository

	deviceEventOnce sync.Once
	deviceEvent     DeviceEventRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// DB 获取数据库实例
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// CaptureSession 获取采集会话仓储
func (m *Manager) CaptureSession() CaptureSessionRepository {
	m.captureSessionOnce.Do(func() {
		m.captureSession = NewCaptureSessionRepository(m.db)
	})
	return m.captureSession
}

// FrameRecord 获取帧记录仓储
func (m *Manager) FrameRecord() FrameRecordRepository {
	m.frameRecordOnce.Do(func() {
		m.frameRecord = NewFrameRecordRepository(m.db)
	})
	return m.frameRecord
}

// DeviceEvent 获取设备事件仓储
func (m *Manager) DeviceEvent() DeviceEventRepository {
	m.deviceEventOnce.Do(func() {
		m.deviceEvent = NewDeviceEventRepository(m.db)
	})
	return m.deviceEvent
}

// WithTransaction 在事务中执行函数，事务内使用独立的仓储管理器
func (m *Manager) WithTransaction(ctx context.Context, fn func(txm *Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewManager(tx))
	})
}
