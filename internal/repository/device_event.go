package repository

import (
	"context"
	"time"

	"github.com/wfunc/uvc-capture/internal/models"
	"gorm.io/gorm"
)

// DeviceEventRepository 设备事件仓储接口
type DeviceEventRepository interface {
	BaseRepository
	Create(ctx context.Context, event *models.DeviceEvent) error
	FindByType(ctx context.Context, eventType models.DeviceEventType, limit int) ([]*models.DeviceEvent, error)
	FindBySerialNumber(ctx context.Context, serialNumber string, limit int) ([]*models.DeviceEvent, error)
	FindRecent(ctx context.Context, limit int) ([]*models.DeviceEvent, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// deviceEventRepo 设备事件仓储实现
type deviceEventRepo struct {
	*BaseRepo
}

// NewDeviceEventRepository 创建设备事件仓储
func NewDeviceEventRepository(db *gorm.DB) DeviceEventRepository {
	return &deviceEventRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建设备事件
func (r *deviceEventRepo) Create(ctx context.Context, event *models.DeviceEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByType 根据事件类型查找
func (r *deviceEventRepo) FindByType(ctx context.Context, eventType models.DeviceEventType, limit int) ([]*models.DeviceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*models.DeviceEvent
	err := r.db.WithContext(ctx).
		Where("event_type = ?", eventType).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// FindBySerialNumber 根据设备序列号查找
func (r *deviceEventRepo) FindBySerialNumber(ctx context.Context, serialNumber string, limit int) ([]*models.DeviceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*models.DeviceEvent
	err := r.db.WithContext(ctx).
		Where("serial_number = ?", serialNumber).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// FindRecent 查找最近的事件
func (r *deviceEventRepo) FindRecent(ctx context.Context, limit int) ([]*models.DeviceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*models.DeviceEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// DeleteOlderThan 删除指定时间之前的事件
func (r *deviceEventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.DeviceEvent{})
	return result.RowsAffected, result.Error
}
