package repository

import (
	"context"
	"time"

	"github.com/wfunc/uvc-capture/internal/models"
	"gorm.io/gorm"
)

// FrameRecordRepository 帧记录仓储接口
type FrameRecordRepository interface {
	BaseRepository
	Create(ctx context.Context, record *models.FrameRecord) error
	CreateBatch(ctx context.Context, records []*models.FrameRecord) error
	FindBySessionID(ctx context.Context, sessionID string, p *Pagination) ([]*models.FrameRecord, error)
	CountBySessionID(ctx context.Context, sessionID string) (int64, error)
	LastSequence(ctx context.Context, sessionID string) (uint64, error)
	DeleteBySessionID(ctx context.Context, sessionID string) (int64, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// frameRecordRepo 帧记录仓储实现
type frameRecordRepo struct {
	*BaseRepo
}

// NewFrameRecordRepository 创建帧记录仓储
func NewFrameRecordRepository(db *gorm.DB) FrameRecordRepository {
	return &frameRecordRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建帧记录
func (r *frameRecordRepo) Create(ctx context.Context, record *models.FrameRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// CreateBatch 批量创建帧记录
func (r *frameRecordRepo) CreateBatch(ctx context.Context, records []*models.FrameRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(records, 100).Error
}

// FindBySessionID 根据会话ID查找帧记录
func (r *frameRecordRepo) FindBySessionID(ctx context.Context, sessionID string, p *Pagination) ([]*models.FrameRecord, error) {
	var records []*models.FrameRecord
	db := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC")
	if p != nil {
		db.Model(&models.FrameRecord{}).Count(&p.Total)
		db = db.Scopes(Paginate(p))
	}
	err := db.Find(&records).Error
	return records, err
}

// CountBySessionID 统计会话帧数
func (r *frameRecordRepo) CountBySessionID(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FrameRecord{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// LastSequence 获取会话最后一帧的序号
func (r *frameRecordRepo) LastSequence(ctx context.Context, sessionID string) (uint64, error) {
	var record models.FrameRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return record.Sequence, nil
}

// DeleteBySessionID 删除会话的所有帧记录
func (r *frameRecordRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.FrameRecord{})
	return result.RowsAffected, result.Error
}

// DeleteOlderThan 删除指定时间之前的帧记录
func (r *frameRecordRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.FrameRecord{})
	return result.RowsAffected, result.Error
}
