package repository

import (
	"context"
	"time"

	"github.com/wfunc/uvc-capture/internal/models"
	"gorm.io/gorm"
)

// CaptureSessionRepository 采集会话仓储接口
type CaptureSessionRepository interface {
	BaseRepository
	Create(ctx context.Context, session *models.CaptureSession) error
	Update(ctx context.Context, session *models.CaptureSession) error
	MarkStarted(ctx context.Context, sessionID string, startedAt time.Time) error
	MarkStopped(ctx context.Context, sessionID string, stoppedAt time.Time, reason models.StopReason, errMsg string) error
	UpdateFrameCounts(ctx context.Context, sessionID string, received, dropped int) error
	FindByID(ctx context.Context, id uint) (*models.CaptureSession, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.CaptureSession, error)
	FindActive(ctx context.Context) ([]*models.CaptureSession, error)
	Query(ctx context.Context, query *models.CaptureSessionQuery) ([]*models.CaptureSession, int64, error)
	GetStatistics(ctx context.Context, serialNumber string) (*SessionStatistics, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// SessionStatistics 会话统计
type SessionStatistics struct {
	TotalSessions int64                        `json:"total_sessions"`
	TotalFrames   int64                        `json:"total_frames"`
	TotalDropped  int64                        `json:"total_dropped"`
	ErrorSessions int64                        `json:"error_sessions"`
	AvgFrameRate  float64                      `json:"avg_frame_rate"`
	ModeSummary   map[models.CaptureMode]int64 `json:"mode_summary"`
}

// captureSessionRepo 采集会话仓储实现
type captureSessionRepo struct {
	*BaseRepo
}

// NewCaptureSessionRepository 创建采集会话仓储
func NewCaptureSessionRepository(db *gorm.DB) CaptureSessionRepository {
	return &captureSessionRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建采集会话
func (r *captureSessionRepo) Create(ctx context.Context, session *models.CaptureSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// Update 更新采集会话
func (r *captureSessionRepo) Update(ctx context.Context, session *models.CaptureSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// MarkStarted 标记会话已开始
func (r *captureSessionRepo) MarkStarted(ctx context.Context, sessionID string, startedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CaptureSession{}).
		Where("session_id = ?", sessionID).
		Update("started_at", startedAt).Error
}

// MarkStopped 标记会话已结束
func (r *captureSessionRepo) MarkStopped(ctx context.Context, sessionID string, stoppedAt time.Time, reason models.StopReason, errMsg string) error {
	updates := map[string]interface{}{
		"stopped_at":  stoppedAt,
		"stop_reason": reason,
	}
	if errMsg != "" {
		updates["error_msg"] = errMsg
	}
	return r.db.WithContext(ctx).
		Model(&models.CaptureSession{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error
}

// UpdateFrameCounts 更新帧计数
func (r *captureSessionRepo) UpdateFrameCounts(ctx context.Context, sessionID string, received, dropped int) error {
	return r.db.WithContext(ctx).
		Model(&models.CaptureSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"received_frames": received,
			"dropped_frames":  dropped,
		}).Error
}

// FindByID 根据ID查找
func (r *captureSessionRepo) FindByID(ctx context.Context, id uint) (*models.CaptureSession, error) {
	var session models.CaptureSession
	err := r.db.WithContext(ctx).First(&session, id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindBySessionID 根据会话UUID查找
func (r *captureSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.CaptureSession, error) {
	var session models.CaptureSession
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActive 查找所有进行中的会话
func (r *captureSessionRepo) FindActive(ctx context.Context) ([]*models.CaptureSession, error) {
	var sessions []*models.CaptureSession
	err := r.db.WithContext(ctx).
		Where("started_at IS NOT NULL AND stopped_at IS NULL").
		Order("started_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// Query 查询会话
func (r *captureSessionRepo) Query(ctx context.Context, query *models.CaptureSessionQuery) ([]*models.CaptureSession, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.CaptureSession{})

	// 构建查询条件
	if query.SerialNumber != "" {
		db = db.Where("serial_number = ?", query.SerialNumber)
	}
	if query.Mode != "" {
		db = db.Where("mode = ?", query.Mode)
	}
	if query.StopReason != "" {
		db = db.Where("stop_reason = ?", query.StopReason)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.HasError != nil {
		if *query.HasError {
			db = db.Where("error_msg != ''")
		} else {
			db = db.Where("error_msg = ''")
		}
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	limit := query.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var sessions []*models.CaptureSession
	err := db.Order("created_at DESC").
		Limit(limit).
		Offset(query.Offset).
		Find(&sessions).Error
	return sessions, total, err
}

// GetStatistics 获取会话统计
func (r *captureSessionRepo) GetStatistics(ctx context.Context, serialNumber string) (*SessionStatistics, error) {
	db := r.db.WithContext(ctx).Model(&models.CaptureSession{})
	if serialNumber != "" {
		db = db.Where("serial_number = ?", serialNumber)
	}

	stats := &SessionStatistics{
		ModeSummary: make(map[models.CaptureMode]int64),
	}

	if err := db.Count(&stats.TotalSessions).Error; err != nil {
		return nil, err
	}

	type aggregate struct {
		TotalFrames  int64
		TotalDropped int64
		AvgRate      float64
	}
	var agg aggregate
	if err := db.Select("COALESCE(SUM(received_frames),0) as total_frames, COALESCE(SUM(dropped_frames),0) as total_dropped, COALESCE(AVG(frame_rate),0) as avg_rate").
		Scan(&agg).Error; err != nil {
		return nil, err
	}
	stats.TotalFrames = agg.TotalFrames
	stats.TotalDropped = agg.TotalDropped
	stats.AvgFrameRate = agg.AvgRate

	if err := db.Where("error_msg != ''").Count(&stats.ErrorSessions).Error; err != nil {
		return nil, err
	}

	// 按模式统计
	type modeCount struct {
		Mode  models.CaptureMode
		Count int64
	}
	var counts []modeCount
	modeDB := r.db.WithContext(ctx).Model(&models.CaptureSession{})
	if serialNumber != "" {
		modeDB = modeDB.Where("serial_number = ?", serialNumber)
	}
	if err := modeDB.Select("mode, COUNT(*) as count").
		Group("mode").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.ModeSummary[c.Mode] = c.Count
	}

	return stats, nil
}

// DeleteOlderThan 删除指定时间之前的会话记录
func (r *captureSessionRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("created_at < ?", before).
		Delete(&models.CaptureSession{})
	return result.RowsAffected, result.Error
}
