package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/uvc-capture/internal/models"
)

func TestCaptureSessionRepository_Create(t *testing.T) {
	db := TestDB(t)
	SeedTestData(t, db)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	// 创建采集会话
	session := CreateTestCaptureSession("CAM002", models.CaptureModeContinuous)
	err := repo.Create(ctx, session)
	require.NoError(t, err)
	assert.NotZero(t, session.ID)

	// 验证会话已创建
	found, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	AssertCaptureSession(t, session, found)
}

func TestCaptureSessionRepository_MarkStarted(t *testing.T) {
	db := TestDB(t)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	session := CreateTestCaptureSession("CAM002", models.CaptureModeSingle)
	err := repo.Create(ctx, session)
	require.NoError(t, err)

	startedAt := time.Now().Truncate(time.Second)
	err = repo.MarkStarted(ctx, session.SessionID, startedAt)
	require.NoError(t, err)

	found, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	require.NotNil(t, found.StartedAt)
	assert.WithinDuration(t, startedAt, *found.StartedAt, time.Second)
	assert.True(t, found.IsActive())
}

func TestCaptureSessionRepository_MarkStopped(t *testing.T) {
	db := TestDB(t)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	session := CreateTestCaptureSession("CAM002", models.CaptureModeSnapshot)
	err := repo.Create(ctx, session)
	require.NoError(t, err)

	startedAt := time.Now().Add(-3 * time.Second)
	err = repo.MarkStarted(ctx, session.SessionID, startedAt)
	require.NoError(t, err)

	// 定时器到期停止
	err = repo.MarkStopped(ctx, session.SessionID, time.Now(), models.StopReasonTimer, "")
	require.NoError(t, err)

	found, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	require.NotNil(t, found.StoppedAt)
	assert.Equal(t, models.StopReasonTimer, found.StopReason)
	assert.Empty(t, found.ErrorMsg)
	assert.False(t, found.IsActive())
	assert.Positive(t, found.Duration())
}

func TestCaptureSessionRepository_MarkStopped_WithError(t *testing.T) {
	db := TestDB(t)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	session := CreateTestCaptureSession("CAM002", models.CaptureModeContinuous)
	err := repo.Create(ctx, session)
	require.NoError(t, err)

	err = repo.MarkStopped(ctx, session.SessionID, time.Now(), models.StopReasonError, "设备已断开")
	require.NoError(t, err)

	found, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StopReasonError, found.StopReason)
	assert.Equal(t, "设备已断开", found.ErrorMsg)
}

func TestCaptureSessionRepository_UpdateFrameCounts(t *testing.T) {
	db := TestDB(t)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	session := CreateTestCaptureSession("CAM002", models.CaptureModeContinuous)
	err := repo.Create(ctx, session)
	require.NoError(t, err)

	err = repo.UpdateFrameCounts(ctx, session.SessionID, 120, 2)
	require.NoError(t, err)

	found, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 120, found.ReceivedFrames)
	assert.Equal(t, 2, found.DroppedFrames)
}

func TestCaptureSessionRepository_FindActive(t *testing.T) {
	db := TestDB(t)
	SeedTestData(t, db)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	// 种子数据中的会话都已结束
	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// 创建一个进行中的会话
	session := CreateTestCaptureSession("CAM002", models.CaptureModeContinuous)
	err = repo.Create(ctx, session)
	require.NoError(t, err)
	err = repo.MarkStarted(ctx, session.SessionID, time.Now())
	require.NoError(t, err)

	active, err = repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, session.SessionID, active[0].SessionID)
}

func TestCaptureSessionRepository_Query(t *testing.T) {
	db := TestDB(t)
	SeedTestData(t, db)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	// 按模式查询
	sessions, total, err := repo.Query(ctx, &models.CaptureSessionQuery{
		Mode: models.CaptureModeSnapshot,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.CaptureModeSnapshot, sessions[0].Mode)

	// 按序列号查询
	sessions, total, err = repo.Query(ctx, &models.CaptureSessionQuery{
		SerialNumber: "CAM001",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, sessions, 2)

	// 按停止原因查询
	sessions, total, err = repo.Query(ctx, &models.CaptureSessionQuery{
		StopReason: models.StopReasonTimer,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.StopReasonTimer, sessions[0].StopReason)
}

func TestCaptureSessionRepository_GetStatistics(t *testing.T) {
	db := TestDB(t)
	SeedTestData(t, db)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	stats, err := repo.GetStatistics(ctx, "CAM001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalSessions)
	assert.Equal(t, int64(9030), stats.TotalFrames)
	assert.Equal(t, int64(0), stats.ErrorSessions)
	assert.Equal(t, int64(1), stats.ModeSummary[models.CaptureModeContinuous])
	assert.Equal(t, int64(1), stats.ModeSummary[models.CaptureModeSnapshot])
}

func TestCaptureSessionRepository_DeleteOlderThan(t *testing.T) {
	db := TestDB(t)
	SeedTestData(t, db)
	repo := NewCaptureSessionRepository(db)
	ctx := context.Background()

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err := repo.Query(ctx, &models.CaptureSessionQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestFrameRecordRepository_CreateBatch(t *testing.T) {
	db := TestDB(t)
	repo := NewFrameRecordRepository(db)
	ctx := context.Background()

	sessionRepo := NewCaptureSessionRepository(db)
	session := CreateTestCaptureSession("CAM002", models.CaptureModeSnapshot)
	err := sessionRepo.Create(ctx, session)
	require.NoError(t, err)

	records := make([]*models.FrameRecord, 0, 5)
	for i := uint64(1); i <= 5; i++ {
		records = append(records, CreateTestFrameRecord(session.SessionID, i))
	}
	err = repo.CreateBatch(ctx, records)
	require.NoError(t, err)

	count, err := repo.CountBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	last, err := repo.LastSequence(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
}

func TestFrameRecordRepository_LastSequence_Empty(t *testing.T) {
	db := TestDB(t)
	repo := NewFrameRecordRepository(db)
	ctx := context.Background()

	last, err := repo.LastSequence(ctx, "no-such-session")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestDeviceEventRepository_Create(t *testing.T) {
	db := TestDB(t)
	SeedTestData(t, db)
	repo := NewDeviceEventRepository(db)
	ctx := context.Background()

	event := &models.DeviceEvent{
		EventType:    models.DeviceEventDisconnected,
		SerialNumber: "CAM001",
		Detail:       "设备拔出",
	}
	err := repo.Create(ctx, event)
	require.NoError(t, err)
	assert.NotZero(t, event.ID)

	events, err := repo.FindByType(ctx, models.DeviceEventDisconnected, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "设备拔出", events[0].Detail)

	events, err = repo.FindBySerialNumber(ctx, "CAM001", 10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestManager_LazyLoading(t *testing.T) {
	db := TestDB(t)
	manager := NewManager(db)

	// 同一仓储多次获取应返回同一实例
	repo1 := manager.CaptureSession()
	repo2 := manager.CaptureSession()
	assert.Same(t, repo1, repo2)

	assert.NotNil(t, manager.FrameRecord())
	assert.NotNil(t, manager.DeviceEvent())
}

func TestManager_WithTransaction(t *testing.T) {
	db := TestDB(t)
	manager := NewManager(db)
	ctx := context.Background()

	session := CreateTestCaptureSession("CAM002", models.CaptureModeContinuous)
	err := manager.WithTransaction(ctx, func(txm *Manager) error {
		if err := txm.CaptureSession().Create(ctx, session); err != nil {
			return err
		}
		return txm.DeviceEvent().Create(ctx, &models.DeviceEvent{
			EventType:    models.DeviceEventStreamStart,
			SerialNumber: session.SerialNumber,
			SessionID:    session.SessionID,
		})
	})
	require.NoError(t, err)

	found, err := manager.CaptureSession().FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, found.SessionID)
}
