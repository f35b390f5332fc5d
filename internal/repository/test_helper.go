package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/uvc-capture/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试套件设置测试数据库
func SetupTestDB() *gorm.DB {
	// 使用内存数据库进行测试（更快，不需要文件系统，在所有环境中都能工作）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	err = db.AutoMigrate(
		&models.CaptureSession{},
		&models.FrameRecord{},
		&models.DeviceEvent{},
	)
	if err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// TestDB 创建测试数据库
func TestDB(t *testing.T) *gorm.DB {
	db := SetupTestDB()
	t.Cleanup(func() {
		CleanupTestDB(db)
	})
	return db
}

// SeedTestData 创建测试数据
func SeedTestData(t *testing.T, db *gorm.DB) {
	now := time.Now()
	earlier := now.Add(-10 * time.Minute)
	stopped := now.Add(-5 * time.Minute)

	sessions := []models.CaptureSession{
		{
			SessionID:      uuid.NewString(),
			SerialNumber:   "CAM001",
			Mode:           models.CaptureModeContinuous,
			Width:          640,
			Height:         480,
			Format:         "mjpeg",
			FrameRate:      30,
			ReceivedFrames: 9000,
			StartedAt:      &earlier,
			StoppedAt:      &stopped,
			StopReason:     models.StopReasonManual,
		},
		{
			SessionID:       uuid.NewString(),
			SerialNumber:    "CAM001",
			Mode:            models.CaptureModeSnapshot,
			Width:           640,
			Height:          480,
			Format:          "mjpeg",
			FrameRate:       10,
			RequestedFrames: 30,
			ReceivedFrames:  30,
			StartedAt:       &earlier,
			StoppedAt:       &stopped,
			StopReason:      models.StopReasonTimer,
		},
	}
	err := db.Create(&sessions).Error
	require.NoError(t, err)

	events := []models.DeviceEvent{
		{
			EventType:    models.DeviceEventConnected,
			SerialNumber: "CAM001",
			Detail:       "独占打开成功",
		},
		{
			EventType:    models.DeviceEventStreamStart,
			SerialNumber: "CAM001",
			SessionID:    sessions[0].SessionID,
		},
	}
	err = db.Create(&events).Error
	require.NoError(t, err)
}

// AssertCaptureSession 验证采集会话
func AssertCaptureSession(t *testing.T, expected, actual *models.CaptureSession) {
	assert.Equal(t, expected.SessionID, actual.SessionID)
	assert.Equal(t, expected.SerialNumber, actual.SerialNumber)
	assert.Equal(t, expected.Mode, actual.Mode)
	assert.Equal(t, expected.Width, actual.Width)
	assert.Equal(t, expected.Height, actual.Height)
	assert.Equal(t, expected.FrameRate, actual.FrameRate)
}

// CreateTestCaptureSession 创建测试采集会话
func CreateTestCaptureSession(serialNumber string, mode models.CaptureMode) *models.CaptureSession {
	return &models.CaptureSession{
		SessionID:    uuid.NewString(),
		SerialNumber: serialNumber,
		Mode:         mode,
		Width:        640,
		Height:       480,
		Format:       "mjpeg",
		FrameRate:    30,
	}
}

// CreateTestFrameRecord 创建测试帧记录
func CreateTestFrameRecord(sessionID string, sequence uint64) *models.FrameRecord {
	return &models.FrameRecord{
		SessionID: sessionID,
		Sequence:  sequence,
		Width:     640,
		Height:    480,
		Bytes:     640 * 480 * 3,
		Timestamp: time.Now().UnixMilli(),
	}
}
