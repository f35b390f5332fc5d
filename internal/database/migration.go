package database

import (
	"fmt"

	"github.com/wfunc/uvc-capture/internal/logger"
	"github.com/wfunc/uvc-capture/internal/models"
	"go.uber.org/zap"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 清理过期锁文件
	CleanupStaleLocks()

	// 获取迁移锁，避免多个进程同时迁移
	dbPath := getDBPath()
	if dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	migrationModels := []interface{}{
		// 采集会话相关
		&models.CaptureSession{},
		&models.FrameRecord{},

		// 系统相关
		&models.DeviceEvent{},
	}

	// 执行迁移
	logger.Info("开始数据库迁移...")

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	// 创建索引
	if err := createIndexes(); err != nil {
		return err
	}

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建数据库索引
func createIndexes() error {
	// 采集会话索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_capture_sessions_session_id ON capture_sessions(session_id)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_capture_sessions_session_id"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_capture_sessions_serial_number ON capture_sessions(serial_number)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_capture_sessions_serial_number"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_capture_sessions_started_at ON capture_sessions(started_at)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_capture_sessions_started_at"), zap.Error(err))
	}

	// 帧记录索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_frame_records_session_id ON frame_records(session_id)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_frame_records_session_id"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_frame_records_sequence ON frame_records(sequence)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_frame_records_sequence"), zap.Error(err))
	}

	// 设备事件索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_device_events_event_type ON device_events(event_type)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_device_events_event_type"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_device_events_created_at ON device_events(created_at)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_device_events_created_at"), zap.Error(err))
	}

	logger.Info("数据库索引创建完成")
	return nil
}

// DropAllTables 删除所有表（仅用于测试环境）
func DropAllTables() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	var tables []string
	if err := DB.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables).Error; err != nil {
		return err
	}

	for _, table := range tables {
		if err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			logger.Error("删除表失败", zap.String("table", table), zap.Error(err))
			return err
		}
	}

	logger.Info("所有表已删除")
	return nil
}
