package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/uvc-capture/internal/models"
	"github.com/wfunc/uvc-capture/internal/repository"
	"go.uber.org/zap"
)

// SessionHandler 采集会话查询处理器
type SessionHandler struct {
	repos  *repository.Manager
	logger *zap.Logger
}

// NewSessionHandler 创建会话查询处理器
func NewSessionHandler(repos *repository.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		repos:  repos,
		logger: logger,
	}
}

// Query 查询会话列表
func (h *SessionHandler) Query(c *gin.Context) {
	query := &models.CaptureSessionQuery{}

	// 解析查询参数
	query.SerialNumber = c.Query("serial_number")
	if mode := c.Query("mode"); mode != "" {
		query.Mode = models.CaptureMode(mode)
	}
	if reason := c.Query("stop_reason"); reason != "" {
		query.StopReason = models.StopReason(reason)
	}

	// 时间范围
	if startTime := c.Query("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			query.StartTime = &t
		}
	}
	if endTime := c.Query("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			query.EndTime = &t
		}
	}

	// 是否有错误
	if hasError := c.Query("has_error"); hasError == "true" {
		b := true
		query.HasError = &b
	}

	// 分页参数
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, total, err := h.repos.CaptureSession().Query(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   sessions,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// Get 查询单个会话
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("session_id")

	session, err := h.repos.CaptureSession().FindBySessionID(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "会话未找到",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetStats 获取会话统计信息
func (h *SessionHandler) GetStats(c *gin.Context) {
	serialNumber := c.Query("serial_number")

	stats, err := h.repos.CaptureSession().GetStatistics(c.Request.Context(), serialNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取统计失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Cleanup 清理旧会话记录
func (h *SessionHandler) Cleanup(c *gin.Context) {
	// 获取保留天数
	retentionDays, _ := strconv.Atoi(c.DefaultPostForm("retention_days", "30"))
	if retentionDays < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "保留天数必须大于0",
		})
		return
	}

	ctx := c.Request.Context()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	count, err := h.repos.CaptureSession().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "清理失败",
			"message": err.Error(),
		})
		return
	}

	// 关联的帧记录和设备事件一并清理
	if _, err := h.repos.FrameRecord().DeleteOlderThan(ctx, cutoff); err != nil {
		h.logger.Warn("清理帧记录失败", zap.Error(err))
	}
	if _, err := h.repos.DeviceEvent().DeleteOlderThan(ctx, cutoff); err != nil {
		h.logger.Warn("清理设备事件失败", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "清理成功",
		"deleted":        count,
		"retention_days": retentionDays,
	})
}
