package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/uvc-capture/internal/errors"
	"github.com/wfunc/uvc-capture/internal/uvc"
	"go.uber.org/zap"
)

// CameraHandler 相机控制处理器
type CameraHandler struct {
	device *uvc.DeviceController
	logger *zap.Logger
}

// NewCameraHandler 创建相机控制处理器
func NewCameraHandler(device *uvc.DeviceController, logger *zap.Logger) *CameraHandler {
	return &CameraHandler{
		device: device,
		logger: logger,
	}
}

// ConfigRequest 配置更新请求，所有字段可选，缺省字段不修改
type ConfigRequest struct {
	SerialNumber *string `json:"serial_number,omitempty"`
	FrameRate    *int    `json:"frame_rate,omitempty"`
	Mode         *string `json:"mode,omitempty"`
	FrameCount   *int    `json:"frame_count,omitempty"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
}

// Start 开始采集
func (h *CameraHandler) Start(c *gin.Context) {
	if err := h.device.Start(); err != nil {
		h.respondError(c, err)
		return
	}

	status := h.device.Status()
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": status.SessionID,
		"state":      status.State,
	})
}

// Stop 停止采集，重复停止是幂等操作
func (h *CameraHandler) Stop(c *gin.Context) {
	if err := h.device.Stop(); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   h.device.State(),
	})
}

// Status 查询采集状态
func (h *CameraHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.device.Status())
}

// Info 查询已连接设备信息
func (h *CameraHandler) Info(c *gin.Context) {
	identity := h.device.Identity()
	if identity == nil {
		h.respondError(c, errors.New(errors.ErrNotConnected))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"manufacturer":  identity.Manufacturer,
		"vendor_id":     identity.VendorID,
		"product_id":    identity.ProductID,
		"serial_number": identity.SerialNumber,
	})
}

// GetConfig 查询当前采集配置
func (h *CameraHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.device.Config())
}

// UpdateConfig 更新采集配置，写入在下一次开始采集时生效
func (h *CameraHandler) UpdateConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "请求体解析失败"))
		return
	}

	if req.SerialNumber != nil {
		if err := h.device.SetSerialNumber(*req.SerialNumber); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if req.FrameRate != nil {
		if err := h.device.SetFrameRate(*req.FrameRate); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if req.Mode != nil {
		if err := h.device.SetOperatingMode(uvc.OperatingMode(*req.Mode)); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if req.FrameCount != nil {
		if err := h.device.SetRequestedFrameCount(*req.FrameCount); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if req.Width != nil || req.Height != nil {
		cfg := h.device.Config()
		width, height := cfg.Width, cfg.Height
		if req.Width != nil {
			width = *req.Width
		}
		if req.Height != nil {
			height = *req.Height
		}
		if err := h.device.SetFrameSize(width, height); err != nil {
			h.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  h.device.Config(),
	})
}

// respondError 把应用错误映射为HTTP响应
func (h *CameraHandler) respondError(c *gin.Context, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}

	h.logger.Warn("相机命令失败",
		zap.Int("code", int(appErr.Code)),
		zap.String("message", appErr.Message),
		zap.String("details", appErr.Details))

	c.JSON(appErr.HTTPStatus(), gin.H{
		"success": false,
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
	})
}
