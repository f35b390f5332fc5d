package uvc

import (
	"sync/atomic"
	"time"

	"github.com/wfunc/uvc-capture/internal/errors"
	"github.com/wfunc/uvc-capture/internal/logger"
	"go.uber.org/zap"
)

// FrameConverter 原始帧到图像缓冲区的纯转换器，不访问硬件和采集状态
type FrameConverter struct {
	logger *zap.Logger
	seq    atomic.Uint64
}

// NewFrameConverter 创建帧转换器
func NewFrameConverter() *FrameConverter {
	return &FrameConverter{
		logger: logger.WithModule("converter"),
	}
}

// Convert 把原始硬件帧转换为消费者可用的图像缓冲区
// 负载在返回前完整拷贝：回调返回后硬件可能立即复用原始缓冲区
// 时间戳取当前墙钟，序号在一个会话内严格递增
func (c *FrameConverter) Convert(raw *RawFrame, target PixelType) (*FrameBuffer, error) {
	if err := c.checkPrecondition(raw); err != nil {
		return nil, err
	}

	data := make([]byte, len(raw.Data))
	copy(data, raw.Data)

	return &FrameBuffer{
		PixelType: target,
		Width:     raw.Width,
		Height:    raw.Height,
		Data:      data,
		Timestamp: time.Now(),
		Sequence:  c.seq.Add(1),
	}, nil
}

// Reset 重置序号计数器，会话开始时调用
func (c *FrameConverter) Reset() {
	c.seq.Store(0)
}

// Sequence 当前序号
func (c *FrameConverter) Sequence() uint64 {
	return c.seq.Load()
}

// checkPrecondition 检查原始帧几何前置条件
// 硬件对帧几何是可信的，违反视为前置条件错误：记录日志后丢帧，不向上传播重试
func (c *FrameConverter) checkPrecondition(raw *RawFrame) error {
	if raw == nil || len(raw.Data) == 0 {
		c.logger.Error("原始帧负载为空，丢弃该帧")
		return errors.New(errors.ErrFramePrecondition, "原始帧负载为空")
	}
	if raw.Width <= 0 || raw.Height <= 0 {
		c.logger.Error("原始帧尺寸非法，丢弃该帧",
			zap.Int("width", raw.Width),
			zap.Int("height", raw.Height),
		)
		return errors.Newf(errors.ErrFramePrecondition, "原始帧尺寸非法: %dx%d", raw.Width, raw.Height)
	}
	return nil
}
