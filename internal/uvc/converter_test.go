package uvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/uvc-capture/internal/errors"
)

func TestFrameConverter_Convert_RoundTrip(t *testing.T) {
	conv := NewFrameConverter()

	raw := &RawFrame{
		Format:      PixelTypeMJPEG,
		Width:       1280,
		Height:      720,
		Data:        []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9},
		CaptureTime: time.Now(),
	}

	before := time.Now()
	buf, err := conv.Convert(raw, PixelTypeMJPEG)
	require.NoError(t, err)

	assert.Equal(t, PixelTypeMJPEG, buf.PixelType)
	assert.Equal(t, 1280, buf.Width)
	assert.Equal(t, 720, buf.Height)
	assert.Equal(t, raw.Data, buf.Data)
	assert.Equal(t, uint64(1), buf.Sequence)
	assert.False(t, buf.Timestamp.Before(before))
	assert.False(t, buf.Timestamp.After(time.Now()))
}

func TestFrameConverter_Convert_CopiesPayload(t *testing.T) {
	conv := NewFrameConverter()

	raw := &RawFrame{
		Format: PixelTypeMJPEG,
		Width:  640,
		Height: 480,
		Data:   []byte{1, 2, 3, 4},
	}
	buf, err := conv.Convert(raw, PixelTypeMJPEG)
	require.NoError(t, err)

	// 模拟硬件在回调返回后立即复用原始缓冲区
	raw.Data[0] = 0xee
	raw.Data[3] = 0xee
	assert.Equal(t, []byte{1, 2, 3, 4}, buf.Data)
}

func TestFrameConverter_SequenceStrictlyIncreasing(t *testing.T) {
	conv := NewFrameConverter()

	raw := &RawFrame{
		Format: PixelTypeMJPEG,
		Width:  640,
		Height: 480,
		Data:   []byte{0xff},
	}

	var last uint64
	for i := 0; i < 10; i++ {
		buf, err := conv.Convert(raw, PixelTypeMJPEG)
		require.NoError(t, err)
		assert.Greater(t, buf.Sequence, last)
		last = buf.Sequence
	}
	assert.Equal(t, uint64(10), last)

	// 新会话重置序号
	conv.Reset()
	buf, err := conv.Convert(raw, PixelTypeMJPEG)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), buf.Sequence)
}

func TestFrameConverter_Preconditions(t *testing.T) {
	conv := NewFrameConverter()

	// 空帧
	_, err := conv.Convert(nil, PixelTypeMJPEG)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFramePrecondition))

	// 空负载
	_, err = conv.Convert(&RawFrame{Width: 640, Height: 480}, PixelTypeMJPEG)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFramePrecondition))

	// 非法尺寸
	_, err = conv.Convert(&RawFrame{Width: 0, Height: 480, Data: []byte{1}}, PixelTypeMJPEG)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFramePrecondition))

	_, err = conv.Convert(&RawFrame{Width: 640, Height: -1, Data: []byte{1}}, PixelTypeMJPEG)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFramePrecondition))

	// 前置条件失败不影响后续序号的单调性
	buf, err := conv.Convert(&RawFrame{Width: 640, Height: 480, Data: []byte{1}}, PixelTypeMJPEG)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), buf.Sequence)
}
