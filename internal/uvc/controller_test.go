package uvc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/uvc-capture/internal/errors"
)

func newTestController(hw *MockHardware) *StreamController {
	return NewStreamController(NewHardwareLink(hw))
}

func TestStreamController_StartTransitions(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	c := newTestController(hw)

	assert.Equal(t, StateIdle, c.State())

	err := c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, c.State())

	require.NoError(t, c.Stop())
	assert.Equal(t, StateIdle, c.State())
}

func TestStreamController_StartWhileStreaming(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	c := newTestController(hw)

	require.NoError(t, c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1"))

	// 推流中的开始命令被拒绝，状态不变
	err := c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyStreaming))
	assert.Equal(t, StateStreaming, c.State())

	require.NoError(t, c.Stop())
}

func TestStreamController_StopIdempotent(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	c := newTestController(hw)

	var ends atomic.Int32
	c.OnSessionEnd(func(SessionResult) {
		ends.Add(1)
	})

	// 空闲时停止是幂等空操作
	require.NoError(t, c.Stop())

	require.NoError(t, c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1"))
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	assert.Equal(t, int32(1), ends.Load())
	assert.Equal(t, 1, hw.Calls().StreamStop)
}

func TestStreamController_NegotiationFailureReverts(t *testing.T) {
	hw := NewMockHardware()
	hw.FailNegotiate = true
	c := newTestController(hw)

	err := c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNegotiation))

	// 失败回退到Idle，不开始任何部分推流
	assert.Equal(t, StateIdle, c.State())
	assert.Zero(t, hw.Calls().StreamStart)
}

func TestStreamController_StreamStartFailureReverts(t *testing.T) {
	hw := NewMockHardware()
	hw.FailStart = true
	c := newTestController(hw)

	err := c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStreamStart))
	assert.Equal(t, StateIdle, c.State())
}

func TestStreamController_ConcurrentStops(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	c := newTestController(hw)

	var ends atomic.Int32
	c.OnSessionEnd(func(SessionResult) {
		ends.Add(1)
	})

	require.NoError(t, c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1"))

	// 手动停止与定时器停止并发，恰好一次拆除
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Stop()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ends.Load())
	assert.Equal(t, 1, hw.Calls().StreamStop)
	assert.Equal(t, StateIdle, c.State())
}

func TestStreamController_TimerStopMatchesManualStop(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	c := newTestController(hw)

	results := make(chan SessionResult, 1)
	c.OnSessionEnd(func(r SessionResult) {
		results <- r
	})

	// 单帧模式，帧率100 -> 定时器10ms后到期
	require.NoError(t, c.StartSession("CAM001", defaultStreamConfig(), ModeSingleShot, 0, "s1"))

	select {
	case r := <-results:
		assert.Equal(t, StopCauseTimer, r.Cause)
		assert.Equal(t, "s1", r.Tag)
	case <-time.After(2 * time.Second):
		t.Fatal("定时器到期未触发停止")
	}
	assert.Equal(t, StateIdle, c.State())

	// 与手动停止走完全相同的停止流程
	assert.Equal(t, 1, hw.Calls().StreamStop)
}

func TestStreamController_FrameDelivery(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	c := newTestController(hw)

	var mu sync.Mutex
	var frames []*FrameBuffer
	c.OnFrame(func(buf *FrameBuffer) {
		mu.Lock()
		frames = append(frames, buf)
		mu.Unlock()
	})

	require.NoError(t, c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1"))

	raw := &RawFrame{
		Format: PixelTypeMJPEG,
		Width:  640,
		Height: 480,
		Data:   []byte{0xff, 0xd8},
	}
	for i := 0; i < 3; i++ {
		require.True(t, hw.PushFrame(raw))
	}

	received, dropped := c.Counters()
	assert.Equal(t, 3, received)
	assert.Zero(t, dropped)

	mu.Lock()
	require.Len(t, frames, 3)
	for i, buf := range frames {
		assert.Equal(t, uint64(i+1), buf.Sequence)
		assert.Equal(t, 640, buf.Width)
		assert.Equal(t, 480, buf.Height)
	}
	mu.Unlock()

	require.NoError(t, c.Stop())
}

func TestStreamController_PreconditionViolationDropsFrame(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	c := newTestController(hw)

	var delivered atomic.Int32
	c.OnFrame(func(*FrameBuffer) {
		delivered.Add(1)
	})

	require.NoError(t, c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1"))

	// 负载为空的帧：记录日志后丢弃，绝不触发停止
	hw.PushFrame(&RawFrame{Format: PixelTypeMJPEG, Width: 640, Height: 480})

	received, dropped := c.Counters()
	assert.Zero(t, received)
	assert.Equal(t, 1, dropped)
	assert.Zero(t, delivered.Load())
	assert.Equal(t, StateStreaming, c.State())

	require.NoError(t, c.Stop())
}

func TestStreamController_SequenceResetsPerSession(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	c := newTestController(hw)

	var mu sync.Mutex
	var sequences []uint64
	c.OnFrame(func(buf *FrameBuffer) {
		mu.Lock()
		sequences = append(sequences, buf.Sequence)
		mu.Unlock()
	})

	raw := &RawFrame{Format: PixelTypeMJPEG, Width: 640, Height: 480, Data: []byte{1}}

	require.NoError(t, c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s1"))
	hw.PushFrame(raw)
	hw.PushFrame(raw)
	require.NoError(t, c.Stop())

	require.NoError(t, c.StartSession("CAM001", defaultStreamConfig(), ModeContinuous, 0, "s2"))
	hw.PushFrame(raw)
	require.NoError(t, c.Stop())

	mu.Lock()
	assert.Equal(t, []uint64{1, 2, 1}, sequences)
	mu.Unlock()
}
