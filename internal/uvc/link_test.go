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

func defaultStreamConfig() StreamConfig {
	return StreamConfig{
		Format:    PixelTypeMJPEG,
		Width:     640,
		Height:    480,
		FrameRate: 30,
	}
}

func TestHardwareLink_Connect_Success(t *testing.T) {
	hw := NewMockHardware()
	link := NewHardwareLink(hw)

	identity, err := link.Connect("CAM001")
	require.NoError(t, err)
	require.NotNil(t, identity)

	// 设备标识与模拟硬件描述符一致
	assert.Equal(t, "MockVision", identity.Manufacturer)
	assert.Equal(t, uint16(0x0bda), identity.VendorID)
	assert.Equal(t, uint16(0x5806), identity.ProductID)
	assert.Equal(t, "CAM001", identity.SerialNumber)
	assert.True(t, link.IsConnected())

	calls := hw.Calls()
	assert.Equal(t, 1, calls.InitContext)
	assert.Equal(t, 1, calls.Find)
	assert.Equal(t, 1, calls.Open)
	assert.Zero(t, calls.ExitContext)
	assert.Zero(t, calls.Close)
	assert.Zero(t, calls.Unref)
}

func TestHardwareLink_Connect_InitFailure(t *testing.T) {
	hw := NewMockHardware()
	hw.FailInit = true
	link := NewHardwareLink(hw)

	_, err := link.Connect("CAM001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrContextInit))
	assert.False(t, link.IsConnected())

	// 第一步就失败：没有任何资源需要释放
	calls := hw.Calls()
	assert.Equal(t, 1, calls.InitContext)
	assert.Zero(t, calls.ExitContext)
	assert.Zero(t, calls.Find)
	assert.Zero(t, calls.Open)
}

func TestHardwareLink_Connect_FindFailure(t *testing.T) {
	hw := NewMockHardware()
	link := NewHardwareLink(hw)

	_, err := link.Connect("NO-SUCH-SERIAL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDeviceNotFound))

	// 查找失败：已初始化的上下文必须释放，没有设备引用泄漏
	calls := hw.Calls()
	assert.Equal(t, 1, calls.InitContext)
	assert.Equal(t, 1, calls.ExitContext)
	assert.Equal(t, 1, calls.Find)
	assert.Zero(t, calls.Open)
	assert.Zero(t, calls.Unref)
}

func TestHardwareLink_Connect_OpenFailure(t *testing.T) {
	hw := NewMockHardware()
	hw.FailOpen = true
	link := NewHardwareLink(hw)

	_, err := link.Connect("CAM001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDeviceOpen))

	// 打开失败：设备引用和上下文都已释放，句柄从未获得
	calls := hw.Calls()
	assert.Equal(t, 1, calls.InitContext)
	assert.Equal(t, 1, calls.ExitContext)
	assert.Equal(t, 1, calls.Unref)
	assert.Equal(t, 1, calls.Open)
	assert.Zero(t, calls.Close)
}

func TestHardwareLink_Connect_DescriptorFailure(t *testing.T) {
	hw := NewMockHardware()
	hw.FailDescriptor = true
	link := NewHardwareLink(hw)

	_, err := link.Connect("CAM001")
	require.Error(t, err)
	assert.False(t, link.IsConnected())

	// 已获取的三层资源全部释放
	calls := hw.Calls()
	assert.Equal(t, 1, calls.ExitContext)
	assert.Equal(t, 1, calls.Unref)
	assert.Equal(t, 1, calls.Close)
}

func TestHardwareLink_Disconnect_Idempotent(t *testing.T) {
	hw := NewMockHardware()
	link := NewHardwareLink(hw)

	// 未连接时断开是空操作
	link.Disconnect()
	assert.Zero(t, hw.Calls().ExitContext)

	_, err := link.Connect("CAM001")
	require.NoError(t, err)

	link.Disconnect()
	link.Disconnect()

	// 重复断开不会二次释放
	calls := hw.Calls()
	assert.Equal(t, 1, calls.Close)
	assert.Equal(t, 1, calls.Unref)
	assert.Equal(t, 1, calls.ExitContext)
	assert.False(t, link.IsConnected())
	assert.Nil(t, link.Identity())
}

func TestHardwareLink_NegotiateFormat_NotConnected(t *testing.T) {
	hw := NewMockHardware()
	link := NewHardwareLink(hw)

	err := link.NegotiateFormat(defaultStreamConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
}

func TestHardwareLink_NegotiateFormat_Unsupported(t *testing.T) {
	hw := NewMockHardware()
	hw.FailNegotiate = true
	link := NewHardwareLink(hw)

	_, err := link.Connect("CAM001")
	require.NoError(t, err)

	err = link.NegotiateFormat(defaultStreamConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNegotiation))
}

func TestHardwareLink_StopStreaming_Barrier(t *testing.T) {
	hw := NewMockHardware()
	hw.DisableProducer = true
	link := NewHardwareLink(hw)

	_, err := link.Connect("CAM001")
	require.NoError(t, err)
	require.NoError(t, link.NegotiateFormat(defaultStreamConfig()))

	var delivered atomic.Int64
	require.NoError(t, link.StartStreaming(func(frame *RawFrame) {
		delivered.Add(1)
	}))

	// 并发注入帧的同时停止推流
	frame := &RawFrame{
		Format: PixelTypeMJPEG,
		Width:  640,
		Height: 480,
		Data:   []byte{0xff, 0xd8, 0xff},
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hw.PushFrame(frame)
		}()
	}

	link.StopStreaming()
	observed := delivered.Load()

	// 屏障语义：StopStreaming返回后不再有任何回调执行
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, observed, delivered.Load())
	assert.False(t, hw.PushFrame(frame))
	wg.Wait()
}
