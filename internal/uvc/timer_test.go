package uvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDuration(t *testing.T) {
	// n=30, r=10 -> ceil(30/10)+1 = 4秒
	assert.Equal(t, 4*time.Second, SnapshotDuration(30, 10))
	// n=1, r=30 -> ceil(1/30)+1 = 2秒
	assert.Equal(t, 2*time.Second, SnapshotDuration(1, 30))
	// n=25, r=10 -> ceil(2.5)+1 = 4秒
	assert.Equal(t, 4*time.Second, SnapshotDuration(25, 10))
	// 非法输入回退到1秒
	assert.Equal(t, time.Second, SnapshotDuration(0, 10))
	assert.Equal(t, time.Second, SnapshotDuration(10, 0))
}

func TestSnapshotDuration_NeverTruncates(t *testing.T) {
	// 会话时长必须不小于 n/r 秒
	cases := []struct{ n, r int }{
		{30, 10}, {1, 1}, {100, 7}, {5, 30}, {60, 60},
	}
	for _, c := range cases {
		minimum := time.Duration(float64(c.n) / float64(c.r) * float64(time.Second))
		assert.GreaterOrEqual(t, SnapshotDuration(c.n, c.r), minimum,
			"n=%d r=%d", c.n, c.r)
	}
}

func TestSingleShotDuration(t *testing.T) {
	assert.Equal(t, time.Second/30, SingleShotDuration(30))
	assert.Equal(t, time.Second, SingleShotDuration(1))
	assert.Equal(t, time.Second, SingleShotDuration(0))
}

func TestAcquisitionTimer_SingleShotExpires(t *testing.T) {
	timer := NewAcquisitionTimer()
	timer.Begin()

	start := time.Now()
	result := timer.Wait(ModeSingleShot, 100, 0)
	assert.Equal(t, WaitExpired, result)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquisitionTimer_ContinuousNeverSelfTerminates(t *testing.T) {
	timer := NewAcquisitionTimer()
	timer.Begin()

	done := make(chan WaitResult, 1)
	go func() {
		done <- timer.Wait(ModeContinuous, 30, 0)
	}()

	// 没有外部停止信号时连续模式不会自行结束
	select {
	case result := <-done:
		t.Fatalf("连续模式不应自行结束: %v", result)
	case <-time.After(200 * time.Millisecond):
	}

	timer.Stop()
	select {
	case result := <-done:
		assert.Equal(t, WaitStopped, result)
	case <-time.After(time.Second):
		t.Fatal("停止信号后等待未返回")
	}
}

func TestAcquisitionTimer_StopResponsiveness(t *testing.T) {
	timer := NewAcquisitionTimer()
	timer.Begin()

	done := make(chan WaitResult, 1)
	go func() {
		// 计算时长约17分钟，外部停止必须在1秒内被观察到
		done <- timer.Wait(ModeSnapshot, 1, 1000)
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	timer.Stop()

	select {
	case result := <-done:
		assert.Equal(t, WaitStopped, result)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(time.Second):
		t.Fatal("外部停止未在1秒内被观察到")
	}
}

func TestAcquisitionTimer_StopIdempotent(t *testing.T) {
	timer := NewAcquisitionTimer()
	timer.Begin()

	timer.Stop()
	timer.Stop()

	// 停止后等待立即返回
	result := timer.Wait(ModeContinuous, 30, 0)
	require.Equal(t, WaitStopped, result)
}

func TestAcquisitionTimer_BeginRearms(t *testing.T) {
	timer := NewAcquisitionTimer()

	timer.Begin()
	timer.Stop()
	assert.Equal(t, WaitStopped, timer.Wait(ModeContinuous, 30, 0))

	// 重新武装后上一会话的停止信号不再生效
	timer.Begin()
	assert.Equal(t, WaitExpired, timer.Wait(ModeSingleShot, 100, 0))
}
