package uvc

import (
	"math"
	"sync"
	"time"
)

// WaitResult 等待结果
type WaitResult int

const (
	WaitExpired WaitResult = iota // 时长到期
	WaitStopped                   // 外部停止
)

// AcquisitionTimer 采集时长策略：仅由采集模式和帧率配置决定会话何时结束，
// 与实际到帧无关。等待基于停止信号唤醒，外部停止在1秒内（实际立即）被观察到，
// 不做忙等
type AcquisitionTimer struct {
	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewAcquisitionTimer 创建采集定时器
func NewAcquisitionTimer() *AcquisitionTimer {
	return &AcquisitionTimer{
		stopCh:  make(chan struct{}),
		stopped: true,
	}
}

// Begin 为新会话重新武装定时器
func (t *AcquisitionTimer) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopCh = make(chan struct{})
	t.stopped = false
}

// Stop 发出外部停止信号，幂等，可与到期并发
func (t *AcquisitionTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.stopCh)
}

// Wait 按采集模式等待会话结束
// SingleShot: 等待一个帧周期；Snapshot: 等待SnapshotDuration计算的时长；
// Continuous: 无上限等待外部停止
func (t *AcquisitionTimer) Wait(mode OperatingMode, frameRate, frameCount int) WaitResult {
	t.mu.Lock()
	stopCh := t.stopCh
	t.mu.Unlock()

	switch mode {
	case ModeContinuous:
		<-stopCh
		return WaitStopped
	case ModeSingleShot:
		return t.waitOrStop(SingleShotDuration(frameRate), stopCh)
	default:
		return t.waitOrStop(SnapshotDuration(frameCount, frameRate), stopCh)
	}
}

// waitOrStop 等待时长到期或外部停止，先到者为准
func (t *AcquisitionTimer) waitOrStop(d time.Duration, stopCh chan struct{}) WaitResult {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-stopCh:
		return WaitStopped
	case <-timer.C:
		return WaitExpired
	}
}

// SingleShotDuration 单帧模式等待时长：恰好一个帧周期
func SingleShotDuration(frameRate int) time.Duration {
	if frameRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(frameRate)
}

// SnapshotDuration 定量模式会话时长：ceil(n/frameRate)+1 秒
// 多出的1秒是刻意的富余量，容忍协商和启动延迟，保证请求的帧数不被截断
func SnapshotDuration(frameCount, frameRate int) time.Duration {
	if frameRate <= 0 || frameCount <= 0 {
		return time.Second
	}
	seconds := int(math.Ceil(float64(frameCount)/float64(frameRate))) + 1
	return time.Duration(seconds) * time.Second
}
