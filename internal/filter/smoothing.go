// Package filter はタッチパッドの移動量に掛ける既定のポインタフィルタ
package filter

import (
	"sync"
	"time"
)

// motionTimeout より間隔が空いたら履歴を捨てて立ち上がりからやり直す
const motionTimeout = time.Second

// Smoothing は移動量(dx, dy)を指数移動平均で滑らかにする。
// 時刻はすべてイベントの時刻で、壁時計は使わない
type Smoothing struct {
	mu sync.Mutex

	smoothingFactor float64 // 0.0-1.0。1.0に近いほど滑らかだが遅れる
	warmUpCount     int

	lastDX       float64
	lastDY       float64
	lastTime     time.Time
	currentCount int
	initialized  bool
	restarts     int
}

// NewSmoothing は新しいフィルタを作成する
func NewSmoothing(smoothingFactor float64, warmUpCount int) *Smoothing {
	if smoothingFactor < 0 {
		smoothingFactor = 0
	}
	if smoothingFactor > 1 {
		smoothingFactor = 1
	}
	return &Smoothing{
		smoothingFactor: smoothingFactor,
		warmUpCount:     warmUpCount,
	}
}

// Filter は now 時点の移動量を滑らかにする
func (s *Smoothing) Filter(dx, dy int32, now time.Time) (int32, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized && now.Sub(s.lastTime) > motionTimeout {
		s.reset(now)
	}
	s.lastTime = now

	// 立ち上がりはそのまま通す
	if !s.initialized || s.currentCount < s.warmUpCount {
		s.currentCount++
		s.lastDX = float64(dx)
		s.lastDY = float64(dy)
		s.initialized = true
		return dx, dy
	}

	f := s.smoothingFactor
	newDX := float64(dx)*(1.0-f) + s.lastDX*f
	newDY := float64(dy)*(1.0-f) + s.lastDY*f
	s.lastDX = newDX
	s.lastDY = newDY

	return round(newDX), round(newDY)
}

// Restart は履歴を捨てる。タイムスタンプの補正で時刻が巻き戻るときに呼ばれる
func (s *Smoothing) Restart(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(now)
	s.restarts++
}

// Restarts は Restart が呼ばれた回数
func (s *Smoothing) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *Smoothing) reset(now time.Time) {
	s.lastDX = 0
	s.lastDY = 0
	s.currentCount = 0
	s.initialized = false
	s.lastTime = now
}

func round(v float64) int32 {
	if v < 0 {
		return int32(v - 0.5)
	}
	return int32(v + 0.5)
}
