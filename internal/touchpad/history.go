package touchpad

import "time"

// historyLength はモーション履歴のサンプル数
const historyLength = 4

type historySample struct {
	point Point
	time  time.Time
}

// motionHistory は固定長の循環バッファ
type motionHistory struct {
	samples [historyLength]historySample
	index   int
	count   int
}

func (h *motionHistory) push(p Point, t time.Time) {
	idx := (h.index + 1) % historyLength
	if h.count < historyLength {
		h.count++
	}
	h.samples[idx] = historySample{point: p, time: t}
	h.index = idx
}

func (h *motionHistory) reset() {
	h.count = 0
}

// offset は最新から n 番目のサンプルを返す。n が保持数以上なら ok は false
func (h *motionHistory) offset(n int) (s *historySample, ok bool) {
	if n < 0 || n >= h.count {
		return nil, false
	}
	return &h.samples[(h.index-n+historyLength)%historyLength], true
}

// latest は最新のサンプル
func (h *motionHistory) latest() (*historySample, bool) {
	return h.offset(0)
}
