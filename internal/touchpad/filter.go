package touchpad

import (
	"math"
	"time"
)

const (
	// 親指判定に使う速度の閾値 (mm/s)
	thumbIgnoreSpeedThreshold = 20.0

	// ジャンプ判定の閾値は12ms間隔のデバイスで測定された
	jumpReferenceInterval = 12 * time.Millisecond
	jumpAbsThresholdMM    = 20.0
	jumpRelThresholdMM    = 7.0

	wobbleWindow = 40 * time.Millisecond
	// {右, 左, 右}
	wobblePattern = 0x5

	unpinThresholdMM = 1.5

	// Lenovo T450 は座標なしのイベントが続いた後の座標がジャンプする
	nonmotionEventLimit = 10

	mscFirstIntervalLimit = 20000 // µs
)

// detectWobbling は1本指の左右の細かい往復を検出し、
// 検出したらヒステリシスを以後ずっと有効にする。x 方向だけを見る
func (d *Dispatch) detectWobbling(t *Touch, now time.Time) {
	if d.nfingersDown != 1 || d.nfingersDown != d.oldNfingersDown {
		return
	}
	if d.hysteresis.enabled || t.history.count == 0 {
		return
	}
	if d.queued&queuedMotion == 0 {
		t.hysteresis.xMotionHistory = 0
		return
	}

	prev, _ := t.history.latest()
	dx := prev.point.X - t.Point.X
	dy := prev.point.Y - t.Point.Y
	dtime := now.Sub(d.hysteresis.lastMotionTime)
	d.hysteresis.lastMotionTime = now

	if (dx == 0 && dy != 0) || dtime > wobbleWindow {
		t.hysteresis.xMotionHistory = 0
		return
	}

	t.hysteresis.xMotionHistory >>= 1
	if dx > 0 {
		t.hysteresis.xMotionHistory |= 1 << 2
		if t.hysteresis.xMotionHistory == wobblePattern {
			d.hysteresis.enabled = true
			d.debugf(t.Index, "hysteresis enabled, wobbling detected")
		}
	}
}

func (d *Dispatch) motionHysteresis(t *Touch) {
	if !d.hysteresis.enabled {
		return
	}
	if t.history.count > 0 {
		t.Point = hysteresis(t.Point, t.hysteresis.center, d.hysteresis.margin)
	}
	t.hysteresis.center = t.Point
}

// needMotionHistoryReset は全タッチの履歴をリセットすべきかを返す
func (d *Dispatch) needMotionHistoryReset() bool {
	// 指の本数が変わると座標が飛ぶことがある
	if d.nfingersDown != d.oldNfingersDown {
		return true
	}

	reset := false
	if d.model&ModelLenovoT450 != 0 {
		if d.queued&queuedMotion != 0 {
			if d.nonmotionEventCount > nonmotionEventLimit {
				d.queued &^= queuedMotion
				reset = true
			}
			d.nonmotionEventCount = 0
		}
		if d.queued&(queuedOtherAxis|queuedMotion) == queuedOtherAxis {
			d.nonmotionEventCount++
		}
	}
	return reset
}

// detectJumps はカーソルジャンプを検出する。履歴に追加する前に呼ぶ
func (d *Dispatch) detectJumps(t *Touch, now time.Time) bool {
	if d.jump.disabled {
		return false
	}
	if d.model&ModelWacom != 0 {
		return false
	}
	if t.history.count == 0 {
		t.jumps.lastDeltaMM = 0
		return false
	}

	last, _ := t.history.latest()
	tdelta := now.Sub(last.time)

	reference := jumpReferenceInterval
	if d.model&ModelTestDevice != 0 {
		reference = tdelta
	}

	// 間隔が不規則すぎると判定できない
	if float64(tdelta) > 2.5*float64(reference) || tdelta <= 0 {
		return false
	}

	delta := Point{X: abs32(t.Point.X - last.point.X), Y: abs32(t.Point.Y - last.point.Y)}
	mm := d.unitDeltaToMM(delta.X, delta.Y)
	absDistance := mm.length() * float64(reference) / float64(tdelta)
	relDistance := absDistance - t.jumps.lastDeltaMM

	// ALPS (ThinkPad E465/E550) は2本指で 4095/0 を送ってくることがある
	if d.model&ModelALPSSerial != 0 && t.Point.X == 4095 && t.Point.Y == 0 {
		t.Point = last.point
		return true
	}

	isJump := absDistance > jumpAbsThresholdMM || relDistance > jumpRelThresholdMM
	t.jumps.lastDeltaMM = absDistance
	if isJump {
		// このフレームは直前の位置に留める
		t.jumps.pending = true
		t.jumps.target = t.Point
		t.Point = last.point
	}
	return isJump
}

// motionHistoryFixLast は履歴のタイムスタンプを now から等間隔に書き換える
func (d *Dispatch) motionHistoryFixLast(t *Touch, jumping, normal time.Duration, now time.Time) {
	if t.State != TouchUpdate {
		return
	}
	for i := 0; i < t.history.count; i++ {
		p, _ := t.history.offset(i)
		p.time = now.Add(-jumping - normal*time.Duration(i))
	}
}

// processMscTimestamp は MSC_TIMESTAMP でスリープ復帰後のジャンプを検出する。
// タイムスタンプは約1秒のタイムアウトで0に戻り、復帰直後に一部のイベントが失われる
func (d *Dispatch) processMscTimestamp(now time.Time) {
	m := &d.msc

	if m.now == 0 {
		m.state = mscExpectFirst
		m.interval = 0
		return
	}

	switch m.state {
	case mscExpectFirst:
		if m.now > mscFirstIntervalLimit {
			m.state = mscIgnore
		} else {
			m.state = mscExpectDelay
			m.interval = m.now
		}
	case mscExpectDelay:
		if m.now > m.interval*2 {
			tdelta := time.Duration(m.now-m.interval) * time.Microsecond
			interval := time.Duration(m.interval) * time.Microsecond

			for i := range d.touches {
				d.motionHistoryFixLast(&d.touches[i], tdelta, interval, now)
			}
			m.state = mscIgnore

			d.debugf(-1, "timestamp jump of %v detected, history rewritten", tdelta)
			d.consumers.Filter.Restart(now.Add(-tdelta))
		}
	case mscIgnore:
	}
}

// calculateMotionSpeed は直近の速度 (mm/s) を求める。履歴が4サンプルたまるまでは更新しない
func (d *Dispatch) calculateMotionSpeed(t *Touch, now time.Time) {
	if !d.hasMT || d.semiMT {
		return
	}
	if t.State != TouchUpdate {
		return
	}
	if t.history.count < historyLength {
		return
	}

	last, _ := t.history.offset(1)
	mm := d.unitDeltaToMM(abs32(t.Point.X-last.point.X), abs32(t.Point.Y-last.point.Y))
	dt := now.Sub(last.time).Seconds()
	if dt <= 0 {
		return
	}
	t.speed.lastSpeed = mm.length() / dt
}

func (d *Dispatch) updateSpeedExceeded(t *Touch) {
	if t.speed.lastSpeed > thumbIgnoreSpeedThreshold {
		if t.speed.exceededCount < speedExceededMax {
			t.speed.exceededCount++
		}
	} else if t.speed.exceededCount > 0 {
		t.speed.exceededCount--
	}
}

func (d *Dispatch) unpinFinger(t *Touch) {
	if !t.pinned.isPinned {
		return
	}
	mm := d.unitDeltaToMM(abs32(t.Point.X-t.pinned.center.X), abs32(t.Point.Y-t.pinned.center.Y))
	if math.Hypot(mm.x, mm.y) >= unpinThresholdMM {
		t.pinned.isPinned = false
	}
}

// pinFingers はクリックパッドの押下時に、押した指の微小な動きを抑えるため全タッチを固定する
func (d *Dispatch) pinFingers() {
	for i := range d.touches {
		t := &d.touches[i]
		t.pinned.isPinned = true
		t.pinned.center = t.Point
	}
}
