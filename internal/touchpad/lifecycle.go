package touchpad

import "time"

// newTouch はトラッキング開始でタッチを HOVERING にする。
// BTN_TOUCH がトラッキングIDより後に来ることがあるので、まだ BEGIN にはしない
func (d *Dispatch) newTouch(t *Touch, now time.Time) {
	switch t.State {
	case TouchBegin, TouchUpdate, TouchHovering:
		return
	case TouchMaybeEnd:
		// 同じフレーム内で終了と開始が来た
		d.kernelBug(t.Index, "touch %d ended and began in same frame", t.Index)
		d.nfingersDown++
		t.State = TouchUpdate
		t.HasEnded = false
		return
	}

	t.history.reset()
	t.Dirty = true
	t.HasEnded = false
	t.WasDown = false
	t.palm.state = PalmNone
	t.State = TouchHovering
	t.pinned.isPinned = false
	t.speed.lastSpeed = 0
	t.speed.exceededCount = 0
	t.hysteresis.xMotionHistory = 0
	t.jumps.pending = false
	d.queued |= queuedMotion
}

func (d *Dispatch) beginTouch(t *Touch, now time.Time) {
	t.Dirty = true
	t.State = TouchBegin
	t.initialTime = now
	t.WasDown = true
	d.nfingersDown++
	t.palm.time = now
	t.speed.exceededCount = 0
	if d.nfingersDown < 1 || d.nfingersDown > len(d.touches) {
		d.internalBug(t.Index, "finger count %d out of range after begin", d.nfingersDown)
		d.clampFingers()
	}
	d.hysteresis.lastMotionTime = now
}

// maybeEndTouch はタッチの終了を予約する。
// 前処理の最後までに END に確定するか UPDATE に戻される
func (d *Dispatch) maybeEndTouch(t *Touch, now time.Time) {
	switch t.State {
	case TouchNone, TouchMaybeEnd:
		return
	case TouchEnd:
		d.internalBug(t.Index, "touch %d: already in TOUCH_END", t.Index)
		return
	}

	if t.State == TouchHovering {
		t.State = TouchNone
	} else {
		if d.nfingersDown < 1 {
			d.internalBug(t.Index, "ending touch %d with no fingers down", t.Index)
		} else {
			d.nfingersDown--
		}
		t.State = TouchMaybeEnd
	}
	t.Dirty = true
}

// recoverEndedTouch は maybeEndTouch を取り消す
func (d *Dispatch) recoverEndedTouch(t *Touch) {
	t.Dirty = true
	t.State = TouchUpdate
	d.nfingersDown++
}

func (d *Dispatch) endTouch(t *Touch, now time.Time) {
	if t.State != TouchMaybeEnd {
		d.internalBug(t.Index, "touch %d should be MAYBE_END, is %s", t.Index, t.State)
		return
	}

	t.Dirty = true
	t.palm.state = PalmNone
	t.State = TouchEnd
	t.pinned.isPinned = false
	t.palm.time = time.Time{}
	t.speed.exceededCount = 0
	d.queued |= queuedMotion
}

// endSequence はトラッキングID -1 や BTN_TOOL_* の解放で呼ばれる
func (d *Dispatch) endSequence(t *Touch, now time.Time) {
	t.HasEnded = true
	d.maybeEndTouch(t, now)
}

func (d *Dispatch) clampFingers() {
	if d.nfingersDown < 0 {
		d.nfingersDown = 0
	}
	if d.nfingersDown > len(d.touches) {
		d.nfingersDown = len(d.touches)
	}
}

// stopActions はキーボードやトラックポイントの操作が始まったときに
// スクロール・ジェスチャー・タップを止める
func (d *Dispatch) stopActions(now time.Time) {
	d.consumers.Edge.StopEvents(now)
	d.consumers.Gestures.Cancel(now)
	d.consumers.Tap.Suspend(now)
}
