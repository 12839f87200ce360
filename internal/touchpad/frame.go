package touchpad

import "time"

// handleState は1フレーム分の処理。4つのフェーズを必ずこの順に実行する
func (d *Dispatch) handleState(now time.Time) {
	d.preProcessState(now)
	d.processState(now)
	d.postEvents(now)
	d.postProcessState(now)

	d.checkInvariants()
	d.applyRotation()
}

func (d *Dispatch) preProcessState(now time.Time) {
	if d.queued&queuedTimestamp != 0 {
		d.processMscTimestamp(now)
	}

	d.processFakeTouches(now)
	d.unhoverTouches(now)

	for i := range d.touches {
		t := &d.touches[i]
		if t.State == TouchMaybeEnd {
			d.endTouch(t, now)
		}

		// 圧力やサイズが閾値を下回って終了したタッチの最後の動きは無視する
		if t.State == TouchEnd {
			if last, ok := t.history.latest(); ok {
				t.Point = last.point
			}
		}
	}
}

func (d *Dispatch) processState(now time.Time) {
	restartFilter := false
	haveNewTouch := false

	d.positionFakeTouches()

	wantMotionReset := d.needMotionHistoryReset()

	for i := range d.touches {
		t := &d.touches[i]
		if t.State == TouchNone {
			continue
		}

		if wantMotionReset {
			t.history.reset()
			t.quirks.resetMotionHistory = true
		} else if t.quirks.resetMotionHistory {
			t.history.reset()
			t.quirks.resetMotionHistory = false
		}

		if t.jumps.pending {
			t.jumps.pending = false
			if t.State == TouchUpdate {
				// ジャンプ先を新しい起点にする
				if !t.Dirty {
					t.Point = t.jumps.target
					t.Dirty = true
				}
				t.history.reset()
			}
		}

		if !t.Dirty {
			// 動いていないタッチは同じ位置にあるとして履歴に積む
			if t.speed.exceededCount > 0 {
				t.speed.exceededCount--
			}
			t.history.push(t.Point, now)
			continue
		}

		if d.detectJumps(t, now) {
			if !d.semiMT {
				d.kernelBugRatelimit(d.jump.warning, now, t.Index, "Touch jump detected and discarded")
			}
			t.history.reset()
		}

		d.consumers.Thumb.UpdateTouch(t, now)
		d.palmDetect(t, now)
		d.detectWobbling(t, now)
		d.motionHysteresis(t)
		t.history.push(t.Point, now)

		d.updateSpeedExceeded(t)
		d.calculateMotionSpeed(t, now)

		d.unpinFinger(t)

		if t.State == TouchBegin {
			haveNewTouch = true
			restartFilter = true
		}
	}

	if d.consumers.Thumb.Enabled() && haveNewTouch && d.nfingersDown >= 2 {
		d.consumers.Thumb.UpdateMultifinger()
	}

	if restartFilter {
		d.consumers.Filter.Restart(now)
	}

	d.consumers.Buttons.HandleState(now)
	d.consumers.Edge.HandleState(now)

	// クリックパッドの物理ボタン押下
	if d.queued&queuedButtonPress != 0 && d.clickpad {
		d.pinFingers()
	}

	d.consumers.Gestures.HandleState(now)
}

func (d *Dispatch) postEvents(now time.Time) {
	c := &d.consumers

	// サスペンド中はボタンだけ
	if d.suspended {
		c.Buttons.PostEvents(now)
		return
	}

	ignoreMotion := c.Tap.HandleState(now)
	if c.Buttons.PostEvents(now) {
		ignoreMotion = true
	}

	if d.palm.trackpointActive || d.dwt.keyboardActive {
		c.Edge.StopEvents(now)
		c.Gestures.Cancel(now)
		return
	}

	if ignoreMotion {
		c.Edge.StopEvents(now)
		c.Gestures.CancelMotionGestures(now)
		c.Gestures.PostEvents(now, true)
		return
	}

	if c.Edge.PostEvents(now) {
		return
	}

	c.Gestures.PostEvents(now, false)
}

func (d *Dispatch) postProcessState(now time.Time) {
	for i := range d.touches {
		t := &d.touches[i]
		if !t.Dirty {
			continue
		}

		switch t.State {
		case TouchEnd:
			if t.HasEnded {
				t.State = TouchNone
			} else {
				t.State = TouchHovering
			}
		case TouchBegin:
			t.State = TouchUpdate
		}
		t.Dirty = false
	}

	d.oldNfingersDown = d.nfingersDown
	d.buttons.oldState = d.buttons.state
	d.queued = 0

	if d.nfingersDown == 0 {
		d.consumers.Thumb.Reset()
	}

	d.consumers.Tap.PostProcess()
}

// checkInvariants はフレーム終了時の不変条件を確認し、違反していれば報告して補正する
func (d *Dispatch) checkInvariants() {
	if d.nfingersDown < 0 || d.nfingersDown > len(d.touches) {
		d.internalBug(-1, "finger count %d outside [0, %d]", d.nfingersDown, len(d.touches))
		d.clampFingers()
		d.oldNfingersDown = d.nfingersDown
	}
	if d.slot < 0 || d.slot >= len(d.touches) {
		d.internalBug(-1, "slot %d outside [0, %d)", d.slot, len(d.touches))
		d.slot = 0
	}
	for i := range d.touches {
		if d.touches[i].State == TouchMaybeEnd {
			d.internalBug(i, "touch %d left in MAYBE_END", i)
		}
	}
}

// applyRotation は左手用の回転を、指が置かれていないときにだけ切り替える
func (d *Dispatch) applyRotation() {
	if d.leftHanded.want == d.leftHanded.rotate {
		return
	}
	if d.nfingersDown != 0 {
		return
	}
	d.leftHanded.rotate = d.leftHanded.want
	d.debugf(-1, "touchpad-rotation: rotation is %v", d.leftHanded.rotate)
}
