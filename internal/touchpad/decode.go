package touchpad

import (
	"time"

	"github.com/char5742/touchpad-frames/internal/event"
)

// Process はカーネルからのイベントを1つ処理する。
// 期限切れのタイマーをイベント時刻で発火させてから処理し、
// SYN_REPORT でフレームを確定させる
func (d *Dispatch) Process(ev event.Event) {
	now := ev.Timestamp()
	d.AdvanceTimers(now)

	switch ev.Type {
	case event.Abs:
		if d.hasMT {
			d.processAbsolute(ev, now)
		} else {
			d.processAbsoluteST(ev)
		}
	case event.Key:
		d.processKey(ev, now)
	case event.Msc:
		d.processMsc(ev)
	case event.Syn:
		if ev.Code == event.SynReport {
			d.handleState(now)
		}
	}
}

func (d *Dispatch) currentTouch() *Touch {
	if d.slot >= len(d.touches) {
		return &d.touches[len(d.touches)-1]
	}
	return &d.touches[d.slot]
}

// rotated は左手用の180度回転を適用する
func (d *Dispatch) rotated(code uint16, value int32) int32 {
	if !d.leftHanded.rotate {
		return value
	}
	switch code {
	case event.AbsX, event.AbsMtPositionX:
		return d.absX.Max - (value - d.absX.Min)
	default:
		return d.absY.Max - (value - d.absY.Min)
	}
}

func (d *Dispatch) checkAxisRange(code uint16, value int32, now time.Time) {
	var lo, hi int32
	switch code {
	case event.AbsX, event.AbsMtPositionX:
		lo, hi = d.axisWarning.minX, d.axisWarning.maxX
	default:
		lo, hi = d.axisWarning.minY, d.axisWarning.maxY
	}
	if value < lo || value > hi {
		d.kernelBugRatelimit(d.axisWarning.limit, now, -1,
			"Axis %#x value %d is outside expected range [%d, %d]", code, value, lo, hi)
	}
}

func (d *Dispatch) processAbsolute(ev event.Event, now time.Time) {
	t := d.currentTouch()

	switch ev.Code {
	case event.AbsMtPositionX:
		d.checkAxisRange(ev.Code, ev.Value, now)
		t.Point.X = d.rotated(ev.Code, ev.Value)
		t.Dirty = true
		d.queued |= queuedMotion
	case event.AbsMtPositionY:
		d.checkAxisRange(ev.Code, ev.Value, now)
		t.Point.Y = d.rotated(ev.Code, ev.Value)
		t.Dirty = true
		d.queued |= queuedMotion
	case event.AbsMtSlot:
		if ev.Value < 0 || int(ev.Value) >= len(d.touches) {
			d.kernelBug(-1, "slot %d out of range (%d touches)", ev.Value, len(d.touches))
			d.slot = len(d.touches) - 1
			if ev.Value < 0 {
				d.slot = 0
			}
			return
		}
		d.slot = int(ev.Value)
	case event.AbsMtTrackingId:
		if ev.Value != -1 {
			d.nactiveSlots++
			d.newTouch(t, now)
		} else {
			if d.nactiveSlots < 1 {
				d.internalBug(t.Index, "tracking id released with no active slots")
			} else {
				d.nactiveSlots--
			}
			d.endSequence(t, now)
		}
	case event.AbsMtPressure:
		t.Pressure = ev.Value
		t.Dirty = true
		d.queued |= queuedOtherAxis
	case event.AbsMtToolType:
		t.isToolPalm = ev.Value == event.MtToolPalm
		t.Dirty = true
		d.queued |= queuedOtherAxis
	case event.AbsMtTouchMajor:
		t.Major = ev.Value
		t.Dirty = true
		d.queued |= queuedOtherAxis
	case event.AbsMtTouchMinor:
		t.Minor = ev.Value
		t.Dirty = true
		d.queued |= queuedOtherAxis
	}
}

func (d *Dispatch) processAbsoluteST(ev event.Event) {
	t := d.currentTouch()

	switch ev.Code {
	case event.AbsX:
		d.checkAxisRange(ev.Code, ev.Value, ev.Timestamp())
		t.Point.X = d.rotated(ev.Code, ev.Value)
		t.Dirty = true
		d.queued |= queuedMotion
	case event.AbsY:
		d.checkAxisRange(ev.Code, ev.Value, ev.Timestamp())
		t.Point.Y = d.rotated(ev.Code, ev.Value)
		t.Dirty = true
		d.queued |= queuedMotion
	case event.AbsPressure:
		t.Pressure = ev.Value
		t.Dirty = true
		d.queued |= queuedOtherAxis
	}
}

func (d *Dispatch) processKey(ev event.Event, now time.Time) {
	// キーリピートは無視
	if ev.Value == 2 {
		return
	}
	pressed := ev.Value != 0

	switch ev.Code {
	case event.MouseBtnLeft, event.MouseBtnRight, event.MouseBtnMiddle:
		d.processButton(ev.Code, pressed, now)
	case event.BtnTouch,
		event.BtnToolFinger,
		event.BtnToolDoubleTap,
		event.BtnToolTripleTap,
		event.BtnToolQuadTap,
		event.BtnToolQuintTap:
		d.fake.set(ev.Code, pressed)
	case event.Btn0, event.Btn1, event.Btn2:
		d.processTrackpointButton(ev.Code, pressed, now)
	}
}

func (d *Dispatch) processButton(code uint16, pressed bool, now time.Time) {
	var bit uint32
	switch code {
	case event.MouseBtnLeft:
		bit = buttonLeft
	case event.MouseBtnRight:
		bit = buttonRight
	case event.MouseBtnMiddle:
		bit = buttonMiddle
	}
	if pressed {
		d.buttons.state |= bit
		d.queued |= queuedButtonPress
	} else {
		d.buttons.state &^= bit
	}
	d.consumers.Buttons.ProcessButton(code, pressed, now)
}

// processTrackpointButton はトラックポイントのボタンを左・右・中ボタンとして転送する
func (d *Dispatch) processTrackpointButton(code uint16, pressed bool, now time.Time) {
	if d.consumers.TrackpointButton == nil {
		return
	}
	switch code {
	case event.Btn0:
		code = event.MouseBtnLeft
	case event.Btn1:
		code = event.MouseBtnRight
	case event.Btn2:
		code = event.MouseBtnMiddle
	default:
		return
	}
	d.consumers.TrackpointButton(code, pressed, now)
}

func (d *Dispatch) processMsc(ev event.Event) {
	if ev.Code != event.MscTimestamp {
		return
	}
	d.msc.now = uint32(ev.Value)
	d.queued |= queuedTimestamp
}
