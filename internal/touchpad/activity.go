package touchpad

import (
	"time"

	"github.com/char5742/touchpad-frames/internal/event"
)

const (
	keyboardActivityTimeout1   = 200 * time.Millisecond
	keyboardActivityTimeout2   = 500 * time.Millisecond
	trackpointEventTimeout     = 40 * time.Millisecond
	trackpointActivityTimeout  = 300 * time.Millisecond
	arbitrationReleaseDelay    = 90 * time.Millisecond
	trackpointEventsBeforePalm = 3
)

// AdvanceTimers は now までに期限が来たタイマーを発火させる
func (d *Dispatch) AdvanceTimers(now time.Time) {
	d.sched.PollDue(now, d.fireTimer)
}

func (d *Dispatch) fireTimer(id TimerID, now time.Time) {
	switch id {
	case TimerKeyboard:
		d.keyboardTimeout(now)
	case TimerTrackpoint:
		d.trackpointTimeout(now)
	case TimerArbitration:
		d.arbitrationTimeout()
	}
}

// isModifier は ctrl+クリックや alt+tab のために無視する修飾キー
func isModifier(code uint16) bool {
	switch code {
	case event.KeyLeftCtrl, event.KeyRightCtrl,
		event.KeyLeftAlt, event.KeyRightAlt,
		event.KeyLeftShift, event.KeyRightShift,
		event.KeyFn, event.KeyCapsLock, event.KeyTab,
		event.KeyCompose, event.KeyRightMeta, event.KeyLeftMeta:
		return true
	}
	return false
}

// ignoreForDWT はタイプライター部分以外（ファンクションキー、テンキーなど）のキー
func ignoreForDWT(code uint16) bool {
	if isModifier(code) {
		return false
	}
	switch code {
	case event.KeyEsc, event.KeyKpAsterisk:
		return true
	}
	return code >= event.KeyF1
}

// KeyboardEvent はペアになったキーボードのキーイベントを受け取る
func (d *Dispatch) KeyboardEvent(code uint16, pressed bool, now time.Time) {
	if code >= event.KeyCnt {
		return
	}
	d.AdvanceTimers(now)

	// タイマーはキー押下でだけ動かす
	if !pressed {
		d.dwt.keys.clear(code)
		d.dwt.mods.clear(code)
		return
	}

	if !d.dwt.enabled {
		return
	}
	if ignoreForDWT(code) {
		return
	}

	// 修飾キーだけでは DWT にしない
	if isModifier(code) {
		d.dwt.mods.set(code)
		return
	}

	var timeout time.Duration
	if !d.dwt.keyboardActive {
		// 修飾キーが押されていれば Ctrl+S のような組み合わせとみなす
		if d.dwt.mods.any() {
			return
		}
		d.stopActions(now)
		d.dwt.keyboardActive = true
		timeout = keyboardActivityTimeout1
	} else {
		timeout = keyboardActivityTimeout2
	}

	d.dwt.keyboardLastPress = now
	d.dwt.keys.set(code)
	d.sched.Arm(TimerKeyboard, now.Add(timeout))
}

func (d *Dispatch) keyboardTimeout(now time.Time) {
	if d.dwt.enabled && d.dwt.keys.any() {
		d.sched.Arm(TimerKeyboard, now.Add(keyboardActivityTimeout2))
		d.dwt.keyboardLastPress = now
		d.debugf(-1, "palm: keyboard timeout refresh")
		return
	}

	d.consumers.Tap.Resume(now)
	d.dwt.keyboardActive = false
	d.debugf(-1, "palm: keyboard timeout")
}

// TrackpointEvent はペアになったトラックポイントのイベントを受け取る。
// ボタンはトラックポイントの操作とはみなさない
func (d *Dispatch) TrackpointEvent(isButton bool, now time.Time) {
	d.AdvanceTimers(now)

	if !d.palm.dwtpEnabled || isButton {
		return
	}

	d.palm.trackpointLastEventTime = now
	d.palm.trackpointEventCount++

	if d.palm.trackpointEventCount < trackpointEventsBeforePalm {
		d.sched.Arm(TimerTrackpoint, now.Add(trackpointEventTimeout))
		return
	}

	if !d.palm.trackpointActive {
		d.stopActions(now)
		d.palm.trackpointActive = true
	}
	d.sched.Arm(TimerTrackpoint, now.Add(trackpointActivityTimeout))
}

func (d *Dispatch) trackpointTimeout(now time.Time) {
	if d.palm.trackpointActive {
		d.consumers.Tap.Resume(now)
		d.palm.trackpointActive = false
	}
	d.palm.trackpointEventCount = 0
}

// ToggleArbitration はペンなどによるタッチの調停を切り替える。
// 解除はペンを離した直後のタッチを拾わないよう90ms遅らせる
func (d *Dispatch) ToggleArbitration(state ArbitrationState, now time.Time) {
	d.AdvanceTimers(now)

	if state == d.arbitration {
		return
	}

	switch state {
	case ArbitrationIgnoreAll, ArbitrationIgnoreRect:
		d.sched.Cancel(TimerArbitration)
		d.clearState(now)
		d.arbitration = state
	case ArbitrationNotActive:
		d.sched.Arm(TimerArbitration, now.Add(arbitrationReleaseDelay))
	}
}

func (d *Dispatch) arbitrationTimeout() {
	d.arbitration = ArbitrationNotActive
}

// clearState はボタン、タップ、タッチを通常の終了処理で解放し、1フレーム処理する
func (d *Dispatch) clearState(now time.Time) {
	// クリックパッドではボタンの解放がタッチの解放より先
	d.consumers.Buttons.ReleaseAll(now)
	d.consumers.Tap.ReleaseAll(now)

	for i := range d.touches {
		d.endSequence(&d.touches[i], now)
	}
	d.fake = fakeFingers{}

	d.consumers.Thumb.Reset()

	d.handleState(now)
}

// Suspend はすべてのタッチを終了させ、以後はボタンイベントだけを送る
func (d *Dispatch) Suspend(now time.Time) {
	if d.suspended {
		return
	}
	d.AdvanceTimers(now)
	d.clearState(now)
	d.suspended = true
}

// Resume はサスペンドを解除し、スロットの現在値を取り込み直す
func (d *Dispatch) Resume(now time.Time, slots []SlotState) {
	if !d.suspended {
		return
	}
	d.suspended = false

	if d.topButtons {
		// タップの状態機械はサスペンド中止まっていたので状態を捨てる
		d.clearState(now)
	}

	if len(slots) > 0 {
		d.syncSlots(slots, nil)
	}
}

// Suspended はサスペンド中か
func (d *Dispatch) Suspended() bool { return d.suspended }

// SetDWT はタイプ中のタッチ無効化を切り替える
func (d *Dispatch) SetDWT(enabled bool) bool {
	if !d.dwt.available {
		return false
	}
	d.dwt.enabled = enabled
	return true
}

// DWTEnabled はタイプ中のタッチ無効化が有効か
func (d *Dispatch) DWTEnabled() bool { return d.dwt.enabled }

// SetDWTP はトラックポイント操作中のタッチ無効化を切り替える
func (d *Dispatch) SetDWTP(enabled bool) {
	d.palm.dwtpEnabled = enabled
}

// SetLeftHanded は180度回転を要求する。指が離れているときに反映される
func (d *Dispatch) SetLeftHanded(enabled bool) {
	d.leftHanded.want = enabled
	d.applyRotation()
}
