package event

import "time"

// Script はマルチタッチのイベント列（フレーム単位）を組み立てる。
// 記録ファイルの作成やテストで使う
type Script struct {
	now    time.Time
	events []Event
}

// NewScript は開始時刻を指定して Script を作成する
func NewScript(start time.Time) *Script {
	return &Script{now: start}
}

// Now は現在のフレーム時刻を返す
func (s *Script) Now() time.Time {
	return s.now
}

// Advance はフレーム時刻を進める
func (s *Script) Advance(d time.Duration) *Script {
	s.now = s.now.Add(d)
	return s
}

// Add は現在時刻のイベントを追加する
func (s *Script) Add(typ, code uint16, value int32) *Script {
	s.events = append(s.events, New(s.now, typ, code, value))
	return s
}

// MultiTouchDown はタッチを開始する
func (s *Script) MultiTouchDown(slot int, trackingID int, x int32, y int32) *Script {
	return s.Add(Abs, AbsMtSlot, int32(slot)).
		Add(Abs, AbsMtTrackingId, int32(trackingID)).
		Add(Abs, AbsMtPositionX, x).
		Add(Abs, AbsMtPositionY, y)
}

// MultiTouchMove はタッチ位置を更新する
func (s *Script) MultiTouchMove(slot int, x int32, y int32) *Script {
	return s.Add(Abs, AbsMtSlot, int32(slot)).
		Add(Abs, AbsMtPositionX, x).
		Add(Abs, AbsMtPositionY, y)
}

// MultiTouchUp はタッチを終了する
func (s *Script) MultiTouchUp(slot int) *Script {
	return s.Add(Abs, AbsMtSlot, int32(slot)).
		Add(Abs, AbsMtTrackingId, -1)
}

// Key はキー(BTN_*)の押下・解放を追加する
func (s *Script) Key(code uint16, pressed bool) *Script {
	var v int32
	if pressed {
		v = 1
	}
	return s.Add(Key, code, v)
}

// Sync は SYN_REPORT を追加してフレームを閉じる
func (s *Script) Sync() *Script {
	return s.Add(Syn, SynReport, 0)
}

// Events は組み立てたイベント列を返す
func (s *Script) Events() []Event {
	return s.events
}

// Reset はイベント列を空にする（時刻は維持）
func (s *Script) Reset() {
	s.events = s.events[:0]
}
