package event

import (
	"syscall"
	"time"
)

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Rel = 0x02 // 相対座標イベント
	Abs = 0x03 // 絶対座標イベント
	Msc = 0x04 // その他のイベント

	RelX     = 0x0 // X軸の相対移動
	RelY     = 0x1 // Y軸の相対移動
	RelWheel = 0x8 // ホイールの相対移動

	AbsX            = 0x00 // X軸の絶対座標
	AbsY            = 0x01 // Y軸の絶対座標
	AbsPressure     = 0x18 // シングルタッチの圧力
	AbsMtSlot       = 0x2f // マルチタッチスロット
	AbsMtTouchMajor = 0x30 // タッチ領域の長径
	AbsMtTouchMinor = 0x31 // タッチ領域の短径
	AbsMtPositionX  = 0x35 // マルチタッチのX座標
	AbsMtPositionY  = 0x36 // マルチタッチのY座標
	AbsMtToolType   = 0x37 // ツール種別（指・手のひら）
	AbsMtTrackingId = 0x39 // タッチ追跡用ID
	AbsMtPressure   = 0x3a // タッチ圧力
	AbsMax          = 0x3f

	MscTimestamp = 0x05 // ハードウェアのタイムスタンプ(µs)

	SynReport  = 0 // イベント報告の同期
	SynDropped = 3 // カーネルのバッファ溢れ

	MtToolFinger = 0
	MtToolPalm   = 2
)

// ボタン・キー
const (
	Btn0             = 0x100
	Btn1             = 0x101
	Btn2             = 0x102
	MouseBtnLeft     = 0x110 // マウス左ボタン
	MouseBtnRight    = 0x111 // マウス右ボタン
	MouseBtnMiddle   = 0x112 // マウス中ボタン
	BtnToolPen       = 0x140
	BtnToolFinger    = 0x145 // 指によるタッチ
	BtnToolQuintTap  = 0x148 // 5本指
	BtnTouch         = 0x14a // タッチイベント
	BtnToolDoubleTap = 0x14d // 2本指
	BtnToolTripleTap = 0x14e // 3本指
	BtnToolQuadTap   = 0x14f // 4本指

	KeyEsc        = 1
	KeyTab        = 15
	KeyLeftCtrl   = 29
	KeyA          = 30
	KeyLeftShift  = 42
	KeyRightShift = 54
	KeyKpAsterisk = 55
	KeyLeftAlt    = 56
	KeyCapsLock   = 58
	KeyF1         = 59
	KeyRightCtrl  = 97
	KeyRightAlt   = 100
	KeyLeftMeta   = 125
	KeyRightMeta  = 126
	KeyCompose    = 127
	KeyFn         = 0x1d0
	KeyMax        = 0x2ff
	KeyCnt        = KeyMax + 1
)

// 入力デバイスのプロパティ
const (
	PropPointer   = 0x00 // ポインターデバイスプロパティ
	PropButtonpad = 0x02 // ボタンパッドプロパティ
	PropSemiMt    = 0x03 // バウンディングボックスのみ報告するデバイス
	PropTopButton = 0x04 // 上部ソフトウェアボタン
)

// Event は入力イベントを表す構造体
type Event struct {
	Time  syscall.Timeval // イベント発生時刻
	Type  uint16          // イベントタイプ
	Code  uint16          // イベントコード
	Value int32           // イベント値
}

// Timestamp はイベント時刻を time.Time で返す
func (e Event) Timestamp() time.Time {
	return time.Unix(int64(e.Time.Sec), int64(e.Time.Usec)*int64(time.Microsecond))
}

// New は指定した時刻のイベントを作成する
func New(ts time.Time, typ, code uint16, value int32) Event {
	return Event{
		Time:  syscall.NsecToTimeval(ts.UnixNano()),
		Type:  typ,
		Code:  code,
		Value: value,
	}
}

// IsFrameEnd はフレーム境界(SYN_REPORT)かどうかを返す
func (e Event) IsFrameEnd() bool {
	return e.Type == Syn && e.Code == SynReport
}
