// Package touchpad はカーネルのマルチタッチイベント列をフレーム単位の
// タッチ状態に変換するフレームプロセッサを提供する。
//
// 1台のデバイスにつき1つの Dispatch を使う。Dispatch はスレッドセーフではなく、
// すべての処理は Process の呼び出し内で同期的に行われる。
package touchpad

import "fmt"

// Point はデバイス単位の座標
type Point struct {
	X int32
	Y int32
}

// TouchState はタッチのライフサイクル状態
type TouchState int

const (
	TouchNone TouchState = iota
	TouchHovering
	TouchBegin
	TouchUpdate
	TouchMaybeEnd
	TouchEnd
)

func (s TouchState) String() string {
	switch s {
	case TouchNone:
		return "NONE"
	case TouchHovering:
		return "HOVERING"
	case TouchBegin:
		return "BEGIN"
	case TouchUpdate:
		return "UPDATE"
	case TouchMaybeEnd:
		return "MAYBE_END"
	case TouchEnd:
		return "END"
	}
	return fmt.Sprintf("TouchState(%d)", int(s))
}

// PalmState はタッチを除外している理由。NONE 以外は手のひら扱い
type PalmState int

const (
	PalmNone PalmState = iota
	PalmEdge
	PalmTyping
	PalmTrackpoint
	PalmToolPalm
	PalmPressure
	PalmTouchSize
	PalmArbitration
)

func (s PalmState) String() string {
	switch s {
	case PalmNone:
		return "none"
	case PalmEdge:
		return "edge"
	case PalmTyping:
		return "typing"
	case PalmTrackpoint:
		return "trackpoint"
	case PalmToolPalm:
		return "tool-palm"
	case PalmPressure:
		return "pressure"
	case PalmTouchSize:
		return "touch size"
	case PalmArbitration:
		return "arbitration"
	}
	return fmt.Sprintf("PalmState(%d)", int(s))
}

// Edge はタッチがどのスクロールエッジ上にあるかのビットマスク
type Edge uint8

const (
	EdgeNone   Edge = 0
	EdgeRight  Edge = 1 << 0
	EdgeBottom Edge = 1 << 1
)

// ArbitrationState は外部（ペンなど）からのタッチ調停状態
type ArbitrationState int

const (
	ArbitrationNotActive ArbitrationState = iota
	ArbitrationIgnoreAll
	ArbitrationIgnoreRect
)

// ModelFlags はデバイス固有の不具合回避フラグ
type ModelFlags uint32

const (
	ModelSynapticsSerial ModelFlags = 1 << iota
	ModelALPSSerial
	ModelLenovoT450
	ModelWacom
	ModelTestDevice
	ModelApple
	ModelHPPavilionDM4
	ModelPressurePad
)

// Axis は絶対座標軸の情報 (struct input_absinfo)
type Axis struct {
	Value      int32 `toml:"value"`
	Min        int32 `toml:"min"`
	Max        int32 `toml:"max"`
	Fuzz       int32 `toml:"fuzz"`
	Flat       int32 `toml:"flat"`
	Resolution int32 `toml:"resolution"`
}

// SlotState はスロットの現在値。初期化とレジューム時の同期に使う
type SlotState struct {
	X          int32 `toml:"x"`
	Y          int32 `toml:"y"`
	Pressure   int32 `toml:"pressure"`
	Major      int32 `toml:"major"`
	Minor      int32 `toml:"minor"`
	TrackingID int32 `toml:"tracking_id"`
}

// DeviceInfo はデバイスの能力。evdev の ioctl から組み立てる
type DeviceInfo struct {
	Name string `toml:"name"`

	// Abs は存在する絶対座標軸。キーはイベントコード
	Abs map[uint16]Axis `toml:"-"`
	// Keys は対応している EV_KEY コード
	Keys map[uint16]bool `toml:"-"`
	// Props は INPUT_PROP_* のうち設定されているもの
	Props map[uint16]bool `toml:"-"`
	// PressedKeys は初期化時点で押されているキー
	PressedKeys map[uint16]bool `toml:"-"`
	// Slots はスロットごとの初期値（MTデバイスのみ）
	Slots []SlotState `toml:"slots"`
}

// HasAbs は軸が存在するかを返す
func (di *DeviceInfo) HasAbs(code uint16) bool {
	_, ok := di.Abs[code]
	return ok
}

// Quirks は外部の quirks ソースから与えられる設定。初期化時にのみ読む
type Quirks struct {
	Model ModelFlags

	JumpDetectionDisabled bool

	// PalmPressureThreshold は0で無効。nil は既定値(130)
	PalmPressureThreshold *int32
	PalmSizeThreshold     int32

	// PressureRange は [high, low]。nil は軸範囲からの既定値
	PressureRange  *[2]int32
	TouchSizeRange *[2]int32

	Clickpad   bool
	TopButtons bool
	External   bool
	TPKBCombo  bool
	Tablet     bool
}
