package touchpad

import (
	"math/bits"

	"github.com/char5742/touchpad-frames/internal/event"
)

// FakeCount は BTN_TOOL_* から求めた指の本数。
// Overflow は QUINTTAP 以上（6本以上の可能性あり）で、本数は意味を持たない
type FakeCount struct {
	N        int
	Overflow bool
}

// fakeFingers は BTN_TOUCH と BTN_TOOL_* の状態。
// tools のビット0が FINGER(1本)、ビット3が QUADTAP(4本)
type fakeFingers struct {
	touching bool
	tools    uint8
	overflow bool
}

// set はキーイベントを反映する。変更はここでしか行わない
func (f *fakeFingers) set(code uint16, pressed bool) {
	var bit uint8
	switch code {
	case event.BtnTouch:
		if !pressed {
			f.overflow = false
		}
		f.touching = pressed
		return
	case event.BtnToolFinger:
		bit = 1 << 0
	case event.BtnToolDoubleTap, event.BtnToolTripleTap, event.BtnToolQuadTap:
		bit = 1 << (code - event.BtnToolDoubleTap + 1)
	case event.BtnToolQuintTap:
		// QUINTTAP の解放は6本指への移行（BTN_TOUCH 解放まで維持）か、
		// DOUBLE/TRIPLE/QUADTAP への移行（押下時に解除）のどちらか
		if pressed {
			f.overflow = true
		}
		return
	default:
		return
	}

	if pressed {
		f.overflow = false
		f.tools |= bit
	} else {
		f.tools &^= bit
	}
}

// count は本数を返す。valid は BTN_TOOL_* が同時に2つ以上立っていない場合に true。
// 不正な組み合わせでも最下位ビットから求めた値を返す
func (f fakeFingers) count() (c FakeCount, valid bool) {
	valid = f.tools&(f.tools-1) == 0
	if f.overflow {
		return FakeCount{Overflow: true}, valid
	}
	if f.tools == 0 {
		return FakeCount{}, valid
	}
	return FakeCount{N: bits.TrailingZeros8(f.tools) + 1}, valid
}

func (f fakeFingers) any() bool {
	return f.touching || f.tools != 0 || f.overflow
}

// raw は診断用の従来形式のビット列 (bit0=BTN_TOUCH, bit7=overflow)
func (f fakeFingers) raw() uint32 {
	v := uint32(f.tools) << 1
	if f.touching {
		v |= 1
	}
	if f.overflow {
		v |= 1 << 7
	}
	return v
}
