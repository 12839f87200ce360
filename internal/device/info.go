package device

import (
	"os"

	"github.com/pkg/errors"

	"github.com/char5742/touchpad-frames/internal/event"
	"github.com/char5742/touchpad-frames/internal/touchpad"
)

// ReadInfo は ioctl でデバイスの能力と現在のスロット状態を読み取る
func ReadInfo(f *os.File, name string) (touchpad.DeviceInfo, error) {
	info := touchpad.DeviceInfo{
		Name:        name,
		Abs:         make(map[uint16]touchpad.Axis),
		Keys:        make(map[uint16]bool),
		Props:       make(map[uint16]bool),
		PressedKeys: make(map[uint16]bool),
	}

	evs, err := eventBits(f, 0, evCnt)
	if err != nil {
		return info, errors.Wrap(err, "EVIOCGBIT(0)")
	}

	if evs.has(event.Abs) {
		absBits, err := eventBits(f, event.Abs, absCnt)
		if err != nil {
			return info, errors.Wrap(err, "EVIOCGBIT(EV_ABS)")
		}
		for _, code := range absBits.codes() {
			ai, err := absAxis(f, code)
			if err != nil {
				return info, errors.Wrapf(err, "EVIOCGABS(%#x)", code)
			}
			info.Abs[code] = touchpad.Axis{
				Value:      ai.Value,
				Min:        ai.Minimum,
				Max:        ai.Maximum,
				Fuzz:       ai.Fuzz,
				Flat:       ai.Flat,
				Resolution: ai.Resolution,
			}
		}
	}

	if evs.has(event.Key) {
		keyBits, err := eventBits(f, event.Key, event.KeyCnt)
		if err != nil {
			return info, errors.Wrap(err, "EVIOCGBIT(EV_KEY)")
		}
		for _, code := range keyBits.codes() {
			info.Keys[code] = true
		}
		pressed, err := readBits(f, eviocgkey, event.KeyCnt)
		if err != nil {
			return info, errors.Wrap(err, "EVIOCGKEY")
		}
		for _, code := range pressed.codes() {
			info.PressedKeys[code] = true
		}
	}

	props, err := readBits(f, eviocgprop, propCnt)
	if err != nil {
		return info, errors.Wrap(err, "EVIOCGPROP")
	}
	for _, code := range props.codes() {
		info.Props[code] = true
	}

	slots, err := readSlots(f, info.Abs)
	if err != nil {
		return info, err
	}
	info.Slots = slots
	return info, nil
}

// ReadSlots は現在のスロット状態を読み取る。レジューム時の再同期に使う
func ReadSlots(f *os.File, abs map[uint16]touchpad.Axis) ([]touchpad.SlotState, error) {
	return readSlots(f, abs)
}

func readSlots(f *os.File, abs map[uint16]touchpad.Axis) ([]touchpad.SlotState, error) {
	slotAxis, ok := abs[event.AbsMtSlot]
	if !ok {
		return nil, nil
	}
	n := int(slotAxis.Max) + 1
	if n <= 0 || n > maxSlots {
		return nil, errors.Errorf("invalid slot count %d", n)
	}

	slots := make([]touchpad.SlotState, n)
	for i := range slots {
		slots[i].TrackingID = -1
	}
	fields := []struct {
		code uint16
		set  func(s *touchpad.SlotState, v int32)
	}{
		{event.AbsMtTrackingId, func(s *touchpad.SlotState, v int32) { s.TrackingID = v }},
		{event.AbsMtPositionX, func(s *touchpad.SlotState, v int32) { s.X = v }},
		{event.AbsMtPositionY, func(s *touchpad.SlotState, v int32) { s.Y = v }},
		{event.AbsMtPressure, func(s *touchpad.SlotState, v int32) { s.Pressure = v }},
		{event.AbsMtTouchMajor, func(s *touchpad.SlotState, v int32) { s.Major = v }},
		{event.AbsMtTouchMinor, func(s *touchpad.SlotState, v int32) { s.Minor = v }},
	}
	for _, fld := range fields {
		if _, ok := abs[fld.code]; !ok {
			continue
		}
		values, err := slotValues(f, fld.code, n)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			fld.set(&slots[i], v)
		}
	}
	return slots, nil
}
