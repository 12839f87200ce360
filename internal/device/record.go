package device

import (
	"io"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/char5742/touchpad-frames/internal/touchpad"
)

// recordedAxis は記録ファイル上の1軸
type recordedAxis struct {
	Code       uint16 `toml:"code"`
	Value      int32  `toml:"value"`
	Min        int32  `toml:"min"`
	Max        int32  `toml:"max"`
	Fuzz       int32  `toml:"fuzz"`
	Flat       int32  `toml:"flat"`
	Resolution int32  `toml:"resolution"`
}

// recordedInfo は記録ファイル(.toml)に書くデバイス情報
type recordedInfo struct {
	Name        string               `toml:"name"`
	Keys        []uint16             `toml:"keys"`
	Props       []uint16             `toml:"props"`
	PressedKeys []uint16             `toml:"pressed_keys"`
	Abs         []recordedAxis       `toml:"abs"`
	Slots       []touchpad.SlotState `toml:"slots"`
}

// WriteInfo はデバイス情報を TOML で書き出す
func WriteInfo(w io.Writer, info touchpad.DeviceInfo) error {
	rec := recordedInfo{
		Name:        info.Name,
		Keys:        sortedCodes(info.Keys),
		Props:       sortedCodes(info.Props),
		PressedKeys: sortedCodes(info.PressedKeys),
		Slots:       info.Slots,
	}
	for code, a := range info.Abs {
		rec.Abs = append(rec.Abs, recordedAxis{
			Code:       code,
			Value:      a.Value,
			Min:        a.Min,
			Max:        a.Max,
			Fuzz:       a.Fuzz,
			Flat:       a.Flat,
			Resolution: a.Resolution,
		})
	}
	sort.Slice(rec.Abs, func(i, j int) bool { return rec.Abs[i].Code < rec.Abs[j].Code })

	if err := toml.NewEncoder(w).Encode(rec); err != nil {
		return errors.Wrap(err, "デバイス情報の書き込みに失敗しました")
	}
	return nil
}

// ReadInfoFrom は WriteInfo が書いたデバイス情報を読み込む
func ReadInfoFrom(r io.Reader) (touchpad.DeviceInfo, error) {
	var rec recordedInfo
	if _, err := toml.NewDecoder(r).Decode(&rec); err != nil {
		return touchpad.DeviceInfo{}, errors.Wrap(err, "デバイス情報の読み込みに失敗しました")
	}

	info := touchpad.DeviceInfo{
		Name:        rec.Name,
		Abs:         make(map[uint16]touchpad.Axis, len(rec.Abs)),
		Keys:        codeSet(rec.Keys),
		Props:       codeSet(rec.Props),
		PressedKeys: codeSet(rec.PressedKeys),
		Slots:       rec.Slots,
	}
	for _, a := range rec.Abs {
		info.Abs[a.Code] = touchpad.Axis{
			Value:      a.Value,
			Min:        a.Min,
			Max:        a.Max,
			Fuzz:       a.Fuzz,
			Flat:       a.Flat,
			Resolution: a.Resolution,
		}
	}
	return info, nil
}

func codeSet(codes []uint16) map[uint16]bool {
	m := make(map[uint16]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}
