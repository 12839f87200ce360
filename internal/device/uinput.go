package device

import (
	"bytes"
	"encoding/binary"
	"os"
	"sort"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/char5742/touchpad-frames/internal/event"
	"github.com/char5742/touchpad-frames/internal/touchpad"
)

// UinputPath は uinput のデバイスノード
const UinputPath = "/dev/uinput"

// uinput.h の定数
const (
	maxNameSize  = 80
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetAbsBit  = 0x40045567
	uiSetPropBit = 0x4004556e
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// userDev は struct uinput_user_dev
type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absCnt]int32
	Absmin     [absCnt]int32
	Absfuzz    [absCnt]int32
	Absflat    [absCnt]int32
}

// Virtual は記録したタッチパッドと同じ能力を持つ uinput デバイス。
// 記録を再生して他のクライアントから見える形で再現するのに使う
type Virtual struct {
	file   *os.File
	writer *event.Writer
}

// CreateVirtual は info と同じ軸・キー・プロパティを持つ仮想タッチパッドを作成する
func CreateVirtual(path string, info touchpad.DeviceInfo) (*Virtual, error) {
	f, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, errors.Wrap(err, "uinput を開くのに失敗しました")
	}
	if err := setupVirtual(f, info); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Virtual{file: f, writer: event.NewWriter(f)}, nil
}

func setupVirtual(f *os.File, info touchpad.DeviceInfo) error {
	for _, ev := range []uintptr{event.Syn, event.Key, event.Abs, event.Msc} {
		if err := uiIoctl(f, uiSetEvBit, ev); err != nil {
			return errors.Wrapf(err, "イベント種別 %#x の登録に失敗しました", ev)
		}
	}
	for _, code := range sortedCodes(info.Keys) {
		if err := uiIoctl(f, uiSetKeyBit, uintptr(code)); err != nil {
			return errors.Wrapf(err, "キー %#x の登録に失敗しました", code)
		}
	}
	for _, code := range sortedCodes(info.Props) {
		if err := uiIoctl(f, uiSetPropBit, uintptr(code)); err != nil {
			return errors.Wrapf(err, "プロパティ %#x の設定に失敗しました", code)
		}
	}

	dev := userDev{
		ID: inputID{
			Bustype: busUSB,
			Vendor:  0x4711,
			Product: 0x0817,
			Version: 1,
		},
	}
	copy(dev.Name[:], info.Name)
	for code, a := range info.Abs {
		if int(code) >= absCnt {
			continue
		}
		if err := uiIoctl(f, uiSetAbsBit, uintptr(code)); err != nil {
			return errors.Wrapf(err, "座標軸 %#x の登録に失敗しました", code)
		}
		dev.Absmin[code] = a.Min
		dev.Absmax[code] = a.Max
		dev.Absfuzz[code] = a.Fuzz
		dev.Absflat[code] = a.Flat
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		return errors.Wrap(err, "ユーザーデバイスバッファの書き込みに失敗しました")
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "デバイス構造体の書き込みに失敗しました")
	}
	if err := uiIoctl(f, uiDevCreate, 0); err != nil {
		return errors.Wrap(err, "デバイスの作成に失敗しました")
	}
	return nil
}

func uiIoctl(f *os.File, req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func sortedCodes(m map[uint16]bool) []uint16 {
	codes := make([]uint16, 0, len(m))
	for code, ok := range m {
		if ok {
			codes = append(codes, code)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Write はイベントを仮想デバイスに書き込む
func (v *Virtual) Write(ev event.Event) error {
	return v.writer.Write(ev)
}

// Close は仮想デバイスを破棄する
func (v *Virtual) Close() error {
	_ = uiIoctl(v.file, uiDevDestroy, 0)
	return v.file.Close()
}
