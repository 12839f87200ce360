package device

import (
	"context"
	"os"
	"syscall"

	"github.com/kenshaw/evdev"
	"github.com/pkg/errors"

	"github.com/char5742/touchpad-frames/internal/event"
	"github.com/char5742/touchpad-frames/internal/touchpad"
)

// Device は開いている evdev デバイス
type Device struct {
	Path string

	file    *os.File
	evdev   *evdev.Evdev
	grabbed bool
}

// Open はデバイスノードを読み取り専用で開く
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "デバイスファイルを開くのに失敗しました: %s", path)
	}
	return &Device{
		Path:  path,
		file:  f,
		evdev: evdev.Open(f),
	}, nil
}

// Name はカーネルが報告するデバイス名を返す
func (d *Device) Name() string {
	return d.evdev.Name()
}

// IsTouchpad はマルチタッチ座標軸を持つかを返す
func (d *Device) IsTouchpad() bool {
	abs := d.evdev.AbsoluteTypes()
	_, x := abs[evdev.AbsoluteMTPositionX]
	_, y := abs[evdev.AbsoluteMTPositionY]
	_, st := abs[evdev.AbsoluteX]
	return (x && y) || st
}

// Info はタッチパッドの初期化に必要な能力を読み取る
func (d *Device) Info() (touchpad.DeviceInfo, error) {
	info, err := ReadInfo(d.file, d.Name())
	if err != nil {
		return info, errors.Wrapf(err, "%s", d.Path)
	}
	return info, nil
}

// Slots は現在のスロット状態を読み取る
func (d *Device) Slots(abs map[uint16]touchpad.Axis) ([]touchpad.SlotState, error) {
	return ReadSlots(d.file, abs)
}

// Grab はデバイスを占有し、他のクライアントにイベントが届かないようにする
func (d *Device) Grab() error {
	if err := grab(d.file, true); err != nil {
		return err
	}
	d.grabbed = true
	return nil
}

// Release は Grab を解除する
func (d *Device) Release() error {
	if !d.grabbed {
		return nil
	}
	d.grabbed = false
	return grab(d.file, false)
}

// Events はデバイスのイベントを読み続けるチャネルを返す。
// デバイスが外されるか ctx が終了するとチャネルは閉じられる
func (d *Device) Events(ctx context.Context) <-chan event.Event {
	ch := make(chan event.Event, 64)
	src := d.evdev.Poll(ctx)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-src:
				if env == nil {
					return
				}
				ev := event.Event{
					Time:  syscall.Timeval(env.Event.Time),
					Type:  uint16(env.Event.Type),
					Code:  env.Event.Code,
					Value: env.Event.Value,
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

// Close はデバイスを閉じる
func (d *Device) Close() error {
	if d.grabbed {
		_ = d.Release()
	}
	return d.evdev.Close()
}
