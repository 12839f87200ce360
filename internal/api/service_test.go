package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/char5742/touchpad-frames/internal/config"
	"github.com/char5742/touchpad-frames/internal/device"
	"github.com/char5742/touchpad-frames/internal/event"
	"github.com/char5742/touchpad-frames/internal/touchpad"
)

const (
	touchpadPath   = "/dev/input/event5"
	keyboardPath   = "/dev/input/event3"
	trackpointPath = "/dev/input/event6"
)

// fakeInput はチャネルからイベントを流すだけの入力デバイス
type fakeInput struct {
	name    string
	info    touchpad.DeviceInfo
	slots   []touchpad.SlotState
	events  chan event.Event
	closed  atomic.Bool
	grabbed atomic.Bool
}

func newFakeInput(name string) *fakeInput {
	return &fakeInput{name: name, events: make(chan event.Event)}
}

func (f *fakeInput) Name() string { return f.name }

func (f *fakeInput) Events(ctx context.Context) <-chan event.Event { return f.events }

func (f *fakeInput) Info() (touchpad.DeviceInfo, error) { return f.info, nil }

func (f *fakeInput) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeInput) Grab() error {
	f.grabbed.Store(true)
	return nil
}

func (f *fakeInput) Slots(abs map[uint16]touchpad.Axis) ([]touchpad.SlotState, error) {
	if f.slots == nil {
		return nil, errors.New("no slots")
	}
	return f.slots, nil
}

// send はイベントを1つずつ処理ループに渡す。チャネルはバッファなしなので受信されるまで待つ
func (f *fakeInput) send(t *testing.T, events []event.Event) {
	t.Helper()
	for _, ev := range events {
		select {
		case f.events <- ev:
		case <-time.After(time.Second):
			t.Fatalf("%s: event %+v was not received", f.name, ev)
		}
	}
}

func testTouchpadInfo() touchpad.DeviceInfo {
	x := touchpad.Axis{Min: 0, Max: 6000, Resolution: 40}
	y := touchpad.Axis{Min: 0, Max: 3000, Resolution: 40}
	keys := map[uint16]bool{}
	for _, c := range []uint16{event.BtnTouch, event.BtnToolFinger, event.BtnToolDoubleTap, event.MouseBtnLeft} {
		keys[c] = true
	}
	return touchpad.DeviceInfo{
		Name: "SynPS/2 Synaptics TouchPad",
		Abs: map[uint16]touchpad.Axis{
			event.AbsX:            x,
			event.AbsY:            y,
			event.AbsMtSlot:       {Max: 1},
			event.AbsMtPositionX:  x,
			event.AbsMtPositionY:  y,
			event.AbsMtTrackingId: {Max: 65535},
		},
		Keys:  keys,
		Props: map[uint16]bool{event.PropPointer: true, event.PropButtonpad: true},
	}
}

type fixture struct {
	s       *TouchpadService
	tp      *fakeInput
	kbd     *fakeInput
	tpt     *fakeInput
	script  *event.Script
	devices []device.Info

	mu     sync.Mutex
	opened []string
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		tp:     newFakeInput("SynPS/2 Synaptics TouchPad"),
		kbd:    newFakeInput("AT Translated Set 2 keyboard"),
		tpt:    newFakeInput("TPPS/2 IBM TrackPoint"),
		script: event.NewScript(time.Now()),
		devices: []device.Info{
			{Name: "AT Translated Set 2 keyboard", Path: keyboardPath, Kind: device.KindKeyboard, Bus: 0x11},
			{Name: "SynPS/2 Synaptics TouchPad", Path: touchpadPath, Kind: device.KindTouchpad, Bus: 0x11},
			{Name: "TPPS/2 IBM TrackPoint", Path: trackpointPath, Kind: device.KindTrackpoint, Bus: 0x11},
		},
	}
	f.tp.info = testTouchpadInfo()

	open := func(path string) (TouchpadInput, error) {
		f.mu.Lock()
		f.opened = append(f.opened, path)
		f.mu.Unlock()
		switch path {
		case touchpadPath:
			return f.tp, nil
		case keyboardPath:
			return f.kbd, nil
		case trackpointPath:
			return f.tpt, nil
		}
		return nil, errors.New("no such device")
	}
	scan := func() ([]device.Info, error) { return f.devices, nil }

	f.s = NewTouchpadService(cfg, WithOpener(open), WithScanner(scan))
	t.Cleanup(func() {
		if f.s.IsRunning() {
			f.s.Stop()
		}
	})
	return f
}

// frame は12ms進めてタッチパッドに1フレーム送る
func (f *fixture) frame(t *testing.T, build func(s *event.Script)) {
	t.Helper()
	f.script.Advance(12 * time.Millisecond)
	f.script.Reset()
	build(f.script)
	f.script.Sync()
	f.tp.send(t, f.script.Events())
}

// key はキーボードからキーを押して離す
func (f *fixture) key(t *testing.T, code uint16) {
	t.Helper()
	now := f.script.Now()
	f.kbd.send(t, []event.Event{
		event.New(now, event.Key, code, 1),
		event.New(now, event.Syn, event.SynReport, 0),
		event.New(now, event.Key, code, 0),
		event.New(now, event.Syn, event.SynReport, 0),
	})
}

// barrier は処理ループがそれまでに受け取ったイベントを処理し終えるのを待つ
func (f *fixture) barrier(t *testing.T) {
	t.Helper()
	if err := f.s.do(func(*touchpad.Dispatch, time.Time) error { return nil }); err != nil {
		t.Fatal("do failed: ", err)
	}
}

func (f *fixture) touchDown(t *testing.T, x, y int32) {
	f.frame(t, func(s *event.Script) {
		s.MultiTouchDown(0, 1, x, y).
			Key(event.BtnTouch, true).
			Key(event.BtnToolFinger, true)
	})
}

func waitDone(t *testing.T, s *TouchpadService) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceFrames(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}
	if !f.s.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if got, want := f.s.View().Device, "SynPS/2 Synaptics TouchPad"; got != want {
		t.Errorf("View().Device = %q; want %q", got, want)
	}

	f.touchDown(t, 3000, 1500)
	// 指の本数が変わった次のフレームまでは動きの履歴が捨てられる
	f.frame(t, func(s *event.Script) {})
	f.frame(t, func(s *event.Script) { s.MultiTouchMove(0, 3040, 1500) })
	f.frame(t, func(s *event.Script) { s.MultiTouchMove(0, 3080, 1500) })
	f.barrier(t)

	v := f.s.View()
	if v.Frames != 4 {
		t.Errorf("Frames = %d; want 4", v.Frames)
	}
	if v.FingersDown != 1 {
		t.Errorf("FingersDown = %d; want 1", v.FingersDown)
	}
	if len(v.Touches) != 1 {
		t.Fatalf("len(Touches) = %d; want 1", len(v.Touches))
	}
	if got := v.Touches[0]; got.X != 3080 || got.State != "UPDATE" || !got.Active {
		t.Errorf("touch = %+v; want an active UPDATE touch at x=3080", got)
	}
	if v.PointerX != 80 || v.PointerY != 0 {
		t.Errorf("pointer = (%d, %d); want (80, 0)", v.PointerX, v.PointerY)
	}
	if v.Restarts != 1 {
		t.Errorf("Restarts = %d; want 1", v.Restarts)
	}

	if err := f.s.Stop(); err != nil {
		t.Fatal("Stop failed: ", err)
	}
	if f.s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	for _, in := range []*fakeInput{f.tp, f.kbd, f.tpt} {
		if !in.closed.Load() {
			t.Errorf("%s was not closed", in.name)
		}
	}
}

func TestServiceTypingMarksTouchAsPalm(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}

	f.key(t, event.KeyA)
	f.touchDown(t, 3000, 1500)
	f.barrier(t)

	v := f.s.View()
	if !v.Keyboard {
		t.Error("Keyboard = false after a key press")
	}
	if len(v.Touches) != 1 {
		t.Fatalf("len(Touches) = %d; want 1", len(v.Touches))
	}
	if got := v.Touches[0]; got.Palm != "typing" || got.Active {
		t.Errorf("touch = %+v; want an inactive typing palm", got)
	}
}

func TestServiceTypingIgnoredWhenDWTDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Palm.DWT = false
	f := newFixture(t, cfg)
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}

	f.key(t, event.KeyA)
	f.touchDown(t, 3000, 1500)
	f.barrier(t)

	v := f.s.View()
	if len(v.Touches) != 1 {
		t.Fatalf("len(Touches) = %d; want 1", len(v.Touches))
	}
	if got := v.Touches[0]; got.Palm != "none" {
		t.Errorf("Palm = %q; want none", got.Palm)
	}
}

func TestServiceSetPalm(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}

	off := false
	if err := f.s.SetPalm(PalmSettings{DWT: &off}); err != nil {
		t.Fatal("SetPalm failed: ", err)
	}
	f.key(t, event.KeyA)
	f.touchDown(t, 3000, 1500)
	f.barrier(t)

	if v := f.s.View(); v.Keyboard {
		t.Error("Keyboard = true with DWT disabled")
	}
}

func TestServiceSetPalmWhileStopped(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())

	off := false
	if err := f.s.SetPalm(PalmSettings{DWT: &off}); err != nil {
		t.Fatal("SetPalm while stopped failed: ", err)
	}
	if f.s.Palm().DWT {
		t.Error("Palm().DWT = true after SetPalm")
	}
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}
	f.key(t, event.KeyA)
	f.touchDown(t, 3000, 1500)
	f.barrier(t)

	if v := f.s.View(); v.Keyboard {
		t.Error("Keyboard = true with DWT disabled before Start")
	}
}

func TestServiceCopiesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	f := newFixture(t, cfg)

	cfg.Palm.DWT = false
	if !f.s.Palm().DWT {
		t.Error("Palm().DWT followed a change to the caller's config")
	}
}

func TestServiceSetPalmExternalTouchpad(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())
	f.devices[1].Bus = 0x03
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}

	on := true
	if err := f.s.SetPalm(PalmSettings{DWT: &on}); err == nil {
		t.Error("SetPalm(DWT) succeeded on an external touchpad")
	}
}

func TestServiceSuspendResume(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}

	f.touchDown(t, 3000, 1500)
	if err := f.s.Suspend(); err != nil {
		t.Fatal("Suspend failed: ", err)
	}
	v := f.s.View()
	if !v.Suspended {
		t.Error("Suspended = false after Suspend")
	}
	if v.FingersDown != 0 {
		t.Errorf("FingersDown = %d after Suspend; want 0", v.FingersDown)
	}

	if err := f.s.Resume(); err == nil {
		t.Error("Resume succeeded without slot state")
	}

	f.tp.slots = []touchpad.SlotState{
		{X: 1000, Y: 1000, TrackingID: 7},
		{TrackingID: -1},
	}
	if err := f.s.Resume(); err != nil {
		t.Fatal("Resume failed: ", err)
	}
	if v := f.s.View(); v.Suspended {
		t.Error("Suspended = true after Resume")
	}
}

func TestServiceTouchpadClosed(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}

	f.touchDown(t, 3000, 1500)
	close(f.tp.events)
	waitDone(t, f.s)

	if f.s.IsRunning() {
		t.Error("IsRunning() = true after the touchpad was closed")
	}
	if v := f.s.View(); !v.Suspended || v.FingersDown != 0 {
		t.Errorf("view = %+v; want suspended with no fingers down", v)
	}
	if err := f.s.Stop(); !errors.Is(err, errNotRunning) {
		t.Errorf("Stop() = %v; want %v", err, errNotRunning)
	}
}

func TestServiceHandleDeviceEvent(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}

	// 他のデバイスや追加イベントは無視する
	f.s.HandleDeviceEvent(device.Event{Type: device.DeviceRemoved, Device: f.devices[0]})
	f.s.HandleDeviceEvent(device.Event{Type: device.DeviceAdded, Device: f.devices[1]})
	f.barrier(t)
	if !f.s.IsRunning() {
		t.Fatal("service stopped on an unrelated device event")
	}

	f.s.HandleDeviceEvent(device.Event{Type: device.DeviceRemoved, Device: f.devices[1]})
	waitDone(t, f.s)
	if f.s.IsRunning() {
		t.Error("IsRunning() = true after the touchpad was removed")
	}
	if !f.s.View().Suspended {
		t.Error("Suspended = false after the touchpad was removed")
	}

	// 停止後のイベントはブロックしない
	f.s.HandleDeviceEvent(device.Event{Type: device.DeviceRemoved, Device: f.devices[1]})
}

func TestServiceStartErrors(t *testing.T) {
	f := newFixture(t, config.DefaultConfig())
	if err := f.s.Stop(); !errors.Is(err, errNotRunning) {
		t.Errorf("Stop() before Start = %v; want %v", err, errNotRunning)
	}
	if err := f.s.Suspend(); !errors.Is(err, errNotRunning) {
		t.Errorf("Suspend() before Start = %v; want %v", err, errNotRunning)
	}

	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}
	if err := f.s.Start(); err == nil {
		t.Error("second Start succeeded")
	}

	cfg := config.DefaultConfig()
	cfg.Device.Touchpad = "/dev/input/event9"
	g := newFixture(t, cfg)
	if err := g.s.Start(); err == nil {
		t.Error("Start succeeded without the configured touchpad")
	}
}

func TestServiceGrabAndExplicitPaths(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Device.Grab = true
	cfg.Device.Trackpoint = "/dev/input/event9"
	f := newFixture(t, cfg)
	if err := f.s.Start(); err != nil {
		t.Fatal("Start failed: ", err)
	}
	if !f.tp.grabbed.Load() {
		t.Error("touchpad was not grabbed")
	}

	f.mu.Lock()
	opened := append([]string(nil), f.opened...)
	f.mu.Unlock()
	want := []string{touchpadPath, keyboardPath, "/dev/input/event9"}
	if len(opened) != len(want) {
		t.Fatalf("opened = %v; want %v", opened, want)
	}
	for i := range want {
		if opened[i] != want[i] {
			t.Errorf("opened[%d] = %q; want %q", i, opened[i], want[i])
		}
	}
}
