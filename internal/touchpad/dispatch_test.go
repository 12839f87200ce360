package touchpad

import (
	"math"
	"testing"

	"github.com/char5742/touchpad-frames/internal/event"
	"github.com/google/go-cmp/cmp"
)

func TestNewRejectsNonTouchpad(t *testing.T) {
	info := testDevice()
	delete(info.Keys, event.BtnToolFinger)

	rec := &recorder{}
	if _, err := New(info, Quirks{}, WithReporter(rec)); err == nil {
		t.Fatal("New succeeded for a device without BTN_TOOL_FINGER")
	}
	if got := rec.count(DiagKernelBug, "sanity"); got != 1 {
		t.Errorf("Got %d sanity check kernel bugs; want 1", got)
	}
}

func TestNewSlots(t *testing.T) {
	for _, tc := range []struct {
		name        string
		info        DeviceInfo
		q           Quirks
		wantSlots   int
		wantTouches int
	}{
		{
			name:        "five slots",
			info:        testDevice(),
			wantSlots:   5,
			wantTouches: 5,
		},
		{
			name:        "two slots, three fingers",
			info:        withSlots(testDevice(), 2, 3),
			wantSlots:   2,
			wantTouches: 3,
		},
		{
			name:        "semi-mt",
			info:        func() DeviceInfo { i := testDevice(); i.Props[event.PropSemiMt] = true; return i }(),
			wantSlots:   1,
			wantTouches: 5,
		},
		{
			name:        "hp pavilion dm4",
			info:        testDevice(),
			q:           Quirks{Model: ModelHPPavilionDM4},
			wantSlots:   1,
			wantTouches: 5,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := New(tc.info, tc.q)
			if err != nil {
				t.Fatal("New failed: ", err)
			}
			if got := d.NumSlots(); got != tc.wantSlots {
				t.Errorf("NumSlots() = %d; want %d", got, tc.wantSlots)
			}
			if got := len(d.Touches()); got != tc.wantTouches {
				t.Errorf("len(Touches()) = %d; want %d", got, tc.wantTouches)
			}
			for i, tp := range d.Touches() {
				if tp.Index != i || tp.State != TouchNone {
					t.Errorf("touch %d = {Index: %d, State: %s}; want {Index: %d, State: NONE}", i, tp.Index, tp.State, i)
				}
			}
		})
	}
}

func TestNewCountsActiveSlots(t *testing.T) {
	info := testDevice()
	info.Slots = []SlotState{
		{X: 100, Y: 200, TrackingID: 4},
		{TrackingID: -1},
		{X: 300, Y: 400, TrackingID: 5},
		{TrackingID: -1},
		{TrackingID: -1},
	}
	d, err := New(info, Quirks{})
	if err != nil {
		t.Fatal("New failed: ", err)
	}
	if got := d.ActiveSlots(); got != 2 {
		t.Errorf("ActiveSlots() = %d; want 2", got)
	}
	if got, want := d.Touch(2).Point, (Point{X: 300, Y: 400}); got != want {
		t.Errorf("touch 2 Point = %+v; want %+v", got, want)
	}
}

func TestNewDefaultResolution(t *testing.T) {
	info := testDevice()
	for code, a := range info.Abs {
		a.Resolution = 0
		info.Abs[code] = a
	}

	rec := &recorder{}
	d, err := New(info, Quirks{}, WithReporter(rec))
	if err != nil {
		t.Fatal("New failed: ", err)
	}
	if got := rec.count(DiagInfo, "assuming a size"); got != 1 {
		t.Errorf("Got %d default size diagnostics; want 1", got)
	}
	w, h := d.deviceSize()
	if math.Abs(w-defaultWidthMM) > 1 || math.Abs(h-defaultHeightMM) > 1 {
		t.Errorf("deviceSize() = %vx%v; want about %dx%d", w, h, defaultWidthMM, defaultHeightMM)
	}
}

func TestNewPressureRange(t *testing.T) {
	for _, tc := range []struct {
		name         string
		q            Quirks
		wantUse      bool
		wantHigh     int32
		wantLow      int32
		wantInternal int
	}{
		{
			name:     "default",
			wantUse:  true,
			wantHigh: 30,
			wantLow:  25,
		},
		{
			name:     "quirk",
			q:        Quirks{PressureRange: &[2]int32{40, 20}},
			wantUse:  true,
			wantHigh: 40,
			wantLow:  20,
		},
		{
			name: "disabled",
			q:    Quirks{PressureRange: &[2]int32{0, 0}},
		},
		{
			name:         "out of bounds",
			q:            Quirks{PressureRange: &[2]int32{300, 200}},
			wantInternal: 1,
		},
		{
			name: "pressure pad",
			q:    Quirks{Model: ModelPressurePad},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			d, err := New(withPressure(testDevice()), tc.q, WithReporter(rec))
			if err != nil {
				t.Fatal("New failed: ", err)
			}
			if d.pressure.use != tc.wantUse {
				t.Errorf("pressure.use = %v; want %v", d.pressure.use, tc.wantUse)
			}
			if tc.wantUse && (d.pressure.high != tc.wantHigh || d.pressure.low != tc.wantLow) {
				t.Errorf("pressure range = %d:%d; want %d:%d", d.pressure.high, d.pressure.low, tc.wantHigh, tc.wantLow)
			}
			if got := rec.count(DiagInternalBug, ""); got != tc.wantInternal {
				t.Errorf("Got %d internal bugs; want %d", got, tc.wantInternal)
			}
		})
	}
}

func TestNewTouchSize(t *testing.T) {
	withSize := func(info DeviceInfo) DeviceInfo {
		info.Abs[event.AbsMtTouchMajor] = Axis{Max: 255}
		info.Abs[event.AbsMtTouchMinor] = Axis{Max: 255}
		return info
	}

	rec := &recorder{}
	d, err := New(withSize(testDevice()), Quirks{TouchSizeRange: &[2]int32{10, 8}}, WithReporter(rec))
	if err != nil {
		t.Fatal("New failed: ", err)
	}
	if !d.touchSize.use {
		t.Error("touchSize.use = false; want true")
	}

	// 5スロット未満では使えない
	rec = &recorder{}
	d, err = New(withSize(withSlots(testDevice(), 2, 5)), Quirks{TouchSizeRange: &[2]int32{10, 8}}, WithReporter(rec))
	if err != nil {
		t.Fatal("New failed: ", err)
	}
	if d.touchSize.use {
		t.Error("touchSize.use = true on a two slot device")
	}
	if got := rec.count(DiagInternalBug, "5+ slots"); got != 1 {
		t.Errorf("Got %d slot count internal bugs; want 1", got)
	}
}

func TestTouchSizeUnhover(t *testing.T) {
	info := testDevice()
	info.Abs[event.AbsMtTouchMajor] = Axis{Max: 255}
	info.Abs[event.AbsMtTouchMinor] = Axis{Max: 255}
	h := newHarness(t, info, Quirks{TouchSizeRange: &[2]int32{10, 8}})

	h.frame(1, func(s *event.Script) {
		s.MultiTouchDown(0, 1, 3000, 1500)
		s.Add(event.Abs, event.AbsMtTouchMajor, 9)
		s.Add(event.Abs, event.AbsMtTouchMinor, 9)
	})
	if got := h.d.Touch(0).State; got != TouchHovering {
		t.Fatalf("State with a small contact = %s; want HOVERING", got)
	}

	h.frame(1, func(s *event.Script) { s.Add(event.Abs, event.AbsMtTouchMajor, 12) })
	if got := h.d.Touch(0).State; got != TouchUpdate {
		t.Fatalf("State with a large contact = %s; want UPDATE", got)
	}

	h.frame(1, func(s *event.Script) { s.Add(event.Abs, event.AbsMtTouchMinor, 7) })
	if got := h.d.Touch(0).State; got != TouchHovering {
		t.Errorf("State after shrinking = %s; want HOVERING", got)
	}
}

func TestPressureUnhover(t *testing.T) {
	h := newHarness(t, withPressure(testDevice()), Quirks{})

	h.frame(1, func(s *event.Script) {
		s.MultiTouchDown(0, 1, 3000, 1500)
		s.Add(event.Abs, event.AbsMtPressure, 20)
	})
	if got := h.d.Touch(0).State; got != TouchHovering {
		t.Fatalf("State at pressure 20 = %s; want HOVERING", got)
	}

	h.frame(1, func(s *event.Script) { s.Add(event.Abs, event.AbsMtPressure, 30) })
	if got := h.d.Touch(0).State; got != TouchUpdate {
		t.Fatalf("State at pressure 30 = %s; want UPDATE", got)
	}

	// low と high の間では変化しない
	h.frame(1, func(s *event.Script) { s.Add(event.Abs, event.AbsMtPressure, 26) })
	if got := h.d.Touch(0).State; got != TouchUpdate {
		t.Errorf("State at pressure 26 = %s; want UPDATE", got)
	}

	h.frame(1, func(s *event.Script) { s.Add(event.Abs, event.AbsMtPressure, 24) })
	if got := h.d.Touch(0).State; got != TouchHovering {
		t.Errorf("State at pressure 24 = %s; want HOVERING", got)
	}
}

func TestAxisOutOfRangeIsReported(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	// 幅の5%までは許容
	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 6200, 1500) })
	if got := h.rec.count(DiagKernelBug, "outside expected range"); got != 0 {
		t.Errorf("Got %d axis range kernel bugs; want 0", got)
	}
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 6400, 1500) })
	if got := h.rec.count(DiagKernelBug, "outside expected range"); got != 1 {
		t.Errorf("Got %d axis range kernel bugs; want 1", got)
	}
}

func TestSlotOutOfRangeIsClamped(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(0, func(s *event.Script) { s.Add(event.Abs, event.AbsMtSlot, 9) })
	if got := h.rec.count(DiagKernelBug, "out of range"); got != 1 {
		t.Errorf("Got %d slot range kernel bugs; want 1", got)
	}
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 3000, 1500) })
	h.idle(1)
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 3020, 1510) })

	got := h.d.Snapshot(h.now())
	want := Snapshot{
		Time:        h.now(),
		Device:      "test touchpad",
		FingersDown: 1,
		FakeFingers: 1,
		Touches: []TouchSnapshot{{
			Index:  0,
			State:  "UPDATE",
			X:      3020,
			Y:      1510,
			Palm:   "none",
			Active: true,
			DeltaX: 20,
			DeltaY: 10,
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
}
