package touchpad

import (
	"testing"
	"time"

	"github.com/char5742/touchpad-frames/internal/event"
)

func TestJumpIsDiscarded(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 100, 100) })
	h.idle(4)

	// 12ms で 125mm
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 5100, 100) })

	tp := h.d.Touch(0)
	if got := h.rec.count(DiagKernelBug, "jump"); got != 1 {
		t.Errorf("Got %d jump kernel bugs; want 1", got)
	}
	if got, want := tp.Point, (Point{X: 100, Y: 100}); got != want {
		t.Errorf("Point on jump frame = %+v; want %+v", got, want)
	}
	if tp.HistoryCount() != 1 {
		t.Errorf("HistoryCount() = %d; want 1", tp.HistoryCount())
	}
	if got := h.d.Delta(tp); got != (Point{}) {
		t.Errorf("Delta() = %+v; want zero", got)
	}

	// 動かなくても次のフレームで飛んだ先に移る
	h.idle(1)
	if got, want := tp.Point, (Point{X: 5100, Y: 100}); got != want {
		t.Errorf("Point after jump = %+v; want %+v", got, want)
	}
	if got := h.d.Delta(tp); got != (Point{}) {
		t.Errorf("Delta() after jump = %+v; want zero", got)
	}
	if got := h.rec.count(DiagKernelBug, "jump"); got != 1 {
		t.Errorf("Got %d jump kernel bugs after resuming; want 1", got)
	}

	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 5140, 100) })
	if got, want := h.d.Delta(tp), (Point{X: 40}); got != want {
		t.Errorf("Delta() after resuming = %+v; want %+v", got, want)
	}
}

func TestMotionAfterJumpStartsFromNewPosition(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 100, 100) })
	h.idle(4)
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 5100, 100) })
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 5120, 100) })

	tp := h.d.Touch(0)
	if got, want := tp.Point, (Point{X: 5120, Y: 100}); got != want {
		t.Errorf("Point = %+v; want %+v", got, want)
	}
	// 捨てた位置との差は動きにしない
	if got := h.d.Delta(tp); got != (Point{}) {
		t.Errorf("Delta() = %+v; want zero", got)
	}
	if got := h.rec.count(DiagKernelBug, "jump"); got != 1 {
		t.Errorf("Got %d jump kernel bugs; want 1", got)
	}

	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 5160, 100) })
	if got, want := h.d.Delta(tp), (Point{X: 40}); got != want {
		t.Errorf("Delta() = %+v; want %+v", got, want)
	}
}

func TestJumpDetectionIgnoresIrregularIntervals(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 1000, 1000) })
	h.idle(1)
	// 12ms の2.5倍を超える間隔
	h.s.Advance(30 * time.Millisecond)
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 5000, 1000) })

	if got := h.rec.count(DiagKernelBug, "jump"); got != 0 {
		t.Errorf("Got %d jump kernel bugs; want 0", got)
	}
	if got, want := h.d.Delta(h.d.Touch(0)), (Point{X: 4000}); got != want {
		t.Errorf("Delta() = %+v; want %+v", got, want)
	}
}

func TestJumpDetectionDisabled(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{JumpDetectionDisabled: true})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 1000, 1000) })
	h.idle(1)
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 5000, 1000) })

	if got := h.rec.count(DiagKernelBug, "jump"); got != 0 {
		t.Errorf("Got %d jump kernel bugs; want 0", got)
	}
}

func TestALPSBogusCoordinateIsReplaced(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{Model: ModelALPSSerial})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 1000, 1000) })
	h.idle(2)
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 4095, 0) })

	if got, want := h.d.Touch(0).Point, (Point{X: 1000, Y: 1000}); got != want {
		t.Errorf("Point = %+v; want %+v", got, want)
	}
	if got := h.rec.count(DiagKernelBug, "jump"); got != 1 {
		t.Errorf("Got %d jump kernel bugs; want 1", got)
	}
}

func TestWobblingEnablesHysteresis(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 3000, 1500) })
	if h.d.HysteresisEnabled() {
		t.Fatal("HysteresisEnabled() = true before any motion")
	}

	// 指が置かれた次のフレームは履歴が空なので往復を数えない
	h.idle(1)
	for _, x := range []int32{2990, 3000, 2990} {
		h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, x, 1500) })
	}
	if !h.d.HysteresisEnabled() {
		t.Fatal("HysteresisEnabled() = false after right-left-right motion")
	}

	// 以後のタッチでも有効のまま
	h.frame(0, func(s *event.Script) { s.MultiTouchUp(0) })
	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 2, 3000, 1500) })
	if !h.d.HysteresisEnabled() {
		t.Error("HysteresisEnabled() = false after a new touch")
	}

	// マージン(解像度/4)より小さい動きは捨てられる
	h.idle(1)
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 3005, 1500) })
	if got, want := h.d.Touch(0).Point, (Point{X: 3000, Y: 1500}); got != want {
		t.Errorf("Point after small motion = %+v; want %+v", got, want)
	}
}

func TestSlowMotionDoesNotEnableHysteresis(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 3000, 1500) })
	for _, x := range []int32{2990, 3000, 2990} {
		// 40ms を超える間隔の往復は揺れとみなさない
		h.s.Advance(50 * time.Millisecond)
		h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, x, 1500) })
	}
	if h.d.HysteresisEnabled() {
		t.Error("HysteresisEnabled() = true; want false")
	}
}

func TestFuzzEnablesHysteresis(t *testing.T) {
	info := testDevice()
	a := info.Abs[event.AbsMtPositionX]
	a.Fuzz = 8
	info.Abs[event.AbsMtPositionX] = a

	h := newHarness(t, info, Quirks{})
	if !h.d.HysteresisEnabled() {
		t.Error("HysteresisEnabled() = false for an axis with fuzz")
	}
}

func TestSpeedExceededDecaysWhileStationary(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 3000, 1500) })
	tp := h.d.Touch(0)
	tp.speed.exceededCount = 15

	for i := 0; i < 20; i++ {
		h.idle(1)
		want := 15 - (i + 1)
		if want < 0 {
			want = 0
		}
		if tp.SpeedExceededCount() != want {
			t.Fatalf("frame %d: SpeedExceededCount() = %d; want %d", i, tp.SpeedExceededCount(), want)
		}
	}

	for i := 0; i < tp.HistoryCount(); i++ {
		p, ok := tp.history.offset(i)
		if !ok {
			t.Fatalf("history.offset(%d) not available", i)
		}
		if p.point != tp.Point {
			t.Errorf("history[%d] = %+v; want %+v", i, p.point, tp.Point)
		}
	}
}

func TestMotionSpeed(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 1000, 1500) })
	// 12ms ごとに 0.5mm = 約41.7mm/s
	x := int32(1000)
	for i := 0; i < 5; i++ {
		x += 20
		h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, x, 1500) })
	}

	tp := h.d.Touch(0)
	if got := tp.Speed(); got < 41 || got > 42 {
		t.Errorf("Speed() = %v; want about 41.7", got)
	}
	if tp.SpeedExceededCount() == 0 {
		t.Error("SpeedExceededCount() = 0; want > 0")
	}
}

func TestTimestampJumpRewritesHistory(t *testing.T) {
	f := &recordingFilter{}
	h := newHarness(t, testDevice(), Quirks{}, WithConsumers(Consumers{Filter: f}))

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 3000, 1500) })
	h.idle(2)

	for _, ts := range []int32{0, 7300} {
		h.frame(1, func(s *event.Script) { s.Add(event.Msc, event.MscTimestamp, ts) })
	}
	h.frame(1, func(s *event.Script) { s.Add(event.Msc, event.MscTimestamp, 123456) })

	now := h.now()
	tdelta := 116156 * time.Microsecond
	if len(f.restarts) == 0 {
		t.Fatal("Filter.Restart not called")
	}
	if got, want := f.restarts[len(f.restarts)-1], now.Add(-tdelta); !got.Equal(want) {
		t.Errorf("last Restart(%v); want Restart(%v)", got, want)
	}

	tp := h.d.Touch(0)
	for i := 1; i < tp.HistoryCount(); i++ {
		p, _ := tp.history.offset(i)
		want := now.Add(-tdelta - time.Duration(i-1)*7300*time.Microsecond)
		if !p.time.Equal(want) {
			t.Errorf("history[%d].time = %v; want %v", i, p.time, want)
		}
	}

	// 一度検出すると再び0が来るまで無視する
	restarts := len(f.restarts)
	h.frame(1, func(s *event.Script) { s.Add(event.Msc, event.MscTimestamp, 999999) })
	if len(f.restarts) != restarts {
		t.Error("Filter.Restart called again before the timestamp reset")
	}
}

func TestTimestampLongFirstIntervalIsIgnored(t *testing.T) {
	f := &recordingFilter{}
	h := newHarness(t, testDevice(), Quirks{}, WithConsumers(Consumers{Filter: f}))

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 3000, 1500) })
	restarts := len(f.restarts)
	for _, ts := range []int32{0, 25000, 500000} {
		h.frame(1, func(s *event.Script) { s.Add(event.Msc, event.MscTimestamp, ts) })
	}
	if len(f.restarts) != restarts {
		t.Errorf("Filter.Restart called %d times; want 0", len(f.restarts)-restarts)
	}
}

func TestClickpadPressPinsFingers(t *testing.T) {
	h := newHarness(t, testDevice(), Quirks{})

	h.frame(1, func(s *event.Script) { s.MultiTouchDown(0, 1, 3000, 1500) })
	h.frame(1, func(s *event.Script) { s.Key(event.MouseBtnLeft, true) })

	tp := h.d.Touch(0)
	if !tp.Pinned() {
		t.Fatal("Pinned() = false after clickpad press")
	}
	if h.d.TouchActive(tp) {
		t.Error("TouchActive() = true for a pinned touch")
	}

	// 0.5mm
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 3020, 1500) })
	if !tp.Pinned() {
		t.Error("Pinned() = false after 0.5mm")
	}

	// 2mm
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 3080, 1500) })
	if tp.Pinned() {
		t.Error("Pinned() = true after 2mm")
	}
	if !h.d.TouchActive(tp) {
		t.Error("TouchActive() = false after unpinning")
	}
}

func TestLenovoT450ResetsHistoryAfterPressureOnlyEvents(t *testing.T) {
	h := newHarness(t, withPressure(testDevice()), Quirks{Model: ModelLenovoT450})

	h.frame(1, func(s *event.Script) {
		s.MultiTouchDown(0, 1, 3000, 1500)
		s.Add(event.Abs, event.AbsMtPressure, 60)
	})
	h.idle(1)
	for i := 0; i < nonmotionEventLimit+1; i++ {
		h.frame(1, func(s *event.Script) { s.Add(event.Abs, event.AbsMtPressure, int32(60+i%2)) })
	}
	h.frame(1, func(s *event.Script) { s.MultiTouchMove(0, 3400, 1500) })

	tp := h.d.Touch(0)
	if got := h.d.Delta(tp); got != (Point{}) {
		t.Errorf("Delta() = %+v; want zero after a history reset", got)
	}
	if got := h.rec.count(DiagKernelBug, "jump"); got != 0 {
		t.Errorf("Got %d jump kernel bugs; want 0", got)
	}
}
