package touchpad

import (
	"testing"
	"time"
)

func TestDirection(t *testing.T) {
	for _, tc := range []struct {
		x, y float64
		want uint32
	}{
		{0, 0, dirUndefined},
		{1, 0, dirNE | dirE | dirSE},
		{0, -1, dirNE | dirN | dirNW},
		{-1, 1, dirS | dirSW | dirW},
		{5, 0, dirE},
		{0, 5, dirS},
		{-5, 0, dirW},
		{0, -5, dirN},
		{5, 5, dirSE},
		{5, 2.5, dirE | dirSE},
	} {
		if got := direction(tc.x, tc.y); got != tc.want {
			t.Errorf("direction(%v, %v) = %#x; want %#x", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestHysteresis(t *testing.T) {
	center := Point{X: 100, Y: 100}
	margin := Point{X: 10, Y: 10}

	for _, tc := range []struct {
		in, want Point
	}{
		{Point{X: 105, Y: 100}, center},
		{Point{X: 100, Y: 95}, center},
		{Point{X: 130, Y: 100}, Point{X: 120, Y: 100}},
		{Point{X: 100, Y: 70}, Point{X: 100, Y: 80}},
		{Point{X: 70, Y: 100}, Point{X: 80, Y: 100}},
	} {
		if got := hysteresis(tc.in, center, margin); got != tc.want {
			t.Errorf("hysteresis(%+v) = %+v; want %+v", tc.in, got, tc.want)
		}
	}

	if got, want := hysteresis(Point{X: 105, Y: 100}, center, Point{}), (Point{X: 105, Y: 100}); got != want {
		t.Errorf("hysteresis() with zero margin = %+v; want %+v", got, want)
	}
}

func TestMotionHistory(t *testing.T) {
	var h motionHistory
	start := time.Unix(0, 0)

	if _, ok := h.latest(); ok {
		t.Fatal("latest() ok on an empty history")
	}

	for i := 0; i < 6; i++ {
		h.push(Point{X: int32(i)}, start.Add(time.Duration(i)*time.Millisecond))
	}
	if h.count != historyLength {
		t.Fatalf("count = %d; want %d", h.count, historyLength)
	}
	for n := 0; n < historyLength; n++ {
		s, ok := h.offset(n)
		if !ok {
			t.Fatalf("offset(%d) not ok", n)
		}
		if want := int32(5 - n); s.point.X != want {
			t.Errorf("offset(%d).point.X = %d; want %d", n, s.point.X, want)
		}
	}
	if _, ok := h.offset(historyLength); ok {
		t.Errorf("offset(%d) ok; want not ok", historyLength)
	}

	h.reset()
	if _, ok := h.latest(); ok {
		t.Error("latest() ok after reset")
	}
}

func TestTimerSet(t *testing.T) {
	var ts TimerSet
	start := time.Unix(100, 0)

	ts.Arm(TimerKeyboard, start.Add(200*time.Millisecond))
	ts.Arm(TimerArbitration, start.Add(90*time.Millisecond))
	ts.Arm(TimerTrackpoint, start.Add(40*time.Millisecond))
	ts.Cancel(TimerTrackpoint)

	var fired []TimerID
	fire := func(id TimerID, now time.Time) { fired = append(fired, id) }

	ts.PollDue(start.Add(50*time.Millisecond), fire)
	if len(fired) != 0 {
		t.Fatalf("fired %v at 50ms; want none", fired)
	}

	ts.PollDue(start.Add(90*time.Millisecond), fire)
	if len(fired) != 1 || fired[0] != TimerArbitration {
		t.Fatalf("fired %v at 90ms; want [arbitration]", fired)
	}
	if ts.Armed(TimerArbitration) {
		t.Error("arbitration timer still armed after firing")
	}

	ts.PollDue(start.Add(time.Second), fire)
	if len(fired) != 2 || fired[1] != TimerKeyboard {
		t.Errorf("fired %v at 1s; want [arbitration keyboard]", fired)
	}
}

func TestRatelimit(t *testing.T) {
	rl := newRatelimit()
	now := time.Unix(0, 0)

	for i := 0; i < 5; i++ {
		if ok, _ := rl.allow(now); !ok {
			t.Fatalf("allow() #%d = false; want true", i)
		}
	}
	if ok, threshold := rl.allow(now); ok || !threshold {
		t.Errorf("allow() #5 = %v, %v; want false, true", ok, threshold)
	}
	if ok, threshold := rl.allow(now); ok || threshold {
		t.Errorf("allow() #6 = %v, %v; want false, false", ok, threshold)
	}
	if ok, _ := rl.allow(now.Add(24 * time.Hour)); !ok {
		t.Error("allow() after 24h = false; want true")
	}
}
