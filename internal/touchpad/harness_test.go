package touchpad

import (
	"strings"
	"testing"
	"time"

	"github.com/char5742/touchpad-frames/internal/event"
)

const frameInterval = 12 * time.Millisecond

var testStart = time.Unix(1000, 0)

// recorder は診断を記録する Reporter
type recorder struct {
	diags []Diagnostic
}

func (r *recorder) Report(d Diagnostic) {
	r.diags = append(r.diags, d)
}

// count は kind の診断のうち substr を含むものの数を返す
func (r *recorder) count(kind DiagnosticKind, substr string) int {
	n := 0
	for _, d := range r.diags {
		if d.Kind == kind && strings.Contains(d.Message, substr) {
			n++
		}
	}
	return n
}

func keySet(codes ...uint16) map[uint16]bool {
	m := make(map[uint16]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

// testDevice は 150x75mm、5スロットのクリックパッド
func testDevice() DeviceInfo {
	x := Axis{Min: 0, Max: 6000, Resolution: 40}
	y := Axis{Min: 0, Max: 3000, Resolution: 40}
	return DeviceInfo{
		Name: "test touchpad",
		Abs: map[uint16]Axis{
			event.AbsX:            x,
			event.AbsY:            y,
			event.AbsMtSlot:       {Max: 4},
			event.AbsMtPositionX:  x,
			event.AbsMtPositionY:  y,
			event.AbsMtTrackingId: {Max: 65535},
		},
		Keys: keySet(
			event.BtnTouch,
			event.BtnToolFinger,
			event.BtnToolDoubleTap,
			event.BtnToolTripleTap,
			event.BtnToolQuadTap,
			event.BtnToolQuintTap,
			event.MouseBtnLeft,
		),
		Props: keySet(event.PropPointer, event.PropButtonpad),
	}
}

// withPressure は圧力軸を追加する
func withPressure(info DeviceInfo) DeviceInfo {
	info.Abs[event.AbsMtPressure] = Axis{Max: 255}
	info.Abs[event.AbsPressure] = Axis{Max: 255}
	return info
}

// withSlots はスロット数と BTN_TOOL_* で報告できる最大の本数を変更する
func withSlots(info DeviceInfo, slots, maxFingers int) DeviceInfo {
	info.Abs[event.AbsMtSlot] = Axis{Max: int32(slots - 1)}
	for n := 2; n < len(toolCodes); n++ {
		info.Keys[toolCodes[n]] = n <= maxFingers
	}
	return info
}

var toolCodes = []uint16{
	0,
	event.BtnToolFinger,
	event.BtnToolDoubleTap,
	event.BtnToolTripleTap,
	event.BtnToolQuadTap,
	event.BtnToolQuintTap,
}

// toolKeys は指の本数の変化に対応する BTN_TOUCH と BTN_TOOL_* を追加する
func toolKeys(s *event.Script, from, to int) {
	if from == to {
		return
	}
	if from > 0 {
		s.Key(toolCodes[from], false)
	}
	if to > 0 {
		s.Key(toolCodes[to], true)
	}
	if from == 0 {
		s.Key(event.BtnTouch, true)
	}
	if to == 0 {
		s.Key(event.BtnTouch, false)
	}
}

type harness struct {
	t       *testing.T
	d       *Dispatch
	rec     *recorder
	s       *event.Script
	fingers int
}

func newHarness(t *testing.T, info DeviceInfo, q Quirks, opts ...Option) *harness {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithReporter(rec)}, opts...)
	d, err := New(info, q, opts...)
	if err != nil {
		t.Fatal("New failed: ", err)
	}
	return &harness{t: t, d: d, rec: rec, s: event.NewScript(testStart)}
}

func (h *harness) now() time.Time {
	return h.s.Now()
}

// frame は1フレーム分のイベントを12ms後の時刻で処理する。
// fingers はフレーム後に BTN_TOOL_* が示す指の本数
func (h *harness) frame(fingers int, build func(s *event.Script)) {
	h.t.Helper()
	h.s.Advance(frameInterval)
	h.s.Reset()
	if build != nil {
		build(h.s)
	}
	toolKeys(h.s, h.fingers, fingers)
	h.fingers = fingers
	h.s.Sync()
	for _, e := range h.s.Events() {
		h.d.Process(e)
	}
	h.checkInvariants()
}

// idle は何も起きないフレームを n 回処理する
func (h *harness) idle(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.frame(h.fingers, nil)
	}
}

func (h *harness) checkInvariants() {
	h.t.Helper()
	d := h.d
	if d.nfingersDown < 0 || d.nfingersDown > len(d.touches) {
		h.t.Fatalf("nfingersDown = %d; want within [0, %d]", d.nfingersDown, len(d.touches))
	}
	if d.slot < 0 || d.slot >= len(d.touches) {
		h.t.Fatalf("slot = %d; want within [0, %d)", d.slot, len(d.touches))
	}
	for i := range d.touches {
		switch d.touches[i].State {
		case TouchMaybeEnd, TouchEnd, TouchBegin:
			h.t.Fatalf("touch %d is %s at the end of a frame", i, d.touches[i].State)
		}
	}
	if n := h.rec.count(DiagInternalBug, ""); n != 0 {
		h.t.Fatalf("%d internal bugs reported: %+v", n, h.rec.diags)
	}
}

type recordingTap struct {
	nopTap
	handled  int
	released int
	resumed  int
}

func (r *recordingTap) HandleState(time.Time) bool {
	r.handled++
	return false
}

func (r *recordingTap) ReleaseAll(time.Time) { r.released++ }
func (r *recordingTap) Resume(time.Time)     { r.resumed++ }

type recordingFilter struct {
	restarts []time.Time
}

func (r *recordingFilter) Restart(now time.Time) {
	r.restarts = append(r.restarts, now)
}
