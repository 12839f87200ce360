package touchpad

import (
	"fmt"
	"math"
	"time"

	"github.com/char5742/touchpad-frames/internal/event"
)

// queuedEvents はフレーム内で受け取ったイベントの種類
type queuedEvents uint8

const (
	queuedMotion queuedEvents = 1 << iota
	queuedOtherAxis
	queuedTimestamp
	queuedButtonPress
)

// mscJumpState は MSC_TIMESTAMP によるジャンプ検出の状態
type mscJumpState int

const (
	mscExpectFirst mscJumpState = iota
	mscExpectDelay
	mscIgnore
)

// keyMask は押下中のキーのビット集合
type keyMask [event.KeyCnt / 64]uint64

func (m *keyMask) set(code uint16)   { m[code/64] |= 1 << (code % 64) }
func (m *keyMask) clear(code uint16) { m[code/64] &^= 1 << (code % 64) }

func (m *keyMask) any() bool {
	for _, w := range m {
		if w != 0 {
			return true
		}
	}
	return false
}

const (
	defaultPalmPressureThreshold = 130

	// 解像度が報告されないときに仮定するサイズ (mm)
	defaultWidthMM  = 69
	defaultHeightMM = 50

	// 各ボタンのビット
	buttonLeft   = 1 << 0
	buttonRight  = 1 << 1
	buttonMiddle = 1 << 2
)

// Dispatch は1台のタッチパッドのフレームプロセッサ
type Dispatch struct {
	name string

	touches []Touch
	slot    int
	// numSlots は実スロット数。ALPS の補正で減ることがある
	numSlots int
	hasMT    bool
	semiMT   bool

	nfingersDown    int
	oldNfingersDown int
	nactiveSlots    int

	fake   fakeFingers
	queued queuedEvents

	absX Axis
	absY Axis

	hasPressure bool

	hysteresis struct {
		enabled        bool
		margin         Point
		lastMotionTime time.Time
	}

	jump struct {
		disabled bool
		warning  *ratelimit
	}

	axisWarning struct {
		limit      *ratelimit
		minX, maxX int32
		minY, maxY int32
	}

	pressure struct {
		use  bool
		high int32
		low  int32
	}

	touchSize struct {
		use  bool
		high int32
		low  int32
	}

	palm struct {
		leftEdge  int32
		rightEdge int32
		upperEdge int32

		useMTTool         bool
		usePressure       bool
		pressureThreshold int32
		useSize           bool
		sizeThreshold     int32

		monitorTrackpoint       bool
		dwtpEnabled             bool
		trackpointActive        bool
		trackpointLastEventTime time.Time
		trackpointEventCount    int
	}

	dwt struct {
		available         bool
		enabled           bool
		keyboardActive    bool
		keyboardLastPress time.Time
		keys              keyMask
		mods              keyMask
	}

	arbitration ArbitrationState

	msc struct {
		state    mscJumpState
		interval uint32
		now      uint32
	}

	nonmotionEventCount int

	buttons struct {
		state    uint32
		oldState uint32
	}

	model      ModelFlags
	clickpad   bool
	topButtons bool
	tablet     bool
	suspended  bool

	leftHanded struct {
		want   bool
		rotate bool
	}

	sched     Scheduler
	consumers Consumers
	reporter  Reporter
}

// Option は New の追加設定
type Option func(d *Dispatch)

// WithScheduler はタイマーの実装を差し替える
func WithScheduler(s Scheduler) Option {
	return func(d *Dispatch) { d.sched = s }
}

// WithReporter は診断の出力先を設定する
func WithReporter(r Reporter) Option {
	return func(d *Dispatch) { d.reporter = r }
}

// WithConsumers はフレームの消費者を設定する
func WithConsumers(c Consumers) Option {
	return func(d *Dispatch) { d.consumers = c }
}

// New はデバイス情報と quirks から Dispatch を作成する。
// タッチパッドとして最低限の能力がない場合はエラーを返す
func New(info DeviceInfo, q Quirks, opts ...Option) (*Dispatch, error) {
	d := &Dispatch{
		name:       info.Name,
		model:      q.Model,
		clickpad:   q.Clickpad || info.Props[event.PropButtonpad],
		topButtons: q.TopButtons || info.Props[event.PropTopButton],
		tablet:     q.Tablet,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sched == nil {
		d.sched = &TimerSet{}
	}

	if !passSanityCheck(&info) {
		d.kernelBug(-1, "device failed touchpad sanity checks")
		return nil, fmt.Errorf("%s: device failed touchpad sanity checks", info.Name)
	}

	abs := make(map[uint16]Axis, len(info.Abs))
	for code, a := range info.Abs {
		abs[code] = a
	}

	d.initSlots(&info, abs, q)
	d.initAxes(abs)
	d.initDefaultResolution(abs)
	d.initPressurePad(abs, q)
	d.initAxisWarnings()

	if !d.initTouchSize(abs, q) {
		d.initPressure(abs, q)
	}

	d.jump.warning = newRatelimit()
	d.jump.disabled = q.JumpDetectionDisabled

	d.initHysteresis()
	d.initDWT(q)
	d.initPalm(abs, q)

	d.setConsumers(d.consumers)

	// BTN_TOOL_FINGER をタッチ解除時にリセットしないデバイスがある
	if info.PressedKeys[event.BtnToolFinger] {
		d.fake.set(event.BtnToolFinger, true)
	}

	return d, nil
}

func passSanityCheck(info *DeviceInfo) bool {
	return info.HasAbs(event.AbsX) &&
		info.Keys[event.BtnTouch] &&
		info.Keys[event.BtnToolFinger]
}

func (d *Dispatch) initSlots(info *DeviceInfo, abs map[uint16]Axis, q Quirks) {
	if a, ok := abs[event.AbsMtSlot]; ok {
		d.numSlots = int(a.Max) + 1
		d.slot = int(a.Value)
		d.hasMT = true
	} else {
		d.numSlots = 1
		d.slot = 0
	}

	d.semiMT = info.Props[event.PropSemiMt]

	// semi-mt はバウンディングボックスしか報告しないので、
	// BTN_TOOL_* 付きのシングルタッチとして扱う
	if d.semiMT || q.Model&ModelHPPavilionDM4 != 0 {
		d.numSlots = 1
		d.slot = 0
		d.hasMT = false
	}

	if !d.hasMT {
		for code := uint16(event.AbsMtSlot); code <= event.AbsMax; code++ {
			delete(abs, code)
		}
	}

	toolTouches := 1
	for _, m := range []struct {
		code uint16
		n    int
	}{
		{event.BtnToolQuintTap, 5},
		{event.BtnToolQuadTap, 4},
		{event.BtnToolTripleTap, 3},
		{event.BtnToolDoubleTap, 2},
	} {
		if info.Keys[m.code] {
			toolTouches = m.n
			break
		}
	}

	n := d.numSlots
	if toolTouches > n {
		n = toolTouches
	}
	d.touches = make([]Touch, n)
	for i := range d.touches {
		d.touches[i].init(i)
	}
	if d.slot < 0 || d.slot >= n {
		d.slot = 0
	}

	d.syncSlots(info.Slots, abs)
}

func (d *Dispatch) initAxes(abs map[uint16]Axis) {
	xcode, ycode := uint16(event.AbsX), uint16(event.AbsY)
	if d.hasMT {
		if _, ok := abs[event.AbsMtPositionX]; ok {
			xcode, ycode = event.AbsMtPositionX, event.AbsMtPositionY
		}
	}
	d.absX = abs[xcode]
	d.absY = abs[ycode]
}

func (d *Dispatch) initDefaultResolution(abs map[uint16]Axis) {
	if d.absX.Resolution != 0 && d.absY.Resolution != 0 {
		return
	}

	d.report(DiagInfo, -1, "no resolution or size hints, assuming a size of %dx%dmm",
		defaultWidthMM, defaultHeightMM)

	xres := (d.absX.Max - d.absX.Min) / defaultWidthMM
	yres := (d.absY.Max - d.absY.Min) / defaultHeightMM
	if xres < 1 {
		xres = 1
	}
	if yres < 1 {
		yres = 1
	}
	d.absX.Resolution = xres
	d.absY.Resolution = yres
	for _, code := range []uint16{event.AbsX, event.AbsMtPositionX} {
		if a, ok := abs[code]; ok {
			a.Resolution = xres
			abs[code] = a
		}
	}
	for _, code := range []uint16{event.AbsY, event.AbsMtPositionY} {
		if a, ok := abs[code]; ok {
			a.Resolution = yres
			abs[code] = a
		}
	}
}

// initPressurePad は感圧パッドの圧力軸を無効にする。
// 感圧パッドの圧力は接触面積ではなく押し込む力を表す
func (d *Dispatch) initPressurePad(abs map[uint16]Axis, q Quirks) {
	a, ok := abs[event.AbsMtPressure]
	if (ok && a.Resolution != 0) || q.Model&ModelPressurePad != 0 {
		delete(abs, event.AbsMtPressure)
		delete(abs, event.AbsPressure)
	}
}

func (d *Dispatch) initAxisWarnings() {
	w := d.absX.Max - d.absX.Min
	h := d.absY.Max - d.absY.Min
	d.axisWarning.limit = newRatelimit()
	d.axisWarning.minX = d.absX.Min - w/20
	d.axisWarning.maxX = d.absX.Max + w/20
	d.axisWarning.minY = d.absY.Min - h/20
	d.axisWarning.maxY = d.absY.Max + h/20
}

func (d *Dispatch) initTouchSize(abs map[uint16]Axis, q Quirks) bool {
	if _, ok := abs[event.AbsMtTouchMajor]; !ok {
		return false
	}
	if q.TouchSizeRange == nil {
		return false
	}
	hi, lo := q.TouchSizeRange[0], q.TouchSizeRange[1]

	if d.numSlots < 5 {
		d.internalBug(-1, "Expected 5+ slots for touch size detection")
		return false
	}
	if hi == 0 && lo == 0 {
		d.report(DiagInfo, -1, "touch size based touch detection disabled")
		return false
	}

	d.touchSize.use = true
	d.touchSize.high = hi
	d.touchSize.low = lo
	d.debugf(-1, "using size-based touch detection (%d:%d)", hi, lo)
	return true
}

func (d *Dispatch) initPressure(abs map[uint16]Axis, q Quirks) {
	code := uint16(event.AbsPressure)
	if d.hasMT {
		code = event.AbsMtPressure
	}
	a, ok := abs[code]
	if !ok {
		return
	}
	d.hasPressure = true

	var hi, lo int32
	if q.PressureRange != nil {
		hi, lo = q.PressureRange[0], q.PressureRange[1]
		if hi == 0 && lo == 0 {
			d.report(DiagInfo, -1, "pressure-based touch detection disabled")
			return
		}
	} else {
		// synaptics の既定値とほぼ同じ
		r := float64(a.Max - a.Min + 1)
		hi = a.Min + int32(0.12*r)
		lo = a.Min + int32(0.10*r)
	}

	if hi > a.Max || hi < a.Min || lo > a.Max || lo < a.Min {
		d.internalBug(-1, "discarding out-of-bounds pressure range %d:%d", hi, lo)
		return
	}

	d.pressure.use = true
	d.pressure.high = hi
	d.pressure.low = lo
	d.debugf(-1, "using pressure-based touch detection (%d:%d)", lo, hi)
}

func (d *Dispatch) initHysteresis() {
	xmargin := d.absX.Fuzz
	if xmargin == 0 {
		xmargin = d.absX.Resolution / 4
	}
	ymargin := d.absY.Fuzz
	if ymargin == 0 {
		ymargin = d.absY.Resolution / 4
	}
	d.hysteresis.margin = Point{X: xmargin, Y: ymargin}
	d.hysteresis.enabled = d.absX.Fuzz != 0 || d.absY.Fuzz != 0
	if d.hysteresis.enabled {
		d.debugf(-1, "hysteresis enabled")
	}
}

func (d *Dispatch) initDWT(q Quirks) {
	d.palm.dwtpEnabled = true
	if q.External && !q.TPKBCombo {
		return
	}
	d.dwt.available = true
	d.dwt.enabled = true
}

func (d *Dispatch) initPalm(abs map[uint16]Axis, q Quirks) {
	d.palm.rightEdge = math.MaxInt32
	d.palm.leftEdge = math.MinInt32
	d.palm.upperEdge = math.MinInt32
	d.arbitration = ArbitrationNotActive

	if q.External && !q.TPKBCombo && !q.Tablet {
		return
	}

	if !q.Tablet {
		d.palm.monitorTrackpoint = true
	}
	if _, ok := abs[event.AbsMtToolType]; ok {
		d.palm.useMTTool = true
	}
	if !q.Tablet {
		d.initPalmEdges(q)
	}

	if _, ok := abs[event.AbsMtPressure]; ok {
		threshold := int32(defaultPalmPressureThreshold)
		if q.PalmPressureThreshold != nil {
			threshold = *q.PalmPressureThreshold
		}
		if threshold != 0 {
			d.palm.usePressure = true
			d.palm.pressureThreshold = threshold
			d.debugf(-1, "palm: pressure threshold is %d", threshold)
		}
	}

	if q.PalmSizeThreshold != 0 {
		d.palm.useSize = true
		d.palm.sizeThreshold = q.PalmSizeThreshold
	}
}

func (d *Dispatch) initPalmEdges(q Quirks) {
	if q.External && !q.TPKBCombo {
		return
	}
	// Apple のタッチパッドではエッジ判定が害になる
	if q.Model&ModelApple != 0 {
		return
	}

	width, height := d.deviceSize()
	if width < 70.0 {
		return
	}

	// 左右は幅の8%（最大8mm）
	side := math.Min(8, width*0.08)
	d.palm.leftEdge = d.mmToUnits(physCoords{x: side}).X
	d.palm.rightEdge = d.mmToUnits(physCoords{x: width - side}).X

	if !d.topButtons && height > 55 {
		// 上端は高さの5%
		d.palm.upperEdge = d.mmToUnits(physCoords{y: height * 0.05}).Y
	}
}

// syncSlots はスロットの現在値をタッチに反映し、アクティブなスロット数を数え直す
func (d *Dispatch) syncSlots(slots []SlotState, abs map[uint16]Axis) {
	d.nactiveSlots = 0
	for i := 0; i < d.numSlots && i < len(d.touches); i++ {
		t := &d.touches[i]
		if i >= len(slots) {
			if i == 0 {
				// シングルタッチのデバイスは ABS_X/Y の現在値を使う
				t.Point = Point{X: abs[event.AbsX].Value, Y: abs[event.AbsY].Value}
				t.Pressure = abs[event.AbsPressure].Value
			}
			continue
		}
		s := slots[i]
		t.Point = Point{X: s.X, Y: s.Y}
		t.Pressure = s.Pressure
		t.Major = s.Major
		t.Minor = s.Minor
		if d.hasMT && s.TrackingID != -1 {
			d.nactiveSlots++
		}
	}
}

// Name はデバイス名
func (d *Dispatch) Name() string { return d.name }
