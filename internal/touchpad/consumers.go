package touchpad

import "time"

// TapHandler はタップ処理（外部）
type TapHandler interface {
	// HandleState はタップ状態を更新し、モーションを消費したら true を返す
	HandleState(now time.Time) (motionConsumed bool)
	PostProcess()
	Suspend(now time.Time)
	Resume(now time.Time)
	ReleaseAll(now time.Time)
}

// ButtonHandler は物理ボタン・ソフトウェアボタン処理（外部）
type ButtonHandler interface {
	ProcessButton(code uint16, pressed bool, now time.Time)
	HandleState(now time.Time)
	PostEvents(now time.Time) (motionConsumed bool)
	// TouchActive はボタン領域に消費されていないタッチなら true
	TouchActive(t *Touch) bool
	ReleaseAll(now time.Time)
}

// EdgeScroller はエッジスクロール（外部）
type EdgeScroller interface {
	HandleState(now time.Time)
	// PostEvents はスクロールを送出したら true を返す
	PostEvents(now time.Time) (handled bool)
	StopEvents(now time.Time)
	TouchActive(t *Touch) bool
	// TouchEdge はタッチがどのエッジ上にあるかを返す
	TouchEdge(t *Touch) Edge
}

// GestureHandler は2本指以上のジェスチャー（外部）
type GestureHandler interface {
	HandleState(now time.Time)
	PostEvents(now time.Time, ignoreMotion bool)
	Cancel(now time.Time)
	CancelMotionGestures(now time.Time)
}

// ThumbDetector は親指判定（外部）
type ThumbDetector interface {
	Enabled() bool
	UpdateTouch(t *Touch, now time.Time)
	UpdateMultifinger()
	Reset()
	Ignored(t *Touch) bool
	IgnoredForGesture(t *Touch) bool
}

// MotionFilter はポインタ加速フィルタ（外部）。履歴の再開だけを要求する
type MotionFilter interface {
	Restart(now time.Time)
}

// Consumers はフレームの消費者。nil のフィールドは何もしない実装になる
type Consumers struct {
	Tap      TapHandler
	Buttons  ButtonHandler
	Edge     EdgeScroller
	Gestures GestureHandler
	Thumb    ThumbDetector
	Filter   MotionFilter
	// TrackpointButton はトラックポイントのボタン(BTN_0..2)を BTN_LEFT/RIGHT/MIDDLE として受け取る
	TrackpointButton func(code uint16, pressed bool, now time.Time)
}

type nopTap struct{}

func (nopTap) HandleState(time.Time) bool { return false }
func (nopTap) PostProcess()               {}
func (nopTap) Suspend(time.Time)          {}
func (nopTap) Resume(time.Time)           {}
func (nopTap) ReleaseAll(time.Time)       {}

type nopButtons struct{}

func (nopButtons) ProcessButton(uint16, bool, time.Time) {}
func (nopButtons) HandleState(time.Time)                 {}
func (nopButtons) PostEvents(time.Time) bool             { return false }
func (nopButtons) TouchActive(*Touch) bool               { return true }
func (nopButtons) ReleaseAll(time.Time)                  {}

type nopGestures struct{}

func (nopGestures) HandleState(time.Time)          {}
func (nopGestures) PostEvents(time.Time, bool)     {}
func (nopGestures) Cancel(time.Time)               {}
func (nopGestures) CancelMotionGestures(time.Time) {}

type nopThumb struct{}

func (nopThumb) Enabled() bool                 { return false }
func (nopThumb) UpdateTouch(*Touch, time.Time) {}
func (nopThumb) UpdateMultifinger()            {}
func (nopThumb) Reset()                        {}
func (nopThumb) Ignored(*Touch) bool           { return false }
func (nopThumb) IgnoredForGesture(*Touch) bool { return false }

type nopFilter struct{}

func (nopFilter) Restart(time.Time) {}

// edgeZones はスクロールを行わず、エッジ判定だけを提供する既定の EdgeScroller。
// 右端・下端の7mmをエッジとする
type edgeZones struct {
	right  int32
	bottom int32
}

const edgeScrollWidthMM = 7.0

func newEdgeZones(d *Dispatch) *edgeZones {
	width, height := d.deviceSize()
	edges := d.mmToUnits(physCoords{x: width - edgeScrollWidthMM, y: height - edgeScrollWidthMM})
	return &edgeZones{right: edges.X, bottom: edges.Y}
}

func (e *edgeZones) HandleState(time.Time)     {}
func (e *edgeZones) PostEvents(time.Time) bool { return false }
func (e *edgeZones) StopEvents(time.Time)      {}
func (e *edgeZones) TouchActive(*Touch) bool   { return true }

func (e *edgeZones) TouchEdge(t *Touch) Edge {
	var edge Edge
	if t.Point.X > e.right {
		edge |= EdgeRight
	}
	if t.Point.Y > e.bottom {
		edge |= EdgeBottom
	}
	return edge
}

func (d *Dispatch) setConsumers(c Consumers) {
	if c.Tap == nil {
		c.Tap = nopTap{}
	}
	if c.Buttons == nil {
		c.Buttons = nopButtons{}
	}
	if c.Edge == nil {
		c.Edge = newEdgeZones(d)
	}
	if c.Gestures == nil {
		c.Gestures = nopGestures{}
	}
	if c.Thumb == nil {
		c.Thumb = nopThumb{}
	}
	if c.Filter == nil {
		c.Filter = nopFilter{}
	}
	d.consumers = c
}
