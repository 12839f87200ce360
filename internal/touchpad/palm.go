package touchpad

import "time"

const palmEdgeTimeout = 200 * time.Millisecond

// PalmRule は手のひら判定の1段階。check が true を返すと以降の段階は評価しない
type PalmRule struct {
	Name  string
	check func(d *Dispatch, t *Touch, now time.Time) bool
}

// palmRules は評価順。圧力は他のどの判定でも解除できないので最初と最後の両方で見る
var palmRules = []PalmRule{
	{"pressure", (*Dispatch).palmPressureTriggered},
	{"arbitration", (*Dispatch).palmArbitrationTriggered},
	{"typing", (*Dispatch).palmDWTTriggered},
	{"trackpoint", (*Dispatch).palmTrackpointTriggered},
	{"tool", (*Dispatch).palmToolTriggered},
	{"touch-size", (*Dispatch).palmTouchSizeTriggered},
	{"edge", (*Dispatch).palmEdgeTriggered},
	{"pressure", (*Dispatch).palmPressureTriggered},
}

// PalmRuleOrder は手のひら判定の評価順を返す
func PalmRuleOrder() []string {
	names := make([]string, len(palmRules))
	for i, r := range palmRules {
		names[i] = r.Name
	}
	return names
}

func (d *Dispatch) palmDetect(t *Touch, now time.Time) {
	old := t.palm.state

	for _, r := range palmRules {
		if r.check(d, t, now) {
			break
		}
	}

	if old == t.palm.state || t.palm.state == PalmNone {
		return
	}
	d.debugf(t.Index, "palm: touch %d (%s), palm detected (%s)", t.Index, t.State, t.palm.state)
}

func (d *Dispatch) palmInSideEdge(p Point) bool {
	return p.X < d.palm.leftEdge || p.X > d.palm.rightEdge
}

func (d *Dispatch) palmInTopEdge(p Point) bool {
	return p.Y < d.palm.upperEdge
}

func (d *Dispatch) palmInEdge(p Point) bool {
	return d.palmInSideEdge(p) || d.palmInTopEdge(p)
}

func (d *Dispatch) palmPressureTriggered(t *Touch, now time.Time) bool {
	if !d.palm.usePressure {
		return false
	}
	if t.palm.state != PalmNone && t.palm.state != PalmPressure {
		return false
	}
	if t.Pressure > d.palm.pressureThreshold {
		t.palm.state = PalmPressure
	}
	return t.palm.state == PalmPressure
}

func (d *Dispatch) palmArbitrationTriggered(t *Touch, now time.Time) bool {
	if d.arbitration == ArbitrationNotActive {
		return false
	}
	t.palm.state = PalmArbitration
	return true
}

func (d *Dispatch) palmDWTTriggered(t *Touch, now time.Time) bool {
	if d.dwt.enabled && d.dwt.keyboardActive && t.State == TouchBegin {
		t.palm.state = PalmTyping
		t.palm.first = t.Point
		return true
	}

	// 最初のキー押下より前、または最後のキー押下より後に始まったタッチはタイムアウトで解除する
	if !d.dwt.keyboardActive && t.State == TouchUpdate && t.palm.state == PalmTyping {
		if t.palm.time.IsZero() || t.palm.time.After(d.dwt.keyboardLastPress) {
			t.palm.state = PalmNone
			d.debugf(t.Index, "palm: touch %d released, timeout after typing", t.Index)
		}
	}
	return false
}

func (d *Dispatch) palmTrackpointTriggered(t *Touch, now time.Time) bool {
	if !d.palm.monitorTrackpoint {
		return false
	}

	if t.palm.state == PalmNone && t.State == TouchBegin && d.palm.trackpointActive {
		t.palm.state = PalmTrackpoint
		return true
	}

	if t.palm.state == PalmTrackpoint && t.State == TouchUpdate && !d.palm.trackpointActive {
		if t.palm.time.IsZero() || t.palm.time.After(d.palm.trackpointLastEventTime) {
			t.palm.state = PalmNone
			d.debugf(t.Index, "palm: touch %d released, timeout after trackpoint", t.Index)
		}
	}
	return false
}

func (d *Dispatch) palmToolTriggered(t *Touch, now time.Time) bool {
	if !d.palm.useMTTool {
		return false
	}
	if t.palm.state != PalmNone && t.palm.state != PalmToolPalm {
		return false
	}

	if t.palm.state == PalmNone && t.isToolPalm {
		t.palm.state = PalmToolPalm
	} else if t.palm.state == PalmToolPalm && !t.isToolPalm {
		t.palm.state = PalmNone
	}
	return t.palm.state == PalmToolPalm
}

// palmTouchSizeTriggered は大きすぎる接触を手のひらとし、指を離すまで維持する
func (d *Dispatch) palmTouchSizeTriggered(t *Touch, now time.Time) bool {
	if !d.palm.useSize {
		return false
	}
	if t.palm.state != PalmNone && t.palm.state != PalmTouchSize {
		return false
	}

	if t.Major > d.palm.sizeThreshold || t.Minor > d.palm.sizeThreshold {
		if t.palm.state != PalmTouchSize {
			d.debugf(t.Index, "palm: touch %d size exceeded", t.Index)
		}
		t.palm.state = PalmTouchSize
		return true
	}
	return false
}

// palmMultifinger は他に手のひらでないアクティブなタッチがあれば true を返す。
// 2本指スクロールが手のひら判定に食われないようにする
func (d *Dispatch) palmMultifinger(t *Touch) bool {
	if d.nfingersDown < 2 {
		return false
	}
	for i := range d.touches {
		other := &d.touches[i]
		if other == t {
			continue
		}
		if d.TouchActive(other) && other.palm.state == PalmNone {
			return true
		}
	}
	return false
}

// palmMoveOutOfEdge はエッジから200ms以内に、エッジから離れる向きに出たかを返す
func (d *Dispatch) palmMoveOutOfEdge(t *Touch, now time.Time) bool {
	if !now.Before(t.palm.time.Add(palmEdgeTimeout)) || d.palmInEdge(t.Point) {
		return false
	}

	var directions uint32
	switch {
	case d.palmInSideEdge(t.palm.first):
		directions = dirNE | dirE | dirSE | dirSW | dirW | dirNW
	case d.palmInTopEdge(t.palm.first):
		directions = dirS | dirSE | dirSW
	default:
		return false
	}

	mm := d.unitDeltaToMM(t.Point.X-t.palm.first.X, t.Point.Y-t.palm.first.Y)
	dirs := direction(mm.x, mm.y)
	return dirs&directions != 0 && dirs&^directions == 0
}

func (d *Dispatch) palmEdgeTriggered(t *Touch, now time.Time) bool {
	if t.palm.state == PalmEdge {
		if d.palmMultifinger(t) {
			t.palm.state = PalmNone
			d.debugf(t.Index, "palm: touch %d released, multiple fingers", t.Index)
		} else if d.palmMoveOutOfEdge(t, now) {
			t.palm.state = PalmNone
			d.debugf(t.Index, "palm: touch %d released, out of edge zone", t.Index)
		}
		return false
	}

	if d.palmMultifinger(t) {
		return false
	}

	// エッジ内で始まったタッチだけが対象。右端はボタン等に使うので除外する
	if t.State != TouchBegin || !d.palmInEdge(t.Point) {
		return false
	}
	if d.consumers.Edge.TouchEdge(t)&EdgeRight != 0 {
		return false
	}

	t.palm.state = PalmEdge
	t.palm.time = now
	t.palm.first = t.Point
	return true
}
