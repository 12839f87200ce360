package touchpad

import "time"

// TouchActive はタッチがポインタ操作に使えるかを返す
func (d *Dispatch) TouchActive(t *Touch) bool {
	return (t.State == TouchBegin || t.State == TouchUpdate) &&
		t.palm.state == PalmNone &&
		!t.pinned.isPinned &&
		!d.consumers.Thumb.Ignored(t) &&
		d.consumers.Buttons.TouchActive(t) &&
		d.consumers.Edge.TouchActive(t)
}

// TouchActiveForGesture はジェスチャー用の緩い判定
func (d *Dispatch) TouchActiveForGesture(t *Touch) bool {
	return (t.State == TouchBegin || t.State == TouchUpdate) &&
		t.palm.state == PalmNone &&
		!t.pinned.isPinned &&
		!d.consumers.Thumb.IgnoredForGesture(t) &&
		d.consumers.Buttons.TouchActive(t) &&
		d.consumers.Edge.TouchActive(t)
}

// Delta は直前の履歴サンプルからの移動量
func (d *Dispatch) Delta(t *Touch) Point {
	if t.history.count <= 1 {
		return Point{}
	}
	cur, _ := t.history.offset(0)
	prev, _ := t.history.offset(1)
	return Point{X: cur.point.X - prev.point.X, Y: cur.point.Y - prev.point.Y}
}

// Touches はすべてのタッチ。返されたスライスは Dispatch が所有する
func (d *Dispatch) Touches() []Touch { return d.touches }

// Touch は index 番目のタッチ
func (d *Dispatch) Touch(index int) *Touch {
	if index < 0 || index >= len(d.touches) {
		return nil
	}
	return &d.touches[index]
}

// FingersDown は接地している指の本数
func (d *Dispatch) FingersDown() int { return d.nfingersDown }

// NumSlots は実スロット数
func (d *Dispatch) NumSlots() int { return d.numSlots }

// ActiveSlots はトラッキング中のスロット数
func (d *Dispatch) ActiveSlots() int { return d.nactiveSlots }

// HysteresisEnabled はヒステリシスが有効か
func (d *Dispatch) HysteresisEnabled() bool { return d.hysteresis.enabled }

// FakeFingerCount は BTN_TOOL_* から求めた本数。valid は BTN_TOOL_* の組み合わせが正しいか
func (d *Dispatch) FakeFingerCount() (c FakeCount, valid bool) {
	return d.fake.count()
}

// KeyboardActive はタイプ中と判定されているか
func (d *Dispatch) KeyboardActive() bool { return d.dwt.keyboardActive }

// TrackpointActive はトラックポイント操作中と判定されているか
func (d *Dispatch) TrackpointActive() bool { return d.palm.trackpointActive }

// Arbitration は現在の調停状態
func (d *Dispatch) Arbitration() ArbitrationState { return d.arbitration }

// TouchSnapshot は1タッチ分の読み取り専用のコピー
type TouchSnapshot struct {
	Index    int     `json:"index"`
	State    string  `json:"state"`
	X        int32   `json:"x"`
	Y        int32   `json:"y"`
	Pressure int32   `json:"pressure"`
	Major    int32   `json:"major"`
	Minor    int32   `json:"minor"`
	Palm     string  `json:"palm"`
	Pinned   bool    `json:"pinned"`
	Active   bool    `json:"active"`
	DeltaX   int32   `json:"dx"`
	DeltaY   int32   `json:"dy"`
	Speed    float64 `json:"speed"`
}

// Snapshot はフレーム終了時点の状態のコピー。他のゴルーチンに渡してよい
type Snapshot struct {
	Time        time.Time       `json:"time"`
	Device      string          `json:"device"`
	FingersDown int             `json:"fingers_down"`
	FakeFingers int             `json:"fake_fingers"`
	Overflow    bool            `json:"overflow"`
	Hysteresis  bool            `json:"hysteresis"`
	Suspended   bool            `json:"suspended"`
	Keyboard    bool            `json:"keyboard_active"`
	Trackpoint  bool            `json:"trackpoint_active"`
	Touches     []TouchSnapshot `json:"touches"`
}

// Snapshot は NONE 以外のタッチを含む状態のコピーを作る
func (d *Dispatch) Snapshot(now time.Time) Snapshot {
	c, _ := d.fake.count()
	s := Snapshot{
		Time:        now,
		Device:      d.name,
		FingersDown: d.nfingersDown,
		FakeFingers: c.N,
		Overflow:    c.Overflow,
		Hysteresis:  d.hysteresis.enabled,
		Suspended:   d.suspended,
		Keyboard:    d.dwt.keyboardActive,
		Trackpoint:  d.palm.trackpointActive,
		Touches:     make([]TouchSnapshot, 0, len(d.touches)),
	}
	for i := range d.touches {
		t := &d.touches[i]
		if t.State == TouchNone {
			continue
		}
		delta := d.Delta(t)
		s.Touches = append(s.Touches, TouchSnapshot{
			Index:    t.Index,
			State:    t.State.String(),
			X:        t.Point.X,
			Y:        t.Point.Y,
			Pressure: t.Pressure,
			Major:    t.Major,
			Minor:    t.Minor,
			Palm:     t.palm.state.String(),
			Pinned:   t.pinned.isPinned,
			Active:   d.TouchActive(t),
			DeltaX:   delta.X,
			DeltaY:   delta.Y,
			Speed:    t.speed.lastSpeed,
		})
	}
	return s
}
