package touchpad

import "time"

// fakeCount は本数を返す。Overflow は ok=false
func (d *Dispatch) fakeCount() (n int, ok bool) {
	c, _ := d.fake.count()
	if c.Overflow {
		return 0, false
	}
	return c.N, true
}

// restoreSynapticsTouches は synaptics で TRIPLETAP への移行時に
// 一度終了した2本目のタッチを UPDATE に戻す。3本→2本の移行は扱わない
func (d *Dispatch) restoreSynapticsTouches() {
	nfake, ok := d.fakeCount()
	if !ok || nfake < 3 {
		return
	}
	if d.nfingersDown >= nfake ||
		(d.nfingersDown == d.numSlots && nfake == d.numSlots) {
		return
	}

	for i := 0; i < d.numSlots; i++ {
		t := &d.touches[i]
		if t.State != TouchMaybeEnd {
			continue
		}
		d.recoverEndedTouch(t)
	}
}

// processFakeTouches は BTN_TOOL_* の本数に合わせて疑似タッチを開始・終了する
func (d *Dispatch) processFakeTouches(now time.Time) {
	c, valid := d.fake.count()
	if !valid {
		d.kernelBug(-1, "Invalid fake finger state %#x", d.fake.raw())
	}
	if c.Overflow {
		return
	}
	nfake := c.N

	if d.model&ModelSynapticsSerial != 0 {
		d.restoreSynapticsTouches()
	}

	// ALPS は実際より多いスロット数を報告するので、観測したアクティブ数まで減らす
	if d.model&ModelALPSSerial != 0 &&
		nfake > 1 && d.hasMT &&
		d.nactiveSlots > 0 &&
		nfake > d.nactiveSlots &&
		d.nactiveSlots < d.numSlots {
		d.kernelBug(-1, "Wrong slot count (%d), reducing to %d", d.numSlots, d.nactiveSlots)
		d.numSlots = d.nactiveSlots
	}

	start := 0
	if d.hasMT {
		start = d.numSlots
	}
	for i := start; i < len(d.touches); i++ {
		t := &d.touches[i]
		if i < nfake {
			d.newTouch(t, now)
		} else {
			d.endSequence(t, now)
		}
	}
}

// unhoverTouches はタッチの接地・離脱を判定する。
// 圧力、接触サイズ、BTN_TOOL_* のいずれか1つの方式を使う
func (d *Dispatch) unhoverTouches(now time.Time) {
	switch {
	case d.pressure.use:
		d.unhoverPressure(now)
	case d.touchSize.use:
		d.unhoverSize(now)
	default:
		d.unhoverFakeTouches(now)
	}
}

func (d *Dispatch) unhoverPressure(now time.Time) {
	nfake, ok := d.fakeCount()
	if !ok {
		nfake = 0
	}
	realFingersDown := 0

	for i := 0; i < d.numSlots; i++ {
		t := &d.touches[i]
		if t.State == TouchNone {
			continue
		}

		if t.Dirty {
			if t.State == TouchHovering {
				if t.Pressure >= d.pressure.high {
					d.debugf(t.Index, "pressure: begin touch %d", t.Index)
					// 接地時のジャンプを避ける
					t.history.reset()
					d.beginTouch(t, now)
				}
			} else if nfake <= d.numSlots || d.numSlots == 1 {
				// 疑似指がスロットより多いときは圧力で離脱させない
				if t.Pressure < d.pressure.low {
					d.debugf(t.Index, "pressure: end touch %d", t.Index)
					d.maybeEndTouch(t, now)
				}
			}
		}

		if t.State == TouchBegin || t.State == TouchUpdate {
			realFingersDown++
		}
	}

	if nfake <= d.numSlots || d.nfingersDown == 0 {
		return
	}

	// 疑似指がスロットより多いときは、すべての指に十分な圧力があるとみなす
	if realFingersDown > 0 {
		for i := range d.touches {
			t := &d.touches[i]
			if t.State != TouchHovering {
				continue
			}
			t.history.reset()
			d.beginTouch(t, now)
			if d.nfingersDown >= nfake {
				break
			}
		}
	}

	if d.nfingersDown > nfake || realFingersDown == 0 {
		for i := len(d.touches) - 1; i >= 0; i-- {
			t := &d.touches[i]
			if t.State == TouchHovering || t.State == TouchNone || t.State == TouchMaybeEnd {
				continue
			}
			d.maybeEndTouch(t, now)
			if realFingersDown > 0 && d.nfingersDown == nfake {
				break
			}
		}
	}
}

// unhoverSize は接触サイズで判定する。5スロット以上のデバイスのみなので疑似指は考えない
func (d *Dispatch) unhoverSize(now time.Time) {
	low, high := d.touchSize.low, d.touchSize.high

	for i := 0; i < d.numSlots; i++ {
		t := &d.touches[i]
		if t.State == TouchNone || !t.Dirty {
			continue
		}

		if t.State == TouchHovering {
			if (t.Major > high && t.Minor > low) || (t.Major > low && t.Minor > high) {
				d.debugf(t.Index, "touch-size: begin touch %d", t.Index)
				t.history.reset()
				d.beginTouch(t, now)
			}
		} else if t.Major < low || t.Minor < low {
			d.debugf(t.Index, "touch-size: end touch %d", t.Index)
			d.maybeEndTouch(t, now)
		}
	}
}

func (d *Dispatch) unhoverFakeTouches(now time.Time) {
	if !d.fake.any() && d.nfingersDown == 0 {
		return
	}
	nfake, ok := d.fakeCount()
	if !ok {
		return
	}
	touching := d.fake.touching

	if d.nfingersDown == nfake &&
		((d.nfingersDown == 0 && !touching) || (d.nfingersDown > 0 && touching)) {
		return
	}

	// BTN_TOUCH があって指が足りなければ HOVERING のタッチを BEGIN にする
	if touching && d.nfingersDown < nfake {
		for i := range d.touches {
			t := &d.touches[i]
			if t.State != TouchHovering {
				continue
			}
			d.beginTouch(t, now)
			if d.nfingersDown >= nfake {
				break
			}
		}
	}

	// BTN_TOUCH がない、または指が多すぎるときは後ろから終了させる
	if d.nfingersDown > nfake || !touching {
		for i := len(d.touches) - 1; i >= 0; i-- {
			t := &d.touches[i]
			if t.State == TouchHovering || t.State == TouchNone {
				continue
			}
			d.maybeEndTouch(t, now)
			if touching && d.nfingersDown == nfake {
				break
			}
		}
	}
}

// positionFakeTouches は最も上にある実タッチの座標を疑似タッチにコピーする
func (d *Dispatch) positionFakeTouches() {
	// Overflow はスロット数より多いとみなす
	nfake, ok := d.fakeCount()
	if (ok && nfake <= d.numSlots) || d.nfingersDown == 0 {
		return
	}

	var topmost *Touch
	for i := 0; i < d.numSlots; i++ {
		t := &d.touches[i]
		if t.State == TouchEnd || t.State == TouchNone {
			continue
		}
		if topmost == nil || t.Point.Y < topmost.Point.Y {
			topmost = t
		}
	}
	if topmost == nil {
		d.internalBug(-1, "Unable to find topmost touch")
		return
	}

	start := 1
	if d.hasMT {
		start = d.numSlots
	}
	for i := start; i < len(d.touches); i++ {
		t := &d.touches[i]
		if t.State == TouchNone {
			continue
		}
		t.Point = topmost.Point
		t.Pressure = topmost.Pressure
		if !t.Dirty {
			t.Dirty = topmost.Dirty
		}
	}
}
