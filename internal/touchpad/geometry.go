package touchpad

import "math"

// 方向のビット。北が0で時計回り
const (
	dirN  = 1 << 0
	dirNE = 1 << 1
	dirE  = 1 << 2
	dirSE = 1 << 3
	dirS  = 1 << 4
	dirSW = 1 << 5
	dirW  = 1 << 6
	dirNW = 1 << 7

	dirUndefined = 0xff
)

type physCoords struct {
	x float64
	y float64
}

func (p physCoords) length() float64 {
	return math.Hypot(p.x, p.y)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// unitDeltaToMM はデバイス単位の差分を mm に変換する
func (d *Dispatch) unitDeltaToMM(dx, dy int32) physCoords {
	return physCoords{
		x: float64(dx) / float64(d.absX.Resolution),
		y: float64(dy) / float64(d.absY.Resolution),
	}
}

// mmToUnits は mm 単位の絶対位置をデバイス単位に変換する
func (d *Dispatch) mmToUnits(mm physCoords) Point {
	return Point{
		X: int32(mm.x*float64(d.absX.Resolution)) + d.absX.Min,
		Y: int32(mm.y*float64(d.absY.Resolution)) + d.absY.Min,
	}
}

// deviceSize は物理サイズ (mm)
func (d *Dispatch) deviceSize() (width, height float64) {
	width = float64(d.absX.Max-d.absX.Min) / float64(d.absX.Resolution)
	height = float64(d.absY.Max-d.absY.Min) / float64(d.absY.Resolution)
	return width, height
}

// direction は mm 単位の移動量から近い1〜2方向のビットを返す。
// 小さな移動では3方向にまたがる
func direction(x, y float64) uint32 {
	if math.Abs(x) < 2.0 && math.Abs(y) < 2.0 {
		switch {
		case x > 0.0 && y > 0.0:
			return dirS | dirSE | dirE
		case x > 0.0 && y < 0.0:
			return dirN | dirNE | dirE
		case x < 0.0 && y > 0.0:
			return dirS | dirSW | dirW
		case x < 0.0 && y < 0.0:
			return dirN | dirNW | dirW
		case x > 0.0:
			return dirNE | dirE | dirSE
		case x < 0.0:
			return dirNW | dirW | dirSW
		case y > 0.0:
			return dirSE | dirS | dirSW
		case y < 0.0:
			return dirNE | dirN | dirNW
		}
		return dirUndefined
	}

	// r を [0, 8) に正規化。0 が北
	r := math.Atan2(y, x)
	r = math.Mod(r+2.5*math.Pi, 2*math.Pi)
	r *= 4 / math.Pi

	d1 := int(r+0.9) % 8
	d2 := int(r+0.1) % 8
	return 1<<uint(d1) | 1<<uint(d2)
}

// hysteresis は center を中心とする楕円の不感帯を適用する
func hysteresis(in, center, margin Point) Point {
	dx := float64(in.X - center.X)
	dy := float64(in.Y - center.Y)
	a := float64(margin.X)
	b := float64(margin.Y)

	if a == 0 || b == 0 {
		return in
	}

	normalized := math.Sqrt(dx*dx/(a*a) + dy*dy/(b*b))
	if normalized < 1.0 {
		return center
	}

	fingerDistance := math.Sqrt(dx*dx + dy*dy)
	marginDistance := fingerDistance / normalized

	var lagX, lagY float64
	if dx != 0 {
		gradient := dy / dx
		lagX = marginDistance / math.Sqrt(gradient*gradient+1)
		lagY = math.Sqrt((marginDistance + lagX) * (marginDistance - lagX))
	} else {
		lagY = marginDistance
	}

	out := Point{}
	if dx >= 0 {
		out.X = int32(float64(in.X) - lagX)
	} else {
		out.X = int32(float64(in.X) + lagX)
	}
	if dy >= 0 {
		out.Y = int32(float64(in.Y) - lagY)
	} else {
		out.Y = int32(float64(in.Y) + lagY)
	}
	return out
}
