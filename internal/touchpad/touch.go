package touchpad

import "time"

// speedExceededMax は速度超過カウンタの上限
const speedExceededMax = 15

// Touch は1スロット（実スロットまたは疑似スロット）の状態。
// デバイス初期化時に一度だけ確保され、State だけが遷移する
type Touch struct {
	Index    int
	State    TouchState
	Point    Point
	Pressure int32
	Major    int32
	Minor    int32

	// Dirty はこのフレームで変化があったか
	Dirty bool
	// HasEnded はプロトコル上の終了を受け取ったか
	HasEnded bool
	WasDown  bool

	isToolPalm  bool
	initialTime time.Time

	palm struct {
		state PalmState
		first Point
		time  time.Time
	}

	pinned struct {
		isPinned bool
		center   Point
	}

	history motionHistory

	hysteresis struct {
		center         Point
		xMotionHistory uint8
	}

	speed struct {
		lastSpeed     float64
		exceededCount int
	}

	jumps struct {
		lastDeltaMM float64

		// 捨てた位置。次のフレームでここから動きを測り直す
		pending bool
		target  Point
	}

	quirks struct {
		resetMotionHistory bool
	}
}

func (t *Touch) init(index int) {
	*t = Touch{}
	t.Index = index
	t.HasEnded = true
}

// Palm は除外理由を返す
func (t *Touch) Palm() PalmState { return t.palm.state }

// IsPalm は手のひらとして除外されているか
func (t *Touch) IsPalm() bool { return t.palm.state != PalmNone }

// Pinned はクリックパッドの押下でピン留めされているか
func (t *Touch) Pinned() bool { return t.pinned.isPinned }

// InitialTime はタッチが BEGIN になった時刻
func (t *Touch) InitialTime() time.Time { return t.initialTime }

// Speed は直近の速度 (mm/s)
func (t *Touch) Speed() float64 { return t.speed.lastSpeed }

// SpeedExceededCount は速度超過カウンタ (0..15)
func (t *Touch) SpeedExceededCount() int { return t.speed.exceededCount }

// HistoryCount はモーション履歴のサンプル数
func (t *Touch) HistoryCount() int { return t.history.count }

// ToolPalm はハードウェアが MT_TOOL_PALM を報告しているか
func (t *Touch) ToolPalm() bool { return t.isToolPalm }
