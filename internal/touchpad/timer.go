package touchpad

import "time"

// TimerID はディスパッチが使うタイマーの識別子
type TimerID int

const (
	TimerKeyboard TimerID = iota
	TimerTrackpoint
	TimerArbitration
	numTimers
)

func (id TimerID) String() string {
	switch id {
	case TimerKeyboard:
		return "keyboard"
	case TimerTrackpoint:
		return "trackpoint"
	case TimerArbitration:
		return "arbitration"
	}
	return "unknown"
}

// Scheduler は協調型のタイマー。スレッドもプリエンプションも使わず、
// PollDue が呼ばれた時点で期限を過ぎたタイマーだけを発火させる
type Scheduler interface {
	Arm(id TimerID, deadline time.Time)
	Cancel(id TimerID)
	// PollDue は now までに期限が来たタイマーを解除してから fire を呼ぶ
	PollDue(now time.Time, fire func(id TimerID, now time.Time))
}

// TimerSet は Scheduler の既定実装
type TimerSet struct {
	deadline [numTimers]time.Time
	armed    [numTimers]bool
}

func (ts *TimerSet) Arm(id TimerID, deadline time.Time) {
	ts.deadline[id] = deadline
	ts.armed[id] = true
}

func (ts *TimerSet) Cancel(id TimerID) {
	ts.armed[id] = false
}

// Armed はタイマーが設定されているかを返す
func (ts *TimerSet) Armed(id TimerID) bool {
	return ts.armed[id]
}

func (ts *TimerSet) PollDue(now time.Time, fire func(id TimerID, now time.Time)) {
	for id := TimerID(0); id < numTimers; id++ {
		if !ts.armed[id] || now.Before(ts.deadline[id]) {
			continue
		}
		ts.armed[id] = false
		fire(id, now)
	}
}
