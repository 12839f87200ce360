package touchpad

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
)

// DiagnosticKind は診断メッセージの分類
type DiagnosticKind int

const (
	// DiagDebug は通常の状態遷移の記録
	DiagDebug DiagnosticKind = iota
	// DiagInfo は初期化時の情報
	DiagInfo
	// DiagKernelBug はカーネル/ファームウェアのプロトコル違反
	DiagKernelBug
	// DiagInternalBug は内部の不変条件違反
	DiagInternalBug
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagDebug:
		return "debug"
	case DiagInfo:
		return "info"
	case DiagKernelBug:
		return "kernel bug"
	case DiagInternalBug:
		return "internal bug"
	}
	return fmt.Sprintf("DiagnosticKind(%d)", int(k))
}

// Diagnostic は回復処理を選んだ後に報告される1件の診断
type Diagnostic struct {
	Kind DiagnosticKind
	// Touch は対象タッチの番号。デバイス全体なら -1
	Touch   int
	Message string
}

// Reporter は診断の出力先
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc は関数を Reporter として使うためのアダプタ
type ReporterFunc func(d Diagnostic)

func (f ReporterFunc) Report(d Diagnostic) { f(d) }

// LogReporter は log パッケージに出力する Reporter
type LogReporter struct {
	Device string
	Debug  bool
}

func (r LogReporter) Report(d Diagnostic) {
	if d.Kind == DiagDebug && !r.Debug {
		return
	}
	if d.Touch >= 0 {
		log.Printf("%s: %s: touch %d: %s", r.Device, d.Kind, d.Touch, d.Message)
		return
	}
	log.Printf("%s: %s: %s", r.Device, d.Kind, d.Message)
}

// ratelimit は24時間あたり5回までに制限する
type ratelimit struct {
	limiter    *rate.Limiter
	suppressed bool
}

func newRatelimit() *ratelimit {
	return &ratelimit{limiter: rate.NewLimiter(rate.Every(24*time.Hour/5), 5)}
}

// allow は now 時点で出力してよいかを返す。
// 上限に達した最初の1回だけ抑制したことを示す threshold を返す
func (r *ratelimit) allow(now time.Time) (ok bool, threshold bool) {
	if r.limiter.AllowN(now, 1) {
		r.suppressed = false
		return true, false
	}
	if !r.suppressed {
		r.suppressed = true
		return false, true
	}
	return false, false
}

func (d *Dispatch) report(kind DiagnosticKind, touch int, format string, args ...interface{}) {
	if d.reporter == nil {
		return
	}
	d.reporter.Report(Diagnostic{Kind: kind, Touch: touch, Message: fmt.Sprintf(format, args...)})
}

func (d *Dispatch) debugf(touch int, format string, args ...interface{}) {
	d.report(DiagDebug, touch, format, args...)
}

func (d *Dispatch) kernelBug(touch int, format string, args ...interface{}) {
	d.report(DiagKernelBug, touch, format, args...)
}

func (d *Dispatch) internalBug(touch int, format string, args ...interface{}) {
	d.report(DiagInternalBug, touch, format, args...)
}

func (d *Dispatch) kernelBugRatelimit(rl *ratelimit, now time.Time, touch int, format string, args ...interface{}) {
	ok, threshold := rl.allow(now)
	if ok {
		d.kernelBug(touch, format, args...)
	} else if threshold {
		d.kernelBug(-1, "WARNING: log rate limit exceeded (5 msgs per 24h). Discarding future messages.")
	}
}
