package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/char5742/touchpad-frames/internal/config"
	"github.com/char5742/touchpad-frames/internal/device"
	"github.com/char5742/touchpad-frames/internal/event"
	"github.com/char5742/touchpad-frames/internal/filter"
	"github.com/char5742/touchpad-frames/internal/touchpad"
)

// timerInterval はイベントが来ないときにタイマーを進める間隔
const timerInterval = 10 * time.Millisecond

var errNotRunning = errors.New("サービスは実行されていません")

// Input はサービスが読む入力デバイス
type Input interface {
	Name() string
	Events(ctx context.Context) <-chan event.Event
	Close() error
}

// TouchpadInput はタッチパッドとして初期化できる入力デバイス
type TouchpadInput interface {
	Input
	Info() (touchpad.DeviceInfo, error)
	Slots(abs map[uint16]touchpad.Axis) ([]touchpad.SlotState, error)
	Grab() error
}

// Opener はデバイスノードを開く
type Opener func(path string) (TouchpadInput, error)

func openDevice(path string) (TouchpadInput, error) {
	d, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// View は1フレーム分の公開用の状態
type View struct {
	touchpad.Snapshot
	Frames   uint64 `json:"frames"`
	PointerX int64  `json:"pointer_x"`
	PointerY int64  `json:"pointer_y"`
	Restarts int    `json:"filter_restarts"`
}

// PalmSettings は実行時に切り替えられる手のひら判定
type PalmSettings struct {
	DWT        *bool `json:"dwt,omitempty"`
	DWTP       *bool `json:"dwtp,omitempty"`
	LeftHanded *bool `json:"left_handed,omitempty"`
}

// apply は指定された項目だけを c に書き込む
func (p PalmSettings) apply(c *config.PalmConfig) {
	if p.DWT != nil {
		c.DWT = *p.DWT
	}
	if p.DWTP != nil {
		c.DWTP = *p.DWTP
	}
	if p.LeftHanded != nil {
		c.LeftHanded = *p.LeftHanded
	}
}

type command struct {
	fn   func(d *touchpad.Dispatch, now time.Time) error
	err  error
	done chan struct{}
}

// TouchpadService はタッチパッド1台分のフレーム処理ループを管理する
type TouchpadService struct {
	cfg   *config.Config
	debug bool
	open  Opener
	scan  func() ([]device.Info, error)

	statusMutex sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	touchpad    device.Info
	input       TouchpadInput
	abs         map[uint16]touchpad.Axis

	commands chan *command
	removed  chan string

	view atomic.Pointer[View]
}

// ServiceOption は TouchpadService の追加設定
type ServiceOption func(s *TouchpadService)

// WithOpener はデバイスを開く関数を差し替える
func WithOpener(open Opener) ServiceOption {
	return func(s *TouchpadService) { s.open = open }
}

// WithScanner はデバイス一覧の取得方法を差し替える
func WithScanner(scan func() ([]device.Info, error)) ServiceOption {
	return func(s *TouchpadService) { s.scan = scan }
}

// WithDebug はデバッグ用の診断も出力する
func WithDebug(debug bool) ServiceOption {
	return func(s *TouchpadService) { s.debug = debug }
}

// NewTouchpadService は新しいサービスを作成する
// cfg はコピーして保持するので、呼び出し側はそのまま書き換えてよい
func NewTouchpadService(cfg *config.Config, opts ...ServiceOption) *TouchpadService {
	own := *cfg
	s := &TouchpadService{
		cfg:      &own,
		open:     openDevice,
		scan:     device.ScanDevices,
		commands: make(chan *command),
		removed:  make(chan string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start はタッチパッドを開いて処理ループを開始する
func (s *TouchpadService) Start() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return fmt.Errorf("サービスは既に実行中です")
	}

	devices, err := s.scan()
	if err != nil {
		return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	tpInfo, ok := device.Find(devices, device.KindTouchpad, s.cfg.Device.Touchpad)
	if !ok {
		return fmt.Errorf("タッチパッドが見つかりませんでした")
	}

	tp, err := s.open(tpInfo.Path)
	if err != nil {
		return fmt.Errorf("タッチパッドのオープンに失敗しました[path=%s]: %w", tpInfo.Path, err)
	}
	info, err := tp.Info()
	if err != nil {
		tp.Close()
		return fmt.Errorf("タッチパッドの情報の取得に失敗しました: %w", err)
	}

	quirks := s.cfg.ToQuirks()
	if tpInfo.External() {
		quirks.External = true
	}
	smoothing := filter.NewSmoothing(s.cfg.Motion.FilterSmoothingFactor, s.cfg.Motion.FilterWarmUpCount)
	d, err := touchpad.New(info, quirks,
		touchpad.WithReporter(touchpad.LogReporter{Device: info.Name, Debug: s.debug}),
		touchpad.WithConsumers(touchpad.Consumers{Filter: smoothing}),
	)
	if err != nil {
		tp.Close()
		return fmt.Errorf("タッチパッドの初期化に失敗しました: %w", err)
	}
	d.SetDWT(s.cfg.Palm.DWT)
	d.SetDWTP(s.cfg.Palm.DWTP)
	d.SetLeftHanded(s.cfg.Palm.LeftHanded)

	if s.cfg.Device.Grab {
		if err := tp.Grab(); err != nil {
			log.Printf("タッチパッドの占有に失敗しました: %v", err)
		}
	}

	kbd := s.openPaired(devices, tpInfo, device.KindKeyboard, s.cfg.Device.Keyboard)
	tpt := s.openPaired(devices, tpInfo, device.KindTrackpoint, s.cfg.Device.Trackpoint)

	log.Printf("使用するタッチパッド: %s (%s)", info.Name, tpInfo.Path)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.touchpad = tpInfo
	s.input = tp
	s.abs = info.Abs
	s.view.Store(&View{Snapshot: d.Snapshot(time.Now())})

	l := &loop{
		s:         s,
		d:         d,
		smoothing: smoothing,
		tp:        tp,
		kbd:       kbd,
		tpt:       tpt,
		path:      tpInfo.Path,
	}
	go l.run(ctx, s.done)
	return nil
}

func (s *TouchpadService) openPaired(devices []device.Info, tp device.Info, kind device.Kind, path string) Input {
	var (
		info device.Info
		ok   bool
	)
	if path != "" {
		info, ok = device.Find(devices, kind, path)
		if !ok {
			info, ok = device.Info{Path: path, Kind: kind}, true
		}
	} else {
		info, ok = device.Pair(devices, tp, kind)
	}
	if !ok {
		return nil
	}
	in, err := s.open(info.Path)
	if err != nil {
		log.Printf("%sのオープンに失敗しました[path=%s]: %v", kind, info.Path, err)
		return nil
	}
	log.Printf("使用する%s: %s (%s)", kind, in.Name(), info.Path)
	return in
}

// Stop は処理ループを停止し、終了を待つ
func (s *TouchpadService) Stop() error {
	s.statusMutex.Lock()
	if !s.running {
		s.statusMutex.Unlock()
		return errNotRunning
	}
	s.cancel()
	done := s.done
	s.statusMutex.Unlock()

	<-done
	return nil
}

// IsRunning はサービスが実行中かどうかを返す
func (s *TouchpadService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// Done は処理ループが終わると閉じられるチャネルを返す。未開始なら nil
func (s *TouchpadService) Done() <-chan struct{} {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.done
}

// View は最後に公開された状態を返す
func (s *TouchpadService) View() View {
	if v := s.view.Load(); v != nil {
		return *v
	}
	return View{}
}

// HandleDeviceEvent はデバイスモニターのコールバック。
// 使用中のタッチパッドが外されたらサスペンドしてループを止める
func (s *TouchpadService) HandleDeviceEvent(ev device.Event) {
	if ev.Type != device.DeviceRemoved {
		return
	}
	s.statusMutex.RLock()
	running, done, path := s.running, s.done, s.touchpad.Path
	s.statusMutex.RUnlock()
	if !running || ev.Device.Path != path {
		return
	}
	select {
	case s.removed <- path:
	case <-done:
	}
}

// do は処理ループの中で fn を実行する
func (s *TouchpadService) do(fn func(d *touchpad.Dispatch, now time.Time) error) error {
	s.statusMutex.RLock()
	running, done := s.running, s.done
	s.statusMutex.RUnlock()
	if !running {
		return errNotRunning
	}

	cmd := &command{fn: fn, done: make(chan struct{})}
	select {
	case s.commands <- cmd:
	case <-done:
		return errNotRunning
	}
	<-cmd.done
	return cmd.err
}

// SetPalm は手のひら判定の設定を切り替える
// 停止中は次の Start で使う設定だけを更新する
func (s *TouchpadService) SetPalm(p PalmSettings) error {
	err := s.do(func(d *touchpad.Dispatch, now time.Time) error {
		if p.DWT != nil && !d.SetDWT(*p.DWT) {
			return fmt.Errorf("このタッチパッドでは入力中の無効化を設定できません")
		}
		if p.DWTP != nil {
			d.SetDWTP(*p.DWTP)
		}
		if p.LeftHanded != nil {
			d.SetLeftHanded(*p.LeftHanded)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNotRunning) {
		return err
	}

	s.statusMutex.Lock()
	p.apply(&s.cfg.Palm)
	s.statusMutex.Unlock()
	return nil
}

// Palm はサービスが次の Start で使う手のひら判定の設定を返す
func (s *TouchpadService) Palm() config.PalmConfig {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.cfg.Palm
}

// Suspend はすべてのタッチを終了させ、以降のタッチを無視する
func (s *TouchpadService) Suspend() error {
	return s.do(func(d *touchpad.Dispatch, now time.Time) error {
		d.Suspend(now)
		return nil
	})
}

// Resume はデバイスのスロット状態を読み直して処理を再開する
func (s *TouchpadService) Resume() error {
	s.statusMutex.RLock()
	tp, abs := s.input, s.abs
	s.statusMutex.RUnlock()

	return s.do(func(d *touchpad.Dispatch, now time.Time) error {
		slots, err := tp.Slots(abs)
		if err != nil {
			return fmt.Errorf("スロット状態の取得に失敗しました: %w", err)
		}
		d.Resume(now, slots)
		return nil
	})
}

// clock はイベント時刻を基準に経過時間を足した現在時刻
type clock struct {
	event time.Time
	wall  time.Time
}

func (c *clock) observe(ts time.Time) {
	c.event = ts
	c.wall = time.Now()
}

func (c *clock) now() time.Time {
	if c.event.IsZero() {
		return time.Now()
	}
	return c.event.Add(time.Since(c.wall))
}

// loop は処理ループの状態。Dispatch にはこのゴルーチンからしか触らない
type loop struct {
	s         *TouchpadService
	d         *touchpad.Dispatch
	smoothing *filter.Smoothing
	tp        TouchpadInput
	kbd, tpt  Input
	path      string

	clk      clock
	frames   uint64
	pointerX int64
	pointerY int64
}

func (l *loop) run(ctx context.Context, done chan struct{}) {
	defer func() {
		l.tp.Close()
		if l.kbd != nil {
			l.kbd.Close()
		}
		if l.tpt != nil {
			l.tpt.Close()
		}
		l.s.statusMutex.Lock()
		l.s.running = false
		l.s.cancel()
		l.s.statusMutex.Unlock()
		close(done)
		log.Println("タッチパッドサービスを停止しました")
	}()

	tpEvents := l.tp.Events(ctx)
	var kbdEvents, tptEvents <-chan event.Event
	if l.kbd != nil {
		kbdEvents = l.kbd.Events(ctx)
	}
	if l.tpt != nil {
		tptEvents = l.tpt.Events(ctx)
	}

	ticker := time.NewTicker(timerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-tpEvents:
			if !ok {
				log.Printf("タッチパッドが切断されました: %s", l.path)
				l.suspend()
				return
			}
			l.clk.observe(ev.Timestamp())
			l.d.Process(ev)
			if ev.IsFrameEnd() {
				l.frames++
				l.pointer(ev.Timestamp())
				l.publish(ev.Timestamp())
			}

		case ev, ok := <-kbdEvents:
			if !ok {
				kbdEvents = nil
				continue
			}
			// 0: 解放, 1: 押下, 2: オートリピート
			if ev.Type == event.Key && ev.Value != 2 {
				l.clk.observe(ev.Timestamp())
				l.d.KeyboardEvent(ev.Code, ev.Value == 1, ev.Timestamp())
			}

		case ev, ok := <-tptEvents:
			if !ok {
				tptEvents = nil
				continue
			}
			switch ev.Type {
			case event.Rel:
				l.clk.observe(ev.Timestamp())
				l.d.TrackpointEvent(false, ev.Timestamp())
			case event.Key:
				l.clk.observe(ev.Timestamp())
				l.d.TrackpointEvent(true, ev.Timestamp())
			}

		case <-ticker.C:
			now := l.clk.now()
			l.d.AdvanceTimers(now)
			l.publish(now)

		case path := <-l.s.removed:
			if path == l.path {
				log.Printf("タッチパッドが取り外されました: %s", path)
				l.suspend()
				return
			}

		case cmd := <-l.s.commands:
			now := l.clk.now()
			cmd.err = cmd.fn(l.d, now)
			l.publish(now)
			close(cmd.done)
		}
	}
}

func (l *loop) suspend() {
	now := l.clk.now()
	l.d.Suspend(now)
	l.publish(now)
}

// pointer は最初のアクティブなタッチの移動量をフィルタに通して積算する
func (l *loop) pointer(now time.Time) {
	touches := l.d.Touches()
	for i := range touches {
		t := &touches[i]
		if !l.d.TouchActive(t) {
			continue
		}
		delta := l.d.Delta(t)
		if delta.X == 0 && delta.Y == 0 {
			return
		}
		dx, dy := l.smoothing.Filter(delta.X, delta.Y, now)
		l.pointerX += int64(dx)
		l.pointerY += int64(dy)
		return
	}
}

func (l *loop) publish(now time.Time) {
	l.s.view.Store(&View{
		Snapshot: l.d.Snapshot(now),
		Frames:   l.frames,
		PointerX: l.pointerX,
		PointerY: l.pointerY,
		Restarts: l.smoothing.Restarts(),
	})
}
