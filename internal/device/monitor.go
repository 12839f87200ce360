package device

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// EventType はデバイスの変更の種類
type EventType int

const (
	DeviceAdded EventType = iota
	DeviceRemoved
	DeviceChanged
)

func (t EventType) String() string {
	switch t {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	case DeviceChanged:
		return "changed"
	}
	return "unknown"
}

// Event はデバイスの変更イベント
type Event struct {
	Type   EventType
	Device Info
}

// Callback はデバイスイベント発生時に呼び出される
type Callback func(ev Event)

const (
	debounceTime   = 500 * time.Millisecond
	rescanInterval = 5 * time.Second
)

// Monitor は /dev/input を監視してタッチパッド・キーボード・トラックポイントの
// 接続と切断を通知する
type Monitor struct {
	watcher   *fsnotify.Watcher
	dirs      []string
	scan      func() ([]Info, error)
	callbacks []Callback
	devices   map[string]Info
	mutex     sync.RWMutex
	stopChan  chan struct{}
	done      sync.WaitGroup
	isRunning bool
}

// NewMonitor は新しい Monitor を作成する
func NewMonitor() (*Monitor, error) {
	return newMonitor([]string{"/dev/input"}, ScanDevices)
}

func newMonitor(dirs []string, scan func() ([]Info, error)) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "ファイル監視の作成に失敗しました")
	}
	return &Monitor{
		watcher:  watcher,
		dirs:     dirs,
		scan:     scan,
		devices:  make(map[string]Info),
		stopChan: make(chan struct{}),
	}, nil
}

// Start は監視を開始する。初期スキャンの結果は DeviceAdded として通知しない
func (m *Monitor) Start() error {
	m.mutex.Lock()
	if m.isRunning {
		m.mutex.Unlock()
		return nil
	}
	m.isRunning = true
	m.mutex.Unlock()

	for _, dir := range m.dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := m.watcher.Add(dir); err != nil {
			log.Printf("ディレクトリの監視に失敗しました: %s - %v", dir, err)
		}
	}

	devices, err := m.scan()
	if err != nil {
		log.Printf("初期デバイス一覧の取得に失敗しました: %v", err)
	}
	m.mutex.Lock()
	for _, d := range devices {
		if d.Kind != KindOther {
			m.devices[d.Path] = d
		}
	}
	m.mutex.Unlock()

	m.done.Add(1)
	go m.watchEvents()
	return nil
}

// Stop は監視を停止する
func (m *Monitor) Stop() {
	m.mutex.Lock()
	if !m.isRunning {
		m.mutex.Unlock()
		return
	}
	m.isRunning = false
	m.mutex.Unlock()

	close(m.stopChan)
	m.done.Wait()
	m.watcher.Close()
}

// RegisterCallback はデバイスイベントのコールバックを登録する
func (m *Monitor) RegisterCallback(cb Callback) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Devices は現在接続されているデバイスのコピーを返す
func (m *Monitor) Devices() []Info {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	devices := make([]Info, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	return devices
}

// Rescan はデバイス一覧を取り直し、差分を通知する
func (m *Monitor) Rescan() {
	devices, err := m.scan()
	if err != nil {
		log.Printf("デバイス再スキャンに失敗しました: %v", err)
		return
	}
	m.update(devices)
}

func (m *Monitor) update(devices []Info) {
	var events []Event

	m.mutex.Lock()
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		if d.Kind == KindOther {
			continue
		}
		seen[d.Path] = true
		old, ok := m.devices[d.Path]
		switch {
		case !ok:
			events = append(events, Event{Type: DeviceAdded, Device: d})
		case old.Name != d.Name || old.Kind != d.Kind:
			events = append(events, Event{Type: DeviceChanged, Device: d})
		default:
			continue
		}
		m.devices[d.Path] = d
	}
	for path, d := range m.devices {
		if !seen[path] {
			events = append(events, Event{Type: DeviceRemoved, Device: d})
			delete(m.devices, path)
		}
	}
	callbacks := append([]Callback(nil), m.callbacks...)
	m.mutex.Unlock()

	// コールバックはロックの外で、検出順に呼ぶ
	for _, ev := range events {
		log.Printf("デバイス%s: %s (%s, %s)", eventLabel(ev.Type), ev.Device.Name, ev.Device.Path, ev.Device.Kind)
		for _, cb := range callbacks {
			cb(ev)
		}
	}
}

func eventLabel(t EventType) string {
	switch t {
	case DeviceAdded:
		return "接続"
	case DeviceRemoved:
		return "切断"
	}
	return "変更"
}

// watchEvents は fsnotify のイベントをまとめて再スキャンする
func (m *Monitor) watchEvents() {
	defer m.done.Done()

	eventTimer := time.NewTimer(debounceTime)
	eventTimer.Stop()
	rescan := time.NewTicker(rescanInterval)
	defer rescan.Stop()
	pendingRescan := false

	for {
		select {
		case <-m.stopChan:
			eventTimer.Stop()
			return

		case <-eventTimer.C:
			if pendingRescan {
				pendingRescan = false
				m.Rescan()
			}

		case <-rescan.C:
			m.Rescan()

		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !strings.Contains(ev.Name, "event") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Chmod) != 0 && !pendingRescan {
				pendingRescan = true
				eventTimer.Reset(debounceTime)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ファイルシステム監視エラー: %v", err)
		}
	}
}
