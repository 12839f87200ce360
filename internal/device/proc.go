package device

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/char5742/touchpad-frames/internal/event"
)

// ProcDevices はカーネルの入力デバイス一覧
const ProcDevices = "/proc/bus/input/devices"

// Kind はデバイスの役割
type Kind int

const (
	KindOther Kind = iota
	KindTouchpad
	KindKeyboard
	KindTrackpoint
)

func (k Kind) String() string {
	switch k {
	case KindTouchpad:
		return "touchpad"
	case KindKeyboard:
		return "keyboard"
	case KindTrackpoint:
		return "trackpoint"
	}
	return "other"
}

// バス種別 (linux/input.h BUS_*)
const (
	busUSB       = 0x03
	busBluetooth = 0x05
)

// INPUT_PROP_*
const (
	propPointer       = 0x00
	propDirect        = 0x01
	propPointingStick = 0x05
)

const evRep = 0x14

// Info は /proc/bus/input/devices の1エントリ
type Info struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Kind    Kind   `json:"-"`
	Bus     uint16 `json:"bus"`
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
	Phys    string `json:"phys"`

	props, ev, key, rel, abs bitmap
}

// External は USB・Bluetooth 接続のデバイスなら true
func (i Info) External() bool {
	return i.Bus == busUSB || i.Bus == busBluetooth
}

// ScanDevices は現在接続されている入力デバイスを分類して返す
func ScanDevices() ([]Info, error) {
	f, err := os.Open(ProcDevices)
	if err != nil {
		return nil, errors.Wrap(err, "デバイス一覧の取得に失敗しました")
	}
	defer f.Close()
	return ParseDevices(f)
}

// ParseDevices は /proc/bus/input/devices 形式のテキストを解析する
func ParseDevices(r io.Reader) ([]Info, error) {
	var (
		devices []Info
		cur     *Info
	)
	flush := func() {
		if cur != nil && cur.Path != "" {
			cur.Kind = classify(cur)
			devices = append(devices, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		if len(line) < 3 || line[1] != ':' {
			continue
		}
		if cur == nil {
			cur = &Info{}
		}
		body := strings.TrimSpace(line[2:])
		switch line[0] {
		case 'I':
			for _, kv := range strings.Fields(body) {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					continue
				}
				n, err := strconv.ParseUint(v, 16, 16)
				if err != nil {
					continue
				}
				switch k {
				case "Bus":
					cur.Bus = uint16(n)
				case "Vendor":
					cur.Vendor = uint16(n)
				case "Product":
					cur.Product = uint16(n)
				}
			}
		case 'N':
			cur.Name = strings.Trim(strings.TrimPrefix(body, "Name="), `"`)
		case 'P':
			cur.Phys = strings.TrimPrefix(body, "Phys=")
		case 'H':
			for _, h := range strings.Fields(strings.TrimPrefix(body, "Handlers=")) {
				if strings.HasPrefix(h, "event") {
					cur.Path = filepath.Join("/dev/input", h)
				}
			}
		case 'B':
			k, v, ok := strings.Cut(body, "=")
			if !ok {
				continue
			}
			b, err := parseBitmap(v)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: %s", cur.Name, k)
			}
			switch k {
			case "PROP":
				cur.props = b
			case "EV":
				cur.ev = b
			case "KEY":
				cur.key = b
			case "REL":
				cur.rel = b
			case "ABS":
				cur.abs = b
			}
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "デバイス一覧の読み込みに失敗しました")
	}
	return devices, nil
}

// parseBitmap は上位ワードから順に空白区切りで並んだ16進の long 列を解析する
func parseBitmap(s string) (bitmap, error) {
	words := strings.Fields(s)
	b := newBitmap(len(words) * 64)
	for i, w := range words {
		n, err := strconv.ParseUint(w, 16, 64)
		if err != nil {
			return nil, err
		}
		base := (len(words) - 1 - i) * 64
		for bit := 0; bit < 64; bit++ {
			if n&(1<<bit) != 0 {
				b.set(base + bit)
			}
		}
	}
	return b, nil
}

func classify(i *Info) Kind {
	switch {
	case i.props.has(propPointingStick) || strings.Contains(strings.ToLower(i.Name), "trackpoint"):
		if i.rel.has(event.RelX) {
			return KindTrackpoint
		}
	case i.abs.has(event.AbsX) &&
		i.key.has(event.BtnToolFinger) &&
		i.key.has(event.BtnTouch) &&
		!i.key.has(event.BtnToolPen) &&
		!i.props.has(propDirect):
		return KindTouchpad
	case i.ev.has(evRep) && i.key.has(event.KeyA) && i.key.has(event.KeyEsc):
		return KindKeyboard
	}
	return KindOther
}

// Find は一覧から役割に合うデバイスを探す。path が空でなければそれを優先する
func Find(devices []Info, kind Kind, path string) (Info, bool) {
	for _, d := range devices {
		if path != "" {
			if d.Path == path {
				return d, true
			}
			continue
		}
		if d.Kind == kind {
			return d, true
		}
	}
	return Info{}, false
}

// Pair はタッチパッドと組み合わせるキーボード・トラックポイントを選ぶ。
// 内蔵タッチパッドには内蔵デバイスを優先する
func Pair(devices []Info, touchpad Info, kind Kind) (Info, bool) {
	var fallback *Info
	for i := range devices {
		d := &devices[i]
		if d.Kind != kind || d.Path == touchpad.Path {
			continue
		}
		if d.External() == touchpad.External() {
			return *d, true
		}
		if fallback == nil {
			fallback = d
		}
	}
	if fallback != nil && touchpad.External() {
		return *fallback, true
	}
	return Info{}, false
}
