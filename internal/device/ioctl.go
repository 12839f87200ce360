package device

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/char5742/touchpad-frames/internal/event"
)

// linux/input.h の ioctl 番号
const (
	iocWrite = 1
	iocRead  = 2

	evdevType = 'E'

	evCnt    = 0x20
	absCnt   = event.AbsMax + 1
	propCnt  = 0x20
	maxSlots = 64
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | evdevType<<8 | nr
}

func eviocgbit(ev, size uintptr) uintptr {
	return ioc(iocRead, 0x20+ev, size)
}

func eviocgabs(abs uintptr) uintptr {
	return ioc(iocRead, 0x40+abs, unsafe.Sizeof(absInfo{}))
}

func eviocgprop(size uintptr) uintptr {
	return ioc(iocRead, 0x09, size)
}

func eviocgkey(size uintptr) uintptr {
	return ioc(iocRead, 0x18, size)
}

func eviocgmtslots(size uintptr) uintptr {
	return ioc(iocRead, 0x0a, size)
}

var eviocgrab = ioc(iocWrite, 0x90, unsafe.Sizeof(int32(0)))

// absInfo は struct input_absinfo
type absInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

func ioctl(f *os.File, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// bitmap はカーネルが返すビット列
type bitmap []byte

func newBitmap(bits int) bitmap { return make(bitmap, (bits+7)/8) }

func (b bitmap) has(bit int) bool {
	if bit/8 >= len(b) {
		return false
	}
	return b[bit/8]&(1<<(bit%8)) != 0
}

func (b bitmap) set(bit int) { b[bit/8] |= 1 << (bit % 8) }

func (b bitmap) codes() []uint16 {
	var codes []uint16
	for i := 0; i < len(b)*8; i++ {
		if b.has(i) {
			codes = append(codes, uint16(i))
		}
	}
	return codes
}

func readBits(f *os.File, req func(size uintptr) uintptr, bits int) (bitmap, error) {
	b := newBitmap(bits)
	if err := ioctl(f, req(uintptr(len(b))), unsafe.Pointer(&b[0])); err != nil {
		return nil, err
	}
	return b, nil
}

func eventBits(f *os.File, ev uint16, bits int) (bitmap, error) {
	return readBits(f, func(size uintptr) uintptr { return eviocgbit(uintptr(ev), size) }, bits)
}

func absAxis(f *os.File, code uint16) (absInfo, error) {
	var ai absInfo
	err := ioctl(f, eviocgabs(uintptr(code)), unsafe.Pointer(&ai))
	return ai, err
}

// slotValues は EVIOCGMTSLOTS で全スロットの値を読む
func slotValues(f *os.File, code uint16, nslots int) ([]int32, error) {
	buf := make([]int32, nslots+1)
	buf[0] = int32(code)
	size := uintptr(len(buf)) * unsafe.Sizeof(buf[0])
	if err := ioctl(f, eviocgmtslots(size), unsafe.Pointer(&buf[0])); err != nil {
		return nil, errors.Wrapf(err, "EVIOCGMTSLOTS(%#x)", code)
	}
	return buf[1:], nil
}

func grab(f *os.File, on bool) error {
	var v uintptr
	if on {
		v = 1
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), eviocgrab, v)
	if errno != 0 {
		return errors.Wrap(errno, "EVIOCGRAB")
	}
	return nil
}
