package event

import (
	"encoding/binary"
	"fmt"
	"io"
	"syscall"
)

// Size は64ビットカーネルの input_event のサイズ
const Size = 24

// Reader は input_event のバイト列を Event に変換する
type Reader struct {
	r   io.Reader
	buf [Size]byte
}

// NewReader は新しい Reader を作成する
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read は次のイベントを読み込む。ストリーム終端では io.EOF を返す
func (er *Reader) Read() (Event, error) {
	var e Event
	if _, err := io.ReadFull(er.r, er.buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return e, fmt.Errorf("イベントが途中で切れています: %w", err)
		}
		return e, err
	}
	decode(er.buf[:], &e)
	return e, nil
}

func decode(buf []byte, e *Event) {
	sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
	usec := int64(binary.LittleEndian.Uint64(buf[8:16]))
	e.Time = syscall.NsecToTimeval(sec*1e9 + usec*1e3)
	e.Type = binary.LittleEndian.Uint16(buf[16:18])
	e.Code = binary.LittleEndian.Uint16(buf[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))
}

// Writer は Event を input_event のバイト列として書き込む
type Writer struct {
	w   io.Writer
	buf [Size]byte
}

// NewWriter は新しい Writer を作成する
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write はイベントを1つ書き込む
func (ew *Writer) Write(e Event) error {
	binary.LittleEndian.PutUint64(ew.buf[0:8], uint64(e.Time.Sec))
	binary.LittleEndian.PutUint64(ew.buf[8:16], uint64(e.Time.Usec))
	binary.LittleEndian.PutUint16(ew.buf[16:18], e.Type)
	binary.LittleEndian.PutUint16(ew.buf[18:20], e.Code)
	binary.LittleEndian.PutUint32(ew.buf[20:24], uint32(e.Value))
	if _, err := ew.w.Write(ew.buf[:]); err != nil {
		return fmt.Errorf("イベントの書き込みに失敗しました: %w", err)
	}
	return nil
}

// WriteEvents は複数のイベントを書き込む
func (ew *Writer) WriteEvents(events []Event) error {
	for _, e := range events {
		if err := ew.Write(e); err != nil {
			return err
		}
	}
	return nil
}
