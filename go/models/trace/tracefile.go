// Package trace records every syscall a machine serves into a compact file
// and reads it back.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

var TRACE_MAGIC = "LTRC"

const traceVersion = 1

type TraceHeader struct {
	// MAGIC ("LTRC")
	Magic   string `struc:"[4]byte"`
	Version uint32
	// BootID tells apart traces of different machine runs.
	BootID   string `struc:"[36]byte"`
	PageSize uint32
}

// Frame is one completed syscall.
type Frame struct {
	Time int64
	Pid  int32
	Num  int32
	Args [4]uint64
	Ret  uint64
}

func (f *Frame) String() string {
	name, ok := models.SyscallNames[int(f.Num)]
	if !ok {
		name = fmt.Sprintf("syscall_%d", f.Num)
	}
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = fmt.Sprintf("%#x", a)
	}
	ts := time.Unix(0, f.Time).UTC().Format("15:04:05.000000")
	return fmt.Sprintf("%s [%d] %s(%s) = %d", ts, f.Pid, name, strings.Join(args, ", "), int32(f.Ret))
}

type TraceWriter struct {
	mu     sync.Mutex
	w      io.WriteCloser
	zw     *snappy.Writer
	Header TraceHeader
}

func NewWriter(w io.WriteCloser, pageSize int) (*TraceWriter, error) {
	header := TraceHeader{
		Magic:    TRACE_MAGIC,
		Version:  traceVersion,
		BootID:   uuid.New().String(),
		PageSize: uint32(pageSize),
	}
	if err := struc.PackWithOrder(w, &header, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &TraceWriter{w: w, zw: snappy.NewBufferedWriter(w), Header: header}, nil
}

// Syscall appends a frame. Calls from different processes are serialized.
func (t *TraceWriter) Syscall(pid, num int, args []uint64, ret uint64) error {
	frame := Frame{Time: time.Now().UnixNano(), Pid: int32(pid), Num: int32(num), Ret: ret}
	copy(frame.Args[:], args)
	t.mu.Lock()
	defer t.mu.Unlock()
	return struc.PackWithOrder(t.zw, &frame, binary.LittleEndian)
}

func (t *TraceWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.zw.Close(); err != nil {
		t.w.Close()
		return err
	}
	return t.w.Close()
}

type TraceReader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header TraceHeader
}

func NewReader(r io.ReadCloser) (*TraceReader, error) {
	t := &TraceReader{r: r}
	if err := struc.UnpackWithOrder(r, &t.Header, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	if t.Header.Version != traceVersion {
		return nil, errors.Errorf("unsupported trace version %d", t.Header.Version)
	}
	t.Header.BootID = strings.TrimRight(t.Header.BootID, "\x00")
	t.zr = snappy.NewReader(r)
	return t, nil
}

// Next returns the next frame, or io.EOF after the last one.
func (t *TraceReader) Next() (*Frame, error) {
	var frame Frame
	if err := struc.UnpackWithOrder(t.zr, &frame, binary.LittleEndian); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(err, "truncated trace")
		}
		return nil, err
	}
	return &frame, nil
}

func (t *TraceReader) Close() {
	t.zr.Reset(nil)
	t.r.Close()
}
