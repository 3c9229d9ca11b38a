package collector

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// DefaultIdleBitmapPath is where the kernel exposes idle page tracking.
// See Documentation/admin-guide/mm/idle_page_tracking.rst
const DefaultIdleBitmapPath = "/sys/kernel/mm/page_idle/bitmap"

// idleFillSize matches the write size classic wss uses for the reset loop
const idleFillSize = 4096

// IdleBitmap is a snapshot of the kernel idle bitmap, one bit per PFN.
// A set bit means the frame has not been accessed since the last reset.
type IdleBitmap struct {
	data []byte
}

func NewIdleBitmap(data []byte) *IdleBitmap {
	return &IdleBitmap{data: data}
}

// IsActive reports whether the frame was accessed since the last reset.
// Frames past the end of the snapshot are never active, the kernel leaves
// out frames it does not track.
func (b *IdleBitmap) IsActive(pfn uint64) bool {
	idx := pfn / 8
	if idx >= uint64(len(b.data)) {
		return false
	}
	return b.data[idx]&(1<<(pfn%8)) == 0
}

// Len is the snapshot size in bytes
func (b *IdleBitmap) Len() int {
	return len(b.data)
}

// IdleTracker resets and reloads idle page tracking state
type IdleTracker interface {
	Reset() error
	Load() (*IdleBitmap, error)
}

// IdleBitmapController drives the kernel idle bitmap file
type IdleBitmapController struct {
	path   string
	logger *slog.Logger
}

var _ IdleTracker = &IdleBitmapController{}

func NewIdleBitmapController(logger *slog.Logger, path string) *IdleBitmapController {
	if path == "" {
		path = DefaultIdleBitmapPath
	}
	return &IdleBitmapController{path: path, logger: logger}
}

func (c *IdleBitmapController) Path() string {
	return c.path
}

// Reset marks every tracked frame idle. The kernel only sets bits for user
// memory, kernel frames are silently ignored.
func (c *IdleBitmapController) Reset() error {
	c.logger.Debug("IdleBitmapController::Reset", slog.String("Path", c.path))

	f, err := os.OpenFile(c.path, os.O_WRONLY, 0)
	if err != nil {
		return c.classify(err, "open %s for writing", c.path)
	}
	defer f.Close()

	written, err := fillIdle(f)
	if err != nil {
		return c.classify(err, "write %s", c.path)
	}

	c.logger.Debug("    idle bitmap reset", slog.Int64("Bytes", written))
	return nil
}

// fillIdle writes 0xff until the writer stops accepting data. A zero length
// write ends the loop, as does an error once some bytes went through: the
// kernel rejects writes past max_pfn.
func fillIdle(w io.Writer) (int64, error) {
	buf := make([]byte, idleFillSize)
	for i := range buf {
		buf[i] = 0xff
	}

	var total int64
	for {
		n, err := w.Write(buf)
		total += int64(n)
		if err != nil {
			// os.File reports a zero length write as io.ErrUnexpectedEOF
			if total > 0 || errors.Is(err, io.ErrUnexpectedEOF) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// Load reads a full snapshot of the bitmap. Its size is set by the kernel.
func (c *IdleBitmapController) Load() (*IdleBitmap, error) {
	c.logger.Debug("IdleBitmapController::Load", slog.String("Path", c.path))

	f, err := os.Open(c.path)
	if err != nil {
		return nil, c.classify(err, "open %s for reading", c.path)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, c.classify(err, "read %s", c.path)
	}

	c.logger.Debug("    idle bitmap loaded", slog.Int("Bytes", len(data)))
	return NewIdleBitmap(data), nil
}

func (c *IdleBitmapController) classify(err error, format string, args ...interface{}) error {
	wrapped := errors.Wrapf(err, format, args...)
	switch {
	case os.IsNotExist(err):
		return errors.WithHint(errors.Mark(wrapped, ErrIdleTrackingUnavailable),
			"the kernel must be built with CONFIG_IDLE_PAGE_TRACKING (Linux 4.3+)")
	case os.IsPermission(err):
		return errors.WithHint(errors.Mark(wrapped, ErrPermission),
			"idle page tracking requires root")
	}
	return wrapped
}
