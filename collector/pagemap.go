package collector

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"observex-wss/models"

	"github.com/cockroachdb/errors"
)

// see Documentation/admin-guide/mm/pagemap.rst
const (
	PagemapEntrySize = 8
	pfnMask          = uint64(1)<<55 - 1
	presentBit       = uint64(1) << 63

	// DefaultPagemapChunk is the number of pagemap bytes read per call
	DefaultPagemapChunk = 64 << 10
)

// PagemapWalker resolves virtual pages to PFNs through a pagemap and checks
// them against an idle bitmap
type PagemapWalker struct {
	r     io.ReaderAt
	chunk int
}

// NewPagemapWalker reads entries from r, chunk bytes at a time.
// chunk must be a positive multiple of PagemapEntrySize.
func NewPagemapWalker(r io.ReaderAt, chunk int) (*PagemapWalker, error) {
	if chunk <= 0 || chunk%PagemapEntrySize != 0 {
		return nil, errors.Newf("pagemap chunk size %d is not a positive multiple of %d", chunk, PagemapEntrySize)
	}
	return &PagemapWalker{r: r, chunk: chunk}, nil
}

// Pagemap is a walker over /proc/<pid>/pagemap
type Pagemap struct {
	*PagemapWalker
	f   *os.File
	pid int
}

func OpenPagemap(procRoot string, pid int, chunk int) (*Pagemap, error) {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}

	f, err := os.Open(filepath.Join(procRoot, strconv.Itoa(pid), "pagemap"))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open pagemap for pid %d", pid), ErrTargetUnavailable)
	}

	walker, err := NewPagemapWalker(f, chunk)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Pagemap{PagemapWalker: walker, f: f, pid: pid}, nil
}

func (p *Pagemap) Close() error {
	return p.f.Close()
}

// ProcessRegion counts the present pages of [start, end) and how many of them
// the bitmap reports active
func (w *PagemapWalker) ProcessRegion(start, end uint64, bitmap *IdleBitmap) (models.ScanResult, error) {
	var result models.ScanResult

	remaining := (end - start) / models.PageSize
	if remaining == 0 {
		return result, nil
	}
	offset := int64(start/models.PageSize) * PagemapEntrySize

	bufLen := uint64(w.chunk)
	if remaining*PagemapEntrySize < bufLen {
		bufLen = remaining * PagemapEntrySize
	}
	buf := make([]byte, bufLen)

	for remaining > 0 {
		count := uint64(len(buf)) / PagemapEntrySize
		if remaining < count {
			count = remaining
		}
		b := buf[:count*PagemapEntrySize]

		n, err := w.r.ReadAt(b, offset)
		if n < len(b) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return models.ScanResult{}, errors.Mark(
				errors.Wrapf(err, "read %d pagemap bytes at offset %#x", len(b), offset), ErrRegionVanished)
		}

		for i := 0; i < len(b); i += PagemapEntrySize {
			entry := binary.NativeEndian.Uint64(b[i:])
			if entry&presentBit == 0 {
				continue
			}
			pfn := entry & pfnMask
			if pfn == 0 {
				continue
			}
			result.WalkedPages++
			if bitmap.IsActive(pfn) {
				result.ActivePages++
			}
		}

		offset += int64(len(b))
		remaining -= count
	}

	return result, nil
}
