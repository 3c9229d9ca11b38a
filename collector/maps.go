package collector

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"observex-wss/models"

	"github.com/cockroachdb/errors"
)

// DefaultProcRoot is where per-process maps and pagemap files live
const DefaultProcRoot = "/proc"

// maps lines carry a path of at most PATH_MAX (4096) bytes after the fixed
// fields, so a longer line only comes from a corrupt file and fails the listing
const maxMapsLine = 64 * 1024

// RegionScanner lists the virtual memory regions of a process
type RegionScanner struct {
	procRoot string
}

func NewRegionScanner(procRoot string) *RegionScanner {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}
	return &RegionScanner{procRoot: procRoot}
}

// List returns the regions of pid in the order the kernel lists them
func (s *RegionScanner) List(pid int) ([]models.Region, error) {
	path := filepath.Join(s.procRoot, strconv.Itoa(pid), "maps")
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read maps for pid %d", pid), ErrTargetUnavailable)
	}
	defer f.Close()

	regions, err := ParseRegions(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read maps for pid %d", pid)
	}
	return regions, nil
}

// ParseRegions reads a maps listing. Lines without a valid start-end pair are skipped.
func ParseRegions(r io.Reader) ([]models.Region, error) {
	var regions []models.Region

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxMapsLine)
	for scanner.Scan() {
		if region, ok := parseMapLine(scanner.Text()); ok {
			regions = append(regions, region)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return regions, nil
}

// Format: 00400000-0040b000 r-xp 00000000 08:01 123456 /path/to/file
func parseMapLine(line string) (models.Region, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return models.Region{}, false
	}

	startHex, endHex, found := strings.Cut(fields[0], "-")
	if !found {
		return models.Region{}, false
	}
	start, err := strconv.ParseUint(startHex, 16, 64)
	if err != nil {
		return models.Region{}, false
	}
	end, err := strconv.ParseUint(endHex, 16, 64)
	if err != nil || end < start {
		return models.Region{}, false
	}

	region := models.Region{Start: start, End: end}
	if len(fields) > 5 {
		// paths may contain spaces
		region.Path = strings.Join(fields[5:], " ")
	}
	return region, true
}
