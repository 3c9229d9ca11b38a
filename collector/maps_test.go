package collector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"observex-wss/models"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

const sampleMaps = `55d0c8a00000-55d0c8a02000 r--p 00000000 08:01 1835010                    /usr/bin/cat
55d0c8a02000-55d0c8a07000 r-xp 00002000 08:01 1835010                    /usr/bin/cat
55d0ca1f4000-55d0ca215000 rw-p 00000000 00:00 0                          [heap]
7f1a3c000000-7f1a3c021000 rw-p 00000000 00:00 0
7f1a3c400000-7f1a3c401000 r--p 00000000 08:01 42                         /tmp/with space/lib.so
header line that is not a mapping
zzzz-1000 r--p 00000000 00:00 0
1000- r--p 00000000 00:00 0
2000-1000 r--p 00000000 00:00 0

7ffd5b8f0000-7ffd5b911000 rw-p 00000000 00:00 0                          [stack]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0                  [vsyscall]
`

func TestParseRegions(t *testing.T) {
	regions, err := ParseRegions(strings.NewReader(sampleMaps))
	require.NoError(t, err)

	require.Equal(t, []models.Region{
		{Start: 0x55d0c8a00000, End: 0x55d0c8a02000, Path: "/usr/bin/cat"},
		{Start: 0x55d0c8a02000, End: 0x55d0c8a07000, Path: "/usr/bin/cat"},
		{Start: 0x55d0ca1f4000, End: 0x55d0ca215000, Path: "[heap]"},
		{Start: 0x7f1a3c000000, End: 0x7f1a3c021000},
		{Start: 0x7f1a3c400000, End: 0x7f1a3c401000, Path: "/tmp/with space/lib.so"},
		{Start: 0x7ffd5b8f0000, End: 0x7ffd5b911000, Path: "[stack]"},
		{Start: 0xffffffffff600000, End: 0xffffffffff601000, Path: "[vsyscall]"},
	}, regions)
}

func TestParseRegionsLongPath(t *testing.T) {
	path := "/" + strings.Repeat("d", 4095)
	regions, err := ParseRegions(strings.NewReader("1000-2000 r--p 00000000 08:01 1 " + path + "\n"))
	require.NoError(t, err)
	require.Equal(t, []models.Region{{Start: 0x1000, End: 0x2000, Path: path}}, regions)
}

func TestParseRegionsEmpty(t *testing.T) {
	regions, err := ParseRegions(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, regions)
}

func TestParseMapLine(t *testing.T) {
	region, ok := parseMapLine("00400000-0040b000")
	require.True(t, ok)
	require.Equal(t, models.Region{Start: 0x400000, End: 0x40b000}, region)
	require.Equal(t, uint64(0xb000), region.Size())
	require.Equal(t, "[anon]", region.Label())
	require.Equal(t, "400000-40b000", region.String())

	for _, line := range []string{"", "   ", "0x400000-0x40b000 r--p", "400000 40b000", "400000-40b000-50000", "g-1"} {
		_, ok := parseMapLine(line)
		require.False(t, ok, "line %q", line)
	}
}

func TestRegionScannerList(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "123"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "123", "maps"), []byte(sampleMaps), 0o600))

	scanner := NewRegionScanner(root)
	regions, err := scanner.List(123)
	require.NoError(t, err)
	require.Len(t, regions, 7)

	_, err = scanner.List(124)
	require.True(t, errors.Is(err, ErrTargetUnavailable))
	require.Contains(t, err.Error(), "pid 124")
}
