package collector

import (
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"observex-wss/models"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	bitmap   *IdleBitmap
	resetErr error
	loadErr  error
	resets   int
	loads    int
}

func (f *fakeTracker) Reset() error {
	f.resets++
	return f.resetErr
}

func (f *fakeTracker) Load() (*IdleBitmap, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.bitmap, nil
}

const testPID = 4242

const testMaps = `00000000-00003000 r-xp 00000000 08:01 11 /bin/app
00005000-00006000 rw-p 00000000 00:00 0 [heap]
00100000-00101000 rw-p 00000000 00:00 0 [gone]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0 [vsyscall]
`

func writeProc(t *testing.T, maps string, pagemap []byte) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, strconv.Itoa(testPID))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maps"), []byte(maps), 0o600))
	if pagemap != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pagemap"), pagemap, 0o600))
	}
	return root
}

// fakeClock returns base plus each offset in turn
func fakeClock(t *testing.T, offsets ...time.Duration) func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	return func() time.Time {
		require.Less(t, i, len(offsets), "clock read too often")
		now := base.Add(offsets[i])
		i++
		return now
	}
}

func newTestEstimator(t *testing.T, tracker IdleTracker, root string) (*Estimator, *[]time.Duration) {
	e := NewEstimator(testLogger(), tracker, EstimatorOptions{ProcRoot: root, ChunkBytes: 16})
	e.now = fakeClock(t, 0, 2*time.Millisecond, 102*time.Millisecond, 110*time.Millisecond)

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }
	return e, &slept
}

func TestEstimatorRun(t *testing.T) {
	pagemap := encodePagemap(present(10), 0, present(20), 0, 0, present(21))
	root := writeProc(t, testMaps, pagemap)
	tracker := &fakeTracker{bitmap: idleBitmapFor(64, 20, 21)}

	e, slept := newTestEstimator(t, tracker, root)
	est, err := e.Run(testPID, 100*time.Millisecond)
	require.NoError(t, err)

	require.Equal(t, 1, tracker.resets)
	require.Equal(t, 1, tracker.loads)
	require.Equal(t, []time.Duration{100 * time.Millisecond}, *slept)

	require.Equal(t, testPID, est.PID)
	require.Equal(t, models.ScanResult{ActivePages: 2, WalkedPages: 3}, est.ScanResult)
	require.Equal(t, 2, est.RegionsScanned)
	require.Equal(t, 1, est.RegionsKernel)
	require.Equal(t, 1, est.RegionsFailed)
	require.Equal(t, 8, est.BitmapBytes)

	require.Equal(t, 2*time.Millisecond, est.Set)
	require.Equal(t, 100*time.Millisecond, est.Sleep)
	require.Equal(t, 8*time.Millisecond, est.ReloadScan)
	require.Equal(t, 110*time.Millisecond, est.Total)
	require.Equal(t, 105*time.Millisecond, est.Est)

	require.Equal(t, []models.MappingUsage{
		{Path: "/bin/app", ScanResult: models.ScanResult{ActivePages: 1, WalkedPages: 2}},
		{Path: "[heap]", ScanResult: models.ScanResult{ActivePages: 1, WalkedPages: 1}},
	}, est.Mappings)

	require.InDelta(t, 2*4096.0/(1024*1024), est.ReferencedMB(), 1e-12)
	require.InDelta(t, 3*4096.0/(1024*1024), est.WalkedMB(), 1e-12)
}

func TestEstimatorKernelBoundary(t *testing.T) {
	pagemap := encodePagemap(present(10), 0, present(20), 0, 0, present(21))
	root := writeProc(t, testMaps, pagemap)
	tracker := &fakeTracker{bitmap: idleBitmapFor(64, 10, 20, 21)}

	e, _ := newTestEstimator(t, tracker, root)
	// everything from [heap] up counts as kernel space
	e.options.KernelBoundary = 0x5000

	est, err := e.Run(testPID, time.Second)
	require.NoError(t, err)
	require.Equal(t, models.ScanResult{ActivePages: 2, WalkedPages: 2}, est.ScanResult)
	require.Equal(t, 1, est.RegionsScanned)
	require.Equal(t, 3, est.RegionsKernel)
	require.Zero(t, est.RegionsFailed)
}

func TestEstimatorRejectsShortInterval(t *testing.T) {
	tracker := &fakeTracker{}
	// no proc files exist: any file access would fail with a different error
	e := NewEstimator(testLogger(), tracker, EstimatorOptions{ProcRoot: filepath.Join(t.TempDir(), "missing")})
	e.sleep = func(time.Duration) { t.Fatal("slept on a rejected interval") }
	e.now = func() time.Time {
		t.Fatal("clock read on a rejected interval")
		return time.Time{}
	}

	for _, interval := range []time.Duration{0, 5 * time.Millisecond, MinInterval - 1} {
		_, err := e.Run(testPID, interval)
		require.True(t, errors.Is(err, ErrIntervalTooShort), "interval %v", interval)
	}
	require.Zero(t, tracker.resets)
	require.Zero(t, tracker.loads)
}

func TestEstimatorResetFailureIsFatal(t *testing.T) {
	tracker := &fakeTracker{resetErr: errors.Mark(errors.New("no bitmap"), ErrIdleTrackingUnavailable)}

	e := NewEstimator(testLogger(), tracker, EstimatorOptions{ProcRoot: t.TempDir()})
	e.sleep = func(time.Duration) { t.Fatal("slept without a reset baseline") }

	_, err := e.Run(testPID, time.Second)
	require.True(t, errors.Is(err, ErrIdleTrackingUnavailable))
	require.Zero(t, tracker.loads)
}

func TestEstimatorLoadFailureIsFatal(t *testing.T) {
	tracker := &fakeTracker{loadErr: errors.Mark(errors.New("denied"), ErrPermission)}

	e, _ := newTestEstimator(t, tracker, writeProc(t, testMaps, encodePagemap(0)))
	_, err := e.Run(testPID, time.Second)
	require.True(t, errors.Is(err, ErrPermission))
}

func TestEstimatorTargetGone(t *testing.T) {
	tracker := &fakeTracker{bitmap: idleBitmapFor(8)}

	e, _ := newTestEstimator(t, tracker, t.TempDir())
	_, err := e.Run(testPID, time.Second)
	require.True(t, errors.Is(err, ErrTargetUnavailable))

	// maps readable but pagemap missing
	e, _ = newTestEstimator(t, tracker, writeProc(t, testMaps, nil))
	_, err = e.Run(testPID, time.Second)
	require.True(t, errors.Is(err, ErrTargetUnavailable))
}

func TestCompensatedDuration(t *testing.T) {
	require.Equal(t, 3*time.Second, CompensatedDuration(3*time.Second, 0, 0))
	require.Equal(t, 2500*time.Millisecond, CompensatedDuration(3*time.Second, time.Second, 0))
	require.Equal(t, 2*time.Second, CompensatedDuration(3*time.Second, time.Second, time.Second))

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		set := time.Duration(r.Int63n(int64(time.Second)))
		reloadScan := time.Duration(r.Int63n(int64(time.Second)))
		total := set + reloadScan + time.Duration(r.Int63n(int64(10*time.Second)))

		est := CompensatedDuration(total, set, reloadScan)
		require.LessOrEqual(t, int64(est), int64(total))
		require.Equal(t, total, CompensatedDuration(total, 0, 0))
	}
}
