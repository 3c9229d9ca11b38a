package collector

import (
	"sort"
	"time"

	"observex-wss/models"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// MinInterval is the shortest sampling window accepted
const MinInterval = 10 * time.Millisecond

// DefaultKernelBoundary is the x86-64 direct map base. Mappings at or above it
// are kernel space and have no idle tracking for user pages. Other
// architectures need their own boundary set through EstimatorOptions.
const DefaultKernelBoundary uint64 = 0xffff880000000000

type EstimatorOptions struct {
	ProcRoot       string
	KernelBoundary uint64
	ChunkBytes     int
}

// Estimator runs one working set measurement cycle against a process
type Estimator struct {
	tracker IdleTracker
	regions *RegionScanner
	options EstimatorOptions
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(time.Duration)
}

func NewEstimator(logger *slog.Logger, tracker IdleTracker, options EstimatorOptions) *Estimator {
	if options.ProcRoot == "" {
		options.ProcRoot = DefaultProcRoot
	}
	if options.KernelBoundary == 0 {
		options.KernelBoundary = DefaultKernelBoundary
	}
	if options.ChunkBytes == 0 {
		options.ChunkBytes = DefaultPagemapChunk
	}

	return &Estimator{
		tracker: tracker,
		regions: NewRegionScanner(options.ProcRoot),
		options: options,
		logger:  logger,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// cycle carries the state of one reset, sleep, reload+scan pass
type cycle struct {
	pid      int
	interval time.Duration

	t1, t3, t4 time.Time
	set        time.Duration

	bitmap   *IdleBitmap
	result   models.ScanResult
	mappings *swiss.Map[string, models.ScanResult]

	scanned, kernel, failed int
}

// Run resets idle tracking, sleeps for interval, then walks every user space
// region of pid. Only the sleep blocks; there is no cancellation once it starts.
func (e *Estimator) Run(pid int, interval time.Duration) (*models.Estimate, error) {
	e.logger.Debug("Estimator::Run", slog.Int("PID", pid), slog.Duration("Interval", interval))

	if interval < MinInterval {
		return nil, errors.Mark(errors.Newf("interval %v is shorter than %v", interval, MinInterval), ErrIntervalTooShort)
	}

	c := &cycle{
		pid:      pid,
		interval: interval,
		mappings: swiss.NewMap[string, models.ScanResult](64),
	}

	if err := e.reset(c); err != nil {
		return nil, err
	}
	e.wait(c)
	if err := e.scan(c); err != nil {
		return nil, err
	}
	return e.report(c), nil
}

func (e *Estimator) reset(c *cycle) error {
	c.t1 = e.now()
	if err := e.tracker.Reset(); err != nil {
		return errors.Wrap(err, "reset idle bitmap")
	}
	c.set = e.now().Sub(c.t1)
	return nil
}

func (e *Estimator) wait(c *cycle) {
	e.sleep(c.interval)
	c.t3 = e.now()
}

func (e *Estimator) scan(c *cycle) error {
	bitmap, err := e.tracker.Load()
	if err != nil {
		return errors.Wrap(err, "load idle bitmap")
	}
	c.bitmap = bitmap

	regions, err := e.regions.List(c.pid)
	if err != nil {
		return err
	}

	pagemap, err := OpenPagemap(e.options.ProcRoot, c.pid, e.options.ChunkBytes)
	if err != nil {
		return err
	}
	defer pagemap.Close()

	for _, region := range regions {
		if region.Start >= e.options.KernelBoundary {
			c.kernel++
			continue
		}

		result, err := pagemap.ProcessRegion(region.Start, region.End, bitmap)
		if err != nil {
			e.logger.Error("region scan failed",
				slog.Int("PID", c.pid),
				slog.String("Region", region.String()),
				slog.Any("error", err))
			c.failed++
			continue
		}

		c.scanned++
		c.result.Add(result)

		label := region.Label()
		usage, _ := c.mappings.Get(label)
		usage.Add(result)
		c.mappings.Put(label, usage)
	}

	c.t4 = e.now()
	return nil
}

func (e *Estimator) report(c *cycle) *models.Estimate {
	total := c.t4.Sub(c.t1)
	reloadScan := c.t4.Sub(c.t3)

	est := &models.Estimate{
		PID:            c.pid,
		Interval:       c.interval,
		Set:            c.set,
		Sleep:          c.t3.Sub(c.t1) - c.set,
		ReloadScan:     reloadScan,
		Total:          total,
		Est:            CompensatedDuration(total, c.set, reloadScan),
		ScanResult:     c.result,
		PageSize:       models.PageSize,
		BitmapBytes:    c.bitmap.Len(),
		RegionsScanned: c.scanned,
		RegionsKernel:  c.kernel,
		RegionsFailed:  c.failed,
	}

	c.mappings.Iter(func(path string, usage models.ScanResult) bool {
		if usage.WalkedPages > 0 {
			est.Mappings = append(est.Mappings, models.MappingUsage{Path: path, ScanResult: usage})
		}
		return false
	})
	sort.Slice(est.Mappings, func(i, j int) bool {
		if est.Mappings[i].ActivePages != est.Mappings[j].ActivePages {
			return est.Mappings[i].ActivePages > est.Mappings[j].ActivePages
		}
		return est.Mappings[i].Path < est.Mappings[j].Path
	})

	e.logger.Debug("    scan complete",
		slog.Uint64("ActivePages", est.ActivePages),
		slog.Uint64("WalkedPages", est.WalkedPages),
		slog.Int("RegionsFailed", est.RegionsFailed))

	return est
}

// CompensatedDuration estimates the window during which accesses were
// observed: half of the reset and half of the reload+scan time come off total.
func CompensatedDuration(total, set, reloadScan time.Duration) time.Duration {
	return total - set/2 - reloadScan/2
}
