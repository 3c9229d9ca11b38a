// Package report renders a working set estimate as the Est(s)/Ref(MB) table,
// a verbose timing breakdown, or a JSON document.
package report

import (
	"fmt"
	"io"
	"time"

	"observex-wss/models"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// MaxMappings limits the per-mapping rows in verbose output
const MaxMappings = 10

// WriteTable prints the two column estimate table
func WriteTable(w io.Writer, est *models.Estimate) error {
	if _, err := fmt.Fprintf(w, "%-7s %10s\n", "Est(s)", "Ref(MB)"); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%-7.3f %10.2f\n", est.Est.Seconds(), est.ReferencedMB())
	return err
}

// WriteVerbose prints the phase timings, page counts and the busiest mappings
func WriteVerbose(w io.Writer, est *models.Estimate, proc *models.ProcessInfo) error {
	kb := est.PageSize / 1024

	lines := []string{
		fmt.Sprintf("set time  : %.3f s", est.Set.Seconds()),
		fmt.Sprintf("sleep time: %.3f s", est.Sleep.Seconds()),
		fmt.Sprintf("read time : %.3f s", est.ReloadScan.Seconds()),
		fmt.Sprintf("dur time  : %.3f s", est.Total.Seconds()),
		fmt.Sprintf("referenced: %d pages, %d Kbytes", est.ActivePages, est.ActivePages*kb),
		fmt.Sprintf("walked    : %d pages, %d Kbytes", est.WalkedPages, est.WalkedPages*kb),
		fmt.Sprintf("regions   : %d scanned, %d kernel, %d failed", est.RegionsScanned, est.RegionsKernel, est.RegionsFailed),
		fmt.Sprintf("idle map  : %d bytes", est.BitmapBytes),
	}
	if proc != nil {
		lines = append(lines, fmt.Sprintf("rss       : %d Kbytes (%s)", proc.RSS/1024, proc.Name))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if len(est.Mappings) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "\n%10s %10s  %s\n", "Ref(KB)", "RSS(KB)", "Mapping"); err != nil {
		return err
	}
	for i, m := range est.Mappings {
		if i == MaxMappings {
			break
		}
		if _, err := fmt.Fprintf(w, "%10d %10d  %s\n", m.ActivePages*kb, m.WalkedPages*kb, m.Path); err != nil {
			return err
		}
	}
	return nil
}

// JSON encodes the report payload
func JSON(p *models.Payload) ([]byte, error) {
	w := jwriter.NewWriter()

	obj := w.Object()
	obj.Name("timestamp").String(p.Timestamp.UTC().Format(time.RFC3339Nano))
	obj.Name("hostname").String(p.Hostname)
	if p.Container != "" {
		obj.Name("container").String(p.Container)
	}

	sys := obj.Name("system").Object()
	sys.Name("os").String(p.System.OS)
	sys.Name("kernel").String(p.System.Kernel)
	sys.Name("arch").String(p.System.Arch)
	sys.Name("memoryTotal").Float64(float64(p.System.MemoryTotal))
	sys.Name("pageSize").Int(p.System.PageSize)
	sys.End()

	if p.Process != nil {
		proc := obj.Name("process").Object()
		proc.Name("pid").Int(p.Process.PID)
		proc.Name("name").String(p.Process.Name)
		proc.Name("command").String(p.Process.Command)
		proc.Name("rss").Float64(float64(p.Process.RSS))
		proc.Name("vms").Float64(float64(p.Process.VMS))
		proc.End()
	}

	writeEstimate(obj.Name("estimate"), p.Estimate)
	obj.End()

	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func writeEstimate(w *jwriter.Writer, est *models.Estimate) {
	obj := w.Object()
	defer obj.End()

	obj.Name("pid").Int(est.PID)
	obj.Name("intervalSeconds").Float64(est.Interval.Seconds())
	obj.Name("estSeconds").Float64(est.Est.Seconds())
	obj.Name("refMB").Float64(est.ReferencedMB())
	obj.Name("walkedMB").Float64(est.WalkedMB())
	obj.Name("activePages").Float64(float64(est.ActivePages))
	obj.Name("walkedPages").Float64(float64(est.WalkedPages))
	obj.Name("pageSize").Float64(float64(est.PageSize))

	timing := obj.Name("timing").Object()
	timing.Name("set").Float64(est.Set.Seconds())
	timing.Name("sleep").Float64(est.Sleep.Seconds())
	timing.Name("reloadScan").Float64(est.ReloadScan.Seconds())
	timing.Name("total").Float64(est.Total.Seconds())
	timing.End()

	regions := obj.Name("regions").Object()
	regions.Name("scanned").Int(est.RegionsScanned)
	regions.Name("kernel").Int(est.RegionsKernel)
	regions.Name("failed").Int(est.RegionsFailed)
	regions.End()

	mappings := obj.Name("mappings").Array()
	for _, m := range est.Mappings {
		o := mappings.Object()
		o.Name("path").String(m.Path)
		o.Name("activePages").Float64(float64(m.ActivePages))
		o.Name("walkedPages").Float64(float64(m.WalkedPages))
		o.End()
	}
	mappings.End()
}
