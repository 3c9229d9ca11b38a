package collector

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"observex-wss/models"

	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/common"
	"github.com/shirou/gopsutil/v3/process"
)

const maxCommandLen = 200

// DescribeProcess gets name, command and RSS/VMS of the target process from
// the same proc tree the estimator reads
func DescribeProcess(ctx context.Context, procRoot string, pid int) (*models.ProcessInfo, error) {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}
	if pid <= 0 || pid > math.MaxInt32 {
		return nil, errors.Mark(errors.Newf("pid %d out of range", pid), ErrTargetUnavailable)
	}

	// PidExists only trusts HOST_PROC when it is a mount point, so look at the tree directly
	if _, err := os.Stat(filepath.Join(procRoot, strconv.Itoa(pid))); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Newf("process %d does not exist", pid), ErrTargetUnavailable)
		}
		return nil, errors.Mark(errors.Wrapf(err, "look up pid %d", pid), ErrTargetUnavailable)
	}

	ctx = context.WithValue(ctx, common.EnvKey, common.EnvMap{common.HostProcEnvKey: procRoot})
	p := &process.Process{Pid: int32(pid)}

	info := &models.ProcessInfo{PID: pid}
	info.Name, _ = p.NameWithContext(ctx)

	// RSS is kept next to the estimate as the number it replaces
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		info.RSS = mem.RSS
		info.VMS = mem.VMS
	}

	cmdline, _ := p.CmdlineWithContext(ctx)
	if cmdline == "" {
		cmdline = info.Name
	}
	if len(cmdline) > maxCommandLen {
		cmdline = cmdline[:maxCommandLen] + "..."
	}
	info.Command = cmdline

	return info, nil
}
