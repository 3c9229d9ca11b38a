package collector

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/docker/docker/client"
)

// ResolveContainerPID returns the host PID of a running container's init process
func ResolveContainerPID(ctx context.Context, ref string) (int, error) {
	if !fileExists(dockerSocket) {
		return 0, errors.Mark(errors.Newf("docker socket %s not found", dockerSocket), ErrTargetUnavailable)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return 0, errors.Wrap(err, "docker connect")
	}
	defer cli.Close()

	info, err := cli.ContainerInspect(ctx, strings.TrimPrefix(ref, "/"))
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "inspect container %s", ref), ErrTargetUnavailable)
	}
	if info.ContainerJSONBase == nil || info.State == nil || info.State.Pid == 0 {
		return 0, errors.Mark(errors.Newf("container %s is not running", ref), ErrTargetUnavailable)
	}

	return info.State.Pid, nil
}
