package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
	"github.com/rs/zerolog/log"
)

// TimedOutExitCode is reported when a container is killed at its deadline.
const TimedOutExitCode = 124

type RunOpts struct {
	Image       string
	Command     []string
	Env         map[string]string
	Timeout     time.Duration
	Mounts      []Mount
	CPULimit    float64
	MemoryLimit int64
	UserID      string
	// OutputTail bounds the captured output to the last N lines; 0 keeps all.
	OutputTail int
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

type RunResult struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Output   string
}

// Runner executes one-shot containers through a shared Docker client.
type Runner struct {
	cli *client.Client
}

func NewRunner() (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Runner{cli: cli}, nil
}

func (r *Runner) Close() error {
	return r.cli.Close()
}

// Run starts a container, waits for it up to opts.Timeout and returns its
// exit code, wall-clock duration and output. The container is always removed.
func (r *Runner) Run(ctx context.Context, opts *RunOpts) (*RunResult, error) {
	envSlice := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	mounts := make([]mount.Mount, 0, len(opts.Mounts))
	for _, m := range opts.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts:      mounts,
		Init:        &initTrue,
		NetworkMode: "none",
	}
	if opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		hostCfg.Memory = opts.MemoryLimit
	}

	// A TTY keeps stdout and stderr in one unframed stream.
	containerCfg := &container.Config{
		Image:  opts.Image,
		Cmd:    opts.Command,
		Env:    envSlice,
		Tty:    true,
		Labels: map[string]string{"stabilizer": "true"},
	}
	if opts.UserID != "" {
		containerCfg.User = opts.UserID
	}

	createResp, err := r.cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		r.cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := r.cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	waitResult := r.cli.ContainerWait(timeoutCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				elapsed := time.Since(start)
				r.kill(containerID)
				if err := waitFailure(ctx, timeoutCtx, err); err != nil {
					return nil, err
				}
				log.Debug().Str("container", containerID).Dur("elapsed", elapsed).Msg("container timed out")
				return &RunResult{
					ExitCode: TimedOutExitCode,
					TimedOut: true,
					Duration: elapsed,
					Output:   r.output(containerID, opts.OutputTail),
				}, nil
			}
			// nil error means no error on this channel; wait for result
		case status := <-waitResult.Result:
			elapsed := time.Since(start)
			return &RunResult{
				ExitCode: int(status.StatusCode),
				Duration: elapsed,
				Output:   r.output(containerID, opts.OutputTail),
			}, nil
		}
	}
}

// waitFailure returns nil when a wait error is the container reaching its own
// deadline. Cancellation of the parent and daemon-side failures are errors.
func waitFailure(parent, deadline context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("waiting for container: %w", parent.Err())
	}
	if errors.Is(deadline.Err(), context.DeadlineExceeded) {
		return nil
	}
	return fmt.Errorf("waiting for container: %w", err)
}

func (r *Runner) kill(containerID string) {
	r.cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
}

func (r *Runner) output(containerID string, tail int) string {
	logOpts := client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true}
	if tail > 0 {
		logOpts.Tail = fmt.Sprintf("%d", tail)
	}
	logReader, err := r.cli.ContainerLogs(context.Background(), containerID, logOpts)
	if err != nil || logReader == nil {
		log.Warn().Err(err).Str("container", containerID).Msg("could not read container logs")
		return ""
	}
	defer logReader.Close()
	data, _ := io.ReadAll(logReader)
	return strings.ReplaceAll(string(data), "\r\n", "\n")
}
