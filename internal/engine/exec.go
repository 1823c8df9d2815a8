package engine

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// Exec runs a command inside a running container, wiring the given streams.
// stdin may be nil. Returns the command's exit code.
func (c *Client) Exec(ctx context.Context, name string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	created, err := c.docker.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  stdin != nil,
	})
	if err != nil {
		return -1, fmt.Errorf("exec create in %q: %w", name, err)
	}

	resp, err := c.docker.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("exec attach in %q: %w", name, err)
	}
	defer resp.Close()

	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, resp.Reader)
		copyDone <- err
	}()

	if stdin != nil {
		if _, err := io.Copy(resp.Conn, stdin); err != nil {
			return -1, fmt.Errorf("exec stdin in %q: %w", name, err)
		}
		resp.CloseWrite()
	}

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-copyDone:
		if err != nil {
			return -1, fmt.Errorf("exec output in %q: %w", name, err)
		}
	}

	inspect, err := c.docker.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, fmt.Errorf("exec inspect in %q: %w", name, err)
	}
	return inspect.ExitCode, nil
}

// LogTail returns the last n lines of a container's combined output, used
// for diagnosis when the health wait times out.
func (c *Client) LogTail(ctx context.Context, name string, n int) (string, error) {
	rc, err := c.docker.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(n),
	})
	if err != nil {
		return "", fmt.Errorf("logs for %q: %w", name, err)
	}
	defer rc.Close()

	var b strings.Builder
	if _, err := stdcopy.StdCopy(&b, &b, rc); err != nil {
		return "", fmt.Errorf("read logs for %q: %w", name, err)
	}
	return b.String(), nil
}

// StreamLogs copies container logs to the given writer, optionally following.
func (c *Client) StreamLogs(ctx context.Context, name string, follow bool, out io.Writer) error {
	rc, err := c.docker.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: true,
	})
	if err != nil {
		return fmt.Errorf("logs for %q: %w", name, err)
	}
	defer rc.Close()
	_, err = stdcopy.StdCopy(out, out, rc)
	return err
}
