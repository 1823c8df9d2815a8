// Package engine wraps the Docker API with the typed existence checks and
// create/remove primitives the provisioner works against.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/agent-matrix/matrixhub-db/internal/provision"
)

// Client wraps a Docker API client.
type Client struct {
	docker *client.Client
	logger *slog.Logger
}

func New(logger *slog.Logger) (*Client, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{docker: docker, logger: logger.With("component", "engine")}, nil
}

func (c *Client) Close() error { return c.docker.Close() }

// Ping verifies the daemon is reachable. This is the install_runtime check:
// a failure here is a ProbeError, not a missing resource.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.docker.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Exists implements provision.Checker for Docker-managed resource kinds.
// A not-found response is a clean false; any other error is surfaced.
func (c *Client) Exists(ctx context.Context, kind provision.Kind, name string) (bool, error) {
	var err error
	switch kind {
	case provision.KindNetwork:
		_, err = c.docker.NetworkInspect(ctx, name, network.InspectOptions{})
	case provision.KindVolume:
		_, err = c.docker.VolumeInspect(ctx, name)
	case provision.KindContainer:
		_, err = c.docker.ContainerInspect(ctx, name)
	case provision.KindImage:
		_, _, err = c.docker.ImageInspectWithRaw(ctx, name)
	default:
		return false, fmt.Errorf("unknown resource kind %q", kind)
	}
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	return c.Exists(ctx, provision.KindContainer, name)
}

func (c *Client) CreateNetwork(ctx context.Context, name string) error {
	c.logger.Info("creating network", "network", name)
	_, err := c.docker.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return fmt.Errorf("create network %q: %w", name, err)
	}
	return nil
}

func (c *Client) CreateVolume(ctx context.Context, name string) error {
	c.logger.Info("creating volume", "volume", name)
	if _, err := c.docker.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return fmt.Errorf("create volume %q: %w", name, err)
	}
	return nil
}

// RemoveVolume deletes a named volume and the data it holds. Absent volumes
// are a no-op. Callers gate this behind operator confirmation.
func (c *Client) RemoveVolume(ctx context.Context, name string) error {
	c.logger.Info("removing volume", "volume", name)
	if err := c.docker.VolumeRemove(ctx, name, false); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove volume %q: %w", name, err)
	}
	return nil
}

// RemoveNetwork deletes a named network; absent networks are a no-op.
func (c *Client) RemoveNetwork(ctx context.Context, name string) error {
	c.logger.Info("removing network", "network", name)
	if err := c.docker.NetworkRemove(ctx, name); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove network %q: %w", name, err)
	}
	return nil
}

// ContainerSpec describes a container to create. Volumes referenced in Binds
// must already exist; the spec never creates them implicitly.
type ContainerSpec struct {
	Name     string
	Image    string
	Env      []string
	Cmd      []string
	Network  string
	Binds    []string
	Labels   map[string]string
	Restart  bool
	HostPort int
	Port     int
}

// CreateContainer creates and starts a container from spec.
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	c.logger.Info("creating container", "container", spec.Name, "image", spec.Image)

	cfg := &container.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Cmd:    strslice.StrSlice(spec.Cmd),
		Labels: spec.Labels,
	}
	host := &container.HostConfig{
		Binds: spec.Binds,
	}
	if spec.Restart {
		host.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	}
	if spec.Port != 0 {
		port := nat.Port(strconv.Itoa(spec.Port) + "/tcp")
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		host.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(spec.HostPort)}},
		}
	}

	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	resp, err := c.docker.ContainerCreate(ctx, cfg, host, netCfg, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %q: %w", spec.Name, err)
	}
	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %q: %w", spec.Name, err)
	}
	return resp.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, name string) error {
	c.logger.Info("starting container", "container", name)
	if err := c.docker.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %q: %w", name, err)
	}
	return nil
}

// StopContainer stops a container; absent containers are a no-op so teardown
// stays idempotent.
func (c *Client) StopContainer(ctx context.Context, name string, gracePeriod time.Duration) error {
	c.logger.Info("stopping container", "container", name, "grace_period", gracePeriod)
	secs := int(gracePeriod.Seconds())
	opts := container.StopOptions{Timeout: &secs}
	if err := c.docker.ContainerStop(ctx, name, opts); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop container %q: %w", name, err)
	}
	return nil
}

// RemoveContainer removes a container; absent containers are a no-op.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	c.logger.Info("removing container", "container", name)
	if err := c.docker.ContainerRemove(ctx, name, container.RemoveOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container %q: %w", name, err)
	}
	return nil
}

func (c *Client) ContainerStatus(ctx context.Context, name string) (string, error) {
	info, err := c.docker.ContainerInspect(ctx, name)
	if err != nil {
		return "", fmt.Errorf("inspect container %q: %w", name, err)
	}
	return info.State.Status, nil
}

// ContainerImage returns the image reference a named container was created
// from, reported when an existing container is replaced.
func (c *Client) ContainerImage(ctx context.Context, name string) (string, error) {
	info, err := c.docker.ContainerInspect(ctx, name)
	if err != nil {
		return "", fmt.Errorf("inspect container %q: %w", name, err)
	}
	return info.Config.Image, nil
}
