package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"

	"github.com/agent-matrix/matrixhub-db/internal/provision"
)

// BuildImage builds an image from the given context directory. The build
// output is drained so the daemon can finish the build.
func (c *Client) BuildImage(ctx context.Context, contextDir, tag string) error {
	c.logger.Info("building image", "tag", tag, "context", contextDir)

	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := c.docker.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build image %q: %w", tag, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read build output: %w", err)
	}
	return nil
}

// PullImage pulls an image if not already present locally.
func (c *Client) PullImage(ctx context.Context, ref string) error {
	present, err := c.Exists(ctx, provision.KindImage, ref)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	c.logger.Info("pulling image", "image", ref)
	reader, err := c.docker.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("read pull output: %w", err)
	}
	return nil
}
