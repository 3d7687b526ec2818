// Package load implements deployment.Loader by running a built artifact
// inside an ephemeral Docker container, generalizing plugins/docker's
// Engine API client wrapper from an operator-facing container inspector
// into the thing that actually starts tenant workloads.
package load

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"

	"github.com/web-casa/shuttlectl/internal/deployment"
)

// containerPort is the port every tenant image is expected to listen on
// inside its container; it is published to the host port the manager
// assigns.
const containerPort = "8080/tcp"

// defaultMemLimit caps a tenant container's memory the same way an
// operator would size a systemd MemoryMax on the teacher's process units;
// it is a fixed value written in go-units' human-readable form ("512m",
// "1g") and parsed once in New. There is no configuration knob for it.
const defaultMemLimit = "512m"

// Loader runs deployments as Docker containers on a shared daemon.
type Loader struct {
	cli      *client.Client
	image    string // base image used to run a built artifact directory
	memLimit int64  // bytes
}

// New creates a Loader talking to the Docker daemon at socketPath (empty
// defaults to /var/run/docker.sock), running built artifacts inside image.
func New(socketPath, image string) (*Loader, error) {
	if socketPath == "" {
		socketPath = "/var/run/docker.sock"
	}
	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+socketPath),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, err
	}
	if image == "" {
		image = "node:20-alpine"
	}
	memLimit, err := units.RAMInBytes(defaultMemLimit)
	if err != nil {
		return nil, err
	}
	return &Loader{cli: cli, image: image, memLimit: memLimit}, nil
}

// Load satisfies deployment.Loader: it starts a container bind-mounting
// artifact, publishing containerPort to the host's port, with the
// database DSN (provisioned lazily via factory) and a PORT env var
// injected so the tenant process can bind correctly. The container is
// named after id, not project, so a rolling replace's new container never
// collides with (and never has to force-remove) the one it is about to
// supersede — that teardown is the manager's job, run only after SwapIn.
func (l *Loader) Load(ctx context.Context, artifact, project, id string, port int, factory deployment.DbFactory, runtimeLog *deployment.RingLog) (deployment.Service, error) {
	env := []string{fmt.Sprintf("PORT=%d", 8080)}
	creds, err := factory.GetDatabase(ctx)
	if err != nil {
		return nil, fmt.Errorf("provision database: %w", err)
	}
	if creds != nil {
		env = append(env, "DATABASE_URL="+creds.DSN)
	}

	name := containerName(id)

	hostPort := strconv.Itoa(port)
	resp, err := l.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        l.image,
			Env:          env,
			WorkingDir:   "/app",
			Cmd:          []string{"sh", "-c", "npm start || ./app"},
			ExposedPorts: nat.PortSet{nat.Port(containerPort): struct{}{}},
		},
		&container.HostConfig{
			Binds: []string{artifact + ":/app"},
			PortBindings: nat.PortMap{
				nat.Port(containerPort): []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: hostPort}},
			},
			Resources:  container.Resources{Memory: l.memLimit},
			AutoRemove: false,
		},
		nil, nil, name,
	)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	svc := &service{cli: l.cli, containerID: resp.ID}
	go svc.streamLogs(runtimeLog)

	return svc, nil
}

func containerName(id string) string {
	return "tenant-" + id
}

// service is a deployment.Service backed by one Docker container.
type service struct {
	cli         *client.Client
	containerID string
}

func (s *service) Shutdown() error {
	ctx := context.Background()
	timeout := 10
	if err := s.cli.ContainerStop(ctx, s.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		// Fall through to remove regardless: a container that won't stop
		// gracefully still needs its name freed for the next deployment.
	}
	err := s.cli.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true})
	if err != nil && errdefs.IsNotFound(err) {
		return nil // already gone: a repeated Shutdown is a no-op
	}
	return err
}

func (s *service) streamLogs(dst io.Writer) {
	ctx := context.Background()
	rc, err := s.cli.ContainerLogs(ctx, s.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return
	}
	defer rc.Close()
	stdcopy.StdCopy(dst, dst, rc)
}
