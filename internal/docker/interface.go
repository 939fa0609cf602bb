// internal/docker/interface.go
package docker

import (
	"context"
	"io"

	"github.com/rusenback/dockersmoke/internal/model"
)

// DockerClient allows mocking in tests
type DockerClient interface {
	LoadImage(ctx context.Context, archive io.Reader) (model.Image, error)
	RunContainer(ctx context.Context, spec model.ContainerSpec) (model.Container, error)
	ListContainers(ctx context.Context, labels map[string]string) ([]model.Container, error)
	ContainerRunning(ctx context.Context, id string) (bool, int, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	StreamContainerLogs(ctx context.Context, id string) (<-chan model.LogEntry, <-chan error, func())
	Close() error
}

// Ensure Client implements the interface
var _ DockerClient = (*Client)(nil)
