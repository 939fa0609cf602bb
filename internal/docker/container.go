// internal/docker/container.go
package docker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/rusenback/dockersmoke/internal/model"
)

// RunContainer creates and starts a container, publishing every port in
// spec.Ports on an ephemeral host port. A container that fails to start is
// removed before returning.
func (c *Client) RunContainer(ctx context.Context, spec model.ContainerSpec) (model.Container, error) {
	exposed, bindings, err := nat.ParsePortSpecs(spec.Ports)
	if err != nil {
		return model.Container{}, fmt.Errorf("invalid port spec: %w", err)
	}

	labels := map[string]string{LabelManaged: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	created, err := c.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          spec.Env,
			ExposedPorts: exposed,
			Labels:       labels,
		},
		&container.HostConfig{
			PortBindings: bindings,
		},
		nil, nil, spec.Name)
	if err != nil {
		return model.Container{}, fmt.Errorf("create container from %s: %w", spec.Image, err)
	}

	if err := c.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = c.RemoveContainer(context.WithoutCancel(ctx), created.ID)
		return model.Container{}, fmt.Errorf("start container %s: %w", shortID(created.ID), err)
	}

	info, err := c.cli.ContainerInspect(ctx, created.ID)
	if err != nil {
		// The container is running; hand it back so the caller can clean up.
		return model.Container{ID: created.ID, Image: spec.Image},
			fmt.Errorf("inspect container %s: %w", shortID(created.ID), err)
	}

	return containerFromInspect(info), nil
}

// ListContainers returns all containers (running + stopped) carrying the
// given labels
func (c *Client) ListContainers(ctx context.Context, labels map[string]string) ([]model.Container, error) {
	args := filters.NewArgs()
	for k, v := range labels {
		args.Add("label", k+"="+v)
	}

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, err
	}

	result := make([]model.Container, 0, len(containers))
	for _, cont := range containers {
		name := ""
		if len(cont.Names) > 0 {
			name = strings.TrimPrefix(cont.Names[0], "/")
		}

		ports := make([]model.Port, 0, len(cont.Ports))
		for _, p := range cont.Ports {
			ports = append(ports, model.Port{
				Private: int(p.PrivatePort),
				Public:  int(p.PublicPort),
				Type:    p.Type,
			})
		}

		result = append(result, model.Container{
			ID:      cont.ID,
			Name:    name,
			Image:   cont.Image,
			Status:  cont.Status,
			State:   cont.State,
			Created: time.Unix(cont.Created, 0),
			Ports:   ports,
		})
	}

	return result, nil
}

// ContainerRunning reports whether the container is still running, and its
// exit code when it is not.
func (c *Client) ContainerRunning(ctx context.Context, id string) (bool, int, error) {
	info, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return false, 0, err
	}
	if info.State == nil {
		return false, 0, fmt.Errorf("container %s has no state", shortID(id))
	}
	return info.State.Running, info.State.ExitCode, nil
}

// StopContainer stops a container
func (c *Client) StopContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	timeout := 10 // seconds
	err := c.cli.ContainerStop(ctx, id, container.StopOptions{
		Timeout: &timeout,
	})
	if errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

// RemoveContainer force-removes a container and its anonymous volumes.
// A container that is already gone is not an error.
func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	err := c.cli.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

func containerFromInspect(info types.ContainerJSON) model.Container {
	result := model.Container{
		ID:   info.ID,
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.Config != nil {
		result.Image = info.Config.Image
	}
	if info.State != nil {
		result.State = info.State.Status
		result.Status = info.State.Status
	}
	if created, err := time.Parse(time.RFC3339Nano, info.Created); err == nil {
		result.Created = created
	}
	if info.NetworkSettings != nil {
		result.Ports = portsFromMap(info.NetworkSettings.Ports)
	}
	return result
}

// portsFromMap flattens a published port map. Only the first binding of each
// container port is kept (the daemon reports the same port for IPv4 and IPv6).
func portsFromMap(pm nat.PortMap) []model.Port {
	ports := make([]model.Port, 0, len(pm))
	for port, bindings := range pm {
		p := model.Port{Private: port.Int(), Type: port.Proto()}
		for _, b := range bindings {
			if public, err := strconv.Atoi(b.HostPort); err == nil {
				p.Public = public
				break
			}
		}
		ports = append(ports, p)
	}

	sort.Slice(ports, func(i, j int) bool {
		if ports[i].Private != ports[j].Private {
			return ports[i].Private < ports[j].Private
		}
		return ports[i].Type < ports[j].Type
	})
	return ports
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
