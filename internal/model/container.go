package model

import "time"

// ContainerSpec describes a container to start from a loaded image.
// Ports are container-side specs ("7474", "7687/tcp"); each one is bound to
// an ephemeral host port.
type ContainerSpec struct {
	Image  string
	Name   string
	Ports  []string
	Env    []string
	Labels map[string]string
}

// Container represents a started Docker container
type Container struct {
	ID      string
	Name    string
	Image   string
	Status  string
	State   string
	Created time.Time
	Ports   []Port
}

// Port is a container port and the host port it is published on
type Port struct {
	Private int
	Public  int
	Type    string
}

// PublicPort returns the host port bound to the given container port.
func (c Container) PublicPort(private int) (int, bool) {
	for _, p := range c.Ports {
		if p.Private == private && p.Public != 0 {
			return p.Public, true
		}
	}
	return 0, false
}

// ShortID returns the 12 character form of the container ID.
func (c Container) ShortID() string {
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}
