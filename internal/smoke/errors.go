package smoke

import (
	"errors"
	"fmt"

	"github.com/rusenback/dockersmoke/internal/readiness"
)

// ImageLoadError means the archive could not be read or did not yield
// exactly one image.
type ImageLoadError struct {
	Archive string
	Err     error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Archive, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// StartError means the container could not be created or started.
type StartError struct {
	Image string
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start container from %s: %v", e.Image, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ReadinessTimeoutError means the readiness line never appeared, because the
// timeout elapsed or the container exited first.
type ReadinessTimeoutError struct {
	ContainerID string
	Err         error
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("container %s not ready: %v", e.ContainerID, e.Err)
}

func (e *ReadinessTimeoutError) Unwrap() error { return e.Err }

// Exited reports whether the container stopped before becoming ready.
func (e *ReadinessTimeoutError) Exited() bool {
	var timeoutErr *readiness.TimeoutError
	return errors.As(e.Err, &timeoutErr) && timeoutErr.Exited
}

// ProbeError means the HTTP probe could not connect or got a non-200 answer.
type ProbeError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe: %v", e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }
