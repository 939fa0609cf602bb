package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rusenback/dockersmoke/internal/logger"
	"github.com/rusenback/dockersmoke/internal/model"
)

// LoaderBinaryEnv overrides the CLI used by BinaryLoader.
const LoaderBinaryEnv = "LOADER_BINARY"

// ImageInspector resolves image references to image IDs
type ImageInspector interface {
	InspectImage(ctx context.Context, ref string) (model.Image, error)
}

// BinaryLoader loads archives by piping them to "<binary> load", for
// daemons reached through their CLI (docker, podman).
type BinaryLoader struct {
	Binary    string
	Inspector ImageInspector
	Stderr    io.Writer
}

// NewBinaryLoader returns a loader for the given daemon CLI. LOADER_BINARY
// takes precedence when set.
func NewBinaryLoader(daemon string, inspector ImageInspector) *BinaryLoader {
	binary, ok := os.LookupEnv(LoaderBinaryEnv)
	if !ok || binary == "" {
		binary = daemon
	}
	return &BinaryLoader{
		Binary:    binary,
		Inspector: inspector,
		Stderr:    os.Stderr,
	}
}

// LoadImage pipes the archive to the loader binary and returns the single
// image it reported.
func (l *BinaryLoader) LoadImage(ctx context.Context, archive io.Reader) (model.Image, error) {
	if _, err := exec.LookPath(l.Binary); err != nil {
		return model.Image{}, &ImageLoadError{Err: fmt.Errorf("%s not found in PATH: %w", l.Binary, err)}
	}

	logger.Debug().Str("binary", l.Binary).Msg("loading image archive through CLI")

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, l.Binary, "load")
	cmd.Stdin = archive
	cmd.Stdout = &stdout
	cmd.Stderr = l.Stderr

	if err := cmd.Run(); err != nil {
		return model.Image{}, &ImageLoadError{Err: fmt.Errorf("%s load failed: %w", l.Binary, err)}
	}

	inspect := l.inspect
	if l.Inspector != nil {
		inspect = l.Inspector.InspectImage
	}
	return resolveImage(ctx, loadedRefs(stdout.String()), inspect)
}

// inspect is used without an API client: IDs are taken as reported and
// every other reference is treated as a distinct image.
func (l *BinaryLoader) inspect(_ context.Context, ref string) (model.Image, error) {
	if strings.HasPrefix(ref, "sha256:") {
		return model.Image{ID: ref}, nil
	}
	return model.Image{ID: ref, Tags: []string{ref}}, nil
}
