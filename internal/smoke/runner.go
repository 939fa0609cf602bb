// Package smoke runs the image smoke scenario: load an image archive, start
// it, wait for its readiness log line and probe its HTTP port.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rusenback/dockersmoke/internal/archive"
	"github.com/rusenback/dockersmoke/internal/docker"
	"github.com/rusenback/dockersmoke/internal/logger"
	"github.com/rusenback/dockersmoke/internal/model"
	"github.com/rusenback/dockersmoke/internal/probe"
	"github.com/rusenback/dockersmoke/internal/readiness"
)

// LabelRun carries the run ID on every container a run starts.
const LabelRun = "io.dockersmoke.run"

const defaultCleanupTimeout = 30 * time.Second

// ImageLoader loads an image archive into the daemon
type ImageLoader interface {
	LoadImage(ctx context.Context, archive io.Reader) (model.Image, error)
}

// ContainerRuntime starts, observes and removes containers
type ContainerRuntime interface {
	RunContainer(ctx context.Context, spec model.ContainerSpec) (model.Container, error)
	ContainerRunning(ctx context.Context, id string) (bool, int, error)
	StreamContainerLogs(ctx context.Context, id string) (<-chan model.LogEntry, <-chan error, func())
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
}

// Prober checks the service once it is ready
type Prober interface {
	Get(ctx context.Context, url string) (int, error)
}

// Recorder stores run records
type Recorder interface {
	Record(rec *model.RunRecord)
}

// Options describes one smoke run
type Options struct {
	Archive   string
	Ports     []string
	ProbePort int
	ProbeHost string
	ProbePath string
	Wait      model.WaitCondition
	User      string
	Name      string
	// Preflight counts the images in the archive manifest before loading.
	Preflight bool
}

// DefaultOptions returns the options of the stock scenario: ports 7474 and
// 7687, "Started." within two minutes, GET / on 7474.
func DefaultOptions() Options {
	return Options{
		Ports:     []string{"7474", "7687"},
		ProbePort: 7474,
		ProbeHost: "localhost",
		ProbePath: "/",
		Wait: model.WaitCondition{
			Pattern:      "Started.",
			Timeout:      2 * time.Minute,
			PollInterval: readiness.DefaultPollInterval,
		},
		User:      os.Getenv("USER"),
		Preflight: true,
	}
}

func (o Options) validate() error {
	if o.Archive == "" {
		return errors.New("no image archive given")
	}
	if len(o.Ports) == 0 {
		return errors.New("no container ports to publish")
	}
	if o.ProbePort <= 0 {
		return fmt.Errorf("invalid probe port %d", o.ProbePort)
	}
	return o.Wait.Validate()
}

// Runner executes smoke runs
type Runner struct {
	Loader   ImageLoader
	Runtime  ContainerRuntime
	Prober   Prober
	Store    Recorder
	// Observer receives progress events. It is called from more than one
	// goroutine, never after Run returns.
	Observer func(model.Event)

	CleanupTimeout time.Duration
}

// Run executes load → start → wait → probe. The container, once created,
// is stopped and removed on every return path. The record is returned even
// when the run fails.
func (r *Runner) Run(ctx context.Context, opts Options) (rec *model.RunRecord, err error) {
	rec = &model.RunRecord{
		ID:        uuid.NewString(),
		Archive:   opts.Archive,
		User:      opts.User,
		StartedAt: time.Now(),
	}

	// Invalid options are reported as a failed load.
	stage := model.StageLoad
	defer func() {
		r.finish(rec, stage, err)
	}()

	if err := opts.validate(); err != nil {
		return rec, err
	}

	logger.Info().Str("run_id", rec.ID).Str("user", opts.User).Str("archive", opts.Archive).Msg("starting smoke run")

	r.emit(model.StageLoad, "loading "+opts.Archive, nil, false)
	img, err := r.load(ctx, opts)
	if err != nil {
		return rec, err
	}
	rec.ImageID = img.ID
	r.emit(model.StageLoad, "loaded image "+img.ID, nil, true)

	stage = model.StageStart
	r.emit(model.StageStart, "starting container", nil, false)
	container, err := r.Runtime.RunContainer(ctx, model.ContainerSpec{
		Image:  img.ID,
		Name:   opts.Name,
		Ports:  opts.Ports,
		Labels: map[string]string{LabelRun: rec.ID},
	})
	if container.ID != "" {
		rec.ContainerID = container.ID
		defer r.cleanup(container.ID)
	}
	if err != nil {
		return rec, &StartError{Image: img.ID, Err: err}
	}
	r.emit(model.StageStart, "started container "+container.ShortID(), nil, true)

	stage = model.StageWait
	r.emit(model.StageWait, "waiting for "+opts.Wait.String(), nil, false)
	entry, err := r.waitReady(ctx, container.ID, opts.Wait)
	if err != nil {
		var timeoutErr *readiness.TimeoutError
		if errors.As(err, &timeoutErr) {
			if len(timeoutErr.Recent) > 0 {
				logger.Warn().Strs("last_lines", timeoutErr.Recent).Msg("container output before the wait failed")
			}
			return rec, &ReadinessTimeoutError{ContainerID: container.ShortID(), Err: err}
		}
		return rec, fmt.Errorf("wait for readiness: %w", err)
	}
	r.emitReady(entry)

	stage = model.StageProbe
	port, ok := container.PublicPort(opts.ProbePort)
	if !ok {
		return rec, &ProbeError{Err: fmt.Errorf("container port %d is not published", opts.ProbePort)}
	}
	rec.HostPort = port

	url := probe.URL(opts.ProbeHost, port, opts.ProbePath)
	r.emit(model.StageProbe, "GET "+url, nil, false)
	status, err := r.Prober.Get(ctx, url)
	rec.StatusCode = status
	if err != nil {
		return rec, &ProbeError{URL: url, StatusCode: status, Err: err}
	}
	r.emit(model.StageProbe, fmt.Sprintf("HTTP %d", status), nil, true)

	return rec, nil
}

func (r *Runner) load(ctx context.Context, opts Options) (model.Image, error) {
	if opts.Preflight {
		m, err := archive.Inspect(opts.Archive)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping archive pre-flight")
		} else if _, err := m.Single(opts.Archive); err != nil {
			return model.Image{}, &ImageLoadError{Archive: opts.Archive, Err: err}
		}
	}

	f, err := os.Open(opts.Archive)
	if err != nil {
		return model.Image{}, &ImageLoadError{Archive: opts.Archive, Err: err}
	}
	defer f.Close()

	img, err := r.Loader.LoadImage(ctx, f)
	if err != nil {
		return model.Image{}, &ImageLoadError{Archive: opts.Archive, Err: err}
	}
	return img, nil
}

func (r *Runner) waitReady(ctx context.Context, id string, cond model.WaitCondition) (model.LogEntry, error) {
	ctx, cancel := context.WithCancel(ctx)
	logs, errs, stop := r.Runtime.StreamContainerLogs(ctx, id)

	teeDone := make(chan struct{})
	if r.Observer != nil {
		logs = r.tee(ctx, logs, teeDone)
	} else {
		close(teeDone)
	}

	defer func() {
		cancel()
		stop()
		<-teeDone
	}()

	w := readiness.Waiter{
		Alive: func(ctx context.Context) (bool, int, error) {
			return r.Runtime.ContainerRunning(ctx, id)
		},
	}
	return w.Wait(ctx, logs, errs, cond)
}

// tee forwards log entries to the observer on their way to the waiter. The
// output closes when the input does, so a container exit still ends the wait.
// done is closed once the observer will not be called again.
func (r *Runner) tee(ctx context.Context, in <-chan model.LogEntry, done chan<- struct{}) <-chan model.LogEntry {
	out := make(chan model.LogEntry)
	go func() {
		defer close(done)
		defer close(out)
		for entry := range in {
			e := entry
			r.Observer(model.Event{Time: time.Now(), Stage: model.StageWait, Log: &e})
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// cleanup stops and removes the container with its own deadline so a
// cancelled run still releases it.
func (r *Runner) cleanup(id string) {
	timeout := r.CleanupTimeout
	if timeout <= 0 {
		timeout = defaultCleanupTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	r.emit(model.StageCleanup, "removing container", nil, false)

	stopErr := r.Runtime.StopContainer(ctx, id)
	if stopErr != nil {
		logger.Debug().Err(stopErr).Str("container", id).Msg("stop failed, forcing removal")
	}
	if err := r.Runtime.RemoveContainer(ctx, id); err != nil {
		logger.Warn().Err(err).Str("container", id).Msg("failed to remove container")
		r.emit(model.StageCleanup, "remove failed", err, true)
		return
	}
	r.emit(model.StageCleanup, "container removed", nil, true)
}

func (r *Runner) finish(rec *model.RunRecord, stage model.Stage, err error) {
	rec.Duration = time.Since(rec.StartedAt)
	rec.Outcome = model.OutcomePassed
	if err != nil {
		rec.Outcome = model.OutcomeFailed
		rec.FailedStage = stage
		rec.Error = err.Error()
		r.emit(stage, "failed", err, true)
		logger.Error().Err(err).Str("run_id", rec.ID).Str("stage", string(stage)).Msg("smoke run failed")
	} else {
		logger.Info().Str("run_id", rec.ID).Dur("duration", rec.Duration).Int("status", rec.StatusCode).Msg("smoke run passed")
	}

	if r.Store != nil {
		r.Store.Record(rec)
	}
}

func (r *Runner) emit(stage model.Stage, msg string, err error, done bool) {
	if r.Observer == nil {
		return
	}
	r.Observer(model.Event{
		Time:    time.Now(),
		Stage:   stage,
		Message: msg,
		Err:     err,
		Done:    done,
	})
}

// emitReady reports the end of the wait along with the line that matched.
func (r *Runner) emitReady(entry model.LogEntry) {
	if r.Observer == nil {
		return
	}
	r.Observer(model.Event{
		Time:    time.Now(),
		Stage:   model.StageWait,
		Message: "ready",
		Log:     &entry,
		Done:    true,
	})
}

// Prune removes containers left behind by runs that were killed before
// their cleanup ran.
func Prune(ctx context.Context, rt interface {
	ListContainers(ctx context.Context, labels map[string]string) ([]model.Container, error)
	RemoveContainer(ctx context.Context, id string) error
}) (int, error) {
	containers, err := rt.ListContainers(ctx, map[string]string{docker.LabelManaged: "true"})
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, c := range containers {
		if err := rt.RemoveContainer(ctx, c.ID); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", c.ShortID(), err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
