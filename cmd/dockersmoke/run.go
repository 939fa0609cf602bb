package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rusenback/dockersmoke/internal/config"
	"github.com/rusenback/dockersmoke/internal/docker"
	"github.com/rusenback/dockersmoke/internal/logger"
	"github.com/rusenback/dockersmoke/internal/model"
	"github.com/rusenback/dockersmoke/internal/probe"
	"github.com/rusenback/dockersmoke/internal/smoke"
	"github.com/rusenback/dockersmoke/internal/tui"
	"github.com/spf13/cobra"
)

// eventBuffer bounds the events queued for the TUI; overflow is dropped.
const eventBuffer = 1024

type runFlags struct {
	watch bool
	name  string
}

func newRunCmd(a *app) *cobra.Command {
	var rf runFlags

	cmd := &cobra.Command{
		Use:   "run [ARCHIVE]",
		Short: "Load, start, wait for and probe an image archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Archive = args[0]
			}
			return runSmoke(cmd, a, rf)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&rf.watch, "watch", "w", false, "show a live view of the run")
	flags.StringVar(&rf.name, "name", "", "container name (default: generated by the daemon)")
	flags.StringSliceP("port", "p", []string{"7474", "7687"}, "container ports to publish on ephemeral host ports")
	flags.String("pattern", "Started.", "log line that marks the container ready")
	flags.Bool("regexp", false, "treat --pattern as a regular expression")
	flags.Duration("timeout", config.DefaultWaitTimeout, "how long to wait for the readiness line")
	flags.Int("probe-port", 7474, "container port to probe over HTTP")
	flags.String("probe-path", "/", "path to request")
	flags.Int("expect-status", 200, "HTTP status the probe expects")
	flags.String("loader", config.LoaderAPI, "how to load the archive: api, docker or podman")
	flags.Bool("preflight", true, "count the images in the archive manifest before loading")
	flags.Bool("lock", true, "hold the run lock so only one run drives the daemon")
	bindFlags(a.v, flags, map[string]string{
		"ports":        "port",
		"wait.pattern": "pattern",
		"wait.regexp":  "regexp",
		"wait.timeout": "timeout",
		"probe.port":   "probe-port",
		"probe.path":   "probe-path",
		"probe.status": "expect-status",
		"loader":       "loader",
		"preflight":    "preflight",
		"lock":         "lock",
	})

	return cmd
}

func runSmoke(cmd *cobra.Command, a *app, rf runFlags) error {
	cfg := a.cfg
	if cfg.Archive == "" {
		return errors.New("no image archive given (pass ARCHIVE or set archive in the config)")
	}

	if cfg.Lock {
		path, err := a.lockPath()
		if err != nil {
			return err
		}
		unlock, err := smoke.Lock(path)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.Warn().Err(err).Msg("failed to release run lock")
			}
		}()
	}

	client, err := a.connectDocker()
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := a.openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	prober := probe.New(cfg.Probe.Timeout)
	prober.ExpectStatus = cfg.Probe.Status

	runner := &smoke.Runner{
		Loader:  loaderFor(cfg.Loader, client),
		Runtime: client,
		Prober:  prober,
		Store:   store,
	}
	opts := optionsFrom(cfg, rf)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec *model.RunRecord
	if rf.watch {
		rec, err = runWatched(ctx, runner, opts)
	} else {
		runner.Observer = logEvent
		rec, err = runner.Run(ctx, opts)
	}
	if err != nil {
		if rec != nil && rec.FailedStage != "" {
			return fmt.Errorf("smoke run %s failed at %s: %w", rec.ID, rec.FailedStage, err)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "PASS %s: HTTP %d from host port %d in %s\n",
		filepath.Base(opts.Archive), rec.StatusCode, rec.HostPort, rec.Duration.Round(time.Millisecond))
	return nil
}

func loaderFor(kind string, client *docker.Client) smoke.ImageLoader {
	switch kind {
	case config.LoaderDocker, config.LoaderPodman:
		return docker.NewBinaryLoader(kind, client)
	default:
		return client
	}
}

func optionsFrom(cfg *config.Config, rf runFlags) smoke.Options {
	opts := smoke.DefaultOptions()
	opts.Archive = cfg.Archive
	opts.Ports = cfg.Ports
	opts.ProbePort = cfg.Probe.Port
	opts.ProbeHost = cfg.Probe.Host
	opts.ProbePath = cfg.Probe.Path
	opts.Wait = model.WaitCondition{
		Pattern:      cfg.Wait.Pattern,
		Regexp:       cfg.Wait.Regexp,
		Timeout:      cfg.Wait.Timeout,
		PollInterval: cfg.Wait.PollInterval,
	}
	opts.User = cfg.User
	opts.Name = rf.name
	opts.Preflight = cfg.Preflight
	return opts
}

// logEvent reports stage progress on the console; container output only
// at debug level.
func logEvent(e model.Event) {
	switch {
	case e.Log != nil && e.Done:
		logger.Info().Str("stage", string(e.Stage)).Str("line", e.Log.Message).Msg(e.Message)
	case e.Log != nil:
		logger.Debug().Str("stream", e.Log.Stream).Msg(e.Log.Message)
	case e.Err != nil:
		// the runner logs the failure itself
	default:
		logger.Info().Str("stage", string(e.Stage)).Msg(e.Message)
	}
}

// runWatched runs the scenario behind the live view. Quitting the view
// cancels the run; the result is still awaited so cleanup completes.
func runWatched(ctx context.Context, runner *smoke.Runner, opts smoke.Options) (*model.RunRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan model.Event, eventBuffer)
	runner.Observer = func(e model.Event) {
		select {
		case events <- e:
		default:
		}
	}

	run := startRun(func() (*model.RunRecord, error) {
		return runner.Run(ctx, opts)
	})

	logger.SetInteractiveMode(true)
	defer logger.SetInteractiveMode(false)

	_, err := tea.NewProgram(tui.NewModel(filepath.Base(opts.Archive), events, run.results, cancel), tea.WithAltScreen()).Run()

	// The view may quit before the run ends (signal, program error).
	cancel()
	res := run.wait()
	if err != nil {
		return res.Record, fmt.Errorf("error running program: %w", err)
	}
	return res.Record, res.Err
}

// backgroundRun is a run executing in its own goroutine. results feeds the
// view; wait is independent of whether the view consumed it.
type backgroundRun struct {
	results chan tui.Result
	done    chan struct{}
	result  tui.Result
}

func startRun(run func() (*model.RunRecord, error)) *backgroundRun {
	b := &backgroundRun{
		results: make(chan tui.Result, 1),
		done:    make(chan struct{}),
	}
	go func() {
		rec, err := run()
		b.result = tui.Result{Record: rec, Err: err}
		b.results <- b.result
		close(b.done)
	}()
	return b
}

// wait blocks until the run has finished and returns its result.
func (b *backgroundRun) wait() tui.Result {
	<-b.done
	return b.result
}
