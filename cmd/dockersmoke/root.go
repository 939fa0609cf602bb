package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rusenback/dockersmoke/internal/config"
	"github.com/rusenback/dockersmoke/internal/docker"
	"github.com/rusenback/dockersmoke/internal/logger"
	"github.com/rusenback/dockersmoke/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app carries state shared by all commands
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:   "dockersmoke",
		Short: "Smoke test a container image archive",
		Long: `dockersmoke loads an image archive into the Docker daemon, starts it with
ephemeral host ports, waits for a readiness line in its logs and probes
its HTTP port.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./dockersmoke.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-file", "", "also write JSON logs to this file (rotated)")
	flags.String("data-dir", "", "directory for run history and the run lock (default ~/.dockersmoke)")
	bindFlags(a.v, flags, map[string]string{
		"log.debug": "debug",
		"log.file":  "log-file",
		"data_dir":  "data-dir",
	})

	cmd.AddCommand(
		newRunCmd(a),
		newInspectCmd(a),
		newHistoryCmd(a),
		newPruneCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// bindFlags binds each config key to its flag.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.InitWithFile(cfg.Log.Debug, logger.FileConfig{Path: cfg.Log.File}); err != nil {
		return err
	}
	logger.Debug().Str("user", cfg.User).Str("loader", cfg.Loader).Msg("configuration loaded")
	return nil
}

func (a *app) dataDir() (string, error) {
	if a.cfg.DataDir != "" {
		return a.cfg.DataDir, nil
	}
	return storage.DefaultDataDir()
}

func (a *app) lockPath() (string, error) {
	dir, err := a.dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "run.lock"), nil
}

func (a *app) openStorage() (*storage.Storage, error) {
	dir, err := a.dataDir()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStorage(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func (a *app) connectDocker() (*docker.Client, error) {
	cfg := docker.ConfigFromEnv()
	if a.cfg.Docker.Host != "" {
		cfg.Host = a.cfg.Docker.Host
	}
	if a.cfg.Docker.Timeout > 0 {
		cfg.Timeout = a.cfg.Docker.Timeout
	}

	client, err := docker.NewClient(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Make sure Docker is running:")
		fmt.Fprintln(os.Stderr, "  sudo systemctl start docker")
		fmt.Fprintln(os.Stderr, "  sudo usermod -aG docker $USER")
		return nil, fmt.Errorf("failed to connect to Docker at %s: %w", cfg.Host, err)
	}
	return client, nil
}
