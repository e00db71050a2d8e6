// Package daemonrun wires configuration, logging, storage, and the pipeline
// stages into a running linotyped process.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"log/slog"

	"linotype/internal/config"
	"linotype/internal/convert"
	"linotype/internal/daemon"
	"linotype/internal/illustrate"
	"linotype/internal/logging"
	"linotype/internal/publish"
	"linotype/internal/queue"
	"linotype/internal/submission"
	"linotype/internal/targets"
	"linotype/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	ConfigPath string
	LogLevel   string
}

// Run starts the linotype daemon runtime loop and blocks until the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, opts Options) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "linotype.log")
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "linotyped.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	directory, err := targets.Load(cfg.Paths.TargetsPath)
	if err != nil {
		logger.Error("load target directory", logging.Error(err))
		return err
	}

	intake := submission.NewIntake(store, directory, cfg.Workflow.MaxAttempts, logger)
	manager := workflow.NewManager(cfg, store, logger, buildStages(cfg, store, logger, directory))

	d, err := daemon.New(cfg, store, logger, intake, manager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return err
	}

	<-signalCtx.Done()
	logger.Info("linotyped shutting down")
	return nil
}

func buildStages(cfg *config.Config, store *queue.Store, logger *slog.Logger, directory *targets.Directory) workflow.StageSet {
	return workflow.StageSet{
		queue.StageConvert:    convert.NewConverter(cfg, store, logger),
		queue.StageIllustrate: illustrate.NewIllustrator(cfg, store, logger),
		queue.StagePublish:    publish.NewPublisher(cfg, store, logger, directory),
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
