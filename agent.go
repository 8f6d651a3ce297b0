package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"markestedt/keyguard/config"
	"markestedt/keyguard/guard"
	"markestedt/keyguard/platform"
	"markestedt/keyguard/rules"
	"markestedt/keyguard/storage"
	"markestedt/keyguard/systray"
	"markestedt/keyguard/web"
)

// Agent wires the controller to the journal, the control server and the
// tray menu
type Agent struct {
	cfg    *config.Config
	log    *slog.Logger
	ctrl   *guard.Controller
	db     *storage.DB
	server *web.Server
	tray   *systray.SystrayManager
}

// NewAgent creates a new agent instance
func NewAgent(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	a := &Agent{cfg: cfg, log: logger}

	set := rules.NewSet()
	hook := platform.NewHook(set, platform.Options{
		StartupTimeout:  cfg.Hook.StartupTimeout(),
		ShutdownTimeout: cfg.Hook.ShutdownTimeout(),
	})

	opts := []guard.Option{guard.WithLogger(logger)}
	if cfg.Journal.Enabled {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, err
		}
		db, err := storage.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.db = db
		opts = append(opts, guard.WithJournal(db))

		if cfg.Journal.RetentionDays > 0 {
			if n, err := db.Prune(cfg.Journal.RetentionDays); err != nil {
				logger.Warn("Failed to prune journal", "error", err)
			} else if n > 0 {
				logger.Info("Pruned journal", "entries", n)
			}
		}
	}

	a.ctrl = guard.New(set, hook, opts...)

	port := 0
	if cfg.Control.Enabled {
		port = cfg.Control.Port
		a.server = web.NewServer(a.ctrl, a.db, port)
		a.ctrl.Subscribe(a.server.BroadcastStatus)
	}

	if cfg.Tray.Enabled {
		a.tray = systray.NewSystrayManager(a.ctrl, port, nil)
		a.ctrl.Subscribe(a.tray.Update)
	}

	return a, nil
}

// Run serves until ctx is done, the tray Quit item is clicked, or the
// control server fails. The hook is always removed on the way out.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.shutdown()

	st := a.ctrl.Status()
	a.log.Info("Keyguard started", "platform", st.Platform, "control", a.server != nil, "tray", a.tray != nil)

	if a.cfg.Hook.LockOnStart {
		if _, err := a.ctrl.DisableAll(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	var quit <-chan struct{}
	if a.tray != nil {
		quit = a.tray.WaitForQuit()
	}

	var runErr error
	wait := func() {
		select {
		case <-ctx.Done():
		case <-quit:
		case err := <-errCh:
			runErr = err
		}
	}

	if a.tray == nil {
		wait()
		return runErr
	}

	// the tray owns the calling thread until it quits
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
		a.tray.Stop()
	}()
	a.tray.Run()
	cancel()
	<-done
	return runErr
}

// Controller exposes the agent's controller
func (a *Agent) Controller() *guard.Controller {
	return a.ctrl
}

func (a *Agent) shutdown() {
	if a.ctrl.IsActive() {
		a.ctrl.Stop()
	}

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Warn("Control server did not shut down cleanly", "error", err)
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close journal", "error", err)
		}
	}
}
