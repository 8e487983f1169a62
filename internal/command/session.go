package command

import (
	"context"
	"errors"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/spf13/cobra"
)

// sessionFunc runs one front-end session until it returns. notice is shown to
// the user once when the session starts.
type sessionFunc func(ctx context.Context, notice string) error

// configEvents is the part of core.ConfigWatcher the supervisor listens to.
type configEvents interface {
	Changes() <-chan struct{}
	Errors() <-chan error
}

// runSession supervises front-end sessions. A session that ends with
// engine.ErrReload, or is interrupted by a config file change, is rebuilt from
// persisted state. Any other return ends the supervisor.
func runSession(cmd *cobra.Command, cc *CommandContext, run sessionFunc) error {
	watcher, err := core.NewConfigWatcher(cc.ConfigPath, 0)
	if err != nil {
		cc.Logger.Warn().Err(err).Str("path", cc.ConfigPath).Msg("config watcher unavailable")
		return superviseSessions(cmd, cc, nil, run)
	}
	defer watcher.Close()
	return superviseSessions(cmd, cc, watcher, run)
}

func superviseSessions(cmd *cobra.Command, cc *CommandContext, watcher configEvents, run sessionFunc) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	notice := ""
	for {
		before, err := db.LoadMaintenance(cc.Store)
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(parent)
		configChanged := make(chan struct{}, 1)
		watchDone := make(chan struct{})
		if watcher != nil {
			go func() {
				defer close(watchDone)
				watchConfig(runCtx, watcher, configChanged, cancel, cc)
			}()
		} else {
			close(watchDone)
		}

		err = run(runCtx, notice)
		cancel()
		<-watchDone
		notice = ""

		select {
		case <-configChanged:
			if reloadErr := cc.ReloadConfig(cmd); reloadErr != nil {
				cc.Logger.Error().Err(reloadErr).Msg("reload config")
			} else {
				cc.Logger.Info().Str("backend", cc.Config.BackendURL).Msg("config reloaded")
			}
			continue
		default:
		}

		if parent.Err() != nil {
			return nil
		}
		if !errors.Is(err, engine.ErrReload) {
			return err
		}

		after, loadErr := db.LoadMaintenance(cc.Store)
		if loadErr != nil {
			return loadErr
		}
		notice = maintenanceNotice(cc, before, after)
		cc.Logger.Info().Str("maintenance", string(after)).Msg("session reload")
	}
}

func watchConfig(ctx context.Context, watcher configEvents, changed chan<- struct{}, cancel context.CancelFunc, cc *CommandContext) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-watcher.Errors():
			cc.Logger.Warn().Err(err).Msg("config watcher")
		case <-watcher.Changes():
			changed <- struct{}{}
			cancel()
			return
		}
	}
}

func maintenanceNotice(cc *CommandContext, before, after types.MaintenanceState) string {
	if before == after {
		return ""
	}
	settings, err := db.LoadSettings(cc.Store)
	if err != nil {
		return ""
	}
	text := core.T(settings.Language)
	if after == types.StateMaintenance {
		return text.MaintenanceEnabled
	}
	return text.MaintenanceDisabled
}
