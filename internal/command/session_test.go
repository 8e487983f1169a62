package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newSessionContext(t *testing.T) (*cobra.Command, *CommandContext) {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.OpenStateDB(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	cc := &CommandContext{
		Config:     &core.Config{BackendURL: core.DefaultBackendURL},
		ConfigPath: filepath.Join(dir, "config.json"),
		Store:      db.NewSQLStore(conn),
		Logger:     zerolog.Nop(),
	}
	t.Cleanup(cc.Close)
	if err := db.SaveLanguage(cc.Store, core.LangEnglish); err != nil {
		t.Fatalf("save language: %v", err)
	}

	cmd := NewRootCmd("test")
	cmd.SetContext(context.Background())
	return cmd, cc
}

func TestRunSessionRebuildsOnReload(t *testing.T) {
	cmd, cc := newSessionContext(t)

	var notices []string
	calls := 0
	err := runSession(cmd, cc, func(ctx context.Context, notice string) error {
		calls++
		notices = append(notices, notice)
		switch calls {
		case 1:
			if err := db.SaveMaintenance(cc.Store, true); err != nil {
				return err
			}
			return engine.ErrReload
		case 2:
			return engine.ErrReload
		case 3:
			if err := db.SaveMaintenance(cc.Store, false); err != nil {
				return err
			}
			return engine.ErrReload
		}
		return nil
	})
	if err != nil {
		t.Fatalf("runSession: %v", err)
	}
	want := []string{"", "Maintenance mode enabled", "", "Maintenance mode disabled"}
	if len(notices) != len(want) {
		t.Fatalf("notices = %q, want %q", notices, want)
	}
	for i := range want {
		if notices[i] != want[i] {
			t.Fatalf("notices = %q, want %q", notices, want)
		}
	}
}

func TestRunSessionReturnsFrontEndError(t *testing.T) {
	cmd, cc := newSessionContext(t)
	boom := errors.New("boom")

	err := runSession(cmd, cc, func(context.Context, string) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRunSessionStopsWhenParentCanceled(t *testing.T) {
	cmd, cc := newSessionContext(t)
	ctx, cancel := context.WithCancel(context.Background())
	cmd.SetContext(ctx)

	err := runSession(cmd, cc, func(runCtx context.Context, _ string) error {
		cancel()
		<-runCtx.Done()
		return runCtx.Err()
	})
	if err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestRunSessionReloadsOnConfigChange(t *testing.T) {
	cmd, cc := newSessionContext(t)
	if err := core.WriteConfig(cc.ConfigPath, core.Config{Version: 1}); err != nil {
		t.Fatalf("write config: %v", err)
	}

	calls := 0
	err := runSession(cmd, cc, func(ctx context.Context, notice string) error {
		calls++
		if calls > 1 {
			return nil
		}
		data := []byte(`{"version":1,"backend_url":"http://127.0.0.1:9999"}` + "\n")
		if err := os.WriteFile(cc.ConfigPath, data, 0o600); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("config change not observed")
		}
	})
	if err != nil {
		t.Fatalf("runSession: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a rebuilt session, got %d calls", calls)
	}
	if cc.Config.BackendURL != "http://127.0.0.1:9999" && os.Getenv("VLIZ_BACKEND_URL") == "" {
		t.Fatalf("config not reloaded: %s", cc.Config.BackendURL)
	}
}

type fakeConfigEvents struct {
	changes chan struct{}
	errs    chan error
}

func (f *fakeConfigEvents) Changes() <-chan struct{} { return f.changes }
func (f *fakeConfigEvents) Errors() <-chan error     { return f.errs }

func TestConfigChangeRacingReloadIsNotLost(t *testing.T) {
	t.Setenv("VLIZ_BACKEND_URL", "")
	t.Setenv("BACKEND_URL", "")
	cmd, cc := newSessionContext(t)
	events := &fakeConfigEvents{changes: make(chan struct{}, 1), errs: make(chan error)}

	calls := 0
	err := superviseSessions(cmd, cc, events, func(ctx context.Context, _ string) error {
		calls++
		switch calls {
		case 1:
			data := []byte(`{"version":1,"backend_url":"http://127.0.0.1:9998"}` + "\n")
			if err := os.WriteFile(cc.ConfigPath, data, 0o600); err != nil {
				return err
			}
			events.changes <- struct{}{}
			return engine.ErrReload
		case 2:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
				return nil
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("superviseSessions: %v", err)
	}
	if cc.Config.BackendURL != "http://127.0.0.1:9998" {
		t.Fatalf("config change lost: backend = %s after %d sessions", cc.Config.BackendURL, calls)
	}
}
