package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
)

// Options configure the dashboard.
type Options struct {
	Context context.Context
	// Engine options; Publish is replaced by the dashboard.
	Engine   engine.Options
	Store    db.Store
	Username string
	Interval time.Duration
	// ExportDir receives transcripts saved with ctrl+s.
	ExportDir string
	// Notice is shown as a toast right after start.
	Notice string
}

// Run starts the dashboard. It returns engine.ErrReload when a control
// command asked for the session to be rebuilt.
func Run(opts Options) error {
	model, err := NewModel(opts)
	if err != nil {
		return err
	}
	fmt.Printf("\033]0;%s\007", engine.NotificationTitle)

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(model.ctx))
	_, err = program.Run()
	model.Close()
	if model.reload {
		return engine.ErrReload
	}
	return err
}

type viewMode int

const (
	viewChat viewMode = iota
	viewSettings
)

// snapshotBox hands the latest published snapshot from the poll goroutine to
// the update loop.
type snapshotBox struct {
	mu   sync.Mutex
	snap *engine.Snapshot
}

func (b *snapshotBox) put(s engine.Snapshot) {
	b.mu.Lock()
	b.snap = &s
	b.mu.Unlock()
}

func (b *snapshotBox) take() *engine.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.snap
	b.snap = nil
	return s
}

// Model implements the dashboard UI.
type Model struct {
	ctx         context.Context
	engine      *engine.Engine
	store       db.Store
	box         *snapshotBox
	username    string
	settings    types.Settings
	text        core.Strings
	palette     palette
	maintenance bool
	interval    time.Duration
	exportDir   string

	mode          viewMode
	settingsIndex int
	snapshot      engine.Snapshot
	loaded        bool
	viewport      viewport.Model
	input         textarea.Model
	fileMode      bool
	sending       bool
	toast         toast
	toastSeq      int
	width         int
	height        int
	reload        bool
	pendingTicks  int
	zoneManager   *zone.Manager
}

// NewModel hydrates the dashboard and its engine from the store.
func NewModel(opts Options) (*Model, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("chat: state store not configured")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	settings, err := db.LoadSettings(opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	state, err := db.LoadMaintenance(opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load maintenance: %w", err)
	}
	active, err := db.LoadActiveChannel(opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load active channel: %w", err)
	}

	box := &snapshotBox{}
	engOpts := opts.Engine
	engOpts.Store = opts.Store
	engOpts.Publish = box.put
	engOpts.Language = settings.Language
	engOpts.SoundEnabled = settings.SoundEnabled
	engOpts.Active = active
	eng, err := engine.New(engOpts)
	if err != nil {
		return nil, err
	}

	username := opts.Username
	if username == "" {
		username = settings.Username
	}
	text := core.T(settings.Language)
	m := &Model{
		ctx:         ctx,
		engine:      eng,
		store:       opts.Store,
		box:         box,
		username:    username,
		settings:    settings,
		text:        text,
		palette:     paletteFor(settings.Theme),
		maintenance: state == types.StateMaintenance,
		interval:    opts.Interval,
		exportDir:   opts.ExportDir,
		viewport:    viewport.New(0, 0),
		input:       newInput(text.Placeholder),
		zoneManager: zone.New(),
	}
	if m.interval <= 0 {
		m.interval = engine.DefaultInterval
	}
	if opts.Notice != "" {
		m.toast = toast{text: opts.Notice, kind: toastInfo}
	}
	return m, nil
}

func newInput(placeholder string) textarea.Model {
	input := textarea.New()
	input.Placeholder = placeholder
	input.ShowLineNumbers = false
	input.Prompt = "┃ "
	input.SetHeight(2)
	input.CharLimit = 0
	input.KeyMap.InsertNewline.SetKeys("shift+enter", "ctrl+j")
	input.Focus()
	return input
}

// Engine exposes the session engine.
func (m *Model) Engine() *engine.Engine {
	return m.engine
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.startPolling(), textarea.Blink}
	if m.toast.text != "" {
		cmds = append(cmds, m.expireToast())
	}
	return tea.Batch(cmds...)
}

func (m *Model) Close() {
	if m.zoneManager != nil {
		m.zoneManager.Close()
	}
}
