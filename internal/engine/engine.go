package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamavenir/vliz/internal/backend"
	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/rs/zerolog"
)

var (
	// ErrReload asks the session owner to rebuild everything from persisted state.
	ErrReload = errors.New("session reload requested")
	// ErrSendFailed wraps any append failure.
	ErrSendFailed = errors.New("send failed")
	// ErrEmptyMessage rejects blank payloads before touching the network.
	ErrEmptyMessage = errors.New("message is empty")
)

// Snapshot is the classified view of the log published after each tick.
type Snapshot struct {
	Total   int             `json:"total"`
	Support []types.Message `json:"support"`
	Public  []types.Message `json:"public"`
}

// Messages returns the sequence for channel.
func (s Snapshot) Messages(channel types.Channel) []types.Message {
	if channel == types.ChannelPublic {
		return s.Public
	}
	return s.Support
}

// PollResult describes one tick.
type PollResult struct {
	Skipped  bool            `json:"skipped,omitempty"`
	Fetched  bool            `json:"fetched"`
	Total    int             `json:"total"`
	Control  types.Control   `json:"control,omitempty"`
	Reload   bool            `json:"reload,omitempty"`
	Notified []types.Channel `json:"notified,omitempty"`
}

// Options configure an Engine.
type Options struct {
	Log          backend.Log
	Store        db.Store
	Notifier     Notifier
	Publish      func(Snapshot)
	Logger       zerolog.Logger
	Language     string
	Active       types.Channel
	SoundEnabled bool
}

// Engine is the message synchronization engine for one session.
type Engine struct {
	log      backend.Log
	store    db.Store
	notifier Notifier
	publish  func(Snapshot)
	logger   zerolog.Logger
	language string

	mu           sync.Mutex
	saveMu       sync.Mutex
	state        SyncState
	active       types.Channel
	soundEnabled bool
	inFlight     atomic.Bool
}

// New hydrates an engine from the persisted local state.
func New(opts Options) (*Engine, error) {
	if opts.Log == nil {
		return nil, fmt.Errorf("engine: message log not configured")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: state store not configured")
	}
	state, err := LoadSyncState(opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if !opts.Active.Valid() {
		opts.Active = types.ChannelSupport
	}
	return &Engine{
		log:          opts.Log,
		store:        opts.Store,
		notifier:     opts.Notifier,
		publish:      opts.Publish,
		logger:       opts.Logger,
		language:     opts.Language,
		state:        state,
		active:       opts.Active,
		soundEnabled: opts.SoundEnabled,
	}, nil
}

// State returns a copy of the sync bookkeeping.
func (e *Engine) State() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// SetActiveChannel changes which channel is visible for notification purposes.
func (e *Engine) SetActiveChannel(channel types.Channel) {
	if !channel.Valid() {
		return
	}
	e.mu.Lock()
	e.active = channel
	e.mu.Unlock()
}

// ActiveChannel returns the visible channel.
func (e *Engine) ActiveChannel() types.Channel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// SetSoundEnabled toggles notifications and the audio cue.
func (e *Engine) SetSoundEnabled(enabled bool) {
	e.mu.Lock()
	e.soundEnabled = enabled
	e.mu.Unlock()
}

// SetLanguage changes the language of notification text.
func (e *Engine) SetLanguage(lang string) {
	e.mu.Lock()
	e.language = lang
	e.mu.Unlock()
}

// IsMine reports whether this client sent text.
func (e *Engine) IsMine(text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.state.SentMessages[strings.TrimSpace(text)]
	return ok
}

// Poll runs one synchronization tick. Fetch failures are logged and treated
// as no update; the only error returned is context cancellation. A poll that
// starts while another is in flight is skipped.
func (e *Engine) Poll(ctx context.Context) (PollResult, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return PollResult{Skipped: true}, nil
	}
	defer e.inFlight.Store(false)

	snapshot, err := e.log.Fetch(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return PollResult{}, ctxErr
		}
		e.logger.Warn().Err(err).Msg("fetch messages failed; skipping tick")
		return PollResult{}, nil
	}
	return e.apply(snapshot), nil
}

func (e *Engine) apply(snapshot []types.RawMessage) PollResult {
	e.mu.Lock()
	total := len(snapshot)
	result := PollResult{Fetched: true, Total: total}

	if !e.state.MaintenanceProcessed && total > e.state.LastProcessedCount {
		fresh := snapshot[e.state.LastProcessedCount:]
		if control, ok := core.ControlIn(fresh); ok {
			e.state.MaintenanceProcessed = true
			e.state.LastProcessedCount = total
			e.mu.Unlock()

			on := control == types.ControlMaintenanceOn
			if err := db.SaveMaintenance(e.store, on); err != nil {
				e.logger.Error().Err(err).Msg("persist maintenance flag")
			}
			if err := db.SaveLastMessageCount(e.store, total); err != nil {
				e.logger.Error().Err(err).Msg("persist last message count")
			}
			e.logger.Info().Str("control", string(control)).Int("count", total).Msg("maintenance command received; reloading")
			result.Control = control
			result.Reload = true
			return result
		}
	}

	e.state.LastProcessedCount = total
	support, public := core.Partition(snapshot)

	var notify []types.Channel
	if ShouldNotify(e.active == types.ChannelSupport, len(support), e.state.PreviousSupportCount, e.soundEnabled) {
		notify = append(notify, types.ChannelSupport)
	}
	if ShouldNotify(e.active == types.ChannelPublic, len(public), e.state.PreviousPublicCount, e.soundEnabled) {
		notify = append(notify, types.ChannelPublic)
	}
	e.state.PreviousSupportCount = len(support)
	e.state.PreviousPublicCount = len(public)
	lang := e.language
	publish := e.publish
	e.mu.Unlock()

	if err := db.SaveLastMessageCount(e.store, total); err != nil {
		e.logger.Error().Err(err).Msg("persist last message count")
	}
	for _, channel := range notify {
		e.notifyArrival(channel, lang)
	}
	result.Notified = notify

	if publish != nil {
		publish(Snapshot{Total: total, Support: support, Public: public})
	}
	return result
}

func (e *Engine) notifyArrival(channel types.Channel, lang string) {
	if err := e.notifier.Beep(); err != nil {
		e.logger.Debug().Err(err).Msg("audio cue failed")
	}
	if err := e.notifier.Notify(NotificationTitle, core.T(lang).NewMessage); err != nil {
		e.logger.Debug().Err(err).Msg("desktop notification failed")
	}
	e.logger.Debug().Str("channel", string(channel)).Msg("new message notification")
}

// Send appends a text payload to channel. The trimmed payload is remembered
// as self-sent only after the backend accepts it.
func (e *Engine) Send(ctx context.Context, payload string, channel types.Channel) error {
	text := strings.TrimSpace(payload)
	if text == "" {
		return ErrEmptyMessage
	}
	return e.sendWire(ctx, core.WirePayload(text, channel), text, channel)
}

// SendFile appends a file envelope to channel. The attachment label is the
// self-sent key.
func (e *Engine) SendFile(ctx context.Context, att *types.Attachment, channel types.Channel) error {
	if att == nil || att.Name == "" {
		return ErrEmptyMessage
	}
	wire := core.WirePayload(core.FileEnvelope(att.Name, att.DataURI), channel)
	return e.sendWire(ctx, wire, core.FileLabel(att.Name), channel)
}

func (e *Engine) sendWire(ctx context.Context, wire, key string, channel types.Channel) error {
	if !channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrSendFailed, channel)
	}
	if err := e.log.Append(ctx, wire); err != nil {
		e.logger.Error().Err(err).Str("channel", string(channel)).Msg("send message failed")
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	// saveMu orders persists so a later clone is never overwritten by an
	// earlier one.
	e.saveMu.Lock()
	e.mu.Lock()
	e.state.SentMessages[key] = struct{}{}
	sent := e.state.clone().SentMessages
	sound := e.soundEnabled
	e.mu.Unlock()
	if err := db.SaveSentMessages(e.store, sent); err != nil {
		e.logger.Error().Err(err).Msg("persist sent messages")
	}
	e.saveMu.Unlock()

	if sound {
		if err := e.notifier.Beep(); err != nil {
			e.logger.Debug().Err(err).Msg("audio cue failed")
		}
	}
	e.logger.Info().Str("channel", string(channel)).Int("bytes", len(wire)).Msg("message sent")
	return nil
}

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Run polls on a fixed cadence until ctx is canceled or a control command
// requests a reload (ErrReload). Failed ticks never end the loop. Ticks that
// fire while a poll is running are dropped by the ticker.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := e.Poll(ctx)
		if err != nil {
			return err
		}
		if result.Reload {
			return ErrReload
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
