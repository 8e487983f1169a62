package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adamavenir/vliz/internal/backend"
	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/rs/zerolog"
)

type fakeLog struct {
	mu        sync.Mutex
	messages  []string
	fetchErr  error
	appendErr error
	fetches   int
}

func (f *fakeLog) Fetch(ctx context.Context) ([]types.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return []types.RawMessage{}, f.fetchErr
	}
	return append([]types.RawMessage(nil), f.messages...), nil
}

func (f *fakeLog) Append(ctx context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeLog) push(msgs ...string) {
	f.mu.Lock()
	f.messages = append(f.messages, msgs...)
	f.mu.Unlock()
}

type recordingNotifier struct {
	mu       sync.Mutex
	beeps    int
	notified []string
}

func (r *recordingNotifier) Beep() error {
	r.mu.Lock()
	r.beeps++
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) Notify(title, body string) error {
	r.mu.Lock()
	r.notified = append(r.notified, title+": "+body)
	r.mu.Unlock()
	return nil
}

func newTestEngine(t *testing.T, log backend.Log, store db.Store, notifier Notifier) *Engine {
	t.Helper()
	eng, err := New(Options{
		Log:          log,
		Store:        store,
		Notifier:     notifier,
		Logger:       zerolog.Nop(),
		Language:     "en",
		Active:       types.ChannelSupport,
		SoundEnabled: true,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func mustPoll(t *testing.T, eng *Engine) PollResult {
	t.Helper()
	result, err := eng.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	return result
}

func TestShouldNotifyTruthTable(t *testing.T) {
	for mask := 0; mask < 16; mask++ {
		active := mask&1 != 0
		grew := mask&2 != 0
		hadPrevious := mask&4 != 0
		sound := mask&8 != 0

		previous := 0
		if hadPrevious {
			previous = 3
		}
		next := previous
		if grew {
			next = previous + 1
		}
		want := active && grew && hadPrevious && sound
		if got := ShouldNotify(active, next, previous, sound); got != want {
			t.Errorf("ShouldNotify(active=%v, %d, %d, sound=%v) = %v, want %v", active, next, previous, sound, got, want)
		}
	}
}

func TestLastProcessedCountTracksLog(t *testing.T) {
	log := &fakeLog{}
	store := db.NewMemoryStore()
	eng := newTestEngine(t, log, store, nil)

	for i := 0; i < 5; i++ {
		log.push(fmt.Sprintf("msg %d", i))
		result := mustPoll(t, eng)
		if result.Total != i+1 || eng.State().LastProcessedCount != i+1 {
			t.Fatalf("after %d appends: total=%d last=%d", i+1, result.Total, eng.State().LastProcessedCount)
		}
	}
	count, err := db.LoadLastMessageCount(store)
	if err != nil || count != 5 {
		t.Fatalf("persisted count = %d, %v", count, err)
	}
}

func TestPollPublishesPartitionedSnapshot(t *testing.T) {
	log := &fakeLog{messages: []string{"hello", "[PUBLIC]hi all"}}
	var got Snapshot
	eng, err := New(Options{
		Log:     log,
		Store:   db.NewMemoryStore(),
		Publish: func(s Snapshot) { got = s },
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	mustPoll(t, eng)

	if got.Total != 2 || len(got.Support) != 1 || len(got.Public) != 1 {
		t.Fatalf("snapshot = %+v", got)
	}
	if got.Support[0].Text != "hello" || got.Public[0].Text != "hi all" {
		t.Fatalf("texts = %q, %q", got.Support[0].Text, got.Public[0].Text)
	}
	if got.Messages(types.ChannelPublic)[0].Index != 1 {
		t.Fatalf("public index = %d", got.Public[0].Index)
	}
}

func TestMaintenanceOnTriggersReload(t *testing.T) {
	log := &fakeLog{}
	store := db.NewMemoryStore()
	eng := newTestEngine(t, log, store, nil)

	if result := mustPoll(t, eng); result.Reload {
		t.Fatal("empty log should not reload")
	}

	log.push(core.MaintenanceOnText)
	result := mustPoll(t, eng)
	if !result.Reload || result.Control != types.ControlMaintenanceOn {
		t.Fatalf("result = %+v", result)
	}
	if !eng.State().MaintenanceProcessed {
		t.Fatal("expected maintenance processed")
	}
	state, err := db.LoadMaintenance(store)
	if err != nil || state != types.StateMaintenance {
		t.Fatalf("maintenance = %v, %v", state, err)
	}
	count, _ := db.LoadLastMessageCount(store)
	if count != 1 {
		t.Fatalf("count = %d", count)
	}

	// A rebuilt session does not rescan what was already processed.
	next := newTestEngine(t, log, store, nil)
	if result := mustPoll(t, next); result.Reload {
		t.Fatalf("reloaded session re-triggered: %+v", result)
	}
}

func TestMaintenanceOffAfterOn(t *testing.T) {
	log := &fakeLog{messages: []string{core.MaintenanceOnText}}
	store := db.NewMemoryStore()
	eng := newTestEngine(t, log, store, nil)
	if result := mustPoll(t, eng); !result.Reload {
		t.Fatalf("expected reload, got %+v", result)
	}

	eng = newTestEngine(t, log, store, nil)
	log.push("  " + core.MaintenanceOffText + " ")
	result := mustPoll(t, eng)
	if !result.Reload || result.Control != types.ControlMaintenanceOff {
		t.Fatalf("result = %+v", result)
	}
	state, _ := db.LoadMaintenance(store)
	if state != types.StateNormal {
		t.Fatalf("maintenance = %v", state)
	}
}

func TestOnWinsWhenBothArriveTogether(t *testing.T) {
	log := &fakeLog{messages: []string{core.MaintenanceOffText, core.MaintenanceOnText}}
	store := db.NewMemoryStore()
	eng := newTestEngine(t, log, store, nil)
	result := mustPoll(t, eng)
	if result.Control != types.ControlMaintenanceOn {
		t.Fatalf("control = %q", result.Control)
	}
}

func TestControlOnlyHandledOncePerSession(t *testing.T) {
	log := &fakeLog{}
	store := db.NewMemoryStore()
	var published int
	eng, err := New(Options{Log: log, Store: store, Publish: func(Snapshot) { published++ }, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	log.push(core.MaintenanceOnText)
	mustPoll(t, eng)

	log.push(core.MaintenanceOffText, "hi")
	result := mustPoll(t, eng)
	if result.Reload {
		t.Fatalf("second control in same session should be ignored: %+v", result)
	}
	if published != 1 || result.Total != 3 {
		t.Fatalf("published=%d total=%d", published, result.Total)
	}
}

func TestFirstPollNeverNotifies(t *testing.T) {
	log := &fakeLog{messages: []string{"a", "b", "[PUBLIC]c"}}
	notifier := &recordingNotifier{}
	eng := newTestEngine(t, log, db.NewMemoryStore(), notifier)

	result := mustPoll(t, eng)
	if len(result.Notified) != 0 || notifier.beeps != 0 {
		t.Fatalf("first poll notified: %+v beeps=%d", result, notifier.beeps)
	}

	log.push("d")
	result = mustPoll(t, eng)
	if len(result.Notified) != 1 || result.Notified[0] != types.ChannelSupport {
		t.Fatalf("notified = %v", result.Notified)
	}
	if len(notifier.notified) != 1 || notifier.notified[0] != NotificationTitle+": New message received" {
		t.Fatalf("notifications = %v", notifier.notified)
	}

	// Hidden channel growth is silent.
	log.push("[PUBLIC]e")
	result = mustPoll(t, eng)
	if len(result.Notified) != 0 {
		t.Fatalf("hidden channel notified: %v", result.Notified)
	}

	eng.SetActiveChannel(types.ChannelPublic)
	log.push("[PUBLIC]f")
	result = mustPoll(t, eng)
	if len(result.Notified) != 1 || result.Notified[0] != types.ChannelPublic {
		t.Fatalf("notified = %v", result.Notified)
	}

	eng.SetSoundEnabled(false)
	log.push("[PUBLIC]g")
	if result = mustPoll(t, eng); len(result.Notified) != 0 {
		t.Fatalf("muted engine notified: %v", result.Notified)
	}
}

func TestFetchErrorDoesNotRegress(t *testing.T) {
	log := &fakeLog{messages: []string{"a", "b"}}
	var published int
	store := db.NewMemoryStore()
	eng, err := New(Options{Log: log, Store: store, Publish: func(Snapshot) { published++ }, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	mustPoll(t, eng)

	log.fetchErr = errors.New("connection refused")
	result := mustPoll(t, eng)
	if result.Fetched {
		t.Fatalf("failed fetch reported as fetched: %+v", result)
	}
	state := eng.State()
	if state.LastProcessedCount != 2 || state.PreviousSupportCount != 2 || published != 1 {
		t.Fatalf("state after failed fetch = %+v published=%d", state, published)
	}
	count, _ := db.LoadLastMessageCount(store)
	if count != 2 {
		t.Fatalf("persisted count = %d", count)
	}
}

func TestPollCanceledContext(t *testing.T) {
	log := &fakeLog{fetchErr: context.Canceled}
	eng := newTestEngine(t, log, db.NewMemoryStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendPublicPrefixAndSelfSent(t *testing.T) {
	log := &fakeLog{}
	store := db.NewMemoryStore()
	notifier := &recordingNotifier{}
	eng := newTestEngine(t, log, store, notifier)

	if err := eng.Send(context.Background(), "  hi all ", types.ChannelPublic); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := eng.Send(context.Background(), "help", types.ChannelSupport); err != nil {
		t.Fatalf("send: %v", err)
	}
	if log.messages[0] != "[PUBLIC]hi all" || log.messages[1] != "help" {
		t.Fatalf("wire = %q", log.messages)
	}
	if !eng.IsMine("hi all") || !eng.IsMine("help") || eng.IsMine("other") {
		t.Fatal("self-sent set mismatch")
	}
	if notifier.beeps != 2 {
		t.Fatalf("beeps = %d", notifier.beeps)
	}
	raw, _, _ := store.Get(types.KeySentMessages)
	if raw != `["help","hi all"]` {
		t.Fatalf("persisted = %s", raw)
	}

	mustPoll(t, eng)
	if err := eng.Send(context.Background(), "   ", types.ChannelSupport); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendFailureLeavesStateUnchanged(t *testing.T) {
	log := &fakeLog{appendErr: &backend.APIError{Status: 500, Message: "Failed to send message"}}
	store := db.NewMemoryStore()
	eng := newTestEngine(t, log, store, nil)

	err := eng.Send(context.Background(), "hello", types.ChannelSupport)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("err = %v", err)
	}
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Fatalf("err = %v", err)
	}
	if eng.IsMine("hello") || len(eng.State().SentMessages) != 0 {
		t.Fatal("failed send recorded as self-sent")
	}
	if _, ok, _ := store.Get(types.KeySentMessages); ok {
		t.Fatal("failed send persisted")
	}
}

func TestSendFileUsesLabelKey(t *testing.T) {
	log := &fakeLog{}
	eng := newTestEngine(t, log, db.NewMemoryStore(), nil)
	att, err := core.NewAttachment("notes.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("attachment: %v", err)
	}
	if err := eng.SendFile(context.Background(), att, types.ChannelPublic); err != nil {
		t.Fatalf("send file: %v", err)
	}
	if !eng.IsMine(core.FileLabel("notes.txt")) {
		t.Fatal("file label not recorded")
	}
	msg := core.Classify(log.messages[0])
	if msg.Kind != types.KindPublic || msg.Attachment == nil || msg.Attachment.Name != "notes.txt" {
		t.Fatalf("wire message = %+v", msg)
	}
}

func TestRunReturnsReload(t *testing.T) {
	log := &fakeLog{messages: []string{"a"}}
	eng := newTestEngine(t, log, db.NewMemoryStore(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	log.push(core.MaintenanceOnText)

	select {
	case err := <-done:
		if !errors.Is(err, ErrReload) {
			t.Fatalf("run err = %v", err)
		}
	case <-ctx.Done():
		t.Fatal("run did not return")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	log := &fakeLog{fetchErr: errors.New("down")}
	eng := newTestEngine(t, log, db.NewMemoryStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	log.mu.Lock()
	fetches := log.fetches
	log.mu.Unlock()
	if fetches < 2 {
		t.Fatalf("fetches = %d, failed ticks should not stop polling", fetches)
	}
}

// blockingLog holds every Fetch until release is closed.
type blockingLog struct {
	fakeLog
	calls   atomic.Int32
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingLog) Fetch(ctx context.Context) ([]types.RawMessage, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeLog.Fetch(ctx)
}

func TestConcurrentPollIsSkipped(t *testing.T) {
	log := &blockingLog{
		fakeLog: fakeLog{messages: []string{"a", "b", "c"}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	eng := newTestEngine(t, log, db.NewMemoryStore(), nil)

	done := make(chan PollResult, 1)
	go func() {
		result, err := eng.Poll(context.Background())
		if err != nil {
			t.Errorf("first poll: %v", err)
		}
		done <- result
	}()
	<-log.started

	second := mustPoll(t, eng)
	if !second.Skipped || second.Fetched {
		t.Fatalf("overlapping poll = %+v, want skipped", second)
	}
	if calls := log.calls.Load(); calls != 1 {
		t.Fatalf("fetches = %d, want 1", calls)
	}

	close(log.release)
	select {
	case first := <-done:
		if first.Skipped || first.Total != 3 {
			t.Fatalf("first poll = %+v", first)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first poll did not finish")
	}
	if got := eng.State().LastProcessedCount; got != 3 {
		t.Fatalf("last processed = %d, want 3", got)
	}

	if third := mustPoll(t, eng); third.Skipped {
		t.Fatalf("poll after release skipped: %+v", third)
	}
}

func TestConcurrentSendsPersistEveryKey(t *testing.T) {
	log := &fakeLog{}
	store := db.NewMemoryStore()
	eng := newTestEngine(t, log, store, nil)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := eng.Send(context.Background(), fmt.Sprintf("msg %d", i), types.ChannelSupport); err != nil {
				t.Errorf("send %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	sent, err := db.LoadSentMessages(store)
	if err != nil {
		t.Fatalf("load sent: %v", err)
	}
	if len(sent) != n {
		t.Fatalf("persisted %d keys, want %d", len(sent), n)
	}
}
