package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/adamavenir/vliz/internal/backend"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	srv := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

func getMessages(t *testing.T, url string) []string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var messages []string
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return messages
}

func TestSendAndGet(t *testing.T) {
	srv := newTestServer(t, Config{})

	if got := getMessages(t, srv.URL+"/get"); len(got) != 0 || got == nil {
		t.Fatalf("initial log = %#v", got)
	}
	status, body := post(t, srv.URL+"/send", `{"msg":"hello"}`)
	if status != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("send = %d %v", status, body)
	}
	status, _ = post(t, srv.URL+"/send", `{"message":"[PUBLIC]hi all"}`)
	if status != http.StatusOK {
		t.Fatalf("send message field = %d", status)
	}
	if got := getMessages(t, srv.URL+"/get"); !reflect.DeepEqual(got, []string{"hello", "[PUBLIC]hi all"}) {
		t.Fatalf("log = %v", got)
	}
}

func TestSendRejectsInvalid(t *testing.T) {
	srv := newTestServer(t, Config{})
	for _, body := range []string{`{}`, `{"msg":""}`, `{"msg":42}`, `not json`, `{"msg":"","message":["x"]}`} {
		status, payload := post(t, srv.URL+"/send", body)
		if status != http.StatusBadRequest || payload["error"] != "Invalid message" {
			t.Errorf("body %s: %d %v", body, status, payload)
		}
	}
}

func TestSendRateLimited(t *testing.T) {
	srv := newTestServer(t, Config{AppendRate: 0.001, AppendBurst: 1})
	if status, _ := post(t, srv.URL+"/send", `{"msg":"one"}`); status != http.StatusOK {
		t.Fatalf("first send = %d", status)
	}
	if status, _ := post(t, srv.URL+"/send", `{"msg":"two"}`); status != http.StatusTooManyRequests {
		t.Fatalf("second send = %d", status)
	}
}

func TestProxyShapeAndMetrics(t *testing.T) {
	srv := newTestServer(t, Config{Store: NewMemoryLog("a")})

	resp, err := http.Get(srv.URL + "/api/messages/get")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	got, err := backend.DecodeSnapshot(data)
	if err != nil || !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("proxy snapshot = %v, %v", got, err)
	}

	post(t, srv.URL+"/send", `{"msg":"b"}`)
	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	text := string(data)
	for _, want := range []string{"vliz_appends_total 1", "vliz_log_length 2", "vliz_fetches_total 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestPebbleLogPersists(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenPebbleLog(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, msg := range []string{"one", "two", "three"} {
		if _, err := store.Append(msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = OpenPebbleLog(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if store.Len() != 3 {
		t.Fatalf("len = %d", store.Len())
	}
	count, err := store.Append("four")
	if err != nil || count != 4 {
		t.Fatalf("append = %d, %v", count, err)
	}
	all, err := store.All()
	if err != nil || !reflect.DeepEqual(all, []string{"one", "two", "three", "four"}) {
		t.Fatalf("all = %v, %v", all, err)
	}
}

func TestEngineAgainstServer(t *testing.T) {
	srv := newTestServer(t, Config{})
	client, err := backend.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	var snapshot engine.Snapshot
	eng, err := engine.New(engine.Options{
		Log:     client,
		Store:   db.NewMemoryStore(),
		Publish: func(s engine.Snapshot) { snapshot = s },
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	ctx := context.Background()
	if err := eng.Send(ctx, "need help", types.ChannelSupport); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := eng.Send(ctx, "hello everyone", types.ChannelPublic); err != nil {
		t.Fatalf("send: %v", err)
	}
	result, err := eng.Poll(ctx)
	if err != nil || !result.Fetched || result.Total != 2 {
		t.Fatalf("poll = %+v, %v", result, err)
	}
	if len(snapshot.Support) != 1 || len(snapshot.Public) != 1 || snapshot.Public[0].Text != "hello everyone" {
		t.Fatalf("snapshot = %+v", snapshot)
	}
	if !eng.IsMine(snapshot.Support[0].Text) {
		t.Fatal("own message not recognized")
	}

	post(t, srv.URL+"/send", `{"msg":"!mantenimiento on"}`)
	result, _ = eng.Poll(ctx)
	if !result.Reload || result.Control != types.ControlMaintenanceOn {
		t.Fatalf("poll = %+v", result)
	}
}
