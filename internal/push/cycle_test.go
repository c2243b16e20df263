package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/dmon-worker/internal/cache"
	"github.com/tastythames/dmon-worker/internal/config"
	"github.com/tastythames/dmon-worker/internal/delivery"
	"github.com/tastythames/dmon-worker/internal/metrics"
	"github.com/tastythames/dmon-worker/internal/modules"
	"github.com/tastythames/dmon-worker/internal/seal"
)

type received struct {
	path    string
	cycleID string
	body    Body
}

// collector records every push it receives.
type collector struct {
	mu     sync.Mutex
	pushes []received
	status int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var b Body
	_ = json.NewDecoder(r.Body).Decode(&b)
	c.mu.Lock()
	c.pushes = append(c.pushes, received{path: r.URL.Path, cycleID: r.Header.Get(HeaderCycleID), body: b})
	status := c.status
	c.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}

func (c *collector) all() []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]received(nil), c.pushes...)
}

func testConfig(t *testing.T, srvURL string, mods []config.Module) *config.WorkerConfig {
	t.Helper()
	u, err := url.Parse(srvURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return &config.WorkerConfig{
		WorkerID:     "w-1",
		PreSharedKey: "s3cret",
		Schedule:     "0 * * * *",
		Server:       config.Server{Host: u.Hostname(), Port: uint16(port)},
		Modules:      mods,
	}
}

func open(t *testing.T, b Body, secret string) string {
	t.Helper()
	iv, err := seal.DecodeIV(b.IV)
	require.NoError(t, err)
	plain, err := seal.Decrypt(b.Payload, seal.DeriveKey(secret), iv)
	require.NoError(t, err)
	return plain
}

func TestCycle_PushesEncryptedDocument(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	cfg := testConfig(t, srv.URL, []config.Module{
		{Name: "cpu", Command: `echo '{"usage":42}'`},
		{Name: "mem", Command: `echo '{"free":10}'`},
	})
	var logs bytes.Buffer
	c := New(cfg, Deps{
		Runner:    modules.ShellRunner{},
		Deliverer: delivery.NewClient("test"),
		Logger:    zerolog.New(&logs),
	})

	require.NoError(t, c.Run(context.Background()))

	pushes := col.all()
	require.Len(t, pushes, 1)
	assert.Equal(t, "/api/workers/w-1/push", pushes[0].path)
	_, err := uuid.Parse(pushes[0].cycleID)
	assert.NoError(t, err)
	assert.Equal(t, `{"cpu":{"usage":42},"mem":{"free":10}}`, open(t, pushes[0].body, "s3cret"))
	assert.Contains(t, logs.String(), `"response":"{\"status\":\"ok\"}"`)
	assert.Contains(t, logs.String(), `"worker":"w-1"`)
}

func TestCycle_FreshIVEveryCycle(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	cfg := testConfig(t, srv.URL, []config.Module{{Name: "cpu", Command: `echo '{"usage":42}'`}})
	c := New(cfg, Deps{Runner: modules.ShellRunner{}, Deliverer: delivery.NewClient(""), Logger: zerolog.Nop()})

	require.NoError(t, c.Run(context.Background()))
	require.NoError(t, c.Run(context.Background()))

	pushes := col.all()
	require.Len(t, pushes, 2)
	assert.NotEqual(t, pushes[0].body.IV, pushes[1].body.IV)
	assert.NotEqual(t, pushes[0].body.Payload, pushes[1].body.Payload)
	assert.NotEqual(t, pushes[0].cycleID, pushes[1].cycleID)
	assert.Equal(t, open(t, pushes[0].body, "s3cret"), open(t, pushes[1].body, "s3cret"))
}

type recordingDeliverer struct {
	calls int
	err   error
}

func (d *recordingDeliverer) Deliver(context.Context, string, []byte, http.Header) (string, error) {
	d.calls++
	return "ok", d.err
}

func TestCycle_ModuleFailureSkipsDelivery(t *testing.T) {
	d := &recordingDeliverer{}
	cfg := &config.WorkerConfig{
		WorkerID:     "w-1",
		PreSharedKey: "k",
		Server:       config.Server{Host: "collector", Port: 80},
		Modules:      []config.Module{{Name: "bad", Command: "echo not-json"}},
	}
	m := metrics.New("w-1")
	status := cache.NewMemCache()
	c := New(cfg, Deps{Runner: modules.ShellRunner{}, Deliverer: d, Logger: zerolog.Nop(), Metrics: m, Status: status})

	err := c.Run(context.Background())

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageModules, ce.Stage)
	var me *modules.ModuleExecutionError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "bad", me.Module)
	assert.Equal(t, "not-json\n", me.Output)
	assert.Zero(t, d.calls)

	expected := `
# HELP dmon_worker_cycles_total Push cycles by result.
# TYPE dmon_worker_cycles_total counter
dmon_worker_cycles_total{result="failure",worker="w-1"} 1
dmon_worker_cycles_total{result="success",worker="w-1"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), metrics.MetricCyclesTotal))

	snap := status.Snapshot()
	require.Contains(t, snap, cache.CycleKey)
	assert.Contains(t, snap[cache.CycleKey].Err, "bad")
	assert.NotEmpty(t, snap[cache.CycleKey].Cycle)
	require.Contains(t, snap, cache.ModuleKey("bad"))
	assert.NotEmpty(t, snap[cache.ModuleKey("bad")].Err)
}

func TestCycle_IVFailureSkipsEverything(t *testing.T) {
	d := &recordingDeliverer{}
	ran := false
	runner := modules.RunnerFunc(func(context.Context, string) ([]byte, error) {
		ran = true
		return []byte(`{}`), nil
	})
	cfg := &config.WorkerConfig{WorkerID: "w", PreSharedKey: "k", Modules: []config.Module{{Name: "a", Command: "x"}}}
	c := New(cfg, Deps{Runner: runner, Deliverer: d, Logger: zerolog.Nop(), Entropy: bytes.NewReader(nil)})

	err := c.Run(context.Background())
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageIV, ce.Stage)
	var cr *seal.CryptoError
	assert.ErrorAs(t, err, &cr)
	assert.False(t, ran)
	assert.Zero(t, d.calls)
}

func TestCycle_DeliveryFailure(t *testing.T) {
	col := &collector{status: http.StatusInternalServerError}
	srv := httptest.NewServer(col)
	defer srv.Close()

	cfg := testConfig(t, srv.URL, nil)
	c := New(cfg, Deps{Runner: modules.ShellRunner{}, Deliverer: delivery.NewClient(""), Logger: zerolog.Nop()})

	err := c.Run(context.Background())
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageDeliver, ce.Stage)
	var de *delivery.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusInternalServerError, de.StatusCode)

	// an empty module list still pushes an empty document
	pushes := col.all()
	require.Len(t, pushes, 1)
	assert.Equal(t, `{}`, open(t, pushes[0].body, "s3cret"))
}

func TestCycle_Timeout(t *testing.T) {
	d := &recordingDeliverer{}
	runner := modules.RunnerFunc(func(ctx context.Context, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cfg := &config.WorkerConfig{
		WorkerID: "w",
		Server:   config.Server{Host: "h", Timeout: 20 * time.Millisecond},
		Modules:  []config.Module{{Name: "slow", Command: "sleep"}},
	}
	c := New(cfg, Deps{Runner: runner, Deliverer: d, Logger: zerolog.Nop()})

	err := c.Run(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Zero(t, d.calls)
}

func TestCycle_Endpoint(t *testing.T) {
	c := New(&config.WorkerConfig{
		WorkerID: "edge-7",
		Server:   config.Server{Host: "collector.example", Port: 8443, TLS: true},
	}, Deps{})
	assert.Equal(t, "https://collector.example:8443/api/workers/edge-7/push", c.Endpoint().URL())
}
