// Package push runs one push cycle: collect module output, encrypt it and
// hand it to the collector.
package push

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tastythames/dmon-worker/internal/cache"
	"github.com/tastythames/dmon-worker/internal/config"
	"github.com/tastythames/dmon-worker/internal/delivery"
	"github.com/tastythames/dmon-worker/internal/metrics"
	"github.com/tastythames/dmon-worker/internal/modules"
	"github.com/tastythames/dmon-worker/internal/seal"
)

const HeaderCycleID = "X-Cycle-Id"

// Body is the JSON document POSTed to the collector.
type Body struct {
	Payload string `json:"payload"` // hex AES-256-CBC ciphertext
	IV      string `json:"iv"`      // base64 IV
}

// Deliverer sends a push body and returns the collector's reply.
type Deliverer interface {
	Deliver(ctx context.Context, url string, body []byte, header http.Header) (string, error)
}

type Deps struct {
	Runner    modules.Runner
	Deliverer Deliverer
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	// Status, when set, records the latest cycle and module outcomes.
	Status cache.Cache
	// Entropy feeds IV generation; nil means crypto/rand.
	Entropy io.Reader
}

// Cycle implements scheduler.Action.
type Cycle struct {
	cfg  *config.WorkerConfig
	key  [seal.KeySize]byte
	deps Deps
	log  zerolog.Logger
}

func New(cfg *config.WorkerConfig, deps Deps) *Cycle {
	if deps.Entropy == nil {
		deps.Entropy = rand.Reader
	}
	return &Cycle{
		cfg:  cfg,
		key:  seal.DeriveKey(cfg.PreSharedKey),
		deps: deps,
		log:  deps.Logger.With().Str("worker", cfg.WorkerID).Logger(),
	}
}

// Endpoint resolves the collector URL for this worker.
func (c *Cycle) Endpoint() delivery.Endpoint {
	return delivery.Endpoint{
		Host:  c.cfg.Server.Host,
		Port:  c.cfg.Server.Port,
		Route: delivery.PushRoute(c.cfg.WorkerID),
		TLS:   c.cfg.Server.TLS,
	}
}

// Run executes one cycle. The first failing stage ends it; nothing is sent
// unless aggregation and encryption both succeeded.
func (c *Cycle) Run(ctx context.Context) error {
	if c.cfg.Server.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Server.Timeout)
		defer cancel()
	}

	id := uuid.NewString()
	log := c.log.With().Str("cycle", id).Logger()

	start := time.Now()
	resp, err := c.run(ctx, id, log)
	took := time.Since(start)
	c.deps.Metrics.ObserveCycle(took, err)
	if c.deps.Status != nil {
		r := cache.NewResult(start, took, err)
		r.Cycle = id
		c.deps.Status.Set(cache.CycleKey, r)
	}

	if err != nil {
		log.Error().Err(err).Dur("took", took).Msg("push failed")
		return err
	}
	log.Info().Str("response", resp).Dur("took", took).Msg("push delivered")
	return nil
}

func (c *Cycle) run(ctx context.Context, id string, log zerolog.Logger) (string, error) {
	iv, err := seal.GenerateIVFrom(c.deps.Entropy)
	if err != nil {
		return "", &CycleError{Stage: StageIV, Err: err}
	}

	doc, err := modules.Aggregate(ctx, c.deps.Runner, c.cfg.Modules, modules.Options{
		WorkerID: c.cfg.WorkerID,
		Logger:   log,
		Observer: c.observeModule,
	})
	if err != nil {
		return "", &CycleError{Stage: StageModules, Err: err}
	}

	plain, err := json.Marshal(doc)
	if err != nil {
		return "", &CycleError{Stage: StageEncode, Err: err}
	}
	c.deps.Metrics.ObservePayload(len(plain))

	ct, err := seal.Encrypt(plain, c.key, iv)
	if err != nil {
		return "", &CycleError{Stage: StageEncrypt, Err: err}
	}

	body, err := json.Marshal(Body{Payload: ct, IV: seal.EncodeIV(iv)})
	if err != nil {
		return "", &CycleError{Stage: StageEncode, Err: err}
	}

	url := c.Endpoint().URL()
	log.Debug().Str("url", url).Int("modules", doc.Len()).Int("bytes", len(body)).Msg("pushing")

	h := http.Header{}
	h.Set(HeaderCycleID, id)
	resp, err := c.deps.Deliverer.Deliver(ctx, url, body, h)
	if err != nil {
		return "", &CycleError{Stage: StageDeliver, Err: err}
	}
	return resp, nil
}

func (c *Cycle) observeModule(module string, took time.Duration, err error) {
	c.deps.Metrics.ObserveModule(module, took, err)
	if c.deps.Status != nil {
		c.deps.Status.Set(cache.ModuleKey(module), cache.NewResult(time.Now().Add(-took), took, err))
	}
}

type Stage string

const (
	StageIV      Stage = "iv"
	StageModules Stage = "modules"
	StageEncode  Stage = "encode"
	StageEncrypt Stage = "encrypt"
	StageDeliver Stage = "deliver"
)

// CycleError names the stage that ended a cycle. The wrapped error is one of
// *modules.ModuleExecutionError, *seal.CryptoError or *delivery.DeliveryError
// for the corresponding stages.
type CycleError struct {
	Stage Stage
	Err   error
}

func (e *CycleError) Error() string { return fmt.Sprintf("push cycle (%s): %v", e.Stage, e.Err) }

func (e *CycleError) Unwrap() error { return e.Err }
