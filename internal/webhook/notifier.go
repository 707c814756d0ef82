package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/citafacil/citafacil/internal/metrics"
	"github.com/citafacil/citafacil/internal/notify"
)

// DefaultQueueSize bounds deliveries waiting for the worker.
const DefaultQueueSize = 64

// ErrDeliveryFailed is returned by a single attempt that got no 2xx answer.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// Payload is the JSON body of a delivery.
type Payload struct {
	EventType string              `json:"event_type"`
	EventID   string              `json:"event_id"`
	Timestamp time.Time           `json:"timestamp"`
	Data      notify.Notification `json:"data"`
}

// Config configures a Notifier.
type Config struct {
	// URL receives the deliveries.
	URL string
	// Secret signs every delivery.
	Secret string
	// Kinds selects forwarded notifications. Empty forwards reminders only.
	Kinds []notify.Kind
	// AllowInsecure skips target URL validation, for local receivers.
	AllowInsecure bool
	// Resolver resolves the target host during validation. Nil uses
	// net.DefaultResolver.
	Resolver Resolver

	QueueSize   int
	RetryDelays []time.Duration
	HTTPClient  *http.Client
	Metrics     metrics.Recorder
	Logger      *slog.Logger
	Now         func() time.Time
}

type delivery struct {
	id      string
	event   string
	payload []byte
}

// Notifier queues matching notifications and posts them from Run.
// Notify never blocks; a full queue drops the delivery.
type Notifier struct {
	url     string
	secret  string
	kinds   map[notify.Kind]bool
	delays  []time.Duration
	queue   chan delivery
	client  *http.Client
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// New validates cfg and creates a Notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("webhook: secret is required")
	}
	if !cfg.AllowInsecure {
		if err := ValidateTargetURL(context.Background(), cfg.Resolver, cfg.URL); err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = DefaultRetryDelays
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []notify.Kind{notify.KindReminder}
	}

	kinds := make(map[notify.Kind]bool, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		kinds[k] = true
	}

	return &Notifier{
		url:     cfg.URL,
		secret:  cfg.Secret,
		kinds:   kinds,
		delays:  cfg.RetryDelays,
		queue:   make(chan delivery, cfg.QueueSize),
		client:  cfg.HTTPClient,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With("component", "webhook"),
		now:     cfg.Now,
	}, nil
}

// Notify enqueues n when its kind is forwarded.
func (w *Notifier) Notify(ctx context.Context, n notify.Notification) {
	if !w.kinds[n.Kind] {
		return
	}

	id := ulid.Make().String()
	payload := Payload{
		EventType: "notification." + string(n.Kind),
		EventID:   n.ID,
		Timestamp: w.now().UTC(),
		Data:      n,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error("marshal payload", "error", err)
		return
	}

	select {
	case w.queue <- delivery{id: id, event: payload.EventType, payload: body}:
	default:
		w.metrics.IncWebhookDelivery(metrics.DeliveryDropped)
		w.logger.Warn("webhook queue full, delivery dropped",
			"delivery_id", id,
			"event_type", payload.EventType,
		)
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (w *Notifier) Run(ctx context.Context) {
	w.logger.Info("webhook worker started", "target_host", targetHost(w.url))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping", "pending", len(w.queue))
			return
		case d := <-w.queue:
			w.deliver(ctx, d)
		}
	}
}

// deliver tries d until it succeeds, the retry delays run out or ctx ends.
func (w *Notifier) deliver(ctx context.Context, d delivery) {
	for attempt := 0; ; attempt++ {
		err := w.send(ctx, d)
		if err == nil {
			w.metrics.IncWebhookDelivery(metrics.DeliverySuccess)
			return
		}

		delay, ok := nextRetryDelay(w.delays, attempt)
		w.logger.Warn("webhook delivery failed",
			"delivery_id", d.id,
			"attempt", attempt+1,
			"exhausted", !ok,
			"error", err,
		)
		if !ok {
			w.metrics.IncWebhookDelivery(metrics.DeliveryFailure)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.metrics.IncWebhookDelivery(metrics.DeliveryFailure)
			return
		case <-timer.C:
		}
	}
}

// send performs a single signed POST.
func (w *Notifier) send(ctx context.Context, d delivery) error {
	timestamp := w.now().Unix()
	signature := GenerateSignature(w.secret, timestamp, d.payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(d.payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, signature, strconv.FormatInt(timestamp, 10), d.id, d.event)

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrDeliveryFailed, resp.StatusCode)
	}

	w.logger.Info("webhook delivered",
		"delivery_id", d.id,
		"event_type", d.event,
		"http_status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
