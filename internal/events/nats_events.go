package events

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/config"
	"route-aggregator/internal/metrics"
	"route-aggregator/internal/types"
)

// Event subjects, relative to the configured prefix.
const (
	SubjectQuoteCompleted    = "quote.completed"
	SubjectCircuitOpened     = "source.circuit_opened"
	SubjectExecutionPrepared = "execution.prepared"
	SubjectExecutionRejected = "execution.rejected"
)

// Publisher emits aggregator events. Implementations must not block the caller on delivery.
type Publisher interface {
	Publish(subject string, event any)
}

// QuoteCompleted is published after every quote request.
type QuoteCompleted struct {
	RequestID     string                `json:"requestId"`
	FromChain     string                `json:"fromChain"`
	ToChain       string                `json:"toChain"`
	FromToken     string                `json:"fromToken"`
	ToToken       string                `json:"toToken"`
	AmountIn      string                `json:"amountIn"`
	RouteCount    int                   `json:"routeCount"`
	FilteredCount int                   `json:"filteredCount"`
	BestProvider  string                `json:"bestProvider,omitempty"`
	BestAmountOut string                `json:"bestAmountOut,omitempty"`
	Sources       []types.SourceOutcome `json:"sources"`
	DurationMs    int64                 `json:"durationMs"`
	Timestamp     time.Time             `json:"timestamp"`
}

// CircuitOpened is published when a source is excluded for a cooldown.
type CircuitOpened struct {
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
	Class     string    `json:"class"`
	Until     time.Time `json:"until"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionEvent is published when an execution payload is built or refused.
type ExecutionEvent struct {
	RouteID   string    `json:"routeId"`
	Provider  string    `json:"provider,omitempty"`
	ChainID   string    `json:"chainId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type rawPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher JSON-encodes events onto NATS subjects.
type NATSPublisher struct {
	client rawPublisher
	prefix string
	logger *logrus.Logger
}

// NewNATSPublisher wraps a connected client.
func NewNATSPublisher(client rawPublisher, prefix string, logger *logrus.Logger) *NATSPublisher {
	return &NATSPublisher{client: client, prefix: prefix, logger: logger}
}

// Publish encodes and sends an event; failures are logged and counted, never returned.
func (p *NATSPublisher) Publish(subject string, event any) {
	full := subject
	if p.prefix != "" {
		full = p.prefix + "." + subject
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).WithField("subject", full).Warn("failed to encode event")
		metrics.EventsPublished.WithLabelValues(subject, "encode_error").Inc()
		return
	}
	if err := p.client.Publish(full, data); err != nil {
		p.logger.WithError(err).WithField("subject", full).Warn("failed to publish event")
		metrics.EventsPublished.WithLabelValues(subject, "error").Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(subject, "ok").Inc()
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(string, any) {}

// InitPublisher connects to NATS when configured. A connection failure degrades to a no-op
// publisher so the quote pipeline keeps serving.
func InitPublisher(cfg config.NATSConfig, logger *logrus.Logger) (Publisher, func()) {
	if cfg.URL == "" {
		logger.Info("NATS not configured, events disabled")
		return NoopPublisher{}, func() {}
	}

	client, err := clients.NewNATSClient(cfg.URL, time.Duration(cfg.Timeout)*time.Second)
	if err != nil {
		logger.WithError(err).Warn("NATS unavailable, events disabled")
		return NoopPublisher{}, func() {}
	}

	logger.WithField("url", cfg.URL).Info("✅ NATS event publisher initialized")
	return NewNATSPublisher(client, cfg.SubjectPrefix, logger), client.Close
}
