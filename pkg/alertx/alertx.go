package alertx

import (
	"context"
	"fmt"
	"time"

	"github.com/gardenledger/fieldsync/pkg/eventx"
	"github.com/gardenledger/fieldsync/pkg/logx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
)

// Severity orders alerts by urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Alert is one operator notification.
type Alert struct {
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
}

// Provider delivers alerts to wherever the operator watches.
type Provider interface {
	Send(ctx context.Context, alert Alert) error
}

// Notifier raises operator alerts through a provider and mirrors them onto
// the event bus.
type Notifier struct {
	provider Provider
	bus      *eventx.Bus
	min      Severity
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMinSeverity drops alerts below the given severity.
func WithMinSeverity(min Severity) Option {
	return func(n *Notifier) { n.min = min }
}

// NewNotifier creates a notifier over the given provider.
func NewNotifier(provider Provider, bus *eventx.Bus, options ...Option) *Notifier {
	n := &Notifier{
		provider: provider,
		bus:      bus,
		min:      SeverityInfo,
	}
	for _, o := range options {
		o(n)
	}
	return n
}

// Raise delivers an alert. Alerts below the minimum severity are dropped
// silently; delivery failures are returned so callers can decide whether
// they matter.
func (n *Notifier) Raise(ctx context.Context, alert Alert) error {
	if alert.Subject == "" {
		return alertxErrors.New(ErrInvalidAlert).WithDetail("reason", "empty subject")
	}
	if alert.Severity == "" {
		alert.Severity = SeverityInfo
	}
	if alert.Severity.rank() < n.min.rank() {
		return nil
	}

	if err := n.provider.Send(ctx, alert); err != nil {
		return alertxErrors.NewWithCause(ErrSendFailed, err).WithDetail("subject", alert.Subject)
	}

	n.bus.Publish(eventx.TopicAlertRaised, eventx.AlertEvent{
		Severity: string(alert.Severity),
		Subject:  alert.Subject,
	})
	return nil
}

// WatchQueue raises a critical alert whenever a job exhausts its retry
// budget. Returns the unsubscribe function.
func (n *Notifier) WatchQueue(queue *queuex.Queue) func() {
	return n.bus.Subscribe(eventx.TopicJobFailed, func(e eventx.Event) {
		payload, ok := e.Payload.(eventx.JobEvent)
		if !ok {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			job, err := queue.GetJob(ctx, payload.JobID)
			if err != nil || !job.Exhausted() {
				return
			}
			alert := Alert{
				Severity: SeverityCritical,
				Subject:  fmt.Sprintf("job %s permanently failed", job.ID),
				Body: fmt.Sprintf("kind=%s attempts=%d/%d last error: %s",
					job.Kind, job.Attempts, job.MaxAttempts, job.LastError),
			}
			if err := n.Raise(ctx, alert); err != nil {
				logx.WithError(err).Warn("alertx: failed to raise permanent-failure alert")
			}
		}()
	})
}
