package alertxconsole

import (
	"context"

	"github.com/gardenledger/fieldsync/pkg/alertx"
	"github.com/gardenledger/fieldsync/pkg/logx"
)

// ConsoleProvider writes alerts to the log. Intended for development and
// single-operator deployments.
type ConsoleProvider struct{}

// NewConsoleProvider creates a new console alert provider.
func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

// Send logs the alert instead of delivering it anywhere.
func (p *ConsoleProvider) Send(_ context.Context, alert alertx.Alert) error {
	entry := logx.WithFields(logx.Fields{
		"severity": string(alert.Severity),
		"subject":  alert.Subject,
	})

	switch alert.Severity {
	case alertx.SeverityCritical:
		entry.Error("alertx/console: " + alert.Body)
	case alertx.SeverityWarning:
		entry.Warn("alertx/console: " + alert.Body)
	default:
		entry.Info("alertx/console: " + alert.Body)
	}
	return nil
}
