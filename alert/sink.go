// Package alert contains the per-subject alert state machines and the
// notification sink boundary.
package alert

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/babylonlabs-io/sentinel/types"
)

var log = logrus.WithField("prefix", "alert")

// Notifier delivers one structured alert to an outbound transport.
// The governor treats a returned error as terminal for that alert.
type Notifier interface {
	SendAlert(ctx context.Context, a *types.Alert) error
}

// LogNotifier writes alerts to the structured log. It is the sink of
// last resort and the default when no transport is configured.
type LogNotifier struct{}

// SendAlert implements Notifier.
func (LogNotifier) SendAlert(_ context.Context, a *types.Alert) error {
	entry := log.WithFields(logrus.Fields{
		"network":  a.Network,
		"severity": a.Severity,
		"title":    a.Title,
	})
	for k, v := range a.Metadata {
		entry = entry.WithField(k, v)
	}
	switch a.Severity {
	case types.SeverityCritical:
		entry.Error(a.Message)
	case types.SeverityWarning:
		entry.Warn(a.Message)
	default:
		entry.Info(a.Message)
	}
	return nil
}
