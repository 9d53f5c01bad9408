package panel

import (
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polygons/internal/events"
	"github.com/joeblew999/plat-polygons/internal/fetch"
)

// Notifier forwards alerts and pages to connected panels.
type Notifier struct {
	bus    *events.Bus
	logger *zap.Logger
}

// NewNotifier creates a notifier publishing on bus.
func NewNotifier(bus *events.Bus, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{bus: bus, logger: logger}
}

// Alert shows a modal message.
func (n *Notifier) Alert(message string) {
	n.logger.Info("alert", zap.String("message", message))
	n.bus.Publish(events.Event{Kind: events.KindAlert, Message: message})
}

// OpenPage opens a page in a new viewing context.
func (n *Notifier) OpenPage(page fetch.Page) {
	n.logger.Info("opening page", zap.String("url", page.URL), zap.Int("body_bytes", len(page.Body)))
	n.bus.Publish(events.Event{Kind: events.KindPage, URL: page.URL, Body: page.Body})
}

var _ fetch.Notifier = (*Notifier)(nil)
