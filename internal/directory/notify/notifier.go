package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"fuelmap-cloud/internal/directory/application"
)

// Notifier pushes resolution run summaries to a channel. Delivery is
// best effort: a failed send is logged and dropped, never retried into
// the request path.
type Notifier struct {
	channel        Channel
	template       *Template
	logger         *log.Logger
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithRequestTimeout overrides the default send timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithLogger assigns a logger for failed sends.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// NewNotifier constructs a resolution notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("resolution notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyResolution implements application.ResolutionNotifier.
func (n *Notifier) NotifyResolution(ctx context.Context, event application.ResolutionEvent) {
	if n == nil || n.channel == nil {
		return
	}
	content, err := n.template.Render(TemplateData{
		RanAt:   event.RanAt.Format(time.RFC3339),
		Scanned: event.Scanned,
		Groups:  event.Groups,
		Deleted: event.DeletedCount,
		Errors:  event.Errors,
	})
	if err != nil {
		if n.logger != nil {
			n.logger.Printf("notify: render failed: %v", err)
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.requestTimeout)
	defer cancel()
	if err := n.channel.Send(sendCtx, content); err != nil {
		if n.logger != nil {
			n.logger.Printf("notify: send failed: %v", err)
		}
	}
}
