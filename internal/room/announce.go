package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/roomverse/internal/discovery"
)

// Announcer periodically registers the room's public URL with a
// discovery service. Failures are logged and retried on the next tick;
// the loop runs until the context is cancelled.
type Announcer struct {
	client    discovery.Client
	log       *zap.Logger
	uuid      string
	publicURL string
	name      string
	interval  time.Duration
}

// NewAnnouncer creates a presence announcer.
func NewAnnouncer(client discovery.Client, uuid, publicURL, name string, interval time.Duration, log *zap.Logger) *Announcer {
	return &Announcer{
		client:    client,
		log:       log,
		uuid:      uuid,
		publicURL: publicURL,
		name:      name,
		interval:  interval,
	}
}

// Run announces immediately and then on every tick until ctx ends.
func (a *Announcer) Run(ctx context.Context) error {
	a.announce(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.announce(ctx)
		}
	}
}

func (a *Announcer) announce(ctx context.Context) {
	if err := a.client.Announce(ctx, a.uuid, a.publicURL, a.name); err != nil {
		a.log.Warn("presence announce failed", zap.Error(err))
		return
	}
	a.log.Debug("presence announced", zap.String("url", a.publicURL))
}
