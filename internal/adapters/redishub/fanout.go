// Package redishub fans hub events out across instances over a Redis
// pub/sub channel, so subscribers connected to one process still see events
// produced by another.
package redishub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ladlehq/ladle/internal/hub"
)

// wireEnvelope is the cross-instance wire form of a hub event. InstanceID
// lets the bridge discard its own publications when they come back around.
type wireEnvelope struct {
	InstanceID string          `json:"instance_id"`
	Room       string          `json:"room"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}

// mirrorQueueSize bounds the backlog of events waiting on the Redis mirror
// goroutine. When it is full the event is dropped from the mirror, matching
// the hub's own non-blocking delivery contract.
const mirrorQueueSize = 256

// FanoutPublisher publishes to the local hub and mirrors the event onto the
// Redis channel. Local delivery never waits on Redis: mirroring happens on a
// dedicated goroutine behind a bounded queue, and failures are logged, not
// returned.
type FanoutPublisher struct {
	hub        *hub.Hub
	client     redis.UniversalClient
	channel    string
	instanceID string
	logger     *slog.Logger

	mirror    chan wireEnvelope
	mirrorWG  sync.WaitGroup
	closeOnce sync.Once
}

// FanoutOptions configures a FanoutPublisher and its Bridge.
type FanoutOptions struct {
	Hub     *hub.Hub
	Client  redis.UniversalClient
	Channel string
	Logger  *slog.Logger
}

// NewFanoutPublisher creates a publisher that mirrors local hub events to
// Redis. A nil client degrades to local-only delivery.
func NewFanoutPublisher(opts FanoutOptions) (*FanoutPublisher, error) {
	if opts.Hub == nil {
		return nil, errors.New("hub is required")
	}
	if opts.Client != nil && opts.Channel == "" {
		return nil, errors.New("channel is required when a redis client is set")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "hub_fanout")
	}

	p := &FanoutPublisher{
		hub:        opts.Hub,
		client:     opts.Client,
		channel:    opts.Channel,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
	if p.client != nil {
		p.mirror = make(chan wireEnvelope, mirrorQueueSize)
		p.mirrorWG.Add(1)
		go p.mirrorLoop()
	}
	return p, nil
}

// InstanceID identifies this publisher across the Redis channel.
func (p *FanoutPublisher) InstanceID() string { return p.instanceID }

// Publish delivers the event locally and queues it for the Redis mirror.
// It never blocks on Redis; a full mirror queue drops the event.
func (p *FanoutPublisher) Publish(room hub.Room, event string, payload any) {
	p.hub.Publish(room, event, payload)

	if p.mirror == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("skipping redis mirror of unmarshalable payload",
				"event", event, "room", room.String(), "error", err)
		}
		return
	}

	p.enqueueMirror(wireEnvelope{
		InstanceID: p.instanceID,
		Room:       room.String(),
		Event:      event,
		Payload:    raw,
	})
}

func (p *FanoutPublisher) enqueueMirror(env wireEnvelope) bool {
	select {
	case p.mirror <- env:
		return true
	default:
		if p.logger != nil {
			p.logger.Warn("mirror queue full, dropping event",
				"event", env.Event, "room", env.Room)
		}
		return false
	}
}

func (p *FanoutPublisher) mirrorLoop() {
	defer p.mirrorWG.Done()
	for env := range p.mirror {
		data, err := json.Marshal(env)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("marshal wire envelope", "event", env.Event, "error", err)
			}
			continue
		}
		// Fire and forget: local subscribers already have the event.
		if err := p.client.Publish(context.Background(), p.channel, data).Err(); err != nil {
			if p.logger != nil {
				p.logger.Warn("redis publish failed",
					"event", env.Event, "room", env.Room, "error", err)
			}
		}
	}
}

// Close stops the mirror goroutine after draining queued events. Callers
// must stop publishing before closing.
func (p *FanoutPublisher) Close() {
	if p.mirror == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.mirror)
		p.mirrorWG.Wait()
	})
}

// Bridge subscribes to the Redis channel and replays events published by
// other instances into the local hub.
type Bridge struct {
	hub        *hub.Hub
	client     redis.UniversalClient
	channel    string
	instanceID string
	logger     *slog.Logger
}

// NewBridge creates a bridge bound to the given publisher's instance ID so
// the publisher's own events are not replayed.
func NewBridge(opts FanoutOptions, instanceID string) (*Bridge, error) {
	if opts.Hub == nil {
		return nil, errors.New("hub is required")
	}
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Channel == "" {
		return nil, errors.New("channel is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "hub_bridge")
	}

	return &Bridge{
		hub:        opts.Hub,
		client:     opts.Client,
		channel:    opts.Channel,
		instanceID: instanceID,
		logger:     logger,
	}, nil
}

// Run consumes the Redis channel until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	// Force the subscription before consuming so startup failures surface.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	if b.logger != nil {
		b.logger.InfoContext(ctx, "hub bridge subscribed", "channel", b.channel)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("redis subscription closed")
			}
			b.replay(msg.Payload)
		}
	}
}

func (b *Bridge) replay(data string) {
	var env wireEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		if b.logger != nil {
			b.logger.Warn("discarding malformed envelope", "error", err)
		}
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}

	room, err := hub.ParseRoom(env.Room)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("discarding envelope with bad room", "room", env.Room, "error", err)
		}
		return
	}

	b.hub.Publish(room, env.Event, env.Payload)
}
