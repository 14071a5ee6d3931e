// Package dispatcher turns engine events into live-feed frames. Regular events go out as soon
// as they are published; winner announcements are queued and released one per interval.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jackpot-service/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	TopicLive  = "jackpot.events"
	TopicPaced = "jackpot.announcements"
)

// envelope is one event inside a batch message. Events from a single Publish call travel
// together so their order survives delivery.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// announceQueueSize bounds announcements waiting for their slot.
const announceQueueSize = 4096

type Dispatcher struct {
	pubsub   *gochannel.GoChannel
	hub      *Hub
	limiter  *rate.Limiter
	announce chan envelope
	log      *zap.Logger
}

// New builds a dispatcher releasing paced events every interval.
func New(hub *Hub, interval time.Duration, log *zap.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Dispatcher{
		// one message in flight per topic keeps separate Publish calls in order
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
		hub:      hub,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		announce: make(chan envelope, announceQueueSize),
		log:      log,
	}
}

func (d *Dispatcher) Hub() *Hub { return d.hub }

// Publish encodes the events and hands them to the live or paced topic. It returns once the
// consumers have taken the batch, never waiting on announcement pacing.
func (d *Dispatcher) Publish(_ context.Context, evts ...events.Event) error {
	var live, paced []envelope
	for _, e := range evts {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.Topic, err)
		}
		env := envelope{Event: e.Topic, Data: data}
		if e.Paced {
			paced = append(paced, env)
		} else {
			live = append(live, env)
		}
	}
	if err := d.send(TopicLive, live); err != nil {
		return err
	}
	return d.send(TopicPaced, paced)
}

func (d *Dispatcher) send(topic string, batch []envelope) error {
	if len(batch) == 0 {
		return nil
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch for %s: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("count", fmt.Sprint(len(batch)))
	if err := d.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Start subscribes to both topics and forwards to the hub until ctx is done.
// Events published before Start are dropped.
func (d *Dispatcher) Start(ctx context.Context) error {
	live, err := d.pubsub.Subscribe(ctx, TopicLive)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicLive, err)
	}
	paced, err := d.pubsub.Subscribe(ctx, TopicPaced)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicPaced, err)
	}

	go d.consume(live, d.deliver)
	go d.consume(paced, d.enqueue)
	go d.pace(ctx)
	return nil
}

func (d *Dispatcher) consume(msgs <-chan *message.Message, handle func(envelope)) {
	for msg := range msgs {
		var batch []envelope
		if err := json.Unmarshal(msg.Payload, &batch); err != nil {
			d.log.Error("drop malformed event batch", zap.String("uuid", msg.UUID), zap.Error(err))
			msg.Ack()
			continue
		}
		for _, env := range batch {
			handle(env)
		}
		msg.Ack()
	}
}

func (d *Dispatcher) deliver(env envelope) {
	d.hub.Broadcast(events.Frame{Event: env.Event, Data: env.Data})
	d.log.Debug("jackpot event delivered",
		zap.String("event", env.Event),
		zap.Int("clients", d.hub.ClientCount()),
	)
}

func (d *Dispatcher) enqueue(env envelope) {
	select {
	case d.announce <- env:
	default:
		d.log.Warn("announcement queue full, dropping", zap.String("event", env.Event))
	}
}

// pace releases queued announcements one per limiter slot.
func (d *Dispatcher) pace(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-d.announce:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.deliver(env)
		}
	}
}

func (d *Dispatcher) Close() error {
	return d.pubsub.Close()
}
