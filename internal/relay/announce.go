package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxTTL is the longest ttl, in seconds, that fits in a time.Duration.
const MaxTTL = math.MaxInt64 / int64(time.Second)

var ErrInvalidAnnouncement = errors.New("announcement needs an app, a channel and a ttl between one second and MaxTTL")

// Announcement is a registration as a requester sends it.
// Payload fields are sent next to the reserved ones and come back untouched
// in the notification.
type Announcement struct {
	App     string
	Name    string
	Channel string
	// TTL is the delay before the notification, in seconds.
	TTL     int64
	Payload map[string]any
}

func (a Announcement) Validate() error {
	if a.App == "" || a.Channel == "" || a.TTL < 1 || a.TTL > MaxTTL {
		return ErrInvalidAnnouncement
	}
	return nil
}

// Encode renders the registration message. Reserved fields win over payload
// fields of the same name.
func (a Announcement) Encode() ([]byte, error) {
	fields := make(map[string]any, len(a.Payload)+4)
	for k, v := range a.Payload {
		fields[k] = v
	}
	fields["app"] = a.App
	fields["name"] = a.Name
	fields["channel"] = a.Channel
	fields["ttl"] = a.TTL
	return json.Marshal(fields)
}

// Announce publishes a registration on the relay channel and returns the
// exact message that will come back on a.Channel.
func Announce(ctx context.Context, client *redis.Client, channel string, a Announcement) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	msg, err := a.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode announcement: %w", err)
	}
	if err := client.Publish(ctx, channel, msg).Err(); err != nil {
		return nil, fmt.Errorf("failed to publish announcement: %w", err)
	}
	return msg, nil
}

// Listen subscribes to channel and calls fn for every notification until ctx
// is done or fn returns an error. ready, if not nil, is called once the
// subscription is confirmed.
func Listen(ctx context.Context, client *redis.Client, channel string, ready func(), fn func(ctx context.Context, msg json.RawMessage) error) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	if ready != nil {
		ready()
	}

	return consume(ctx, sub.Channel(), func(ctx context.Context, msg *redis.Message) error {
		return fn(ctx, json.RawMessage(msg.Payload))
	})
}

func consume(ctx context.Context, ch <-chan *redis.Message, fn func(context.Context, *redis.Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("subscription closed")
			}
			if err := fn(ctx, msg); err != nil {
				return err
			}
		}
	}
}
