package gateway

import (
	"context"
	"encoding/json"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"
)

// UpdateChannelPattern matches every channel written by the Redis publisher.
const UpdateChannelPattern = "pub:chart:*"

// Subscriber is the in-process update stream of a chart engine.
type Subscriber interface {
	Subscribe() (uuid.UUID, <-chan model.Update)
	Unsubscribe(id uuid.UUID)
}

// EngineSource reads updates straight from an in-process engine.
type EngineSource struct {
	Engine Subscriber
}

func (s EngineSource) Run(ctx context.Context, deliver func(model.Update)) error {
	id, ch := s.Engine.Subscribe()
	defer s.Engine.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			deliver(u)
		}
	}
}

// PubSubSource reads updates from Redis PubSub, for gateways running apart
// from the engine.
type PubSubSource struct {
	Rdb     *goredis.Client
	Pattern string // defaults to UpdateChannelPattern
	Log     *logger.Logger
}

func (s PubSubSource) Run(ctx context.Context, deliver func(model.Update)) error {
	pattern := s.Pattern
	if pattern == "" {
		pattern = UpdateChannelPattern
	}
	log := s.Log
	if log == nil {
		log = logger.Nop()
	}

	pubsub := s.Rdb.PSubscribe(ctx, pattern)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Info("subscribed to update channels", logger.StringField("pattern", pattern))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			u, err := decodeUpdate([]byte(msg.Payload))
			if err != nil {
				log.Warn("malformed update", logger.StringField("channel", msg.Channel), logger.ErrorField(err))
				continue
			}
			deliver(u)
		}
	}
}

func decodeUpdate(payload []byte) (model.Update, error) {
	var u model.Update
	if err := json.Unmarshal(payload, &u); err != nil {
		return model.Update{}, err
	}
	if u.Key == "" {
		u.Key = u.Bar.Key()
	}
	return u, nil
}
