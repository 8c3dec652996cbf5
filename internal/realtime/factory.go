package realtime

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/config"
)

// NewBus builds the bus selected by the configured realtime driver.
func NewBus(cfg config.Config, redisClient *redis.Client, natsConn *nats.Conn, logger zerolog.Logger) (Bus, error) {
	switch cfg.RealtimeDriver {
	case config.RealtimeDriverRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis realtime driver selected without a redis client")
		}
		return NewRedisBus(redisClient, cfg.RealtimeChannelBase, logger), nil
	case config.RealtimeDriverNATS:
		if natsConn == nil {
			return nil, fmt.Errorf("nats realtime driver selected without a nats connection")
		}
		return NewNATSBus(natsConn, cfg.RealtimeChannelBase, logger), nil
	case config.RealtimeDriverMemory, "":
		return NewMemoryBus(logger), nil
	default:
		return nil, fmt.Errorf("unsupported realtime driver %q", cfg.RealtimeDriver)
	}
}
