package sensor

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSet reads the detector's output from a Redis set of slot indices. When
// a heartbeat key is configured, the detector must keep it alive (it writes
// the key with a TTL); an expired heartbeat means the set is stale.
type RedisSet struct {
	rdb          *redis.Client
	key          string
	heartbeatKey string
	logger       *zerolog.Logger
}

func NewRedisSet(rdb *redis.Client, key, heartbeatKey string, logger *zerolog.Logger) *RedisSet {
	return &RedisSet{rdb: rdb, key: key, heartbeatKey: heartbeatKey, logger: logger}
}

func (s *RedisSet) OccupiedSlots(ctx context.Context) ([]int, error) {
	if s.heartbeatKey != "" {
		n, err := s.rdb.Exists(ctx, s.heartbeatKey).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: redis heartbeat: %v", ErrUnavailable, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: detector heartbeat %q expired", ErrUnavailable, s.heartbeatKey)
		}
	}

	members, err := s.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis smembers: %v", ErrUnavailable, err)
	}

	slots := make([]int, 0, len(members))
	for _, m := range members {
		slot, err := strconv.Atoi(m)
		if err != nil {
			s.logger.Debug().Str("member", m).Str("key", s.key).Msg("ignoring non-numeric slot in sensor set")
			continue
		}
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	return slots, nil
}

// Ping checks the connection; serve calls it once at startup.
func (s *RedisSet) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
