package distributed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const exclusionPrefix = "matchmaking:exclusion:"

// excludeScript (re)sets every key whose remaining lifetime is shorter than ARGV[1] ms.
var excludeScript = redis.NewScript(`
	for _, key in ipairs(KEYS) do
		if redis.call("PTTL", key) < tonumber(ARGV[1]) then
			redis.call("SET", key, "1", "PX", ARGV[1])
		end
	end
	return 1
`)

// RedisExclusionLedger "do not pair" entries as one TTL key per direction:
// matchmaking:exclusion:{player}:{other}. Redis expiry removes stale entries.
type RedisExclusionLedger struct {
	client redis.UniversalClient
}

func NewRedisExclusionLedger(client redis.UniversalClient) *RedisExclusionLedger {
	return &RedisExclusionLedger{client: client}
}

func exclusionKey(playerID, otherID string) string {
	return exclusionPrefix + playerID + ":" + otherID
}

// Exclude writes both directions; an existing longer entry keeps its expiry.
func (l *RedisExclusionLedger) Exclude(ctx context.Context, playerID, otherID string, ttl time.Duration) error {
	keys := []string{exclusionKey(playerID, otherID), exclusionKey(otherID, playerID)}
	if err := excludeScript.Run(ctx, l.client, keys, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to write exclusion: %w", err)
	}
	return nil
}

func (l *RedisExclusionLedger) IsExcluded(ctx context.Context, playerID, otherID string) (bool, error) {
	n, err := l.client.Exists(ctx, exclusionKey(playerID, otherID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read exclusion: %w", err)
	}
	return n > 0, nil
}

func (l *RedisExclusionLedger) Excluded(ctx context.Context, playerID string) ([]string, error) {
	prefix := exclusionKey(playerID, "")
	var ids []string
	iter := l.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan exclusions: %w", err)
	}
	return ids, nil
}
