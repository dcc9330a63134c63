package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the presence key only if it still belongs to the
// given session.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Presence publishes which devices are online as device:online:<identity>
// keys holding the session id. Keys expire after ttl unless refreshed.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

func presenceKey(identity string) string {
	return "device:online:" + identity
}

func (p *Presence) Online(ctx context.Context, identity, sessionID string) error {
	return p.client.Set(ctx, presenceKey(identity), sessionID, p.ttl).Err()
}

func (p *Presence) Offline(ctx context.Context, identity, sessionID string) error {
	return releaseScript.Run(ctx, p.client, []string{presenceKey(identity)}, sessionID).Err()
}

// IsOnline reports whether any process holds a live session for identity.
func (p *Presence) IsOnline(ctx context.Context, identity string) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKey(identity)).Result()
	return n > 0, err
}
