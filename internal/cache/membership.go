package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// MembershipStore snapshots the set of geofences each vehicle is inside so
// transitions survive a restart.
type MembershipStore struct {
	client *redis.Client
}

func NewMembershipStore(client *redis.Client) *MembershipStore {
	return &MembershipStore{client: client}
}

func membershipKey(vehicleID string) string {
	return fmt.Sprintf("vehicle:%s:geofences", vehicleID)
}

func (s *MembershipStore) Get(ctx context.Context, vehicleID string) ([]string, error) {
	return s.client.SMembers(ctx, membershipKey(vehicleID)).Result()
}

func (s *MembershipStore) Replace(ctx context.Context, vehicleID string, geofenceIDs []string) error {
	key := membershipKey(vehicleID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(geofenceIDs) > 0 {
		members := make([]any, len(geofenceIDs))
		for i, id := range geofenceIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis membership replace failed: %w", err)
	}
	return nil
}
