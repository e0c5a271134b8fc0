package cart

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store keeps the per-owner cart state that is not derivable from the item
// rows themselves: the checkout-total voucher code, and the item ids of a
// guest's cart (guests have no user id to query by).
type Store struct {
	Client *redis.Client
	TTL    time.Duration
}

func totalVoucherKey(owner string) string { return "cart:total_voucher:" + owner }
func guestItemsKey(token string) string   { return "cart:guest_items:" + token }

// SetTotalVoucher stores the checkout-total code applied by the owner.
func (s *Store) SetTotalVoucher(ctx context.Context, owner, code string) error {
	return s.Client.Set(ctx, totalVoucherKey(owner), code, s.TTL).Err()
}

// TotalVoucher returns the stored code, or "" when none is applied.
func (s *Store) TotalVoucher(ctx context.Context, owner string) (string, error) {
	code, err := s.Client.Get(ctx, totalVoucherKey(owner)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

// ClearTotalVoucher removes the stored code.
func (s *Store) ClearTotalVoucher(ctx context.Context, owner string) error {
	return s.Client.Del(ctx, totalVoucherKey(owner)).Err()
}

// AddGuestItem records an item id under a guest's cart token.
func (s *Store) AddGuestItem(ctx context.Context, token, itemID string) error {
	key := guestItemsKey(token)
	if err := s.Client.SAdd(ctx, key, itemID).Err(); err != nil {
		return err
	}
	return s.Client.Expire(ctx, key, s.TTL).Err()
}

// GuestItems returns the item ids recorded under a guest's cart token.
func (s *Store) GuestItems(ctx context.Context, token string) ([]string, error) {
	ids, err := s.Client.SMembers(ctx, guestItemsKey(token)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return ids, err
}

// RemoveGuestItem drops an item id from a guest's cart token.
func (s *Store) RemoveGuestItem(ctx context.Context, token, itemID string) error {
	return s.Client.SRem(ctx, guestItemsKey(token), itemID).Err()
}
