package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/correlator/internal/core/domain"
)

const DefaultKeyPrefix = "correlator:"

var takeBothScript = redis.NewScript(`
local customers = redis.call('GET', KEYS[1])
local products = redis.call('GET', KEYS[2])
if not customers or not products then
	return false
end

local customersTTL = redis.call('PTTL', KEYS[1])
local productsTTL = redis.call('PTTL', KEYS[2])
redis.call('DEL', KEYS[1], KEYS[2])
return {customers, products, customersTTL, productsTTL}
`)

type RedisAdapter struct {
	client       *redis.Client
	customersKey string
	productsKey  string
}

func NewRedisAdapter(client *redis.Client, keyPrefix string) *RedisAdapter {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisAdapter{
		client:       client,
		customersKey: keyPrefix + string(domain.SideCustomers),
		productsKey:  keyPrefix + string(domain.SideProducts),
	}
}

func (r *RedisAdapter) Key(side domain.Side) string {
	if side == domain.SideCustomers {
		return r.customersKey
	}
	return r.productsKey
}

func (r *RedisAdapter) PutCustomers(ctx context.Context, snapshot domain.CustomerSnapshot, ttl time.Duration) error {
	return r.put(ctx, r.customersKey, snapshot, ttl)
}

func (r *RedisAdapter) PutProducts(ctx context.Context, snapshot domain.ProductSnapshot, ttl time.Duration) error {
	return r.put(ctx, r.productsKey, snapshot, ttl)
}

func (r *RedisAdapter) GetBoth(ctx context.Context) (domain.Pending, error) {
	values, err := r.client.MGet(ctx, r.customersKey, r.productsKey).Result()
	if err != nil {
		return domain.Pending{}, fmt.Errorf("mget buffered sides: %w", err)
	}

	var pending domain.Pending
	if raw, ok := values[0].(string); ok {
		if pending.Customers, err = decodeCustomers(raw); err != nil {
			return domain.Pending{}, err
		}
	}
	if raw, ok := values[1].(string); ok {
		if pending.Products, err = decodeProducts(raw); err != nil {
			return domain.Pending{}, err
		}
	}
	return pending, nil
}

func (r *RedisAdapter) TakeBoth(ctx context.Context) (domain.Pending, bool, error) {
	result, err := takeBothScript.Run(ctx, r.client, []string{r.customersKey, r.productsKey}).Slice()
	if errors.Is(err, redis.Nil) {
		return domain.Pending{}, false, nil
	}
	if err != nil {
		return domain.Pending{}, false, fmt.Errorf("take buffered sides: %w", err)
	}
	if len(result) != 4 {
		return domain.Pending{}, false, fmt.Errorf("take buffered sides: unexpected reply of %d elements", len(result))
	}

	rawCustomers, _ := result[0].(string)
	rawProducts, _ := result[1].(string)

	customers, customersErr := decodeCustomers(rawCustomers)
	products, productsErr := decodeProducts(rawProducts)
	if customersErr != nil || productsErr != nil {
		// The script already deleted both keys. The readable side goes back
		// with its remaining TTL, the corrupt one is discarded.
		errs := []error{customersErr, productsErr}
		if customersErr == nil {
			errs = append(errs, r.restoreRaw(ctx, r.customersKey, rawCustomers, result[2]))
		}
		if productsErr == nil {
			errs = append(errs, r.restoreRaw(ctx, r.productsKey, rawProducts, result[3]))
		}
		return domain.Pending{}, false, errors.Join(errs...)
	}

	return domain.Pending{Customers: customers, Products: products}, true, nil
}

func (r *RedisAdapter) ClearBoth(ctx context.Context) error {
	return r.client.Del(ctx, r.customersKey, r.productsKey).Err()
}

func (r *RedisAdapter) RestoreCustomers(ctx context.Context, snapshot domain.CustomerSnapshot, ttl time.Duration) (bool, error) {
	return r.restore(ctx, r.customersKey, snapshot, ttl)
}

func (r *RedisAdapter) RestoreProducts(ctx context.Context, snapshot domain.ProductSnapshot, ttl time.Duration) (bool, error) {
	return r.restore(ctx, r.productsKey, snapshot, ttl)
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) put(ctx context.Context, key string, snapshot any, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *RedisAdapter) restore(ctx context.Context, key string, snapshot any, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", key, err)
	}

	ok, err := r.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) restoreRaw(ctx context.Context, key, raw string, pttl any) error {
	var ttl time.Duration
	if ms, ok := pttl.(int64); ok && ms > 0 {
		ttl = time.Duration(ms) * time.Millisecond
	}
	if err := r.client.SetNX(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("restore %s: %w", key, err)
	}
	return nil
}

func decodeCustomers(raw string) (*domain.CustomerSnapshot, error) {
	var snapshot domain.CustomerSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("%w: customers: %w", domain.ErrCorruptSnapshot, err)
	}
	return &snapshot, nil
}

func decodeProducts(raw string) (*domain.ProductSnapshot, error) {
	var snapshot domain.ProductSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("%w: products: %w", domain.ErrCorruptSnapshot, err)
	}
	return &snapshot, nil
}
