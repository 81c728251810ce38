package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultReceiptCounterKey is the Redis key holding the last allocated receipt number.
const DefaultReceiptCounterKey = "luckypipe:receipt_no"

// ReceiptNumberAllocator hands out receipt numbers for new receipts.
type ReceiptNumberAllocator interface {
	Next(ctx context.Context) (int64, error)
}

// receiptNumberSource is the part of the ledger allocators read from.
type receiptNumberSource interface {
	NextReceiptNumber(ctx context.Context) (int64, error)
}

// LedgerAllocator allocates from the ledger's max receipt number. Numbers
// handed out by one allocator are strictly increasing, so sessions in the same
// process never share a number even before either entry is inserted.
type LedgerAllocator struct {
	ledger receiptNumberSource
	mu     sync.Mutex
	last   int64
}

// NewLedgerAllocator creates an allocator backed by the ledger.
func NewLedgerAllocator(ledger receiptNumberSource) *LedgerAllocator {
	return &LedgerAllocator{ledger: ledger}
}

func (a *LedgerAllocator) Next(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, err := a.ledger.NextReceiptNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read next receipt number: %w", err)
	}
	if n <= a.last {
		n = a.last + 1
	}
	a.last = n
	slog.Debug("LedgerAllocator.Next: allocated receipt number", "receiptNo", n)
	return n, nil
}

// raiseAndIncr lifts the counter to at least ARGV[1] and increments it.
var raiseAndIncr = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[1], ARGV[1])
end
return redis.call('INCR', KEYS[1])
`)

// RedisAllocator allocates from an atomic Redis counter shared by every
// process writing to the same ledger. The counter never falls behind the
// ledger's max receipt number.
type RedisAllocator struct {
	client redis.Scripter
	ledger receiptNumberSource
	key    string
}

// RedisAllocatorOption configures a RedisAllocator.
type RedisAllocatorOption func(*RedisAllocator)

// WithCounterKey overrides the Redis counter key.
func WithCounterKey(key string) RedisAllocatorOption {
	return func(a *RedisAllocator) {
		a.key = key
	}
}

// NewRedisAllocator creates an allocator using client for the counter and the
// ledger as its floor.
func NewRedisAllocator(client redis.Scripter, ledger receiptNumberSource, opts ...RedisAllocatorOption) *RedisAllocator {
	a := &RedisAllocator{client: client, ledger: ledger, key: DefaultReceiptCounterKey}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *RedisAllocator) Next(ctx context.Context) (int64, error) {
	floor, err := a.ledger.NextReceiptNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read next receipt number: %w", err)
	}
	n, err := raiseAndIncr.Run(ctx, a.client, []string{a.key}, floor-1).Int64()
	if err != nil {
		slog.Error("RedisAllocator.Next: counter update failed", "error", err, "key", a.key)
		return 0, fmt.Errorf("failed to increment receipt counter: %w", err)
	}
	slog.Debug("RedisAllocator.Next: allocated receipt number", "receiptNo", n)
	return n, nil
}
