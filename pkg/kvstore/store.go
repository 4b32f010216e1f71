// Package kvstore is the durable associative store behind the message log:
// field maps ("hashes"), score-sorted sets, counters, and atomic batches.
package kvstore

import (
	"context"
	"errors"
)

// ErrConditionFailed is returned by Exec when a compare-and-set guard does not match.
// Nothing from the batch is applied in that case.
var ErrConditionFailed = errors.New("batch condition failed")

// Z is a member of a sorted set.
type Z struct {
	Member string
	Score  float64
}

type Store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	ZAdd(ctx context.Context, key string, members ...Z) error
	ZRange(ctx context.Context, key string, offset, limit int) ([]Z, error)
	ZRevRange(ctx context.Context, key string, offset, limit int) ([]Z, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]Z, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)

	IncrBy(ctx context.Context, key string, n int64) (int64, error)

	// Exec applies every queued operation of b as one unit, or none of them.
	Exec(ctx context.Context, b *Batch) error

	Close() error
}

type opKind int

const (
	opHSet opKind = iota
	opZAdd
	opZAddNX
	opZRem
	opHCompareAndSet
)

type op struct {
	kind     opKind
	key      string
	fields   map[string]string
	members  []Z
	field    string
	expected string
	value    string
}

// Batch queues writes to be applied atomically by Store.Exec.
type Batch struct {
	ops []op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) HSet(key string, fields map[string]string) *Batch {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	b.ops = append(b.ops, op{kind: opHSet, key: key, fields: copied})
	return b
}

func (b *Batch) ZAdd(key string, members ...Z) *Batch {
	b.ops = append(b.ops, op{kind: opZAdd, key: key, members: append([]Z(nil), members...)})
	return b
}

// ZAddNX adds members that are not in the set yet. Existing members keep their score.
func (b *Batch) ZAddNX(key string, members ...Z) *Batch {
	b.ops = append(b.ops, op{kind: opZAddNX, key: key, members: append([]Z(nil), members...)})
	return b
}

func (b *Batch) ZRem(key string, members ...string) *Batch {
	zs := make([]Z, 0, len(members))
	for _, m := range members {
		zs = append(zs, Z{Member: m})
	}
	b.ops = append(b.ops, op{kind: opZRem, key: key, members: zs})
	return b
}

// HCompareAndSet sets field to value only if it currently equals expected.
// A mismatch, or a missing field, fails the whole batch with ErrConditionFailed.
func (b *Batch) HCompareAndSet(key, field, expected, value string) *Batch {
	b.ops = append(b.ops, op{kind: opHCompareAndSet, key: key, field: field, expected: expected, value: value})
	return b
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// guards returns the compare-and-set operations. Backends check and apply them
// before any other queued write.
func (b *Batch) guards() []op {
	var out []op
	for _, o := range b.ops {
		if o.kind == opHCompareAndSet {
			out = append(out, o)
		}
	}
	return out
}

// writes returns the unconditional operations in queue order.
func (b *Batch) writes() []op {
	var out []op
	for _, o := range b.ops {
		if o.kind != opHCompareAndSet {
			out = append(out, o)
		}
	}
	return out
}
