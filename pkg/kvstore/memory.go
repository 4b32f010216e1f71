package kvstore

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	hashes   map[string]map[string]string
	zsets    map[string]map[string]float64
	counters map[string]int64
}

// NewMemoryStore returns a process-local Store. Every operation, including a whole batch,
// runs under one lock so readers never observe a partially applied batch.
func NewMemoryStore() *memoryStore {
	return &memoryStore{
		hashes:   make(map[string]map[string]string),
		zsets:    make(map[string]map[string]float64),
		counters: make(map[string]int64),
	}
}

func (m *memoryStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.hset(key, fields)
	return nil
}

func (m *memoryStore) hset(key string, fields map[string]string) {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
}

func (m *memoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) ZAdd(ctx context.Context, key string, members ...Z) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.zadd(key, members)
	return nil
}

func (m *memoryStore) zadd(key string, members []Z) {
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64, len(members))
		m.zsets[key] = z
	}
	for _, member := range members {
		z[member.Member] = member.Score
	}
}

func (m *memoryStore) zaddNX(key string, members []Z) {
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64, len(members))
		m.zsets[key] = z
	}
	for _, member := range members {
		if _, exists := z[member.Member]; !exists {
			z[member.Member] = member.Score
		}
	}
}

func (m *memoryStore) zrem(key string, members []Z) {
	z, ok := m.zsets[key]
	if !ok {
		return
	}
	for _, member := range members {
		delete(z, member.Member)
	}
	if len(z) == 0 {
		delete(m.zsets, key)
	}
}

func (m *memoryStore) sorted(key string) []Z {
	out := make([]Z, 0, len(m.zsets[key]))
	for member, score := range m.zsets[key] {
		out = append(out, Z{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func page(all []Z, offset, limit int) []Z {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []Z{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (m *memoryStore) ZRange(ctx context.Context, key string, offset, limit int) ([]Z, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return page(m.sorted(key), offset, limit), nil
}

func (m *memoryStore) ZRevRange(ctx context.Context, key string, offset, limit int) ([]Z, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.sorted(key)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return page(all, offset, limit), nil
}

func (m *memoryStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]Z, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Z{}
	for _, z := range m.sorted(key) {
		if z.Score >= min && z.Score <= max {
			out = append(out, z)
		}
	}
	return out, nil
}

func (m *memoryStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	score, ok := m.zsets[key][member]
	return score, ok, nil
}

func (m *memoryStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[key] += n
	return m.counters[key], nil
}

func (m *memoryStore) Exec(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Len() == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	guards := b.guards()
	for _, g := range guards {
		if current, ok := m.hashes[g.key][g.field]; !ok || current != g.expected {
			return ErrConditionFailed
		}
	}
	for _, g := range guards {
		m.hset(g.key, map[string]string{g.field: g.value})
	}

	for _, o := range b.writes() {
		switch o.kind {
		case opHSet:
			m.hset(o.key, o.fields)
		case opZAdd:
			m.zadd(o.key, o.members)
		case opZAddNX:
			m.zaddNX(o.key, o.members)
		case opZRem:
			m.zrem(o.key, o.members)
		}
	}
	return nil
}

func (m *memoryStore) Close() error { return nil }
