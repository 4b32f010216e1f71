package kvstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dskvich/recipe-stream/pkg/database"
	"github.com/dskvich/recipe-stream/pkg/kvstore"
)

func backends(t *testing.T) map[string]func(t *testing.T) kvstore.Store {
	t.Helper()
	return map[string]func(t *testing.T) kvstore.Store{
		"memory": func(t *testing.T) kvstore.Store {
			return kvstore.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) kvstore.Store {
			db, err := database.NewSQLite(filepath.Join(t.TempDir(), "kv.db"))
			require.NoError(t, err)
			_, err = database.Migrate(db, database.DialectSQLite)
			require.NoError(t, err)
			s := kvstore.NewSQLStore(db)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s kvstore.Store)) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func TestStore_HashMerge(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()

		require.NoError(t, s.HSet(ctx, "message:1", map[string]string{"role": "user", "content": "hi"}))
		require.NoError(t, s.HSet(ctx, "message:1", map[string]string{"content": "hello", "state": "done"}))

		got, err := s.HGetAll(ctx, "message:1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"role": "user", "content": "hello", "state": "done"}, got)

		missing, err := s.HGetAll(ctx, "message:404")
		require.NoError(t, err)
		assert.Empty(t, missing)
	})
}

func TestStore_SortedSetOrdering(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()

		require.NoError(t, s.ZAdd(ctx, "z", kvstore.Z{Member: "c", Score: 3}, kvstore.Z{Member: "a", Score: 1}))
		require.NoError(t, s.ZAdd(ctx, "z", kvstore.Z{Member: "b", Score: 2}))
		require.NoError(t, s.ZAdd(ctx, "z", kvstore.Z{Member: "a", Score: 4}))

		asc, err := s.ZRange(ctx, "z", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []kvstore.Z{{"b", 2}, {"c", 3}, {"a", 4}}, asc)

		desc, err := s.ZRevRange(ctx, "z", 0, 2)
		require.NoError(t, err)
		assert.Equal(t, []kvstore.Z{{"a", 4}, {"c", 3}}, desc)

		paged, err := s.ZRange(ctx, "z", 1, 0)
		require.NoError(t, err)
		assert.Equal(t, []kvstore.Z{{"c", 3}, {"a", 4}}, paged)

		byScore, err := s.ZRangeByScore(ctx, "z", 2, 3)
		require.NoError(t, err)
		assert.Equal(t, []kvstore.Z{{"b", 2}, {"c", 3}}, byScore)

		score, ok, err := s.ZScore(ctx, "z", "c")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3.0, score)

		_, ok, err = s.ZScore(ctx, "z", "nope")
		require.NoError(t, err)
		assert.False(t, ok)

		empty, err := s.ZRange(ctx, "empty", 0, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestStore_IncrBy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()

		v, err := s.IncrBy(ctx, "seq", 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), v)

		v, err = s.IncrBy(ctx, "seq", 2)
		require.NoError(t, err)
		assert.Equal(t, int64(5), v)
	})
}

func TestStore_IncrByConcurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()

		var wg sync.WaitGroup
		results := make(chan int64, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.IncrBy(ctx, "seq", 1)
				assert.NoError(t, err)
				results <- v
			}()
		}
		wg.Wait()
		close(results)

		seen := map[int64]bool{}
		for v := range results {
			assert.False(t, seen[v], "duplicate value %d", v)
			seen[v] = true
		}
		assert.Len(t, seen, 20)
	})
}

func TestStore_ExecAppliesAll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()

		b := kvstore.NewBatch().
			HSet("message:1", map[string]string{"id": "1"}).
			HSet("message:2", map[string]string{"id": "2"}).
			ZAdd("chat:c:messages", kvstore.Z{Member: "1", Score: 1}, kvstore.Z{Member: "2", Score: 2})
		require.NoError(t, s.Exec(ctx, b))

		zs, err := s.ZRange(ctx, "chat:c:messages", 0, 0)
		require.NoError(t, err)
		assert.Len(t, zs, 2)

		m, err := s.HGetAll(ctx, "message:2")
		require.NoError(t, err)
		assert.Equal(t, "2", m["id"])
	})
}

func TestStore_ExecFailedGuardAppliesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()
		require.NoError(t, s.HSet(ctx, "message:a", map[string]string{"state": "done"}))

		b := kvstore.NewBatch().
			HSet("message:b", map[string]string{"id": "b"}).
			ZAdd("chat:c:messages", kvstore.Z{Member: "b", Score: 1}).
			HCompareAndSet("message:a", "state", "running", "done")

		err := s.Exec(ctx, b)
		assert.ErrorIs(t, err, kvstore.ErrConditionFailed)

		m, err := s.HGetAll(ctx, "message:b")
		require.NoError(t, err)
		assert.Empty(t, m)

		zs, err := s.ZRange(ctx, "chat:c:messages", 0, 0)
		require.NoError(t, err)
		assert.Empty(t, zs)
	})
}

func TestStore_CompareAndSetOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()
		require.NoError(t, s.HSet(ctx, "message:a", map[string]string{"state": "running"}))
		require.NoError(t, s.ZAdd(ctx, "running", kvstore.Z{Member: "a", Score: 1}))

		finalize := func(content string) error {
			return s.Exec(ctx, kvstore.NewBatch().
				HCompareAndSet("message:a", "state", "running", "done").
				HSet("message:a", map[string]string{"content": content}).
				ZRem("running", "a"))
		}

		require.NoError(t, finalize("first"))
		assert.ErrorIs(t, finalize("second"), kvstore.ErrConditionFailed)

		m, err := s.HGetAll(ctx, "message:a")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"state": "done", "content": "first"}, m)

		zs, err := s.ZRange(ctx, "running", 0, 0)
		require.NoError(t, err)
		assert.Empty(t, zs)
	})
}

func TestStore_ZAddNXKeepsExistingScore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()

		require.NoError(t, s.Exec(ctx, kvstore.NewBatch().ZAddNX("recipes:new", kvstore.Z{Member: "soup", Score: 10})))
		require.NoError(t, s.Exec(ctx, kvstore.NewBatch().
			ZAddNX("recipes:new", kvstore.Z{Member: "soup", Score: 30}, kvstore.Z{Member: "stew", Score: 20})))

		zs, err := s.ZRange(ctx, "recipes:new", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []kvstore.Z{{"soup", 10}, {"stew", 20}}, zs)
	})
}

func TestStore_ZAddNXConcurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 1; i <= 10; i++ {
			wg.Add(1)
			go func(score float64) {
				defer wg.Done()
				assert.NoError(t, s.Exec(ctx, kvstore.NewBatch().ZAddNX("recipes:new", kvstore.Z{Member: "soup", Score: score})))
			}(float64(i))
		}
		wg.Wait()

		zs, err := s.ZRange(ctx, "recipes:new", 0, 0)
		require.NoError(t, err)
		require.Len(t, zs, 1)

		// a later add must not move the member
		require.NoError(t, s.Exec(ctx, kvstore.NewBatch().ZAddNX("recipes:new", kvstore.Z{Member: "soup", Score: 99})))
		score, ok, err := s.ZScore(ctx, "recipes:new", "soup")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, zs[0].Score, score)
	})
}

func TestSQLStore_ExecRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	_, err = database.Migrate(db, database.DialectSQLite)
	require.NoError(t, err)
	s := kvstore.NewSQLStore(db)
	t.Cleanup(func() { s.Close() })

	_, err = db.ExecContext(ctx, `DROP TABLE kv_zsets`)
	require.NoError(t, err)

	b := kvstore.NewBatch().
		HSet("message:1", map[string]string{"id": "1", "role": "user"}).
		ZAdd("chat:c:messages", kvstore.Z{Member: "1", Score: 1})
	assert.Error(t, s.Exec(ctx, b))

	m, err := s.HGetAll(ctx, "message:1")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestStore_MissingGuardFieldFails(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		err := s.Exec(context.Background(), kvstore.NewBatch().HCompareAndSet("message:x", "state", "running", "done"))
		assert.ErrorIs(t, err, kvstore.ErrConditionFailed)
	})
}

func TestStore_CanceledContext(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s kvstore.Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Exec(ctx, kvstore.NewBatch().HSet("message:z", map[string]string{"id": "z"}))
		assert.Error(t, err)

		m, err := s.HGetAll(context.Background(), "message:z")
		require.NoError(t, err)
		assert.Empty(t, m)
	})
}

func TestBatch_Len(t *testing.T) {
	var nilBatch *kvstore.Batch
	assert.Zero(t, nilBatch.Len())
	assert.Equal(t, 3, kvstore.NewBatch().HSet("a", nil).ZAddNX("c", kvstore.Z{Member: "y"}).ZRem("b", "x").Len())
}
