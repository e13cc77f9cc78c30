package batch_test

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaaruu/bunsane-sub005/internal/batch"
)

func TestLoadManyFetchesEachKeyOnce(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&calls, 1)
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			out[k] = len(k)
		}
		return out, nil
	}
	l := batch.NewLoader(fetch)

	out, err := l.LoadMany(context.Background(), []string{"a", "bb", "a", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, 1, out["a"])
	assert.Equal(t, 2, out["bb"])
	assert.Equal(t, 3, out["ccc"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoadManyReusesPrimedValues(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&calls, 1)
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			out[k] = -1
		}
		return out, nil
	}
	l := batch.NewLoader(fetch)
	l.Prime("a", 99)

	out, err := l.LoadMany(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 99, out["a"])
	assert.Equal(t, -1, out["b"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoadCoalescesConcurrentCallsForSameKey(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]int{keys[0]: 7}, nil
	}
	l := batch.NewLoader(fetch)

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := l.Load(context.Background(), "shared-key")
			assert.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoadCoalescesDistinctKeysWithinTheSameWindowIntoOneFetch(t *testing.T) {
	var calls int32
	var batchSizes []int
	var mu sync.Mutex
	fetch := func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&calls, 1)
		mu.Lock()
		batchSizes = append(batchSizes, len(keys))
		mu.Unlock()
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			out[k] = len(k)
		}
		return out, nil
	}
	l := batch.NewLoaderWithWindow(fetch, 20*time.Millisecond)

	var wg sync.WaitGroup
	results := make([]int, 3)
	keys := []string{"a", "bb", "ccc"}
	for i, k := range keys {
		wg.Add(1)
		go func(idx int, key string) {
			defer wg.Done()
			v, err := l.Load(context.Background(), key)
			assert.NoError(t, err)
			results[idx] = v
		}(i, k)
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, results)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, batchSizes, 1)
	assert.Equal(t, 3, batchSizes[0])
}

func TestLoadLaterKeysAfterWindowClosesStartANewBatch(t *testing.T) {
	var calls int32
	var seenBatches [][]string
	var mu sync.Mutex
	fetch := func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&calls, 1)
		cp := append([]string(nil), keys...)
		sort.Strings(cp)
		mu.Lock()
		seenBatches = append(seenBatches, cp)
		mu.Unlock()
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			out[k] = len(k)
		}
		return out, nil
	}
	l := batch.NewLoaderWithWindow(fetch, 5*time.Millisecond)

	v, err := l.Load(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	time.Sleep(20 * time.Millisecond)

	v, err = l.Load(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, seenBatches, 2)
	assert.Equal(t, []string{"first"}, seenBatches[0])
	assert.Equal(t, []string{"second"}, seenBatches[1])
}
