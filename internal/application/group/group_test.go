package group

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPartitionGroupsContiguousSamePrefix(t *testing.T) {
	batches := Partition([]string{"01-a", "01-b", "02-a", "x.txt", "y.txt"})

	require := func(cond bool, msg string) {
		if !cond {
			t.Fatal(msg)
		}
	}
	require(len(batches) == 4, "expected 4 batches")
	assert.Equal(t, []string{"01-a", "01-b"}, batches[0].Names)
	assert.True(t, batches[0].Concurrent())
	assert.Equal(t, []string{"02-a"}, batches[1].Names)
	assert.False(t, batches[1].Concurrent())
	assert.Equal(t, []string{"x.txt"}, batches[2].Names)
	assert.False(t, batches[2].Concurrent())
	assert.Equal(t, []string{"y.txt"}, batches[3].Names)
}

func TestCollectPreservesStartOrder(t *testing.T) {
	names := []string{"03-a", "03-b", "03-c", "z.txt"}
	results := Collect(names, func(name string) string {
		return "done:" + name
	})

	expected := make([]string, len(names))
	for i, n := range names {
		expected[i] = "done:" + n
	}
	assert.Equal(t, expected, results)
}

func TestCollectRunsConcurrentBatchEntitiesInParallel(t *testing.T) {
	names := []string{"04-a", "04-b", "04-c"}

	var active int32
	var maxActive int32
	var mu sync.Mutex

	Collect(names, func(name string) struct{} {
		n := atomic.AddInt32(&active, 1)
		mu.Lock()
		if n > maxActive {
			maxActive = n
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return struct{}{}
	})

	assert.Greater(t, maxActive, int32(1))
}

func TestRunProcessesAllEntitiesExactlyOnce(t *testing.T) {
	names := []string{"05-a", "05-b", "06-a", "plain.txt"}

	var mu sync.Mutex
	var seen []string
	Run(names, func(name string) {
		mu.Lock()
		seen = append(seen, name)
		mu.Unlock()
	})

	sort.Strings(seen)
	sortedNames := append([]string(nil), names...)
	sort.Strings(sortedNames)
	assert.Equal(t, sortedNames, seen)
}

func TestGroupKeyIgnoresNonNumericPrefix(t *testing.T) {
	assert.Equal(t, "", groupKey("abc-def"))
	assert.Equal(t, "12", groupKey("12-def"))
}
