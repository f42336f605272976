// Package group implements the grouped-concurrency scheduler from
// spec.md §4.5: entities sharing a numeric filename prefix run
// concurrently within their group; groups themselves run strictly in
// order. Fan-out shape grounded on the teacher's
// internal/application/workflow.WorkflowManager.RunAll
// (goroutine-per-item + sync.WaitGroup), grouping algorithm grounded on
// original_source/dirorch/entities.py's group_entities.
package group

import (
	"regexp"
	"strings"
	"sync"
)

var groupPattern = regexp.MustCompile(`^([0-9]+)-`)

// Batch is a contiguous run of entity filenames sharing a group key.
// Key is empty for ungrouped (non-matching) filenames, in which case the
// batch always holds exactly one entity.
type Batch struct {
	Names []string
	Key   string
}

// Concurrent reports whether this batch's entities should run in
// parallel: non-empty key and more than one entity.
func (b Batch) Concurrent() bool {
	return b.Key != "" && len(b.Names) > 1
}

// Partition splits sorted entity filenames into ordered batches per
// spec.md §4.5's grouping rule: walk in order, accumulate a contiguous
// run of same-key entities, flush on key change.
func Partition(names []string) []Batch {
	var batches []Batch
	var pending []string
	pendingKey := ""
	havePending := false

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batches = append(batches, Batch{Names: pending, Key: pendingKey})
		pending = nil
	}

	for _, name := range names {
		key := groupKey(name)
		if !havePending {
			pending = []string{name}
			pendingKey = key
			havePending = true
			continue
		}
		if key != "" && key == pendingKey {
			pending = append(pending, name)
			continue
		}
		flush()
		pending = []string{name}
		pendingKey = key
	}
	flush()
	return batches
}

// groupKey returns the integer value of the matched digit run, written
// without leading zeros: "01-a" and "1-b" share the key "1". Keeping the
// canonical digits as a string avoids overflow on long prefixes.
func groupKey(name string) string {
	m := groupPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	key := strings.TrimLeft(m[1], "0")
	if key == "" {
		return "0"
	}
	return key
}

// Collect applies action to every name in names, grouped per Partition,
// and returns one result per name in the original (start) order — even
// though concurrent batches may finish their actions out of order. This
// is what lets a caller serialize side effects (e.g. jumps) discovered
// during concurrent execution back into start order once a batch
// completes (spec.md §5).
func Collect[T any](names []string, action func(name string) T) []T {
	results := make([]T, len(names))
	index := 0
	for _, batch := range Partition(names) {
		if !batch.Concurrent() {
			for _, name := range batch.Names {
				results[index] = action(name)
				index++
			}
			continue
		}

		start := index
		var wg sync.WaitGroup
		wg.Add(len(batch.Names))
		for offset, name := range batch.Names {
			offset, name := offset, name
			go func() {
				defer wg.Done()
				results[start+offset] = action(name)
			}()
		}
		wg.Wait()
		index += len(batch.Names)
	}
	return results
}

// Run applies action to every name in names, grouped per Partition:
// batches run strictly in order; within a concurrent batch, action runs
// for every entity in its own goroutine and Run waits for all of them
// before moving to the next batch (spec.md §5's ordering guarantee).
// One entity's action failing does not cancel its siblings.
func Run(names []string, action func(name string)) {
	Collect(names, func(name string) struct{} {
		action(name)
		return struct{}{}
	})
}
