package queue

import "math/rand/v2"

// AssignBatchNumbers returns the 1-based batch number for each of n items
// partitioned into fixed-size batches in their current order: items 0..size-1
// get batch 1, the next size items batch 2, and so on. The final batch may be
// short.
func AssignBatchNumbers(n, batchSize int) []int {
	if n <= 0 || batchSize <= 0 {
		return nil
	}
	numbers := make([]int, n)
	for i := range numbers {
		numbers[i] = i/batchSize + 1
	}
	return numbers
}

// shuffleItems permutes items uniformly in place. Each item keeps its batch
// number, so the batch-size distribution of the campaign is unchanged; only
// processing order is randomized.
func shuffleItems(items []*Item, rnd *rand.Rand) {
	swap := func(i, j int) { items[i], items[j] = items[j], items[i] }
	if rnd != nil {
		rnd.Shuffle(len(items), swap)
		return
	}
	rand.Shuffle(len(items), swap)
}
