package poster

// Group splits the item indices 0..batchSize-1 into contiguous chunks of at most groupSize,
// preserving order. Items of one chunk share a generated prompt and placement.
func Group(batchSize, groupSize int) [][]int {
	if batchSize <= 0 {
		return [][]int{}
	}
	if groupSize < 1 {
		groupSize = 1
	}
	groups := make([][]int, 0, (batchSize+groupSize-1)/groupSize)
	for start := 0; start < batchSize; start += groupSize {
		end := min(start+groupSize, batchSize)
		chunk := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, i)
		}
		groups = append(groups, chunk)
	}
	return groups
}
