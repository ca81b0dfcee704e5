package pipeline

// PlanBatches splits pages 1..total into windows of at most size pages,
// each sharing overlap pages with the previous one so that a question
// crossing a window edge is seen whole at least once.
func PlanBatches(total, size, overlap int) [][]int {
	if total <= 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var batches [][]int
	for start := 1; ; start += size - overlap {
		end := min(start+size-1, total)
		pages := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}
		batches = append(batches, pages)
		if end == total {
			break
		}
	}
	return batches
}
