package generator

// Distribute splits total questions over n chunks as evenly as possible.
// The first total%n chunks get one extra question so the allocation is
// reproducible for a fixed document. It returns nil when n is not positive.
func Distribute(total, n int) []int {
	if n <= 0 {
		return nil
	}
	base, rem := total/n, total%n
	alloc := make([]int, n)
	for i := range alloc {
		alloc[i] = base
		if i < rem {
			alloc[i]++
		}
	}
	return alloc
}
