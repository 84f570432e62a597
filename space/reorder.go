package space

// computeDestinations buckets the count items starting at start within an
// n-length array into nKeys groups by key(globalIndex), returning a
// full-length destination array (identity outside [start, start+count)) and
// the per-key offsets within the window. The grouping is stable: items
// sharing a key keep their relative order, so repeated rebuilds of an
// unchanged arrangement are reproducible.
func computeDestinations(n, start, count, nKeys int, key func(globalIndex int) int) (dest []int, offsets []int) {
	dest = make([]int, n)
	for i := range dest {
		dest[i] = i
	}
	offsets = make([]int, nKeys+1)
	if count == 0 {
		return dest, offsets
	}

	counts := make([]int, nKeys+1)
	keys := make([]int, count)
	for i := 0; i < count; i++ {
		k := key(start + i)
		keys[i] = k
		counts[k+1]++
	}
	for k := 0; k < nKeys; k++ {
		offsets[k+1] = offsets[k] + counts[k+1]
	}

	cursor := append([]int(nil), offsets...)
	for i := 0; i < count; i++ {
		k := keys[i]
		dest[start+i] = start + cursor[k]
		cursor[k]++
	}
	return dest, offsets
}

// applyPermutation returns a copy of items reordered so that item i lands
// at dest[i].
func applyPermutation[T any](items []T, dest []int) []T {
	out := make([]T, len(items))
	for i := range items {
		out[dest[i]] = items[i]
	}
	return out
}
