package space

import "testing"

func TestComputeDestinationsGroupsStably(t *testing.T) {
	// keys: 1, 0, 1, 0, 2 -- items with equal keys must keep relative order.
	keys := []int{1, 0, 1, 0, 2}
	dest, offsets := computeDestinations(len(keys), 0, len(keys), 3, func(i int) int { return keys[i] })

	items := applyPermutation(keys, dest)
	want := []int{0, 0, 1, 1, 2}
	for i, v := range want {
		if items[i] != v {
			t.Fatalf("items = %v, want %v", items, want)
		}
	}
	if offsets[0] != 0 || offsets[1] != 2 || offsets[2] != 4 || offsets[3] != 5 {
		t.Fatalf("offsets = %v, want [0 2 4 5]", offsets)
	}
}

func TestComputeDestinationsWindowed(t *testing.T) {
	// Only items in [1,4) participate; items outside keep their index.
	keys := []int{9, 1, 0, 1, 9}
	dest, offsets := computeDestinations(len(keys), 1, 3, 2, func(i int) int { return keys[i] })

	if dest[0] != 0 || dest[4] != 4 {
		t.Fatalf("entries outside the window must be identity, got dest=%v", dest)
	}
	items := applyPermutation(keys, dest)
	if items[1] != 0 {
		t.Fatalf("expected the lone key-0 item to sort first within the window, got %v", items)
	}
	if offsets[0] != 0 || offsets[1] != 1 || offsets[2] != 3 {
		t.Fatalf("offsets = %v, want [0 1 3]", offsets)
	}
}
