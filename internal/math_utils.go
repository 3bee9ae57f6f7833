package internal

type Integers interface {
	int | int32 | int64 | uint16 | uint32 | uint64
}

// NearestMultiple rounds j down to the nearest multiple of k. A non-positive k
// yields zero.
func NearestMultiple[T Integers](j, k T) T {
	if k <= 0 || j <= 0 {
		return 0
	}
	return (j / k) * k
}
