package util

import "cmp"

func Size[T any](data []T) int {
	return len(data)
}

func Sum[T ~int | ~int32 | ~int64 | ~uint64](data []T) int64 {
	var ret int64
	for _, v := range data {
		ret += int64(v)
	}
	return ret
}

// MaxValue returns the largest element and its index. -1 for empty data.
func MaxValue[T cmp.Ordered](data []T) (T, int) {
	var ret T
	idx := -1
	for i, v := range data {
		if idx < 0 || v > ret {
			ret = v
			idx = i
		}
	}
	return ret, idx
}

func CeilDiv[T ~int | ~int64](a, b T) T {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
