package util

// PutUintBE writes the low width bytes of value into dst, most significant
// byte first.
func PutUintBE(dst []byte, value uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		dst[i] = byte(value)
		value >>= 8
	}
}

func UintBE(src []byte, width int) uint64 {
	var ret uint64
	for i := 0; i < width; i++ {
		ret = ret<<8 | uint64(src[i])
	}
	return ret
}
