package tile

var (
	mortonMasks = [...]uint64{
		0x5555555555555555,
		0x3333333333333333,
		0x0f0f0f0f0f0f0f0f,
		0x00ff00ff00ff00ff,
		0x0000ffff0000ffff,
	}
	mortonShifts = [...]uint{1, 2, 4, 8, 16}
)

// interleave spreads the bits of x over the even and those of y over the odd bits
// of a Z-order (Morton) code.
func interleave(x, y uint32) uint64 {
	return spread(x) | spread(y)<<1
}

func spread(v uint32) uint64 {
	z := uint64(v)
	for i := len(mortonMasks) - 1; i >= 0; i-- {
		z = (z | z<<mortonShifts[i]) & mortonMasks[i]
	}
	return z
}
