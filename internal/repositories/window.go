package repositories

// Window turns an offset/count pair into the half-open ordinal range
// [lo, hi) of a sequence holding total slots. A negative offset counts from
// the end. The range is clamped to the sequence and is empty when count is
// not positive.
func Window(offset, count, total int) (lo, hi int) {
	if count <= 0 || total <= 0 {
		return 0, 0
	}
	lo = offset
	if offset < 0 {
		lo = total + offset
	}
	if lo < 0 {
		lo = 0
	}
	if lo >= total {
		return 0, 0
	}
	hi = lo + count
	if offset < 0 && total+offset < 0 {
		hi = total + offset + count
	}
	if hi > total {
		hi = total
	}
	if hi <= lo {
		return 0, 0
	}
	return lo, hi
}
