package wer

// concatMatch looks for the shortest token runs ending at the 1-based
// positions li and ri whose concatenations are equal, i.e.
//
//	concat(left[lj:li]) == concat(right[rj:ri])
//
// The runs grow leftward one token at a time, on whichever side has been
// fully consumed by the common suffix, and at most limit tokens may be pulled
// in. On success it returns the start positions (lj, rj), both strictly
// smaller than (li, ri). Otherwise it returns (li, ri) unchanged.
//
// With limit 0 only an exact single-token match is found.
func concatMatch(left, right []string, li, ri, limit int) (lj, rj int) {
	ls, rs := left[li-1], right[ri-1]
	lj, rj = li-1, ri-1

	for merges := 0; merges <= limit; merges++ {
		n := min(len(ls), len(rs))
		if ls[len(ls)-n:] != rs[len(rs)-n:] {
			break
		}
		ls, rs = ls[:len(ls)-n], rs[:len(rs)-n]

		switch {
		case ls == "" && rs == "":
			return lj, rj
		case ls == "":
			if lj == 0 {
				return li, ri
			}
			lj--
			ls = left[lj]
		default:
			if rj == 0 {
				return li, ri
			}
			rj--
			rs = right[rj]
		}
	}
	return li, ri
}
