package model

// Position orders updates in chain time: transaction version first, then the
// event index inside the transaction.
type Position struct {
	TransactionVersion int64
	EventIndex         int64
}

// Compare returns -1, 0 or +1 when p is before, equal to, or after o.
func (p Position) Compare(o Position) int {
	switch {
	case p.TransactionVersion < o.TransactionVersion:
		return -1
	case p.TransactionVersion > o.TransactionVersion:
		return 1
	case p.EventIndex < o.EventIndex:
		return -1
	case p.EventIndex > o.EventIndex:
		return 1
	default:
		return 0
	}
}

// After reports whether p is strictly later than o.
func (p Position) After(o Position) bool {
	return p.Compare(o) > 0
}
