package postgres

import (
	"fmt"
	"strings"
)

// maxBindParams is the postgres limit on bind parameters per statement.
const maxBindParams = 65535

// valuesClause renders "($1, $2, ...), (...)" for rows*cols parameters.
func valuesClause(rows, cols int) string {
	var b strings.Builder
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*cols+c+1)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// chunks splits n rows into [lo, hi) ranges that fit the bind parameter limit.
func chunks(n, cols int) [][2]int {
	size := maxBindParams / cols
	out := make([][2]int, 0, n/size+1)
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}
