package wer

// Table is the edit distance table between two token sequences. Cell (i, j)
// holds the minimum cost of transforming the first i left tokens into the
// first j right tokens.
//
// A Table is immutable once built and safe for concurrent reads.
type Table struct {
	left  sequence
	right sequence
	limit int
	dp    [][]int
}

func newTable(left, right sequence, limit int) *Table {
	nl, nr := left.len(), right.len()

	cells := make([]int, (nl+1)*(nr+1))
	dp := make([][]int, nl+1)
	for i := range dp {
		dp[i] = cells[i*(nr+1) : (i+1)*(nr+1)]
		dp[i][0] = i
	}
	for j := range dp[0] {
		dp[0][j] = j
	}

	for i := 1; i <= nl; i++ {
		for j := 1; j <= nr; j++ {
			sub := 1
			if left.keys[i-1] == right.keys[j-1] {
				sub = 0
			}
			cost := min(
				dp[i][j-1]+1,
				dp[i-1][j]+1,
				dp[i-1][j-1]+sub,
			)
			// A zero-merge match is the equal-token diagonal above.
			if limit > 0 {
				if ci, cj := concatMatch(left.keys, right.keys, i, j, limit); ci < i {
					cost = min(cost, dp[ci][cj])
				}
			}
			dp[i][j] = cost
		}
	}

	return &Table{left: left, right: right, limit: limit, dp: dp}
}

// Rows returns the number of left tokens.
func (t *Table) Rows() int { return t.left.len() }

// Cols returns the number of right tokens.
func (t *Table) Cols() int { return t.right.len() }

// MergeLimit returns the merge limit the table was built with.
func (t *Table) MergeLimit() int { return t.limit }

// At returns cell (i, j). It panics when i or j is out of range.
func (t *Table) At(i, j int) int { return t.dp[i][j] }

// Distance returns the total edit distance.
func (t *Table) Distance() int { return t.dp[t.Rows()][t.Cols()] }

// Rate returns Distance divided by the larger of Rows and Cols, or 0 when
// both sides are empty.
func (t *Table) Rate() float64 { return rate(t.Distance(), t.Rows(), t.Cols()) }
