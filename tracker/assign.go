package tracker

import (
	"errors"
	"math"
)

// errNoAugmentingPath is returned when the solver cannot extend a matching,
// which only happens for cost matrices containing NaN or +Inf
var errNoAugmentingPath = errors.New("assignment: no augmenting path found")

// solveAssignment finds the minimum cost assignment of rows to columns of a
// cost matrix with rows <= cols using the shortest augmenting path variant of
// the Hungarian method.  rowsol[i] is the column assigned to row i and
// colsol[j] the row assigned to column j, or -1 when unassigned.
func solveAssignment(cost [][]float64) (rowsol, colsol []int, err error) {

	n := len(cost)

	if n == 0 {
		return nil, nil, nil
	}

	m := len(cost[0])

	if n > m {
		return nil, nil, errors.New("assignment: more rows than columns")
	}

	inf := math.Inf(1)

	// potentials and matching use 1 based indices with 0 as a sentinel column
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	match := make([]int, m+1)
	way := make([]int, m+1)
	minv := make([]float64, m+1)
	used := make([]bool, m+1)

	for i := 1; i <= n; i++ {

		match[0] = i
		col := 0

		for j := range minv {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[col] = true
			row := match[col]
			delta := inf
			next := -1

			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}

				cur := cost[row-1][j-1] - u[row] - v[j]

				if cur < minv[j] {
					minv[j] = cur
					way[j] = col
				}

				if minv[j] < delta {
					delta = minv[j]
					next = j
				}
			}

			if next < 0 {
				return nil, nil, errNoAugmentingPath
			}

			for j := 0; j <= m; j++ {
				if used[j] {
					u[match[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			col = next

			if match[col] == 0 {
				break
			}
		}

		// flip the augmenting path
		for col != 0 {
			prev := way[col]
			match[col] = match[prev]
			col = prev
		}
	}

	rowsol = make([]int, n)
	colsol = make([]int, m)

	for i := range rowsol {
		rowsol[i] = -1
	}

	for j := range colsol {
		colsol[j] = -1
	}

	for j := 1; j <= m; j++ {
		if match[j] > 0 {
			rowsol[match[j]-1] = j - 1
			colsol[j-1] = match[j] - 1
		}
	}

	return rowsol, colsol, nil
}

// linearAssignment matches tracks (rows) to detections (columns) of a cost
// matrix, leaving pairs costlier than thresh unmatched.  The matrix is padded
// to (rows+cols) square with thresh/2 so any row or column may opt out of a
// match, as done by the lapjv extend_cost option.
func linearAssignment(cost [][]float32, rows, cols int, thresh float32) (
	matches [][2]int, unmatchedRows, unmatchedCols []int, err error) {

	if rows == 0 || cols == 0 {
		for i := 0; i < rows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}
		for j := 0; j < cols; j++ {
			unmatchedCols = append(unmatchedCols, j)
		}
		return
	}

	n := rows + cols
	ext := make([][]float64, n)
	pad := float64(thresh) / 2

	for i := range ext {
		ext[i] = make([]float64, n)

		for j := range ext[i] {
			switch {
			case i < rows && j < cols:
				ext[i][j] = float64(cost[i][j])
			case i >= rows && j >= cols:
				ext[i][j] = 0
			default:
				ext[i][j] = pad
			}
		}
	}

	rowsol, colsol, err := solveAssignment(ext)

	if err != nil {
		return nil, nil, nil, err
	}

	for i := 0; i < rows; i++ {
		j := rowsol[i]

		if j >= 0 && j < cols {
			matches = append(matches, [2]int{i, j})
		} else {
			unmatchedRows = append(unmatchedRows, i)
		}
	}

	for j := 0; j < cols; j++ {
		if i := colsol[j]; i < 0 || i >= rows {
			unmatchedCols = append(unmatchedCols, j)
		}
	}

	return matches, unmatchedRows, unmatchedCols, nil
}
