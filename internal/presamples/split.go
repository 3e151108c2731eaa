// Package presamples partitions accumulated samples by matrix and persists
// them as presample packages on a blob store.
package presamples

import (
	"fmt"

	"landbalancer/internal/samples"
)

// MatrixData is the sample block of one matrix partition.
type MatrixData struct {
	Samples *samples.Matrix
	Indices []samples.MatrixIndex
	Type    samples.Partition
	Matrix  string
	Label   string
}

var partitionOrder = []samples.Partition{samples.Technosphere, samples.Biosphere}

// Split groups the rows of m by partition, technosphere first, keeping row
// order inside each group. Partitions without rows are omitted.
func Split(m *samples.Matrix, index []samples.MatrixIndex) ([]MatrixData, error) {
	if m.Rows() != len(index) {
		return nil, fmt.Errorf("%w: %d index entries for %d rows", samples.ErrShapeMismatch, len(index), m.Rows())
	}
	rows := make(map[samples.Partition][]int, len(partitionOrder))
	for i, idx := range index {
		if !idx.Partition.Valid() {
			return nil, fmt.Errorf("row %d: unknown partition %q", i, idx.Partition)
		}
		rows[idx.Partition] = append(rows[idx.Partition], i)
	}
	var out []MatrixData
	for _, p := range partitionOrder {
		sel := rows[p]
		if len(sel) == 0 {
			continue
		}
		indices := make([]samples.MatrixIndex, len(sel))
		for i, r := range sel {
			indices[i] = index[r]
		}
		out = append(out, MatrixData{
			Samples: m.SelectRows(sel),
			Indices: indices,
			Type:    p,
			Matrix:  p.MatrixName(),
			Label:   string(p),
		})
	}
	return out, nil
}
