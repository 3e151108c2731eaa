package samples

import (
	"fmt"

	"landbalancer/internal/inventory/core"
)

// Partition names the matrix a sample row belongs to.
type Partition string

const (
	Technosphere Partition = "technosphere"
	Biosphere    Partition = "biosphere"
)

// Valid reports whether p is a known partition.
func (p Partition) Valid() bool { return p == Technosphere || p == Biosphere }

// MatrixName returns the name of the matrix the partition populates.
func (p Partition) MatrixName() string { return string(p) + "_matrix" }

// MatrixIndex locates one sample row: the input (row) key, the output
// (column) activity key and the partition.
type MatrixIndex struct {
	Input     core.Key  `json:"input"`
	Output    core.Key  `json:"output"`
	Partition Partition `json:"type"`
}

// IndexEntry is one row index emitted by a resampler. The set is closed:
// Untagged and PreTagged are its only implementations.
type IndexEntry interface {
	// Normalize resolves the entry to its final matrix index.
	Normalize() (MatrixIndex, error)
	indexEntry()
}

func (Untagged) indexEntry()  {}
func (PreTagged) indexEntry() {}

// Untagged is an (input, output) pair placed in the biosphere matrix.
type Untagged struct {
	Input  core.Key
	Output core.Key
}

// Normalize tags the pair with the biosphere partition.
func (u Untagged) Normalize() (MatrixIndex, error) {
	return MatrixIndex{Input: u.Input, Output: u.Output, Partition: Biosphere}, nil
}

// PreTagged carries its partition explicitly and is passed through unchanged.
type PreTagged struct {
	Input     core.Key
	Output    core.Key
	Partition Partition
}

// Normalize returns the entry as is, rejecting unknown partitions.
func (p PreTagged) Normalize() (MatrixIndex, error) {
	if !p.Partition.Valid() {
		return MatrixIndex{}, fmt.Errorf("unknown partition %q for %s -> %s", p.Partition, p.Input, p.Output)
	}
	return MatrixIndex{Input: p.Input, Output: p.Output, Partition: p.Partition}, nil
}

// Block is a group of sample rows and their index entries, one entry per row.
type Block struct {
	Samples *Matrix
	Index   []IndexEntry
}

// Normalize validates the block shape and resolves its index entries.
func (b Block) Normalize() ([]MatrixIndex, error) {
	if b.Samples == nil {
		return nil, fmt.Errorf("%w: block without samples", ErrShapeMismatch)
	}
	if len(b.Index) != b.Samples.Rows() {
		return nil, fmt.Errorf("%w: %d index entries for %d rows", ErrShapeMismatch, len(b.Index), b.Samples.Rows())
	}
	out := make([]MatrixIndex, len(b.Index))
	for i, e := range b.Index {
		if e == nil {
			return nil, fmt.Errorf("%w: nil index entry at row %d", ErrShapeMismatch, i)
		}
		idx, err := e.Normalize()
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}
