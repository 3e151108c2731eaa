package samples

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromRowsAndAccessors(t *testing.T) {
	m, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	if m.Rows() != 2 || m.Cols() != 3 || m.At(1, 2) != 6 {
		t.Fatalf("unexpected matrix %+v", m)
	}
	m.Set(0, 0, 9)
	if diff := cmp.Diff([]float64{9, 2, 3}, m.Row(0)); diff != "" {
		t.Fatalf("row mismatch:\n%s", diff)
	}
	if _, err := FromRows([][]float64{{1}, {1, 2}}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	empty, err := FromRows(nil)
	if err != nil || empty.Rows() != 0 {
		t.Fatalf("unexpected empty matrix %+v %v", empty, err)
	}
}

func TestNilMatrix(t *testing.T) {
	var m *Matrix
	if m.Rows() != 0 || m.Cols() != 0 || m.Clone() != nil {
		t.Fatalf("nil matrix accessors must be safe")
	}
}

func TestAppendRows(t *testing.T) {
	m, _ := FromRows([][]float64{{1, 2}})
	b, _ := FromRows([][]float64{{3, 4}, {5, 6}})
	if err := m.AppendRows(b); err != nil {
		t.Fatalf("append: %v", err)
	}
	if m.Rows() != 3 || m.At(2, 1) != 6 {
		t.Fatalf("unexpected matrix after append %+v", m.Data())
	}
	wide, _ := FromRows([][]float64{{1, 2, 3}})
	if err := m.AppendRows(wide); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if m.Rows() != 3 {
		t.Fatalf("failed append changed the matrix")
	}
}

func TestCloneAndSelectRows(t *testing.T) {
	m, _ := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	cp := m.Clone()
	cp.Set(0, 0, 100)
	if m.At(0, 0) != 1 {
		t.Fatalf("clone shares storage")
	}
	sel := m.SelectRows([]int{2, 0})
	if diff := cmp.Diff([]float64{5, 6, 1, 2}, sel.Data()); diff != "" {
		t.Fatalf("select mismatch:\n%s", diff)
	}
}
