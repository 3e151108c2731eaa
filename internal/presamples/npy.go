package presamples

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"landbalancer/internal/samples"
)

var npyMagic = []byte("\x93NUMPY")

// encodeNPY writes m as a NumPy v1.0 array of little-endian float64 in C order.
func encodeNPY(w io.Writer, m *samples.Matrix) error {
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, %d), }", m.Rows(), m.Cols())
	// magic(6) + version(2) + header length(2) + header + '\n', padded to 64 bytes.
	total := len(npyMagic) + 4 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return errors.New("npy header too long")
	}
	var buf bytes.Buffer
	buf.Grow(len(npyMagic) + 4 + len(header) + 8*len(m.Data()))
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	var cell [8]byte
	for _, v := range m.Data() {
		binary.LittleEndian.PutUint64(cell[:], math.Float64bits(v))
		buf.Write(cell[:])
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// decodeNPY reads a 2-D '<f8' C-order array written by encodeNPY.
func decodeNPY(b []byte) (*samples.Matrix, error) {
	if len(b) < 10 || !bytes.Equal(b[:6], npyMagic) {
		return nil, errors.New("npy: bad magic")
	}
	if b[6] != 1 {
		return nil, fmt.Errorf("npy: unsupported version %d.%d", b[6], b[7])
	}
	hlen := int(binary.LittleEndian.Uint16(b[8:10]))
	if len(b) < 10+hlen {
		return nil, errors.New("npy: truncated header")
	}
	header := string(b[10 : 10+hlen])
	if !strings.Contains(header, "'descr': '<f8'") || !strings.Contains(header, "'fortran_order': False") {
		return nil, fmt.Errorf("npy: unsupported header %q", strings.TrimSpace(header))
	}
	rows, cols, err := parseShape(header)
	if err != nil {
		return nil, err
	}
	data := b[10+hlen:]
	if len(data) != 8*rows*cols {
		return nil, fmt.Errorf("npy: %d data bytes for shape (%d, %d)", len(data), rows, cols)
	}
	m := samples.NewMatrix(rows, cols)
	out := m.Data()
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return m, nil
}

func parseShape(header string) (int, int, error) {
	start := strings.Index(header, "'shape': (")
	if start < 0 {
		return 0, 0, errors.New("npy: missing shape")
	}
	rest := header[start+len("'shape': ("):]
	end := strings.Index(rest, ")")
	if end < 0 {
		return 0, 0, errors.New("npy: malformed shape")
	}
	parts := strings.Split(rest[:end], ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("npy: want 2-D shape, got (%s)", rest[:end])
	}
	rows, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("npy: shape: %w", err)
	}
	cols, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("npy: shape: %w", err)
	}
	return rows, cols, nil
}
