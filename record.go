package nativebind

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"
)

// Shape of the matrix embedded in Record.
const (
	MatrixRows = 4
	MatrixCols = 2
)

// RecordSize is the size in bytes of the native aggregate Record mirrors.
const RecordSize = 88

// Record mirrors the native module's derived type byte for byte:
//
//	double buzz;       // offset 0
//	double broken;     // offset 8
//	int    how_many;   // offset 16, followed by 4 bytes of padding
//	double data[8];    // offset 24, 4x2 column-major
//
// Records are passed to native code by address and may be rewritten in place,
// so they must not contain Go pointers.
type Record struct {
	Buzz    float64
	Broken  float64
	HowMany int32
	_       [4]byte
	Data    [MatrixRows * MatrixCols]float64
}

// Compile-time layout checks. Each expression fails to build (constant index
// out of range or overflow) if the Go layout drifts from the native one.
var (
	_ = [1]struct{}{}[unsafe.Sizeof(Record{})-RecordSize]
	_ = [1]struct{}{}[unsafe.Offsetof(Record{}.Buzz)-0]
	_ = [1]struct{}{}[unsafe.Offsetof(Record{}.Broken)-8]
	_ = [1]struct{}{}[unsafe.Offsetof(Record{}.HowMany)-16]
	_ = [1]struct{}{}[unsafe.Offsetof(Record{}.Data)-24]
)

// Matrix returns a column-major view of r.Data shaped MatrixRows x MatrixCols.
// The view aliases the record; later native mutations are visible through it.
func (r *Record) Matrix() ColumnMajor {
	return NewColumnMajor(r.Data[:], MatrixRows, MatrixCols)
}

// Bytes returns the raw memory of the record. The slice aliases r.
func (r *Record) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r)), RecordSize)
}

func (r *Record) String() string {
	return fmt.Sprintf("Record(buzz=%s, broken=%s, how_many=%d, data=%s)",
		formatFloat(r.Buzz, -1), formatFloat(r.Broken, -1), r.HowMany, r.Matrix())
}

// ColumnMajor is a rows x cols matrix view over a flat buffer stored with the
// row index varying fastest. It never copies the buffer.
type ColumnMajor struct {
	buf  []float64
	rows int
	cols int
}

// NewColumnMajor wraps buf as a rows x cols column-major matrix. It panics if
// buf does not hold exactly rows*cols elements.
func NewColumnMajor(buf []float64, rows, cols int) ColumnMajor {
	if rows < 0 || cols < 0 || len(buf) != rows*cols {
		panic(fmt.Sprintf("nativebind: %dx%d matrix over %d elements", rows, cols, len(buf)))
	}
	return ColumnMajor{buf: buf, rows: rows, cols: cols}
}

// Rows returns the number of rows.
func (m ColumnMajor) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m ColumnMajor) Cols() int { return m.cols }

func (m ColumnMajor) index(row, col int) int {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("nativebind: index [%d][%d] out of range for %dx%d matrix", row, col, m.rows, m.cols))
	}
	return col*m.rows + row
}

// At returns the element at [row][col].
func (m ColumnMajor) At(row, col int) float64 {
	return m.buf[m.index(row, col)]
}

// Set stores v at [row][col] in the underlying buffer.
func (m ColumnMajor) Set(row, col int, v float64) {
	m.buf[m.index(row, col)] = v
}

// RowMajor copies the matrix into a freshly allocated [row][col] slice.
func (m ColumnMajor) RowMajor() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = make([]float64, m.cols)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func (m ColumnMajor) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < m.rows; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteByte('[')
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(formatFloat(m.At(i, j), -1))
		}
		sb.WriteByte(']')
	}
	sb.WriteByte(']')
	return sb.String()
}

func formatFloat(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}
