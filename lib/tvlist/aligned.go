package tvlist

import (
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// AlignedTVList
// --------------------------------------------------------------------------

// AlignedTVList is a column-major row set holding (timestamp, aligned
// multi-column value) tuples. All columns always hold exactly rowCount logical
// entries; per-column BitMaps mark null cells.
type AlignedTVList struct {
	dataTypes  []DataType
	timestamps []int64
	columns    []*column
	// bitMaps[k] marks null rows in column k; nil until the first null is
	// recorded for that column
	bitMaps  []*BitMap
	rowCount int
}

// NewAlignedTVList creates an empty list with the given column types.
func NewAlignedTVList(dataTypes []DataType) *AlignedTVList {
	if len(dataTypes) == 0 {
		panic("tvlist: at least one value column is required")
	}
	columns := make([]*column, len(dataTypes))
	for i, t := range dataTypes {
		columns[i] = newColumn(t)
	}
	return &AlignedTVList{
		dataTypes: append([]DataType(nil), dataTypes...),
		columns:   columns,
		bitMaps:   make([]*BitMap, len(dataTypes)),
	}
}

// RowCount returns the number of rows in the list.
func (l *AlignedTVList) RowCount() int {
	return l.rowCount
}

// DataTypes returns the declared column types.
func (l *AlignedTVList) DataTypes() []DataType {
	return append([]DataType(nil), l.dataTypes...)
}

// --------------------------------------------------------------------------
// Appends
// --------------------------------------------------------------------------

// PutAlignedValue appends one row. columnOrder[j] = k means values[j] carries
// the value for physical column k; together the entries must cover every
// column exactly once. A nil value renders the cell null.
func (l *AlignedTVList) PutAlignedValue(ts int64, values []any, columnOrder []int) {
	if len(values) != len(columnOrder) || len(values) != len(l.columns) {
		panic(fmt.Sprintf("tvlist: got %d values and %d order entries for %d columns",
			len(values), len(columnOrder), len(l.columns)))
	}

	// remap logical positions onto physical columns
	remapped := make([]any, len(l.columns))
	filled := make([]bool, len(l.columns))
	for j, k := range columnOrder {
		if k < 0 || k >= len(l.columns) || filled[k] {
			panic(fmt.Sprintf("tvlist: column order %v is not a permutation of the %d columns",
				columnOrder, len(l.columns)))
		}
		remapped[k] = values[j]
		filled[k] = true
	}

	row := l.rowCount
	l.timestamps = append(l.timestamps, ts)
	for k, c := range l.columns {
		c.append(remapped[k])
		if remapped[k] == nil {
			l.markNull(k, row)
		}
	}
	l.rowCount++
	l.extendBitMaps()
}

// PutAlignedValues appends the rows [start, end) from parallel source arrays.
// values[j] must be the typed slice ([]bool, []int32, ...) for logical column
// j; bitMaps may be nil, or hold per-logical-column BitMaps indexed by source
// position marking null cells.
func (l *AlignedTVList) PutAlignedValues(timestamps []int64, values []any, bitMaps []*BitMap, columnOrder []int, start, end int) {
	if len(values) != len(columnOrder) || len(values) != len(l.columns) {
		panic(fmt.Sprintf("tvlist: got %d value arrays and %d order entries for %d columns",
			len(values), len(columnOrder), len(l.columns)))
	}
	if bitMaps != nil && len(bitMaps) != len(values) {
		panic(fmt.Sprintf("tvlist: got %d bitmaps for %d value arrays", len(bitMaps), len(values)))
	}
	if start < 0 || end < start || end > len(timestamps) {
		panic(fmt.Sprintf("tvlist: range [%d, %d) out of bounds for %d timestamps", start, end, len(timestamps)))
	}

	base := l.rowCount
	count := end - start
	l.timestamps = append(l.timestamps, timestamps[start:end]...)
	for j, k := range columnOrder {
		l.columns[k].appendSlice(values[j], start, end)
		if bitMaps == nil || bitMaps[j] == nil {
			continue
		}
		for r := start; r < end; r++ {
			if bitMaps[j].IsMarked(r) {
				l.markNull(k, base+(r-start))
			}
		}
	}
	l.rowCount += count
	l.extendBitMaps()
}

// markNull marks row i of physical column k as null, allocating the column's
// BitMap on first use.
func (l *AlignedTVList) markNull(k, i int) {
	if l.bitMaps[k] == nil {
		l.bitMaps[k] = NewBitMap(i + 1)
	}
	l.bitMaps[k].extend(i + 1)
	l.bitMaps[k].Mark(i)
}

// extendBitMaps keeps every allocated BitMap exactly rowCount long.
func (l *AlignedTVList) extendBitMaps() {
	for _, b := range l.bitMaps {
		if b != nil {
			b.extend(l.rowCount)
		}
	}
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// GetTime returns the timestamp of row i.
func (l *AlignedTVList) GetTime(i int) int64 {
	l.checkRow(i)
	return l.timestamps[i]
}

// Row is one rendered aligned row: a typed cell per column, nil where the cell
// is null.
type Row []any

// String renders the row the way flush and query paths compare it:
// "[cell, cell, ...]" with booleans as false/true, TEXT as UTF-8 and null
// cells as "null".
func (r Row) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range r {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch x := v.(type) {
		case nil:
			sb.WriteString("null")
		case []byte:
			sb.Write(x)
		default:
			fmt.Fprintf(&sb, "%v", x)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// GetAlignedValue returns row i with null cells masked per the column BitMaps.
func (l *AlignedTVList) GetAlignedValue(i int) Row {
	l.checkRow(i)
	row := make(Row, len(l.columns))
	for k, c := range l.columns {
		if l.IsValueMarked(i, k) {
			continue
		}
		row[k] = c.get(i)
	}
	return row
}

// IsValueMarked reports whether the cell at row i, column k is null.
func (l *AlignedTVList) IsValueMarked(i, k int) bool {
	l.checkRow(i)
	if k < 0 || k >= len(l.columns) {
		panic(fmt.Sprintf("tvlist: column %d out of range [0, %d)", k, len(l.columns)))
	}
	return l.bitMaps[k] != nil && l.bitMaps[k].IsMarked(i)
}

func (l *AlignedTVList) checkRow(i int) {
	if i < 0 || i >= l.rowCount {
		panic(fmt.Sprintf("tvlist: row %d out of range [0, %d)", i, l.rowCount))
	}
}

// --------------------------------------------------------------------------
// Sort and Clone
// --------------------------------------------------------------------------

// Sort orders the rows by ascending timestamp, in place. The sort is stable:
// rows with equal timestamps retain insertion order. BitMaps are permuted
// congruently with their columns.
func (l *AlignedTVList) Sort() {
	if l.rowCount <= 1 {
		return
	}

	order := make([]int, l.rowCount)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return l.timestamps[order[a]] < l.timestamps[order[b]]
	})

	times := make([]int64, l.rowCount)
	for i, j := range order {
		times[i] = l.timestamps[j]
	}
	l.timestamps = times

	for _, c := range l.columns {
		c.take(order)
	}
	for k, b := range l.bitMaps {
		if b == nil {
			continue
		}
		nb := NewBitMap(l.rowCount)
		for i, j := range order {
			if b.IsMarked(j) {
				nb.Mark(i)
			}
		}
		l.bitMaps[k] = nb
	}
}

// Clone returns a deep, independent copy: mutating the original afterwards
// does not alter the clone.
func (l *AlignedTVList) Clone() *AlignedTVList {
	out := &AlignedTVList{
		dataTypes:  append([]DataType(nil), l.dataTypes...),
		timestamps: append([]int64(nil), l.timestamps...),
		columns:    make([]*column, len(l.columns)),
		bitMaps:    make([]*BitMap, len(l.bitMaps)),
		rowCount:   l.rowCount,
	}
	for i, c := range l.columns {
		out.columns[i] = c.clone()
	}
	for i, b := range l.bitMaps {
		if b != nil {
			out.bitMaps[i] = b.Clone()
		}
	}
	return out
}
