package tvlist

import "fmt"

// --------------------------------------------------------------------------
// Typed value columns
// --------------------------------------------------------------------------

// column holds the values of one physical column. Only the slice matching
// dataType is ever used.
type column struct {
	dataType DataType

	bools    []bool
	ints     []int32
	longs    []int64
	floats   []float32
	doubles  []float64
	binaries [][]byte
}

func newColumn(t DataType) *column {
	return &column{dataType: t}
}

// append adds v to the column. A nil v appends the zero value (the caller is
// responsible for marking the row null).
func (c *column) append(v any) {
	if v == nil {
		c.appendZero()
		return
	}
	c.dataType.checkType(v)
	switch c.dataType {
	case Boolean:
		c.bools = append(c.bools, v.(bool))
	case Int32:
		c.ints = append(c.ints, v.(int32))
	case Int64:
		c.longs = append(c.longs, v.(int64))
	case Float:
		c.floats = append(c.floats, v.(float32))
	case Double:
		c.doubles = append(c.doubles, v.(float64))
	case Text:
		b := v.([]byte)
		cp := make([]byte, len(b))
		copy(cp, b)
		c.binaries = append(c.binaries, cp)
	}
}

func (c *column) appendZero() {
	switch c.dataType {
	case Boolean:
		c.bools = append(c.bools, false)
	case Int32:
		c.ints = append(c.ints, 0)
	case Int64:
		c.longs = append(c.longs, 0)
	case Float:
		c.floats = append(c.floats, 0)
	case Double:
		c.doubles = append(c.doubles, 0)
	case Text:
		c.binaries = append(c.binaries, nil)
	}
}

// appendSlice bulk-appends src[start:end] where src must be the typed slice
// matching the column's data type.
func (c *column) appendSlice(src any, start, end int) {
	switch c.dataType {
	case Boolean:
		s, ok := src.([]bool)
		c.checkSlice(ok, src)
		c.bools = append(c.bools, s[start:end]...)
	case Int32:
		s, ok := src.([]int32)
		c.checkSlice(ok, src)
		c.ints = append(c.ints, s[start:end]...)
	case Int64:
		s, ok := src.([]int64)
		c.checkSlice(ok, src)
		c.longs = append(c.longs, s[start:end]...)
	case Float:
		s, ok := src.([]float32)
		c.checkSlice(ok, src)
		c.floats = append(c.floats, s[start:end]...)
	case Double:
		s, ok := src.([]float64)
		c.checkSlice(ok, src)
		c.doubles = append(c.doubles, s[start:end]...)
	case Text:
		s, ok := src.([][]byte)
		c.checkSlice(ok, src)
		for _, b := range s[start:end] {
			cp := make([]byte, len(b))
			copy(cp, b)
			c.binaries = append(c.binaries, cp)
		}
	}
}

func (c *column) checkSlice(ok bool, src any) {
	if !ok {
		panic(fmt.Sprintf("tvlist: slice %T does not match column type %s", src, c.dataType))
	}
}

func (c *column) get(i int) any {
	switch c.dataType {
	case Boolean:
		return c.bools[i]
	case Int32:
		return c.ints[i]
	case Int64:
		return c.longs[i]
	case Float:
		return c.floats[i]
	case Double:
		return c.doubles[i]
	case Text:
		return c.binaries[i]
	default:
		return nil
	}
}

// take rearranges the column so that the value at position i becomes the value
// previously at position order[i].
func (c *column) take(order []int) {
	switch c.dataType {
	case Boolean:
		out := make([]bool, len(order))
		for i, j := range order {
			out[i] = c.bools[j]
		}
		c.bools = out
	case Int32:
		out := make([]int32, len(order))
		for i, j := range order {
			out[i] = c.ints[j]
		}
		c.ints = out
	case Int64:
		out := make([]int64, len(order))
		for i, j := range order {
			out[i] = c.longs[j]
		}
		c.longs = out
	case Float:
		out := make([]float32, len(order))
		for i, j := range order {
			out[i] = c.floats[j]
		}
		c.floats = out
	case Double:
		out := make([]float64, len(order))
		for i, j := range order {
			out[i] = c.doubles[j]
		}
		c.doubles = out
	case Text:
		out := make([][]byte, len(order))
		for i, j := range order {
			out[i] = c.binaries[j]
		}
		c.binaries = out
	}
}

func (c *column) clone() *column {
	out := newColumn(c.dataType)
	switch c.dataType {
	case Boolean:
		out.bools = append([]bool(nil), c.bools...)
	case Int32:
		out.ints = append([]int32(nil), c.ints...)
	case Int64:
		out.longs = append([]int64(nil), c.longs...)
	case Float:
		out.floats = append([]float32(nil), c.floats...)
	case Double:
		out.doubles = append([]float64(nil), c.doubles...)
	case Text:
		out.binaries = make([][]byte, len(c.binaries))
		for i, b := range c.binaries {
			cp := make([]byte, len(b))
			copy(cp, b)
			out.binaries[i] = cp
		}
	}
	return out
}
