package tvlist

import "fmt"

// --------------------------------------------------------------------------
// Column Data Types
// --------------------------------------------------------------------------

// DataType enumerates the primitive types a value column can be declared with.
type DataType int8

const (
	Boolean DataType = iota
	Int32
	Int64
	Float
	Double
	Text
)

func (t DataType) String() string {
	switch t {
	case Boolean:
		return "BOOLEAN"
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case Text:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// checkType panics if v is not assignable to a column of type t.
// Type mismatches are programmer errors, not recoverable conditions.
func (t DataType) checkType(v any) {
	var ok bool
	switch t {
	case Boolean:
		_, ok = v.(bool)
	case Int32:
		_, ok = v.(int32)
	case Int64:
		_, ok = v.(int64)
	case Float:
		_, ok = v.(float32)
	case Double:
		_, ok = v.(float64)
	case Text:
		_, ok = v.([]byte)
	}
	if !ok {
		panic(fmt.Sprintf("tvlist: value %v (%T) does not match column type %s", v, v, t))
	}
}
