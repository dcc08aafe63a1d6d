package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

type columnKind int

const (
	kindUnknown columnKind = iota
	kindBool
	kindInt
	kindFloat
	kindString
)

// widen combines the kind seen so far with the kind of the next value
func widen(a, b columnKind) columnKind {
	switch {
	case a == kindUnknown:
		return b
	case b == kindUnknown || a == b:
		return a
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat
	}
	return kindString
}

func kindOf(v any) columnKind {
	switch x := v.(type) {
	case nil:
		return kindUnknown
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInt
	case uint, uint64, uintptr:
		if unsignedValue(x) > math.MaxInt64 {
			return kindFloat
		}
		return kindInt
	case float32, float64:
		return kindFloat
	case string:
		if x == "" {
			return kindUnknown
		}
		if _, err := strconv.ParseInt(x, 10, 64); err == nil {
			return kindInt
		}
		if _, err := strconv.ParseFloat(x, 64); err == nil {
			return kindFloat
		}
		if _, err := strconv.ParseBool(x); err == nil {
			return kindBool
		}
	}
	return kindString
}

func (k columnKind) dataType() arrow.DataType {
	switch k {
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}

// unsignedValue widens the platform-sized unsigned kinds
func unsignedValue(v any) uint64 {
	switch x := v.(type) {
	case uint:
		return uint64(x)
	case uint64:
		return x
	case uintptr:
		return uint64(x)
	}
	return 0
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint, uint64, uintptr:
		return int64(unsignedValue(x))
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	}
	return 0
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case uint, uint64, uintptr:
		return float64(unsignedValue(x))
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	return float64(toInt64(v))
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}

func isNull(v any, kind columnKind) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == "" && kind != kindString
}

// ToArrow evaluates the frame into an Arrow record with one field per column.
// Column types are inferred from the values: integers become int64, mixed
// integers and floats become float64, booleans become bool, and anything else
// becomes string. Numeric and boolean strings are parsed. Missing values and
// empty strings in non-string columns are null. The caller must release the
// record.
func (f *Frame[I]) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	columns := f.columns.get()
	rows := f.ToRows()

	kinds := make([]columnKind, len(columns))
	for _, row := range rows {
		for i, name := range columns {
			kinds[i] = widen(kinds[i], kindOf(row[name]))
		}
	}

	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		if kinds[i] == kindUnknown {
			kinds[i] = kindString
		}
		fields[i] = arrow.Field{Name: name, Type: kinds[i].dataType(), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, row := range rows {
		for i, name := range columns {
			v := row[name]
			if isNull(v, kinds[i]) {
				b.Field(i).AppendNull()
				continue
			}
			switch fb := b.Field(i).(type) {
			case *array.Int64Builder:
				fb.Append(toInt64(v))
			case *array.Float64Builder:
				fb.Append(toFloat64(v))
			case *array.BooleanBuilder:
				fb.Append(toBool(v))
			case *array.StringBuilder:
				fb.Append(fmt.Sprint(v))
			default:
				return nil, fmt.Errorf("unsupported builder %T for column %q", fb, name)
			}
		}
	}
	return b.NewRecord(), nil
}

// String renders the frame as a table with an index column followed by
// every named column.
func (f *Frame[I]) String() string {
	columns := f.columns.get()
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	header := append([]string{"index"}, columns...)
	rule := make([]string, len(header))
	for i, h := range header {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	fmt.Fprintln(w, strings.Join(rule, "\t"))

	for _, p := range f.rows.ToPairs() {
		cells := make([]string, 0, len(header))
		cells = append(cells, fmt.Sprint(p.Index))
		for _, name := range columns {
			if v, ok := p.Value[name]; ok && v != nil {
				cells = append(cells, fmt.Sprint(v))
			} else {
				cells = append(cells, "")
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return sb.String()
}
