package ordering

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"time"

	"rsc.io/ordered"
)

// EncodeKey converts a sort key into bytes whose lexical order matches the
// natural order of the key.
//
// Numbers of any Go numeric kind are comparable with each other: they are
// encoded as their float64 value followed by the exact integer when one
// exists, so large integers that share a float64 still order correctly.
// Booleans order as 0 and 1, time.Time by instant. Strings order before
// numbers, nil orders before everything, and keys of any other type order
// after everything by their fmt representation.
func EncodeKey(key any) []byte {
	switch k := key.(type) {
	case nil:
		return []byte{}
	case string:
		return ordered.Encode(k)
	case []byte:
		return ordered.Encode(k)
	case bool:
		if k {
			return encodeInt(1)
		}
		return encodeInt(0)
	case time.Time:
		return encodeInt(k.UnixNano())
	}

	v := reflect.ValueOf(key)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return encodeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		return ordered.Encode(float64(u), u)
	case reflect.Float32, reflect.Float64:
		return encodeFloat(v.Float())
	case reflect.String:
		return ordered.Encode(v.String())
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return []byte{}
		}
		return EncodeKey(v.Elem().Interface())
	}
	return ordered.Encode(ordered.Inf, fmt.Sprint(key))
}

func encodeInt(n int64) []byte {
	return ordered.Encode(float64(n), n)
}

func encodeFloat(f float64) []byte {
	if f == 0 {
		f = 0 // -0
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return ordered.Encode(f, int64(f))
	}
	return ordered.Encode(f)
}

// Compare orders two keys using EncodeKey
func Compare(a, b any) int {
	return bytes.Compare(EncodeKey(a), EncodeKey(b))
}
