package dsl

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Equal reports whether a and b describe the same value or computation.
// Deferred expressions compare by structure, never by identity, so two
// independently parsed expressions are equal when they read the same.
func Equal(a, b interface{}) bool {
	switch x := a.(type) {
	case *FunctionCall:
		y, ok := b.(*FunctionCall)
		if !ok {
			return false
		}
		if x == nil || y == nil {
			return x == y
		}
		if x.Fn != y.Fn || len(x.Args) != len(y.Args) || !Equal(x.Target, y.Target) {
			return false
		}
		for i := range x.Args {
			if !Equal(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true

	case *External:
		y, ok := b.(*External)
		if !ok {
			return false
		}
		if x == nil || y == nil {
			return x == y
		}
		return x.Provider == y.Provider && x.Key == y.Key

	case []interface{}:
		y, ok := b.([]interface{})
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true

	case map[string]interface{}:
		y, ok := b.(map[string]interface{})
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			other, found := y[k]
			if !found || !Equal(v, other) {
				return false
			}
		}
		return true
	}

	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	return reflect.DeepEqual(a, b)
}

// Hash returns a structural hash of v consistent with Equal.
func Hash(v interface{}) uint64 {
	d := xxhash.New()
	writeHash(d, v)
	return d.Sum64()
}

func writeHash(d *xxhash.Digest, v interface{}) {
	switch x := v.(type) {
	case nil:
		_, _ = d.WriteString("n")
	case *FunctionCall:
		if x == nil {
			_, _ = d.WriteString("n")
			return
		}
		_, _ = d.WriteString("call(")
		writeString(d, x.Fn)
		writeHash(d, x.Target)
		writeLen(d, len(x.Args))
		for _, arg := range x.Args {
			writeHash(d, arg)
		}
		_, _ = d.WriteString(")")
	case *External:
		if x == nil {
			_, _ = d.WriteString("n")
			return
		}
		_, _ = d.WriteString("ext(")
		writeString(d, x.Provider)
		writeString(d, x.Key)
		_, _ = d.WriteString(")")
	case string:
		_, _ = d.WriteString("s")
		writeString(d, x)
	case bool:
		if x {
			_, _ = d.WriteString("t")
		} else {
			_, _ = d.WriteString("f")
		}
	case []interface{}:
		_, _ = d.WriteString("l")
		writeLen(d, len(x))
		for _, item := range x {
			writeHash(d, item)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		_, _ = d.WriteString("m")
		writeLen(d, len(keys))
		for _, k := range keys {
			writeString(d, k)
			writeHash(d, x[k])
		}
	default:
		if n, ok := number(v); ok {
			if n == 0 {
				n = 0 // -0 and +0 are equal
			}
			var buf [9]byte
			buf[0] = '#'
			binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(n))
			_, _ = d.Write(buf[:])
			return
		}
		_, _ = d.WriteString(fmt.Sprintf("%T:%v", v, v))
	}
}

func writeString(d *xxhash.Digest, s string) {
	writeLen(d, len(s))
	_, _ = d.WriteString(s)
}

func writeLen(d *xxhash.Digest, n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	_, _ = d.Write(buf[:])
}

// number normalizes the numeric types produced by the YAML and DSL parsers,
// so 1, int64(1) and 1.0 compare equal.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
