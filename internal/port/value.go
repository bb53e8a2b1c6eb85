package port

import (
	"encoding/base64"
	"reflect"
	"sort"
	"time"
)

// Backends round-trip documents through their own encodings (JSON in the
// redis backend, native Go values in the memory backend), so numeric,
// binary, and time fields come back in several shapes. These helpers
// normalize the shapes the store layer has to accept.

// AsInt64 coerces the numeric shapes a backend may return.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}

// AsString returns v as a string when it is one.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsBytes coerces a binary field: raw bytes from the memory backend,
// base64 text after a JSON round-trip.
func AsBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, false
		}
		return decoded, true
	default:
		return nil, false
	}
}

// Matches reports whether doc satisfies an equality selector: every
// selector field must be present in doc with an equal value, numeric
// shapes compared after normalization.
func Matches(doc, selector Document) bool {
	for field, want := range selector {
		if !valueEqual(doc[field], want) {
			return false
		}
	}
	return true
}

// SortAscending orders docs ascending by the given field, numerically
// when both values are numeric, lexicographically otherwise. Stable.
func SortAscending(docs []Document, field string) {
	sort.SliceStable(docs, func(i, j int) bool {
		return valueLess(docs[i][field], docs[j][field])
	})
}

func valueEqual(a, b any) bool {
	if an, ok := AsInt64(a); ok {
		bn, ok := AsInt64(b)
		return ok && an == bn
	}
	if as, ok := AsString(a); ok {
		bs, ok := AsString(b)
		return ok && as == bs
	}
	return reflect.DeepEqual(a, b)
}

func valueLess(a, b any) bool {
	an, aok := AsInt64(a)
	bn, bok := AsInt64(b)
	if aok && bok {
		return an < bn
	}
	as, _ := AsString(a)
	bs, _ := AsString(b)
	return as < bs
}

// AsTime coerces a timestamp field: time.Time from the memory backend,
// RFC 3339 text after a JSON round-trip.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
