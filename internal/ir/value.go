package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

// IRValue is a sealed interface representing the values a fixture row can hold.
// Only IRNull, IRString, IRInt, IRBool, IRBytes, IRArray, and IRObject
// implement this.
// There is no IRFloat: non-integer numbers are kept as their text form.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a SQL NULL / JSON null value.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRBytes represents binary data, such as a BLOB or bytea column. Persisted
// as {"$bytes":"<base64>"}.
type IRBytes []byte

func (IRBytes) irValue() {}

// Tag keys used by the persisted row encoding. A user object whose only key
// is one of these is wrapped in {"$object": ...} so it decodes unchanged.
const (
	tagBytes  = "$bytes"
	tagObject = "$object"
)

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// A fixture row is an IRObject keyed by column name.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 which produces a different order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// FromDriver converts a value scanned from database/sql into an IRValue.
//
// Integers become IRInt, booleans IRBool, NULL IRNull. Strings become
// IRString; byte slices, and strings that are not valid UTF-8, become IRBytes
// so that they survive the cache unchanged. Floats are formatted with the shortest representation that
// parses back to the same float64; times use RFC 3339 with nanoseconds.
// Anything else is rendered with fmt.Sprint, which covers driver types that
// implement fmt.Stringer (UUIDs, numerics, intervals).
func FromDriver(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case int64:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int16:
		return IRInt(val), nil
	case int8:
		return IRInt(val), nil
	case int:
		return IRInt(val), nil
	case uint32:
		return IRInt(val), nil
	case uint16:
		return IRInt(val), nil
	case uint8:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return IRString(strconv.FormatUint(val, 10)), nil
		}
		return IRInt(val), nil
	case bool:
		return IRBool(val), nil
	case string:
		if !utf8.ValidString(val) {
			return IRBytes(val), nil
		}
		return IRString(val), nil
	case []byte:
		return IRBytes(slices.Clone(val)), nil
	case float64:
		return floatText(val, 64)
	case float32:
		return floatText(float64(val), 32)
	case time.Time:
		return IRString(val.Format(time.RFC3339Nano)), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromDriver(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromDriver(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	case fmt.Stringer:
		return IRString(val.String()), nil
	default:
		return IRString(fmt.Sprint(val)), nil
	}
}

func floatText(f float64, bits int) (IRValue, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v cannot be stored", f)
	}
	return IRString(strconv.FormatFloat(f, 'g', -1, bits)), nil
}

// Native converts an IRValue to plain Go values (nil, string, int64, bool,
// []byte, []any, map[string]any). Used to expose rows to templates and JSON output.
func Native(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRBytes:
		return []byte(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Native(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Native(elem)
		}
		return out
	default:
		return nil
	}
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(IRObject, len(raw))
	for k, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRObject key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(IRArray, len(raw))
	for i, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRArray index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// unmarshalIRValue decodes a JSON value into the appropriate IRValue type.
// Non-integer numbers are rejected; they never appear in canonical rows.
func unmarshalIRValue(data []byte) (IRValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return IRString(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return IRBool(b), nil

	case 'n':
		return IRNull{}, nil

	case '[':
		var arr IRArray
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		return unmarshalTaggedObject(data)

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number in row data: %s", string(data))
		}
		return IRInt(i), nil
	}
}

// unmarshalTaggedObject decodes an object, resolving the $bytes and $object
// tags written by MarshalCanonical.
func unmarshalTaggedObject(data []byte) (IRValue, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 1 {
		if v, ok := raw[tagBytes]; ok {
			var enc string
			if err := json.Unmarshal(v, &enc); err != nil {
				return nil, fmt.Errorf("%s: %w", tagBytes, err)
			}
			b, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", tagBytes, err)
			}
			return IRBytes(b), nil
		}
		if v, ok := raw[tagObject]; ok {
			var obj IRObject
			if err := obj.UnmarshalJSON(v); err != nil {
				return nil, fmt.Errorf("%s: %w", tagObject, err)
			}
			return obj, nil
		}
	}

	obj := make(IRObject, len(raw))
	for k, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return nil, fmt.Errorf("IRObject key %q: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}

// isTagged reports whether obj would be mistaken for a tag on decode.
func (obj IRObject) isTagged() bool {
	if len(obj) != 1 {
		return false
	}
	_, b := obj[tagBytes]
	_, o := obj[tagObject]
	return b || o
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// This is not canonical marshaling (HTML escaping applies); use
// MarshalCanonical for anything that is persisted or hashed.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRBytes:
		return json.Marshal([]byte(val))
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}
