package directory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the declared type of a policy or configuration field. Textual
// patch input is coerced according to the declared kind, never by sniffing
// a live value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindList
	// KindRaw carries values this model does not interpret (nested objects,
	// fractional numbers, nulls). They round-trip untouched.
	KindRaw
)

// Value is a tagged variant holding one policy/configuration field.
type Value struct {
	Kind Kind
	Bool bool
	Int  int64
	Str  string
	List []string
	Raw  json.RawMessage
}

func StringValue(s string) Value     { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value         { return Value{Kind: KindInt, Int: i} }
func ListValue(items []string) Value { return Value{Kind: KindList, List: items} }

func RawValue(raw json.RawMessage) Value {
	return Value{Kind: KindRaw, Raw: raw}
}

// listSeparator matches the remote form encoding of list fields.
const listSeparator = ", "

// Coerce converts textual patch input into this field's declared kind.
// Booleans compare against the literal "True", integers parse, lists split
// on ", " with the empty string yielding an empty list. String and raw
// fields take the text as-is.
func (v Value) Coerce(text string) (Value, error) {
	switch v.Kind {
	case KindBool:
		return BoolValue(text == "True"), nil
	case KindInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("directory: coerce %q to integer: %w", text, err)
		}
		return IntValue(n), nil
	case KindList:
		if text == "" {
			return ListValue([]string{}), nil
		}
		return ListValue(strings.Split(text, listSeparator)), nil
	default:
		return StringValue(text), nil
	}
}

// MarshalJSON writes the natural JSON representation of the tagged value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindRaw:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	default:
		return json.Marshal(v.Str)
	}
}

// UnmarshalJSON classifies the wire value into a declared kind. Anything
// that is not a bool, an integral number, a string, or a list of strings is
// kept raw.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return fmt.Errorf("directory: empty field value")
	}
	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err == nil {
			if items == nil {
				items = []string{}
			}
			*v = ListValue(items)
			return nil
		}
		*v = RawValue(append(json.RawMessage(nil), data...))
		return nil
	case '{', 'n':
		*v = RawValue(append(json.RawMessage(nil), data...))
		return nil
	default:
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			*v = IntValue(n)
			return nil
		}
		*v = RawValue(append(json.RawMessage(nil), data...))
		return nil
	}
}

// Fields is a policy or configuration block keyed by field name.
type Fields map[string]Value

// Clone returns a shallow-copied block safe to overlay without mutating the
// source.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
