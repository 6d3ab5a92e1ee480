// Package payload holds helpers for the value threaded through a pipeline.
// Payloads are cty values; the engine never inspects them beyond these
// helpers and each handler reinterprets them as it sees fit.
package payload

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"github.com/zeebo/blake3"
)

// Empty is the payload of a traversal that has not produced anything yet.
var Empty = cty.NullVal(cty.DynamicPseudoType)

// String wraps a Go string as a payload.
func String(s string) cty.Value {
	return cty.StringVal(s)
}

// IsEmpty reports whether the payload carries no usable input: null, unknown,
// or a string that is blank after trimming.
func IsEmpty(v cty.Value) bool {
	if v.IsNull() || !v.IsKnown() {
		return true
	}
	if v.Type().Equals(cty.String) {
		return strings.TrimSpace(v.AsString()) == ""
	}
	return false
}

// Text renders the payload the way a text consumer reads it: strings as-is,
// primitives in their canonical form, and collections as JSON.
func Text(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return ""
	}
	switch {
	case v.Type().Equals(cty.String):
		return v.AsString()
	case v.Type().Equals(cty.Number):
		return v.AsBigFloat().Text('f', -1)
	case v.Type().Equals(cty.Bool):
		if v.True() {
			return "true"
		}
		return "false"
	}
	b, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return v.GoString()
	}
	return string(b)
}

// FromGo converts a JSON-shaped Go value (the result of decoding an API
// response) into a payload.
func FromGo(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return Empty, nil
	case cty.Value:
		return t, nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case *big.Float:
		return cty.NumberVal(t), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("payload: encode %T: %w", v, err)
	}
	return FromJSON(b)
}

// FromJSON decodes a JSON document into a payload, inferring its type.
func FromJSON(b []byte) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType(b)
	if err != nil {
		return cty.NilVal, fmt.Errorf("payload: infer type: %w", err)
	}
	val, err := ctyjson.Unmarshal(b, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("payload: decode json: %w", err)
	}
	return val, nil
}

// ToGo converts a payload into plain Go values (string, float64, bool,
// []any, map[string]any) suitable for JSON request bodies.
func ToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("payload: value is not fully known")
	}
	b, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("payload: encode: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("payload: decode: %w", err)
	}
	return out, nil
}

// Digest returns a short BLAKE3 fingerprint of the payload's text view. It is
// logged and persisted in place of raw payloads.
func Digest(v cty.Value) string {
	h := blake3.New()
	_, _ = h.Write([]byte(Text(v)))
	return hex.EncodeToString(h.Sum(nil)[:8])
}
