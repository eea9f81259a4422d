package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hamba/avro/v2"
)

// fromJSON converts a value decoded from JSON (with UseNumber) into the Go
// types the Avro encoder expects for schema. Bytes and fixed values are
// given as base64 strings. Unions accept null or a value of any primitive
// branch.
func fromJSON(schema avro.Schema, v any) (any, error) {
	switch s := schema.(type) {
	case *avro.RecordSchema:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected object, got %T", s.FullName(), v)
		}
		out := make(map[string]any, len(s.Fields()))
		for _, f := range s.Fields() {
			fv, ok := obj[f.Name()]
			if !ok {
				if f.HasDefault() {
					continue
				}
				return nil, fmt.Errorf("%s: missing field %q", s.FullName(), f.Name())
			}
			conv, err := fromJSON(f.Type(), fv)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", s.FullName(), f.Name(), err)
			}
			out[f.Name()] = conv
		}
		return out, nil

	case *avro.ArraySchema:
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			conv, err := fromJSON(s.Items(), item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil

	case *avro.MapSchema:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", v)
		}
		out := make(map[string]any, len(obj))
		for k, item := range obj {
			conv, err := fromJSON(s.Values(), item)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = conv
		}
		return out, nil

	case *avro.UnionSchema:
		if v == nil {
			if s.Nullable() {
				return nil, nil
			}
			return nil, fmt.Errorf("null is not a branch of the union")
		}
		for _, branch := range s.Types() {
			if branch.Type() == avro.Null {
				continue
			}
			if conv, err := fromJSON(branch, v); err == nil {
				return conv, nil
			}
		}
		return nil, fmt.Errorf("no union branch accepts %v", v)

	case *avro.EnumSchema:
		sym, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected symbol string, got %T", s.FullName(), v)
		}
		return sym, nil

	case *avro.FixedSchema:
		return decodeBase64(v)

	case *avro.PrimitiveSchema:
		return fromJSONPrimitive(s.Type(), v)

	case *avro.RefSchema:
		return fromJSON(s.Schema(), v)
	}
	return nil, fmt.Errorf("unsupported schema type %s", schema.Type())
}

func fromJSONPrimitive(t avro.Type, v any) (any, error) {
	switch t {
	case avro.Null:
		if v != nil {
			return nil, fmt.Errorf("expected null, got %T", v)
		}
		return nil, nil
	case avro.Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case avro.String:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return str, nil
	case avro.Bytes:
		return decodeBase64(v)
	}

	num, ok := v.(json.Number)
	if !ok {
		return nil, fmt.Errorf("expected number for %s, got %T", t, v)
	}
	switch t {
	case avro.Int:
		n, err := num.Int64()
		if err != nil || n != int64(int32(n)) {
			return nil, fmt.Errorf("%s is not an int", num)
		}
		return int(n), nil
	case avro.Long:
		n, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s is not a long", num)
		}
		return n, nil
	case avro.Float:
		f, err := num.Float64()
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case avro.Double:
		return num.Float64()
	}
	return nil, fmt.Errorf("unsupported primitive type %s", t)
}

func decodeBase64(v any) ([]byte, error) {
	str, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected base64 string, got %T", v)
	}
	return base64.StdEncoding.DecodeString(str)
}
