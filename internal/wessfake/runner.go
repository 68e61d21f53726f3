package wessfake

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// execute instantiates wasm in a fresh runtime and calls fn with args encoded
// according to argTypes. Results are rendered as decimal strings.
func execute(ctx context.Context, wasm []byte, fn string, argTypes []string, args []json.RawMessage) ([]string, error) {
	if len(argTypes) != len(args) {
		return nil, fmt.Errorf("expected %d args, got %d", len(argTypes), len(args))
	}

	params := make([]uint64, len(args))
	for i, t := range argTypes {
		p, err := encodeArg(t, args[i])
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		params[i] = p
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("instantiating module: %w", err)
	}
	f := mod.ExportedFunction(fn)
	if f == nil {
		return nil, fmt.Errorf("function %q not exported", fn)
	}

	results, err := f.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", fn, err)
	}

	types := f.Definition().ResultTypes()
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = decodeResult(types[i], r)
	}
	return out, nil
}

func encodeArg(typ string, raw json.RawMessage) (uint64, error) {
	switch typ {
	case "i32":
		var v int32
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, fmt.Errorf("invalid value to i32: %s", raw)
		}
		return api.EncodeI32(v), nil
	case "i64":
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, fmt.Errorf("invalid value to i64: %s", raw)
		}
		return api.EncodeI64(v), nil
	case "f32":
		var v float32
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, fmt.Errorf("invalid value to f32: %s", raw)
		}
		return api.EncodeF32(v), nil
	case "f64":
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, fmt.Errorf("invalid value to f64: %s", raw)
		}
		return api.EncodeF64(v), nil
	default:
		return 0, fmt.Errorf("invalid type: %s", typ)
	}
}

func decodeResult(t api.ValueType, r uint64) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(r)), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(r), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(r)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(r), 'g', -1, 64)
	default:
		return strconv.FormatUint(r, 10)
	}
}
