package client

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Bytes is module content. It travels as a JSON array of integers, never as
// base64.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make(Bytes, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Metadata describes how to invoke a stored module.
type Metadata struct {
	FunctionName string   `json:"functionName"`
	ReturnType   []string `json:"returnType"`
	Args         []string `json:"args"`
}

// ModuleRequest is the create/update body built from a module table.
type ModuleRequest struct {
	Wasm     Bytes    `json:"wasm"`
	Metadata Metadata `json:"metadata"`
}

// LegacyModule is the flat create/update body used by inline module steps.
type LegacyModule struct {
	Wasm       Bytes           `json:"wasm"`
	Func       string          `json:"func"`
	ReturnType string          `json:"return_type"`
	Args       json.RawMessage `json:"args"`
}

// Envelope is the {"message": ...} wrapper of every service response.
type Envelope[T any] struct {
	Message T `json:"message"`
}

// Created is the message of a create or update response.
type Created struct {
	ID *string `json:"id"`
}

// RunResult is the message of an invoke response.
type RunResult struct {
	Success json.RawMessage `json:"Success"`
}

// StoredModule is a module as returned by a read.
type StoredModule struct {
	Wasm     Bytes `json:"wasm"`
	Metadata struct {
		Func         string `json:"func"`
		FunctionName string `json:"functionName"`
	} `json:"metadata"`
}

// Function returns the stored entry point whichever body form created it.
func (m StoredModule) Function() string {
	if m.Metadata.FunctionName != "" {
		return m.Metadata.FunctionName
	}
	return m.Metadata.Func
}

// ReadResult is the message of a read response.
type ReadResult struct {
	Success *StoredModule `json:"Success"`
}

// Decode parses the response body as an Envelope and returns its message.
func Decode[T any](r *Response) (T, error) {
	var env Envelope[T]
	if err := json.Unmarshal(r.Body, &env); err != nil {
		var zero T
		return zero, fmt.Errorf("decoding response (%s): %w", r, err)
	}
	return env.Message, nil
}
