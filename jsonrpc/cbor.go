package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborDec cbor.DecMode
	cborEnc cbor.EncMode
)

func init() {
	var err error
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// CBORToJSON transcodes a CBOR document to JSON. Maps must have string keys.
// Transports that accept CBOR feed the result to Engine.Handle.
func CBORToJSON(data []byte) ([]byte, error) {
	var v any
	if err := cborDec.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode cbor: %w", err)
	}
	b, err := wire.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: transcode cbor: %w", err)
	}
	return b, nil
}

// JSONToCBOR transcodes a JSON document to CBOR, keeping integers as CBOR
// integers.
func JSONToCBOR(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("jsonrpc: transcode json: %w", err)
	}
	b, err := cborEnc.Marshal(numbersToCBOR(v))
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode cbor: %w", err)
	}
	return b, nil
}

func numbersToCBOR(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(string(v), 10, 64); err == nil {
			return u
		}
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = numbersToCBOR(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = numbersToCBOR(e)
		}
		return v
	}
	return v
}
