// Package dataset encodes typed record batches as parquet and decodes raw
// bronze payloads into field maps.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Extensions used for object keys.
const (
	ParquetExt = ".parquet"
	JSONExt    = ".json"
)

var (
	ErrDecode      = errors.New("dataset decode failed")
	ErrEncode      = errors.New("dataset encode failed")
	ErrUnsupported = errors.New("unsupported dataset format")
)

// Encode writes rows as a snappy-compressed parquet file.
func Encode[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// Decode reads every row of a parquet file. An empty payload decodes to no rows.
func Decode[T any](data []byte) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return rows, nil
}

// Columns returns the top-level column names of a parquet file.
func Columns(data []byte) ([]string, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	fields := f.Schema().Fields()
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		names = append(names, field.Name())
	}
	return names, nil
}

// DecodeJSONRows decodes a bronze JSON payload holding a single object, an
// array of objects, or newline-delimited objects. Numbers are kept as
// json.Number so integer precision and the original text survive.
func DecodeJSONRows(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var rows []map[string]any
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return rows, nil
	}

	var rows []map[string]any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	for {
		var row map[string]any
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DecodeRows picks a decoder by key extension. Parquet payloads are decoded
// through the typed schema T and flattened with row.
func DecodeRows[T any](key string, data []byte, row func(T) map[string]any) ([]map[string]any, error) {
	switch {
	case strings.HasSuffix(key, JSONExt):
		return DecodeJSONRows(data)
	case strings.HasSuffix(key, ParquetExt):
		typed, err := Decode[T](data)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(typed))
		for i, t := range typed {
			out[i] = row(t)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}
}
