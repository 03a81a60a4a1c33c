package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sbinet/npyio/npy"
)

// ReadNPY renders a NumPy array as nested JSON lists that follow its shape.
func ReadNPY(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r, err := npy.NewReader(f)
	if err != nil {
		return "", err
	}
	if r.Header.Descr.Fortran {
		return "", errors.New("fortran-ordered arrays are not supported")
	}

	values, err := readValues(r)
	if err != nil {
		return "", err
	}
	nested, err := reshape(values, r.Header.Descr.Shape)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(nested)
	if err != nil {
		return "", err
	}
	return header(path) + "\n" + string(data), nil
}

func readValues(r *npy.Reader) ([]any, error) {
	switch kind := strings.TrimLeft(r.Header.Descr.Type, "<>|="); kind {
	case "b1":
		return readAs[bool](r)
	case "i1":
		return readAs[int8](r)
	case "i2":
		return readAs[int16](r)
	case "i4":
		return readAs[int32](r)
	case "i8":
		return readAs[int64](r)
	case "u1":
		return readAs[uint8](r)
	case "u2":
		return readAs[uint16](r)
	case "u4":
		return readAs[uint32](r)
	case "u8":
		return readAs[uint64](r)
	case "f4":
		return readAs[float32](r)
	case "f8":
		return readAs[float64](r)
	default:
		return nil, fmt.Errorf("unsupported dtype %q", r.Header.Descr.Type)
	}
}

func readAs[T any](r *npy.Reader) ([]any, error) {
	var vs []T
	if err := r.Read(&vs); err != nil {
		return nil, err
	}
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out, nil
}

// reshape nests flat row-major values according to shape. A zero-dimensional
// shape yields the single scalar.
func reshape(values []any, shape []int) (any, error) {
	want := 1
	for _, d := range shape {
		want *= d
	}
	if want != len(values) {
		return nil, fmt.Errorf("shape %v does not match %d values", shape, len(values))
	}
	if len(shape) == 0 {
		return values[0], nil
	}
	return nest(values, shape), nil
}

func nest(values []any, shape []int) []any {
	if len(shape) == 1 {
		return values
	}
	stride := len(values) / max(shape[0], 1)
	out := make([]any, shape[0])
	for i := range out {
		out[i] = nest(values[i*stride:(i+1)*stride], shape[1:])
	}
	return out
}
