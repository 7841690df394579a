// Package npy reads and writes the subset of the NPY format the inference API
// exchanges: version 1.0, little-endian float32 ('<f4'), C order. Anything
// else is rejected rather than coerced.
package npy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var magic = []byte("\x93NUMPY")

// Array is a dense float32 array in row-major order.
type Array struct {
	Shape []int
	Data  []float32
}

// Len returns the number of elements implied by the shape.
func (a Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Unmarshal decodes an NPY v1.0 buffer into an Array.
func Unmarshal(b []byte) (Array, error) {
	var a Array
	if len(b) < 10 || !bytes.Equal(b[:6], magic) {
		return a, fmt.Errorf("not an NPY file")
	}
	if b[6] != 1 {
		return a, fmt.Errorf("unsupported NPY version %d.%d", b[6], b[7])
	}
	hlen := int(binary.LittleEndian.Uint16(b[8:10]))
	if len(b) < 10+hlen {
		return a, fmt.Errorf("truncated NPY header")
	}
	header := string(b[10 : 10+hlen])
	descr, err := headerValue(header, "descr")
	if err != nil {
		return a, err
	}
	if descr != "<f4" {
		return a, fmt.Errorf("dtype must be float32 ('<f4'), got %q", descr)
	}
	order, err := headerValue(header, "fortran_order")
	if err != nil {
		return a, err
	}
	if order != "False" {
		return a, fmt.Errorf("fortran order arrays are not supported")
	}
	shape, err := parseShape(header)
	if err != nil {
		return a, err
	}
	a.Shape = shape
	payload := b[10+hlen:]
	n := a.Len()
	if len(payload) < n*4 {
		return a, fmt.Errorf("payload too short: need %d floats, have %d bytes", n, len(payload))
	}
	a.Data = make([]float32, n)
	for i := range a.Data {
		a.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return a, nil
}

// Marshal encodes an Array as an NPY v1.0 buffer.
func Marshal(a Array) ([]byte, error) {
	if a.Len() != len(a.Data) {
		return nil, fmt.Errorf("shape %v implies %d elements, data has %d", a.Shape, a.Len(), len(a.Data))
	}
	dims := make([]string, len(a.Shape))
	for i, d := range a.Shape {
		dims[i] = strconv.Itoa(d)
	}
	shape := strings.Join(dims, ", ")
	if len(a.Shape) == 1 {
		shape += ","
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%s), }", shape)
	// total header (magic..dict+newline) padded to a 64-byte boundary
	pad := 64 - (10+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	out := make([]byte, 0, 10+len(header)+len(a.Data)*4)
	out = append(out, magic...)
	out = append(out, 1, 0)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(header)))
	out = append(out, header...)
	for _, v := range a.Data {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out, nil
}

// headerValue extracts the value of a quoted or bare key from the header dict.
func headerValue(header, key string) (string, error) {
	idx := strings.Index(header, "'"+key+"'")
	if idx < 0 {
		return "", fmt.Errorf("NPY header missing %q", key)
	}
	rest := header[idx+len(key)+2:]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", fmt.Errorf("malformed NPY header near %q", key)
	}
	rest = strings.TrimLeft(rest[colon+1:], " ")
	switch {
	case strings.HasPrefix(rest, "'"):
		end := strings.Index(rest[1:], "'")
		if end < 0 {
			return "", fmt.Errorf("malformed NPY header near %q", key)
		}
		return rest[1 : 1+end], nil
	default:
		end := strings.IndexAny(rest, ",}")
		if end < 0 {
			return "", fmt.Errorf("malformed NPY header near %q", key)
		}
		return strings.TrimSpace(rest[:end]), nil
	}
}

func parseShape(header string) ([]int, error) {
	idx := strings.Index(header, "'shape'")
	if idx < 0 {
		return nil, fmt.Errorf("NPY header missing 'shape'")
	}
	open := strings.Index(header[idx:], "(")
	close := strings.Index(header[idx:], ")")
	if open < 0 || close < 0 || close < open {
		return nil, fmt.Errorf("malformed shape tuple")
	}
	inner := header[idx+open+1 : idx+close]
	var shape []int
	for _, tok := range strings.Split(inner, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		d, err := strconv.Atoi(tok)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("malformed shape dimension %q", tok)
		}
		shape = append(shape, d)
	}
	return shape, nil
}
