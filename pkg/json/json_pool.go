// Package json wraps goccy/go-json with the decoding settings the tap relies
// on: numbers are kept as their exact decimal text and HTML is never escaped.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

type (
	// Number is a JSON number literal kept as text.
	Number = gojson.Number
	// RawMessage is a raw encoded JSON value.
	RawMessage = gojson.RawMessage
	// Token is a JSON token returned by Decoder.Token.
	Token = gojson.Token
	// Delim is a JSON array or object delimiter.
	Delim = gojson.Delim
	// Decoder reads JSON values from a stream.
	Decoder = gojson.Decoder
	// Encoder writes JSON values to a stream.
	Encoder = gojson.Encoder
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// NewDecoder returns a decoder that yields Number for numeric values.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// NewEncoder returns an encoder that does not escape HTML.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// Decode unmarshals data into v, keeping numbers as Number.
func Decode(data []byte, v interface{}) error {
	return NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Valid reports whether data is valid JSON.
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// LineEncoder writes one JSON document per line.
type LineEncoder struct {
	w   io.Writer
	buf *bytes.Buffer
	enc *gojson.Encoder
}

// NewLineEncoder creates a line-delimited encoder on w.
func NewLineEncoder(w io.Writer) *LineEncoder {
	buf := GetBuffer()
	return &LineEncoder{w: w, buf: buf, enc: NewEncoder(buf)}
}

// Encode writes v followed by a newline. The line is written with a single
// Write call so partial documents never reach w.
func (e *LineEncoder) Encode(v interface{}) error {
	e.buf.Reset()
	if err := e.enc.Encode(v); err != nil {
		return err
	}
	_, err := e.w.Write(e.buf.Bytes())
	return err
}

// Close releases the pooled buffer.
func (e *LineEncoder) Close() error {
	if e.buf != nil {
		PutBuffer(e.buf)
		e.buf = nil
	}
	return nil
}
