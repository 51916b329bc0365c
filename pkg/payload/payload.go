// Package payload holds the opaque JSON documents recorded as branch params
// and results. A Payload is immutable once built and may be referenced by any
// number of versions; documents at or above a size threshold are kept
// LZ4-compressed, since every historical version stays in memory.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidJSON is returned when raw input is not a single valid JSON document.
var ErrInvalidJSON = errors.New("invalid JSON payload")

// nullJSON is the encoding of the zero Payload.
var nullJSON = []byte("null")

// Payload is an immutable, canonically encoded JSON document.
type Payload struct {
	data       []byte
	size       int
	compressed bool
}

// Encode marshals value to JSON. When threshold is positive and the encoding
// is at least threshold bytes, the payload is stored compressed.
func Encode(value any, threshold int) (Payload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Payload{}, fmt.Errorf("encode payload: %w", err)
	}

	return build(raw, threshold), nil
}

// FromJSON builds a payload from raw JSON. The document is re-encoded so that
// equal documents compare equal regardless of key order or whitespace.
func FromJSON(raw []byte, threshold int) (Payload, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any

	err := decoder.Decode(&value)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	if decoder.More() {
		return Payload{}, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}

	return Encode(value, threshold)
}

func build(raw []byte, threshold int) Payload {
	if threshold > 0 && len(raw) >= threshold {
		packed := compress(raw)
		if packed != nil {
			return Payload{data: packed, size: len(raw), compressed: true}
		}
	}

	return Payload{data: raw, size: len(raw)}
}

// IsZero reports whether the payload was never set.
func (p Payload) IsZero() bool {
	return p.data == nil
}

// Size returns the length of the JSON encoding.
func (p Payload) Size() int {
	return p.size
}

// StoredSize returns the number of bytes retained in memory.
func (p Payload) StoredSize() int {
	return len(p.data)
}

// Compressed reports whether the payload is stored compressed.
func (p Payload) Compressed() bool {
	return p.compressed
}

// JSON returns the JSON encoding. The zero Payload encodes as null.
func (p Payload) JSON() ([]byte, error) {
	if p.IsZero() {
		return nullJSON, nil
	}

	if !p.compressed {
		return p.data, nil
	}

	raw, err := decompress(p.data, p.size)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}

	return raw, nil
}

// Decode unmarshals the payload into target.
func (p Payload) Decode(target any) error {
	raw, err := p.JSON()
	if err != nil {
		return err
	}

	err = json.Unmarshal(raw, target)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	return nil
}

// Value decodes the payload into a generic JSON value.
func (p Payload) Value() (any, error) {
	var value any

	err := p.Decode(&value)
	if err != nil {
		return nil, err
	}

	return value, nil
}

// MarshalJSON embeds the document as is.
func (p Payload) MarshalJSON() ([]byte, error) {
	return p.JSON()
}

// UnmarshalJSON stores the document uncompressed.
func (p *Payload) UnmarshalJSON(data []byte) error {
	decoded, err := FromJSON(data, 0)
	if err != nil {
		return err
	}

	*p = decoded

	return nil
}

// Equal reports whether a and b hold the same document.
func Equal(a, b Payload) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}

	if a.size != b.size {
		return false
	}

	left, err := a.JSON()
	if err != nil {
		return false
	}

	right, err := b.JSON()
	if err != nil {
		return false
	}

	return bytes.Equal(left, right)
}
