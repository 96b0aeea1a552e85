// Package codec turns caller values into the opaque row payloads the cache
// stores and back. The wire protocol never inspects payloads; pick whichever
// encoding the producing and consuming pipelines agree on.
package codec

import "encoding/json"

// Codec encodes/decodes row values V to []byte payloads.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// JSON serializes rows with encoding/json. The zero value is ready to use.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

// Bytes is the identity codec for pipelines that already produce raw
// payloads (pre-serialized tensor rows).
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }
