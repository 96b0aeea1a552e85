package codec

import "fmt"

// Limit wraps another codec to cap the payload size accepted by Decode;
// Encode is forwarded unchanged. MaxDecode <= 0 disables the cap.
//
// Useful when fetched rows come out of a cache shared with other pipelines
// and a corrupted or foreign entry must not blow up the consumer.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
