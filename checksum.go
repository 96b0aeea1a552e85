package rowcache

import (
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
)

var (
	castagnoli = crc32.MakeTable(crc32.Castagnoli)

	// Deterministic encoding so two structurally identical trees always hash
	// to the same checksum regardless of map iteration order.
	checksumEnc, _ = cbor.CoreDetEncOptions().EncMode()
)

// TreeChecksum fingerprints the pipeline subtree feeding a cache. Pipelines of
// one session may share a cache only when their checksums match, so nodes must
// describe everything that affects the produced rows (operator names, args,
// source files) and nothing that does not (timestamps, host names).
//
// The fingerprint is a CRC-32C over the canonical CBOR encoding of the nodes
// in order. Pipeline compilers with their own fingerprinting scheme can skip
// this helper; CreateCache accepts any uint32.
func TreeChecksum(nodes ...any) (uint32, error) {
	crc := uint32(0)
	for _, n := range nodes {
		b, err := checksumEnc.Marshal(n)
		if err != nil {
			return 0, err
		}
		crc = crc32.Update(crc, castagnoli, b)
	}
	return crc, nil
}
