package rollengine

import (
	"crypto/sha256"
	"encoding/binary"
)

// Roll computes the normative 16-bit die roll from its public inputs
// (spec §4.5 step 4):
//
//	material = nonce ∥ rollerPubkey ∥ memo ∥ LE_u32(index)
//	roll = big-endian u16 from SHA-256(material)[0:2]
//
// Exported so external verifiers (and internal/fraudproof) can
// reconstruct exactly this computation from public data alone.
func Roll(nonce [32]byte, rollerPubkey [32]byte, memo []byte, index uint32) uint16 {
	material := make([]byte, 0, 32+32+len(memo)+4)
	material = append(material, nonce[:]...)
	material = append(material, rollerPubkey[:]...)
	material = append(material, memo...)

	var idxBuf [4]byte
	binary.LittleEndian.PutUint32(idxBuf[:], index)
	material = append(material, idxBuf[:]...)

	digest := sha256.Sum256(material)
	return binary.BigEndian.Uint16(digest[0:2])
}
