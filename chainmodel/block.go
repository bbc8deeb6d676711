// Package chainmodel implements C2: the canonical in-memory Block and
// Transaction representation, serialization to hashed byte form, and
// the JSON payload forms.
package chainmodel

import (
	"bytes"
	"encoding/binary"
)

// TransactionClass distinguishes a zone-establishing payload from a
// domain-registration payload.
type TransactionClass string

const (
	ClassZone   TransactionClass = "zone"
	ClassDomain TransactionClass = "domain"
)

// Transaction is the payload carried by a full ("payload") block.
type Transaction struct {
	Class        TransactionClass
	Identity     []byte // hash of the zone or domain label
	Confirmation []byte // salt/commit value; its first 12 bytes are the IV of the label ciphertext
	Data         []byte // canonical JSON: ZonePayload or DomainPayload
	PubKey       []byte // owner key; identical to the enclosing block's PubKey
}

// Block is guachain's immutable unit of chain extension. Once Hash is
// set it must never be mutated; replacement happens only by truncating
// the chain and appending a new Block at the same index.
type Block struct {
	Index         uint64
	Timestamp     int64
	Version       uint32
	Difficulty    int
	Random        uint32
	Nonce         uint64
	PrevBlockHash []byte
	Hash          []byte
	PubKey        []byte
	Signature     []byte
	Transaction   *Transaction // nil ⇒ signing block
}

// IsPayload reports whether b carries a transaction ("full" block).
func (b *Block) IsPayload() bool {
	return b.Transaction != nil
}

// SerializeForHash produces the deterministic byte string hashed to
// produce Hash and signed to produce Signature. Hash and Signature
// fields are always treated as cleared, regardless of what they
// currently hold on b.
func SerializeForHash(b *Block) []byte {
	var buf bytes.Buffer

	var u64 [8]byte
	var u32 [4]byte

	binary.BigEndian.PutUint64(u64[:], b.Index)
	buf.Write(u64[:])

	binary.BigEndian.PutUint64(u64[:], uint64(b.Timestamp))
	buf.Write(u64[:])

	binary.BigEndian.PutUint32(u32[:], b.Version)
	buf.Write(u32[:])

	binary.BigEndian.PutUint32(u32[:], uint32(b.Difficulty))
	buf.Write(u32[:])

	binary.BigEndian.PutUint32(u32[:], b.Random)
	buf.Write(u32[:])

	binary.BigEndian.PutUint64(u64[:], b.Nonce)
	buf.Write(u64[:])

	writeLenPrefixed(&buf, b.PrevBlockHash)
	writeLenPrefixed(&buf, b.PubKey)

	if b.Transaction == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		tx := b.Transaction
		buf.WriteByte(byte(len(tx.Class)))
		buf.WriteString(string(tx.Class))
		writeLenPrefixed(&buf, tx.Identity)
		writeLenPrefixed(&buf, tx.Confirmation)
		writeLenPrefixed(&buf, tx.Data)
		writeLenPrefixed(&buf, tx.PubKey)
	}

	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(b)))
	buf.Write(u32[:])
	buf.Write(b)
}
