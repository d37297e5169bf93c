package wire

import (
	"bytes"
	"io"
)

// Envelope is the authenticated request wrapper every peer-to-peer message
// travels inside (specification §4.10). The signature covers
// sha256(nonce || timestamp || payload); verification, replay-window, and
// rate-limit policy live in the p2p package, which is the only consumer
// of this type that understands peer reputation.
type Envelope struct {
	SenderPubKey [33]byte
	Nonce        uint64
	Timestamp    int64
	Payload      []byte // an EncodeMessage-framed Message
	Signature    [64]byte
}

// SignedDigest returns the 32-byte message that Signature is computed
// over: sha256(nonce || timestamp || payload).
func (e *Envelope) SignedDigest() [32]byte {
	var buf bytes.Buffer
	_ = WriteUint64(&buf, e.Nonce)
	_ = WriteInt64(&buf, e.Timestamp)
	buf.Write(e.Payload)
	return SingleHashH(buf.Bytes())
}

// Encode writes the canonical envelope encoding.
func (e *Envelope) Encode(w io.Writer) error {
	if _, err := w.Write(e.SenderPubKey[:]); err != nil {
		return err
	}
	if err := WriteUint64(w, e.Nonce); err != nil {
		return err
	}
	if err := WriteInt64(w, e.Timestamp); err != nil {
		return err
	}
	if err := WriteVarBytes(w, e.Payload); err != nil {
		return err
	}
	_, err := w.Write(e.Signature[:])
	return err
}

// Decode reads a canonical envelope encoding.
func (e *Envelope) Decode(r io.Reader) error {
	if _, err := io.ReadFull(r, e.SenderPubKey[:]); err != nil {
		return err
	}
	var err error
	if e.Nonce, err = ReadUint64(r); err != nil {
		return err
	}
	if e.Timestamp, err = ReadInt64(r); err != nil {
		return err
	}
	if e.Payload, err = ReadVarBytes(r, MaxMessagePayload, "envelope payload"); err != nil {
		return err
	}
	_, err = io.ReadFull(r, e.Signature[:])
	return err
}

// Message decodes the envelope's payload back into a concrete Message.
func (e *Envelope) Message() (Message, error) {
	return DecodeMessage(bytes.NewReader(e.Payload))
}
