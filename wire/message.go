// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// MessageCommand identifies the semantic payload carried by a Message, the
// wire protocol table of the specification's external interfaces section.
type MessageCommand uint8

const (
	CmdHello MessageCommand = iota
	CmdPing
	CmdPong
	CmdGetHeaders
	CmdHeaders
	CmdGetBlock
	CmdBlock
	CmdInvTx
	CmdInvBlock
	CmdGetData
	CmdTx
	CmdReject
	CmdIBDBlock
)

func (c MessageCommand) String() string {
	switch c {
	case CmdHello:
		return "hello"
	case CmdPing:
		return "ping"
	case CmdPong:
		return "pong"
	case CmdGetHeaders:
		return "get_headers"
	case CmdHeaders:
		return "headers"
	case CmdGetBlock:
		return "get_block"
	case CmdBlock:
		return "block"
	case CmdInvTx:
		return "inv_tx"
	case CmdInvBlock:
		return "inv_block"
	case CmdGetData:
		return "get_data"
	case CmdTx:
		return "tx"
	case CmdReject:
		return "reject"
	case CmdIBDBlock:
		return "ibd_block"
	default:
		return "unknown"
	}
}

// MaxMessagePayload bounds the size of a single message payload a peer may
// send, well above the largest legitimate block.
const MaxMessagePayload = 32 * 1024 * 1024

// Message is implemented by every concrete payload type below. It is
// transported inside a signed Envelope (see envelope.go).
type Message interface {
	Command() MessageCommand
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// MsgHello announces this node's identity and chain state on connect.
type MsgHello struct {
	ProtocolVersion  uint32
	NetworkID        string
	BestTipHash      Hash
	BestTipHeight    uint64
	CumulativeWork   []byte // big-endian encoded big.Int
}

func (m *MsgHello) Command() MessageCommand { return CmdHello }

func (m *MsgHello) Encode(w io.Writer) error {
	if err := WriteUint32(w, m.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteVarString(w, m.NetworkID); err != nil {
		return err
	}
	if err := WriteHash(w, m.BestTipHash); err != nil {
		return err
	}
	if err := WriteUint64(w, m.BestTipHeight); err != nil {
		return err
	}
	return WriteVarBytes(w, m.CumulativeWork)
}

func (m *MsgHello) Decode(r io.Reader) error {
	var err error
	if m.ProtocolVersion, err = ReadUint32(r); err != nil {
		return err
	}
	if m.NetworkID, err = ReadVarString(r, 64); err != nil {
		return err
	}
	if m.BestTipHash, err = ReadHash(r); err != nil {
		return err
	}
	if m.BestTipHeight, err = ReadUint64(r); err != nil {
		return err
	}
	m.CumulativeWork, err = ReadVarBytes(r, 64, "cumulative_work")
	return err
}

// MsgPing/MsgPong carry a nonce used to measure round-trip time and detect
// dead connections.
type MsgPing struct{ Nonce uint64 }

func (m *MsgPing) Command() MessageCommand   { return CmdPing }
func (m *MsgPing) Encode(w io.Writer) error  { return WriteUint64(w, m.Nonce) }
func (m *MsgPing) Decode(r io.Reader) error  { n, err := ReadUint64(r); m.Nonce = n; return err }

type MsgPong struct{ Nonce uint64 }

func (m *MsgPong) Command() MessageCommand  { return CmdPong }
func (m *MsgPong) Encode(w io.Writer) error { return WriteUint64(w, m.Nonce) }
func (m *MsgPong) Decode(r io.Reader) error { n, err := ReadUint64(r); m.Nonce = n; return err }

// MsgGetHeaders requests a batch of headers starting after FromHash.
type MsgGetHeaders struct {
	FromHash Hash
	Count    uint32
}

func (m *MsgGetHeaders) Command() MessageCommand { return CmdGetHeaders }

func (m *MsgGetHeaders) Encode(w io.Writer) error {
	if err := WriteHash(w, m.FromHash); err != nil {
		return err
	}
	return WriteUint32(w, m.Count)
}

func (m *MsgGetHeaders) Decode(r io.Reader) error {
	var err error
	if m.FromHash, err = ReadHash(r); err != nil {
		return err
	}
	m.Count, err = ReadUint32(r)
	return err
}

// MsgHeaders carries an ordered batch of block headers.
type MsgHeaders struct {
	Headers []BlockHeader
}

func (m *MsgHeaders) Command() MessageCommand { return CmdHeaders }

func (m *MsgHeaders) Encode(w io.Writer) error {
	if err := WriteVarInt(w, uint64(len(m.Headers))); err != nil {
		return err
	}
	for i := range m.Headers {
		if err := m.Headers[i].encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgHeaders) Decode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockTransactions {
		return errors.Errorf("headers message has too many entries: %d", count)
	}
	m.Headers = make([]BlockHeader, count)
	for i := range m.Headers {
		if err := m.Headers[i].decode(r); err != nil {
			return err
		}
	}
	return nil
}

// MsgGetBlock requests a single full block body by hash during initial
// block download. The reply travels as MsgIBDBlock, never MsgBlock, so an
// IBD round trip can never be mistaken for a gossip relay reply on the
// same route.
type MsgGetBlock struct{ BlockHash Hash }

func (m *MsgGetBlock) Command() MessageCommand { return CmdGetBlock }
func (m *MsgGetBlock) Encode(w io.Writer) error { return WriteHash(w, m.BlockHash) }
func (m *MsgGetBlock) Decode(r io.Reader) error {
	h, err := ReadHash(r)
	m.BlockHash = h
	return err
}

// MsgBlock carries a full block in response to a gossip MsgGetData request.
type MsgBlock struct{ Block Block }

func (m *MsgBlock) Command() MessageCommand { return CmdBlock }
func (m *MsgBlock) Encode(w io.Writer) error { return m.Block.Encode(w) }
func (m *MsgBlock) Decode(r io.Reader) error { return m.Block.Decode(r) }

// MsgIBDBlock carries a full block in response to a MsgGetBlock request
// made during initial block download. Same wire shape as MsgBlock, kept as
// a distinct command so the router can tell an IBD reply apart from an
// unsolicited gossip relay block on the same connection.
type MsgIBDBlock struct{ Block Block }

func (m *MsgIBDBlock) Command() MessageCommand { return CmdIBDBlock }
func (m *MsgIBDBlock) Encode(w io.Writer) error { return m.Block.Encode(w) }
func (m *MsgIBDBlock) Decode(r io.Reader) error { return m.Block.Decode(r) }

// InvType distinguishes a transaction announcement from a block
// announcement inside an inventory list.
type InvType uint8

const (
	InvTypeTx InvType = iota
	InvTypeBlock
)

// MsgInv announces a set of object ids the sender has, without their
// bodies. Bodies are requested via MsgGetData if unknown.
type MsgInv struct {
	Type InvType
	IDs  []Hash
}

func (m *MsgInv) Command() MessageCommand {
	if m.Type == InvTypeBlock {
		return CmdInvBlock
	}
	return CmdInvTx
}

func (m *MsgInv) Encode(w io.Writer) error {
	if err := writeByte(w, byte(m.Type)); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.IDs))); err != nil {
		return err
	}
	for _, id := range m.IDs {
		if err := WriteHash(w, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgInv) Decode(r io.Reader) error {
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return err
	}
	m.Type = InvType(typeBuf[0])
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockTransactions {
		return errors.Errorf("inv message has too many entries: %d", count)
	}
	m.IDs = make([]Hash, count)
	for i := range m.IDs {
		if m.IDs[i], err = ReadHash(r); err != nil {
			return err
		}
	}
	return nil
}

// GetDataItem is one requested (type, id) pair inside a MsgGetData.
type GetDataItem struct {
	Type InvType
	ID   Hash
}

// MsgGetData requests the bodies for a list of previously announced ids.
type MsgGetData struct{ Items []GetDataItem }

func (m *MsgGetData) Command() MessageCommand { return CmdGetData }

func (m *MsgGetData) Encode(w io.Writer) error {
	if err := WriteVarInt(w, uint64(len(m.Items))); err != nil {
		return err
	}
	for _, item := range m.Items {
		if err := writeByte(w, byte(item.Type)); err != nil {
			return err
		}
		if err := WriteHash(w, item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgGetData) Decode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockTransactions {
		return errors.Errorf("get_data message has too many entries: %d", count)
	}
	m.Items = make([]GetDataItem, count)
	for i := range m.Items {
		var typeBuf [1]byte
		if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
			return err
		}
		m.Items[i].Type = InvType(typeBuf[0])
		if m.Items[i].ID, err = ReadHash(r); err != nil {
			return err
		}
	}
	return nil
}

// MsgTx carries a single full transaction.
type MsgTx struct{ Transaction Transaction }

func (m *MsgTx) Command() MessageCommand { return CmdTx }
func (m *MsgTx) Encode(w io.Writer) error { return m.Transaction.Encode(w) }
func (m *MsgTx) Decode(r io.Reader) error { return m.Transaction.Decode(r) }

// MsgReject tells a peer why a previously sent object was refused.
type MsgReject struct {
	ID        Hash
	ErrorKind string
	Reason    string
}

func (m *MsgReject) Command() MessageCommand { return CmdReject }

func (m *MsgReject) Encode(w io.Writer) error {
	if err := WriteHash(w, m.ID); err != nil {
		return err
	}
	if err := WriteVarString(w, m.ErrorKind); err != nil {
		return err
	}
	return WriteVarString(w, m.Reason)
}

func (m *MsgReject) Decode(r io.Reader) error {
	var err error
	if m.ID, err = ReadHash(r); err != nil {
		return err
	}
	if m.ErrorKind, err = ReadVarString(r, 64); err != nil {
		return err
	}
	m.Reason, err = ReadVarString(r, 256)
	return err
}

// NewMessage allocates a zero-value Message for the given command so a
// reader can Decode into it.
func NewMessage(cmd MessageCommand) (Message, error) {
	switch cmd {
	case CmdHello:
		return &MsgHello{}, nil
	case CmdPing:
		return &MsgPing{}, nil
	case CmdPong:
		return &MsgPong{}, nil
	case CmdGetHeaders:
		return &MsgGetHeaders{}, nil
	case CmdHeaders:
		return &MsgHeaders{}, nil
	case CmdGetBlock:
		return &MsgGetBlock{}, nil
	case CmdBlock:
		return &MsgBlock{}, nil
	case CmdInvTx, CmdInvBlock:
		return &MsgInv{}, nil
	case CmdGetData:
		return &MsgGetData{}, nil
	case CmdTx:
		return &MsgTx{}, nil
	case CmdReject:
		return &MsgReject{}, nil
	case CmdIBDBlock:
		return &MsgIBDBlock{}, nil
	default:
		return nil, errors.Errorf("unknown message command %d", cmd)
	}
}

// EncodeMessage serializes a command byte followed by the message's
// payload into a single length-prefixed frame.
func EncodeMessage(w io.Writer, msg Message) error {
	var payload bytes.Buffer
	if err := msg.Encode(&payload); err != nil {
		return err
	}
	if payload.Len() > MaxMessagePayload {
		return errors.Errorf("message payload too large: %d", payload.Len())
	}
	if err := writeByte(w, byte(msg.Command())); err != nil {
		return err
	}
	return WriteVarBytes(w, payload.Bytes())
}

// DecodeMessage reads a single length-prefixed frame produced by
// EncodeMessage and returns the concrete Message.
func DecodeMessage(r io.Reader) (Message, error) {
	var cmdBuf [1]byte
	if _, err := io.ReadFull(r, cmdBuf[:]); err != nil {
		return nil, err
	}
	payload, err := ReadVarBytes(r, MaxMessagePayload, "message payload")
	if err != nil {
		return nil, err
	}
	msg, err := NewMessage(MessageCommand(cmdBuf[0]))
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		return nil, err
	}
	return msg, nil
}
