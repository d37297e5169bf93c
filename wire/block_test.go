package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func sampleBlock() *Block {
	coinbase := &Transaction{
		Version: TxVersion,
		Outputs: []TxOutput{{Address: "XAIminerminerminerminerminerminer", Amount: 60_000_000}},
	}
	tx := sampleTransaction()
	txIDs := []Hash{coinbase.TxID(), tx.TxID()}

	return &Block{
		Header: BlockHeader{
			Version:        BlockVersion,
			Height:         1,
			PrevHash:       Hash{},
			MerkleRoot:     CalculateMerkleRoot(txIDs),
			Timestamp:      1_700_000_000,
			DifficultyBits: 0x1d00ffff,
			Nonce:          42,
			ExtraNonce:     7,
			MinerAddress:   "XAIminerminerminerminerminerminer",
		},
		Transactions: []*Transaction{coinbase, tx},
	}
}

func TestBlockRoundTrip(t *testing.T) {
	block := sampleBlock()

	var buf bytes.Buffer
	if err := block.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded Block
	if err := decoded.Decode(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !reflect.DeepEqual(block, &decoded) {
		t.Fatalf("round trip mismatch")
	}
	if decoded.Hash() != block.Hash() {
		t.Fatalf("hash changed across round trip")
	}
}

func TestMerkleRootSingleAndOddCounts(t *testing.T) {
	a := DoubleHashH([]byte("a"))
	if got := CalculateMerkleRoot([]Hash{a}); got != a {
		t.Fatalf("single-element merkle root should equal the element itself")
	}

	b := DoubleHashH([]byte("b"))
	c := DoubleHashH([]byte("c"))
	odd := CalculateMerkleRoot([]Hash{a, b, c})
	evenPadded := CalculateMerkleRoot([]Hash{a, b, c, c})
	if odd != evenPadded {
		t.Fatalf("odd-length merkle root must duplicate the last leaf")
	}
}

func TestBlockHashDependsOnlyOnHeader(t *testing.T) {
	block := sampleBlock()
	h1 := block.Hash()

	// Swapping the transaction list without updating MerkleRoot must not
	// change the block hash: the hash is a function of the header alone.
	block.Transactions = block.Transactions[:1]
	if block.Hash() != h1 {
		t.Fatal("block hash must be independent of the in-memory transaction list")
	}
}

func TestCoinbaseIsFirstTransaction(t *testing.T) {
	block := sampleBlock()
	if !block.Coinbase().IsCoinbase() {
		t.Fatal("Transactions[0] must be the coinbase")
	}
}
