package netparams

import "testing"

func TestBlockSubsidyHalves(t *testing.T) {
	p := &RegtestParams
	first := p.BlockSubsidy(0)
	if first != p.BlockSubsidyTable[0].Amount {
		t.Fatalf("subsidy at height 0 = %d, want %d", first, p.BlockSubsidyTable[0].Amount)
	}

	secondStep := p.BlockSubsidyTable[1]
	if got := p.BlockSubsidy(secondStep.FromHeight); got != secondStep.Amount {
		t.Fatalf("subsidy at first halving height = %d, want %d", got, secondStep.Amount)
	}
	if got := p.BlockSubsidy(secondStep.FromHeight - 1); got != first {
		t.Fatalf("subsidy one block before halving = %d, want %d", got, first)
	}
}

func TestValidateRejectsEmptyTable(t *testing.T) {
	bad := RegtestParams
	bad.BlockSubsidyTable = nil
	if err := bad.Validate(); err == nil {
		t.Fatal("expected Validate to reject an empty subsidy table")
	}
}

func TestValidateRejectsNonZeroFirstHeight(t *testing.T) {
	bad := RegtestParams
	bad.BlockSubsidyTable = []SubsidyStep{{FromHeight: 1, Amount: 100}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected Validate to reject a table not starting at height 0")
	}
}

func TestByNetworkID(t *testing.T) {
	if _, ok := ByNetworkID("regtest"); !ok {
		t.Fatal("regtest should be a recognized network id")
	}
	if _, ok := ByNetworkID("nonexistent"); ok {
		t.Fatal("unknown network id unexpectedly recognized")
	}
}

func TestGenesisBlockIsInternallyConsistent(t *testing.T) {
	g := RegtestParams.GenesisBlock
	if g.Header.Height != 0 {
		t.Fatalf("genesis height = %d, want 0", g.Header.Height)
	}
	if len(g.Transactions) != 1 || !g.Transactions[0].IsCoinbase() {
		t.Fatal("genesis block must contain exactly one coinbase transaction")
	}
}
