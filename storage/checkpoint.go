package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xaichain/xaid/wire"
)

// Checkpoint is a (height, block_hash, utxo_merkle_root) tuple written
// every CHECKPOINT_INTERVAL blocks (specification §4.3).
type Checkpoint struct {
	Height        uint64    `json:"height"`
	BlockHash     wire.Hash `json:"block_hash"`
	UTXOMerkleRoot wire.Hash `json:"utxo_merkle_root"`
}

func (s *Store) writeCheckpoint(height uint64, hash wire.Hash) error {
	cp := Checkpoint{Height: height, BlockHash: hash, UTXOMerkleRoot: s.utxoSet.MerkleRoot()}
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, checkpointsDirName, checkpointFileName(height))
	return os.WriteFile(path, raw, 0o644)
}

func checkpointFileName(height uint64) string {
	return fmt.Sprintf("cp_%012d.json", height)
}

// LatestCheckpoint reads the highest checkpoint written so far. Its only
// caller, the resync_from_checkpoint command, prints it; the sync engine
// does not read checkpoints and always starts from the local tip.
func (s *Store) LatestCheckpoint() (*Checkpoint, bool, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, checkpointsDirName))
	if err != nil {
		return nil, false, err
	}
	var best *Checkpoint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, checkpointsDirName, entry.Name()))
		if err != nil {
			return nil, false, err
		}
		var cp Checkpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			return nil, false, err
		}
		if best == nil || cp.Height > best.Height {
			best = &cp
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}
