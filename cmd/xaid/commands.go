package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/xaichain/xaid/config"
	"github.com/xaichain/xaid/node"
	"github.com/xaichain/xaid/wire"
)

// resyncTimeout bounds how long resync_from_checkpoint waits for each
// configured peer to hand over everything it has before moving on to
// the next one; a one-shot command can't stay connected forever the
// way a running node does.
const resyncTimeout = 2 * time.Minute

const pidFilename = "xaid.pid"

// runStart launches a node in the foreground and blocks until SIGINT or
// SIGTERM, the shape every long-running daemon in this repo follows
// rather than forking into the background itself.
func runStart(cfg *config.Config) int {
	n, err := node.New(cfg.Params, node.Config{
		DataDir:         cfg.DataDir,
		ListenAddr:      cfg.ListenAddr,
		AddPeers:        cfg.AddPeers,
		MinerAddress:    cfg.MinerAddress,
		MinerWorkers:    cfg.MinerWorkers,
		CheckpointEvery: cfg.CheckpointEvery,
	})
	if err != nil {
		return fail("initializing node: %s", err)
	}

	if err := writePIDFile(cfg.DataDir); err != nil {
		return fail("writing pid file: %s", err)
	}
	defer removePIDFile(cfg.DataDir)

	if err := n.Start(); err != nil {
		return fail("starting node: %s", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	if err := n.Stop(); err != nil {
		return fail("stopping node: %s", err)
	}
	return exitOK
}

// runStop signals a running `xaid start` process (found via its pid
// file in DataDir) to shut down gracefully; there is no RPC channel in
// this deployment, so the pid file is the one piece of shared state
// between the two invocations.
func runStop(cfg *config.Config) int {
	pid, err := readPIDFile(cfg.DataDir)
	if err != nil {
		return fail("reading pid file: %s", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fail("finding process %d: %s", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fail("signaling process %d: %s", pid, err)
	}
	fmt.Printf("sent shutdown signal to pid %d\n", pid)
	return exitOK
}

func pidFilePath(dataDir string) string { return filepath.Join(dataDir, pidFilename) }

func writePIDFile(dataDir string) error {
	return os.WriteFile(pidFilePath(dataDir), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile(dataDir string) { _ = os.Remove(pidFilePath(dataDir)) }

func readPIDFile(dataDir string) (int, error) {
	raw, err := os.ReadFile(pidFilePath(dataDir))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(bytes.TrimSpace(raw)))
}

// runStatus opens the store read-only-in-spirit (chain.New only replays
// already-committed blocks) and reports the same summary node.Status
// would, without disturbing a concurrently running node's pid file.
func runStatus(cfg *config.Config) int {
	n, err := openNodeForQuery(cfg)
	if err != nil {
		return fail("opening node: %s", err)
	}
	status := n.Status()
	out, _ := json.MarshalIndent(status, "", "  ")
	fmt.Println(string(out))
	return exitOK
}

// openNodeForQuery constructs a node.Node against the existing data
// directory without starting any background service — every one-shot
// command built on it only reads already-committed state, except
// resync_from_checkpoint, which commits whatever its peer sync delivers;
// submit_tx uses it only to dial a peer.
func openNodeForQuery(cfg *config.Config) (*node.Node, error) {
	return node.New(cfg.Params, node.Config{DataDir: cfg.DataDir})
}

// runSubmitTx delivers a transaction to a running `xaid start` process.
// There is no RPC layer in this deployment, so it reaches the live
// node's real mempool the same way any peer would: it dials one of
// --addpeer's addresses and pushes the transaction over the signed P2P
// channel (node.Node.SubmitTx), rather than accepting it into this
// one-shot process's own throwaway, in-memory node.
func runSubmitTx(cfg *config.Config, args []string) int {
	if len(args) != 1 {
		return fail("usage: submit_tx <hex_encoded_transaction>")
	}
	if len(cfg.AddPeers) == 0 {
		return fail("submit_tx needs at least one --addpeer pointing at a running node")
	}
	raw, err := hex.DecodeString(args[0])
	if err != nil {
		return fail("decoding hex transaction: %s", err)
	}
	var tx wire.Transaction
	if err := tx.Decode(bytes.NewReader(raw)); err != nil {
		return fail("decoding transaction: %s", err)
	}

	n, err := openNodeForQuery(cfg)
	if err != nil {
		return fail("opening node: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if err := n.SubmitTx(ctx, cfg.AddPeers[0], &tx); err != nil {
		return fail("rejected: %s", err)
	}
	fmt.Printf("submitted %s to %s\n", tx.TxID(), cfg.AddPeers[0])
	return exitOK
}

func runGetBlock(cfg *config.Config, args []string) int {
	if len(args) != 1 {
		return fail("usage: get_block <block_hash_hex>")
	}
	hash, err := parseHash(args[0])
	if err != nil {
		return fail("parsing block hash: %s", err)
	}
	n, err := openNodeForQuery(cfg)
	if err != nil {
		return fail("opening node: %s", err)
	}
	block, err := n.Store.GetBlockByHash(hash)
	if err != nil {
		return fail("block not found: %s", err)
	}
	return printJSON(block)
}

func runGetTx(cfg *config.Config, args []string) int {
	if len(args) != 1 {
		return fail("usage: get_tx <txid_hex>")
	}
	txID, err := parseHash(args[0])
	if err != nil {
		return fail("parsing txid: %s", err)
	}
	n, err := openNodeForQuery(cfg)
	if err != nil {
		return fail("opening node: %s", err)
	}
	if tx, ok := n.Mempool.Get(txID); ok {
		return printJSON(tx)
	}
	height, ok := n.Store.TipHeight()
	if !ok {
		return fail("transaction %s not found", args[0])
	}
	for h := uint64(0); h <= height; h++ {
		block, err := n.Store.GetBlockByHeight(h)
		if err != nil {
			return fail("reading block at height %d: %s", h, err)
		}
		for _, tx := range block.Transactions {
			if tx.TxID() == txID {
				return printJSON(tx)
			}
		}
	}
	return fail("transaction %s not found", args[0])
}

func runGetUTXO(cfg *config.Config, args []string) int {
	if len(args) != 2 {
		return fail("usage: get_utxo <txid_hex> <vout>")
	}
	txID, err := parseHash(args[0])
	if err != nil {
		return fail("parsing txid: %s", err)
	}
	vout, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fail("parsing vout: %s", err)
	}
	n, err := openNodeForQuery(cfg)
	if err != nil {
		return fail("opening node: %s", err)
	}
	entry, ok := n.Store.GetUTXO(wire.Outpoint{PrevTxID: txID, PrevVout: uint32(vout)})
	if !ok {
		return fail("utxo %s:%d not found or already spent", args[0], vout)
	}
	return printJSON(entry)
}

// runReindex rebuilds the in-memory chain index from the committed
// block log on disk — exactly what chain.New already does every time
// it opens a non-empty store, so this command's whole job is to run
// that replay once, report the result, and exit.
func runReindex(cfg *config.Config) int {
	n, err := openNodeForQuery(cfg)
	if err != nil {
		return fail("reindexing: %s", err)
	}
	height, hash, _, _ := n.Manager.CandidateTipInfo()
	fmt.Printf("reindexed to height %d, tip %x\n", height, hash)
	return exitOK
}

// runResyncFromCheckpoint reports the latest on-disk checkpoint, then
// dials each configured peer in turn; ConnectPeer runs a catch-up sync
// against any peer whose handshake reports more cumulative work than the
// local tip. The checkpoint is only printed: sync starts from the local
// tip.
func runResyncFromCheckpoint(cfg *config.Config) int {
	n, err := openNodeForQuery(cfg)
	if err != nil {
		return fail("opening node: %s", err)
	}

	checkpoint, ok, err := n.Store.LatestCheckpoint()
	if err != nil {
		return fail("reading checkpoint: %s", err)
	}
	if !ok {
		fmt.Println("no checkpoint found; chain state already starts at genesis")
	} else {
		fmt.Printf("resuming from checkpoint at height %d, block %x\n", checkpoint.Height, checkpoint.BlockHash)
	}

	if len(cfg.AddPeers) == 0 {
		fmt.Println("no peers configured; nothing to sync against")
		return exitOK
	}

	for _, endpoint := range cfg.AddPeers {
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		err := n.ConnectPeer(ctx, endpoint)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s\n", err)
		}
	}

	height, hash, _, _ := n.Manager.CandidateTipInfo()
	fmt.Printf("resync complete: height %d, tip %x\n", height, hash)
	return exitOK
}

func parseHash(s string) (wire.Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return wire.Hash{}, err
	}
	if len(raw) != len(wire.Hash{}) {
		return wire.Hash{}, fmt.Errorf("expected %d bytes, got %d", len(wire.Hash{}), len(raw))
	}
	var h wire.Hash
	copy(h[:], raw)
	return h, nil
}

func printJSON(v interface{}) int {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fail("marshaling result: %s", err)
	}
	fmt.Println(string(out))
	return exitOK
}
