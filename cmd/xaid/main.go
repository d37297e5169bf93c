// Command xaid runs a full node, or performs a one-shot administrative
// operation against its data directory (status, submit_tx, get_block,
// get_tx, get_utxo, reindex, resync_from_checkpoint) — the CLI surface
// a host process drives node.Node through, with no RPC layer in between.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/xaichain/xaid/config"
)

// Exit codes, per the documented fatal classes: normal shutdown is 0;
// everything else is a distinct non-zero class so a host process can
// tell them apart without parsing log text. run returns exitConfigInvalid
// for configuration and usage errors and exitCommandFailed (through fail)
// for every command failure; no path returns exitStorageCorruption,
// exitPortTaken or exitUnrecoverableReorg.
const (
	exitOK                 = 0
	exitConfigInvalid      = 1
	exitStorageCorruption  = 2
	exitPortTaken          = 3
	exitUnrecoverableReorg = 4
	exitCommandFailed      = 5
)

const (
	cmdStart                 = "start"
	cmdStop                  = "stop"
	cmdStatus                = "status"
	cmdSubmitTx              = "submit_tx"
	cmdGetBlock              = "get_block"
	cmdGetTx                 = "get_tx"
	cmdGetUTXO               = "get_utxo"
	cmdReindex               = "reindex"
	cmdResyncFromCheckpoint = "resync_from_checkpoint"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "error parsing configuration: %s\n", err)
		return exitConfigInvalid
	}

	args := flagsArgs(cfg)
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: xaid [options] <command> [args...]")
		fmt.Fprintln(os.Stderr, "commands: start, stop, status, submit_tx, get_block, get_tx, get_utxo, reindex, resync_from_checkpoint")
		return exitConfigInvalid
	}

	command, rest := args[0], args[1:]
	switch command {
	case cmdStart:
		return runStart(cfg)
	case cmdStop:
		return runStop(cfg)
	case cmdStatus:
		return runStatus(cfg)
	case cmdSubmitTx:
		return runSubmitTx(cfg, rest)
	case cmdGetBlock:
		return runGetBlock(cfg, rest)
	case cmdGetTx:
		return runGetTx(cfg, rest)
	case cmdGetUTXO:
		return runGetUTXO(cfg, rest)
	case cmdReindex:
		return runReindex(cfg)
	case cmdResyncFromCheckpoint:
		return runResyncFromCheckpoint(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		return exitConfigInvalid
	}
}

// flagsArgs returns the positional arguments go-flags left unconsumed —
// the command name and its own arguments — after Parse populated cfg
// from every recognized --flag.
func flagsArgs(cfg *config.Config) []string {
	return cfg.Positional.Args
}

func fail(format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return exitCommandFailed
}
