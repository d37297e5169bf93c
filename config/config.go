// Package config parses CLI flags and an INI configuration file into the
// settings xaid needs to start: which network to run, where its data and
// logs live, how it reaches the network, and whether it mines.
package config

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/xaichain/xaid/logger"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/xaierr"
)

// codeInvalidConfig tags every ConfigError resolve returns.
const codeInvalidConfig xaierr.Code = "config_invalid"

const (
	defaultConfigFilename = "xaid.conf"
	defaultLogFilename    = "xaid.log"
	defaultErrLogFilename = "xaid_err.log"
	defaultNetworkID      = "mainnet"
	defaultMinerWorkers   = 1
	defaultCheckpointEvery = 1000
)

var defaultDataDir = appDataDir("xaid")

// appDataDir returns a per-user application data directory for appName,
// the same shape as the teacher's util.AppDataDir but trimmed to the one
// platform convention this repo's CI and deployment targets actually use.
func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appName)
	}
	return filepath.Join(home, "."+appName)
}

// Config is the fully resolved set of settings xaid starts from, after CLI
// flags and an optional INI file have both been applied (flags win).
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`

	Network string `long:"network" description:"Network to run on (mainnet, testnet, regtest)"`

	ListenAddr string `long:"listen" description:"P2P listen address (empty disables inbound connections)"`
	AddPeers   []string `long:"addpeer" description:"Peer address to connect to on startup; may be given multiple times"`

	MinerAddress    string `long:"mineraddress" description:"Address to pay mining rewards to (empty disables mining)"`
	MinerWorkers    int    `long:"minerworkers" description:"Number of parallel mining worker goroutines"`
	CheckpointEvery uint64 `long:"checkpointevery" description:"Write a UTXO checkpoint every N blocks"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level and per-subsystem overrides, e.g. trace or XAID=debug,SYNC=info"`

	// Params is resolved from Network once parsing succeeds; consensus
	// code reads parameters from it, never from the raw flags above.
	Params *netparams.Params `no-flag:"true"`

	// Positional holds the command name and its arguments, everything
	// left over once every --flag above has been consumed.
	Positional struct {
		Args []string `positional-arg-name:"command" description:"command and arguments: start | stop | status | submit_tx <hex_tx> | get_block <hash> | get_tx <txid> | get_utxo <txid> <vout> | reindex | resync_from_checkpoint"`
	} `positional-args:"yes"`
}

func defaultConfig() *Config {
	return &Config{
		ConfigFile:      filepath.Join(defaultDataDir, defaultConfigFilename),
		DataDir:         defaultDataDir,
		LogDir:          filepath.Join(defaultDataDir, "logs"),
		Network:         defaultNetworkID,
		MinerWorkers:    defaultMinerWorkers,
		CheckpointEvery: defaultCheckpointEvery,
		DebugLevel:      "info",
	}
}

// Parse parses os.Args (plus, if present, an INI file) into a resolved
// Config. Flags always override file settings; the file itself is
// optional — a missing default config file is not an error.
func Parse() (*Config, error) {
	preCfg := defaultConfig()
	preParser := flags.NewParser(preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if _, err := os.Stat(preCfg.ConfigFile); err == nil {
		iniParser := flags.NewParser(cfg, flags.Default)
		if err := flags.NewIniParser(iniParser).ParseFile(preCfg.ConfigFile); err != nil {
			return nil, errors.Wrapf(err, "parsing config file %s", preCfg.ConfigFile)
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve validates the parsed flags, looks up the selected network's
// parameters, and creates the data/log directories. Every failure here is
// a ConfigError: fatal at startup, never something a running node retries.
func (cfg *Config) resolve() error {
	params, ok := netparams.ByNetworkID(cfg.Network)
	if !ok {
		return errConfigf("unknown network %q (want mainnet, testnet, or regtest)", cfg.Network)
	}
	cfg.Params = params

	if err := cfg.Params.Validate(); err != nil {
		return xaierr.Wrap(err, xaierr.KindConfig, codeInvalidConfig, "invalid network parameters")
	}

	if cfg.MinerWorkers < 0 {
		return errConfigf("minerworkers must not be negative")
	}

	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errConfigf("creating directory %s: %v", dir, err)
		}
	}

	logger.InitLogRotators(
		filepath.Join(cfg.LogDir, defaultLogFilename),
		filepath.Join(cfg.LogDir, defaultErrLogFilename),
	)
	if cfg.DebugLevel != "" {
		if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
			return errConfigf("%v", err)
		}
	}

	return nil
}

func errConfigf(format string, args ...interface{}) error {
	return xaierr.New(xaierr.KindConfig, codeInvalidConfig, format, args...)
}
