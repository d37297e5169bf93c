// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger wires every subsystem's logs.Logger onto a pair of
// rotating log files (the main log and an error-only log), mirroring the
// teacher's subsystem-tag registry.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jrick/logrotate/rotator"

	"github.com/xaichain/xaid/logs"
)

type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

type errLogWriter struct{}

func (errLogWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		ErrLogRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem. A single backend is created and every subsystem
// logger created from it writes to the same rotating files. Loggers must
// not be used before InitLogRotators has run.
var (
	backendLog = logs.NewBackend([]*logs.BackendWriter{
		logs.NewAllLevelsBackendWriter(logWriter{}),
		logs.NewErrorBackendWriter(errLogWriter{}),
	})

	// LogRotator is the main log output. Closed on shutdown.
	LogRotator *rotator.Rotator
	// ErrLogRotator is the error-only log output. Closed on shutdown.
	ErrLogRotator *rotator.Rotator

	xaidLog = backendLog.Logger("XAID")
	chanLog = backendLog.Logger("CHAN")
	txmpLog = backendLog.Logger("TXMP")
	utxoLog = backendLog.Logger("UTXO")
	valdLog = backendLog.Logger("VALD")
	minrLog = backendLog.Logger("MINR")
	diffLog = backendLog.Logger("DIFF")
	peerLog = backendLog.Logger("PEER")
	syncLog = backendLog.Logger("SYNC")
	srvrLog = backendLog.Logger("SRVR")
	cnfgLog = backendLog.Logger("CNFG")
	storLog = backendLog.Logger("STOR")

	initiated = false
)

// SubsystemTags is an enum of all subsystem tags.
var SubsystemTags = struct {
	XAID,
	CHAN,
	TXMP,
	UTXO,
	VALD,
	MINR,
	DIFF,
	PEER,
	SYNC,
	SRVR,
	CNFG,
	STOR string
}{
	XAID: "XAID",
	CHAN: "CHAN",
	TXMP: "TXMP",
	UTXO: "UTXO",
	VALD: "VALD",
	MINR: "MINR",
	DIFF: "DIFF",
	PEER: "PEER",
	SYNC: "SYNC",
	SRVR: "SRVR",
	CNFG: "CNFG",
	STOR: "STOR",
}

var subsystemLoggers = map[string]logs.Logger{
	SubsystemTags.XAID: xaidLog,
	SubsystemTags.CHAN: chanLog,
	SubsystemTags.TXMP: txmpLog,
	SubsystemTags.UTXO: utxoLog,
	SubsystemTags.VALD: valdLog,
	SubsystemTags.MINR: minrLog,
	SubsystemTags.DIFF: diffLog,
	SubsystemTags.PEER: peerLog,
	SubsystemTags.SYNC: syncLog,
	SubsystemTags.SRVR: srvrLog,
	SubsystemTags.CNFG: cnfgLog,
	SubsystemTags.STOR: storLog,
}

// InitLogRotators initializes the rotating log files. It must be called
// before any subsystem logger is used in anger.
func InitLogRotators(logFile, errLogFile string) {
	initiated = true
	LogRotator = initLogRotator(logFile)
	ErrLogRotator = initLogRotator(errLogFile)
}

func initLogRotator(logFile string) *rotator.Rotator {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %s\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %s\n", err)
		os.Exit(1)
	}
	return r
}

// SetLogLevel sets the logging level for the given subsystem. Unknown
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := logs.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets every subsystem logger to the given level.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns the sorted subsystem tag list.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// Get returns the logger for a specific subsystem tag.
func Get(tag string) (logger logs.Logger, ok bool) {
	logger, ok = subsystemLoggers[tag]
	return
}

// ParseAndSetDebugLevels parses a "trace" or "SUBSYS=debug,SUBSYS2=info"
// style string and applies it.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]
		if _, exists := Get(subsysID); !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", logLevel)
		}
		SetLogLevel(subsysID, logLevel)
	}
	return nil
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}
