// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2017-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/decred/berryscan/api/v1"
	"github.com/decred/berryscan/berryscand/fetcher"
	"github.com/decred/berryscan/berryscand/scanner"
	"github.com/decred/dcrd/dcrutil/v3"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename   = "berryscand.conf"
	defaultDataDirname      = "data"
	defaultLogLevel         = "info"
	defaultLogDirname       = "logs"
	defaultLogFilename      = "berryscand.log"
	defaultHistoryDirname   = "history"
	defaultCacheDirname     = "cache"
	defaultProgressInterval = time.Minute
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("berryscand", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for berryscand.
//
// See loadConfig for details on the configuration load process.
type config struct {
	HomeDir          string        `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion      bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile       string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir          string        `short:"b" long:"datadir" description:"Directory to store history checkpoints"`
	LogDir           string        `long:"logdir" description:"Directory to log output."`
	DebugLevel       string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	RPCURL           string        `long:"rpcurl" description:"JSON-RPC endpoint of an archival node"`
	Account          string        `long:"account" description:"Account holding the board"`
	KeyPrefix        string        `long:"keyprefix" description:"Base64 encoded storage key prefix of the board rows"`
	GenesisHeight    uint64        `long:"genesisheight" description:"Height the history starts at when no checkpoint exists"`
	FinalHeight      uint64        `long:"finalheight" description:"Last height to scan (default: latest final height)"`
	JumpSize         uint64        `long:"jumpsize" description:"Distance of the jump probe"`
	MaxAttempts      int           `long:"maxattempts" description:"Attempts per height before giving up on it"`
	Backoff          time.Duration `long:"backoff" description:"Base delay between attempts, doubled after every attempt"`
	RequestTimeout   time.Duration `long:"requesttimeout" description:"Timeout of a single JSON-RPC request"`
	Cache            bool          `long:"cache" description:"Cache fetched boards on disk"`
	CacheDir         string        `long:"cachedir" description:"Directory of the board cache (default: <datadir>/cache)"`
	Listen           string        `long:"listen" description:"Serve the status API on this interface/port (default port: 49160)"`
	ProgressInterval time.Duration `long:"progressinterval" description:"Interval of progress reports in the log, 0 disables them"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// defaultConfig returns the configuration used when neither the config file
// nor the command line override anything.
func defaultConfig() config {
	return config{
		HomeDir:          defaultHomeDir,
		ConfigFile:       defaultConfigFile,
		DataDir:          defaultDataDir,
		LogDir:           defaultLogDir,
		DebugLevel:       defaultLogLevel,
		RPCURL:           v1.DefaultRPCURL,
		Account:          v1.DefaultAccountID,
		KeyPrefix:        v1.DefaultKeyPrefix,
		GenesisHeight:    v1.DefaultGenesisHeight,
		JumpSize:         scanner.DefaultJumpSize,
		MaxAttempts:      fetcher.DefaultMaxAttempts,
		Backoff:          fetcher.DefaultBackoff,
		RequestTimeout:   fetcher.DefaultTimeout,
		ProgressInterval: defaultProgressInterval,
	}
}

// validateConfig checks the scanner and endpoint settings and fills in the
// settings derived from others.  It does not touch the file system.
func validateConfig(cfg *config) error {
	u, err := url.Parse(cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("invalid rpcurl %v: %v", cfg.RPCURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid rpcurl %v: must be an absolute http "+
			"or https URL", cfg.RPCURL)
	}
	if !v1.RegexpAccountID.MatchString(cfg.Account) {
		return fmt.Errorf("invalid account %q", cfg.Account)
	}
	if cfg.KeyPrefix == "" || !v1.RegexpBase64.MatchString(cfg.KeyPrefix) {
		return fmt.Errorf("invalid keyprefix %q: must be base64",
			cfg.KeyPrefix)
	}
	if cfg.JumpSize == 0 {
		return errors.New("jumpsize must be positive")
	}
	if cfg.MaxAttempts < 1 {
		return errors.New("maxattempts must be positive")
	}
	if cfg.Backoff <= 0 {
		return errors.New("backoff must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("requesttimeout must be positive")
	}
	if cfg.ProgressInterval < 0 {
		return errors.New("progressinterval must not be negative")
	}
	if cfg.FinalHeight != 0 && cfg.FinalHeight < cfg.GenesisHeight {
		return fmt.Errorf("finalheight %v is below genesisheight %v",
			cfg.FinalHeight, cfg.GenesisHeight)
	}

	if cfg.Cache && cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, defaultCacheDirname)
	}
	if cfg.Listen != "" {
		cfg.Listen = normalizeAddress(cfg.Listen, v1.DefaultListenPort)
	}

	return nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in berryscand functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, version())
		os.Exit(0)
	}

	// Update the home directory for berryscand if specified.  Since the
	// home directory is updated, other variables need to be updated to
	// reflect the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))

		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir,
				defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir,
				defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cleanAndExpandPath(
		cfg.ConfigFile))
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config "+
				"file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "%s: Failed to create home directory: %v"
		err := fmt.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.CacheDir != "" {
		cfg.CacheDir = cleanAndExpandPath(cfg.CacheDir)
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
