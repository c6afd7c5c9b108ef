package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var (
		configPath  string
		showVersion bool
		once        bool
	)

	fs := flag.CommandLine
	fs.StringVarP(&configPath, "config", "c", "", "config file (default is $HOME/.config/snapvault/config.yml)")
	fs.BoolVar(&showVersion, "version", false, "print version information")
	fs.BoolVar(&once, "once", false, "run one backup now and exit; non-zero exit status on failure")
	registerFlags(fs)
	flag.Parse()

	if showVersion {
		fmt.Printf("snapvault - directory snapshot backups\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if once {
		err = runOnce(cfg)
	} else {
		err = runServer(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
