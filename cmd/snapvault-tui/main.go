package main

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"

	"github.com/tinytelemetry/snapvault/internal/socketrpc"
	"github.com/tinytelemetry/snapvault/internal/tui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVarP(&configPath, "config", "c", "", "config file (default is $HOME/.config/snapvault/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.String("socket-path", "", "override socket path to connect to the snapvault daemon")
	flag.Duration("update-interval", 0, "status refresh interval")
	flag.Parse()

	if showVersion {
		fmt.Printf("snapvault-tui - backup status client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath, flag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to snapvault at %s: %w\nIs the daemon running? Start it with: snapvault", cfg.SocketPath, err)
	}
	defer client.Close()

	app := tui.NewApp(tui.NewStatusPage(client, cfg.UpdateInterval))

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
