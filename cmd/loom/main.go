// Command loom runs the multi-source query orchestration service.
//
// Usage:
//
//	loom serve --config config.yaml
//	loom validate --config config.yaml
//	loom version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/logger"
	"github.com/loom-ai/loom/pkg/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" default:"1" help:"Start the chat server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Override the configured log level (debug, info, warn, error)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("loom %s\n", version)
	return nil
}

// ValidateCmd validates a configuration file and exits.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("validate requires --config")
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid: %d llms, %d tools\n", cli.Config, len(cfg.LLMs), len(cfg.Tools))
	return nil
}

// ServeCmd starts the chat server.
type ServeCmd struct {
	Host string `help:"Override the configured listen host."`
	Port int    `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	initLogging(cli, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func loadConfig(cli *CLI) (*config.Config, error) {
	if cli.Config == "" {
		if err := config.LoadEnvFiles(); err != nil {
			return nil, err
		}
		return config.Default(), nil
	}
	return config.Load(cli.Config)
}

func initLogging(cli *CLI, cfg *config.Config) {
	levelStr := cfg.Logging.Level
	if cli.LogLevel != "" {
		levelStr = cli.LogLevel
	}
	level, _ := logger.ParseLevel(levelStr)

	output := os.Stdout
	switch cfg.Logging.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		file, _, err := logger.OpenLogFile(cfg.Logging.Output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v, using stdout\n",
				cfg.Logging.Output, err)
		} else {
			output = file
		}
	}

	logger.Init(level, output, cfg.Logging.Format)
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("loom"),
		kong.Description("Multi-source query orchestration service."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
