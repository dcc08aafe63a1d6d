package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/config"
	"github.com/tabuladb/tabula/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".remote"),
	readline.PcItem(".bolt"),
	readline.PcItem(".store"),
	readline.PcItem(".columns"),
	readline.PcItem(".head"),
	readline.PcItem(".tail"),
	readline.PcItem(".where"),
	readline.PcItem(".sort",
		readline.PcItem("DESC"),
	),
	readline.PcItem(".distinct"),
	readline.PcItem(".window"),
	readline.PcItem(".count"),
	readline.PcItem(".reset"),
	readline.PcItem(".stats"),
	readline.PcItem(".exit"),
)

// Flags holds the command line options
type Flags struct {
	ConfigPath string
	ServerMode bool
	ListenAddr string
	DataDir    string
	File       string
}

func main() {
	flags := parseFlags()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	level, _ := log.ParseLevel(cfg.Log.Level)
	logger := log.NewStandardLogger(log.WithLevel(level), log.WithOutput(os.Stderr))
	log.SetDefaultLogger(logger)

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("Failed to flush telemetry: %v", err)
		}
	}()

	if flags.ServerMode {
		if err := runServer(cfg, logger, tel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runInteractive(newShell(cfg, os.Stdout, logger, tel), flags.File)
}

// parseFlags parses command line flags
func parseFlags() Flags {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "tabula - lazy, composable queries over tabular rows\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: tabula [options] [file]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "By default, tabula runs an interactive shell.\n")
		fmt.Fprintf(flag.CommandLine.Output(), "If -server is provided, tabula serves the files under -data over gRPC.\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nFor shell commands, start tabula and type .help\n")
	}

	configPath := flag.String("config", "", "Path to a JSON config file")
	serverMode := flag.Bool("server", false, "Run in server mode, exposing datasets over gRPC")
	listenAddr := flag.String("address", "", "Address to listen on in server mode (overrides config)")
	dataDir := flag.String("data", "", "Dataset directory for server mode (overrides config)")
	flag.Parse()

	flags := Flags{
		ConfigPath: *configPath,
		ServerMode: *serverMode,
		ListenAddr: *listenAddr,
		DataDir:    *dataDir,
	}
	if flag.NArg() > 0 {
		flags.File = flag.Arg(0)
	}
	return flags
}

// loadConfig layers defaults, the config file, the environment and flags
func loadConfig(flags Flags) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if flags.ConfigPath != "" {
		loaded, err := config.LoadConfig(flags.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.LoadFromEnv()
	if flags.ListenAddr != "" {
		cfg.Server.Address = flags.ListenAddr
	}
	if flags.DataDir != "" {
		cfg.Server.DataDir = flags.DataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runServer serves until SIGINT or SIGTERM
func runServer(cfg *config.Config, logger log.Logger, tel telemetry.Telemetry) error {
	server := NewServer(cfg, logger, tel)
	if err := server.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal %v, shutting down", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down server: %v", err)
		}
	}()

	return server.Serve()
}

// runInteractive starts the interactive shell
func runInteractive(sh *shell, file string) {
	fmt.Println("tabula shell")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".tabula_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tabula> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	ctx := context.Background()
	if file != "" {
		if _, err := sh.execute(ctx, ".open "+file); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	for {
		if sh.source != "" {
			rl.SetPrompt(fmt.Sprintf("tabula:%s> ", filepath.Base(sh.source)))
		} else {
			rl.SetPrompt("tabula> ")
		}

		line, readErr := rl.Readline()
		if readErr != nil {
			if errors.Is(readErr, readline.ErrInterrupt) {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		exit, err := sh.execute(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if exit {
			fmt.Println("Goodbye!")
			return
		}
	}
}
