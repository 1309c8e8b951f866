package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cjeanneret/babycam/internal/config"
	"github.com/cjeanneret/babycam/internal/debug"
)

const usage = `usage: babycam [command] [flags]

commands:
  track    follow the detected face with the pan/tilt head (default)
  log      append an event to the monitor log
  analyze  ask the language model about the monitor log
  wake     predict the next sleep window from recent wake windows

run "babycam <command> -h" for the flags of a command`

var defaultConfigPath = filepath.Join("configs", "default.yaml")

func main() {
	cmd, args := splitCommand(os.Args[1:])

	var err error
	switch cmd {
	case "track":
		err = runTrack(args)
	case "log":
		err = runLog(args, os.Stdout)
	case "analyze":
		err = runAnalyze(args, os.Stdout)
	case "wake":
		err = runWake(args, os.Stdout)
	case "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// splitCommand returns the subcommand and its arguments. Without a command
// name (no arguments, or a leading flag) it is "track".
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "track", nil
	}
	switch a := args[0]; {
	case a == "-h" || a == "--help":
		return "help", nil
	case len(a) > 0 && a[0] == '-':
		return "track", args
	default:
		return a, args[1:]
	}
}

// loadConfig validates the path, loads the file, applies BABYCAM_*
// environment overrides and initializes the debug logger.
func loadConfig(path string) (*config.Config, error) {
	if err := config.ValidateConfigPath(path); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", path)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	return cfg, nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
