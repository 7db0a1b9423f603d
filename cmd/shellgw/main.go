package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"shellgw/internal/api"
	"shellgw/internal/builtin"
	"shellgw/internal/config"
	"shellgw/internal/dispatch"
	"shellgw/internal/executor"
	"shellgw/internal/interp"
	"shellgw/internal/jobstore"
	"shellgw/internal/log"
	"shellgw/internal/storage"
	"shellgw/internal/tui/watch"
)

var version = "0.1.0-dev"

func main() {
	// Optional .env for ${VAR} references in the config file.
	_ = godotenv.Load()
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "run":
		return runOneShot(args)
	case "job":
		return runJobNoun(args)
	case "watch":
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`shellgw - Asynchronous command gateway

Usage:
  shellgw <command> [flags]

Commands:
  start             Start the gateway service in foreground
  run <line>        Execute one command line synchronously and print output
  job status <id>   Show one job record
  job list          List all job records (insertion order)
  job clear         Delete all job records
  watch             Real-time job monitoring TUI
  version           Show version information
  help              Show this help message

Use 'shellgw <command> --help' for command-specific flags.
`)
}

// loadConfig resolves the configuration: an explicit path must exist, an
// implicit ./config.yaml is used when present, otherwise built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return config.Load("config.yaml")
	}
	return config.Defaults(), nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("shellgw starting", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store := jobstore.New(db)
	if n, err := store.SweepStale(ctx, cfg.Service.StaleAfter); err != nil {
		logger.Error("stale job sweep failed", "error", err)
		return 1
	} else if n > 0 {
		logger.Warn("marked stale running jobs as errored", "count", n)
	}

	registry := interp.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		logger.Error("builtin registration failed", "error", err)
		return 1
	}

	in, err := interp.New(registry, interp.WithAliasFile(cfg.Aliases.Path))
	if err != nil {
		logger.Error("failed to initialize interpreter", "path", cfg.Aliases.Path, "error", err)
		return 1
	}

	hub := api.NewEventHub(256)
	exec := executor.New(in, store, cfg.Service.Workers, hub)
	exec.Start(ctx)
	logger.Info("worker pool started", "workers", cfg.Service.Workers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)

	if cfg.API.Enabled {
		d := dispatch.New(in, exec)
		apiServer := api.New(
			api.Config{Listen: cfg.API.Listen, Workers: cfg.Service.Workers},
			d, store, hub, log.WithComponent("api"),
		)
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("shellgw running (press Ctrl+C to stop)")

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		exitCode = 1
	}

	exec.Wait()
	logger.Info("shellgw stopped")
	return exitCode
}

// runOneShot executes a single line against the local database and prints
// the captured output. The declared mode is ignored: with no daemon to poll,
// everything runs inline.
func runOneShot(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shellgw run [flags] <command line>")
		return 1
	}
	line := strings.Join(fs.Args(), " ")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup("error") // keep one-shot output clean

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	registry := interp.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		fmt.Fprintf(os.Stderr, "Builtin registration failed: %v\n", err)
		return 1
	}

	in, err := interp.New(registry, interp.WithAliasFile(cfg.Aliases.Path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize interpreter: %v\n", err)
		return 1
	}

	exec := executor.New(in, jobstore.New(db), cfg.Service.Workers, nil)
	result, _ := exec.RunSync(ctx, line)
	fmt.Print(result.Output)
	return result.StatusCode
}

func runJobNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shellgw job <status|list|clear> [flags]")
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "status":
		return runJobStatus(actionArgs)
	case "list":
		return runJobList(actionArgs)
	case "clear":
		return runJobClear(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		return 1
	}
}

func openJobStore(configPath string) (*jobstore.Store, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(context.Background(), cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}
	return jobstore.New(db), func() { _ = db.Close() }, nil
}

func runJobStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	include := fs.String("include", "", "Comma-separated fields to return")
	lastLength := fs.Int("last-length", 0, "Return only output past this byte offset")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: shellgw job status <id> [--include fields] [--last-length N]")
		return 1
	}

	store, closeDB, err := openJobStore(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeDB()

	var fields []string
	for _, f := range strings.Split(*include, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	view, err := store.GetStatus(context.Background(), fs.Arg(0), fields, *lastLength)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		fmt.Fprintf(os.Stderr, "Job not found: %s\n", fs.Arg(0))
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	data, _ := json.MarshalIndent(view, "", "  ")
	fmt.Println(string(data))
	return 0
}

func runJobList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	store, closeDB, err := openJobStore(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeDB()

	views, err := store.GetAllStatuses(context.Background(),
		[]string{jobstore.FieldCommand, jobstore.FieldStatus, jobstore.FieldMsg, jobstore.FieldStartTime, jobstore.FieldEndTime})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	w := os.Stdout
	fmt.Fprintf(w, "%-36s  %-9s  %-10s  %s\n", "ID", "STATUS", "DURATION", "COMMAND")
	for _, v := range views {
		status := string(jobstore.StatusPending)
		if v.Status != nil {
			status = string(*v.Status)
		}
		duration := "-"
		if v.StartTime != nil {
			end := time.Now()
			if v.EndTime != nil {
				end = time.UnixMilli(*v.EndTime)
			}
			duration = end.Sub(time.UnixMilli(*v.StartTime)).Round(time.Millisecond).String()
		}
		command := ""
		if v.Command != nil {
			command = *v.Command
		}
		fmt.Fprintf(w, "%-36s  %-9s  %-10s  %s\n", v.ID, status, duration, command)
	}
	return 0
}

func runJobClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	store, closeDB, err := openJobStore(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeDB()

	if err := store.ClearAllJobs(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("All job records deleted.")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8420", "Gateway API URL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(*apiURL)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := versionInfo{Version: version, Commit: readBuildSetting("vcs.revision")}
	if info.Commit == "" {
		info.Commit = "unknown"
	} else if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("shellgw %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	return 0
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}
