package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cuffmon/cuffmon/internal/ble"
	"github.com/cuffmon/cuffmon/internal/config"
	"github.com/cuffmon/cuffmon/internal/protocol"
	"github.com/cuffmon/cuffmon/internal/session"
	"github.com/cuffmon/cuffmon/internal/store"
	"github.com/cuffmon/cuffmon/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/cuffmon/config.yaml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	opts := session.DefaultOptions()
	opts.Mode = cfg.Mode()
	opts.DelaySeconds = cfg.Measurement.DelaySeconds
	opts.ConnectTimeout = time.Duration(cfg.Connect.TimeoutSeconds) * time.Second

	manager := ble.NewManager(ble.NewHardwareAdapter())
	client := session.NewClient(manager, opts)
	readings := store.NewStore(cfg.Store.Dir)

	if cfg.Server.Listen != "" {
		broadcaster := ws.NewBroadcaster()
		go broadcaster.Run(client.States())
		mux := http.NewServeMux()
		ws.NewServer(broadcaster).SetupRoutes(mux)
		go func() {
			log.Printf("State server listening on %s", cfg.Server.Listen)
			if err := http.ListenAndServe(cfg.Server.Listen, mux); err != nil {
				log.Printf("state server: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	states := client.States()
	lastStatus := ""

	log.Println("Ready. Commands: connect, measure, cancel, mode <single|average3>, delay <15|30|45|60>, status, quit")

	for {
		select {
		case snap := <-states:
			if snap.Status != lastStatus {
				lastStatus = snap.Status
				log.Printf("Status: %s", snap.Status)
			}

		case r := <-client.Results():
			log.Printf("Reading: %s", formatReading(r))
			res, err := readings.Save(r, time.Now())
			if err != nil {
				log.Printf("Save failed: %v", err)
				continue
			}
			switch res.Code {
			case store.Saved:
				log.Printf("Saved to %s", readings.Path())
			case store.MissingPermissions:
				log.Printf("Not saved: missing permissions for %s", readings.Path())
			case store.InvalidData:
				// The store's range is narrower than the session's filter;
				// a rejection here is routine, not a session failure.
				log.Printf("Not saved: %s", res.Reason)
			}

		case line, ok := <-lines:
			if !ok {
				client.Cleanup()
				return
			}
			if line == "" {
				continue
			}
			if !handleCommand(client, line) {
				client.Cleanup()
				log.Println("Goodbye!")
				return
			}

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			client.Cleanup()
			log.Println("Goodbye!")
			return
		}
	}
}

// handleCommand dispatches one console command. Returns false on quit.
func handleCommand(client *session.Client, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "connect":
		client.StartConnect(0)
	case "measure":
		client.StartMeasurement()
	case "cancel":
		client.CancelMeasurement()
	case "mode":
		if len(args) != 1 {
			log.Println("usage: mode <single|average3>")
			return true
		}
		mode, ok := session.ParseMode(args[0])
		if !ok {
			log.Printf("unknown mode %q", args[0])
			return true
		}
		client.SetMeasurementMode(mode)
	case "delay":
		if len(args) != 1 {
			log.Println("usage: delay <15|30|45|60>")
			return true
		}
		seconds, err := strconv.Atoi(args[0])
		if err != nil || seconds <= 0 {
			log.Printf("invalid delay %q", args[0])
			return true
		}
		client.SetDelayBetweenRuns(seconds)
	case "status":
		snap := client.Current()
		log.Printf("Status: %s (connected=%v measurable=%v measuring=%v mode=%s delay=%ds)",
			snap.Status, snap.IsConnected, snap.CanMeasure, snap.IsMeasuring, snap.Mode, snap.DelaySeconds)
		if snap.LastReading != nil {
			log.Printf("Last reading: %s", formatReading(*snap.LastReading))
		}
	case "quit", "exit":
		return false
	default:
		log.Printf("unknown command %q", cmd)
	}
	return true
}

func formatReading(r protocol.Reading) string {
	s := fmt.Sprintf("%.0f/%.0f mmHg", r.Systolic, r.Diastolic)
	if r.MAP != nil {
		s += fmt.Sprintf(", MAP %.0f", *r.MAP)
	}
	if r.PulseRate != nil {
		s += fmt.Sprintf(", %.0f bpm", *r.PulseRate)
	}
	return s
}

// setupLogging installs a slog handler at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== cuffmon ===")
	fmt.Printf("  Mode:    %s\n", cfg.Measurement.Mode)
	fmt.Printf("  Delay:   %ds between runs\n", cfg.Measurement.DelaySeconds)
	fmt.Printf("  Timeout: %ds\n", cfg.Connect.TimeoutSeconds)
	if cfg.Server.Listen != "" {
		fmt.Printf("  Server:  %s\n", cfg.Server.Listen)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
