package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KevoDB/tablestore/pkg/common/log"
	"github.com/KevoDB/tablestore/pkg/config"
	"github.com/KevoDB/tablestore/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem("BUILD"),
	readline.PcItem("LIST"),
	readline.PcItem("FOOTER"),
	readline.PcItem("GET"),
	readline.PcItem("SCAN",
		readline.PcItem("RANGE"),
		readline.PcItem("REVERSE"),
	),
	readline.PcItem("EVICT"),
)

const helpText = `
tabletool - interactive inspector for sorted table directories

Usage:
  tabletool [options] [directory]

Commands:
  .help                        - Show this help message
  .open DIR                    - Open the table directory DIR
  .close                       - Close the current directory
  .exit                        - Exit the program
  .stats                       - Show table cache statistics

  BUILD num count [prefix]     - Write table num with count generated keys
  LIST                         - List table files in the directory
  FOOTER num                   - Show the footer and layout of table num
  GET num key                  - Look up key in table num
  EVICT num                    - Drop table num from the table cache

  SCAN num                     - Scan all entries of table num
  SCAN num prefix              - Scan entries with the given prefix
  SCAN num RANGE start end     - Scan entries in range [start, end)
  SCAN num REVERSE [prefix]    - Scan backwards, optionally by prefix
`

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "tabletool - build and inspect sorted tables\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: tabletool [options] [directory]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nType .help at the prompt for commands.\n")
	}

	configPath := flag.String("config", "", "Path to a JSON or YAML configuration file")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. localhost:9090)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}
	log.SetDefaultLogger(cfg.Logger())

	reg := prometheus.NewRegistry()
	if *metricsAddr != "" {
		cfg.Update(func(c *config.Config) {
			c.Telemetry.Enabled = true
			if !c.Telemetry.HasExporter(telemetry.ExporterPrometheus) {
				c.Telemetry.Exporters = append(c.Telemetry.Exporters, telemetry.ExporterPrometheus)
			}
		})
	}
	tel, err := telemetry.New(cfg.Telemetry, telemetry.WithRegistry(reg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(ctx)
	}()

	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, reg)
		defer srv.Close()
	}

	sess, err := newSession(os.Stdout, cfg, tel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer sess.shutdown()

	fmt.Println("tabletool version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	if flag.NArg() > 0 {
		if err := sess.open(flag.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening directory: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Directory opened at %s\n", flag.Arg(0))
	}

	// Setup readline with history support
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sess.prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), ".tabletool_history"),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(sess.prompt())

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
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

		if sess.exec(line) {
			return
		}
	}
}

// loadConfig reads path if given, otherwise returns defaults rooted at the
// working directory.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.NewDefaultConfig(".")
		cfg.Telemetry.Enabled = false
		cfg.Telemetry.LoadFromEnv()
		return cfg, nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.Telemetry.LoadFromEnv()
	return cfg, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Metrics server error: %s\n", err)
		}
	}()
	fmt.Printf("Serving metrics on http://%s/metrics\n", addr)
	return srv
}
