package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"portshare/internal/addrutil"
	"portshare/internal/api"
	"portshare/internal/bus"
	"portshare/internal/config"
	"portshare/internal/execx"
	"portshare/internal/logging"
	"portshare/internal/menu"
	"portshare/internal/metrics"
	"portshare/internal/monitor"
	"portshare/internal/observer"
	"portshare/internal/progress"
	"portshare/internal/relay"
	"portshare/internal/resources"
	"portshare/internal/server"
	"portshare/internal/store"
	"portshare/internal/stunutil"
	"portshare/internal/tunnel"
)

const usage = `portshare - share a local site through tunnel relays and watch submissions live

Usage:
  portshare serve    [--config <path>] [--port n] [--tunnels a,b] [--deadline 6s] [--no-qr] [--json-logs]
  portshare discover [--config <path>] [--port n] [--tunnels a,b] [--deadline 6s]
  portshare doctor   [--config <path>]
  portshare status   [--config <path>] [--check]
  portshare stats    [--server <url>] [--csv <file> --window 1h]
  portshare reset    [--server <url>]
  portshare export csv [--server <url>] --out <file>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "serve":
		handleServe(os.Args[2:])
	case "discover":
		handleDiscover(os.Args[2:])
	case "doctor":
		handleDoctor(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "reset":
		handleReset(os.Args[2:])
	case "export":
		handleExport(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// tunnelFlags are shared by serve and discover.
type tunnelFlags struct {
	configPath *string
	port       *int
	tunnels    *[]string
	deadline   *time.Duration
	jsonLogs   *bool
	logLevel   *string
}

func addTunnelFlags(fs *pflag.FlagSet) tunnelFlags {
	return tunnelFlags{
		configPath: fs.String("config", "", "path to YAML config (default ~/.portshare/config.yaml)"),
		port:       fs.Int("port", 0, "local serving port"),
		tunnels:    fs.StringSlice("tunnels", nil, "relay kinds to launch (localtunnel, cloudflared, localhostrun)"),
		deadline:   fs.Duration("deadline", 0, "tunnel discovery deadline"),
		jsonLogs:   fs.Bool("json-logs", false, "log in JSON"),
		logLevel:   fs.String("log-level", "", "log level (debug, info, warn, error)"),
	}
}

func (f tunnelFlags) load() (config.Config, *logrus.Logger) {
	cfg, err := config.LoadOrDefault(*f.configPath)
	if err != nil {
		fatal(err)
	}
	if *f.port > 0 {
		cfg.Server.Port = *f.port
	}
	if len(*f.tunnels) > 0 {
		cfg.Tunnels.Enabled = *f.tunnels
	}
	if *f.deadline > 0 {
		cfg.Tunnels.DeadlineMs = int(f.deadline.Milliseconds())
	}
	if *f.jsonLogs {
		cfg.Log.JSON = true
	}
	if *f.logLevel != "" {
		cfg.Log.Level = *f.logLevel
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.JSON)
}

func launchOptions(cfg config.Config) tunnel.Options {
	return tunnel.Options{
		Port:     cfg.Server.Port,
		Scheme:   cfg.Scheme(),
		Kinds:    cfg.Tunnels.Enabled,
		Deadline: time.Duration(cfg.Tunnels.DeadlineMs) * time.Millisecond,
		Commands: cfg.Tunnels.Commands,
		Patterns: cfg.Tunnels.Patterns,
	}
}

// newLauncher announces each discovered address, with its QR code when qr is set.
func newLauncher(logger logrus.FieldLogger, qr bool) *tunnel.Launcher {
	return tunnel.NewLauncher(execx.NewOSRunner(), logger).
		WithProgress(progress.New(os.Stdout, "Establishing secure tunnels...")).
		OnDiscover(func(a tunnel.Address) {
			fmt.Fprintf(os.Stdout, " ✔ %s connected: %s\n", relay.Label(a.Kind), a.URL)
			if qr {
				menu.RenderQR(os.Stdout, a.URL)
			}
		})
}

func handleServe(args []string) {
	fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
	flags := addTunnelFlags(fs)
	noQR := fs.Bool("no-qr", false, "do not render the final link as a QR code")
	resourcesDir := fs.String("resources", "", "directory of servable sites")
	_ = fs.Parse(args)

	cfg, logger := flags.load()
	if *noQR {
		off := false
		cfg.Notifications.QRInTerminal = &off
	}
	if *resourcesDir != "" {
		cfg.Server.ResourcesDir = *resourcesDir
	}

	ctx, cancel := signalContext()
	defer cancel()

	b := bus.New(observer.NewRegistry(cfg.Observers.QueueSize, logger), logger)
	srv := server.New(server.Options{
		Port:         cfg.Server.Port,
		TLSCert:      cfg.Server.TLSCert,
		TLSKey:       cfg.Server.TLSKey,
		ResourcesDir: cfg.Server.ResourcesDir,
	}, b, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	session := newLauncher(logger, cfg.ShowQR()).Start(gctx, launchOptions(cfg))
	defer session.Close()
	// fatal skips deferred calls, and relays must not outlive the process.
	die := func(err error) {
		session.Close()
		fatal(err)
	}

	names, err := resources.List(cfg.Server.ResourcesDir)
	if err != nil {
		die(err)
	}

	state, err := runMenu(gctx, menu.New(names, session.Addresses()).WithQR(cfg.ShowQR()))
	switch {
	case errors.Is(err, menu.ErrNoResources):
		logger.WithField("dir", cfg.Server.ResourcesDir).Warn("no resources to share; inspector only")
	case errors.Is(err, menu.ErrInputClosed), errors.Is(err, context.Canceled):
		logger.Info("selection abandoned; inspector only")
	case err != nil:
		die(err)
	default:
		saveSession(cfg, logger, state, session.Addresses())
		mon := monitor.New(state.Link, time.Duration(cfg.Health.IntervalSec)*time.Second, logger)
		g.Go(func() error { return mon.Run(gctx) })
	}

	fmt.Fprintf(os.Stdout, "\n Live view: ws://localhost:%d/ws  (Ctrl+C to stop)\n", cfg.Server.Port)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		die(err)
	}
}

// runMenu reads stdin on its own goroutine so a signal is not stuck behind it.
func runMenu(ctx context.Context, m *menu.Menu) (menu.State, error) {
	type result struct {
		state menu.State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := m.RunState(os.Stdin, os.Stdout)
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		return r.state, r.err
	case <-ctx.Done():
		return menu.State{}, ctx.Err()
	}
}

func saveSession(cfg config.Config, logger logrus.FieldLogger, state menu.State, addrs []tunnel.Address) {
	dir, err := cfg.ResolvedDataDir()
	if err != nil {
		logger.WithError(err).Warn("data dir unresolved; session not saved")
		return
	}
	err = store.SaveSession(store.SessionPath(dir), &store.Session{
		Port:      cfg.Server.Port,
		Resource:  state.Resource,
		Link:      state.Link,
		Addresses: addrs,
	})
	if err != nil {
		logger.WithError(err).Warn("session not saved")
	}
}

func handleDiscover(args []string) {
	fs := pflag.NewFlagSet("discover", pflag.ExitOnError)
	flags := addTunnelFlags(fs)
	_ = fs.Parse(args)

	cfg, logger := flags.load()
	ctx, cancel := signalContext()
	defer cancel()

	session := newLauncher(logger, false).Start(ctx, launchOptions(cfg))
	defer session.Close()

	menu.Divider(os.Stdout, "ADDRESSES")
	for i, a := range session.Addresses() {
		fmt.Fprintf(os.Stdout, " %d  %-14s %s\n", i+1, relay.Label(a.Kind), a.URL)
	}
}

func handleDoctor(args []string) {
	fs := pflag.NewFlagSet("doctor", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fatal(err)
	}
	config.ApplyDefaults(&cfg)
	logger := logging.New(cfg.Log.Level, cfg.Log.JSON)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stdout, "config invalid: %v\n", err)
	} else {
		fmt.Fprintf(os.Stdout, "config ok port=%d scheme=%s\n", cfg.Server.Port, cfg.Scheme())
	}

	kinds := make([]string, 0, len(relay.Supported()))
	for _, spec := range relay.Supported() {
		kinds = append(kinds, string(spec.Kind))
	}
	fmt.Fprintf(os.Stdout, "supported relays: %s\n", strings.Join(kinds, ", "))

	runner := execx.NewOSRunner()
	for _, name := range cfg.Tunnels.Enabled {
		spec, ok := relay.Lookup(name)
		if !ok {
			fmt.Fprintf(os.Stdout, "relay %s: unsupported\n", name)
			continue
		}
		argv, err := spec.WithCommand(cfg.Tunnels.Commands[string(spec.Kind)]).Argv(cfg.Server.Port)
		if err != nil {
			fmt.Fprintf(os.Stdout, "relay %s: %v\n", name, err)
			continue
		}
		versionFlag := "--version"
		if filepath.Base(argv[0]) == "ssh" {
			versionFlag = "-V"
		}
		if out, err := runner.Output(argv[0], versionFlag); err != nil {
			fmt.Fprintf(os.Stdout, "relay %s: %s unavailable: %v\n", spec.Kind, argv[0], err)
		} else {
			fmt.Fprintf(os.Stdout, "relay %s: %s %s\n", spec.Kind, argv[0], firstLine(out))
		}
	}

	names, err := resources.List(cfg.Server.ResourcesDir)
	if err != nil {
		fmt.Fprintf(os.Stdout, "resources %s: %v\n", cfg.Server.ResourcesDir, err)
	} else {
		fmt.Fprintf(os.Stdout, "resources %s: %d (%s)\n", cfg.Server.ResourcesDir, len(names), strings.Join(names, ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	report, err := stunutil.Query(ctx, cfg.STUNServers, 3*time.Second, logger)
	if err != nil {
		fmt.Fprintf(os.Stdout, "stun error: %v\n", err)
	} else {
		fmt.Fprintf(os.Stdout, "stun public_addr=%s nat=%s\n", report.PublicAddr, report.NATType)
	}
	fmt.Fprintf(os.Stdout, "hint: %s\n", report.Hint())
}

func handleStatus(args []string) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	check := fs.Bool("check", false, "check the saved link once")
	_ = fs.Parse(args)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fatal(err)
	}
	dir, err := cfg.ResolvedDataDir()
	if err != nil {
		fatal(err)
	}
	s, err := store.LoadSession(store.SessionPath(dir))
	if err != nil {
		fatal(err)
	}
	if s.Link == "" {
		fmt.Fprintln(os.Stdout, "no saved session")
		return
	}

	fmt.Fprintf(os.Stdout, "link=%s resource=%s updated=%s\n", s.Link, s.Resource, s.UpdatedAt.Format(time.RFC3339))
	for _, a := range s.Addresses {
		fmt.Fprintf(os.Stdout, "  %-14s %s\n", relay.Label(a.Kind), a.URL)
	}

	if *check {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := monitor.New(s.Link, 0, nil).Check(ctx); err != nil {
			fmt.Fprintf(os.Stdout, "reachable=false error=%v\n", err)
			return
		}
		fmt.Fprintln(os.Stdout, "reachable=true")
	}
}

func handleStats(args []string) {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	serverURL := fs.String("server", "", "server base URL (default http://localhost:<port>)")
	csvPath := fs.String("csv", "", "summarize an exported CSV instead of a live server")
	window := fs.Duration("window", 0, "only count events newer than this (0 = all)")
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	ctx := context.Background()
	var history api.HistoryResponse
	if *csvPath != "" {
		items, err := metrics.ReadCSV(*csvPath)
		if err != nil {
			fatal(err)
		}
		history = items
	} else {
		client := api.NewClient(baseURL(*serverURL, *configPath))
		stats, err := client.Stats(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "total=%d observers=%d\n", stats.Total, stats.Observers)
		history, err = client.History(ctx)
		if err != nil {
			fatal(err)
		}
	}

	var since time.Time
	if *window > 0 {
		since = time.Now().UTC().Add(-*window)
	}
	summary := metrics.Summarize(history, since)
	if summary.Count == 0 {
		fmt.Fprintln(os.Stdout, "no events in window")
		return
	}

	fmt.Fprintf(os.Stdout, "events=%d sources=%d from=%s to=%s\n", summary.Count, summary.Sources,
		summary.From.Format(time.RFC3339), summary.To.Format(time.RFC3339))
	printBuckets("resource", summary.Resources)
	printBuckets("device", summary.Devices)
	printBuckets("os", summary.OS)
	printBuckets("browser", summary.Browsers)
}

func printBuckets(label string, counts map[string]int) {
	parts := make([]string, 0, len(counts))
	for _, b := range metrics.Sorted(counts) {
		parts = append(parts, fmt.Sprintf("%s=%d", b.Label, b.Count))
	}
	fmt.Fprintf(os.Stdout, "%s: %s\n", label, strings.Join(parts, " "))
}

func handleReset(args []string) {
	fs := pflag.NewFlagSet("reset", pflag.ExitOnError)
	serverURL := fs.String("server", "", "server base URL (default http://localhost:<port>)")
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	stats, err := api.NewClient(baseURL(*serverURL, *configPath)).Reset(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "reset total=%d observers=%d\n", stats.Total, stats.Observers)
}

func handleExport(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "export subcommand required\n")
		os.Exit(2)
	}
	if args[0] != "csv" {
		fmt.Fprintf(os.Stderr, "unknown export format %q\n", args[0])
		os.Exit(2)
	}

	fs := pflag.NewFlagSet("export csv", pflag.ExitOnError)
	serverURL := fs.String("server", "", "server base URL (default http://localhost:<port>)")
	configPath := fs.String("config", "", "path to YAML config")
	out := fs.String("out", "", "output file")
	_ = fs.Parse(args[1:])

	if *out == "" {
		fatal(errors.New("--out is required"))
	}

	history, err := api.NewClient(baseURL(*serverURL, *configPath)).History(context.Background())
	if err != nil {
		fatal(err)
	}
	if err := metrics.SaveCSV(*out, history); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "exported %d events to %s\n", len(history), *out)
}

// baseURL prefers an explicit --server, else the local server of the config.
func baseURL(server, configPath string) string {
	if server != "" {
		return addrutil.NormalizeBaseURL(server)
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fatal(err)
	}
	return addrutil.LocalAddress(cfg.Scheme(), cfg.Server.Port)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
