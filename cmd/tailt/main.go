// tailt follows and browses AI coding agent session transcripts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-tailt/internal/config"
	"github.com/wethinkt/go-tailt/internal/data"
	"github.com/wethinkt/go-tailt/internal/i18n"
	"github.com/wethinkt/go-tailt/internal/live"
	"github.com/wethinkt/go-tailt/internal/reconcile"
	"github.com/wethinkt/go-tailt/internal/server"
	"github.com/wethinkt/go-tailt/internal/store"
	"github.com/wethinkt/go-tailt/internal/tui"
	"github.com/wethinkt/go-tailt/internal/tui/theme"
	"github.com/wethinkt/go-tailt/internal/tuilog"
	"github.com/wethinkt/go-tailt/internal/version"
)

// Global flags
var (
	profilePath string
	profileFile *os.File // held open for profiling
	logPath     string
)

// Browse command flags
var (
	browseServer  string
	browseToken   string
	browseNoCache bool
)

// Serve command flags
var (
	servePort    int
	serveHost    string
	serveDB      string
	serveToken   string
	serveQuiet   bool
	serveNoWatch bool
)

// Serve mcp subcommand flags
var (
	mcpStdio      bool
	mcpPort       int
	mcpHost       string
	mcpAllowTools []string
	mcpDenyTools  []string
)

// Theme and version command flags
var outputJSON bool

var rootCmd = &cobra.Command{
	Use:   "tailt",
	Short: "Follow and browse agent transcripts",
	Long: `tailt follows AI coding agent transcripts as they are written.

A local server ingests session files into DuckDB and streams changes;
the browser connects to it and tails the open session live.

Running without a subcommand launches the browser.

Commands:
  browse    Connect to a server and browse transcripts (default)
  serve     Run the ingest server (REST + WebSocket + MCP)
  view      Render a single session file offline
  theme     Show and switch the active theme

Examples:
  tailt                           # Browse against the configured server
  tailt serve                     # Serve on default port 8719
  tailt serve -p 9000 --token s3  # Custom port, bearer auth
  tailt view session.jsonl        # Offline viewer
  tailt theme set light           # Switch theme`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Start CPU profiling if requested
		if profilePath != "" {
			f, err := os.Create(profilePath)
			if err != nil {
				return fmt.Errorf("create profile file: %w", err)
			}
			profileFile = f

			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				profileFile = nil
				return fmt.Errorf("start CPU profile: %w", err)
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Stop CPU profiling
		if profileFile != nil {
			pprof.StopCPUProfile()
			profileFile.Close()
			profileFile = nil
		}
		return nil
	},
	RunE: runBrowse,
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse transcripts from a running tailt server",
	Long: `Connect to a running tailt server and browse its transcripts in a
three-column terminal interface: projects, sessions, and the live
transcript. The open session tails in place as new entries arrive.

Fetched state is snapshotted to disk, so sessions seen before stay
readable while the server is down.

Examples:
  tailt browse                               # Use the configured server
  tailt browse --server http://nas:8719      # Explicit server
  tailt browse --token secret                # Bearer auth`,
	RunE: runBrowse,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tailt server",
	Long: `Run the tailt server: ingest agent session files into DuckDB and
expose them over a REST API and a WebSocket stream.

The server provides:
  - REST API for projects, sessions and entries
  - WebSocket push of new entries for watched sessions
  - Prometheus metrics on /metrics
  - Swagger UI on /swagger/index.html

All data stays on your machine.

Use 'tailt serve mcp' for the MCP (Model Context Protocol) server.

Examples:
  tailt serve                     # Serve on default port 8719
  tailt serve -p 9000             # Custom port
  tailt serve --no-watch          # Ingest once, do not watch for changes
  tailt serve --token secret      # Require a bearer token`,
	RunE: runServe,
}

var serveMcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server for agent tool access",
	Long: `Run an MCP (Model Context Protocol) server over the transcript store.

By default, runs on stdio for use with MCP clients. Use --port to run
over HTTP instead. The roots are scanned once at startup so tools see
the sessions currently on disk; run 'tailt serve' instead when a live
server already owns the same database.

Examples:
  tailt serve mcp                 # MCP server on stdio (default)
  tailt serve mcp --port 8081     # MCP server over HTTP
  tailt serve mcp --deny-tools search_sessions`,
	RunE: runServeMCP,
}

var viewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "View a session transcript",
	Long: `Render a session transcript file in a full-terminal viewer, without
a server.

Navigation:
  ↑/↓/j/k     Scroll up/down
  PgUp/PgDn   Page up/down
  g/G         Go to top/bottom
  q/Esc       Quit

Examples:
  tailt view ~/.claude/projects/myproj/abc123.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Show and switch the active theme",
	Long: `Display the current TUI theme.

Themes control colors for transcript blocks, labels and borders.
Built-in themes: dark, light. User themes can be added to
~/.tailt/themes/.

Examples:
  tailt theme             # Show current theme
  tailt theme --json      # Output theme as JSON
  tailt theme list        # List all available themes
  tailt theme set light   # Switch theme`,
	RunE: runTheme,
}

var themeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available themes",
	Long:  `List all built-in and user themes. The active theme is marked with *.`,
	RunE:  runThemeList,
}

var themeSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Set the active theme",
	Args:  cobra.ExactArgs(1),
	RunE:  runThemeSet,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE:  runVersion,
}

func main() {
	// Localized help needs the bundle before cobra renders anything, so
	// the locale resolves here rather than in the run functions.
	if cfg, err := config.Load(); err == nil {
		i18n.Init(i18n.ResolveLocale(cfg.Language))
	}
	rootCmd.Short = i18n.T("cmd.root.short", rootCmd.Short)
	browseCmd.Short = i18n.T("cmd.browse.short", browseCmd.Short)
	serveCmd.Short = i18n.T("cmd.serve.short", serveCmd.Short)
	serveMcpCmd.Short = i18n.T("cmd.mcp.short", serveMcpCmd.Short)
	viewCmd.Short = i18n.T("cmd.view.short", viewCmd.Short)
	themeCmd.Short = i18n.T("cmd.theme.short", themeCmd.Short)
	versionCmd.Short = i18n.T("cmd.version.short", versionCmd.Short)

	// Global flags on root
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "write CPU profile to file")

	// Browse flags, also on root since it runs the browser directly
	browseCmd.Flags().StringVar(&browseServer, "server", "", "server URL (default from config)")
	browseCmd.Flags().StringVar(&browseToken, "token", "", "bearer token for the server")
	browseCmd.Flags().BoolVar(&browseNoCache, "no-cache", false, "skip the offline snapshot cache")
	browseCmd.Flags().StringVar(&logPath, "log", "", "write debug log to file")
	rootCmd.Flags().StringVar(&browseServer, "server", "", "server URL (default from config)")
	rootCmd.Flags().StringVar(&browseToken, "token", "", "bearer token for the server")
	rootCmd.Flags().BoolVar(&browseNoCache, "no-cache", false, "skip the offline snapshot cache")
	rootCmd.Flags().StringVar(&logPath, "log", "", "write debug log to file")

	// Serve command flags
	serveCmd.Flags().IntVarP(&servePort, "port", "p", server.DefaultPort, "server port")
	serveCmd.Flags().StringVar(&serveHost, "host", server.DefaultHost, "server host")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "require this bearer token on the API")
	serveCmd.Flags().BoolVar(&serveQuiet, "quiet", false, "suppress request logging and startup output")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "scan roots once instead of watching for changes")
	serveCmd.PersistentFlags().StringVar(&serveDB, "db", "", "database path (default <config dir>/tailt.duckdb)")
	serveCmd.PersistentFlags().StringVar(&logPath, "log", "", "write debug log to file")

	// Serve mcp subcommand
	serveCmd.AddCommand(serveMcpCmd)
	serveMcpCmd.Flags().BoolVar(&mcpStdio, "stdio", false, "use stdio transport (default if no --port)")
	serveMcpCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "run MCP over HTTP on this port")
	serveMcpCmd.Flags().StringVar(&mcpHost, "host", server.DefaultHost, "host to bind MCP HTTP server")
	serveMcpCmd.Flags().StringSliceVar(&mcpAllowTools, "allow-tools", nil, "only register these MCP tools")
	serveMcpCmd.Flags().StringSliceVar(&mcpDenyTools, "deny-tools", nil, "never register these MCP tools")

	// View command flags
	viewCmd.Flags().StringVar(&logPath, "log", "", "write debug log to file")

	// Theme and version command flags
	themeCmd.Flags().BoolVar(&outputJSON, "json", false, "output theme as JSON")
	versionCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")

	// Build command tree
	themeCmd.AddCommand(themeListCmd)
	themeCmd.AddCommand(themeSetCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(themeCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger if requested
	if logPath != "" {
		if err := tuilog.Init(logPath); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer tuilog.Log.Close()
	}

	baseURL := browseServer
	if baseURL == "" {
		baseURL = "http://" + cfg.Server.Addr()
	}

	tuilog.Log.Info("Starting browser", "server", baseURL)

	st := data.NewStore()
	var cache *data.Cache
	if !browseNoCache {
		if dir, err := config.Dir(); err == nil {
			cache = data.NewCache(filepath.Join(dir, "cache"))
			cache.Restore(st)
		}
	}
	client := data.NewClient(baseURL, browseToken, st, cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = tui.Run(ctx, client,
		reconcile.Config{MaxAttempts: cfg.Sync.MaxAttempts},
		cfg.List,
		live.Config{},
	)
	tuilog.Log.Info("Browser exited", "error", err)
	return err
}

// openStore opens the serve database, defaulting to the config dir.
func openStore() (*store.Store, error) {
	dbPath := serveDB
	if dbPath == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		dbPath = filepath.Join(dir, "tailt.duckdb")
	}

	st, err := store.New(dbPath, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	tuilog.Log.Info("Store opened", "path", dbPath)
	return st, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger if requested
	if logPath != "" {
		if err := tuilog.Init(logPath); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer tuilog.Log.Close()
	}

	// Flags win; otherwise fall back to the config file.
	host := serveHost
	if !cmd.Flags().Changed("host") && cfg.Server.Host != "" {
		host = cfg.Server.Host
	}
	port := servePort
	if !cmd.Flags().Changed("port") && cfg.Server.Port != 0 {
		port = cfg.Server.Port
	}

	tuilog.Log.Info("Starting server", "host", host, "port", port)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		tuilog.Log.Info("Received interrupt signal, shutting down")
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	// The server installs the store notifier, so it exists before the
	// first scan commits anything.
	srv := server.New(st, server.Options{
		Host:  host,
		Port:  port,
		Token: serveToken,
		Quiet: serveQuiet,
	})

	ing := store.NewIngester(st)
	if err := ing.LoadState(ctx); err != nil {
		return fmt.Errorf("load ingest state: %w", err)
	}

	roots := cfg.Ingest.Roots
	if len(roots) == 0 {
		roots = store.DefaultRoots()
	}

	if len(roots) == 0 {
		fmt.Fprintln(os.Stderr, "warning: no transcript roots found, serving already ingested data only")
	} else {
		w, err := store.NewWatcher(roots, ing, cfg.Ingest.DebounceDuration())
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		n, scanErr := w.Start(ctx)
		if scanErr != nil {
			tuilog.Log.Warn("Initial scan failed", "error", scanErr)
		}
		if cfg.Ingest.Watch && !serveNoWatch {
			defer w.Stop()
		} else {
			// Scan-only mode: ingest what exists, then stop watching.
			w.Stop()
		}
		if !serveQuiet {
			fmt.Printf("Ingested %d session files from %d roots\n", n, len(roots))
		}
	}

	return srv.ListenAndServe(ctx)
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger if requested
	if logPath != "" {
		if err := tuilog.Init(logPath); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer tuilog.Log.Close()
	}

	// Determine transport mode: stdio (default) or HTTP
	useStdio := mcpStdio || mcpPort == 0

	tuilog.Log.Info("Starting MCP server", "stdio", useStdio, "port", mcpPort)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		tuilog.Log.Info("Received interrupt signal, shutting down")
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	// One scan so tools see the sessions currently on disk.
	ing := store.NewIngester(st)
	if err := ing.LoadState(ctx); err != nil {
		return fmt.Errorf("load ingest state: %w", err)
	}
	roots := cfg.Ingest.Roots
	if len(roots) == 0 {
		roots = store.DefaultRoots()
	}
	if len(roots) > 0 {
		w, err := store.NewWatcher(roots, ing, cfg.Ingest.DebounceDuration())
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if _, err := w.Start(ctx); err != nil {
			tuilog.Log.Warn("Initial scan failed", "error", err)
		}
		w.Stop()
	}

	allowTools := mcpAllowTools
	if envAllow := os.Getenv("TAILT_MCP_ALLOW_TOOLS"); envAllow != "" && len(allowTools) == 0 {
		allowTools = strings.Split(envAllow, ",")
	}
	denyTools := mcpDenyTools
	if envDeny := os.Getenv("TAILT_MCP_DENY_TOOLS"); envDeny != "" && len(denyTools) == 0 {
		denyTools = strings.Split(envDeny, ",")
	}

	mcpServer := server.NewMCPServer(st)
	mcpServer.SetToolFilters(allowTools, denyTools)

	if useStdio {
		fmt.Fprintln(os.Stderr, "Starting MCP server on stdio...")
		err := mcpServer.RunStdio(ctx)
		tuilog.Log.Info("MCP server exited", "error", err)
		// EOF on stdin is the client disconnecting, not an error.
		if err != nil {
			if errors.Is(err, io.EOF) || strings.Contains(err.Error(), "EOF") {
				return nil
			}
			return err
		}
		return nil
	}

	tuilog.Log.Info("Running MCP server on HTTP", "host", mcpHost, "port", mcpPort)
	return mcpServer.RunHTTP(ctx, mcpHost, mcpPort)
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger if requested
	if logPath != "" {
		if err := tuilog.Init(logPath); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer tuilog.Log.Close()
	}

	return tui.RunViewer(args[0], cfg.List)
}

// runTheme displays the current theme.
func runTheme(cmd *cobra.Command, args []string) error {
	t, err := theme.Load()
	if err != nil {
		// Fall back to defaults on error
		t = theme.DefaultTheme()
	}

	if outputJSON {
		out, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	name := t.Name
	if name == "" {
		name = theme.ActiveName()
	}
	fmt.Printf("Theme: %s\n", name)
	if t.Description != "" {
		fmt.Printf("  %s\n", t.Description)
	}
	fmt.Printf("  accent           %s\n", t.GetAccent())
	fmt.Printf("  border active    %s\n", t.GetBorderActive())
	fmt.Printf("  border inactive  %s\n", t.GetBorderInactive())
	return nil
}

// runThemeList lists all available themes.
func runThemeList(cmd *cobra.Command, args []string) error {
	themes, err := theme.ListAvailable()
	if err != nil {
		return err
	}

	active := theme.ActiveName()
	for _, meta := range themes {
		marker := " "
		if meta.Name == active {
			marker = "*"
		}
		origin := "user"
		if meta.Embedded {
			origin = "built-in"
		}
		fmt.Printf("%s %-16s %-9s %s\n", marker, meta.Name, origin, meta.Description)
	}
	return nil
}

// runThemeSet sets the active theme.
func runThemeSet(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := theme.SetActive(name); err != nil {
		return fmt.Errorf("failed to set theme: %w", err)
	}

	fmt.Printf("Theme set to: %s\n", name)
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	if outputJSON {
		out, err := json.MarshalIndent(version.GetInfo("tailt"), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(version.String("tailt"))
	return nil
}
