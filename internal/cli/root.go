// Package cli wires the homeflix commands: serve (default), init, config
// and version.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"homeflix/internal/auth"
	"homeflix/internal/config"
	"homeflix/internal/server"
	"homeflix/internal/util"
)

type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

type rootState struct {
	dataDir string
}

type serveFlags struct {
	port     int
	bind     string
	open     bool
	logLevel string
	https    bool
	cert     string
	key      string
}

func NewRootCmd(v VersionInfo) *cobra.Command {
	state := &rootState{}
	serve := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "homeflix [path]",
		Short: "Stream a folder of videos to browsers on your LAN",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, state, serve, args, v)
		},
	}
	cmd.PersistentFlags().StringVar(&state.dataDir, "data-dir", "", "data directory for config and session db")
	addServeFlags(cmd, serve)

	serveCmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve a directory (overrides the configured root)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, state, serve, args, v)
		},
	}
	addServeFlags(serveCmd, serve)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive first-run setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(state)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print config location and effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := resolveDataDir(state)
			if err != nil {
				return err
			}
			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			fmt.Printf("Data dir: %s\n", dataDir)
			fmt.Printf("Root:     %s\n", cfg.RootDir)
			fmt.Printf("Bind:     %s:%d\n", cfg.Bind, cfg.Port)
			fmt.Printf("User:     %s\n", cfg.Username)
			fmt.Printf("HTTPS:    %v\n", cfg.HTTPS)
			fmt.Printf("Log:      %s\n", cfg.LogLevel)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("homeflix %s\ncommit: %s\nbuilt: %s\n", v.Version, v.Commit, v.Date)
		},
	}

	cmd.AddCommand(serveCmd, initCmd, configCmd, versionCmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command, f *serveFlags) {
	cmd.Flags().IntVar(&f.port, "port", 0, "server port")
	cmd.Flags().StringVar(&f.bind, "bind", "", "bind address (default from config, typically 0.0.0.0)")
	cmd.Flags().BoolVar(&f.open, "open", false, "open browser on startup")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug|info|warn|error")
	cmd.Flags().BoolVar(&f.https, "https", false, "enable HTTPS")
	cmd.Flags().StringVar(&f.cert, "cert", "", "TLS certificate path")
	cmd.Flags().StringVar(&f.key, "key", "", "TLS key path")
}

func resolveDataDir(state *rootState) (string, error) {
	if p := strings.TrimSpace(state.dataDir); p != "" {
		return p, nil
	}
	return config.DefaultDataDir()
}

func mergeServeFlags(cmd *cobra.Command, cfg config.Config, f *serveFlags) config.Config {
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if cmd.Flags().Changed("bind") {
		cfg.Bind = f.bind
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(f.logLevel))
	}
	if cmd.Flags().Changed("https") {
		cfg.HTTPS = f.https
	}
	if cmd.Flags().Changed("cert") {
		cfg.CertFile = f.cert
	}
	if cmd.Flags().Changed("key") {
		cfg.KeyFile = f.key
	}
	return cfg
}

func runServe(cmd *cobra.Command, state *rootState, flags *serveFlags, args []string, v VersionInfo) error {
	dataDir, err := resolveDataDir(state)
	if err != nil {
		return err
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		if errors.Is(err, config.ErrNotInitialized) {
			return fmt.Errorf("no configuration found; run `homeflix init` first")
		}
		// Anything else means the config exists but cannot be trusted.
		// Refuse to serve rather than run with garbled credentials.
		return err
	}
	cfg = mergeServeFlags(cmd, cfg, flags)
	if len(args) == 1 {
		rootPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		cfg.RootDir = rootPath
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := os.Stat(cfg.RootDir); err != nil {
		return fmt.Errorf("root directory: %w", err)
	}

	opts := server.Options{
		RootDir:      cfg.RootDir,
		DataDir:      dataDir,
		Bind:         cfg.Bind,
		Port:         cfg.Port,
		Username:     cfg.Username,
		PasswordHash: cfg.PasswordHash,
		LogLevel:     cfg.LogLevel,
		HTTPS:        cfg.HTTPS,
		CertFile:     cfg.CertFile,
		KeyFile:      cfg.KeyFile,
		Version:      v.Version,
	}

	urls := util.DiscoverURLs(opts.Bind, opts.Port, opts.HTTPS)
	fmt.Printf("Serving: %s\n", cfg.RootDir)
	fmt.Printf("Data:    %s\n", dataDir)
	fmt.Println("URLs:")
	for _, u := range urls {
		fmt.Printf("  - %s\n", u)
	}
	if len(urls) > 0 {
		fmt.Println("Scan from your phone on the same network:")
		util.PrintTerminalQR(urls[0])
		if flags.open {
			go func(url string) {
				time.Sleep(350 * time.Millisecond)
				_ = util.OpenBrowser(url)
			}(urls[0])
		}
	}
	fmt.Println("Press Ctrl+C to stop.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return server.Run(ctx, opts)
}

func runInit(state *rootState) error {
	dataDir, err := resolveDataDir(state)
	if err != nil {
		return err
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		if !errors.Is(err, config.ErrNotInitialized) {
			return err
		}
		cfg = config.Default()
	}
	if cfg.RootDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.RootDir = filepath.Join(home, "Videos")
		}
	}

	r := bufio.NewReader(os.Stdin)
	fmt.Println("homeflix first-run setup")
	cfg.RootDir = askWithDefault(r, "Media directory", cfg.RootDir)
	cfg.Bind = askWithDefault(r, "Bind address", cfg.Bind)
	cfg.Port = askIntWithDefault(r, "Port", cfg.Port)
	username := cfg.Username
	if username == "" {
		username = "flix"
	}
	cfg.Username = strings.TrimSpace(askWithDefault(r, "Username", username))

	password, err := promptPasswordTwice("Password")
	if err != nil {
		return err
	}
	cfg.PasswordHash, err = auth.HashPassword(password)
	if err != nil {
		return err
	}

	rootAbs, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return err
	}
	cfg.RootDir = rootAbs
	if err := config.Save(dataDir, cfg); err != nil {
		return err
	}
	fmt.Printf("Config sealed under %s\n", dataDir)
	fmt.Println("Run `homeflix` to start serving.")
	return nil
}

func askWithDefault(r *bufio.Reader, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	text, _ := r.ReadString('\n')
	text = strings.TrimSpace(text)
	if text == "" {
		return def
	}
	return text
}

func askIntWithDefault(r *bufio.Reader, label string, def int) int {
	for {
		value := askWithDefault(r, label, strconv.Itoa(def))
		n, err := strconv.Atoi(value)
		if err == nil && n > 0 {
			return n
		}
		fmt.Println("Please enter a positive integer.")
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Printf("%s: ", prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		return string(b), err
	}
	reader := bufio.NewReader(os.Stdin)
	text, err := reader.ReadString('\n')
	return strings.TrimSpace(text), err
}

func promptPasswordTwice(label string) (string, error) {
	first, err := promptPassword(label)
	if err != nil {
		return "", err
	}
	second, err := promptPassword(label + " (confirm)")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	if strings.TrimSpace(first) == "" {
		return "", errors.New("password cannot be empty")
	}
	return first, nil
}
