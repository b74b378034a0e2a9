// Package main is the entry point for the cortex-voice CLI, a
// realtime voice bridge between the terminal, the Gemini Live API and
// local capability backends speaking MCP over stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/cortex-voice/internal/audio"
	"github.com/normanking/cortex-voice/internal/bus"
	"github.com/normanking/cortex-voice/internal/config"
	"github.com/normanking/cortex-voice/internal/live"
	"github.com/normanking/cortex-voice/internal/logging"
	"github.com/normanking/cortex-voice/internal/mcp"
	"github.com/normanking/cortex-voice/internal/registry"
	"github.com/normanking/cortex-voice/internal/schema"
	"github.com/normanking/cortex-voice/internal/session"
	"github.com/normanking/cortex-voice/internal/transcript"
	"github.com/normanking/cortex-voice/internal/ui"
)

var (
	version    = "0.1.0"
	cfgPath    string
	verbose    bool
	headless   bool
	startMuted bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cortex-voice",
		Short: "Voice bridge between Gemini Live and local MCP backends",
		Long: `cortex-voice opens a realtime voice conversation with Gemini and
puts your local MCP servers on call: when the model decides a question
needs live data, it invokes one of their tools and speaks the answer.

Start a session:        cortex-voice
Without the UI:         cortex-voice --headless
Inspect capabilities:   cortex-voice tools`,
		RunE: runSession,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.cortex-voice/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run without the terminal UI, logging to the console")
	rootCmd.Flags().BoolVar(&startMuted, "muted", false, "start with the microphone muted")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cortex-voice v%s\n", version)
		},
	})
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.Setup(logging.Config{
		Level:   level,
		File:    cfg.Logging.File,
		Console: true,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	apiKey := cfg.APIKey()
	if apiKey == "" {
		return fmt.Errorf("no API key found: set %s", cfg.Gemini.APIKeyEnv)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := bus.New()
	defer events.Close()

	tr, err := transcript.New(config.DataDir())
	if err != nil {
		log.Warn().Err(err).Msg("transcript log disabled")
	} else {
		tr.Attach(events)
		defer tr.Close()
		log.Info().Str("path", tr.Path()).Msg("transcript log open")
	}

	if cfg.Observer.Enabled {
		obs := bus.NewObserver(events, bus.ObserverConfig{Port: cfg.Observer.Port})
		if err := obs.Start(); err != nil {
			log.Warn().Err(err).Msg("event tap failed to start")
		} else {
			defer obs.Stop()
		}
	}

	reg := registry.New()
	sessions, err := connectBackends(ctx, cfg, reg, events)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()

	router := registry.NewRouter(reg, cfg.Backends.InvokeTimeout)

	client, err := live.Dial(ctx, live.Config{
		Endpoint:          cfg.Gemini.Endpoint,
		APIKey:            apiKey,
		Model:             cfg.Gemini.Model,
		SystemInstruction: cfg.Gemini.SystemInstruction,
		Tools:             reg.Declarations(),
		EnableSearch:      cfg.Gemini.EnableSearch,
		HandshakeTimeout:  cfg.Gemini.HandshakeTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect to live peer: %w", err)
	}

	capture, err := audio.NewCapture()
	if err != nil {
		client.Close()
		return fmt.Errorf("open microphone: %w", err)
	}
	playback, err := audio.NewPlayback()
	if err != nil {
		capture.Close()
		client.Close()
		return fmt.Errorf("open speaker: %w", err)
	}

	orch := session.New(client, capture, playback, router, events, session.Config{
		DrainGrace: time.Duration(cfg.Audio.DrainGraceMs) * time.Millisecond,
		StartMuted: cfg.Audio.StartMuted || startMuted,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	if headless {
		log.Info().Msg("running headless; ctrl+c to end the session")
		select {
		case <-ctx.Done():
			orch.Close()
			<-runErr
			return nil
		case err := <-runErr:
			return err
		}
	}

	// Force truecolor so themed backgrounds render on terminals that
	// under-report their capabilities, then keep logs off the screen.
	lipgloss.SetColorProfile(termenv.TrueColor)
	logger.SuppressConsole()

	model := ui.New(orch, events, cfg.TUI.Theme)
	program := tea.NewProgram(model, tea.WithAltScreen())

	// End the UI if the session dies underneath it.
	go func() {
		<-runErr
		program.Quit()
	}()

	_, uiErr := program.Run()
	logger.RestoreConsole()
	orch.Close()
	return uiErr
}

// connectBackends launches every configured backend, harvests its
// tools into the registry and watches for its death. A backend that
// fails to launch or handshake is skipped, not fatal.
func connectBackends(ctx context.Context, cfg *config.Config, reg *registry.Registry, events *bus.Bus) ([]*mcp.Session, error) {
	servers, err := cfg.ResolveBackends()
	if err != nil {
		return nil, err
	}

	var sessions []*mcp.Session
	for _, sc := range servers {
		sess, err := mcp.Launch(sc)
		if err != nil {
			log.Warn().Err(err).Str("backend", sc.Name).Msg("backend launch failed, skipping")
			continue
		}

		initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		caps, err := harvestCapabilities(initCtx, sess)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("backend", sc.Name).Msg("backend handshake failed, skipping")
			sess.Close()
			continue
		}

		added := reg.Register(sess, caps)
		log.Info().Str("backend", sc.Name).Int("capabilities", added).Msg("backend ready")
		sessions = append(sessions, sess)

		go watchBackend(sess, reg, events)
	}
	return sessions, nil
}

// harvestCapabilities runs the MCP handshake and decodes each tool's
// schema. Tools with undecodable schemas are skipped individually.
func harvestCapabilities(ctx context.Context, sess *mcp.Session) ([]registry.Capability, error) {
	if err := sess.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	tools, err := sess.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	caps := make([]registry.Capability, 0, len(tools))
	for _, t := range tools {
		node, err := schema.Decode(t.InputSchema)
		if err != nil {
			log.Warn().Err(err).Str("tool", t.Name).Msg("unusable tool schema, skipping")
			continue
		}
		caps = append(caps, registry.Capability{
			Name:        t.Name,
			Description: t.Description,
			Schema:      node,
			Backend:     sess,
		})
	}
	return caps, nil
}

// watchBackend withdraws a backend's capabilities the moment its
// process exits.
func watchBackend(sess *mcp.Session, reg *registry.Registry, events *bus.Bus) {
	<-sess.Done()
	reg.Unregister(sess.Name())
	events.Publish(bus.BackendLost(sess.Name()))
	log.Warn().Str("backend", sess.Name()).Msg("backend exited; capabilities withdrawn")
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Connect to the configured backends and list their capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			level := cfg.Logging.Level
			if verbose {
				level = "debug"
			}
			logger, err := logging.Setup(logging.Config{Level: level, Console: true})
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			events := bus.New()
			defer events.Close()

			reg := registry.New()
			sessions, err := connectBackends(ctx, cfg, reg, events)
			if err != nil {
				return err
			}
			defer func() {
				for _, s := range sessions {
					s.Close()
				}
			}()

			snap := reg.List()
			if len(snap.Capabilities) == 0 {
				fmt.Println("No capabilities available. Check backends in your config.")
				return nil
			}

			fmt.Printf("%d capabilities from %d backends:\n\n", len(snap.Capabilities), len(sessions))
			for _, c := range snap.Capabilities {
				fmt.Printf("  %-28s (%s)\n", c.Name, c.Backend.Name())
				if c.Description != "" {
					fmt.Printf("      %s\n", c.Description)
				}
			}
			return nil
		},
	}
}
