package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"songify/internal/config"
	"songify/internal/extractor"
	"songify/internal/logger"
	"songify/internal/relay"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "songify",
		Short: "YouTube music search relay and audio streaming proxy",
		Long: `Songify relays music searches to the YouTube Data API and streams the audio
of a chosen video through the server, so the browser never talks to YouTube directly.`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().String("config", "", "Path to a YAML config file (or SONGIFY_CONFIG)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "Log format: console or json")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "Interface to bind")
	serveCmd.Flags().Int("port", 0, "Port to listen on")

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run one search and print the results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve [video-id]",
		Short: "Resolve the direct audio URL for a video",
		Args:  cobra.ExactArgs(1),
		RunE:  runResolve,
	}

	root.AddCommand(serveCmd, searchCmd, resolveCmd)

	// Bare `songify` behaves like `songify serve`.
	root.Flags().AddFlagSet(serveCmd.Flags())
	root.RunE = runServe

	return root
}

// loadConfig applies flags on top of file, .env and environment settings.
func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
		cfg.Host = f.Value.String()
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return cfg, zerolog.Nop(), err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.YouTubeAPIKey == "" {
		log.Warn().Msg("YOUTUBE_API_KEY is not set, searches will be rejected by YouTube")
	}
	log.Info().
		Str("addr", cfg.Addr()).
		Str("api_key", cfg.RedactedKey()).
		Str("search_url", cfg.YouTubeSearchURL).
		Str("extractor", cfg.Extractor).
		Dur("search_cache_ttl", cfg.SearchCacheTTL).
		Float64("audio_rps", cfg.AudioRPS).
		Msg("configuration loaded")

	p, closeCache := buildProvider(cmd.Context(), cfg, log)
	defer closeCache()

	ex := buildExtractor(cfg)
	if err := ex.Available(); err != nil {
		log.Warn().Err(err).Msg("audio extractor unavailable, /get-audio will fail until it is installed")
	}

	srv := relay.NewServer(p, ex, log, relay.Options{
		CORSAllowedOrigin:    cfg.CORSAllowedOrigin,
		SearchTimeout:        cfg.SearchTimeout,
		ResolveTimeout:       cfg.ResolveTimeout,
		StreamConnectTimeout: cfg.StreamConnectTimeout,
		AudioRPS:             cfg.AudioRPS,
		AudioBurst:           cfg.AudioBurst,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("songify listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-signalChan:
		log.Info().Msg("received interrupt signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
			return err
		}
		log.Info().Msg("server shut down gracefully")
		return nil

	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, closeCache := buildProvider(cmd.Context(), cfg, log)
	defer closeCache()

	items, err := p.Search(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	videoID := args[0]
	if !extractor.ValidVideoID(videoID) {
		return fmt.Errorf("invalid video id %q", videoID)
	}

	ex := buildExtractor(cfg)
	if err := ex.Available(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ResolveTimeout)
	defer cancel()

	stream, err := ex.Resolve(ctx, videoID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "title: %s\n", stream.Title)
	fmt.Fprintf(out, "type:  %s (%s)\n", stream.MimeType, stream.Ext)
	fmt.Fprintf(out, "url:   %s\n", stream.URL)
	return nil
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
