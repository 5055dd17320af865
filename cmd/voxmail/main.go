package main

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"voxmail/internal/bot"
	"voxmail/internal/bus"
	"voxmail/internal/config"
	"voxmail/internal/drafter"
	"voxmail/internal/input"
	"voxmail/internal/ipc"
	"voxmail/internal/llm"
	"voxmail/internal/logging"
	"voxmail/internal/prefs"
	"voxmail/internal/proxy"
	"voxmail/internal/ratelimit"
	"voxmail/internal/telegram"
	"voxmail/pkg/stt"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "YAML config file")
	cli.StringP("log", "l", "info", "Log level")
	cli.StringP("proxy", "p", "", "Socks Proxy Address")
	cli.StringP("store", "s", "memory", "Preference store: memory|sqlite|postgres")
	cli.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load env file", "path", *envFile, "err", err)
	}

	cfg, err := config.Load(*cfgFile, cli.CommandLine)
	logger := logging.New(os.Stdout, cfg.Log.Level)
	log.SetDefault(logger)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}

	log.Info("Booting up", "provider", cfg.Provider, "store", cfg.Store.Driver, "stt", cfg.STT.Backend)

	if err := run(cfg, logger); err != nil {
		log.Error("Stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("Bye")
}

func run(cfg config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// long polls hold a request open for the whole poll timeout
	pollTimeout := time.Duration(cfg.Telegram.PollTimeout) * time.Second
	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, pollTimeout+cfg.AI.Timeout)
	if err != nil {
		return err
	}
	if cfg.Proxy != "" {
		log.Debug("Loaded proxy", "addr", cfg.Proxy)
	}

	api := cfg.ProviderAPI()
	client, err := llm.New(llm.Config{
		Provider:        cfg.Provider,
		APIKey:          api.APIKey,
		BaseURL:         api.BaseURL,
		ChatModel:       api.ChatModel,
		TranscribeModel: api.TranscribeModel,
		Temperature:     cfg.AI.Temperature,
		Timeout:         cfg.AI.Timeout,
		HTTPClient:      httpClient,
	})
	if err != nil {
		return err
	}
	log.Debug("Loaded AI client", "provider", client.Name(), "model", api.ChatModel)

	var transcriber input.Transcriber = client
	if cfg.STT.Backend == "whisper" {
		w, err := stt.NewTranscriber(cfg.STT.Model, stt.Options{
			Language:   cfg.STT.Language,
			Threads:    cfg.STT.Threads,
			MaxSeconds: cfg.STT.MaxSeconds,
		})
		if err != nil {
			return err
		}
		defer w.Close()
		transcriber = w
		log.Debug("Loaded whisper", "model", cfg.STT.Model)
	}

	lang, tone, err := cfg.Preferences()
	if err != nil {
		return err
	}
	store, err := prefs.Open(ctx, prefs.Options{
		Driver:   cfg.Store.Driver,
		DSN:      cfg.Store.DSN,
		Defaults: prefs.Defaults{Language: lang, Tone: tone},
	})
	if err != nil {
		return err
	}
	defer store.Close()

	svc := bot.NewService(
		store,
		input.NewNormalizer(transcriber, cfg.TmpDir),
		drafter.New(client),
		ratelimit.New(cfg.Limits.PerMinute, cfg.Limits.Burst),
		bot.Options{
			Provider:       client.Name(),
			ShowTranscript: cfg.Reply.ShowTranscript,
			ChunkSize:      cfg.Reply.ChunkSize,
		},
	)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Telegram.Token != "" {
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.Telegram.PollTimeout,
			DropPending: cfg.Telegram.DropPending,
			Grace:       cfg.Shutdown.Grace,
			HTTPClient:  httpClient,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return tg.Run(ctx, svc) })
	}

	if cfg.Bus.URL != "" {
		b := bus.New(bus.Config{
			URL:    cfg.Bus.URL,
			Name:   cfg.Bus.Name,
			Reconn: cfg.Bus.Reconnect,
			Grace:  cfg.Shutdown.Grace,
			Logger: logger,
		})
		g.Go(func() error { return b.Run(ctx, svc) })
	}

	if cfg.IPC.Socket != "" {
		srv, err := ipc.Listen(cfg.IPC.Socket, svc.ControlHandler(cfg.Store.Driver))
		if err != nil {
			return err
		}
		log.Debug("Control socket ready", "path", srv.Addr())
		g.Go(func() error { return srv.Serve(ctx) })
	}

	log.Info("Boot up - successful")
	return g.Wait()
}
