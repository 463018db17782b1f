package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nstbot/internal/adapters/converter"
	"nstbot/internal/adapters/file"
	"nstbot/internal/adapters/handler"
	"nstbot/internal/adapters/sender"
	"nstbot/internal/adapters/storage"
	"nstbot/internal/config"
	"nstbot/internal/core/domain/command"
	"nstbot/internal/core/port"
	"nstbot/internal/core/service"
	"nstbot/internal/metrics"
	"nstbot/internal/nst"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Info().Msg("starting nstbot...")

	log.Info().Msg("reading config file...")
	cfg, err := config.Load(os.Getenv("NSTBOT_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("could not read config file")
	}

	var logLevel zerolog.Level

	switch cfg.Bot.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	lock := flock.New(cfg.Bot.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Bot.LockFile).Msg("could not acquire instance lock")
	}
	if !locked {
		log.Fatal().Str("path", cfg.Bot.LockFile).Msg("another instance is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("could not release instance lock")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := bot.New(cfg.Telegram.BotToken, bot.WithDefaultHandler(noOpHandler))
	if err != nil {
		log.Panic().Err(err).Msg("failed initializing telegram bot")
	}

	s := sender.NewTelegram(b)

	extractor, err := nst.LoadExtractor(cfg.Model.Path, cfg.Model.Layers)
	if err != nil {
		log.Panic().Err(err).Str("path", cfg.Model.Path).Msg("failed loading model")
	}
	log.Info().
		Str("path", cfg.Model.Path).
		Int("depth", extractor.Depth()).
		Int("input_channels", extractor.InputChannels()).
		Ints("monitored", extractor.Monitored()).
		Msg("model loaded")

	composer, err := nst.NewComposer(cfg.Transfer.Alpha, cfg.Transfer.Beta)
	if err != nil {
		log.Panic().Err(err).Msg("invalid loss weights")
	}

	codec, err := converter.NewImageCodec(cfg.Transfer.ImageSize)
	if err != nil {
		log.Panic().Err(err).Msg("failed initializing image codec")
	}

	if budget := cfg.Transfer.Budget(); cfg.Transfer.Timeout < budget {
		log.Warn().
			Dur("timeout", cfg.Transfer.Timeout).
			Dur("expected", budget).
			Int("iterations", cfg.Transfer.Iterations).
			Msg("transfer timeout is shorter than the iteration budget, transfers may be cut off")
	}
	log.Info().Int("image_size", codec.Size()).Dur("timeout", cfg.Transfer.Timeout).Msg("transfer settings")

	transferer, err := nst.NewTransferer(extractor, composer, codec, nst.Params{
		Iterations:      cfg.Transfer.Iterations,
		LearningRate:    cfg.Transfer.LearningRate,
		CheckpointEvery: cfg.Transfer.CheckpointEvery,
	}, nst.WithProgress(func(p nst.Progress) {
		metrics.ObserveLoss(p.Loss.Total, p.Loss.Content, p.Loss.Style)
	}))
	if err != nil {
		log.Panic().Err(err).Msg("failed initializing transferer")
	}

	fetcher, err := file.NewFetcher(cfg.Storage.ImageDir)
	if err != nil {
		log.Panic().Err(err).Msg("failed initializing image storage")
	}

	if err := os.MkdirAll(cfg.Storage.OutputDir, 0o755); err != nil {
		log.Panic().Err(err).Msg("failed creating output directory")
	}

	var archiver port.Archiver
	if cfg.Minio.Enabled() {
		a, err := storage.NewMinioArchiver(ctx, cfg.Minio)
		if err != nil {
			log.Panic().Err(err).Msg("failed initializing minio archive")
		}
		archiver = a
	}

	pool, err := service.NewPool(cfg.Transfer.Workers, cfg.Transfer.QueueSize, cfg.Transfer.Timeout)
	if err != nil {
		log.Panic().Err(err).Msg("invalid worker pool settings")
	}
	pool.Start(ctx)

	styleTransfer, err := service.NewStyleTransfer(service.StyleTransferParams{
		Registry:   service.NewRegistry(),
		Queue:      pool,
		Transferer: transferer,
		Allocate:   file.ArtifactAllocator(cfg.Storage.OutputDir, ".png"),
		Archiver:   archiver,
	})
	if err != nil {
		log.Panic().Err(err).Msg("failed initializing style transfer")
	}

	auth := service.NewAuthorizer(s, service.AuthParams{
		AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
		AdminChatIDs:   cfg.Telegram.AdminChatIDs,
		AdminUsername:  cfg.Telegram.AdminUsername,
	})

	commandRegistry := &command.Registry{}

	commandRegistry.Register(command.NewStart(s, auth, "/start"))
	commandRegistry.Register(command.NewHelp(s, auth, "/help"))
	commandRegistry.Register(command.NewEcho(s, auth, "/echo"))
	commandRegistry.Register(command.NewTransfer(styleTransfer, fetcher, s, s, auth, "/nst"))
	commandRegistry.Register(command.NewResult(styleTransfer, fetcher, s, s, auth, "/result"))
	commandRegistry.Register(command.NewState(styleTransfer, s, auth, "/state"))
	commandRegistry.Register(command.NewDebug(s, pool, auth, "/debug"))

	commandHandler := handler.NewCommand(commandRegistry, b, cfg.Handler.Timeout, "/nst", "/echo")

	b.RegisterHandler(bot.HandlerTypeMessageText, "/", bot.MatchTypePrefix, commandHandler.Handle)
	b.RegisterHandlerMatchFunc(isPhoto, commandHandler.Handle)
	b.RegisterHandlerMatchFunc(isPlainText, commandHandler.Handle)

	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen)
	}

	log.Info().Strs("commands", commandRegistry.ListCommands()).Msg("bot listening")
	b.Start(ctx)

	log.Info().Msg("shutting down, waiting for running transfers")
	pool.Wait()
}

func isPhoto(update *models.Update) bool {
	return update.Message != nil && len(update.Message.Photo) > 0
}

func isPlainText(update *models.Update) bool {
	return update.Message != nil &&
		len(update.Message.Photo) == 0 &&
		update.Message.Text != "" &&
		!strings.HasPrefix(update.Message.Text, "/")
}

func serveMetrics(ctx context.Context, addr string) {
	metrics.Register(prometheus.DefaultRegisterer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server failed")
	}
}

func noOpHandler(_ context.Context, _ *bot.Bot, _ *models.Update) {}
