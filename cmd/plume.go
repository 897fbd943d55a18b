package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/ingest"
	"github.com/indieinfra/plume/logging"
	"github.com/indieinfra/plume/media"
	"github.com/indieinfra/plume/processing"
	"github.com/indieinfra/plume/server"
	"github.com/indieinfra/plume/server/state"
	"github.com/indieinfra/plume/storage/entries"
	queuefactory "github.com/indieinfra/plume/storage/queue/factory"
)

func main() {
	log.SetPrefix("plume: ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile | log.Lmsgprefix)

	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	fs := flag.NewFlagSet("plume", flag.ContinueOnError)
	configFile := fs.String("config", "config.yml", "Path to the configuration file (i.e., /etc/plume.yaml)")
	addUser := fs.String("add-user", "", "Create a user with this name and exit")
	token := fs.String("token", "", "API token for -add-user")
	uploadLimit := fs.Int64("upload-limit", -1, "Upload limit in bytes for -add-user; negative uses the site default")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if len(strings.TrimSpace(*configFile)) == 0 {
		fs.Usage()
		return 1
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Printf("failed to load configuration: %v", err)
		return 1
	}

	logger, err := logging.New(cfg.Log, cfg.Debug)
	if err != nil {
		log.Printf("failed to initialize logging: %v", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *addUser != "" {
		err = createUser(ctx, cfg, logger, *addUser, *token, *uploadLimit)
	} else {
		err = run(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("plume exited with error", zap.Error(err))
		return 1
	}
	return 0
}

func createUser(ctx context.Context, cfg *config.Config, logger *zap.Logger, name, token string, limit int64) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("-token is required with -add-user")
	}

	store, err := entries.NewSQLStore(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.CreateUser(ctx, name, limit, token)
	if err != nil {
		return fmt.Errorf("create user %q: %w", name, err)
	}

	logger.Info("user created", zap.Int64("id", user.ID), zap.String("username", user.Username))
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting plume", zap.String("public_url", cfg.Server.PublicUrl))

	store, err := entries.NewSQLStore(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := queuefactory.Create(&cfg.Queue, logger)
	if err != nil {
		return err
	}

	registry, err := media.NewBuiltinRegistry(cfg.EnabledMediaTypes(), cfg.MediaTypes.FFprobe)
	if err != nil {
		return err
	}
	detector := media.NewDetector(registry, media.WithTempDir(cfg.MediaTypes.TempDir), media.WithLogger(logger))

	publisher := processing.NewPublisher(cfg.Processing.PushHubs, &http.Client{Timeout: 10 * time.Second})
	processor := processing.NewProcessor(store, q, registry, publisher, cfg.MediaTypes.TempDir, logger)

	runner, err := processing.NewRunner(&cfg.Processing, processor.Handle, logger)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Close()

	publicURL := strings.TrimSuffix(cfg.Server.PublicUrl, "/")
	feedURL := func(username string) string {
		return publicURL + "/u/" + username + "/atom/"
	}
	coord := ingest.NewCoordinator(store, q, detector, runner, cfg.Uploads, feedURL, logger)

	gc := cfg.Processing.GarbageCollection
	if gc.Schedule != "" && gc.MaxAge > 0 {
		cr := cron.New()
		if _, err := ingest.NewCollector(store, q, gc.MaxAge, logger).Schedule(cr, gc.Schedule); err != nil {
			return fmt.Errorf("schedule garbage collection: %w", err)
		}
		cr.Start()
		defer cr.Stop()
	}

	return server.StartServer(ctx, &state.PlumeState{
		Cfg:       cfg,
		Store:     store,
		Submitter: coord,
		Registry:  registry,
		Log:       logger,
	})
}
