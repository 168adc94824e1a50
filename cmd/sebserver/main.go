package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/pflag"

	"github.com/mind-engage/mindengage-seb/internal/activity"
	api "github.com/mind-engage/mindengage-seb/internal/api/http"
	auth "github.com/mind-engage/mindengage-seb/internal/auth/middleware"
	"github.com/mind-engage/mindengage-seb/internal/config"
	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/db"
	"github.com/mind-engage/mindengage-seb/internal/exam"
	"github.com/mind-engage/mindengage-seb/internal/lms/moodle"
	"github.com/mind-engage/mindengage-seb/internal/lms/openedx"
	"github.com/mind-engage/mindengage-seb/internal/lms/registry"
	"github.com/mind-engage/mindengage-seb/internal/lmssetup"
	"github.com/mind-engage/mindengage-seb/internal/logging"
	"github.com/mind-engage/mindengage-seb/internal/quizimport"
)

func main() {
	if err := run(); err != nil {
		logging.Log().Fatal(err)
	}
}

func run() error {
	var configFile, addr, logLevel string
	flagSet := pflag.NewFlagSet("sebserver", pflag.ContinueOnError)
	flagSet.StringVar(&configFile, "config", "", "YAML configuration file (default: $CONFIG_FILE)")
	flagSet.StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	flagSet.StringVar(&logLevel, "log-level", "", "debug|info|warn|error, overrides LOG_LEVEL")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logging.Configure(cfg.LogLevel, cfg.JSONLogging, cfg.LogSkipPaths)
	log := logging.Log()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db open failed: %w", err)
	}
	defer dbh.Close()

	// --- Core ---
	var creds *credentials.Store
	if cfg.CredentialSecret != "" {
		if creds, err = credentials.NewStore(cfg.CredentialSecret); err != nil {
			return err
		}
	} else {
		log.Warn("CREDENTIAL_SECRET not set: only MOCKUP LMS setups can be used")
	}
	setups := lmssetup.NewSQLStore(dbh, creds)
	reg := registry.NewDefault(setups, creds, registry.Options{
		OpenEdx: openedx.Config{TokenPaths: cfg.OpenEdxTokenPaths, HTTPTimeout: cfg.LMSHTTPTimeout},
		Moodle:  moodle.Config{Service: cfg.MoodleService, HTTPTimeout: cfg.LMSHTTPTimeout, Sink: setups},
	})
	exams := exam.NewSQLStore(dbh)
	events := activity.NewEventRepo(dbh)
	importer := quizimport.New(reg, exams, events, quizimport.Config{
		PageSizeDefault: cfg.PageSizeDefault,
		PageSizeMax:     cfg.PageSizeMax,
	})

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.RequestLogger, middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, auth.Admin{User: cfg.AdminUser, PassHash: cfg.AdminPassHash}))
	api.MountAPI(r, api.Deps{
		Auth:      authSvc,
		Setups:    setups,
		Templates: reg,
		Import:    importer,
		Exams:     exams,
		Activity:  events,
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
		errc <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case s := <-sig:
		log.Infof("received %s, shutting down", s)
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
