package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tamoray/tamoray-api/internal/auth"
	"github.com/tamoray/tamoray-api/internal/bootstrap"
	"github.com/tamoray/tamoray-api/internal/config"
	"github.com/tamoray/tamoray-api/internal/generation"
	"github.com/tamoray/tamoray-api/internal/generation/loopback"
	genopenai "github.com/tamoray/tamoray-api/internal/generation/openai"
	genpostgres "github.com/tamoray/tamoray-api/internal/generation/postgres"
	gensqlite "github.com/tamoray/tamoray-api/internal/generation/sqlite"
	"github.com/tamoray/tamoray-api/internal/health"
	"github.com/tamoray/tamoray-api/internal/httpserver"
	"github.com/tamoray/tamoray-api/internal/ledger"
	ledgerpostgres "github.com/tamoray/tamoray-api/internal/ledger/postgres"
	ledgersqlite "github.com/tamoray/tamoray-api/internal/ledger/sqlite"
	"github.com/tamoray/tamoray-api/internal/logging"
	"github.com/tamoray/tamoray-api/internal/plan"
	"github.com/tamoray/tamoray-api/internal/version"
)

func main() {
	var (
		initConfig  = flag.Bool("init", false, "scaffold config files and exit")
		forceInit   = flag.Bool("force", false, "overwrite existing config files during -init")
		showVersion = flag.Bool("version", false, "print version and exit")
		adminEmail  = flag.String("admin-email", "", "admin email for -init")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.FullInfo())
		return
	}
	if *initConfig {
		if err := bootstrap.Init(bootstrap.InitOptions{AdminEmail: *adminEmail, Force: *forceInit}); err != nil {
			log.Fatalf("init config: %v", err)
		}
		log.Printf("config files written under ./config")
		return
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logTarget := strings.TrimSpace(cfg.LogFile)
	if logTarget != "" {
		rot, err := logging.NewRotatingWriter(logTarget, logging.DefaultMaxBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		defer rot.Close()
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[tamorayd] ")
	log.Printf("starting %s env=%s", version.FullInfo(), cfg.Environment)

	ledgerStore, ledgerPing, err := openLedger(cfg)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledgerStore.Close()

	historyStore, historyPing, err := openHistory(cfg)
	if err != nil {
		log.Fatalf("open generation history: %v", err)
	}
	defer historyStore.Close()

	var authManager *auth.Manager
	if cfg.AuthDisabled {
		log.Printf("authorization disabled: trusting X-User-ID header")
	} else {
		authManager, err = auth.NewManager(cfg.AuthSecret)
		if err != nil {
			log.Fatalf("init auth manager: %v", err)
		}
	}

	catalog := plan.Default()
	if cfg.PlansFile != "" {
		catalog, err = plan.Load(cfg.PlansFile)
		if err != nil {
			log.Fatalf("load plan catalog: %v", err)
		}
		log.Printf("plan catalog loaded from %s", cfg.PlansFile)
	}

	renderer := buildRenderer(cfg)
	genService, err := generation.NewService(renderer, ledgerStore, historyStore, catalog, cfg.ThumbnailCost)
	if err != nil {
		log.Fatalf("init generation service: %v", err)
	}
	genService.SetLogger(log.New(log.Writer(), "[tamorayd/gen] ", log.LstdFlags|log.Lmicroseconds))

	checker := health.New(5*time.Second, 500*time.Millisecond)
	checker.Register("ledger", "database", ledgerPing)
	checker.Register("history", "database", historyPing)

	httpSrv := httpserver.New(ledgerStore, genService, authManager, catalog, cfg.AdminEmail)
	httpSrv.SetAuthDisabled(cfg.AuthDisabled)
	httpSrv.SetHealthChecker(checker)
	httpSrv.SetLogger(cfg.LogLevel, log.New(log.Writer(), "[tamorayd/http] ", log.LstdFlags|log.Lmicroseconds))

	srv := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      httpSrv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api server listening on %s", cfg.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	log.Printf("tamorayd stopped")
}

func openLedger(cfg config.Config) (ledger.Store, health.CheckFunc, error) {
	if config.IsPostgres(cfg.LedgerPath) {
		store, err := ledgerpostgres.New(cfg.LedgerPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnLifetimeMins, cfg.DBConnIdleTimeMins)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Ping, nil
	}
	store, err := ledgersqlite.New(cfg.LedgerPath)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Ping, nil
}

func openHistory(cfg config.Config) (generation.Store, health.CheckFunc, error) {
	if config.IsPostgres(cfg.HistoryPath) {
		store, err := genpostgres.New(cfg.HistoryPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnLifetimeMins, cfg.DBConnIdleTimeMins)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Ping, nil
	}
	store, err := gensqlite.New(cfg.HistoryPath)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Ping, nil
}

func buildRenderer(cfg config.Config) generation.Renderer {
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		renderer, err := genopenai.New(genopenai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		if err == nil {
			log.Printf("image renderer: openai")
			return renderer
		}
		log.Printf("openai renderer init failed (%v); falling back to loopback", err)
	}
	log.Printf("image renderer: loopback")
	return loopback.New(cfg.MediaBaseURL)
}
