package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"

	"offline-chat/internal/archive"
	"offline-chat/internal/backup"
	"offline-chat/internal/crypto"
	"offline-chat/internal/delivery"
	"offline-chat/internal/httpapi"
	"offline-chat/internal/preview"
	"offline-chat/internal/session"
	"offline-chat/internal/storage"
)

// App encapsulates the chat pipeline runtime components.
type App struct {
	Cfg *Config

	ctx    context.Context
	cancel context.CancelFunc

	Store      *storage.Store
	Media      *storage.MediaCatalog
	Queue      *delivery.Queue
	Monitor    *delivery.Monitor
	Controller *session.Controller
	Scheduler  *session.Scheduler
	Engine     *backup.Engine
	Archive    *archive.Archive
	API        *httpapi.Server

	srv *http.Server
}

// NewApp wires all pipeline dependencies according to the provided
// config.
func NewApp(cfg *Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	store, err := storage.Open(cfg.StoreDB)
	if err != nil {
		cancel()
		return nil, err
	}

	media, err := storage.NewMediaCatalog(store, cfg.MediaDir)
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, err
	}

	var cipher *crypto.Cipher
	if cfg.Passphrase != "" {
		key, err := crypto.DeriveKey(cfg.Passphrase)
		if err == nil {
			cipher, err = crypto.NewCipher(key)
		}
		if err != nil {
			cancel()
			_ = store.Close()
			return nil, err
		}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	transport := delivery.NewHTTPTransport(cfg.RelayURL, cfg.RelayToken, client)
	monitor := delivery.NewMonitor(cfg.ProbeURL, cfg.ProbeEvery, client)
	queue := delivery.NewQueue(store, transport, monitor)

	controller, err := session.NewController(session.Options{
		SenderID:   cfg.SenderID,
		ReceiverID: cfg.ReceiverID,
		Store:      store,
		Queue:      queue,
		Enricher:   preview.NewEnricher(client),
		Cipher:     cipher,
		PageSize:   cfg.PageSize,
	})
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, err
	}
	queue.SetStatusHook(controller.ApplyStatus)

	var arc *archive.Archive
	if cfg.DatabaseURL != "" {
		arc, err = archive.Open(cfg.DatabaseURL)
		if err != nil {
			log.Printf("archive unavailable (%v), running without long-term history", err)
			arc = nil
		}
	}

	app := &App{
		Cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		Store:      store,
		Media:      media,
		Queue:      queue,
		Monitor:    monitor,
		Controller: controller,
		Scheduler:  session.NewScheduler(controller, cfg.PromoteEvery),
		Engine:     backup.NewEngine(cfg.BackupDir, nil),
		Archive:    arc,
	}
	app.API = httpapi.New(httpapi.Options{
		Controller: controller,
		Queue:      queue,
		Engine:     app.Engine,
		Store:      store,
		Media:      media,
		Archive:    arc,
	})
	return app, nil
}

// Start launches the reachability watcher, the schedule promoter, and
// the HTTP API.
func (a *App) Start() error {
	a.Monitor.Start(a.ctx)
	a.Queue.Start(a.ctx, a.Monitor.Changes())
	go a.Scheduler.Run(a.ctx)

	logger := httplog.NewLogger("chatd", httplog.Options{JSON: false})
	a.srv = &http.Server{
		Addr:    a.Cfg.ListenAddr,
		Handler: httplog.RequestLogger(logger)(a.API.Router()),
	}
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server stopped: %v", err)
		}
	}()
	log.Printf("chat api listening on %s (encryption:%t)", a.Cfg.ListenAddr, a.Controller.Encrypted())
	return nil
}

// Shutdown stops all background routines and releases resources.
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()
	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			log.Printf("api shutdown: %v", err)
		}
	}
	if a.API != nil {
		a.API.Close()
	}
	if a.Scheduler != nil {
		a.Scheduler.Close()
	}
	if a.Queue != nil {
		a.Queue.Stop()
	}
	if a.Monitor != nil {
		a.Monitor.Stop()
	}
	if a.Archive != nil {
		_ = a.Archive.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// WaitForShutdown blocks until SIGINT/SIGTERM then stops the app.
func WaitForShutdown(app *App) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.Shutdown(ctx)
}
