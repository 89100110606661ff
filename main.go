package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sparkpad-server/config"
	"sparkpad-server/handlers/api/ai"
	"sparkpad-server/handlers/api/documents"
	"sparkpad-server/handlers/api/kv"
	"sparkpad-server/handlers/api/rooms"
	"sparkpad-server/handlers/websocket"
	"sparkpad-server/relay"
	"sparkpad-server/stores"
	"sparkpad-server/stores/memory"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type routes struct {
	store   stores.Store
	scratch kv.Modes
	rooms   rooms.Lister
	ai      *ai.Client
}

func setupRouter(cfg *config.Config, rt routes) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.App.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api/v2", func(r chi.Router) {
		r.Post("/documents", documents.HandleCreate(rt.store))
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", documents.HandleGet(rt.store))
			r.Put("/", documents.HandleUpdate(rt.store))
			r.Get("/history", documents.HandleHistory(rt.store))
		})
		r.Post("/generate", ai.HandleGenerate(rt.ai))
	})

	r.Route("/api/kv", func(r chi.Router) {
		r.Get("/", kv.HandleGet(rt.scratch))
		r.Post("/", kv.HandlePut(rt.scratch))
		r.Delete("/", kv.HandleDelete(rt.scratch))
	})

	r.Get("/api/rooms", rooms.HandleList(rt.rooms))

	return r
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, _ := logrus.ParseLevel(cfg.App.LogLevel)
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	store := stores.GetStore(cfg.Store)

	sockets := websocket.NewSockets()
	rl := relay.New(relay.NewState(), sockets, cfg.Relay.QueueSize)
	ctx, cancel := context.WithCancel(context.Background())
	go rl.Run(ctx)

	r := setupRouter(cfg, routes{
		store:   store,
		scratch: kv.Modes{Disk: store, Memory: memory.NewStore(cfg.Store.MaxRevisions)},
		rooms:   rl,
		ai:      ai.NewClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.Timeout),
	})
	ioo := websocket.SetupSocketIO(rl, sockets, websocket.Options{
		AllowedOrigins:    cfg.App.AllowedOrigins,
		MaxHTTPBufferSize: cfg.App.MaxHTTPBufferSize,
	})
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{Addr: cfg.App.Address, Handler: r}
	logrus.WithField("addr", cfg.App.Address).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(srv, ioo, cancel)
}

func waitForShutdown(srv *http.Server, ioo *socketio.Server, stopRelay context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signals
	logrus.WithField("signal", s.String()).Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	ioo.Close(nil)
	stopRelay()
}
