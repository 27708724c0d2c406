package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wutongtree/backend/internal/config"
	"github.com/wutongtree/backend/internal/handler"
	"github.com/wutongtree/backend/internal/model/persona"
	"github.com/wutongtree/backend/internal/service/auth"
	"github.com/wutongtree/backend/internal/service/llm"
	"github.com/wutongtree/backend/internal/service/matching"
	"github.com/wutongtree/backend/internal/service/onboarding"
	"github.com/wutongtree/backend/internal/service/room"
	"github.com/wutongtree/backend/internal/service/speech"
	"github.com/wutongtree/backend/internal/store/kv"
	"github.com/wutongtree/backend/internal/store/transcript"
	"github.com/wutongtree/backend/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer log.Sync()

	if envErr != nil {
		log.Warnf("failed to load .env file, continuing with system environment variables only: %v", envErr)
	}

	store, err := kv.Open(cfg.Storage.BoltPath)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	defer store.Close()

	transcripts := transcript.Open(cfg.Storage.TranscriptPath)
	defer transcripts.Close()

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		// 没有可用的模型时仍然启动，房间会使用兜底台词
		log.Warnf("failed to initialize %s llm client, falling back to mock: %v", cfg.LLM.Provider, err)
		client = llm.NewMockClient(true, 0)
	} else {
		log.Infof("LLM provider %s initialized", cfg.LLM.Provider)
	}

	synth := speech.NewSynthesizer(cfg.TTS)
	log.Infof("TTS provider %s initialized", synth.Name())

	personas := persona.NewMemoryStore(persona.Seed())
	rooms := room.NewService(room.Deps{
		Config:   cfg.Room,
		LLM:      client,
		Synth:    synth,
		Personas: personas,
		Records:  store,
		Archive:  transcripts,
	})
	defer rooms.Shutdown()

	authSvc := auth.NewService(store)
	router, conns := handler.NewRouter(handler.Services{
		Personas:    personas,
		Rooms:       rooms,
		Match:       matching.NewService(matching.Options{}),
		Auth:        authSvc,
		Onboarding:  onboarding.NewService(client, authSvc),
		Transcripts: transcripts,
	})

	startServer(ctx, cfg.Server, router, func() {
		conns.CloseAll()
		rooms.Shutdown()
	})
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, onShutdown func()) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// 长连接（SSE / websocket）不会被 Shutdown 等待，需要先主动关闭
	srv.RegisterOnShutdown(onShutdown)

	log.Infof("WutongTree backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Errorf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
