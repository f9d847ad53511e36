// cmd/lotteryd is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"eventlottery/internal/admission"
	"eventlottery/internal/config"
	"eventlottery/internal/database"
	"eventlottery/internal/draw"
	"eventlottery/internal/handler"
	"eventlottery/internal/lifecycle"
	"eventlottery/internal/notify"
	"eventlottery/internal/service"
	"eventlottery/internal/storage/postgres"
	"eventlottery/internal/tasks"
	"eventlottery/internal/waitlist"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ── 1. Connect to PostgreSQL and apply the schema ─────────────────────
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := postgres.ApplySchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}
	log.Println("connected to postgres")

	// ── 2. Wire up the core ───────────────────────────────────────────────
	store := postgres.New(pool)
	wl := waitlist.NewStore()
	machine := lifecycle.NewMachine(store, wl, notify.LogPort{}, cfg.ResponseWindow)
	locks := admission.NewEventLocks(cfg.LockWait)
	controller := admission.NewController(store, wl, machine, locks)
	engine, err := draw.NewEngine(store, wl, machine, locks)
	if err != nil {
		log.Fatalf("draw engine: %v", err)
	}
	svc := service.NewLotteryService(store, controller, engine, machine, wl)

	if err := svc.Rehydrate(ctx); err != nil {
		log.Fatalf("rehydrate waitlists: %v", err)
	}

	lotteryHandler := handler.NewLotteryHandler(svc)

	// ── 3. Background expiry sweep ────────────────────────────────────────
	sweep, err := tasks.StartExpirySweep(svc, cfg.SweepInterval)
	if err != nil {
		log.Fatalf("expiry sweep: %v", err)
	}
	defer sweep.Stop()

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)            // permissive CORS

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Route("/events", func(r chi.Router) {
		r.Post("/", lotteryHandler.CreateEvent)
		r.Get("/", lotteryHandler.ListEvents)
		r.Get("/{id}", lotteryHandler.GetEvent)
		r.Post("/{id}/join", lotteryHandler.Join)
		r.Post("/{id}/leave", lotteryHandler.Leave)
		r.Get("/{id}/waitlist", lotteryHandler.Waitlist)
		r.Get("/{id}/registrations", lotteryHandler.ListRegistrations)
		r.Post("/{id}/draw", lotteryHandler.Draw)
		r.Post("/{id}/registrations/{entrant}/confirm", lotteryHandler.Confirm)
		r.Post("/{id}/registrations/{entrant}/decline", lotteryHandler.Decline)
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Printf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}
