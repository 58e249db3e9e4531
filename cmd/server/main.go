package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl-arena/ladder-backend/internal/app"
	"github.com/rl-arena/ladder-backend/internal/config"
	"github.com/rl-arena/ladder-backend/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fx.New(
		app.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(runServer),
	).Run()
}

// runServer runs the HTTP server, the websocket hub and the Redis event bus in one errgroup.
// If any of them fails the whole app shuts down.
func runServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	router *gin.Engine,
	hub *websocket.Hub,
	coord *app.Coordination,
	log *zap.Logger,
) {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gCtx := errgroup.WithContext(runCtx)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting ladder backend",
				zap.String("port", cfg.Port),
				zap.String("env", cfg.Env),
				zap.String("store", cfg.Store),
				zap.Bool("redis", coord.Bus != nil))

			g.Go(func() error {
				return hub.Run(gCtx)
			})
			if coord.Bus != nil {
				g.Go(func() error {
					return coord.Bus.Start(gCtx, hub.Deliver)
				})
			}
			g.Go(func() error {
				log.Info("Server listening", zap.String("address", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			})

			go func() {
				<-gCtx.Done()
				if runCtx.Err() == nil {
					log.Error("Background worker stopped, shutting down")
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			shutdownCtx, stop := context.WithTimeout(ctx, shutdownTimeout)
			defer stop()

			shutdownErr := srv.Shutdown(shutdownCtx)
			cancel()
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Worker exited with error", zap.Error(err))
			}
			if shutdownErr != nil {
				return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
			}
			log.Info("Server exited")
			return nil
		},
	})
}
