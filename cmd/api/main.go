package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/config"
	appHTTP "github.com/cmlabs-hris/staff-attendance-go/internal/handler/http"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/calendar"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/cron"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/database"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/sse"
	"github.com/cmlabs-hris/staff-attendance-go/internal/repository/postgresql"
	staffAttendanceService "github.com/cmlabs-hris/staff-attendance-go/internal/service/staffattendance"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	cal, err := calendar.Load(cfg.Grid.CalendarFile)
	if err != nil {
		return fmt.Errorf("load unit calendar: %w", err)
	}

	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	staffAttendanceRepo := postgresql.NewStaffAttendanceRepository(db)

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.Skew)
	hub := sse.NewHub()
	attendanceService := staffAttendanceService.NewStaffAttendanceService(db, staffAttendanceRepo, loc)
	sessionService := staffAttendanceService.NewGridSessionService(
		attendanceService,
		cal,
		hub,
		loc,
		staffAttendanceService.WithAutoSave(cfg.Grid.AutoSave),
		staffAttendanceService.WithIdleTTL(cfg.Grid.SessionIdleTTL),
		staffAttendanceService.WithSaveTimeout(cfg.Grid.SaveTimeout),
	)

	scheduler := cron.NewScheduler()
	gridJobs := cron.NewGridSessionJobs(sessionService, cfg.Grid.RefreshInterval, cfg.Grid.EvictInterval)
	if err := gridJobs.RegisterJobs(scheduler); err != nil {
		return err
	}
	scheduler.Start(ctx)

	router := appHTTP.NewRouter(
		appHTTP.RouterConfig{
			AppName:        cfg.App.Name,
			Version:        cfg.App.Version,
			Env:            cfg.App.Env,
			LogLevel:       cfg.SlogLevel(),
			AllowedOrigins: cfg.App.AllowedOrigins,
			EditorRoles:    cfg.App.EditorRoles,
		},
		JWTService,
		appHTTP.NewStaffAttendanceHandler(attendanceService),
		appHTTP.NewGridSessionHandler(sessionService, cfg.Grid.SSEKeepalive),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server running", "addr", server.Addr, "env", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	scheduler.Stop()
	// open sessions get their closing save while the database is still up
	if err := sessionService.Shutdown(shutdownCtx); err != nil {
		slog.Error("Grid sessions did not close cleanly", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("Server stopped gracefully")
	return nil
}
