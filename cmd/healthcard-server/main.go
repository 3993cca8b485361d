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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthcard/healthcard/internal/config"
	"github.com/healthcard/healthcard/internal/domain/appointment"
	"github.com/healthcard/healthcard/internal/domain/audit"
	"github.com/healthcard/healthcard/internal/domain/identity"
	"github.com/healthcard/healthcard/internal/domain/notification"
	"github.com/healthcard/healthcard/internal/domain/record"
	"github.com/healthcard/healthcard/internal/platform/auth"
	"github.com/healthcard/healthcard/internal/platform/db"
	platformmw "github.com/healthcard/healthcard/internal/platform/middleware"
)

func main() {
	root := &cobra.Command{
		Use:   "healthcard-server",
		Short: "HealthCard digital health record API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("applied %d migration(s)\n", count)
				return nil
			})
		},
	})
	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied " + s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Printf("%03d %-30s %s\n", s.Version, s.Name, state)
				}
				return nil
			})
		},
	})

	root.AddCommand(serve, migrate)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runMigrate(fn func(context.Context, *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, "migrations"))
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	// repositories
	userRepo := identity.NewUserRepoPG(pool)
	patientRepo := identity.NewPatientRepoPG(pool)
	doctorRepo := identity.NewDoctorRepoPG(pool)
	auditRepo := audit.NewEntryRepoPG(pool)
	notificationRepo := notification.NewNotificationRepoPG(pool)
	emailRepo := notification.NewEmailRepoPG(pool)
	appointmentRepo := appointment.NewRepoPG(pool)
	recordRepo := record.NewRecordRepoPG(pool)
	prescriptionRepo := record.NewPrescriptionRepoPG(pool)

	// services
	recorder := audit.NewRecorder(auditRepo, logger)
	notifier := notification.NewNotifier(notificationRepo, emailRepo, logger)
	identitySvc := identity.NewService(userRepo, patientRepo, doctorRepo, recorder, cfg.JWTSecret)
	auditSvc := audit.NewService(auditRepo, identitySvc)

	directory := &directoryAdapter{users: userRepo, patients: patientRepo, doctors: doctorRepo}
	scheduler := notification.NewScheduler(notifier,
		&reminderSourceAdapter{appointments: appointmentRepo, directory: directory}, logger)
	appointmentSvc := appointment.NewService(appointmentRepo, directory, recorder, notifier, scheduler)
	recordSvc := record.NewService(recordRepo, prescriptionRepo, directory, recorder, notifier)

	dispatcher := notification.NewDispatcher(notificationRepo, logger)
	dispatcher.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(platformmw.Recovery(logger))
	e.Use(platformmw.RequestID())
	e.Use(platformmw.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/health", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	identityHandler := identity.NewHandler(identitySvc)

	public := e.Group("/api/v1")
	identityHandler.RegisterPublicRoutes(public)

	api := e.Group("/api/v1", auth.JWTMiddleware(cfg.JWTSecret))
	identityHandler.RegisterRoutes(api)
	audit.NewHandler(auditSvc).RegisterRoutes(api)
	notification.NewHandler(notifier).RegisterRoutes(api)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(api)
	record.NewHandler(recordSvc).RegisterRoutes(api)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// directoryAdapter exposes identity lookups to the appointment and record
// domains without those packages importing identity.
type directoryAdapter struct {
	users    identity.UserRepository
	patients identity.PatientRepository
	doctors  identity.DoctorRepository
}

func (d *directoryAdapter) Patient(ctx context.Context, patientID uuid.UUID) (*appointment.Participant, error) {
	p, err := d.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	u, err := d.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return &appointment.Participant{ProfileID: p.ID, UserID: u.ID, Name: u.Name, Email: u.Email}, nil
}

func (d *directoryAdapter) Doctor(ctx context.Context, doctorID uuid.UUID) (*appointment.Participant, error) {
	doc, err := d.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	u, err := d.users.GetByID(ctx, doc.UserID)
	if err != nil {
		return nil, err
	}
	return &appointment.Participant{ProfileID: doc.ID, UserID: u.ID, Name: u.Name, Email: u.Email}, nil
}

func (d *directoryAdapter) PatientInfo(ctx context.Context, patientID uuid.UUID) (*record.PatientInfo, error) {
	p, err := d.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return &record.PatientInfo{UserID: p.UserID, Name: p.Name, Email: p.Email}, nil
}

func (d *directoryAdapter) PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	p, err := d.patients.GetByUserID(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

func (d *directoryAdapter) DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	doc, err := d.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return doc.ID, nil
}

// reminderSourceAdapter resolves an appointment's participants for the
// reminder scheduler.
type reminderSourceAdapter struct {
	appointments appointment.Repository
	directory    *directoryAdapter
}

func (r *reminderSourceAdapter) ReminderInfo(ctx context.Context, appointmentID uuid.UUID) (*notification.ReminderInfo, error) {
	a, err := r.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	patient, err := r.directory.Patient(ctx, a.PatientID)
	if err != nil {
		return nil, err
	}
	doctor, err := r.directory.Doctor(ctx, a.DoctorID)
	if err != nil {
		return nil, err
	}
	return &notification.ReminderInfo{
		PatientUserID:   patient.UserID,
		PatientName:     patient.Name,
		PatientEmail:    patient.Email,
		DoctorName:      doctor.Name,
		AppointmentType: a.Type,
	}, nil
}
