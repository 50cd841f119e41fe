package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

// AppointmentService is the part of appointment.Service the handlers use.
type AppointmentService interface {
	GetAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time, duration int) (*appointment.Availability, error)
	CreateAppointment(ctx context.Context, actor auth.Actor, req appointment.CreateRequest) (*appointment.Appointment, error)
	RescheduleAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID, date time.Time, at scheduling.Clock) (*appointment.Appointment, error)
	ChangeStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, change appointment.StatusChange) (*appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) error
	GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListAppointments(ctx context.Context, actor auth.Actor, f appointment.ListFilter) ([]appointment.Appointment, int, error)
	TodayAppointments(ctx context.Context, actor auth.Actor, f appointment.ListFilter) ([]appointment.Appointment, int, error)
	PatientAppointments(ctx context.Context, actor auth.Actor, patientID uuid.UUID, upcoming bool, f appointment.ListFilter) ([]appointment.Appointment, int, error)
	Stats(ctx context.Context, f appointment.StatsFilter) (*appointment.Stats, error)
	ClinicStats(ctx context.Context, clinicID uuid.UUID) (*appointment.ClinicStats, error)
	GetSchedule(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Entry, error)
	ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []scheduling.Entry) ([]scheduling.Entry, error)
}

// Directory is the read side of clinics and doctors.
type Directory interface {
	GetClinic(ctx context.Context, id uuid.UUID) (*directory.Clinic, error)
	ListClinics(ctx context.Context, f directory.ClinicFilter) ([]directory.Clinic, int, error)
	ListCities(ctx context.Context) ([]string, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
	ListDoctors(ctx context.Context, f directory.DoctorFilter) ([]directory.Doctor, int, error)
	ListDoctorsByClinic(ctx context.Context, clinicID uuid.UUID) ([]directory.Doctor, error)
	ListSpecialties(ctx context.Context) ([]string, error)
}

type RouterConfig struct {
	Service   AppointmentService
	Directory Directory
	Tokens    *auth.TokenManager
	Logger    *zap.Logger
	Postgres  Pinger
	Redis     Pinger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	log := cfg.Logger

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public reads, richer for staff
	r.Group(func(r chi.Router) {
		r.Use(cfg.Tokens.OptionalAuth)

		r.Get("/clinics", listClinicsHandler(cfg.Directory, log))
		r.Get("/clinics/cities", listCitiesHandler(cfg.Directory, log))
		r.Get("/clinics/{id}", getClinicHandler(cfg.Directory, log))
		r.Get("/doctors", listDoctorsHandler(cfg.Directory, log))
		r.Get("/doctors/specialties", listSpecialtiesHandler(cfg.Directory, log))
		r.Get("/doctors/{id}", getDoctorHandler(cfg.Directory, cfg.Service, log))
		r.Get("/doctors/{id}/availability", availabilityHandler(cfg.Service, log))
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.Tokens.Authenticate)

		r.With(auth.RequireStaff).Get("/doctors/{id}/schedules", getScheduleHandler(cfg.Service, log))
		r.With(auth.RequireStaff).Put("/doctors/{id}/schedules", replaceScheduleHandler(cfg.Service, log))
		r.With(auth.RequireStaff).Get("/clinics/{id}/stats", clinicStatsHandler(cfg.Service, log))
		r.Get("/patients/{id}/appointments", patientAppointmentsHandler(cfg.Service, log))

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", listAppointmentsHandler(cfg.Service, log))
			r.Post("/", createAppointmentHandler(cfg.Service, log))
			r.With(auth.RequireStaff).Get("/today", todayAppointmentsHandler(cfg.Service, log))
			r.With(auth.RequireStaff).Get("/stats", statsHandler(cfg.Service, log))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getAppointmentHandler(cfg.Service, log))
				r.Put("/reschedule", rescheduleAppointmentHandler(cfg.Service, log))
				r.Post("/status", changeStatusHandler(cfg.Service, log))
				r.Post("/cancel", cancelAppointmentHandler(cfg.Service, log))
				r.With(auth.RequireStaff).Post("/confirm", confirmAppointmentHandler(cfg.Service, log))
				r.With(auth.RequireStaff).Post("/complete", completeAppointmentHandler(cfg.Service, log))
				r.With(auth.RequireStaff).Delete("/", deleteAppointmentHandler(cfg.Service, log))
			})
		})
	})

	return r
}
