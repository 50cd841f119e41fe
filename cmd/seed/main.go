package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logger"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

const (
	clinicCount      = 10
	doctorsPerClinic = 6
	patientCount     = 5000
	patientUsers     = 20
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// Weekly template applied to every doctor, Monday to Friday.
var weeklyWindows = []scheduling.Window{
	{Start: scheduling.MustClock("08:00"), End: scheduling.MustClock("12:00")},
	{Start: scheduling.MustClock("14:00"), End: scheduling.MustClock("18:00")},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, log); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	s := &seeder{pool: pool, faker: faker, log: log}

	admin, err := s.user(ctx, auth.RoleAdmin)
	if err != nil {
		log.Fatal("seed admin", zap.Error(err))
	}
	secretary, err := s.user(ctx, auth.RoleSecretary)
	if err != nil {
		log.Fatal("seed secretary", zap.Error(err))
	}

	if err := s.clinics(ctx, clinicCount); err != nil {
		log.Fatal("seed clinics", zap.Error(err))
	}
	patient, err := s.patients(ctx, patientCount, patientUsers)
	if err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	for _, a := range []auth.Actor{admin, secretary, patient} {
		tok, err := tokens.Issue(a)
		if err != nil {
			log.Fatal("issue token", zap.Error(err))
		}
		fmt.Printf("%-9s %s\n%s\n\n", a.Role, a.Email, tok)
	}

	log.Info("seed complete")
}

type seeder struct {
	pool  *pgxpool.Pool
	faker *gofakeit.Faker
	log   *zap.Logger
}

func (s *seeder) user(ctx context.Context, role auth.Role) (auth.Actor, error) {
	a := auth.Actor{ID: uuid.New(), Role: role, Email: strings.ToLower(s.faker.Username()) + "+" + string(role) + "@clinic.test"}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.Email, s.faker.FirstName(), s.faker.LastName(), string(role))
	if err != nil {
		return auth.Actor{}, err
	}
	return a, nil
}

func (s *seeder) clinics(ctx context.Context, count int) error {
	s.log.Info("seeding clinics", zap.Int("clinics", count), zap.Int("doctors_per_clinic", doctorsPerClinic))

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var schedules [][]any

		for i := 0; i < count; i++ {
			clinicID := uuid.New()
			addr := s.faker.Address()

			_, err := tx.Exec(ctx, `
				INSERT INTO clinics (id, name, address, phone, email, city, state, postal_code, opening_hours)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, clinicID, s.faker.Company()+" Clinic", addr.Street, s.faker.Phone(), s.faker.Email(),
				addr.City, addr.State, addr.Zip, "Mon-Fri 08:00-18:00")
			if err != nil {
				return fmt.Errorf("insert clinic: %w", err)
			}

			for j := 0; j < doctorsPerClinic; j++ {
				doctorID := uuid.New()
				duration := []int{15, 20, 30, 45}[s.faker.Number(0, 3)]

				_, err := tx.Exec(ctx, `
					INSERT INTO doctors (id, clinic_id, name, specialty, license_number, consultation_duration)
					VALUES ($1, $2, $3, $4, $5, $6)
				`, doctorID, clinicID, "Dr. "+s.faker.Name(), specialties[s.faker.Number(0, len(specialties)-1)],
					s.faker.Regex("MP-[0-9]{6}")+"-"+doctorID.String()[:4], duration)
				if err != nil {
					return fmt.Errorf("insert doctor: %w", err)
				}

				for day := scheduling.Monday; day <= scheduling.Friday; day++ {
					for _, w := range weeklyWindows {
						schedules = append(schedules, []any{doctorID, int16(day), clock(w.Start), clock(w.End), true})
					}
				}
			}
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"doctor_schedules"},
			[]string{"doctor_id", "day_of_week", "start_time", "end_time", "is_active"},
			pgx.CopyFromRows(schedules),
		)
		if err != nil {
			return fmt.Errorf("copy schedules: %w", err)
		}
		return nil
	})
}

// patients inserts count patients; the first withUsers get a login and the
// first of those is returned for the printed token.
func (s *seeder) patients(ctx context.Context, count, withUsers int) (auth.Actor, error) {
	s.log.Info("seeding patients", zap.Int("patients", count))

	var first auth.Actor
	for i := 0; i < withUsers; i++ {
		a, err := s.user(ctx, auth.RolePatient)
		if err != nil {
			return auth.Actor{}, err
		}
		if i == 0 {
			first = a
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO patients (id, user_id, name, email, phone, birth_date)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), a.ID, s.faker.Name(), a.Email, s.faker.Phone(), s.faker.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0)))
		if err != nil {
			return auth.Actor{}, fmt.Errorf("insert patient user: %w", err)
		}
	}

	rows := make([][]any, 0, count)
	for i := 0; i < count; i++ {
		rows = append(rows, []any{uuid.New(), s.faker.Name(), s.faker.Email(), s.faker.Phone()})
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"patients"},
		[]string{"id", "name", "email", "phone"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return auth.Actor{}, fmt.Errorf("copy patients: %w", err)
	}

	s.log.Info("patients seeded", zap.Int64("rows", n), zap.Int("with_login", withUsers))
	return first, nil
}

func clock(c scheduling.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: c.Duration().Microseconds(), Valid: true}
}
