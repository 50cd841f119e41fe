package directory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrClinicNotFound  = fmt.Errorf("clinic %w", ErrNotFound)
	ErrDoctorNotFound  = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound = fmt.Errorf("patient %w", ErrNotFound)
)

type Clinic struct {
	ID           uuid.UUID
	Name         string
	Address      string
	Phone        string
	Email        *string
	City         string
	State        string
	PostalCode   *string
	OpeningHours string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Doctor struct {
	ID                   uuid.UUID
	UserID               *uuid.UUID
	ClinicID             uuid.UUID
	Name                 string
	Specialty            string
	LicenseNumber        string
	ConsultationDuration int
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Patient struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	BirthDate *time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether the patient record belongs to the given user account.
func (p *Patient) OwnedBy(userID uuid.UUID) bool {
	return p.UserID != nil && *p.UserID == userID
}

type ClinicFilter struct {
	City    string
	Search  string
	OrderBy string
	Dir     string
	Page    int
	Limit   int
}

type DoctorFilter struct {
	ClinicID  *uuid.UUID
	Specialty string
	Search    string // name or license number
	OrderBy   string // name, specialty, consultation_duration, created_at
	Dir       string
	Page      int
	Limit     int
}
