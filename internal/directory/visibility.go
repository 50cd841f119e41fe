package directory

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

// ClinicView is the JSON shape of a clinic. Staff-only fields are pointers
// so they vanish from the payload when masked.
type ClinicView struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	Phone        string     `json:"phone"`
	City         string     `json:"city"`
	State        string     `json:"state"`
	OpeningHours string     `json:"opening_hours"`
	Email        *string    `json:"email,omitempty"`
	PostalCode   *string    `json:"postal_code,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`

	Doctors []DoctorSummary `json:"doctors,omitempty"`
}

type DoctorSummary struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	Specialty            string    `json:"specialty"`
	ConsultationDuration int       `json:"consultation_duration"`
}

// ProjectClinic renders the full clinic and then masks what the caller's
// role may not see. Anonymous callers get the public view.
func ProjectClinic(c Clinic, actor *auth.Actor) ClinicView {
	v := ClinicView{
		ID:           c.ID,
		Name:         c.Name,
		Address:      c.Address,
		Phone:        c.Phone,
		City:         c.City,
		State:        c.State,
		OpeningHours: c.OpeningHours,
		Email:        c.Email,
		PostalCode:   c.PostalCode,
		CreatedAt:    &c.CreatedAt,
		UpdatedAt:    &c.UpdatedAt,
	}

	if actor == nil || !actor.IsStaff() {
		v.Email = nil
		v.PostalCode = nil
		v.CreatedAt = nil
		v.UpdatedAt = nil
	}

	return v
}

func SummarizeDoctor(d Doctor) DoctorSummary {
	return DoctorSummary{
		ID:                   d.ID,
		Name:                 d.Name,
		Specialty:            d.Specialty,
		ConsultationDuration: d.ConsultationDuration,
	}
}

// DoctorView is the JSON shape of a doctor. The license number and account
// link are for staff only.
type DoctorView struct {
	ID                   uuid.UUID  `json:"id"`
	ClinicID             uuid.UUID  `json:"clinic_id"`
	Name                 string     `json:"name"`
	Specialty            string     `json:"specialty"`
	ConsultationDuration int        `json:"consultation_duration"`
	LicenseNumber        *string    `json:"license_number,omitempty"`
	UserID               *uuid.UUID `json:"user_id,omitempty"`
	CreatedAt            *time.Time `json:"created_at,omitempty"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

func ProjectDoctor(d Doctor, actor *auth.Actor) DoctorView {
	v := DoctorView{
		ID:                   d.ID,
		ClinicID:             d.ClinicID,
		Name:                 d.Name,
		Specialty:            d.Specialty,
		ConsultationDuration: d.ConsultationDuration,
	}
	if actor != nil && actor.IsStaff() {
		v.LicenseNumber = &d.LicenseNumber
		v.UserID = d.UserID
		v.CreatedAt = &d.CreatedAt
		v.UpdatedAt = &d.UpdatedAt
	}
	return v
}
