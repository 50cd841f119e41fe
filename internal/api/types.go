package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	DoctorID        string `json:"doctor_id"`
	ClinicID        string `json:"clinic_id"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Duration        int    `json:"duration,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
}

type StatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CompleteRequest struct {
	Notes string `json:"notes,omitempty"`
}

type ScheduleEntryRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

type ReplaceScheduleRequest struct {
	Schedules []ScheduleEntryRequest `json:"schedules"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID         `json:"id"`
	PatientID          uuid.UUID         `json:"patient_id"`
	DoctorID           uuid.UUID         `json:"doctor_id"`
	ClinicID           uuid.UUID         `json:"clinic_id"`
	AppointmentDate    string            `json:"appointment_date"`
	AppointmentTime    scheduling.Clock  `json:"appointment_time"`
	Duration           int               `json:"duration"`
	Status             string            `json:"status"`
	Reason             string            `json:"reason"`
	Notes              string            `json:"notes"`
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	CreatedBy          *uuid.UUID        `json:"created_by,omitempty"`
	CancelledBy        *uuid.UUID        `json:"cancelled_by,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	History            []HistoryResponse `json:"history,omitempty"`
}

type HistoryResponse struct {
	PreviousStatus *string    `json:"previous_status"`
	NewStatus      string     `json:"new_status"`
	Reason         string     `json:"reason"`
	ChangedBy      *uuid.UUID `json:"changed_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DoctorResponse carries the weekly schedule only for staff.
type DoctorResponse struct {
	directory.DoctorView
	Schedules []scheduling.Entry `json:"schedules,omitempty"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID         `json:"doctor_id"`
	Date     string            `json:"date"`
	Duration int               `json:"duration"`
	Slots    []scheduling.Slot `json:"slots"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type ListResponse[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		DoctorID:           a.DoctorID,
		ClinicID:           a.ClinicID,
		AppointmentDate:    a.Date.Format(scheduling.DateLayout),
		AppointmentTime:    a.Time,
		Duration:           a.Duration,
		Status:             string(a.Status),
		Reason:             a.Reason,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CreatedBy:          a.CreatedBy,
		CancelledBy:        a.CancelledBy,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentResponses(items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(items))
	for i := range items {
		out[i] = toAppointmentResponse(&items[i])
	}
	return out
}

func toHistoryResponse(h appointment.HistoryEntry) HistoryResponse {
	resp := HistoryResponse{
		NewStatus: string(h.NewStatus),
		Reason:    h.Reason,
		ChangedBy: h.ChangedBy,
		CreatedAt: h.CreatedAt,
	}
	if h.PreviousStatus != nil {
		prev := string(*h.PreviousStatus)
		resp.PreviousStatus = &prev
	}
	return resp
}
