package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

func createAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var ids [3]uuid.UUID
		for i, f := range []struct{ name, raw string }{
			{"patient_id", req.PatientID},
			{"doctor_id", req.DoctorID},
			{"clinic_id", req.ClinicID},
		} {
			id, err := uuid.Parse(f.raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+f.name, f.name+" must be a valid UUID")
				return
			}
			ids[i] = id
		}

		date, err := scheduling.ParseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		at, err := scheduling.ParseClock(req.AppointmentTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), *actorOf(r), appointment.CreateRequest{
			PatientID: ids[0],
			DoctorID:  ids[1],
			ClinicID:  ids[2],
			Date:      date,
			Time:      at,
			Duration:  req.Duration,
			Reason:    req.Reason,
			Notes:     req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), *actorOf(r), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := toAppointmentResponse(&detail.Appointment)
		resp.History = make([]HistoryResponse, len(detail.History))
		for i, h := range detail.History {
			resp.History[i] = toHistoryResponse(h)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func parseListFilter(r *http.Request) (appointment.ListFilter, error) {
	q := r.URL.Query()
	f := appointment.ListFilter{
		Status:  appointment.Status(q.Get("status")),
		OrderBy: q.Get("order_by"),
		Dir:     q.Get("order_dir"),
	}

	var err error
	if f.DoctorID, err = queryUUID(r, "doctor_id"); err != nil {
		return f, err
	}
	if f.PatientID, err = queryUUID(r, "patient_id"); err != nil {
		return f, err
	}
	if f.ClinicID, err = queryUUID(r, "clinic_id"); err != nil {
		return f, err
	}
	if raw := q.Get("date_from"); raw != "" {
		d, err := scheduling.ParseDate(raw)
		if err != nil {
			return f, err
		}
		f.DateFrom = &d
	}
	if raw := q.Get("date_to"); raw != "" {
		d, err := scheduling.ParseDate(raw)
		if err != nil {
			return f, err
		}
		f.DateTo = &d
	}
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}

	return f, nil
}

func listAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseListFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		items, total, err := svc.ListAppointments(r.Context(), *actorOf(r), f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{
			Data:       toAppointmentResponses(items),
			Pagination: pagination(f.Page, f.Limit, total),
		})
	}
}

// patientAppointmentsHandler serves a patient's history, or with
// ?upcoming=true only the open appointments still ahead.
func patientAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		f, err := parseListFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		upcoming := false
		if raw := r.URL.Query().Get("upcoming"); raw != "" {
			if upcoming, err = strconv.ParseBool(raw); err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "upcoming must be a boolean")
				return
			}
		}

		items, total, err := svc.PatientAppointments(r.Context(), *actorOf(r), id, upcoming, f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{
			Data:       toAppointmentResponses(items),
			Pagination: pagination(f.Page, f.Limit, total),
		})
	}
}

func todayAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseListFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		items, total, err := svc.TodayAppointments(r.Context(), *actorOf(r), f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		limit := f.Limit
		if limit == 0 {
			limit = db.MaxPageSize
		}

		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{
			Data:       toAppointmentResponses(items),
			Pagination: pagination(f.Page, limit, total),
		})
	}
}

func statsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := appointment.StatsFilter{Period: appointment.Period(r.URL.Query().Get("period"))}

		var err error
		if f.ClinicID, err = queryUUID(r, "clinic_id"); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		if f.DoctorID, err = queryUUID(r, "doctor_id"); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		stats, err := svc.Stats(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

func rescheduleAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		date, err := scheduling.ParseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		at, err := scheduling.ParseClock(req.AppointmentTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), *actorOf(r), id, date, at)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// transitionHandler serves the status endpoints; change builds the
// requested move from the request or reports false after writing an error.
func transitionHandler(svc AppointmentService, log *zap.Logger, change func(w http.ResponseWriter, r *http.Request) (appointment.StatusChange, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		c, ok := change(w, r)
		if !ok {
			return
		}

		appt, err := svc.ChangeStatus(r.Context(), *actorOf(r), id, c)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func changeStatusHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return transitionHandler(svc, log, func(w http.ResponseWriter, r *http.Request) (appointment.StatusChange, bool) {
		var req StatusRequest
		if !decodeJSON(w, r, &req) {
			return appointment.StatusChange{}, false
		}
		return appointment.StatusChange{Target: appointment.Status(req.Status), Reason: req.Reason, Notes: req.Notes}, true
	})
}

func confirmAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return transitionHandler(svc, log, func(w http.ResponseWriter, r *http.Request) (appointment.StatusChange, bool) {
		return appointment.StatusChange{Target: appointment.StatusConfirmed}, true
	})
}

// Bodies are optional on cancel and complete.

func cancelAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return transitionHandler(svc, log, func(w http.ResponseWriter, r *http.Request) (appointment.StatusChange, bool) {
		var req CancelRequest
		if !decodeOptionalJSON(w, r, &req) {
			return appointment.StatusChange{}, false
		}
		return appointment.StatusChange{Target: appointment.StatusCancelled, Reason: req.Reason}, true
	})
}

func completeAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return transitionHandler(svc, log, func(w http.ResponseWriter, r *http.Request) (appointment.StatusChange, bool) {
		var req CompleteRequest
		if !decodeOptionalJSON(w, r, &req) {
			return appointment.StatusChange{}, false
		}
		return appointment.StatusChange{Target: appointment.StatusCompleted, Notes: req.Notes}, true
	})
}

func deleteAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteAppointment(r.Context(), *actorOf(r), id); err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
