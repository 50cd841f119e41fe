package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

func listClinicsHandler(dir Directory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := directory.ClinicFilter{
			City:    q.Get("city"),
			Search:  q.Get("search"),
			OrderBy: q.Get("order_by"),
			Dir:     q.Get("order_dir"),
		}

		var err error
		if f.Page, err = queryInt(r, "page"); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		if f.Limit, err = queryInt(r, "limit"); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		clinics, total, err := dir.ListClinics(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		actor := actorOf(r)
		views := make([]directory.ClinicView, len(clinics))
		for i, c := range clinics {
			views[i] = directory.ProjectClinic(c, actor)
		}

		writeJSON(w, http.StatusOK, ListResponse[directory.ClinicView]{
			Data:       views,
			Pagination: pagination(f.Page, f.Limit, total),
		})
	}
}

func getClinicHandler(dir Directory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		clinic, err := dir.GetClinic(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		doctors, err := dir.ListDoctorsByClinic(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		view := directory.ProjectClinic(*clinic, actorOf(r))
		view.Doctors = make([]directory.DoctorSummary, len(doctors))
		for i, d := range doctors {
			view.Doctors[i] = directory.SummarizeDoctor(d)
		}

		writeJSON(w, http.StatusOK, view)
	}
}

func listCitiesHandler(dir Directory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cities, err := dir.ListCities(r.Context())
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if cities == nil {
			cities = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"cities": cities})
	}
}

func listDoctorsHandler(dir Directory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := directory.DoctorFilter{
			Specialty: q.Get("specialty"),
			Search:    q.Get("search"),
			OrderBy:   q.Get("order_by"),
			Dir:       q.Get("order_dir"),
		}

		var err error
		if f.ClinicID, err = queryUUID(r, "clinic_id"); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		if f.Page, err = queryInt(r, "page"); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		if f.Limit, err = queryInt(r, "limit"); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		doctors, total, err := dir.ListDoctors(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		actor := actorOf(r)
		views := make([]directory.DoctorView, len(doctors))
		for i, d := range doctors {
			views[i] = directory.ProjectDoctor(d, actor)
		}

		writeJSON(w, http.StatusOK, ListResponse[directory.DoctorView]{
			Data:       views,
			Pagination: pagination(f.Page, f.Limit, total),
		})
	}
}

func listSpecialtiesHandler(dir Directory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialties, err := dir.ListSpecialties(r.Context())
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if specialties == nil {
			specialties = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"specialties": specialties})
	}
}

func getDoctorHandler(dir Directory, svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		doctor, err := dir.GetDoctor(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		actor := actorOf(r)
		resp := DoctorResponse{DoctorView: directory.ProjectDoctor(*doctor, actor)}
		if actor != nil && actor.IsStaff() {
			if resp.Schedules, err = svc.GetSchedule(r.Context(), id); err != nil {
				writeServiceError(w, r, log, err)
				return
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func clinicStatsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		stats, err := svc.ClinicStats(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

func availabilityHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		rawDate := r.URL.Query().Get("date")
		if rawDate == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "date is required")
			return
		}
		date, err := scheduling.ParseDate(rawDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		duration, err := queryInt(r, "duration")
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		av, err := svc.GetAvailability(r.Context(), id, date, duration)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID: av.DoctorID,
			Date:     av.Date.Format(scheduling.DateLayout),
			Duration: av.Duration,
			Slots:    av.Slots,
		})
	}
}

func getScheduleHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		entries, err := svc.GetSchedule(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"doctor_id": id, "schedules": entries})
	}
}

func replaceScheduleHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}

		var req ReplaceScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		entries := make([]scheduling.Entry, len(req.Schedules))
		for i, s := range req.Schedules {
			start, err := scheduling.ParseClock(s.StartTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", err.Error())
				return
			}
			end, err := scheduling.ParseClock(s.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", err.Error())
				return
			}

			active := true
			if s.IsActive != nil {
				active = *s.IsActive
			}
			entries[i] = scheduling.Entry{
				DoctorID:  id,
				DayOfWeek: scheduling.Weekday(s.DayOfWeek),
				Start:     start,
				End:       end,
				Active:    active,
			}
		}

		saved, err := svc.ReplaceSchedule(r.Context(), id, entries)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"doctor_id": id, "schedules": saved})
	}
}
