package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

// stubService answers every call with err, or a canned appointment.
type stubService struct {
	err       error
	lastActor auth.Actor
	lastReq   appointment.CreateRequest
	lastMove  appointment.StatusChange
	entries   []scheduling.Entry

	lastPatient  uuid.UUID
	lastUpcoming bool
}

func (s *stubService) appt() *appointment.Appointment {
	return &appointment.Appointment{
		ID:       uuid.New(),
		Date:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Time:     scheduling.MustClock("08:00"),
		Duration: 30,
		Status:   appointment.StatusScheduled,
	}
}

func (s *stubService) GetAvailability(_ context.Context, doctorID uuid.UUID, date time.Time, duration int) (*appointment.Availability, error) {
	if s.err != nil {
		return nil, s.err
	}
	if duration == 0 {
		duration = 30
	}
	return &appointment.Availability{
		DoctorID: doctorID,
		Date:     date,
		Duration: duration,
		Slots:    []scheduling.Slot{{Time: scheduling.MustClock("08:30"), Duration: duration}},
	}, nil
}

func (s *stubService) CreateAppointment(_ context.Context, actor auth.Actor, req appointment.CreateRequest) (*appointment.Appointment, error) {
	s.lastActor, s.lastReq = actor, req
	if s.err != nil {
		return nil, s.err
	}
	a := s.appt()
	a.PatientID, a.DoctorID, a.ClinicID, a.Date, a.Time = req.PatientID, req.DoctorID, req.ClinicID, req.Date, req.Time
	return a, nil
}

func (s *stubService) RescheduleAppointment(_ context.Context, actor auth.Actor, _ uuid.UUID, date time.Time, at scheduling.Clock) (*appointment.Appointment, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	a := s.appt()
	a.Date, a.Time = date, at
	return a, nil
}

func (s *stubService) ChangeStatus(_ context.Context, actor auth.Actor, _ uuid.UUID, change appointment.StatusChange) (*appointment.Appointment, error) {
	s.lastActor, s.lastMove = actor, change
	if s.err != nil {
		return nil, s.err
	}
	a := s.appt()
	a.Status = change.Target
	return a, nil
}

func (s *stubService) DeleteAppointment(_ context.Context, actor auth.Actor, _ uuid.UUID) error {
	s.lastActor = actor
	return s.err
}

func (s *stubService) GetAppointment(_ context.Context, actor auth.Actor, id uuid.UUID) (*appointment.AppointmentDetail, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	a := s.appt()
	a.ID = id
	return &appointment.AppointmentDetail{
		Appointment: *a,
		History:     []appointment.HistoryEntry{{AppointmentID: id, NewStatus: appointment.StatusScheduled, Reason: "Appointment created"}},
	}, nil
}

func (s *stubService) ListAppointments(_ context.Context, actor auth.Actor, _ appointment.ListFilter) ([]appointment.Appointment, int, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, 0, s.err
	}
	return []appointment.Appointment{*s.appt()}, 21, nil
}

func (s *stubService) TodayAppointments(ctx context.Context, actor auth.Actor, f appointment.ListFilter) ([]appointment.Appointment, int, error) {
	return s.ListAppointments(ctx, actor, f)
}

func (s *stubService) PatientAppointments(ctx context.Context, actor auth.Actor, patientID uuid.UUID, upcoming bool, f appointment.ListFilter) ([]appointment.Appointment, int, error) {
	s.lastPatient, s.lastUpcoming = patientID, upcoming
	return s.ListAppointments(ctx, actor, f)
}

func (s *stubService) ClinicStats(_ context.Context, clinicID uuid.UUID) (*appointment.ClinicStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &appointment.ClinicStats{ClinicID: clinicID, Doctors: 2, Today: 1}, nil
}

func (s *stubService) Stats(_ context.Context, _ appointment.StatsFilter) (*appointment.Stats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &appointment.Stats{Total: 3, Scheduled: 3}, nil
}

func (s *stubService) GetSchedule(_ context.Context, _ uuid.UUID) ([]scheduling.Entry, error) {
	return s.entries, s.err
}

func (s *stubService) ReplaceSchedule(_ context.Context, _ uuid.UUID, entries []scheduling.Entry) ([]scheduling.Entry, error) {
	s.entries = entries
	return entries, s.err
}

type stubDirectory struct {
	clinic     directory.Clinic
	doctor     directory.Doctor
	lastFilter directory.DoctorFilter
}

func (d *stubDirectory) GetClinic(_ context.Context, id uuid.UUID) (*directory.Clinic, error) {
	if id != d.clinic.ID {
		return nil, directory.ErrClinicNotFound
	}
	c := d.clinic
	return &c, nil
}

func (d *stubDirectory) ListClinics(_ context.Context, _ directory.ClinicFilter) ([]directory.Clinic, int, error) {
	return []directory.Clinic{d.clinic}, 1, nil
}

func (d *stubDirectory) ListDoctorsByClinic(_ context.Context, clinicID uuid.UUID) ([]directory.Doctor, error) {
	return []directory.Doctor{{ID: uuid.New(), ClinicID: clinicID, Name: "Dr. Ruiz", ConsultationDuration: 20}}, nil
}

func (d *stubDirectory) ListCities(context.Context) ([]string, error) {
	return []string{"Córdoba", "Rosario"}, nil
}

func (d *stubDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	if id != d.doctor.ID {
		return nil, directory.ErrDoctorNotFound
	}
	doc := d.doctor
	return &doc, nil
}

func (d *stubDirectory) ListDoctors(_ context.Context, f directory.DoctorFilter) ([]directory.Doctor, int, error) {
	d.lastFilter = f
	return []directory.Doctor{d.doctor}, 1, nil
}

func (d *stubDirectory) ListSpecialties(context.Context) ([]string, error) {
	return nil, nil
}

type testServer struct {
	handler http.Handler
	svc     *stubService
	dir     *stubDirectory
	tokens  *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	email := "info@clinic.test"
	ts := &testServer{
		svc:    &stubService{},
		dir: &stubDirectory{
			clinic: directory.Clinic{ID: uuid.New(), Name: "Centro", Email: &email, IsActive: true},
			doctor: directory.Doctor{ID: uuid.New(), Name: "Dra. Paz", Specialty: "Cardiology", LicenseNumber: "MP-77", ConsultationDuration: 30, IsActive: true},
		},
		tokens: auth.NewTokenManager("test-secret", "test", "test-app", time.Hour),
	}
	ts.handler = NewRouter(RouterConfig{
		Service:   ts.svc,
		Directory: ts.dir,
		Tokens:    ts.tokens,
		Logger:    zap.NewNop(),
		Postgres:  PingFunc(func(context.Context) error { return nil }),
		Redis:     PingFunc(func(context.Context) error { return nil }),
		Env:       "test",
		Version:   "dev",
	})
	return ts
}

func (ts *testServer) token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := ts.tokens.Issue(auth.Actor{ID: uuid.New(), Role: role})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", "", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("live: %d, request id %q", rec.Code, rec.Header().Get("X-Request-ID"))
	}

	down := PingFunc(func(context.Context) error { return errors.New("down") })
	up := PingFunc(func(context.Context) error { return nil })

	cases := []struct {
		name       string
		pg, rd     Pinger
		wantCode   int
		wantStatus string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(tc.pg, tc.rd, "test", "dev")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			resp := decodeBody[ReadinessResponse](t, rec)
			if rec.Code != tc.wantCode || resp.Status != tc.wantStatus {
				t.Fatalf("got %d %q, want %d %q", rec.Code, resp.Status, tc.wantCode, tc.wantStatus)
			}
		})
	}
}

func TestCreateAppointment(t *testing.T) {
	ts := newTestServer(t)
	body := fmt.Sprintf(`{"patient_id":%q,"doctor_id":%q,"clinic_id":%q,"appointment_date":"2024-01-01","appointment_time":"08:15","reason":"checkup"}`,
		uuid.New(), uuid.New(), ts.dir.clinic.ID)

	if rec := ts.do(t, http.MethodPost, "/appointments", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: %d", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/appointments", ts.token(t, auth.RolePatient), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	resp := decodeBody[map[string]any](t, rec)
	if resp["appointment_time"] != "08:15" || resp["appointment_date"] != "2024-01-01" || resp["status"] != "scheduled" {
		t.Errorf("response = %v", resp)
	}
	if ts.svc.lastActor.Role != auth.RolePatient || ts.svc.lastReq.Reason != "checkup" {
		t.Errorf("service saw actor %+v request %+v", ts.svc.lastActor, ts.svc.lastReq)
	}

	bad := strings.Replace(body, "08:15", "8h15", 1)
	if rec := ts.do(t, http.MethodPost, "/appointments", ts.token(t, auth.RoleAdmin), bad); rec.Code != http.StatusBadRequest {
		t.Errorf("bad time: %d", rec.Code)
	}

	bad = strings.Replace(body, `"patient_id":"`, `"patient_id":"x`, 1)
	rec = ts.do(t, http.MethodPost, "/appointments", ts.token(t, auth.RoleAdmin), bad)
	if rec.Code != http.StatusBadRequest || decodeBody[ErrorResponse](t, rec).Error != "invalid_patient_id" {
		t.Errorf("bad patient id: %d", rec.Code)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("load: %w", directory.ErrDoctorNotFound), http.StatusNotFound, "not_found"},
		{appointment.ErrInvalidRelationship, http.StatusUnprocessableEntity, "invalid_relationship"},
		{fmt.Errorf("create appointment: %w", appointment.ErrSlotUnavailable), http.StatusConflict, "slot_unavailable"},
		{fmt.Errorf("%w: %w", appointment.ErrSlotUnavailable, appointment.ErrConcurrencyConflict), http.StatusConflict, "slot_unavailable"},
		{appointment.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
		{fmt.Errorf("create appointment: %w: %w", appointment.ErrConcurrencyConflict, errors.New("lock not acquired")), http.StatusConflict, "concurrency_conflict"},
		{&appointment.TransitionError{From: appointment.StatusCompleted, To: appointment.StatusCancelled}, http.StatusConflict, "invalid_transition"},
		{&appointment.ValidationError{Field: "duration", Message: "must be positive"}, http.StatusBadRequest, "validation_error"},
		{scheduling.ErrInvalidWindow, http.StatusBadRequest, "validation_error"},
		{appointment.ErrForbidden, http.StatusForbidden, "forbidden"},
		{appointment.ErrNotDeletable, http.StatusConflict, "not_deletable"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.wantErr, func(t *testing.T) {
			ts := newTestServer(t)
			ts.svc.err = tc.err

			rec := ts.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", ts.token(t, auth.RoleSecretary), "")
			resp := decodeBody[ErrorResponse](t, rec)
			if rec.Code != tc.wantCode || resp.Error != tc.wantErr {
				t.Fatalf("%v -> %d %q, want %d %q", tc.err, rec.Code, resp.Error, tc.wantCode, tc.wantErr)
			}
			if tc.wantCode == http.StatusInternalServerError && strings.Contains(resp.Details, "connection reset") {
				t.Errorf("internal error leaked: %q", resp.Details)
			}
		})
	}
}

func TestStatusEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.NewString()
	staff := ts.token(t, auth.RoleSecretary)
	patient := ts.token(t, auth.RolePatient)

	rec := ts.do(t, http.MethodPost, "/appointments/"+id+"/cancel", patient, `{"reason":"travel"}`)
	if rec.Code != http.StatusOK || ts.svc.lastMove.Target != appointment.StatusCancelled || ts.svc.lastMove.Reason != "travel" {
		t.Fatalf("patient cancel: %d %+v", rec.Code, ts.svc.lastMove)
	}

	if rec := ts.do(t, http.MethodPost, "/appointments/"+id+"/confirm", patient, ""); rec.Code != http.StatusForbidden {
		t.Errorf("patient confirm: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/appointments/"+id+"/complete", staff, `{"notes":"ok"}`)
	if rec.Code != http.StatusOK || ts.svc.lastMove.Target != appointment.StatusCompleted || ts.svc.lastMove.Notes != "ok" {
		t.Errorf("complete: %d %+v", rec.Code, ts.svc.lastMove)
	}

	rec = ts.do(t, http.MethodPost, "/appointments/"+id+"/status", staff, `{"status":"confirmed"}`)
	if rec.Code != http.StatusOK || ts.svc.lastMove.Target != appointment.StatusConfirmed {
		t.Errorf("status: %d %+v", rec.Code, ts.svc.lastMove)
	}

	rec = ts.do(t, http.MethodPut, "/appointments/"+id+"/reschedule", patient, `{"appointment_date":"2024-01-08","appointment_time":"09:00"}`)
	if rec.Code != http.StatusOK || decodeBody[map[string]any](t, rec)["appointment_time"] != "09:00" {
		t.Errorf("reschedule: %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodDelete, "/appointments/"+id, patient, ""); rec.Code != http.StatusForbidden {
		t.Errorf("patient delete: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/appointments/"+id, staff, ""); rec.Code != http.StatusNoContent {
		t.Errorf("staff delete: %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodGet, "/appointments/not-a-uuid", staff, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", rec.Code)
	}
}

func TestOptionalBodies(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.NewString()
	staff := ts.token(t, auth.RoleSecretary)

	for _, action := range []string{"cancel", "complete"} {
		t.Run(action+" chunked empty body", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/appointments/"+id+"/"+action, nil)
			req.Body = io.NopCloser(strings.NewReader(""))
			req.ContentLength = -1
			req.TransferEncoding = []string{"chunked"}
			req.Header.Set("Authorization", "Bearer "+staff)

			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("%s: %d %s", action, rec.Code, rec.Body.String())
			}
		})

		t.Run(action+" malformed body", func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/appointments/"+id+"/"+action, staff, `{"reason":`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("%s: %d", action, rec.Code)
			}
		})
	}

	if ts.svc.lastMove.Reason != "" || ts.svc.lastMove.Notes != "" {
		t.Errorf("empty bodies produced %+v", ts.svc.lastMove)
	}
}

func TestGetAndListAppointments(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, auth.RoleAdmin)

	rec := ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), staff, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	detail := decodeBody[AppointmentResponse](t, rec)
	if len(detail.History) != 1 || detail.History[0].PreviousStatus != nil {
		t.Errorf("history = %+v", detail.History)
	}

	rec = ts.do(t, http.MethodGet, "/appointments?page=2&limit=10&status=scheduled", staff, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}
	list := decodeBody[ListResponse[AppointmentResponse]](t, rec)
	if list.Pagination != (Pagination{Page: 2, Limit: 10, Total: 21, TotalPages: 3}) {
		t.Errorf("pagination = %+v", list.Pagination)
	}

	if rec := ts.do(t, http.MethodGet, "/appointments?doctor_id=nope", staff, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad filter: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/appointments/today", ts.token(t, auth.RolePatient), ""); rec.Code != http.StatusForbidden {
		t.Errorf("patient today: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/appointments/stats?period=week", staff, ""); rec.Code != http.StatusOK {
		t.Errorf("stats: %d", rec.Code)
	}
}

func TestClinicVisibility(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/clinics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list clinics: %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "info@clinic.test") {
		t.Errorf("anonymous caller sees email: %s", rec.Body)
	}

	rec = ts.do(t, http.MethodGet, "/clinics/"+ts.dir.clinic.ID.String(), ts.token(t, auth.RoleSecretary), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get clinic: %d", rec.Code)
	}
	view := decodeBody[directory.ClinicView](t, rec)
	if view.Email == nil || len(view.Doctors) != 1 {
		t.Errorf("staff view = %+v", view)
	}

	if rec := ts.do(t, http.MethodGet, "/clinics/"+uuid.NewString(), "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown clinic: %d", rec.Code)
	}
}

func TestDoctorDirectory(t *testing.T) {
	ts := newTestServer(t)
	clinicID := uuid.NewString()

	rec := ts.do(t, http.MethodGet, "/doctors?clinic_id="+clinicID+"&specialty=cardiology&page=1&limit=5", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list doctors: %d %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "MP-77") {
		t.Errorf("anonymous caller sees license: %s", rec.Body)
	}
	list := decodeBody[ListResponse[directory.DoctorView]](t, rec)
	if len(list.Data) != 1 || list.Pagination.Limit != 5 {
		t.Errorf("list = %+v", list)
	}
	if f := ts.dir.lastFilter; f.ClinicID == nil || f.ClinicID.String() != clinicID || f.Specialty != "cardiology" {
		t.Errorf("filter = %+v", f)
	}

	if rec := ts.do(t, http.MethodGet, "/doctors?clinic_id=nope", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad clinic id: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/doctors/specialties", "", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"specialties":[]}` {
		t.Errorf("specialties: %d %s", rec.Code, rec.Body)
	}

	path := "/doctors/" + ts.dir.doctor.ID.String()
	rec = ts.do(t, http.MethodGet, path, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get doctor: %d", rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "MP-77") || strings.Contains(body, "schedules") {
		t.Errorf("anonymous doctor view: %s", body)
	}

	ts.svc.entries = []scheduling.Entry{{DayOfWeek: scheduling.Monday, Start: scheduling.MustClock("08:00"), End: scheduling.MustClock("12:00"), Active: true}}
	rec = ts.do(t, http.MethodGet, path, ts.token(t, auth.RoleSecretary), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("staff get doctor: %d", rec.Code)
	}
	staffView := decodeBody[map[string]any](t, rec)
	if staffView["license_number"] != "MP-77" || len(staffView["schedules"].([]any)) != 1 {
		t.Errorf("staff doctor view = %v", staffView)
	}

	if rec := ts.do(t, http.MethodGet, "/doctors/"+uuid.NewString(), "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown doctor: %d", rec.Code)
	}
}

func TestClinicCitiesAndStats(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/clinics/cities", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Rosario") {
		t.Errorf("cities: %d %s", rec.Code, rec.Body)
	}

	path := "/clinics/" + ts.dir.clinic.ID.String() + "/stats"
	if rec := ts.do(t, http.MethodGet, path, ts.token(t, auth.RolePatient), ""); rec.Code != http.StatusForbidden {
		t.Errorf("patient stats: %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, path, ts.token(t, auth.RoleAdmin), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	stats := decodeBody[appointment.ClinicStats](t, rec)
	if stats.ClinicID != ts.dir.clinic.ID || stats.Doctors != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPatientAppointments(t *testing.T) {
	ts := newTestServer(t)
	patientID := uuid.New()
	path := "/patients/" + patientID.String() + "/appointments"

	if rec := ts.do(t, http.MethodGet, path, "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, path+"?upcoming=true", ts.token(t, auth.RolePatient), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("upcoming: %d %s", rec.Code, rec.Body)
	}
	if ts.svc.lastPatient != patientID || !ts.svc.lastUpcoming {
		t.Errorf("service got patient %s upcoming %v", ts.svc.lastPatient, ts.svc.lastUpcoming)
	}

	if rec := ts.do(t, http.MethodGet, path, ts.token(t, auth.RoleAdmin), ""); rec.Code != http.StatusOK || ts.svc.lastUpcoming {
		t.Errorf("history: %d upcoming=%v", rec.Code, ts.svc.lastUpcoming)
	}
	if rec := ts.do(t, http.MethodGet, path+"?upcoming=soon", ts.token(t, auth.RoleAdmin), ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad upcoming flag: %d", rec.Code)
	}

	ts.svc.err = appointment.ErrForbidden
	if rec := ts.do(t, http.MethodGet, path, ts.token(t, auth.RolePatient), ""); rec.Code != http.StatusForbidden {
		t.Errorf("forbidden: %d", rec.Code)
	}
}

func TestAvailability(t *testing.T) {
	ts := newTestServer(t)
	path := "/doctors/" + uuid.NewString() + "/availability"

	if rec := ts.do(t, http.MethodGet, path, "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing date: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, path+"?date=01/02/2024", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, path+"?date=2024-01-01&duration=45", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("availability: %d %s", rec.Code, rec.Body)
	}
	resp := decodeBody[map[string]any](t, rec)
	slots := resp["slots"].([]any)
	first := slots[0].(map[string]any)
	if resp["date"] != "2024-01-01" || resp["duration"] != float64(45) || first["time"] != "08:30" {
		t.Errorf("response = %v", resp)
	}
}

func TestSchedules(t *testing.T) {
	ts := newTestServer(t)
	path := "/doctors/" + uuid.NewString() + "/schedules"
	body := `{"schedules":[{"day_of_week":2,"start_time":"08:00","end_time":"12:00"},{"day_of_week":4,"start_time":"14:00","end_time":"18:00","is_active":false}]}`

	if rec := ts.do(t, http.MethodPut, path, ts.token(t, auth.RolePatient), body); rec.Code != http.StatusForbidden {
		t.Errorf("patient replace: %d", rec.Code)
	}

	rec := ts.do(t, http.MethodPut, path, ts.token(t, auth.RoleAdmin), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("replace: %d %s", rec.Code, rec.Body)
	}
	if len(ts.svc.entries) != 2 || !ts.svc.entries[0].Active || ts.svc.entries[1].Active {
		t.Errorf("entries = %+v", ts.svc.entries)
	}
	if ts.svc.entries[0].Start != scheduling.MustClock("08:00") || ts.svc.entries[0].DayOfWeek != scheduling.Monday {
		t.Errorf("first entry = %+v", ts.svc.entries[0])
	}

	bad := strings.Replace(body, "12:00", "noon", 1)
	if rec := ts.do(t, http.MethodPut, path, ts.token(t, auth.RoleAdmin), bad); rec.Code != http.StatusBadRequest {
		t.Errorf("bad clock: %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodGet, path, ts.token(t, auth.RoleSecretary), ""); rec.Code != http.StatusOK {
		t.Errorf("get schedule: %d", rec.Code)
	}
}
