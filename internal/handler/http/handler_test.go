package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/handler/http/response"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/jwt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handlerTestSecret = "test-secret-key-for-jwt"

type fakeAttendanceService struct {
	fetched  staffattendance.DateRange
	upserted []staffattendance.UpsertRequest
	upsert   error
	deleted  []staffattendance.DeleteResult
}

func (f *fakeAttendanceService) Fetch(ctx context.Context, unitID uuid.UUID, r staffattendance.DateRange) (staffattendance.FetchResult, error) {
	f.fetched = r
	return staffattendance.FetchResult{
		Staff: []staffattendance.StaffMember{{EmployeeID: uuid.New(), FirstName: "Ada", LastName: "Lovelace"}},
	}, nil
}

func (f *fakeAttendanceService) Upsert(ctx context.Context, reqs []staffattendance.UpsertRequest) error {
	f.upserted = reqs
	return f.upsert
}

func (f *fakeAttendanceService) Delete(ctx context.Context, req staffattendance.DeleteRequest) []staffattendance.DeleteResult {
	return f.deleted
}

type fakeSessionService struct {
	staffattendance.GridSessionService

	lastEdit    staffattendance.EditRowRequest
	lastArrival staffattendance.StartArrivalRequest
	lastAck     string
	saveErr     error
	events      chan staffattendance.SessionEvent
}

func (f *fakeSessionService) session(id uuid.UUID) staffattendance.SessionResponse {
	return staffattendance.SessionResponse{ID: id.String(), Editing: true}
}

func (f *fakeSessionService) Open(ctx context.Context, req staffattendance.OpenSessionRequest) (staffattendance.SessionResponse, error) {
	if _, err := req.Validate(); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	return f.session(uuid.New()), nil
}

func (f *fakeSessionService) Get(ctx context.Context, id uuid.UUID) (staffattendance.SessionResponse, error) {
	return staffattendance.SessionResponse{}, staffattendance.ErrSessionNotFound
}

func (f *fakeSessionService) EditRow(ctx context.Context, req staffattendance.EditRowRequest) (staffattendance.SessionResponse, error) {
	f.lastEdit = req
	return f.session(req.SessionID), nil
}

func (f *fakeSessionService) StartArrival(ctx context.Context, req staffattendance.StartArrivalRequest) (staffattendance.SessionResponse, error) {
	f.lastArrival = req
	return f.session(req.SessionID), nil
}

func (f *fakeSessionService) Acknowledge(ctx context.Context, id uuid.UUID, ownerKey string) (staffattendance.SessionResponse, error) {
	f.lastAck = ownerKey
	return f.session(id), nil
}

func (f *fakeSessionService) Save(ctx context.Context, id uuid.UUID, req staffattendance.SaveRequest) (staffattendance.SessionResponse, error) {
	if f.saveErr != nil {
		return staffattendance.SessionResponse{}, f.saveErr
	}
	return f.session(id), nil
}

func (f *fakeSessionService) Close(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (f *fakeSessionService) Export(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return []byte("xlsx"), nil
}

func (f *fakeSessionService) Subscribe(ctx context.Context, id uuid.UUID) (<-chan staffattendance.SessionEvent, error) {
	return f.events, nil
}

type testServer struct {
	*httptest.Server
	attendance *fakeAttendanceService
	sessions   *fakeSessionService
	jwt        jwt.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		attendance: &fakeAttendanceService{},
		sessions:   &fakeSessionService{events: make(chan staffattendance.SessionEvent, 4)},
		jwt:        jwt.NewJWTService(handlerTestSecret, 30*time.Second),
	}
	router := NewRouter(
		RouterConfig{AppName: "test", Env: "test", LogLevel: slog.LevelError, AllowedOrigins: []string{"*"}, EditorRoles: []string{"manager"}},
		ts.jwt,
		NewStaffAttendanceHandler(ts.attendance),
		NewGridSessionHandler(ts.sessions, time.Hour),
	)
	ts.Server = httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) token(t *testing.T, role string) string {
	t.Helper()
	_, token, err := ts.jwt.JWTAuth().Encode(map[string]interface{}{
		"user_id": "user-1",
		"role":    role,
		"type":    "access",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, role string, body any) (*http.Response, response.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, role))
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response.Response
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestRouter_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/grid-sessions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/staff-attendances/upsert", "employee", staffattendance.UpsertBatchRequest{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStaffAttendanceHandler_Fetch(t *testing.T) {
	ts := newTestServer(t)
	unitID := uuid.NewString()

	resp, body := ts.do(t, http.MethodGet, "/api/v1/units/"+unitID+"/staff-attendances?start=2024-06-03&end=2024-06-09", "employee", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, caltime.NewDate(2024, 6, 3), ts.attendance.fetched.Start)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/units/"+unitID+"/staff-attendances?start=2024-06-09&end=2024-06-03", "employee", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body.Error.Details, "end")

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/units/not-a-uuid/staff-attendances?start=2024-06-03&end=2024-06-09", "employee", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStaffAttendanceHandler_Upsert(t *testing.T) {
	ts := newTestServer(t)
	employee := uuid.New()
	batch := staffattendance.UpsertBatchRequest{Attendances: []staffattendance.UpsertRequest{{
		EmployeeID: &employee,
		GroupID:    uuid.New(),
		Type:       staffattendance.TypePresent,
		Arrived:    time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC),
	}}}

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/staff-attendances/upsert", "manager", batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ts.attendance.upserted, 1)

	ts.attendance.upsert = fmt.Errorf("%w: x", staffattendance.ErrGroupNotFound)
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/staff-attendances/upsert", "manager", batch)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/staff-attendances/upsert", "manager", staffattendance.UpsertBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStaffAttendanceHandler_Delete(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()

	ts.attendance.deleted = []staffattendance.DeleteResult{{ID: id}}
	resp, _ := ts.do(t, http.MethodPost, "/api/v1/staff-attendances/delete", "manager", staffattendance.DeleteRequest{AttendanceIDs: []uuid.UUID{id}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ts.attendance.deleted = []staffattendance.DeleteResult{{ID: id, Err: errors.New("connection reset")}}
	resp, body := ts.do(t, http.MethodPost, "/api/v1/staff-attendances/delete", "manager", staffattendance.DeleteRequest{AttendanceIDs: []uuid.UUID{id}})
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.False(t, body.Success)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/staff-attendances/delete", "manager", staffattendance.DeleteRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGridSessionHandler_Open(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/grid-sessions", "employee", map[string]any{
		"unit_id": uuid.NewString(),
		"start":   "2024-06-03",
		"end":     "2024-06-09",
		"editing": true,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, body.Success)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/grid-sessions", "employee", map[string]any{
		"unit_id": uuid.NewString(),
		"start":   "03/06/2024",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGridSessionHandler_Edits(t *testing.T) {
	ts := newTestServer(t)
	sessionID := uuid.New()
	base := "/api/v1/grid-sessions/" + sessionID.String()
	ownerKey := staffattendance.EmployeeOwner(uuid.New()).Key()

	resp, _ := ts.do(t, http.MethodPatch, base+"/rows/t1", "manager", map[string]string{
		"owner_key": ownerKey,
		"field":     staffattendance.FieldStartTime,
		"value":     "08:00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sessionID, ts.sessions.lastEdit.SessionID)
	assert.Equal(t, "t1", ts.sessions.lastEdit.TrackingID)
	assert.Equal(t, "08:00", ts.sessions.lastEdit.Value)

	external := "external:Sam%20Substitute"
	resp, _ = ts.do(t, http.MethodPost, base+"/owners/"+external+"/acknowledge", "manager", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "external:Sam Substitute", ts.sessions.lastAck)

	resp, _ = ts.do(t, http.MethodPost, base+"/owners/"+ownerKey+"/arrivals", "manager", map[string]string{
		"date":       "2024-06-04",
		"start_time": "07:00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, caltime.NewDate(2024, 6, 4), ts.sessions.lastArrival.Date)

	resp, _ = ts.do(t, http.MethodPost, base+"/owners/nobody/acknowledge", "manager", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPatch, base+"/rows/t1", "employee", map[string]string{"owner_key": ownerKey})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGridSessionHandler_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	base := "/api/v1/grid-sessions/" + uuid.NewString()

	resp, _ := ts.do(t, http.MethodGet, base, "employee", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ts.sessions.saveErr = fmt.Errorf("%w: employee:1", staffattendance.ErrSaveBlocked)
	resp, body := ts.do(t, http.MethodPost, base+"/save", "manager", staffattendance.SaveRequest{Mode: "closing"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", body.Error.Code)

	ts.sessions.saveErr = errors.New("boom")
	resp, _ = ts.do(t, http.MethodPost, base+"/save", "manager", staffattendance.SaveRequest{Mode: "closing"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, base, "employee", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGridSessionHandler_Export(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/grid-sessions/"+uuid.NewString()+"/export", "employee", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")
}

func TestGridSessionHandler_Events(t *testing.T) {
	ts := newTestServer(t)
	sessionID := uuid.NewString()

	ts.sessions.events <- staffattendance.SessionEvent{Type: staffattendance.EventSaved, Data: map[string]string{"owner_key": "employee:1"}}
	ts.sessions.events <- staffattendance.SessionEvent{Type: staffattendance.EventClosed}

	url := ts.URL + "/api/v1/grid-sessions/" + sessionID + "/events?token=" + ts.token(t, "employee")
	resp, err := ts.Client().Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"connected", staffattendance.EventSaved, staffattendance.EventClosed}, events)
}
