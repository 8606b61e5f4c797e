package http

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"semaphore/reports/internal/auth"
	"semaphore/reports/internal/config"
	"semaphore/reports/internal/db"
	"semaphore/reports/internal/events"
	"semaphore/reports/internal/operations"
	"semaphore/reports/internal/workflow"
)

const testIssuer = "semaphore-auth-identity"

type testEnv struct {
	server *Server
	key    *rsa.PrivateKey
	broker *events.MemoryBroker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil, nil)
}

func newTestEnvWithStore(t *testing.T, store *db.Store, summarizer Summarizer) *testEnv {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key error: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	cfg := config.Config{
		JWTPublicKey: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
		JWTIssuer:    testIssuer,
	}
	broker := events.NewMemoryBroker()
	server, err := NewServer(cfg, store, broker, summarizer, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{server: server, key: key, broker: broker}
}

func (e *testEnv) token(t *testing.T, userID, userType string) string {
	t.Helper()
	claims := auth.Claims{
		UserID:   userID,
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(e.key)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	var payload map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	return rec, payload
}

func (e *testEnv) doList(t *testing.T, path, token string) (*httptest.ResponseRecorder, []interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	var payload []interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	return rec, payload
}

const (
	userU1 = "11111111-1111-1111-1111-111111111111"
	userU2 = "22222222-2222-2222-2222-222222222222"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec, payload := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", rec.Code, payload)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	rec, payload := env.do(t, http.MethodGet, "/groups", "", nil)
	if rec.Code != http.StatusUnauthorized || payload["error"] != "missing_token" {
		t.Fatalf("expected missing_token, got %d %v", rec.Code, payload)
	}
	rec, payload = env.do(t, http.MethodGet, "/groups", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized || payload["error"] != "invalid_token" {
		t.Fatalf("expected invalid_token, got %d %v", rec.Code, payload)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key error: %v", err)
	}
	foreign := &testEnv{server: env.server, key: other}
	rec, _ = env.do(t, http.MethodGet, "/groups", foreign.token(t, userU1, auth.UserTypeAdmin), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected foreign signature to be rejected, got %d", rec.Code)
	}

	for _, userType := range []string{auth.UserTypeStudent, auth.UserTypeTimeTeacher} {
		rec, payload = env.do(t, http.MethodGet, "/reports", env.token(t, "abc", userType), nil)
		if rec.Code != http.StatusUnauthorized || payload["error"] != "invalid_token" {
			t.Fatalf("expected %s token with non-uuid user id to be rejected, got %d %v", userType, rec.Code, payload)
		}
	}
}

func TestRoleGuards(t *testing.T) {
	env := newTestEnv(t)
	student := env.token(t, userU1, auth.UserTypeStudent)
	timeTeacher := env.token(t, userU2, auth.UserTypeTimeTeacher)

	cases := []struct {
		method string
		path   string
		token  string
	}{
		{http.MethodGet, "/groups", student},
		{http.MethodPost, "/group", timeTeacher},
		{http.MethodDelete, "/class/" + userU1, timeTeacher},
		{http.MethodPost, "/form/" + userU1 + "/distribute", student},
		{http.MethodPost, "/report/" + userU1 + "/summary", student},
		{http.MethodPatch, "/report/" + userU1 + "/final", student},
	}
	for _, tc := range cases {
		rec, payload := env.do(t, tc.method, tc.path, tc.token, map[string]string{})
		if rec.Code != http.StatusForbidden || payload["error"] != "forbidden" {
			t.Fatalf("%s %s: expected 403, got %d %v", tc.method, tc.path, rec.Code, payload)
		}
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.token(t, userU1, auth.UserTypeTeacher)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   string
	}{
		{"blank group name", http.MethodPost, "/group", map[string]string{"name": "   "}, "missing_name"},
		{"unknown field", http.MethodPost, "/group", map[string]string{"name": "A", "color": "red"}, "invalid_request"},
		{"bad group id", http.MethodGet, "/group/nope", nil, "invalid_group_id"},
		{"class without group", http.MethodPost, "/class", map[string]string{"name": "A"}, "missing_group_id"},
		{"class bad reviewer", http.MethodPost, "/class", map[string]string{"groupId": userU1, "name": "A", "teacherId": "x"}, "invalid_teacher_id"},
		{"form list bad status", http.MethodGet, "/class/" + userU1 + "/forms?status=archived", nil, "invalid_status"},
		{"reports bad stage", http.MethodGet, "/reports?stage=7", nil, "invalid_stage"},
		{"reports bad phase", http.MethodGet, "/reports?phase=pending", nil, "invalid_phase"},
		{"reports bad class", http.MethodGet, "/reports?classId=abc", nil, "invalid_class_id"},
		{"empty bulk", http.MethodPost, "/class/" + userU1 + "/students", []interface{}{}, "missing_students"},
		{"student report without content", http.MethodPost, "/studentReport", map[string]interface{}{"studentId": userU1, "title": "March"}, "missing_content"},
	}
	for _, tc := range cases {
		rec, payload := env.do(t, tc.method, tc.path, teacher, tc.body)
		if rec.Code != http.StatusBadRequest || payload["error"] != tc.code {
			t.Fatalf("%s: expected 400 %s, got %d %v", tc.name, tc.code, rec.Code, payload)
		}
	}
}

func TestWorkflowInputErrorsBeforeStorage(t *testing.T) {
	env := newTestEnv(t)
	reviewer := env.token(t, userU1, auth.UserTypeTimeTeacher)

	rec, payload := env.do(t, http.MethodPost, "/report/not-a-uuid/comment", reviewer, map[string]string{
		"comment":     "Good progress, needs review of section 3",
		"commentType": "time_teacher",
	})
	if rec.Code != http.StatusBadRequest || payload["error"] != operations.ErrInvalidReportID {
		t.Fatalf("expected invalid_report_id, got %d %v", rec.Code, payload)
	}

	rec, payload = env.do(t, http.MethodPost, "/report/"+userU2+"/comment", reviewer, map[string]string{
		"comment":     "Good progress, needs review of section 3",
		"commentType": "reviewer",
	})
	if rec.Code != http.StatusBadRequest || payload["error"] != operations.ErrInvalidCommentType {
		t.Fatalf("expected invalid_comment_type, got %d %v", rec.Code, payload)
	}

	rec, payload = env.do(t, http.MethodPost, "/report/nope/reject", reviewer, map[string]string{"reason": "incomplete"})
	if rec.Code != http.StatusBadRequest || payload["error"] != operations.ErrInvalidReportID {
		t.Fatalf("expected invalid_report_id on reject, got %d %v", rec.Code, payload)
	}
}

func TestWriteOperationError(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{&operations.Error{Code: operations.ErrForbidden, Message: operations.ForbiddenMessage}, http.StatusForbidden, "forbidden", "접근 권한이 없습니다"},
		{&operations.Error{Code: operations.ErrInvalidStage}, http.StatusConflict, "invalid_stage", ""},
		{&operations.Error{Code: operations.ErrStageChanged}, http.StatusConflict, "stage_changed", ""},
		{&operations.Error{Code: operations.ErrCommentTooShort}, http.StatusBadRequest, "comment_too_short", ""},
		{&operations.Error{Code: operations.ErrReportNotFound}, http.StatusNotFound, "report_not_found", ""},
		{&operations.Error{Code: operations.ErrServerError, Err: errors.New("db down")}, http.StatusInternalServerError, "server_error", ""},
		{errors.New("plain"), http.StatusInternalServerError, "server_error", ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		env.server.writeOperationError(rec, httptest.NewRequest(http.MethodPost, "/report/x/comment", nil), tc.err)
		var payload map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec.Code != tc.status || payload["error"] != tc.code || payload["message"] != tc.message {
			t.Fatalf("%v: got %d %v", tc.err, rec.Code, payload)
		}
		if strings.Contains(rec.Body.String(), "db down") {
			t.Fatalf("driver error leaked to client")
		}
	}
}

func TestGroupEventStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.server.streamChanges(w, r, userU1)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected stream response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				if event != "" {
					return event, data
				}
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	if event, _ := readEvent(); event != "ready" {
		t.Fatalf("expected ready event, got %s", event)
	}
	if err := env.broker.Publish(context.Background(), events.Change{GroupID: userU1, Entity: "report", ID: userU2, Action: "advanced"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	event, data := readEvent()
	if event != "invalidate" {
		t.Fatalf("expected invalidate event, got %s", event)
	}
	var change events.Change
	if err := json.Unmarshal([]byte(data), &change); err != nil {
		t.Fatalf("decode change: %v", err)
	}
	if change.Entity != "report" || change.ID != userU2 || change.Action != "advanced" {
		t.Fatalf("unexpected change %+v", change)
	}
}

func TestPhaseCountsAndCompletion(t *testing.T) {
	counts, total := phaseCounts([]db.CountReportsByPhaseRow{
		{Phase: "awaiting_response", Reports: 1},
		{Phase: "awaiting_time_teacher", Reports: 1},
		{Phase: "rejected", Reports: 1},
		{Phase: "complete", Reports: 1},
	})
	if counts["awaiting_response"] != 1 || counts["awaiting_time_teacher"] != 1 || counts["rejected"] != 1 || counts["complete"] != 1 || counts["awaiting_teacher"] != 0 {
		t.Fatalf("unexpected phase counts %v", counts)
	}
	if rate := completionRate(counts["complete"], total); rate != 25 {
		t.Fatalf("expected 25%% completion, got %v", rate)
	}
	if rate := completionRate(2, 3); rate != 66.7 {
		t.Fatalf("expected 66.7, got %v", rate)
	}
	if rate := completionRate(0, 0); rate != 0 {
		t.Fatalf("expected 0 for empty set, got %v", rate)
	}
}

func TestQueryLimit(t *testing.T) {
	cases := map[string]int32{"": 100, "?limit=20": 20, "?limit=0": 100, "?limit=abc": 100, "?limit=9000": 500}
	for query, want := range cases {
		if got := queryLimit(httptest.NewRequest(http.MethodGet, "/reports"+query, nil)); got != want {
			t.Fatalf("limit for %q: expected %d, got %d", query, want, got)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"Basic dXNlcjpw": "",
		"Bearerabc":      "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestMapReportCarriesDerivedState(t *testing.T) {
	report := db.Report{
		ID:            pgUUIDFromString(userU2),
		Stage:         workflow.StageAwaitingTimeTeacher,
		TimeTeacherID: pgUUIDFromString(userU1),
	}
	resp := mapReport(report)
	if resp.State.Phase != workflow.PhaseAwaitingTimeTeacher || resp.State.AwaitingUserID != userU1 {
		t.Fatalf("unexpected state %+v", resp.State)
	}
	if resp.ID != userU2 || resp.TimeTeacherComment != nil {
		t.Fatalf("unexpected mapping %+v", resp)
	}
}
