package http

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/google/uuid"

	"semaphore/reports/internal/auth"
	"semaphore/reports/internal/config"
	"semaphore/reports/internal/db"
	"semaphore/reports/internal/summary"
)

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	url := os.Getenv("REPORTS_TEST_DB")
	if url == "" {
		t.Skip("REPORTS_TEST_DB not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	t.Cleanup(pool.Close)
	store := db.NewStore(pool)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return store
}

func mustString(t *testing.T, payload map[string]interface{}, key string) string {
	t.Helper()
	value, ok := payload[key].(string)
	if !ok || value == "" {
		t.Fatalf("expected %s in %v", key, payload)
	}
	return value
}

func TestReviewFlowOverHTTP(t *testing.T) {
	store := openTestStore(t)
	if store == nil {
		return
	}
	env := newTestEnvWithStore(t, store, summary.New(config.Config{}, nil))

	adminID := uuid.NewString()
	timeTeacherID := uuid.NewString()
	teacherID := uuid.NewString()
	otherID := uuid.NewString()
	studentUserID := uuid.NewString()

	admin := env.token(t, adminID, auth.UserTypeAdmin)
	timeTeacher := env.token(t, timeTeacherID, auth.UserTypeTimeTeacher)
	teacher := env.token(t, teacherID, auth.UserTypeTeacher)
	other := env.token(t, otherID, auth.UserTypeTimeTeacher)
	student := env.token(t, studentUserID, auth.UserTypeStudent)

	rec, group := env.do(t, http.MethodPost, "/group", admin, map[string]string{"name": "Group " + t.Name()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group: %d %v", rec.Code, group)
	}
	groupID := mustString(t, group, "id")

	rec, class := env.do(t, http.MethodPost, "/class", admin, map[string]string{
		"groupId":       groupID,
		"name":          "Class A",
		"timeTeacherId": timeTeacherID,
		"teacherId":     teacherID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create class: %d %v", rec.Code, class)
	}
	classID := mustString(t, class, "id")

	rec, studentRow := env.do(t, http.MethodPost, "/student", admin, map[string]string{
		"classId": classID,
		"userId":  studentUserID,
		"name":    "Student One",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create student: %d %v", rec.Code, studentRow)
	}

	rec, form := env.do(t, http.MethodPost, "/form", admin, map[string]interface{}{
		"classId": classID,
		"title":   "Weekly check-in",
		"fields": []map[string]interface{}{
			{"key": "effort", "label": "Effort", "type": "rating", "required": true},
			{"key": "notes", "label": "Notes", "type": "textarea"},
		},
	})
	if rec.Code != http.StatusCreated || form["status"] != "draft" {
		t.Fatalf("create form: %d %v", rec.Code, form)
	}
	formID := mustString(t, form, "id")

	rec, distributed := env.do(t, http.MethodPost, "/form/"+formID+"/distribute", admin, nil)
	if rec.Code != http.StatusOK || distributed["created"] != float64(1) {
		t.Fatalf("distribute: %d %v", rec.Code, distributed)
	}
	instances := distributed["instances"].([]interface{})
	instanceID := mustString(t, instances[0].(map[string]interface{}), "id")

	rec, submitted := env.do(t, http.MethodPost, "/formInstance/"+instanceID+"/submit", student, map[string]interface{}{
		"answers": map[string]interface{}{"effort": 4, "notes": "Finished the reading and started the essay."},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %v", rec.Code, submitted)
	}
	report := submitted["report"].(map[string]interface{})
	reportID := mustString(t, report, "id")
	if report["stage"] != float64(1) {
		t.Fatalf("expected stage 1 after submit, got %v", report["stage"])
	}

	rec, pending := env.doList(t, "/reports?awaiting=me", timeTeacher)
	if rec.Code != http.StatusOK || len(pending) != 1 {
		t.Fatalf("expected one report awaiting the time-teacher, got %d %v", rec.Code, pending)
	}

	comment := map[string]string{"comment": "Good progress, needs review of section 3", "commentType": "time_teacher"}
	rec, blocked := env.do(t, http.MethodPost, "/report/"+reportID+"/comment", other, comment)
	if rec.Code != http.StatusForbidden || blocked["message"] != "접근 권한이 없습니다" {
		t.Fatalf("expected U2 to be blocked, got %d %v", rec.Code, blocked)
	}

	rec, advanced := env.do(t, http.MethodPost, "/report/"+reportID+"/comment", timeTeacher, comment)
	if rec.Code != http.StatusOK || advanced["stage"] != float64(2) || advanced["timeTeacherComment"] != comment["comment"] {
		t.Fatalf("expected U1 to advance, got %d %v", rec.Code, advanced)
	}
	rec, _ = env.do(t, http.MethodPost, "/report/"+reportID+"/comment", timeTeacher, comment)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected repeated comment to conflict, got %d", rec.Code)
	}

	rec, rejected := env.do(t, http.MethodPost, "/report/"+reportID+"/reject", teacher, map[string]string{"reason": "Section 3 is missing"})
	if rec.Code != http.StatusOK || rejected["stage"] != float64(2) || rejected["rejectionReason"] != "Section 3 is missing" {
		t.Fatalf("reject: %d %v", rec.Code, rejected)
	}

	rec, done := env.do(t, http.MethodPost, "/report/"+reportID+"/comment", teacher, map[string]string{
		"comment":     "Section 3 added, approved for the term.",
		"commentType": "teacher",
	})
	if rec.Code != http.StatusOK || done["stage"] != float64(3) || done["rejectedAt"] != nil {
		t.Fatalf("teacher comment: %d %v", rec.Code, done)
	}

	rec, draft := env.do(t, http.MethodPost, "/report/"+reportID+"/summary", teacher, nil)
	if rec.Code != http.StatusOK || draft["source"] != string(db.SummarySourceFallback) {
		t.Fatalf("summary draft: %d %v", rec.Code, draft)
	}

	rec, detail := env.do(t, http.MethodGet, "/report/"+reportID, student, nil)
	if rec.Code != http.StatusOK || detail["finalReport"] == nil {
		t.Fatalf("student report view: %d %v", rec.Code, detail)
	}

	for _, tc := range []struct {
		path  string
		token string
		want  int
	}{
		{"/reports?phase=complete&groupId=" + groupID, admin, 1},
		{"/reports?phase=awaiting_teacher&groupId=" + groupID, admin, 0},
		{"/reports?awaiting=me", teacher, 0},
		{"/reports?phase=complete&limit=1", student, 1},
		{"/reports?awaiting=me", student, 0},
	} {
		rec, listed := env.doList(t, tc.path, tc.token)
		if rec.Code != http.StatusOK || len(listed) != tc.want {
			t.Fatalf("%s: expected %d reports, got %d %v", tc.path, tc.want, rec.Code, listed)
		}
	}

	rec, missing := env.do(t, http.MethodGet, "/group/"+uuid.NewString()+"/events", admin, nil)
	if rec.Code != http.StatusNotFound || missing["error"] != "group_not_found" {
		t.Fatalf("expected unknown group stream to 404, got %d %v", rec.Code, missing)
	}

	rec, stats := env.do(t, http.MethodGet, "/group/"+groupID+"/stats", admin, nil)
	if rec.Code != http.StatusOK || stats["completionRate"] != float64(100) {
		t.Fatalf("group stats: %d %v", rec.Code, stats)
	}
}
