package operations

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/workflow"
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

type fixture struct {
	class       db.Class
	student     db.Student
	form        db.Form
	timeTeacher string
	teacher     string
	studentUser string
}

func seed(t *testing.T, store *db.Store) fixture {
	t.Helper()
	ctx := context.Background()
	q := store.Queries
	ts := pgTime(time.Now())
	f := fixture{
		timeTeacher: uuid.NewString(),
		teacher:     uuid.NewString(),
		studentUser: uuid.NewString(),
	}

	group, err := q.CreateGroup(ctx, db.CreateGroupParams{ID: pgUUID(uuid.New()), Name: "Group " + t.Name(), CreatedAt: ts, UpdatedAt: ts})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	f.class, err = q.CreateClass(ctx, db.CreateClassParams{
		ID:            pgUUID(uuid.New()),
		GroupID:       group.ID,
		Name:          "Class A",
		TimeTeacherID: pgUUID(uuid.MustParse(f.timeTeacher)),
		TeacherID:     pgUUID(uuid.MustParse(f.teacher)),
		CreatedAt:     ts,
		UpdatedAt:     ts,
	})
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	f.student, err = q.CreateStudent(ctx, db.CreateStudentParams{
		ID:        pgUUID(uuid.New()),
		ClassID:   f.class.ID,
		UserID:    pgUUID(uuid.MustParse(f.studentUser)),
		Name:      "Student One",
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	f.form, err = q.CreateForm(ctx, db.CreateFormParams{
		ID:        pgUUID(uuid.New()),
		ClassID:   f.class.ID,
		Title:     "Weekly check-in",
		Fields:    []byte(`[{"key":"effort","label":"Effort","type":"rating","required":true},{"key":"notes","label":"Notes","type":"textarea"}]`),
		Status:    db.FormStatusDraft,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	return f
}

func TestReviewWorkflowEndToEnd(t *testing.T) {
	store := openTestStore(t)
	if store == nil {
		return
	}
	ctx := context.Background()
	f := seed(t, store)

	distributed, err := DistributeForm(ctx, store, uuidString(f.form.ID))
	if err != nil {
		t.Fatalf("distribute error: %v", err)
	}
	if len(distributed.Created) != 1 || distributed.Form.Status != db.FormStatusPublished {
		t.Fatalf("expected one instance on a published form, got %d %s", len(distributed.Created), distributed.Form.Status)
	}
	again, err := DistributeForm(ctx, store, uuidString(f.form.ID))
	if err != nil || len(again.Created) != 0 || again.Skipped != 1 {
		t.Fatalf("expected redistribution to skip existing instance, got %+v %v", again, err)
	}

	instanceID := uuidString(distributed.Created[0].ID)
	_, err = SubmitFormInstance(ctx, store, SubmitInput{
		FormInstanceID: instanceID,
		UserID:         f.timeTeacher,
		Answers:        map[string]interface{}{"effort": float64(4)},
	})
	assertCode(t, err, ErrForbidden)

	submitted, err := SubmitFormInstance(ctx, store, SubmitInput{
		FormInstanceID: instanceID,
		UserID:         f.studentUser,
		Answers:        map[string]interface{}{"effort": float64(4), "notes": "Finished all exercises"},
	})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	if submitted.Report.Stage != workflow.StageAwaitingTimeTeacher || submitted.Instance.Status != db.InstanceStatusSubmitted {
		t.Fatalf("expected stage 1 and submitted instance, got %d %s", submitted.Report.Stage, submitted.Instance.Status)
	}
	reportID := uuidString(submitted.Report.ID)

	_, err = AdvanceReportStage(ctx, store, AdvanceInput{
		ReportID:    reportID,
		UserID:      uuid.NewString(),
		Comment:     "Good progress, needs review of section 3",
		CommentType: "time_teacher",
	})
	assertCode(t, err, ErrForbidden)
	unchanged, err := store.Queries.GetReport(ctx, submitted.Report.ID)
	if err != nil || unchanged.Stage != workflow.StageAwaitingTimeTeacher || unchanged.TimeTeacherComment.Valid {
		t.Fatalf("expected report unchanged after forbidden attempt")
	}

	advanced, err := AdvanceReportStage(ctx, store, AdvanceInput{
		ReportID:    reportID,
		UserID:      f.timeTeacher,
		Comment:     "Good progress, needs review of section 3",
		CommentType: "time_teacher",
	})
	if err != nil {
		t.Fatalf("advance error: %v", err)
	}
	if advanced.Stage != workflow.StageAwaitingTeacher || !advanced.TimeTeacherCompletedAt.Valid {
		t.Fatalf("expected stage 2 with completion time, got %d", advanced.Stage)
	}

	rejected, err := RejectReport(ctx, store, RejectInput{ReportID: reportID, RejectedBy: f.teacher, Reason: "Comment lacks detail"})
	if err != nil {
		t.Fatalf("reject error: %v", err)
	}
	if rejected.Stage != workflow.StageAwaitingTeacher || !rejected.RejectedAt.Valid {
		t.Fatalf("expected rejected report kept at stage 2")
	}

	done, err := AdvanceReportStage(ctx, store, AdvanceInput{
		ReportID:    reportID,
		UserID:      f.teacher,
		Comment:     "Reviewed with detail added.",
		CommentType: "teacher",
	})
	if err != nil {
		t.Fatalf("final advance error: %v", err)
	}
	if done.Stage != workflow.StageComplete || done.RejectedAt.Valid {
		t.Fatalf("expected complete report without rejection")
	}

	final, err := SetFinalReport(ctx, store, FinalReportInput{ReportID: reportID, UserID: f.teacher, FinalReport: "Solid term."})
	if err != nil || final.FinalReport.String != "Solid term." {
		t.Fatalf("expected final report stored, got %v", err)
	}
}

func TestConcurrentAdvanceOnlyOnce(t *testing.T) {
	store := openTestStore(t)
	if store == nil {
		return
	}
	ctx := context.Background()
	f := seed(t, store)
	distributed, err := DistributeForm(ctx, store, uuidString(f.form.ID))
	if err != nil {
		t.Fatalf("distribute error: %v", err)
	}
	submitted, err := SubmitFormInstance(ctx, store, SubmitInput{
		FormInstanceID: uuidString(distributed.Created[0].ID),
		Privileged:     true,
		Answers:        map[string]interface{}{"effort": float64(5)},
	})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = AdvanceReportStage(ctx, store, AdvanceInput{
				ReportID:    uuidString(submitted.Report.ID),
				UserID:      f.timeTeacher,
				Comment:     "Double clicked comment text",
				CommentType: "time_teacher",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var opErr *Error
		if !errors.As(err, &opErr) || (opErr.Code != ErrInvalidStage && opErr.Code != ErrStageChanged) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one advance, got %d", succeeded)
	}
	report, err := store.Queries.GetReport(ctx, submitted.Report.ID)
	if err != nil || report.Stage != workflow.StageAwaitingTeacher {
		t.Fatalf("expected stage 2 after concurrent advances")
	}
}

func TestSubmitCreatesReportWithoutDistribution(t *testing.T) {
	store := openTestStore(t)
	if store == nil {
		return
	}
	ctx := context.Background()
	f := seed(t, store)
	ts := pgTime(time.Now())

	form, err := store.Queries.UpdateForm(ctx, db.UpdateFormParams{
		ID: f.form.ID, Title: f.form.Title, Fields: f.form.Fields, Status: db.FormStatusPublished, UpdatedAt: ts,
	})
	if err != nil {
		t.Fatalf("publish error: %v", err)
	}
	instance, err := store.Queries.CreateFormInstance(ctx, db.CreateFormInstanceParams{
		ID: pgUUID(uuid.New()), FormID: form.ID, StudentID: f.student.ID, CreatedAt: ts, UpdatedAt: ts,
	})
	if err != nil {
		t.Fatalf("instance error: %v", err)
	}

	result, err := SubmitFormInstance(ctx, store, SubmitInput{
		FormInstanceID: uuidString(instance.ID),
		UserID:         f.studentUser,
		Answers:        map[string]interface{}{"effort": float64(2)},
	})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	if result.Report.Stage != workflow.StageAwaitingTimeTeacher || result.Report.TimeTeacherID != f.class.TimeTeacherID {
		t.Fatalf("expected new stage 1 report with class reviewers")
	}
	if result.Report.TeacherID == (pgtype.UUID{}) {
		t.Fatalf("expected teacher copied from class")
	}
}

func TestDistributeFormPagesThroughClass(t *testing.T) {
	store := openTestStore(t)
	if store == nil {
		return
	}
	previous := distributionPage
	distributionPage = 2
	t.Cleanup(func() { distributionPage = previous })

	ctx := context.Background()
	f := seed(t, store)
	ts := pgTime(time.Now())
	for i := 0; i < 4; i++ {
		if _, err := store.Queries.CreateStudent(ctx, db.CreateStudentParams{
			ID:        pgUUID(uuid.New()),
			ClassID:   f.class.ID,
			Name:      "Student extra",
			CreatedAt: ts,
			UpdatedAt: ts,
		}); err != nil {
			t.Fatalf("create student: %v", err)
		}
	}

	distributed, err := DistributeForm(ctx, store, uuidString(f.form.ID))
	if err != nil {
		t.Fatalf("distribute error: %v", err)
	}
	if len(distributed.Created) != 5 || distributed.Skipped != 0 {
		t.Fatalf("expected every student across pages, got %d created %d skipped", len(distributed.Created), distributed.Skipped)
	}
	again, err := DistributeForm(ctx, store, uuidString(f.form.ID))
	if err != nil || len(again.Created) != 0 || again.Skipped != 5 {
		t.Fatalf("expected all five skipped on redistribution, got %+v %v", again, err)
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var opErr *Error
	if !errors.As(err, &opErr) || opErr.Code != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}
