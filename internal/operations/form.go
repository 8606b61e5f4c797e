package operations

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/forms"
	"semaphore/reports/internal/workflow"
)

// distributionPage is the number of students read per page while distributing.
var distributionPage int32 = 500

type SubmitInput struct {
	FormInstanceID string
	UserID         string
	// Privileged callers submit on behalf of the student.
	Privileged bool
	Answers    map[string]interface{}
}

type SubmitResult struct {
	Instance db.FormInstance
	Response db.FormResponse
	Report   db.Report
}

// SubmitFormInstance stores the student's answers and moves the linked report
// to stage 1, creating the report when the form was never distributed.
func SubmitFormInstance(ctx context.Context, store *db.Store, in SubmitInput) (SubmitResult, error) {
	instanceID, err := parseUUID(in.FormInstanceID)
	if err != nil {
		return SubmitResult{}, &Error{Code: ErrInvalidFormInstanceID}
	}

	var result SubmitResult
	err = store.WithTx(ctx, func(q *db.Queries) error {
		instance, err := q.GetFormInstanceForUpdate(ctx, instanceID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrFormInstanceNotFound}
			}
			return err
		}
		student, err := q.GetStudent(ctx, instance.StudentID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrStudentNotFound}
			}
			return err
		}
		if !in.Privileged && !strings.EqualFold(uuidString(student.UserID), in.UserID) {
			return &Error{Code: ErrForbidden, Message: ForbiddenMessage}
		}
		form, err := q.GetForm(ctx, instance.FormID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrFormNotFound}
			}
			return err
		}
		switch form.Status {
		case db.FormStatusClosed:
			return &Error{Code: ErrFormClosed}
		case db.FormStatusDraft:
			return &Error{Code: ErrFormNotPublished}
		}

		fields, err := forms.Decode(form.Fields)
		if err != nil {
			return err
		}
		answers := in.Answers
		if answers == nil {
			answers = map[string]interface{}{}
		}
		if err := forms.ValidateAnswers(fields, answers); err != nil {
			return fromAnswers(err)
		}
		payload, err := json.Marshal(answers)
		if err != nil {
			return err
		}

		report, err := q.GetReportByInstanceForUpdate(ctx, instance.ID)
		reportExists := err == nil
		if err != nil && !db.IsNotFound(err) {
			return err
		}
		var next db.Report
		if reportExists {
			// Checked before the response is overwritten.
			next, err = workflow.Submit(report, now())
			if err != nil {
				return fromWorkflow(err)
			}
		}

		submittedAt := pgTime(now())
		result.Response, err = q.UpsertFormResponse(ctx, db.UpsertFormResponseParams{
			ID:             pgUUID(uuid.New()),
			FormInstanceID: instance.ID,
			FormID:         instance.FormID,
			StudentID:      instance.StudentID,
			Answers:        payload,
			Now:            submittedAt,
		})
		if err != nil {
			return err
		}
		result.Instance, err = q.MarkFormInstanceSubmitted(ctx, instance.ID, submittedAt)
		if err != nil {
			return err
		}

		if reportExists {
			result.Report, err = saveWorkflow(ctx, q, report.Stage, next)
			return err
		}
		class, err := q.GetClass(ctx, form.ClassID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrClassNotFound}
			}
			return err
		}
		result.Report, err = q.CreateReport(ctx, db.CreateReportParams{
			ID:             pgUUID(uuid.New()),
			FormID:         form.ID,
			FormInstanceID: instance.ID,
			StudentID:      instance.StudentID,
			ClassID:        form.ClassID,
			Stage:          workflow.StageAwaitingTimeTeacher,
			TimeTeacherID:  class.TimeTeacherID,
			TeacherID:      class.TeacherID,
			CreatedAt:      submittedAt,
		})
		return err
	})
	return result, asError(err)
}

type DistributeResult struct {
	Form    db.Form
	Created []db.FormInstance
	Skipped int
}

// DistributeForm creates a pending instance and a stage 0 report for every
// student of the form's class that does not have one yet. A draft form is
// published as part of the distribution.
func DistributeForm(ctx context.Context, store *db.Store, formID string) (DistributeResult, error) {
	formUUID, err := parseUUID(formID)
	if err != nil {
		return DistributeResult{}, &Error{Code: ErrInvalidFormID}
	}

	var result DistributeResult
	err = store.WithTx(ctx, func(q *db.Queries) error {
		form, err := q.GetForm(ctx, formUUID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrFormNotFound}
			}
			return err
		}
		if form.Status == db.FormStatusClosed {
			return &Error{Code: ErrFormClosed}
		}
		class, err := q.GetClass(ctx, form.ClassID)
		if err != nil {
			if db.IsNotFound(err) {
				return &Error{Code: ErrClassNotFound}
			}
			return err
		}
		if form.Status == db.FormStatusDraft {
			form, err = q.UpdateForm(ctx, db.UpdateFormParams{
				ID:          form.ID,
				Title:       form.Title,
				Description: form.Description,
				Fields:      form.Fields,
				Status:      db.FormStatusPublished,
				DueAt:       form.DueAt,
				UpdatedAt:   pgTime(now()),
			})
			if err != nil {
				return err
			}
		}
		result.Form = form

		createdAt := pgTime(now())
		var after pgtype.UUID
		for {
			students, err := q.ListStudentsByClassAfter(ctx, db.ListStudentsByClassAfterParams{
				ClassID: class.ID,
				After:   after,
				Limit:   distributionPage,
			})
			if err != nil {
				return err
			}
			for _, student := range students {
				instance, err := q.CreateFormInstance(ctx, db.CreateFormInstanceParams{
					ID:        pgUUID(uuid.New()),
					FormID:    form.ID,
					StudentID: student.ID,
					CreatedAt: createdAt,
					UpdatedAt: createdAt,
				})
				if err != nil {
					if db.IsNotFound(err) {
						result.Skipped++
						continue
					}
					return err
				}
				if _, err := q.CreateReport(ctx, db.CreateReportParams{
					ID:             pgUUID(uuid.New()),
					FormID:         form.ID,
					FormInstanceID: instance.ID,
					StudentID:      student.ID,
					ClassID:        class.ID,
					Stage:          workflow.StageAwaitingResponse,
					TimeTeacherID:  class.TimeTeacherID,
					TeacherID:      class.TeacherID,
					CreatedAt:      createdAt,
				}); err != nil {
					return err
				}
				result.Created = append(result.Created, instance)
			}
			if len(students) < int(distributionPage) {
				break
			}
			after = students[len(students)-1].ID
		}
		return nil
	})
	return result, asError(err)
}
