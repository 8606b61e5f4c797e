package db

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

type FormStatus string

const (
	FormStatusDraft     FormStatus = "draft"
	FormStatusPublished FormStatus = "published"
	FormStatusClosed    FormStatus = "closed"
)

func (e *FormStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = FormStatus(s)
	case string:
		*e = FormStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for FormStatus: %T", src)
	}
	return nil
}

type InstanceStatus string

const (
	InstanceStatusPending   InstanceStatus = "pending"
	InstanceStatusSubmitted InstanceStatus = "submitted"
)

func (e *InstanceStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = InstanceStatus(s)
	case string:
		*e = InstanceStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for InstanceStatus: %T", src)
	}
	return nil
}

type SummarySource string

const (
	SummarySourceAI       SummarySource = "ai"
	SummarySourceFallback SummarySource = "fallback"
	SummarySourceManual   SummarySource = "manual"
)

func (e *SummarySource) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = SummarySource(s)
	case string:
		*e = SummarySource(s)
	default:
		return fmt.Errorf("unsupported scan type for SummarySource: %T", src)
	}
	return nil
}

type Group struct {
	ID          pgtype.UUID
	Name        string
	Description pgtype.Text
	OwnerID     pgtype.UUID
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

type Class struct {
	ID            pgtype.UUID
	GroupID       pgtype.UUID
	Name          string
	Description   pgtype.Text
	TimeTeacherID pgtype.UUID
	TeacherID     pgtype.UUID
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type Student struct {
	ID            pgtype.UUID
	ClassID       pgtype.UUID
	UserID        pgtype.UUID
	Name          string
	Email         pgtype.Text
	Phone         pgtype.Text
	StudentNumber pgtype.Text
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type FormTemplate struct {
	ID          pgtype.UUID
	Title       string
	Description pgtype.Text
	Fields      []byte
	CreatedBy   pgtype.UUID
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

type Form struct {
	ID          pgtype.UUID
	ClassID     pgtype.UUID
	TemplateID  pgtype.UUID
	Title       string
	Description pgtype.Text
	Fields      []byte
	Status      FormStatus
	DueAt       pgtype.Timestamptz
	CreatedBy   pgtype.UUID
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

type FormInstance struct {
	ID          pgtype.UUID
	FormID      pgtype.UUID
	StudentID   pgtype.UUID
	Status      InstanceStatus
	SubmittedAt pgtype.Timestamptz
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

type FormResponse struct {
	ID             pgtype.UUID
	FormInstanceID pgtype.UUID
	FormID         pgtype.UUID
	StudentID      pgtype.UUID
	Answers        []byte
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

type Report struct {
	ID                     pgtype.UUID
	FormID                 pgtype.UUID
	FormInstanceID         pgtype.UUID
	StudentID              pgtype.UUID
	ClassID                pgtype.UUID
	Stage                  int32
	TimeTeacherID          pgtype.UUID
	TeacherID              pgtype.UUID
	TimeTeacherComment     pgtype.Text
	TimeTeacherCompletedAt pgtype.Timestamptz
	TeacherComment         pgtype.Text
	TeacherCompletedAt     pgtype.Timestamptz
	RejectedAt             pgtype.Timestamptz
	RejectedBy             pgtype.UUID
	RejectionReason        pgtype.Text
	FinalReport            pgtype.Text
	CreatedAt              pgtype.Timestamptz
	UpdatedAt              pgtype.Timestamptz
}

type StudentReport struct {
	ID          pgtype.UUID
	StudentID   pgtype.UUID
	ClassID     pgtype.UUID
	Title       string
	PeriodStart pgtype.Timestamptz
	PeriodEnd   pgtype.Timestamptz
	Content     string
	Source      SummarySource
	CreatedBy   pgtype.UUID
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}
