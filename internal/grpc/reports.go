// Package grpc exposes read access to report workflow state for sibling
// services. Messages use the well-known wrapper and struct types, so the
// service is described by hand instead of generated from a proto file.
package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"semaphore/reports/internal/db"
	"semaphore/reports/internal/workflow"
)

const (
	ServiceName = "reports.v1.ReportQueryService"

	getReportStateMethod     = "/" + ServiceName + "/GetReportState"
	listPendingReviewsMethod = "/" + ServiceName + "/ListPendingReviews"

	pendingLimit = 500
)

// ReportReader is the subset of queries the service reads from.
type ReportReader interface {
	GetReport(ctx context.Context, id pgtype.UUID) (db.Report, error)
	ListReports(ctx context.Context, arg db.ListReportsParams) ([]db.Report, error)
}

type ReportQueryServiceServer interface {
	GetReportState(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	ListPendingReviews(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

type ReportsServer struct {
	reports ReportReader
}

func NewReportsServer(reports ReportReader) *ReportsServer {
	return &ReportsServer{reports: reports}
}

// GetReportState returns the report together with its derived state.
func (s *ReportsServer) GetReportState(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "report_id required")
	}
	reportID, err := parseUUID(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid report_id")
	}
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, status.Error(codes.NotFound, "report not found")
		}
		return nil, status.Error(codes.Internal, "report lookup failed")
	}
	out, err := structpb.NewStruct(reportFields(report))
	if err != nil {
		return nil, status.Error(codes.Internal, "encode report failed")
	}
	return out, nil
}

// ListPendingReviews returns the reports currently waiting on the given user.
func (s *ReportsServer) ListPendingReviews(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id required")
	}
	userID, err := parseUUID(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid user_id")
	}
	reports, err := s.reports.ListReports(ctx, db.ListReportsParams{AwaitingUserID: userID, Limit: pendingLimit})
	if err != nil {
		return nil, status.Error(codes.Internal, "report lookup failed")
	}

	pending := make([]interface{}, 0, len(reports))
	for _, report := range reports {
		pending = append(pending, reportFields(report))
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		"userId":  uuidString(userID),
		"count":   len(pending),
		"reports": pending,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode reports failed")
	}
	return out, nil
}

func reportFields(report db.Report) map[string]interface{} {
	state := workflow.Derive(report)
	fields := map[string]interface{}{
		"id":             uuidString(report.ID),
		"formId":         uuidString(report.FormID),
		"formInstanceId": uuidString(report.FormInstanceID),
		"studentId":      uuidString(report.StudentID),
		"classId":        uuidString(report.ClassID),
		"stage":          report.Stage,
		"phase":          string(state.Phase),
		"awaitingRole":   string(state.AwaitingRole),
		"awaitingUserId": state.AwaitingUserID,
		"rejected":       state.Rejected,
		"complete":       state.Complete,
	}
	if report.RejectionReason.Valid {
		fields["rejectionReason"] = report.RejectionReason.String
	}
	if report.UpdatedAt.Valid {
		fields["updatedAt"] = report.UpdatedAt.Time.UTC().Format(time.RFC3339)
	}
	return fields
}

func RegisterReportQueryServiceServer(s grpc.ServiceRegistrar, srv ReportQueryServiceServer) {
	s.RegisterService(&reportQueryServiceDesc, srv)
}

var reportQueryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportQueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetReportState", Handler: getReportStateHandler},
		{MethodName: "ListPendingReviews", Handler: listPendingReviewsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reports/v1/reports.proto",
}

func getReportStateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportQueryServiceServer).GetReportState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getReportStateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReportQueryServiceServer).GetReportState(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listPendingReviewsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportQueryServiceServer).ListPendingReviews(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listPendingReviewsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReportQueryServiceServer).ListPendingReviews(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ReportQueryClient calls the service from another process.
type ReportQueryClient struct {
	cc grpc.ClientConnInterface
}

func NewReportQueryClient(cc grpc.ClientConnInterface) *ReportQueryClient {
	return &ReportQueryClient{cc: cc}
}

func (c *ReportQueryClient) GetReportState(ctx context.Context, reportID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getReportStateMethod, wrapperspb.String(reportID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReportQueryClient) ListPendingReviews(ctx context.Context, userID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listPendingReviewsMethod, wrapperspb.String(userID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func parseUUID(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func uuidString(value pgtype.UUID) string {
	if !value.Valid {
		return ""
	}
	return uuid.UUID(value.Bytes).String()
}
