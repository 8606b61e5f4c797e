package http

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"semaphore/reports/internal/auth"
	"semaphore/reports/internal/config"
	"semaphore/reports/internal/db"
	"semaphore/reports/internal/events"
	"semaphore/reports/internal/logger"
	"semaphore/reports/internal/metrics"
	"semaphore/reports/internal/notify"
	"semaphore/reports/internal/operations"
	"semaphore/reports/internal/summary"
	"semaphore/reports/internal/validate"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

type Summarizer interface {
	Summarize(ctx context.Context, text string) (summary.Result, error)
}

type Server struct {
	cfg          config.Config
	store        *db.Store
	broker       events.Broker
	summarizer   Summarizer
	notifier     notify.Notifier
	jwtPublicKey *rsa.PublicKey
	keepAlive    time.Duration
}

func NewServer(cfg config.Config, store *db.Store, broker events.Broker, summarizer Summarizer, notifier notify.Notifier) (*Server, error) {
	publicKey, err := auth.ParseRSAPublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	if broker == nil {
		broker = events.NewMemoryBroker()
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Server{
		cfg:          cfg,
		store:        store,
		broker:       broker,
		summarizer:   summarizer,
		notifier:     notifier,
		jwtPublicKey: publicKey,
		keepAlive:    25 * time.Second,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware, s.requireStaff).Get("/groups", s.handleGetGroups)
	r.With(s.authMiddleware, s.requireManager).Post("/group", s.handleCreateGroup)
	r.With(s.authMiddleware, s.requireStaff).Get("/group/{groupId}", s.handleGetGroup)
	r.With(s.authMiddleware, s.requireManager).Patch("/group/{groupId}", s.handlePatchGroup)
	r.With(s.authMiddleware, s.requireManager).Delete("/group/{groupId}", s.handleDeleteGroup)
	r.With(s.authMiddleware, s.requireStaff).Get("/group/{groupId}/stats", s.handleGetGroupStats)
	r.With(s.authMiddleware, s.requireStaff).Get("/group/{groupId}/events", s.handleGroupEvents)

	r.With(s.authMiddleware, s.requireStaff).Get("/group/{groupId}/classes", s.handleGetClasses)
	r.With(s.authMiddleware, s.requireManager).Post("/class", s.handleCreateClass)
	r.With(s.authMiddleware, s.requireStaff).Get("/class/{classId}", s.handleGetClass)
	r.With(s.authMiddleware, s.requireManager).Patch("/class/{classId}", s.handlePatchClass)
	r.With(s.authMiddleware, s.requireManager).Delete("/class/{classId}", s.handleDeleteClass)

	r.With(s.authMiddleware, s.requireStaff).Get("/class/{classId}/students", s.handleGetStudents)
	r.With(s.authMiddleware, s.requireStaff).Post("/class/{classId}/students", s.handleCreateStudents)
	r.With(s.authMiddleware, s.requireStaff).Post("/student", s.handleCreateStudent)
	r.With(s.authMiddleware).Get("/student/{studentId}", s.handleGetStudent)
	r.With(s.authMiddleware, s.requireStaff).Patch("/student/{studentId}", s.handlePatchStudent)
	r.With(s.authMiddleware, s.requireStaff).Delete("/student/{studentId}", s.handleDeleteStudent)

	r.With(s.authMiddleware, s.requireStaff).Get("/formTemplates", s.handleGetFormTemplates)
	r.With(s.authMiddleware, s.requireStaff).Post("/formTemplate", s.handleCreateFormTemplate)
	r.With(s.authMiddleware, s.requireStaff).Get("/formTemplate/{templateId}", s.handleGetFormTemplate)
	r.With(s.authMiddleware, s.requireStaff).Patch("/formTemplate/{templateId}", s.handlePatchFormTemplate)
	r.With(s.authMiddleware, s.requireStaff).Delete("/formTemplate/{templateId}", s.handleDeleteFormTemplate)

	r.With(s.authMiddleware, s.requireStaff).Get("/class/{classId}/forms", s.handleGetForms)
	r.With(s.authMiddleware, s.requireStaff).Post("/form", s.handleCreateForm)
	r.With(s.authMiddleware).Get("/form/{formId}", s.handleGetForm)
	r.With(s.authMiddleware, s.requireStaff).Patch("/form/{formId}", s.handlePatchForm)
	r.With(s.authMiddleware, s.requireStaff).Delete("/form/{formId}", s.handleDeleteForm)
	r.With(s.authMiddleware, s.requireStaff).Post("/form/{formId}/distribute", s.handleDistributeForm)
	r.With(s.authMiddleware, s.requireStaff).Get("/form/{formId}/instances", s.handleGetFormInstances)
	r.With(s.authMiddleware, s.requireStaff).Get("/form/{formId}/stats", s.handleGetFormStats)

	r.With(s.authMiddleware).Get("/formInstances", s.handleGetMyFormInstances)
	r.With(s.authMiddleware).Get("/formInstance/{instanceId}", s.handleGetFormInstance)
	r.With(s.authMiddleware).Post("/formInstance/{instanceId}/submit", s.handleSubmitFormInstance)

	r.With(s.authMiddleware).Get("/reports", s.handleGetReports)
	r.With(s.authMiddleware).Get("/report/{reportId}", s.handleGetReport)
	r.With(s.authMiddleware).Post("/report/{reportId}/comment", s.handleCommentReport)
	r.With(s.authMiddleware).Post("/report/{reportId}/reject", s.handleRejectReport)
	r.With(s.authMiddleware, s.requireStaff).Post("/report/{reportId}/summary", s.handleDraftReportSummary)
	r.With(s.authMiddleware, s.requireStaff).Patch("/report/{reportId}/final", s.handlePatchFinalReport)

	r.With(s.authMiddleware).Get("/student/{studentId}/reports", s.handleGetStudentReports)
	r.With(s.authMiddleware, s.requireStaff).Post("/studentReport", s.handleCreateStudentReport)
	r.With(s.authMiddleware).Get("/studentReport/{studentReportId}", s.handleGetStudentReport)
	r.With(s.authMiddleware, s.requireStaff).Patch("/studentReport/{studentReportId}", s.handlePatchStudentReport)
	r.With(s.authMiddleware, s.requireStaff).Delete("/studentReport/{studentReportId}", s.handleDeleteStudentReport)

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.jwtPublicKey, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func (s *Server) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !claimsFromContext(r.Context()).IsStaff() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireManager admits teachers, admins and devs. Time-teachers review but do
// not manage groups or classes.
func (s *Server) requireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || (claims.UserType != auth.UserTypeTeacher && !claims.IsPrivileged()) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Log.WithFields(logrus.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request")
	})
}

// Errors

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	logger.Log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"path":       r.URL.Path,
	}).WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, "server_error")
}

// lookupError answers 404 with the given code for missing rows and 500 otherwise.
func (s *Server) lookupError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if db.IsNotFound(err) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	s.serverError(w, r, err)
}

var operationStatus = map[string]int{
	operations.ErrInvalidReportID:       http.StatusBadRequest,
	operations.ErrInvalidCommentType:    http.StatusBadRequest,
	operations.ErrCommentTooShort:       http.StatusBadRequest,
	operations.ErrMissingReason:         http.StatusBadRequest,
	operations.ErrReasonTooLong:         http.StatusBadRequest,
	operations.ErrInvalidFormID:         http.StatusBadRequest,
	operations.ErrInvalidFormInstanceID: http.StatusBadRequest,
	operations.ErrInvalidAnswers:        http.StatusBadRequest,
	operations.ErrForbidden:             http.StatusForbidden,
	operations.ErrReportNotFound:        http.StatusNotFound,
	operations.ErrFormNotFound:          http.StatusNotFound,
	operations.ErrFormInstanceNotFound:  http.StatusNotFound,
	operations.ErrStudentNotFound:       http.StatusNotFound,
	operations.ErrClassNotFound:         http.StatusNotFound,
	operations.ErrInvalidStage:          http.StatusConflict,
	operations.ErrStageChanged:          http.StatusConflict,
	operations.ErrAlreadyRejected:       http.StatusConflict,
	operations.ErrResponseLocked:        http.StatusConflict,
	operations.ErrReportNotComplete:     http.StatusConflict,
	operations.ErrFormClosed:            http.StatusConflict,
	operations.ErrFormNotPublished:      http.StatusConflict,
}

func (s *Server) writeOperationError(w http.ResponseWriter, r *http.Request, err error) {
	var opErr *operations.Error
	if !errors.As(err, &opErr) {
		s.serverError(w, r, err)
		return
	}
	status, ok := operationStatus[opErr.Code]
	if !ok {
		s.serverError(w, r, err)
		return
	}
	payload := map[string]string{"error": opErr.Code}
	if opErr.Message != "" {
		payload["message"] = opErr.Message
	}
	writeJSON(w, status, payload)
}

// Change notifications

func (s *Server) publish(ctx context.Context, groupID pgtype.UUID, entity string, id pgtype.UUID, action string) {
	if !groupID.Valid {
		return
	}
	change := events.Change{
		GroupID: uuidString(groupID),
		Entity:  entity,
		ID:      uuidString(id),
		Action:  action,
		At:      time.Now().UTC(),
	}
	if err := s.broker.Publish(ctx, change); err != nil {
		logger.Log.WithError(err).WithField("entity", entity).Warn("publish change failed")
		return
	}
	metrics.ChangeEvents.WithLabelValues(entity).Inc()
}

func (s *Server) publishForClass(ctx context.Context, classID pgtype.UUID, entity string, id pgtype.UUID, action string) {
	groupID, err := s.store.Queries.GroupIDForClass(ctx, classID)
	if err != nil {
		if !db.IsNotFound(err) {
			logger.Log.WithError(err).Warn("resolve group for change failed")
		}
		return
	}
	s.publish(ctx, groupID, entity, id, action)
}

// notifyAsync delivers a notification without holding up the response.
func (s *Server) notifyAsync(userID, message string) {
	if userID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, userID, message); err != nil {
			entry := logger.Log.WithError(err).WithField("user_id", userID)
			if errors.Is(err, notify.ErrNoRecipient) {
				entry.Debug("no notification recipient")
				return
			}
			entry.Warn("notification failed")
		}
	}()
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// decodeValid decodes the body and runs struct validation, writing the error
// response itself. It returns false when the handler should stop.
func decodeValid(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := decodeJSON(r, out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	if err := validate.Struct(out); err != nil {
		writeError(w, http.StatusBadRequest, validate.Code(err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func queryLimit(r *http.Request) int32 {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return int32(limit)
}

// urlUUID reads a UUID path parameter, writing missing_/invalid_ errors.
func urlUUID(w http.ResponseWriter, r *http.Request, param, code string) (pgtype.UUID, bool) {
	value := chi.URLParam(r, param)
	if value == "" {
		writeError(w, http.StatusBadRequest, "missing_"+code)
		return pgtype.UUID{}, false
	}
	id, err := parseUUID(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+code)
		return pgtype.UUID{}, false
	}
	return id, true
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDFromString(id string) pgtype.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func parseUUID(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func optionalUUID(id *string) (pgtype.UUID, error) {
	if id == nil || strings.TrimSpace(*id) == "" {
		return pgtype.UUID{}, nil
	}
	return parseUUID(strings.TrimSpace(*id))
}

func pgText(value string) pgtype.Text {
	value = strings.TrimSpace(value)
	return pgtype.Text{String: value, Valid: value != ""}
}

func textPtr(value pgtype.Text) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nowPgTime() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
}

func pgTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func timePtr(value pgtype.Timestamptz) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func sameUser(id pgtype.UUID, userID string) bool {
	return id.Valid && strings.EqualFold(uuidString(id), userID)
}
