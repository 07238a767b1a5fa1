package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// auditedPrefixes are the API trees that expose patient data.
var auditedPrefixes = []string{"/api/patients", "/api/mappings"}

// AuditEntry records who touched which patient data, when and with what outcome.
type AuditEntry struct {
	UserID       string
	ResourceType string
	ResourceID   string
	PatientID    string
	Action       string // read, create, update, delete
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// AuditRecorder receives every audit entry in addition to the structured log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs a phi_access event for every request under /api/patients and
// /api/mappings after the handler has run, and forwards it to recorders.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				UserID:     auth.UserIDFromContext(c.Request().Context()),
				Action:     httpMethodToAction(req.Method),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			entry.ResourceType, entry.ResourceID, entry.PatientID = parseAuditPath(path)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if status == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	for _, p := range auditedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// parseAuditPath extracts the resource type, resource id and patient id from
// an audited path.
//
//	/api/patients/<id>/            -> patients, <id>, <id>
//	/api/mappings/<id>/            -> mappings, <id>, ""
//	/api/mappings/patient/<id>/    -> mappings, "", <id>
func parseAuditPath(path string) (resourceType, resourceID, patientID string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", "", ""
	}
	resourceType = segments[0]

	switch {
	case resourceType == "patients" && len(segments) > 1 && isUUIDLike(segments[1]):
		return resourceType, segments[1], segments[1]
	case resourceType == "mappings" && len(segments) > 2 && segments[1] == "patient" && isUUIDLike(segments[2]):
		return resourceType, "", segments[2]
	case resourceType == "mappings" && len(segments) > 1 && isUUIDLike(segments[1]):
		return resourceType, segments[1], ""
	}
	return resourceType, "", ""
}

func isUUIDLike(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
