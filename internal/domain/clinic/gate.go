package clinic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

// Op names the kind of access requested from the gate.
type Op string

const (
	OpRead   Op = "read"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpAssign Op = "assign"
)

// DenialRecorder counts ownership rejections.
type DenialRecorder interface {
	RecordDenial(resource, operation string)
}

type nopDenials struct{}

func (nopDenials) RecordDenial(string, string) {}

// PatientScope restricts patient and mapping lists to one owner.
type PatientScope struct {
	OwnerID uuid.UUID
}

// Allows reports whether p falls inside the scope.
func (s PatientScope) Allows(p *Patient) bool {
	return p != nil && s.OwnerID != uuid.Nil && p.OwnerID == s.OwnerID
}

// Gate is the single ownership check for patients and mappings. A patient is
// visible and mutable only by its owner; a mapping inherits its patient's
// owner.
type Gate struct {
	patients PatientRepository
	mappings MappingRepository
	denials  DenialRecorder
	logger   zerolog.Logger
}

func NewGate(patients PatientRepository, mappings MappingRepository, denials DenialRecorder, logger zerolog.Logger) *Gate {
	if denials == nil {
		denials = nopDenials{}
	}
	return &Gate{
		patients: patients,
		mappings: mappings,
		denials:  denials,
		logger:   logger.With().Str("component", "gate").Logger(),
	}
}

// AuthorizePatientAccess loads the patient and checks the caller owns it.
func (g *Gate) AuthorizePatientAccess(ctx context.Context, caller auth.Identity, patientID uuid.UUID, op Op) (*Patient, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	p, err := g.patients.GetByID(ctx, patientID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("patient")
		}
		return nil, apperr.Internal(fmt.Errorf("load patient: %w", err))
	}
	if !ownerScope(caller).Allows(p) {
		g.deny("patient", op, caller, patientID)
		return nil, apperr.Forbidden(forbiddenMessage("patient", op))
	}
	return p, nil
}

// AuthorizeMappingAccess loads the mapping and checks the caller owns its
// patient.
func (g *Gate) AuthorizeMappingAccess(ctx context.Context, caller auth.Identity, mappingID uuid.UUID, op Op) (*Mapping, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	m, err := g.mappings.GetByID(ctx, mappingID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("mapping")
		}
		return nil, apperr.Internal(fmt.Errorf("load mapping: %w", err))
	}
	p, err := g.patients.GetByID(ctx, m.PatientID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("mapping")
		}
		return nil, apperr.Internal(fmt.Errorf("load mapping patient: %w", err))
	}
	if !ownerScope(caller).Allows(p) {
		g.deny("mapping", op, caller, mappingID)
		return nil, apperr.Forbidden(forbiddenMessage("mapping", op))
	}
	return m, nil
}

// ScopePatientList returns the filter every patient and mapping list applies.
func (g *Gate) ScopePatientList(caller auth.Identity) (PatientScope, error) {
	if err := requireCaller(caller); err != nil {
		return PatientScope{}, err
	}
	return ownerScope(caller), nil
}

func ownerScope(caller auth.Identity) PatientScope {
	return PatientScope{OwnerID: caller.UserID}
}

func (g *Gate) deny(resource string, op Op, caller auth.Identity, id uuid.UUID) {
	g.denials.RecordDenial(resource, string(op))
	g.logger.Warn().
		Str("resource", resource).
		Str("resource_id", id.String()).
		Str("operation", string(op)).
		Str("user_id", caller.UserID.String()).
		Msg("ownership check failed")
}

func requireCaller(caller auth.Identity) error {
	if caller.IsZero() {
		return apperr.Authentication("authentication credentials were not provided")
	}
	return nil
}

func forbiddenMessage(resource string, op Op) string {
	switch {
	case resource == "mapping" && op == OpDelete:
		return "you can only delete mappings for your own patients"
	case resource == "mapping":
		return "you can only access mappings for your own patients"
	case op == OpAssign:
		return "you can only assign doctors to your own patients"
	case op == OpDelete:
		return "you can only delete your own patients"
	case op == OpUpdate:
		return "you can only update your own patients"
	default:
		return "you do not have permission to access this patient"
	}
}
