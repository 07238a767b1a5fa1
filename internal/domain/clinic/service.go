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

// mappingPairKey is the unique index on (patient_id, doctor_id).
const mappingPairKey = "patient_doctor_mapping_patient_id_doctor_id_key"

// Validator checks structs against their validate tags.
type Validator interface {
	Validate(i interface{}) error
}

// Transactor runs fn in a single database transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	patients  PatientRepository
	doctors   DoctorRepository
	mappings  MappingRepository
	gate      *Gate
	tx        Transactor
	validator Validator
	logger    zerolog.Logger
}

func NewService(patients PatientRepository, doctors DoctorRepository, mappings MappingRepository,
	gate *Gate, tx Transactor, validator Validator, logger zerolog.Logger) *Service {
	return &Service{
		patients:  patients,
		doctors:   doctors,
		mappings:  mappings,
		gate:      gate,
		tx:        tx,
		validator: validator,
		logger:    logger.With().Str("component", "clinic").Logger(),
	}
}

// -- Patient --

// CreatePatient validates in and stores a patient owned by caller.
func (s *Service) CreatePatient(ctx context.Context, caller auth.Identity, in PatientInput) (*Patient, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	var f patientFields
	in.applyTo(&f)
	if err := s.validatePatient(f); err != nil {
		return nil, err
	}

	p := &Patient{OwnerID: caller.UserID}
	f.copyInto(p)
	if err := s.patients.Create(ctx, p); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, apperr.Authentication("user not found")
		}
		return nil, apperr.Internal(fmt.Errorf("create patient: %w", err))
	}

	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("user_id", caller.UserID.String()).
		Msg("patient created")
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Patient, error) {
	return s.gate.AuthorizePatientAccess(ctx, caller, id, OpRead)
}

// ListPatients returns the caller's patients ordered by creation time.
func (s *Service) ListPatients(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Patient, int, error) {
	scope, err := s.gate.ScopePatientList(caller)
	if err != nil {
		return nil, 0, err
	}
	patients, total, err := s.patients.List(ctx, scope, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Errorf("list patients: %w", err))
	}
	return patients, total, nil
}

// UpdatePatient replaces (partial=false) or patches (partial=true) the
// patient's fields. The owner is never taken from input.
func (s *Service) UpdatePatient(ctx context.Context, caller auth.Identity, id uuid.UUID, in PatientInput, partial bool) (*Patient, error) {
	var updated *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.gate.AuthorizePatientAccess(ctx, caller, id, OpUpdate)
		if err != nil {
			return err
		}

		var f patientFields
		if partial {
			f = fieldsOfPatient(p)
		}
		in.applyTo(&f)
		if err := s.validatePatient(f); err != nil {
			return err
		}
		f.copyInto(p)

		if err := s.patients.Update(ctx, p); err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("patient")
			}
			return apperr.Internal(fmt.Errorf("update patient: %w", err))
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", id.String()).
		Str("user_id", caller.UserID.String()).
		Bool("partial", partial).
		Msg("patient updated")
	return updated, nil
}

// DeletePatient removes the patient and all of its mappings atomically.
func (s *Service) DeletePatient(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	var removed int64
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.gate.AuthorizePatientAccess(ctx, caller, id, OpDelete); err != nil {
			return err
		}
		n, err := s.mappings.DeleteByPatient(ctx, id)
		if err != nil {
			return apperr.Internal(fmt.Errorf("delete patient mappings: %w", err))
		}
		removed = n
		if err := s.patients.Delete(ctx, id); err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("patient")
			}
			return apperr.Internal(fmt.Errorf("delete patient: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("patient_id", id.String()).
		Str("user_id", caller.UserID.String()).
		Int64("mappings_removed", removed).
		Msg("patient deleted")
	return nil
}

func (s *Service) validatePatient(f patientFields) error {
	if err := s.validator.Validate(f); err != nil {
		return err
	}
	if f.Phone == "" && f.Email == "" {
		return apperr.ValidationField("phone", "at least one contact method (phone or email) is required")
	}
	return nil
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, caller auth.Identity, in DoctorInput) (*Doctor, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	var f doctorFields
	in.applyTo(&f)
	if err := s.validator.Validate(f); err != nil {
		return nil, err
	}

	d := &Doctor{}
	f.copyInto(d)
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, apperr.Internal(fmt.Errorf("create doctor: %w", err))
	}

	s.logger.Info().
		Str("doctor_id", d.ID.String()).
		Str("user_id", caller.UserID.String()).
		Msg("doctor created")
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Doctor, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.loadDoctor(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, caller auth.Identity, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	if err := requireCaller(caller); err != nil {
		return nil, 0, err
	}
	doctors, total, err := s.doctors.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Errorf("list doctors: %w", err))
	}
	return doctors, total, nil
}

// UpdateDoctor replaces or patches a doctor. Doctors are shared records and
// any authenticated caller may change them.
func (s *Service) UpdateDoctor(ctx context.Context, caller auth.Identity, id uuid.UUID, in DoctorInput, partial bool) (*Doctor, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	var updated *Doctor
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.loadDoctor(ctx, id)
		if err != nil {
			return err
		}

		var f doctorFields
		if partial {
			f = fieldsOfDoctor(d)
		}
		in.applyTo(&f)
		if err := s.validator.Validate(f); err != nil {
			return err
		}
		f.copyInto(d)

		if err := s.doctors.Update(ctx, d); err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("doctor")
			}
			return apperr.Internal(fmt.Errorf("update doctor: %w", err))
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDoctor removes a doctor; its mappings go with it through the
// foreign key cascade.
func (s *Service) DeleteDoctor(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if err := s.doctors.Delete(ctx, id); err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound("doctor")
		}
		return apperr.Internal(fmt.Errorf("delete doctor: %w", err))
	}
	s.logger.Info().
		Str("doctor_id", id.String()).
		Str("user_id", caller.UserID.String()).
		Msg("doctor deleted")
	return nil
}

func (s *Service) loadDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("doctor")
		}
		return nil, apperr.Internal(fmt.Errorf("load doctor: %w", err))
	}
	return d, nil
}

// -- Mapping --

// CreateMapping assigns a doctor to one of the caller's patients. The
// ownership check, existence checks and insert share one transaction.
func (s *Service) CreateMapping(ctx context.Context, caller auth.Identity, in MappingInput) (*Mapping, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	patientID, _ := uuid.Parse(in.PatientID)
	doctorID, _ := uuid.Parse(in.DoctorID)

	var created *Mapping
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.gate.AuthorizePatientAccess(ctx, caller, patientID, OpAssign)
		if err != nil {
			return err
		}
		d, err := s.loadDoctor(ctx, doctorID)
		if err != nil {
			return err
		}

		exists, err := s.mappings.Exists(ctx, patientID, doctorID)
		if err != nil {
			return apperr.Internal(fmt.Errorf("check mapping: %w", err))
		}
		if exists {
			return apperr.Conflict("this doctor is already assigned to this patient")
		}

		m := &Mapping{PatientID: patientID, DoctorID: doctorID, Notes: in.Notes}
		if err := s.mappings.Create(ctx, m); err != nil {
			switch {
			case db.IsUniqueViolation(err, mappingPairKey):
				return apperr.Conflict("this doctor is already assigned to this patient")
			case db.IsForeignKeyViolation(err):
				return apperr.NotFound("patient or doctor")
			}
			return apperr.Internal(fmt.Errorf("create mapping: %w", err))
		}
		m.PatientName = p.FullName()
		m.DoctorName = d.FullName()
		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("mapping_id", created.ID.String()).
		Str("patient_id", patientID.String()).
		Str("doctor_id", doctorID.String()).
		Str("user_id", caller.UserID.String()).
		Msg("doctor assigned to patient")
	return created, nil
}

func (s *Service) GetMapping(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Mapping, error) {
	return s.gate.AuthorizeMappingAccess(ctx, caller, id, OpRead)
}

// ListMappings returns mappings whose patient the caller owns.
func (s *Service) ListMappings(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Mapping, int, error) {
	scope, err := s.gate.ScopePatientList(caller)
	if err != nil {
		return nil, 0, err
	}
	mappings, total, err := s.mappings.List(ctx, scope, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Errorf("list mappings: %w", err))
	}
	return mappings, total, nil
}

// ListDoctorsForPatient returns the patient with its assigned doctors.
func (s *Service) ListDoctorsForPatient(ctx context.Context, caller auth.Identity, patientID uuid.UUID) (*PatientDoctors, error) {
	p, err := s.gate.AuthorizePatientAccess(ctx, caller, patientID, OpRead)
	if err != nil {
		return nil, err
	}
	doctors, err := s.doctors.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list patient doctors: %w", err))
	}
	if doctors == nil {
		doctors = []*Doctor{}
	}
	return &PatientDoctors{Patient: p, Doctors: doctors}, nil
}

// DeleteMapping removes a single assignment; patient and doctor remain.
func (s *Service) DeleteMapping(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.gate.AuthorizeMappingAccess(ctx, caller, id, OpDelete); err != nil {
			return err
		}
		if err := s.mappings.Delete(ctx, id); err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("mapping")
			}
			return apperr.Internal(fmt.Errorf("delete mapping: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("mapping_id", id.String()).
		Str("user_id", caller.UserID.String()).
		Msg("mapping deleted")
	return nil
}
