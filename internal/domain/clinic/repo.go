package clinic

import (
	"context"

	"github.com/google/uuid"
)

// Repositories return pgx.ErrNoRows when a row addressed by id does not
// exist, including from Update and Delete.

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope PatientScope, limit, offset int) ([]*Patient, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error)
	// ListByPatient returns the doctors mapped to a patient in mapping
	// creation order.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Doctor, error)
}

type MappingRepository interface {
	Create(ctx context.Context, m *Mapping) error
	GetByID(ctx context.Context, id uuid.UUID) (*Mapping, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteByPatient removes every mapping of a patient and reports how
	// many rows went.
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
	Exists(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
	List(ctx context.Context, scope PatientScope, limit, offset int) ([]*Mapping, int, error)
}
