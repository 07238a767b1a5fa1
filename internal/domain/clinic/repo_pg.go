package clinic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/hipaa"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool      *pgxpool.Pool
	encryptor hipaa.FieldEncryptor
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

// NewPatientRepoWithEncryption encrypts medical_history at rest. A nil
// encryptor stores plaintext.
func NewPatientRepoWithEncryption(pool *pgxpool.Pool, enc hipaa.FieldEncryptor) PatientRepository {
	return &patientRepoPG{pool: pool, encryptor: enc}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `p.id, p.owner_id, u.name, p.first_name, p.last_name, p.date_of_birth, p.gender,
	p.phone, p.email, p.address, p.medical_history, p.created_at, p.updated_at`

const patientFrom = ` FROM patient p JOIN users u ON u.id = p.owner_id`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()

	history, err := r.encrypt(p.MedicalHistory)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}

	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (
			id, owner_id, first_name, last_name, date_of_birth, gender,
			phone, email, address, medical_history
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at, (SELECT name FROM users WHERE id = $2)`,
		p.ID, p.OwnerID, p.FirstName, p.LastName, p.DateOfBirth.Time, p.Gender,
		p.Phone, p.Email, p.Address, history,
	).Scan(&p.CreatedAt, &p.UpdatedAt, &p.CreatedByName)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.decryptPatient(p); err != nil {
		return nil, fmt.Errorf("patient get by id: %w", err)
	}
	return p, nil
}

// Update writes every mutable column. owner_id is not among them.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	history, err := r.encrypt(p.MedicalHistory)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}

	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET
			first_name=$2, last_name=$3, date_of_birth=$4, gender=$5,
			phone=$6, email=$7, address=$8, medical_history=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth.Time, p.Gender,
		p.Phone, p.Email, p.Address, history,
	).Scan(&p.UpdatedAt)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, scope PatientScope, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE owner_id = $1`, scope.OwnerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+patientFrom+`
		WHERE p.owner_id = $1
		ORDER BY p.created_at, p.id
		LIMIT $2 OFFSET $3`, scope.OwnerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		if err := r.decryptPatient(p); err != nil {
			return nil, 0, fmt.Errorf("patient list: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func (r *patientRepoPG) encrypt(value string) (string, error) {
	if r.encryptor == nil || value == "" {
		return value, nil
	}
	encrypted, err := r.encryptor.Encrypt(value)
	if err != nil {
		return "", fmt.Errorf("encrypting PHI field: %w", err)
	}
	return encrypted, nil
}

func (r *patientRepoPG) decryptPatient(p *Patient) error {
	if r.encryptor == nil || p.MedicalHistory == "" {
		return nil
	}
	decrypted, err := r.encryptor.Decrypt(p.MedicalHistory)
	if err != nil {
		return fmt.Errorf("decrypting PHI field: %w", err)
	}
	p.MedicalHistory = decrypted
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.OwnerID, &p.CreatedByName, &p.FirstName, &p.LastName,
		&p.DateOfBirth.Time, &p.Gender, &p.Phone, &p.Email, &p.Address, &p.MedicalHistory,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `d.id, d.first_name, d.last_name, d.specialization, d.phone, d.email,
	d.years_of_experience, d.created_at, d.updated_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, first_name, last_name, specialization, phone, email, years_of_experience)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.Specialization, d.Phone, d.Email, d.YearsOfExperience,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor d WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET
			first_name=$2, last_name=$3, specialization=$4, phone=$5, email=$6,
			years_of_experience=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FirstName, d.LastName, d.Specialization, d.Phone, d.Email, d.YearsOfExperience,
	).Scan(&d.UpdatedAt)
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	const where = ` WHERE ($1 = '' OR lower(d.specialization) = lower($1))`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor d`+where, filter.Specialization).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctor d`+where+`
		ORDER BY d.last_name, d.first_name, d.id
		LIMIT $2 OFFSET $3`, filter.Specialization, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	doctors, err := collectDoctors(rows)
	if err != nil {
		return nil, 0, err
	}
	return doctors, total, nil
}

func (r *doctorRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+`
		FROM patient_doctor_mapping m JOIN doctor d ON d.id = m.doctor_id
		WHERE m.patient_id = $1
		ORDER BY m.created_at, m.id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDoctors(rows)
}

func collectDoctors(rows pgx.Rows) ([]*Doctor, error) {
	doctors := []*Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Specialization, &d.Phone, &d.Email,
		&d.YearsOfExperience, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// -- Mapping Repository --

type mappingRepoPG struct {
	pool *pgxpool.Pool
}

func NewMappingRepo(pool *pgxpool.Pool) MappingRepository {
	return &mappingRepoPG{pool: pool}
}

func (r *mappingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const mappingCols = `m.id, m.patient_id, m.doctor_id,
	trim(p.first_name || ' ' || p.last_name),
	trim('Dr. ' || d.first_name || ' ' || d.last_name),
	m.notes, m.assigned_date, m.created_at`

const mappingFrom = ` FROM patient_doctor_mapping m
	JOIN patient p ON p.id = m.patient_id
	JOIN doctor d ON d.id = m.doctor_id`

// Create inserts the mapping; assigned_date and created_at come from the
// database clock.
func (r *mappingRepoPG) Create(ctx context.Context, m *Mapping) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_doctor_mapping (id, patient_id, doctor_id, notes)
		VALUES ($1,$2,$3,$4)
		RETURNING assigned_date, created_at`,
		m.ID, m.PatientID, m.DoctorID, m.Notes,
	).Scan(&m.AssignedDate.Time, &m.CreatedAt)
}

func (r *mappingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Mapping, error) {
	return scanMapping(r.conn(ctx).QueryRow(ctx, `SELECT `+mappingCols+mappingFrom+` WHERE m.id = $1`, id))
}

func (r *mappingRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_doctor_mapping WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *mappingRepoPG) DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_doctor_mapping WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *mappingRepoPG) Exists(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patient_doctor_mapping WHERE patient_id = $1 AND doctor_id = $2)`,
		patientID, doctorID,
	).Scan(&exists)
	return exists, err
}

func (r *mappingRepoPG) List(ctx context.Context, scope PatientScope, limit, offset int) ([]*Mapping, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patient_doctor_mapping m
		JOIN patient p ON p.id = m.patient_id
		WHERE p.owner_id = $1`, scope.OwnerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+mappingCols+mappingFrom+`
		WHERE p.owner_id = $1
		ORDER BY m.created_at, m.id
		LIMIT $2 OFFSET $3`, scope.OwnerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	mappings := []*Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, 0, err
		}
		mappings = append(mappings, m)
	}
	return mappings, total, rows.Err()
}

func scanMapping(row pgx.Row) (*Mapping, error) {
	var m Mapping
	err := row.Scan(&m.ID, &m.PatientID, &m.DoctorID, &m.PatientName, &m.DoctorName,
		&m.Notes, &m.AssignedDate.Time, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
