package clinic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/validation"
)

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(validation.DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(validation.DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("date must be in YYYY-MM-DD format")
	}
	*d = parsed
	return nil
}

const (
	GenderMale   = "M"
	GenderFemale = "F"
	GenderOther  = "O"
)

// -- Patient --

type Patient struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        uuid.UUID `json:"owner"`
	CreatedByName  string    `json:"created_by_name"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	DateOfBirth    Date      `json:"date_of_birth"`
	Gender         string    `json:"gender"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email"`
	Address        string    `json:"address"`
	MedicalHistory string    `json:"medical_history"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// PatientInput is a create or update body. Nil fields were absent from the
// request. Owner and timestamps are not accepted from clients.
type PatientInput struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	DateOfBirth    *string `json:"date_of_birth"`
	Gender         *string `json:"gender"`
	Phone          *string `json:"phone"`
	Email          *string `json:"email"`
	Address        *string `json:"address"`
	MedicalHistory *string `json:"medical_history"`
}

// patientFields is the validated shape of a patient after an input has been
// applied.
type patientFields struct {
	FirstName      string `json:"first_name" validate:"required,max=100"`
	LastName       string `json:"last_name" validate:"required,max=100"`
	DateOfBirth    string `json:"date_of_birth" validate:"required,isodate,notfuture"`
	Gender         string `json:"gender" validate:"required,oneof=M F O"`
	Phone          string `json:"phone" validate:"omitempty,phone,max=20"`
	Email          string `json:"email" validate:"omitempty,email,max=254"`
	Address        string `json:"address" validate:"max=500"`
	MedicalHistory string `json:"medical_history"`
}

func fieldsOfPatient(p *Patient) patientFields {
	return patientFields{
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		DateOfBirth:    p.DateOfBirth.String(),
		Gender:         p.Gender,
		Phone:          p.Phone,
		Email:          p.Email,
		Address:        p.Address,
		MedicalHistory: p.MedicalHistory,
	}
}

func (in *PatientInput) applyTo(f *patientFields) {
	setString(&f.FirstName, in.FirstName)
	setString(&f.LastName, in.LastName)
	setString(&f.DateOfBirth, in.DateOfBirth)
	setString(&f.Gender, in.Gender)
	setString(&f.Phone, in.Phone)
	setString(&f.Email, in.Email)
	setString(&f.Address, in.Address)
	if in.MedicalHistory != nil {
		f.MedicalHistory = *in.MedicalHistory
	}
}

// copyInto writes validated fields onto p. DateOfBirth has already passed
// the isodate rule.
func (f patientFields) copyInto(p *Patient) {
	dob, _ := ParseDate(f.DateOfBirth)
	p.FirstName = f.FirstName
	p.LastName = f.LastName
	p.DateOfBirth = dob
	p.Gender = f.Gender
	p.Phone = f.Phone
	p.Email = f.Email
	p.Address = f.Address
	p.MedicalHistory = f.MedicalHistory
}

// -- Doctor --

type Doctor struct {
	ID                uuid.UUID `json:"id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Specialization    string    `json:"specialization"`
	Phone             string    `json:"phone"`
	Email             string    `json:"email"`
	YearsOfExperience int       `json:"years_of_experience"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (d *Doctor) FullName() string {
	return strings.TrimSpace("Dr. " + d.FirstName + " " + d.LastName)
}

type DoctorInput struct {
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	Specialization    *string `json:"specialization"`
	Phone             *string `json:"phone"`
	Email             *string `json:"email"`
	YearsOfExperience *int    `json:"years_of_experience"`
}

type doctorFields struct {
	FirstName         string `json:"first_name" validate:"required,max=100"`
	LastName          string `json:"last_name" validate:"required,max=100"`
	Specialization    string `json:"specialization" validate:"required,max=100"`
	Phone             string `json:"phone" validate:"omitempty,phone,max=20"`
	Email             string `json:"email" validate:"omitempty,email,max=254"`
	YearsOfExperience int    `json:"years_of_experience" validate:"min=0,max=70"`
}

func fieldsOfDoctor(d *Doctor) doctorFields {
	return doctorFields{
		FirstName:         d.FirstName,
		LastName:          d.LastName,
		Specialization:    d.Specialization,
		Phone:             d.Phone,
		Email:             d.Email,
		YearsOfExperience: d.YearsOfExperience,
	}
}

func (in *DoctorInput) applyTo(f *doctorFields) {
	setString(&f.FirstName, in.FirstName)
	setString(&f.LastName, in.LastName)
	setString(&f.Specialization, in.Specialization)
	setString(&f.Phone, in.Phone)
	setString(&f.Email, in.Email)
	if in.YearsOfExperience != nil {
		f.YearsOfExperience = *in.YearsOfExperience
	}
}

func (f doctorFields) copyInto(d *Doctor) {
	d.FirstName = f.FirstName
	d.LastName = f.LastName
	d.Specialization = f.Specialization
	d.Phone = f.Phone
	d.Email = f.Email
	d.YearsOfExperience = f.YearsOfExperience
}

// DoctorFilter narrows ListDoctors. An empty Specialization matches all.
type DoctorFilter struct {
	Specialization string
}

// -- Mapping --

type Mapping struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient"`
	DoctorID     uuid.UUID `json:"doctor"`
	PatientName  string    `json:"patient_name"`
	DoctorName   string    `json:"doctor_name"`
	Notes        string    `json:"notes"`
	AssignedDate Date      `json:"assigned_date"`
	CreatedAt    time.Time `json:"created_at"`
}

type MappingInput struct {
	PatientID string `json:"patient" validate:"required,uuid"`
	DoctorID  string `json:"doctor" validate:"required,uuid"`
	Notes     string `json:"notes" validate:"max=2000"`
}

// PatientDoctors is the body of the doctors-for-patient lookup.
type PatientDoctors struct {
	Patient *Patient  `json:"patient"`
	Doctors []*Doctor `json:"doctors"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
