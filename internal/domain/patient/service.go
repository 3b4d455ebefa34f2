package patient

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/pkg/emailaddr"
	"github.com/bloodlab/bloodlab/pkg/pagination"
	"github.com/bloodlab/bloodlab/pkg/phone"
)

// SearchLimit caps quick-search results.
const SearchLimit = 10

type Service struct {
	patients    PatientRepository
	phoneRegion string
	logger      zerolog.Logger
}

func NewService(patients PatientRepository, phoneRegion string, logger zerolog.Logger) *Service {
	return &Service{patients: patients, phoneRegion: phoneRegion, logger: logger.With().Str("component", "patient").Logger()}
}

func (s *Service) CreatePatient(ctx context.Context, in Input) (*Patient, error) {
	details := map[string]string{}
	for field, v := range map[string]bool{
		"name": in.Name == nil, "age": in.Age == nil, "gender": in.Gender == nil, "phone": in.Phone == nil,
	} {
		if v {
			details[field] = field + " is required"
		}
	}
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details)
	}

	p := &Patient{Active: true}
	if err := s.apply(p, in); err != nil {
		return nil, err
	}

	if existing, err := s.patients.GetByPhone(ctx, p.Phone); err == nil && existing != nil {
		return nil, apperr.Conflict("patient with this phone number already exists")
	} else if err != nil && !apperr.IsNotFound(err) {
		return nil, err
	}

	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("patient_id", p.ID).Msg("patient created")
	return p, nil
}

// GetPatient returns the patient whether or not it is active.
func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// FindByID is the lookup used by report creation; inactive patients resolve.
func (s *Service) FindByID(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, id int64, in Input) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPhone := p.Phone
	if err := s.apply(p, in); err != nil {
		return nil, err
	}

	if p.Phone != oldPhone {
		existing, err := s.patients.GetByPhone(ctx, p.Phone)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, err
		}
		if existing != nil && existing.ID != id {
			return nil, apperr.Conflict("patient with this phone number already exists")
		}
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient deactivates the patient; reports keep referencing it.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	if err := s.patients.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("patient_id", id).Msg("patient deactivated")
	return nil
}

func (s *Service) ListPatients(ctx context.Context, f ListFilter, page pagination.Params) ([]*Patient, pagination.Meta, error) {
	if f.Gender != "" && !validGender(f.Gender) {
		return nil, pagination.Meta{}, apperr.Validation("validation failed", map[string]string{"gender": "gender must be male, female, or other"})
	}
	items, total, err := s.patients.List(ctx, s.filter(f), page.Limit, page.Offset())
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return items, pagination.NewMeta(page, total), nil
}

func (s *Service) SearchPatients(ctx context.Context, q string) ([]*Patient, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("search query is required", map[string]string{"q": "search query is required"})
	}
	items, err := s.patients.Search(ctx, q, SearchLimit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return items, nil
}

func (s *Service) filter(f ListFilter) ListFilter {
	f.Name = strings.TrimSpace(f.Name)
	if key := phone.SearchKey(f.Phone); key != "" {
		f.Phone = key
	} else {
		f.Phone = strings.TrimSpace(f.Phone)
	}
	return f
}

// apply validates every field present in in and copies it onto p.
func (s *Service) apply(p *Patient, in Input) error {
	details := map[string]string{}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
			details["name"] = "name must be between 2 and 100 characters"
		} else {
			p.Name = name
		}
	}
	if in.Age != nil {
		if *in.Age < 0 || *in.Age > 150 {
			details["age"] = "age must be between 0 and 150"
		} else {
			p.Age = *in.Age
		}
	}
	if in.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*in.Gender))
		if !validGender(g) {
			details["gender"] = "gender must be male, female, or other"
		} else {
			p.Gender = g
		}
	}
	if in.Phone != nil {
		normalized, err := phone.Normalize(*in.Phone, s.phoneRegion)
		if err != nil {
			details["phone"] = "please provide a valid phone number"
		} else {
			p.Phone = normalized
		}
	}
	if in.Email != nil {
		if strings.TrimSpace(*in.Email) == "" {
			p.Email = nil
		} else if email, err := emailaddr.Normalize(*in.Email); err != nil {
			details["email"] = "please provide a valid email"
		} else {
			p.Email = &email
		}
	}
	if in.EmergencyPhone != nil {
		if strings.TrimSpace(*in.EmergencyPhone) == "" {
			p.EmergencyPhone = nil
		} else if normalized, err := phone.Normalize(*in.EmergencyPhone, s.phoneRegion); err != nil {
			details["emergencyPhone"] = "please provide a valid phone number"
		} else {
			p.EmergencyPhone = &normalized
		}
	}
	if in.Address != nil {
		p.Address = optional(*in.Address)
	}
	if in.EmergencyContact != nil {
		contact := optional(*in.EmergencyContact)
		if contact != nil && utf8.RuneCountInString(*contact) > 100 {
			details["emergencyContact"] = "emergency contact must be at most 100 characters"
		} else {
			p.EmergencyContact = contact
		}
	}
	if in.MedicalHistory != nil {
		p.MedicalHistory = optional(*in.MedicalHistory)
	}

	if len(details) > 0 {
		return apperr.Validation("validation failed", details)
	}
	return nil
}

func validGender(g string) bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
