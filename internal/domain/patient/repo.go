package patient

import "context"

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	GetByPhone(ctx context.Context, phone string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, q string, limit int) ([]*Patient, error)
}
