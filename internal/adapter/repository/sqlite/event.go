package sqlite

import (
	"context"

	loanDomain "cryptoloans-backend/internal/domain/loan"

	"gorm.io/gorm"
)

type EventRepository struct{ db *gorm.DB }

func NewEventRepository(db *gorm.DB) *EventRepository { return &EventRepository{db: db} }

func (r *EventRepository) Append(ctx context.Context, e *loanDomain.Event) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *EventRepository) ListByLoanIDs(ctx context.Context, ids ...string) ([]loanDomain.Event, error) {
	var out []loanDomain.Event
	res := r.db.WithContext(ctx).
		Where("loan_id IN ?", ids).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}
