package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/madrasa/backend/core"
)

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	IsPublished bool      `json:"is_published"`
	Pricing     Pricing   `json:"pricing"`
	ProfessorID string    `json:"professor_id"`
	LessonCount int       `json:"lesson_count"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (c Course) IsFree() bool { return c.Pricing.IsFree() }

// IsOwnedBy reports whether principalID is the course's owning professor.
func (c Course) IsOwnedBy(principalID string) bool {
	return principalID != "" && c.ProfessorID == principalID
}

// NewCourse contains information needed to create a new Course.
// An empty or zero price makes the course free; negative prices are rejected.
type NewCourse struct {
	Title       string `json:"title" validate:"notblank,max=200"`
	ProfessorID string `json:"professor_id" validate:"required,uuid"`
	PriceCents  *int64 `json:"price_cents" validate:"omitempty,gte=0"`
	Currency    string `json:"currency" validate:"omitempty,currency"`
	IsPublished bool   `json:"is_published"`
	LessonCount int    `json:"lesson_count" validate:"gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.ProfessorID = core.CleanString(nc.ProfessorID, true /* lower */)
	nc.Currency = core.CleanString(nc.Currency)
	return validate.Struct(nc)
}

// Pricing normalizes the price at the write boundary: nil and 0 both become Free.
func (nc NewCourse) Pricing(defaultCurrency string) Pricing {
	if nc.PriceCents == nil {
		return Free()
	}
	currency := nc.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return Paid(*nc.PriceCents, currency)
}
