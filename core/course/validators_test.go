package course

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/madrasa/backend/core"
)

func TestNewCourse_Validate(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	i64 := func(i int64) *int64 { return &i }
	professorID := "5f0c7c1e-3a4b-4c5d-8e9f-0a1b2c3d4e5f"

	tests := []struct {
		name       string
		nc         NewCourse
		wantFields map[string]string
	}{
		{
			name: "valid paid course",
			nc:   NewCourse{Title: "Tajweed 101", ProfessorID: professorID, PriceCents: i64(19900), Currency: "EGP"},
		},
		{
			name: "valid free course",
			nc:   NewCourse{Title: "Intro", ProfessorID: professorID},
		},
		{
			name:       "blank title",
			nc:         NewCourse{Title: "   ", ProfessorID: professorID},
			wantFields: map[string]string{"title": "this field cannot be blank"},
		},
		{
			name:       "negative price",
			nc:         NewCourse{Title: "Intro", ProfessorID: professorID, PriceCents: i64(-1)},
			wantFields: map[string]string{"price_cents": "price_cents must be 0 or greater"},
		},
		{
			name:       "bad currency",
			nc:         NewCourse{Title: "Intro", ProfessorID: professorID, PriceCents: i64(100), Currency: "egp1"},
			wantFields: map[string]string{"currency": "must be a 3-letter ISO 4217 currency code"},
		},
		{
			name:       "currency without price",
			nc:         NewCourse{Title: "Intro", ProfessorID: professorID, Currency: "EGP"},
			wantFields: map[string]string{"currency": "currency requires a price"},
		},
		{
			name:       "missing professor",
			nc:         NewCourse{Title: "Intro"},
			wantFields: map[string]string{"professor_id": "this field is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nc.Validate(validate)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			verrs, ok := err.(validator.ValidationErrors)
			if assert.True(t, ok, "want validator.ValidationErrors, got %v", err) {
				got := make(map[string]string)
				for _, fe := range verrs {
					got[fe.Field()] = fe.Translate(translator)
				}
				assert.Equal(t, tt.wantFields, got)
			}
		})
	}
}
