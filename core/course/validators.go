package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/madrasa/backend/core"
)

var (
	currencyWithoutPriceTag  = "currency_without_price"
	currencyWithoutPriceText = "currency requires a price"
)

// InitValidators registers the course validation rules.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(newCourseStructValidation, NewCourse{})
	core.RegisterCustomTranslation(validate, translator, currencyWithoutPriceTag, currencyWithoutPriceText)
}

// newCourseStructValidation does NewCourse's struct level validation
func newCourseStructValidation(sl validator.StructLevel) {
	if nc, ok := sl.Current().Interface().(NewCourse); ok {
		if nc.Currency != "" && (nc.PriceCents == nil || *nc.PriceCents == 0) {
			sl.ReportError(nc.Currency, "currency", "Currency", currencyWithoutPriceTag, "")
		}
	}
}
