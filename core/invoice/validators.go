package invoice

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/welfareschool/backend/core"
)

var (
	statusTag  = "invoicestatus"
	statusText = "status must be one of draft, sent, paid or overdue"
)

// InitValidators registers the invoice validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

func statusValidation(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}
