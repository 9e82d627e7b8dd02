package transaction

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/welfareschool/backend/core"
)

var (
	categoryTag  = "txcategory"
	categoryText = "category does not belong to the transaction type"
)

// InitValidators registers the transaction validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(transactionStructValidation, NewTransaction{})
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)
}

// transactionStructValidation checks the category against the taxonomy of the type.
func transactionStructValidation(sl validator.StructLevel) {
	nt, ok := sl.Current().Interface().(NewTransaction)
	if !ok || nt.Type == "" || nt.Category == "" {
		return
	}
	if !ValidCategory(nt.Type, nt.Category) {
		sl.ReportError(nt.Category, "category", "Category", categoryTag, "")
	}
}
