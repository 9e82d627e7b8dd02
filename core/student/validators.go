package student

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/welfareschool/backend/core"
)

var (
	gradeTag  = "grade"
	gradeText = "grade must be between 1 and 12"

	sectionTag  = "section"
	sectionText = "section must be one of A, B, C or D"

	genderTag  = "gender"
	genderText = "gender must be Male or Female"
)

// InitValidators registers the student validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(gradeTag, oneOfValidation(Grades))
	core.RegisterCustomTranslation(validate, translator, gradeTag, gradeText)

	_ = validate.RegisterValidation(sectionTag, oneOfValidation(Sections))
	core.RegisterCustomTranslation(validate, translator, sectionTag, sectionText)

	_ = validate.RegisterValidation(genderTag, oneOfValidation(Genders))
	core.RegisterCustomTranslation(validate, translator, genderTag, genderText)
}

func oneOfValidation(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	}
}
