package identity

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/welfareschool/backend/core/session"
)

var (
	// password policy
	pwdMinLen     = 6
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to your name or email"

	passwordTags = map[string]bool{pwdMinLenTag: true, pwdNoSpaceTag: true, pwdAttrSimTag: true}
)

// InitValidators registers the registration password policy.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(registrationStructValidation, session.Registration{})
	for tag, text := range map[string]string{
		pwdMinLenTag:  pwdMinLenText,
		pwdNoSpaceTag: pwdNoSpaceText,
		pwdAttrSimTag: pwdAttrSimText,
	} {
		registerTranslation(validate, translator, tag, text)
	}
}

func registerTranslation(validate *validator.Validate, translator ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func registrationStructValidation(sl validator.StructLevel) {
	reg, ok := sl.Current().Interface().(session.Registration)
	if !ok {
		return
	}
	if tag := passwordPolicy(reg.Password, reg.Name, reg.Email); tag != "" {
		sl.ReportError(reg.Password, "password", "Password", tag, "")
	}
}

// passwordPolicy returns the tag of the first rule pwd breaks, or "":
// - minLen: 6
// - no whitespace
// - no similarity to the account name, email or email local part
func passwordPolicy(pwd string, attrs ...string) string {
	if pwd == "" {
		return "" // reported by required
	}
	if len([]rune(pwd)) < pwdMinLen {
		return pwdMinLenTag
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
	}

	getRatio := func(pass, attr string) float64 {
		if attr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(attr, "")).QuickRatio()
	}
	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		attr = strings.ToLower(attr)
		if getRatio(lpwd, attr) >= pwdMaxSim {
			return pwdAttrSimTag
		}
		if i := strings.IndexByte(attr, '@'); i > 0 && getRatio(lpwd, attr[:i]) >= pwdMaxSim {
			return pwdAttrSimTag
		}
	}
	return ""
}
