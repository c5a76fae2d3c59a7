package core

import (
	"reflect"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	roleNameTag  = "rolename"
	roleNameText = "role must be member or teacher"

	questionTypeTag  = "questiontype"
	questionTypeText = "type must be one of single_choice, multiple_choice, cloze, short_answer, essay"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(roleNameTag, roleNameValidation)
	RegisterCustomTranslation(validate, translator, roleNameTag, roleNameText)
	_ = validate.RegisterValidation(questionTypeTag, questionTypeValidation)
	RegisterCustomTranslation(validate, translator, questionTypeTag, questionTypeText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// roleNameValidation only allows the roles a user may pick for themselves.
func roleNameValidation(fl validator.FieldLevel) bool {
	switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
	case "member", "teacher":
		return true
	}
	return false
}

func questionTypeValidation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "single_choice", "multiple_choice", "cloze", "short_answer", "essay":
		return true
	}
	return false
}
