// Package validator wraps go-playground/validator with Spanish messages,
// JSON field names and the custom tags used by request and settings types.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	_ "time/tzdata"

	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	es_translations "github.com/go-playground/validator/v10/translations/es"

	"fp-innova/internal/models"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags
	notBlankTag      = "notblank"
	roleTag          = "role"
	projectStatusTag = "project_status"
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	spanish := es.New()
	uni := ut.New(spanish, spanish)
	translator, _ = uni.GetTranslator("es")
	_ = es_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlank)
	_ = validate.RegisterValidation(roleTag, validRole)
	_ = validate.RegisterValidation(projectStatusTag, validProjectStatus)

	registerCustomTranslations(notBlankTag, roleTag, projectStatusTag)
}

// a noop register func is passed because the default translations are already registered
func registerCustomTranslations(tags ...string) {
	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range tags {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustom)
	}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fmt.Sprintf("%s no puede estar vacío", fe.Field())
	case roleTag:
		return fmt.Sprintf("%s debe ser un rol válido", fe.Field())
	case projectStatusTag:
		return fmt.Sprintf("%s debe ser un estado de proyecto válido", fe.Field())
	default:
		return ""
	}
}

func notBlank(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func validRole(fl validator.FieldLevel) bool {
	return models.IsValidRole(fl.Field().String())
}

func validProjectStatus(fl validator.FieldLevel) bool {
	switch models.ProjectStatus(fl.Field().String()) {
	case models.ProjectDraft, models.ProjectSubmitted, models.ProjectReviewing, models.ProjectReviewed,
		models.ProjectApproved, models.ProjectRejected, models.ProjectNeedsChanges:
		return true
	}
	return false
}

// Errors maps JSON field paths to translated messages
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, e[f])
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates s by its validate tags. Field errors are returned as Errors.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(Errors, len(verrs))
	for _, fe := range verrs {
		out[fieldPath(fe.Namespace())] = fe.Translate(translator)
	}
	return out
}

// ValidateVar validates a single value against tag
func ValidateVar(value any, tag string) error {
	return validate.Var(value, tag)
}

// fieldPath drops the root struct name from a namespace
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// ValidatePassword validates a password
func ValidatePassword(password string) error {
	if password == "" {
		return errors.New("la contraseña es obligatoria")
	}
	if len(password) < 8 {
		return errors.New("la contraseña debe tener al menos 8 caracteres")
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(SanitizeString(email))
}
