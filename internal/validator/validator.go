// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"stockwatch/internal/models"
)

// instrumentCodeRegex matches exchange-qualified codes such as "600000.SH"
// or "000001.SZ": a numeric ticker followed by an exchange suffix.
var instrumentCodeRegex = regexp.MustCompile(`^[0-9A-Z]{1,10}\.[A-Z]{2,4}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("instrument_code", validateInstrumentCode)
		_ = v.RegisterValidation("comparator", validateComparator)
		_ = v.RegisterValidation("recurrence", validateRecurrence)
	}
}

func validateInstrumentCode(fl validator.FieldLevel) bool {
	return instrumentCodeRegex.MatchString(fl.Field().String())
}

func validateComparator(fl validator.FieldLevel) bool {
	_, ok := models.ParseComparator(fl.Field().String())
	return ok
}

func validateRecurrence(fl validator.FieldLevel) bool {
	_, ok := models.ParseRecurrence(fl.Field().String())
	return ok
}
