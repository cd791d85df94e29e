package transport

import (
	"lead_automation_backend/internal/condition"
	"lead_automation_backend/platform/validator"

	playground "github.com/go-playground/validator/v10"
)

// RegisterValidations adds the scoring tags used by the request DTOs.
func RegisterValidations(val *validator.Validator) {
	val.MustRegisterValidation("condition_operator", func(fl playground.FieldLevel) bool {
		return condition.Operator(fl.Field().String()).Known()
	})
}
