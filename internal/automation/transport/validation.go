package transport

import (
	"lead_automation_backend/internal/automation/domain"
	"lead_automation_backend/internal/condition"
	"lead_automation_backend/platform/validator"

	playground "github.com/go-playground/validator/v10"
)

// RegisterValidations adds the automation tags used by the request DTOs.
func RegisterValidations(val *validator.Validator) {
	val.MustRegisterValidation("trigger_event", func(fl playground.FieldLevel) bool {
		return domain.ValidTrigger(fl.Field().String())
	})
	val.MustRegisterValidation("condition_operator", func(fl playground.FieldLevel) bool {
		return condition.Operator(fl.Field().String()).Known()
	})
	val.MustRegisterValidation("action_type", func(fl playground.FieldLevel) bool {
		want := domain.ActionType(fl.Field().String())
		for _, t := range domain.ActionTypes() {
			if t == want {
				return true
			}
		}
		return false
	})
}
