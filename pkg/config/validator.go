package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// validate runs struct-tag validation over every section of cfg,
// collecting every failure rather than stopping at the first one, so a
// misconfigured sentryd.yaml reports all of its problems at once.
func validate(cfg *Config) error {
	var errs []error
	if err := validateSection("bus", &cfg.Bus); err != nil {
		errs = append(errs, err)
	}
	if err := validateSection("pipeline", &cfg.Pipeline); err != nil {
		errs = append(errs, err)
	}
	if err := validateSection("job_registry", &cfg.JobRegistry); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	msg := ErrValidationFailed.Error()
	for _, e := range errs {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

func validateSection(section string, v any) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return NewValidationError(section, "", err)
	}
	fe := verrs[0]
	return NewValidationError(section, fe.Field(), ErrInvalidValue)
}
