package signal

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks the structural invariants of a signal record.
func Validate(s Signal) error {
	if err := validate.Struct(s); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("signal %s: field %s failed rule %q", s.ID, first.Field(), first.Tag())
		}
		return err
	}
	return nil
}
