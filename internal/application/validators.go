package application

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// identifierPattern matches the identifiers used for experts, roles,
// domains, angles, and tier names: a letter or digit followed by
// letters, digits, hyphens, underscores, or dots. Case is accepted
// here and folded away during canonicalization.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// registerCustomValidators installs the semantic validation rules
// that go beyond basic struct tags on a validator instance.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("identifier", validateIdentifier); err != nil {
		return fmt.Errorf("failed to register identifier validator: %w", err)
	}
	return nil
}

// validateIdentifier checks that a field is a well-formed identifier.
func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}
