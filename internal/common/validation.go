package common

import (
	"errors"

	validator "github.com/go-playground/validator/v10"
)

// ValidationDetails flattens validator failures into a field -> rule map
// suitable for the error envelope details.
func ValidationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
