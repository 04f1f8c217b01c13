package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// checkRequest runs the struct tag rules declared on a request and records
// every failure under the tag mapped for its field.
func checkRequest(req any, fields map[string]Tag, vErr *ValidationError) {
	err := requestValidator.Struct(req)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.Put(TagInvariantRequest, fmt.Sprintf("request could not be validated: %v", err))
		return
	}

	for _, fe := range fieldErrs {
		tag, ok := fields[fe.StructField()]
		if !ok {
			tag = Tag(strings.ToLower(fe.StructField()))
		}
		vErr.Put(tag, describeFieldError(tag, fe))
	}
}

func describeFieldError(tag Tag, fe validator.FieldError) string {
	label := string(tag)
	if i := strings.LastIndexByte(label, '.'); i >= 0 {
		label = label[i+1:]
	}
	label = strings.ReplaceAll(label, "_", " ")

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}
