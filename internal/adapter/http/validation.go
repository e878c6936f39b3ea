package http

import (
	"math"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Reusable error payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

var reEthAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
var reIBAN = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Za-z0-9 ]{4,30}$`)

type CustomValidator struct{ v *validator.Validate }

func NewValidator() *CustomValidator {
	v := validator.New()

	// borrower/wallet = 0x + 40 hex chars
	_ = v.RegisterValidation("eth_address", func(fl validator.FieldLevel) bool {
		return reEthAddress.MatchString(fl.Field().String())
	})
	// loose IBAN shape; exact ownership is checked against the rail
	_ = v.RegisterValidation("iban", func(fl validator.FieldLevel) bool {
		return reIBAN.MatchString(fl.Field().String())
	})
	// max 2 decimal places for fiat amounts
	_ = v.RegisterValidation("dec2", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return math.Abs(f-(math.Round(f*100)/100)) < 1e-9
	})

	return &CustomValidator{v: v}
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// Map validator.ValidationErrors → []FieldError with readable messages.
func ToFieldErrors(err error) []FieldError {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out = append(out, FieldError{Field: field, Message: "is required"})
		case "eth_address":
			out = append(out, FieldError{Field: field, Message: "must be a 0x-prefixed 40-hex address"})
		case "iban":
			out = append(out, FieldError{Field: field, Message: "must look like an IBAN"})
		case "dec2":
			out = append(out, FieldError{Field: field, Message: "must have at most 2 decimal places"})
		case "gt":
			out = append(out, FieldError{Field: field, Message: "must be greater than " + e.Param()})
		case "gte":
			out = append(out, FieldError{Field: field, Message: "must be greater than or equal to " + e.Param()})
		case "lte":
			out = append(out, FieldError{Field: field, Message: "must be less than or equal to " + e.Param()})
		default:
			out = append(out, FieldError{Field: field, Message: e.Tag() + " validation failed"})
		}
	}
	return out
}
