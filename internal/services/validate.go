package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ApplicantInput is the applicant snapshot shared by every submission path.
type ApplicantInput struct {
	ProgramID   string `json:"program_id"  validate:"omitempty,max=64"`
	Name        string `json:"name"        validate:"required,max=255"`
	Email       string `json:"email"       validate:"required,email,max=255"`
	Phone       string `json:"phone"       validate:"required,min=5,max=32"`
	Institution string `json:"institution" validate:"required,max=255"`
	Skills      string `json:"skills"      validate:"max=4000"`
	Message     string `json:"message"     validate:"max=4000"`
	ResumeRef   string `json:"resume_ref"  validate:"max=512"`
}

func (in *ApplicantInput) normalize() {
	in.ProgramID = strings.TrimSpace(in.ProgramID)
	in.Name = strings.Join(strings.Fields(in.Name), " ")
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Institution = strings.TrimSpace(in.Institution)
	in.Skills = strings.TrimSpace(in.Skills)
	in.Message = strings.TrimSpace(in.Message)
	in.ResumeRef = strings.TrimSpace(in.ResumeRef)
}

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags on v and converts failures into a
// *ValidationError.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(ves))}
	for _, fe := range ves {
		out.Fields[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
