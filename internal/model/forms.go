package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoginForm carries login credentials.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupForm carries the account creation payload.
type SignupForm struct {
	Name            string `json:"username" validate:"required,min=3,max=32"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"-" validate:"required,eqfield=Password"`
}

// ResetPasswordForm sets a new password using an emailed reset token.
type ResetPasswordForm struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"-" validate:"required,eqfield=Password"`
}

// GenerateForm describes an exam to generate from uploaded content.
// Either FilePath or Text must be set, never both.
type GenerateForm struct {
	Title         string     `json:"title" validate:"required,min=3,max=120"`
	TimerMinutes  int        `json:"timerMinutes" validate:"min=1,max=180"`
	QuestionCount int        `json:"questionCount" validate:"min=1,max=50"`
	Tags          []string   `json:"tags" validate:"max=10,dive,min=1,max=32"`
	Visibility    Visibility `json:"visibility" validate:"oneof=public private"`
	FilePath      string     `json:"-"`
	Text          string     `json:"-"`
}

// Validate runs the struct rules plus the file-or-text constraint.
func (f *GenerateForm) Validate() error {
	if (f.FilePath == "") == (f.Text == "") {
		return errors.New("exactly one of a source file or inline text is required")
	}
	return CheckForm(f)
}

// CheckEmail validates a bare email address.
func CheckEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return errors.New("email must be a valid email address")
	}
	return nil
}

// CheckForm validates a form struct and rewrites the first violation into a
// field-level message suitable for inline display.
func CheckForm(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return fieldError(verrs[0])
}

func fieldError(fe validator.FieldError) error {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "email":
		return fmt.Errorf("%s must be a valid email address", field)
	case "min":
		return fmt.Errorf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s", field, fe.Param())
	case "eqfield":
		return fmt.Errorf("%s does not match the password", field)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
