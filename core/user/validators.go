package user

import (
	"github.com/go-playground/validator/v10"
)

type NewUser struct {
	Name     string `json:"name" validate:"required,notblank"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required,oneof=student office_admin super_admin"`
	CampusID string `json:"campus_id"`
}

func (nu NewUser) Validate(validate *validator.Validate) error {
	return validate.Struct(nu)
}
