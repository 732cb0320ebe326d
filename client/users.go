package client

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/academia/core"
)

const usersPath = "/users"

type User struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateUserRequest mirrors the user creation form.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,notblank"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=teacher student"`
}

// Validate checks r like the form does before submitting it.
// An empty role defaults to student.
func (c *Client) Validate(r *CreateUserRequest) error {
	if r.Role == "" {
		r.Role = "student"
	}
	err := c.validate.Struct(r)
	if err == nil {
		return nil
	}
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fldErrs := core.TranslateErrors(vErrs, c.translator)
	var flds []core.FieldError
	for _, field := range []string{"name", "email", "password", "role"} {
		if msg, ok := fldErrs[field]; ok {
			flds = append(flds, core.FieldError{Field: field, Error: msg})
		}
	}
	return core.NewValidationError(errors.New("invalid user"), flds...)
}

// ListUsers returns every user, never nil.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, rest.Get, usersPath, nil, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// CreateUser validates r then creates the user. Invalid requests are never sent.
func (c *Client) CreateUser(ctx context.Context, r CreateUserRequest) (User, error) {
	if err := c.Validate(&r); err != nil {
		return User{}, err
	}
	var usr User
	if err := c.do(ctx, rest.Post, usersPath, r, &usr); err != nil {
		return User{}, err
	}
	return usr, nil
}
