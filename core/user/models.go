package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/academia/core"
)

// Roles
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"

	DefaultRole = RoleStudent
)

var (
	AllRoles = []string{RoleTeacher, RoleStudent}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// IsValidRole reports whether role names one of AllRoles, ignoring case.
func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type User struct {
	ID           int         `json:"id"`
	Email        string      `json:"email"`
	Name         null.String `json:"name"`
	PasswordHash []byte      `json:"-"`
	Role         string      `json:"role"`
	CreatedAt    time.Time   `json:"createdAt"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsTeacher() bool { return strings.EqualFold(u.Role, RoleTeacher) }
func (u *User) IsStudent() bool { return strings.EqualFold(u.Role, RoleStudent) }

// DisplayName is the user's name, or the local part of their email when they have none.
func (u *User) DisplayName() string {
	if name := core.CleanString(u.Name.String); u.Name.Valid && name != "" {
		return name
	}
	return strings.SplitN(u.Email, "@", 2)[0]
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name     string `json:"name" validate:"max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,pwdmaxbytes"`
	Role     string `json:"role" validate:"omitempty,userrole"`
}

// Validate validates the data. Values are kept as submitted;
// only an empty role is replaced, by DefaultRole.
func (nu *NewUser) Validate(validate *validator.Validate) error {
	if nu.Role == "" {
		nu.Role = DefaultRole
	}
	return validate.Struct(nu)
}

// ResetUserPassword sets a new password for an existing user.
type ResetUserPassword struct {
	ID       int    `json:"id" validate:"required,gt=0"`
	Password string `json:"password" validate:"required,min=6,pwdmaxbytes"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// QueryFilter applies an AND operation on its non-zero fields.
type QueryFilter struct {
	Email string `query:"email"`
	Role  string `query:"role"`
}

func (qf *QueryFilter) Clean() {
	qf.Email = core.CleanString(qf.Email, true /* lower */)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

func (qf QueryFilter) IsEmpty() bool { return qf.Email == "" && qf.Role == "" }

// Match reports whether usr passes the filter. Comparisons ignore case.
func (qf QueryFilter) Match(usr User) bool {
	if qf.Email != "" && !strings.EqualFold(usr.Email, qf.Email) {
		return false
	}
	if qf.Role != "" && !strings.EqualFold(usr.Role, qf.Role) {
		return false
	}
	return true
}

// GetFilter selects a single user, by ID or by Email.
// When several users share an email, the oldest one is returned.
type GetFilter struct {
	ID    int
	Email string
}

// Orderable maps the ordering params accepted by QueryUsers to their columns.
var Orderable = map[string]string{
	"id":        "id",
	"email":     "email",
	"name":      "name",
	"role":      "role",
	"createdAt": "created_at",
}
