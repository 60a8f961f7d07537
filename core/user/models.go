package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

// Roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest" // callers without identity; never stored
)

var (
	AllRoles = []string{RoleAdmin, RoleUser}

	Roles = []Role{
		{Name: "User", Value: RoleUser},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Username     string      `json:"username" db:"username"`
	Email        string      `json:"email" db:"email"`
	ExternalID   null.String `json:"-" db:"external_id"` // identity provider UID
	IsActive     bool        `json:"is_active" db:"is_active"`
	Role         string      `json:"role" db:"role"`
	PasswordHash []byte      `json:"-" db:"password_hash"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    null.Time   `json:"last_login" db:"last_login"` // UTC
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

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=admin user"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleUser
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// AssignRole is the payload of a role assignment made by an admin.
type AssignRole struct {
	Role string `json:"role" validate:"required,oneof=admin user"`
}

// AdminPassword is the admin panel password, distinct from the admin's own credentials.
type AdminPassword struct {
	Password string `json:"password" validate:"required"`
}

func (ap AdminPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(ap)
}

// GetFilter selects a single User; only the first non-empty field is used.
type GetFilter struct {
	ID              string
	UsernameOrEmail string
	ExternalID      string
}

// OrderingFields are the User fields accepted in orderings.
var OrderingFields = []string{"name", "username", "email", "role", "is_active", "created_at", "last_login"}

type QueryFilter struct {
	Search   string `query:"search"`
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}
