// Package profile manages the student profiles (branch, roll number, ...).
package profile

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

var (
	ErrNotFound = core.NewNotFoundError("profile")

	NowFunc = time.Now // mockable
)

type UserProfile struct {
	UserID         string      `json:"-" db:"user_id"`
	Branch         string      `json:"branch" db:"branch" validate:"required"`
	Name           string      `json:"name" db:"name" validate:"required"`
	Email          string      `json:"email" db:"email" validate:"required,email"`
	RollNumber     string      `json:"rollNumber" db:"roll_number" validate:"required"`
	ProfilePicture null.String `json:"profilePicture" db:"profile_picture"`
	UpdatedAt      time.Time   `json:"-" db:"updated_at"`
}

func (p *UserProfile) Validate(validate *validator.Validate) error {
	p.Branch = core.CleanString(p.Branch)
	p.Name = core.CleanString(p.Name)
	p.Email = core.CleanString(p.Email, true /* lower */)
	p.RollNumber = core.CleanString(p.RollNumber)
	if p.ProfilePicture.Valid && core.CleanString(p.ProfilePicture.String) == "" {
		p.ProfilePicture = null.String{}
	}
	return validate.Struct(p)
}

type (
	Repository interface {
		GetProfile(ctx context.Context, userID string) (UserProfile, error)
		SaveProfile(ctx context.Context, p UserProfile) (UserProfile, error)
	}

	ServiceInterface interface {
		Get(ctx context.Context, userID string) (UserProfile, error)
		Save(ctx context.Context, userID string, p UserProfile) (UserProfile, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Get(ctx context.Context, userID string) (UserProfile, error) {
	return svc.repo.GetProfile(ctx, userID)
}

// Save creates or replaces the profile of the given user. Profiles are never deleted.
func (svc *Service) Save(ctx context.Context, userID string, p UserProfile) (UserProfile, error) {
	p.UserID = userID
	p.UpdatedAt = NowFunc().UTC()
	p, err := svc.repo.SaveProfile(ctx, p)
	return p, errors.Wrap(err, "saving profile")
}
