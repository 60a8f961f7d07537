package user

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/settings"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrInvalidRole    = errors.New("invalid role")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		// Users are ordered by -created_at unless orderings are provided.
		FilterUsers(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		GetOrCreateExternal(ctx context.Context, externalID, email, name string) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPassword(ctx context.Context, uname, pwd string) error
		Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		AssignRole(ctx context.Context, id, role string) (User, error)
		Role(ctx context.Context, id string) (string, error)
		IsAdmin(ctx context.Context, id string) (bool, error)

		IsAdminPasswordSet(ctx context.Context) (bool, error)
		SaveAdminPassword(ctx context.Context, pwd string) error
		AuthenticateAdmin(ctx context.Context, pwd string) (bool, error)
	}

	Service struct {
		repo     Repository
		settings settings.Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, settingsRepo settings.Repository) *Service {
	return &Service{repo: repo, settings: settingsRepo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := NowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Role == "" {
		usr.Role = RoleUser
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// GetOrCreateExternal returns the User linked to an identity provider UID, registering it on first sight.
func (svc *Service) GetOrCreateExternal(ctx context.Context, externalID, email, name string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ExternalID: externalID})
	if err == nil {
		return usr, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "finding user by external ID")
	}

	now := NowFunc().UTC()
	usr = User{
		Name:       core.CleanString(name),
		Email:      core.CleanString(email, true /* lower */),
		ExternalID: null.StringFrom(externalID),
		IsActive:   true,
		Role:       RoleUser,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	usr, err = svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating external user")
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(NowFunc().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter, orderings...)
}

func (svc *Service) AssignRole(ctx context.Context, id, role string) (User, error) {
	if !(role == RoleAdmin || role == RoleUser) {
		return User{}, ErrInvalidRole
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Role = role
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Role returns the role of the User identified by id; RoleGuest when there is no identity.
func (svc *Service) Role(ctx context.Context, id string) (string, error) {
	if id == "" {
		return RoleGuest, nil
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return RoleGuest, nil
		}
		return "", err
	}
	if !usr.IsActive {
		return RoleGuest, nil
	}
	return usr.Role, nil
}

func (svc *Service) IsAdmin(ctx context.Context, id string) (bool, error) {
	role, err := svc.Role(ctx, id)
	if err != nil {
		return false, err
	}
	return role == RoleAdmin, nil
}

func (svc *Service) IsAdminPasswordSet(ctx context.Context) (bool, error) {
	if _, err := svc.settings.GetSetting(ctx, settings.KeyAdminPasswordHash); err != nil {
		if errors.Cause(err) == settings.ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting admin password")
	}
	return true, nil
}

// SaveAdminPassword hashes & stores the admin panel password. The password policy is checked by the caller.
func (svc *Service) SaveAdminPassword(ctx context.Context, pwd string) error {
	var usr User
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing admin password")
	}
	return errors.Wrap(
		svc.settings.SetSetting(ctx, settings.KeyAdminPasswordHash, string(usr.PasswordHash)),
		"saving admin password",
	)
}

func (svc *Service) AuthenticateAdmin(ctx context.Context, pwd string) (bool, error) {
	hash, err := svc.settings.GetSetting(ctx, settings.KeyAdminPasswordHash)
	if err != nil {
		if errors.Cause(err) == settings.ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting admin password")
	}
	usr := User{PasswordHash: []byte(hash)}
	return usr.CheckPassword(pwd) == nil, nil
}
