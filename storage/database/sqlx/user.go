package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

const userColumns = "id, name, username, email, external_id, is_active, role, password_hash, created_at, updated_at, last_login"

// userRow maps the users table: empty usernames & emails are stored as NULL to keep them unique.
type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	ExternalID   null.String `db:"external_id"`
	IsActive     bool        `db:"is_active"`
	Role         string      `db:"role"`
	PasswordHash string      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		ExternalID:   usr.ExternalID,
		IsActive:     usr.IsActive,
		Role:         usr.Role,
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    usr.LastLogin,
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		ExternalID:   row.ExternalID,
		IsActive:     row.IsActive,
		Role:         row.Role,
		PasswordHash: []byte(row.PasswordHash),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin,
	}
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{repository{db: db}}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	conds := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		conds = append(conds, "id NOT IN (?)")
		args = append(args, ids)
	}

	check := func(field, value string, errExists error) error {
		if value == "" {
			return nil
		}
		q, qArgs, err := repo.in(
			"SELECT 1 FROM users"+where(append(conds, field+" = ?")),
			append(args, value)...,
		)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
		var found []int
		if err = repo.db.SelectContext(ctx, &found, q, qArgs...); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if len(found) > 0 {
			return errExists
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :name, :username, :email, :external_id, :is_active, :role, :password_hash, :created_at, :updated_at, :last_login)`,
		toUserRow(usr),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		cond string
		args []interface{}
	)
	switch {
	case filter.ID != "":
		cond, args = "id = ?", []interface{}{filter.ID}
	case filter.UsernameOrEmail != "":
		cond, args = "username = ? OR email = ?", []interface{}{filter.UsernameOrEmail, filter.UsernameOrEmail}
	case filter.ExternalID != "":
		cond, args = "external_id = ?", []interface{}{filter.ExternalID}
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, &row, "SELECT "+userColumns+" FROM users WHERE "+cond+" LIMIT 1", args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return row.user(), nil
}

func orderingAllowed(field string) bool {
	for _, f := range user.OrderingFields {
		if f == field {
			return true
		}
	}
	return false
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		val := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?)")
		args = append(args, val, val, val)
	}
	if filter.Role != "" {
		conds = append(conds, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.IsActive)
	}

	orderList := make([]string, 0, len(orderings)+1)
	for _, ord := range orderings {
		if orderingAllowed(ord.Field) {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, core.DBOrdering{Field: "created_at"}.String())
	}

	rows := make([]userRow, 0)
	q := "SELECT " + userColumns + " FROM users" + where(conds) + " ORDER BY " + strings.Join(orderList, ", ")
	if err := repo.selectAll(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE users SET
			name = :name, username = :username, email = :email, external_id = :external_id,
			is_active = :is_active, role = :role, password_hash = :password_hash,
			updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`,
		toUserRow(usr),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
