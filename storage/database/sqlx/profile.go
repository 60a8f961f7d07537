package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/profile"
)

type profileRepository struct {
	repository
}

func NewProfileRepository(db *sqlx.DB) profile.Repository {
	return &profileRepository{repository{db: db}}
}

func (repo *profileRepository) GetProfile(ctx context.Context, userID string) (profile.UserProfile, error) {
	var p profile.UserProfile
	err := repo.get(ctx, &p, `
		SELECT user_id, branch, name, email, roll_number, profile_picture, updated_at
		FROM profiles WHERE user_id = ?`, userID)
	if err != nil {
		return profile.UserProfile{}, trapNoRowsErr(err, profile.ErrNotFound, "getting profile")
	}
	return p, nil
}

func (repo *profileRepository) SaveProfile(ctx context.Context, p profile.UserProfile) (profile.UserProfile, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE profiles SET
			branch = :branch, name = :name, email = :email, roll_number = :roll_number,
			profile_picture = :profile_picture, updated_at = :updated_at
		WHERE user_id = :user_id`, p)
	if err != nil {
		return profile.UserProfile{}, errors.Wrap(err, "updating profile")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return p, nil
	}

	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO profiles (user_id, branch, name, email, roll_number, profile_picture, updated_at)
		VALUES (:user_id, :branch, :name, :email, :roll_number, :profile_picture, :updated_at)`, p)
	if err != nil {
		return profile.UserProfile{}, errors.Wrap(err, "inserting profile")
	}
	return p, nil
}
