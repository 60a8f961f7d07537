package inmemdb

import (
	"context"

	"github.com/caffeinepub/diploma-smart-study-hub/core/profile"
)

type profileRepository struct {
	db *DB
}

func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) GetProfile(_ context.Context, userID string) (profile.UserProfile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.profiles[userID]; ok {
		return *p, nil
	}
	return profile.UserProfile{}, profile.ErrNotFound
}

func (repo *profileRepository) SaveProfile(_ context.Context, p profile.UserProfile) (profile.UserProfile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.profiles[p.UserID] = &p
	return p, nil
}
