package inmemdb

import (
	"context"

	"github.com/caffeinepub/diploma-smart-study-hub/core/settings"
)

type settingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) settings.Repository {
	return &settingsRepository{db: db}
}

func (repo *settingsRepository) GetSetting(_ context.Context, key string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if v, ok := repo.db.settings[key]; ok {
		return v, nil
	}
	return "", settings.ErrNotFound
}

func (repo *settingsRepository) SetSetting(_ context.Context, key, value string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.settings[key] = value
	return nil
}
