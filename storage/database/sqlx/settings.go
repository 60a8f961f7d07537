package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/settings"
)

type settingsRepository struct {
	repository
}

func NewSettingsRepository(db *sqlx.DB) settings.Repository {
	return &settingsRepository{repository{db: db}}
}

func (repo *settingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := repo.get(ctx, &value, "SELECT setting_value FROM settings WHERE setting_key = ?", key); err != nil {
		return "", trapNoRowsErr(err, settings.ErrNotFound, "getting setting")
	}
	return value, nil
}

func (repo *settingsRepository) SetSetting(ctx context.Context, key, value string) error {
	n, err := repo.exec(ctx, "UPDATE settings SET setting_value = ? WHERE setting_key = ?", value, key)
	if err != nil {
		return errors.Wrap(err, "updating setting")
	}
	if n > 0 {
		return nil
	}
	_, err = repo.exec(ctx, "INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)", key, value)
	return errors.Wrap(err, "inserting setting")
}
