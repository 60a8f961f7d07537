package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
)

const withdrawalColumns = "id, status, user_id, created_at, phone_number, amount, updated_at"

type withdrawalRepository struct {
	repository
}

func NewWithdrawalRepository(db *sqlx.DB) withdrawal.Repository {
	return &withdrawalRepository{repository{db: db}}
}

func (repo *withdrawalRepository) CreateRequest(ctx context.Context, req withdrawal.Request) (withdrawal.Request, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO withdrawals (`+withdrawalColumns+`)
		VALUES (:id, :status, :user_id, :created_at, :phone_number, :amount, :updated_at)`, req)
	if err != nil {
		return withdrawal.Request{}, errors.Wrap(err, "inserting withdrawal request")
	}
	return req, nil
}

func (repo *withdrawalRepository) GetRequest(ctx context.Context, id string) (withdrawal.Request, error) {
	var req withdrawal.Request
	if err := repo.get(ctx, &req, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = ?", id); err != nil {
		return withdrawal.Request{}, trapNoRowsErr(err, withdrawal.ErrNotFound, "getting withdrawal request")
	}
	return req, nil
}

func (repo *withdrawalRepository) QueryRequests(ctx context.Context, filter withdrawal.QueryFilter) ([]withdrawal.Request, error) {
	conds := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	reqs := make([]withdrawal.Request, 0)
	err := repo.selectAll(ctx, &reqs,
		"SELECT "+withdrawalColumns+" FROM withdrawals"+where(conds)+" ORDER BY created_at DESC, id", args...)
	return reqs, errors.Wrap(err, "querying withdrawal requests")
}

func (repo *withdrawalRepository) UpdateRequest(ctx context.Context, req withdrawal.Request) (withdrawal.Request, error) {
	res, err := repo.db.NamedExecContext(ctx,
		"UPDATE withdrawals SET status = :status, updated_at = :updated_at WHERE id = :id", req)
	if err != nil {
		return withdrawal.Request{}, errors.Wrap(err, "updating withdrawal request")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return withdrawal.Request{}, withdrawal.ErrNotFound
	}
	return req, nil
}
