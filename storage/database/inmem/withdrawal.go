package inmemdb

import (
	"context"
	"sort"

	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
)

type withdrawalRepository struct {
	db *DB
}

func NewWithdrawalRepository(db *DB) withdrawal.Repository {
	return &withdrawalRepository{db: db}
}

func (repo *withdrawalRepository) CreateRequest(_ context.Context, wr withdrawal.Request) (withdrawal.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.withdrawals[wr.ID] = &wr
	return wr, nil
}

func (repo *withdrawalRepository) GetRequest(_ context.Context, id string) (withdrawal.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if wr, ok := repo.db.withdrawals[id]; ok {
		return *wr, nil
	}
	return withdrawal.Request{}, withdrawal.ErrNotFound
}

func (repo *withdrawalRepository) QueryRequests(_ context.Context, filter withdrawal.QueryFilter) ([]withdrawal.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	requests := make([]withdrawal.Request, 0)
	for _, wr := range repo.db.withdrawals {
		if filter.UserID != "" && wr.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && wr.Status != filter.Status {
			continue
		}
		requests = append(requests, *wr)
	}
	sort.Slice(requests, func(i, j int) bool {
		if c := compareTimes(requests[i].Timestamp, requests[j].Timestamp); c != 0 {
			return c > 0
		}
		return requests[i].ID > requests[j].ID
	})
	return requests, nil
}

func (repo *withdrawalRepository) UpdateRequest(_ context.Context, wr withdrawal.Request) (withdrawal.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.withdrawals[wr.ID]; !ok {
		return withdrawal.Request{}, withdrawal.ErrNotFound
	}
	repo.db.withdrawals[wr.ID] = &wr
	return wr, nil
}
