package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != "":
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
	case filter.UsernameOrEmail != "":
		for _, usr := range repo.db.users {
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return *usr, nil
			}
		}
	case filter.ExternalID != "":
		for _, usr := range repo.db.users {
			if usr.ExternalID.Valid && usr.ExternalID.String == filter.ExternalID {
				return *usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	users := make([]user.User, 0)
	for _, usr := range repo.db.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(usr.Name), search) &&
			!strings.Contains(usr.Username, search) &&
			!strings.Contains(usr.Email, search) {
			continue
		}
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		users = append(users, *usr)
	}

	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range orderings {
			if c := compareUsers(users[i], users[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return false
	})
	return users, nil
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(a.Role, b.Role)
	case "is_active":
		if a.IsActive == b.IsActive {
			return 0
		} else if !a.IsActive {
			return -1
		}
		return 1
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "last_login":
		return compareTimes(a.LastLogin.Time, b.LastLogin.Time)
	}
	return 0
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}
