package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db.user}
}

// find must be called with the lock held.
func (repo *userRepository) find(match func(u *user.User) bool) (*user.User, bool) {
	for _, u := range repo.db.table {
		if match(u) {
			return u, true
		}
	}
	return nil, false
}

func (repo *userRepository) byEmail(email string) (*user.User, bool) {
	return repo.find(func(u *user.User) bool { return strings.EqualFold(u.Email, email) })
}

func (repo *userRepository) get(match func(u *user.User) bool) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if u, ok := repo.find(match); ok {
		return *u, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) CreateUserWithProfile(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.byEmail(usr.Email); ok {
		return user.User{}, user.ErrEmailExists
	}
	usr.ID = newID()
	if usr.CognitoSub == "" {
		usr.CognitoSub = newID()
	}
	if usr.RoleID == 0 {
		usr.RoleID = identity.RoleMember
	}
	usr.RoleName = identity.RoleName(usr.RoleID)
	usr.CreatedAt = now()
	usr.UpdatedAt = usr.CreatedAt
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	return repo.get(func(u *user.User) bool { return u.ID == id })
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	return repo.get(func(u *user.User) bool { return strings.EqualFold(u.Email, email) })
}

func (repo *userRepository) GetUserByCognitoSub(_ context.Context, sub string) (user.User, error) {
	return repo.get(func(u *user.User) bool { return u.CognitoSub == sub })
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	matches := make([]user.User, 0)
	for _, u := range repo.db.table {
		if u.IsActive != filter.IsActive {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.FullName.String), search) {
			continue
		}
		matches = append(matches, *u)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	total := len(matches)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func (repo *userRepository) update(id string, fn func(u *user.User)) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	u, ok := repo.db.table[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	fn(u)
	u.RoleName = identity.RoleName(u.RoleID)
	u.UpdatedAt = now()
	return *u, nil
}

func (repo *userRepository) UpdateUserByAdmin(_ context.Context, id string, fullName, phone *string, roleID *int) (user.User, error) {
	return repo.update(id, func(u *user.User) {
		if fullName != nil {
			u.FullName = null.StringFrom(*fullName)
		}
		if phone != nil {
			u.Phone = null.StringFrom(*phone)
		}
		if roleID != nil {
			u.RoleID = *roleID
		}
	})
}

func (repo *userRepository) SetUserActive(_ context.Context, id string, active bool) error {
	_, err := repo.update(id, func(u *user.User) { u.IsActive = active })
	return err
}

func (repo *userRepository) updateByEmail(email string, fn func(u *user.User)) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	u, ok := repo.byEmail(email)
	if !ok {
		return user.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = now()
	return nil
}

func (repo *userRepository) UpdateEmailVerified(_ context.Context, email string, verified bool) error {
	return repo.updateByEmail(email, func(u *user.User) { u.EmailVerified = verified })
}

func (repo *userRepository) UpdatePasswordHash(_ context.Context, email string, hash []byte) error {
	return repo.updateByEmail(email, func(u *user.User) { u.PasswordHash = hash })
}

func (repo *userRepository) UpdateProfile(_ context.Context, id string, data user.ProfileUpdate) (user.User, error) {
	return repo.update(id, func(u *user.User) {
		if data.FullName != nil {
			u.FullName = null.StringFrom(*data.FullName)
		}
		if data.Phone != nil {
			u.Phone = null.StringFrom(*data.Phone)
		}
		if data.Bio != nil {
			u.Bio = null.StringFrom(*data.Bio)
		}
		if data.AvatarS3Key != nil {
			u.AvatarS3Key = null.StringFrom(*data.AvatarS3Key)
		}
	})
}

func (repo *userRepository) EnsureSingleAdmin(_ context.Context, email string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	target, ok := repo.byEmail(email)
	if !ok {
		return user.ErrNotFound
	}
	ts := now()
	for _, u := range repo.db.table {
		if u.RoleID == identity.RoleAdmin && u != target {
			u.RoleID = identity.RoleMember
			u.RoleName = identity.RoleName(u.RoleID)
			u.UpdatedAt = ts
		}
	}
	target.RoleID = identity.RoleAdmin
	target.RoleName = identity.RoleName(target.RoleID)
	target.IsActive = true
	target.UpdatedAt = ts
	return nil
}

func (repo *userRepository) UpsertUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	existing, ok := repo.byEmail(usr.Email)
	if !ok {
		repo.db.Unlock()
		usr.IsActive = true
		return repo.CreateUserWithProfile(ctx, usr)
	}
	defer repo.db.Unlock()

	existing.PasswordHash = usr.PasswordHash
	existing.RoleID = usr.RoleID
	existing.RoleName = identity.RoleName(usr.RoleID)
	existing.IsActive = true
	existing.EmailVerified = usr.EmailVerified
	if usr.FullName.Valid {
		existing.FullName = usr.FullName
	}
	existing.UpdatedAt = now()
	return *existing, nil
}
