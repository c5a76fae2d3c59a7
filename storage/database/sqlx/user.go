package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/user"
)

const (
	userColumns = `u.id, u.email, u.password_hash, u.phone, u.role_id, r.name AS role_name, u.is_active,
		u.email_verified, u.cognito_sub, p.full_name, p.avatar_s3_key, p.bio, u.created_at, u.updated_at`
	userFrom = ` FROM users u JOIN roles r ON r.id = u.role_id LEFT JOIN user_profiles p ON p.user_id = u.id`
)

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) getExec(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

func (repo *userRepository) getUser(ctx context.Context, where string, arg interface{}, exec ...core.DBExecutor) (user.User, error) {
	var usr user.User
	q := "SELECT " + userColumns + userFrom + " WHERE " + where
	if err := repo.getExec(exec).GetContext(ctx, &usr, q, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, "u.id = $1", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "lower(u.email) = lower($1)", email)
}

func (repo *userRepository) GetUserByCognitoSub(ctx context.Context, sub string) (user.User, error) {
	return repo.getUser(ctx, "u.cognito_sub = $1", sub)
}

func (repo *userRepository) insertUser(ctx context.Context, tx *sqlx.Tx, usr user.User) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO users (id, email, password_hash, phone, role_id, is_active, email_verified, cognito_sub, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		usr.ID, usr.Email, usr.PasswordHash, usr.Phone, usr.RoleID, usr.IsActive, usr.EmailVerified, usr.CognitoSub,
		usr.CreatedAt, usr.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return user.ErrEmailExists
	}
	return dbError(err, "inserting user")
}

// upsertProfile only overwrites the provided (non-nil) fields.
func (repo *userRepository) upsertProfile(ctx context.Context, tx *sqlx.Tx, id string, fullName, avatarKey, bio *string) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO user_profiles (user_id, full_name, avatar_s3_key, bio, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = COALESCE(EXCLUDED.full_name, user_profiles.full_name),
			avatar_s3_key = COALESCE(EXCLUDED.avatar_s3_key, user_profiles.avatar_s3_key),
			bio = COALESCE(EXCLUDED.bio, user_profiles.bio),
			updated_at = EXCLUDED.updated_at`,
		id, fullName, avatarKey, bio, now(),
	)
	return dbError(err, "upserting user profile")
}

func (repo *userRepository) CreateUserWithProfile(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	if usr.CognitoSub == "" {
		usr.CognitoSub = uuid.NewString()
	}
	if usr.RoleID == 0 {
		usr.RoleID = identity.RoleMember
	}
	usr.CreatedAt = now()
	usr.UpdatedAt = usr.CreatedAt

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := repo.insertUser(ctx, tx, usr); err != nil {
			return err
		}
		if err := repo.upsertProfile(ctx, tx, usr.ID, usr.FullName.Ptr(), nil, nil); err != nil {
			return err
		}
		var err error
		usr, err = repo.getUser(ctx, "u.id = $1", usr.ID, tx)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) UpsertUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.CognitoSub == "" {
		usr.CognitoSub = uuid.NewString()
	}
	ts := now()

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var id string
		err := tx.GetContext(
			ctx, &id,
			`INSERT INTO users (id, email, password_hash, phone, role_id, is_active, email_verified, cognito_sub, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $8)
			ON CONFLICT ((lower(email))) DO UPDATE SET
				password_hash = EXCLUDED.password_hash,
				role_id = EXCLUDED.role_id,
				is_active = TRUE,
				email_verified = EXCLUDED.email_verified,
				updated_at = EXCLUDED.updated_at
			RETURNING id`,
			uuid.NewString(), usr.Email, usr.PasswordHash, usr.Phone, usr.RoleID, usr.EmailVerified, usr.CognitoSub, ts,
		)
		if err != nil {
			return dbError(err, "upserting user")
		}
		if err = repo.upsertProfile(ctx, tx, id, usr.FullName.Ptr(), nil, nil); err != nil {
			return err
		}
		usr, err = repo.getUser(ctx, "u.id = $1", id, tx)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, int, error) {
	conds := []string{"u.is_active = $1"}
	args := []interface{}{filter.IsActive}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(u.email ILIKE $%d OR p.full_name ILIKE $%d)", len(args), len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := repo.db.GetContext(ctx, &total, "SELECT count(*)"+userFrom+where, args...); err != nil {
		return nil, 0, dbError(err, "counting users")
	}

	args = append(args, filter.Limit, filter.Offset())
	q := fmt.Sprintf(
		"SELECT %s%s%s ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d",
		userColumns, userFrom, where, len(args)-1, len(args),
	)
	users := make([]user.User, 0, filter.Limit)
	if err := repo.db.SelectContext(ctx, &users, q, args...); err != nil {
		return nil, 0, dbError(err, "querying users")
	}
	return users, total, nil
}

func (repo *userRepository) UpdateUserByAdmin(ctx context.Context, id string, fullName, phone *string, roleID *int) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	var usr user.User
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE users SET phone = COALESCE($2, phone), role_id = COALESCE($3, role_id), updated_at = $4 WHERE id = $1`,
			id, phone, roleID, now(),
		)
		if err != nil {
			return dbError(err, "updating user")
		}
		if n, err := rowsAffected(res, "updating user"); err != nil {
			return err
		} else if n == 0 {
			return user.ErrNotFound
		}
		if fullName != nil {
			if err = repo.upsertProfile(ctx, tx, id, fullName, nil, nil); err != nil {
				return err
			}
		}
		usr, err = repo.getUser(ctx, "u.id = $1", id, tx)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) updateOne(ctx context.Context, msg, q string, args ...interface{}) error {
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return dbError(err, msg)
	}
	n, err := rowsAffected(res, msg)
	if err != nil {
		return err
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) SetUserActive(ctx context.Context, id string, active bool) error {
	if !validID(id) {
		return user.ErrNotFound
	}
	return repo.updateOne(ctx, "setting user active",
		"UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1", id, active, now())
}

func (repo *userRepository) UpdateEmailVerified(ctx context.Context, email string, verified bool) error {
	return repo.updateOne(ctx, "updating email verified",
		"UPDATE users SET email_verified = $2, updated_at = $3 WHERE lower(email) = lower($1)", email, verified, now())
}

func (repo *userRepository) UpdatePasswordHash(ctx context.Context, email string, hash []byte) error {
	return repo.updateOne(ctx, "updating password hash",
		"UPDATE users SET password_hash = $2, updated_at = $3 WHERE lower(email) = lower($1)", email, hash, now())
}

func (repo *userRepository) UpdateProfile(ctx context.Context, id string, data user.ProfileUpdate) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	var usr user.User
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(
			ctx, "UPDATE users SET phone = COALESCE($2, phone), updated_at = $3 WHERE id = $1", id, data.Phone, now(),
		)
		if err != nil {
			return dbError(err, "updating user")
		}
		if n, err := rowsAffected(res, "updating user"); err != nil {
			return err
		} else if n == 0 {
			return user.ErrNotFound
		}
		if err = repo.upsertProfile(ctx, tx, id, data.FullName, data.AvatarS3Key, data.Bio); err != nil {
			return err
		}
		usr, err = repo.getUser(ctx, "u.id = $1", id, tx)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) EnsureSingleAdmin(ctx context.Context, email string) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var id string
		err := tx.GetContext(ctx, &id, "SELECT id FROM users WHERE lower(email) = lower($1)", email)
		if err != nil {
			return trapNoRowsErr(err, user.ErrNotFound, "getting admin user")
		}
		ts := now()
		if _, err = tx.ExecContext(
			ctx, "UPDATE users SET role_id = $1, updated_at = $2 WHERE role_id = $3 AND id <> $4",
			identity.RoleMember, ts, identity.RoleAdmin, id,
		); err != nil {
			return dbError(err, "demoting admins")
		}
		if _, err = tx.ExecContext(
			ctx, "UPDATE users SET role_id = $1, is_active = TRUE, updated_at = $2 WHERE id = $3",
			identity.RoleAdmin, ts, id,
		); err != nil {
			return dbError(err, "promoting admin")
		}
		return nil
	})
}
