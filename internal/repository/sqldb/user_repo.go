package sqldb

import (
	"context"

	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/datamodels/user"
)

type userRepo struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) user.Repository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepo) ListAll(ctx context.Context) ([]*user.User, error) {
	var list []*user.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRepo) ListByRole(ctx context.Context, role string) ([]*user.User, error) {
	var list []*user.User
	if err := r.db.WithContext(ctx).Where("role = ?", role).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRepo) GetByVerifyToken(ctx context.Context, token string) (*user.User, error) {
	return r.getByToken(ctx, "verify_token", token)
}

func (r *userRepo) GetByResetToken(ctx context.Context, token string) (*user.User, error) {
	return r.getByToken(ctx, "reset_token", token)
}

func (r *userRepo) getByToken(ctx context.Context, column, token string) (*user.User, error) {
	if token == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var u user.User
	if err := r.db.WithContext(ctx).Where(column+" = ?", token).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) UpdateFieldsWhere(ctx context.Context, id int64, cond string, args []interface{}, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", id).
		Where(cond, args...).
		Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *userRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(fields)
	return res.RowsAffected, res.Error
}
