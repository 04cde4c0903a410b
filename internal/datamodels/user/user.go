package user

import (
	"context"
	"time"
)

// 用户角色
const (
	RoleClient  = "client"
	RoleAdmin   = "admin"
	RoleCourier = "courier"
)

// User 用户模型
type User struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:64;not null" json:"name"`
	Surname    string    `gorm:"size:64;not null" json:"surname"`
	Email      string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password   string    `gorm:"size:255;not null" json:"-"` // bcrypt 哈希
	Role       string    `gorm:"size:16;index;not null;default:client" json:"role"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// 邮箱验证与重置密码令牌，一次性使用
	VerifyToken       string     `gorm:"size:128;index" json:"-"`
	VerifyTokenExpiry *time.Time `json:"-"`
	ResetToken        string     `gorm:"size:128;index" json:"-"`
	ResetTokenExpiry  *time.Time `json:"-"`
}

// Repository 用户仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	ListAll(ctx context.Context) ([]*User, error)
	ListByRole(ctx context.Context, role string) ([]*User, error)
	GetByVerifyToken(ctx context.Context, token string) (*User, error)
	GetByResetToken(ctx context.Context, token string) (*User, error)

	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) (int64, error)
	// UpdateFieldsWhere 带条件的部分更新，返回受影响行数
	UpdateFieldsWhere(ctx context.Context, id int64, cond string, args []interface{}, fields map[string]interface{}) (int64, error)
}
