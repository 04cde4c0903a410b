package subscriber

import (
	"context"
	"time"
)

// Subscriber 邮件订阅者
type Subscriber struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	Email            string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	UnsubscribeToken string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	CreatedAt        time.Time `json:"subscribedAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Repository 订阅者仓储接口
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Subscriber, error)
	Create(ctx context.Context, s *Subscriber) error
	// DeleteByToken 返回删除条数，0 表示令牌无效
	DeleteByToken(ctx context.Context, token string) (int64, error)
	ListAll(ctx context.Context) ([]*Subscriber, error)
}
