package sqldb

import (
	"context"

	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/datamodels/subscriber"
)

type subscriberRepo struct {
	db *gorm.DB
}

// NewSubscriberRepository 创建订阅者仓储
func NewSubscriberRepository(db *gorm.DB) subscriber.Repository {
	return &subscriberRepo{db: db}
}

func (r *subscriberRepo) GetByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error) {
	var s subscriber.Subscriber
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subscriberRepo) Create(ctx context.Context, s *subscriber.Subscriber) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *subscriberRepo) DeleteByToken(ctx context.Context, token string) (int64, error) {
	res := r.db.WithContext(ctx).Where("unsubscribe_token = ?", token).Delete(&subscriber.Subscriber{})
	return res.RowsAffected, res.Error
}

func (r *subscriberRepo) ListAll(ctx context.Context) ([]*subscriber.Subscriber, error) {
	var list []*subscriber.Subscriber
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
