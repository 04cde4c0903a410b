package sqldb

import (
	"context"

	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/datamodels/order"
)

type orderRepo struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) order.Repository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) GetByPaymentOrderID(ctx context.Context, paymentOrderID string) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_order_id = ?", paymentOrderID).
		First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) GetByReservationID(ctx context.Context, reservationID string) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	query := r.db.WithContext(ctx).Preload("Items")
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.DeliveryStatus != "" {
		query = query.Where("delivery_status = ?", f.DeliveryStatus)
	}
	if f.CourierID > 0 {
		query = query.Where("courier_id = ?", f.CourierID)
	}
	if f.UserEmail != "" {
		query = query.Where("user_email = ?", f.UserEmail)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	var list []*order.Order
	if err := query.Order("id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *orderRepo) ListByUserEmail(ctx context.Context, email string, statuses []string) ([]*order.Order, error) {
	query := r.db.WithContext(ctx).Preload("Items").Where("user_email = ?", email)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var list []*order.Order
	if err := query.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *orderRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&order.Order{}).Where("id = ?", id).Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *orderRepo) UpdateFieldsWhere(ctx context.Context, id int64, cond string, args []interface{}, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("id = ?", id).
		Where(cond, args...).
		Updates(fields)
	return res.RowsAffected, res.Error
}
