package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/in004/bookscape/internal/auth"
	"github.com/in004/bookscape/internal/datamodels/order"
	"github.com/in004/bookscape/internal/datamodels/user"
)

// OrderService 订单查询与配送状态管理
type OrderService struct {
	repo  order.Repository
	users user.Repository
	log   *zap.Logger
}

// NewOrderService 创建订单服务
func NewOrderService(repo order.Repository, users user.Repository, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{repo: repo, users: users, log: log}
}

// List 后台订单列表
func (s *OrderService) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	return s.repo.List(ctx, f)
}

func (s *OrderService) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, "order")
	}
	return o, nil
}

// CustomerOrders 用户自己的已支付订单，最新在前
func (s *OrderService) CustomerOrders(ctx context.Context, p auth.Principal) ([]*order.Order, error) {
	return s.repo.ListByUserEmail(ctx, p.Email, []string{order.StatusCompleted, order.StatusProcessing})
}

// CourierOrders 分配给当前快递员的订单
func (s *OrderService) CourierOrders(ctx context.Context, p auth.Principal, deliveryStatus string) ([]*order.Order, error) {
	return s.repo.List(ctx, order.ListFilter{CourierID: p.UserID, DeliveryStatus: deliveryStatus})
}

// ReviewQueue 待人工复核的订单
func (s *OrderService) ReviewQueue(ctx context.Context) ([]*order.Order, error) {
	return s.repo.List(ctx, order.ListFilter{Status: order.StatusNeedsReview})
}

func (s *OrderService) ListCouriers(ctx context.Context) ([]*user.User, error) {
	return s.users.ListByRole(ctx, user.RoleCourier)
}

// AssignCourier 指派快递员，配送状态进入 processing
func (s *OrderService) AssignCourier(ctx context.Context, orderID, courierID int64) (*order.Order, error) {
	courier, err := s.users.GetByID(ctx, courierID)
	if err != nil {
		return nil, translateNotFound(err, "courier")
	}
	if courier.Role != user.RoleCourier {
		return nil, invalidf("user %d is not a courier", courierID)
	}
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, translateNotFound(err, "order")
	}
	if o.PaymentStatus != order.PaymentCompleted {
		return nil, fmt.Errorf("%w: order %d is not paid", ErrConflict, orderID)
	}
	if o.DeliveryStatus == order.DeliveryDelivered || o.DeliveryStatus == order.DeliveryCancelled {
		return nil, fmt.Errorf("%w: order %d delivery already %s", ErrConflict, orderID, o.DeliveryStatus)
	}

	if _, err := s.repo.UpdateFields(ctx, orderID, map[string]interface{}{
		"courier_id":      courierID,
		"delivery_status": order.DeliveryProcessing,
	}); err != nil {
		return nil, err
	}
	s.log.Info("courier assigned", zap.Int64("order_id", orderID), zap.Int64("courier_id", courierID))
	return s.repo.GetByID(ctx, orderID)
}

// UpdateDelivery 快递员或管理员把 processing 的订单标记为 delivered/cancelled
func (s *OrderService) UpdateDelivery(ctx context.Context, p auth.Principal, orderID int64, status string) (*order.Order, error) {
	if status != order.DeliveryDelivered && status != order.DeliveryCancelled {
		return nil, invalidf("delivery status must be %q or %q", order.DeliveryDelivered, order.DeliveryCancelled)
	}
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, translateNotFound(err, "order")
	}
	if p.Role != user.RoleAdmin {
		if p.Role != user.RoleCourier || o.CourierID == nil || *o.CourierID != p.UserID {
			return nil, fmt.Errorf("%w: order %d is not assigned to you", ErrForbidden, orderID)
		}
	}

	n, err := s.repo.UpdateFieldsWhere(ctx, orderID, "delivery_status = ?", []interface{}{order.DeliveryProcessing},
		map[string]interface{}{"delivery_status": status})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: order %d delivery is %s, not processing", ErrConflict, orderID, o.DeliveryStatus)
	}
	s.log.Info("delivery updated", zap.Int64("order_id", orderID), zap.String("status", status), zap.Int64("by", p.UserID))
	return s.repo.GetByID(ctx, orderID)
}
