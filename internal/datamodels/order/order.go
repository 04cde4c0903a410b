package order

import (
	"context"
	"time"
)

// 订单状态
const (
	StatusPending     = "pending"
	StatusProcessing  = "processing"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusNeedsReview = "needs_review" // 支付结果未确认，待人工对账
)

// 支付状态
const (
	PaymentPending    = "pending"
	PaymentCompleted  = "completed"
	PaymentUnverified = "unverified"
	PaymentFailed     = "failed"
)

// 配送状态
const (
	DeliveryPending    = "pending"
	DeliveryProcessing = "processing"
	DeliveryDelivered  = "delivered"
	DeliveryCancelled  = "cancelled"
)

// Order 订单模型，金额单位：分
type Order struct {
	ID                    int64       `gorm:"primaryKey" json:"id"`
	PaymentOrderID        string      `gorm:"size:64;uniqueIndex;not null" json:"paymentOrderId"` // 网关订单号
	Status                string      `gorm:"size:32;index;not null" json:"status"`
	PaymentStatus         string      `gorm:"size:32;index;not null" json:"paymentStatus"`
	DeliveryStatus        string      `gorm:"size:32;index;not null" json:"deliveryStatus"`
	Items                 []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	TotalAmount           int64       `gorm:"not null" json:"totalAmount"`
	Currency              string      `gorm:"size:8;not null" json:"currency"`
	UserID                int64       `gorm:"index" json:"userId"`
	UserEmail             string      `gorm:"size:255;index" json:"userEmail"` // 冗余字段，便于按用户筛选
	UserName              string      `gorm:"size:128" json:"userName"`
	CourierID             *int64      `gorm:"index" json:"courierId,omitempty"`
	ReservationID         *string     `gorm:"size:64;uniqueIndex" json:"reservationId,omitempty"`
	StockDecremented      bool        `gorm:"not null;default:false" json:"stockDecremented"`
	ReconciliationWarning string      `gorm:"size:512" json:"reconciliationWarning,omitempty"`
	CaptureError          string      `gorm:"size:512" json:"captureError,omitempty"`
	GatewayResponse       string      `gorm:"type:text" json:"-"`
	CreatedAt             time.Time   `gorm:"index" json:"createdAt"`
	UpdatedAt             time.Time   `json:"updatedAt"`
	CompletedAt           *time.Time  `json:"completedAt,omitempty"`
}

// OrderItem 下单时的商品快照，不随目录变化
type OrderItem struct {
	ID        int64  `gorm:"primaryKey" json:"-"`
	OrderID   int64  `gorm:"index;not null" json:"-"`
	BookID    int64  `gorm:"index" json:"bookId"`
	BookRef   string `gorm:"size:64" json:"bookRef"` // 客户端提交的标识
	Title     string `gorm:"size:255" json:"title"`
	Quantity  int64  `gorm:"not null" json:"quantity"`
	UnitPrice int64  `gorm:"not null" json:"unitPrice"`
}

// ListFilter 后台订单查询条件
type ListFilter struct {
	Status         string
	DeliveryStatus string
	CourierID      int64
	UserEmail      string
	Limit          int
}

// Repository 订单仓储接口
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByPaymentOrderID(ctx context.Context, paymentOrderID string) (*Order, error)
	GetByReservationID(ctx context.Context, reservationID string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]*Order, error)
	ListByUserEmail(ctx context.Context, email string, statuses []string) ([]*Order, error)

	// UpdateFields 按主键部分更新，返回受影响行数
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) (int64, error)
	// UpdateFieldsWhere 带条件的部分更新，条件不满足时返回 0
	UpdateFieldsWhere(ctx context.Context, id int64, cond string, args []interface{}, fields map[string]interface{}) (int64, error)
}
