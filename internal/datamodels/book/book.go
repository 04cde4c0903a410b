package book

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book 图书模型，金额单位：分
type Book struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	ExternalID     string    `gorm:"size:64;uniqueIndex;not null" json:"externalId"` // 对外暴露的不透明标识
	Title          string    `gorm:"size:255;not null;index" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	CoverImage     string    `gorm:"size:512" json:"coverImage"`
	Year           string    `gorm:"size:16" json:"year"`
	Price          int64     `gorm:"not null" json:"price"`
	Stock          int64     `gorm:"not null;default:0" json:"stock"`
	IsOnSale       bool      `gorm:"index" json:"isOnSale"`
	SalePercentage int       `json:"salePercentage"`
	SalePrice      int64     `json:"salePrice"`
	IsFeatured     bool      `json:"isFeatured"`
	IsBestseller   bool      `json:"isBestseller"`
	IsNewArrival   bool      `json:"isNewArrival"`
	IsStaffPick    bool      `json:"isStaffPick"`
	Authors        []Author  `gorm:"many2many:book_authors" json:"authors"`
	Genres         []Genre   `gorm:"many2many:book_genres" json:"genres"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// BeforeCreate 未指定 ExternalID 时自动生成
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ExternalID == "" {
		b.ExternalID = uuid.NewString()
	}
	return nil
}

// EffectivePrice 打折期间返回折后价
func (b *Book) EffectivePrice() int64 {
	if b.IsOnSale && b.SalePrice > 0 {
		return b.SalePrice
	}
	return b.Price
}

// Author 作者
type Author struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;not null" json:"name"`
}

// Genre 图书分类
type Genre struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:512" json:"description"`
}

// 库存变动原因
const (
	ReasonReservation   = "reservation"
	ReasonOrderFinalize = "order_finalize"
	ReasonAdminAdjust   = "admin_adjust"
)

// StockMovement 库存流水，每次库存变化写一条
type StockMovement struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	BookID    int64     `gorm:"index;not null" json:"bookId"`
	Delta     int64     `gorm:"not null" json:"delta"` // 负数为扣减
	Reason    string    `gorm:"size:32;index" json:"reason"`
	Reference string    `gorm:"size:64;index" json:"reference"` // 预留单号或订单号
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// StockReservation 库存校验通过后生成的预留记录，可被一个订单认领
type StockReservation struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    int64     `gorm:"index" json:"userId"`
	Items     string    `gorm:"type:text" json:"items"` // JSON: [{bookId, quantity}]
	CreatedAt time.Time `json:"createdAt"`
}

// ReservedLine 预留记录中的单行
type ReservedLine struct {
	BookID   int64 `json:"bookId"`
	Quantity int64 `json:"quantity"`
}

// ListFilter 图书列表查询条件
type ListFilter struct {
	GenreID int64
	Query   string
	OnSale  bool
	Limit   int
}

// Repository 图书仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Book, error)
	GetByExternalID(ctx context.Context, externalID string) (*Book, error)
	// Resolve 先按主键查找，找不到再按 ExternalID 查找
	Resolve(ctx context.Context, ref string) (*Book, error)
	List(ctx context.Context, f ListFilter) ([]*Book, error)
	Create(ctx context.Context, b *Book) error
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id int64) error

	// DecrementStock 条件扣减：stock >= qty 时才扣减，返回是否扣减成功
	DecrementStock(ctx context.Context, id, qty int64) (bool, error)
	// DecrementStockClamped 扣减到 0 为止，返回实际扣减量
	DecrementStockClamped(ctx context.Context, id, qty int64) (int64, error)
	RecordMovement(ctx context.Context, m *StockMovement) error
	ListMovements(ctx context.Context, bookID int64, limit int) ([]*StockMovement, error)

	CreateReservation(ctx context.Context, r *StockReservation) error
	GetReservation(ctx context.Context, id string) (*StockReservation, error)

	ApplySale(ctx context.Context, percentage int) (int64, error)
	RemoveSale(ctx context.Context) (int64, error)
	CurrentSalePercentage(ctx context.Context) (int, error)

	ListAuthors(ctx context.Context) ([]*Author, error)
	CreateAuthor(ctx context.Context, a *Author) error
	ListGenres(ctx context.Context) ([]*Genre, error)
	CreateGenre(ctx context.Context, g *Genre) error
}
