package cart

import (
	"context"
	"time"
)

// Cart 用户购物车（每个用户一份）
type Cart struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	UserID    int64      `gorm:"uniqueIndex;not null" json:"userId"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CartItem 购物车条目
type CartItem struct {
	ID       int64 `gorm:"primaryKey" json:"-"`
	CartID   int64 `gorm:"index;not null" json:"-"`
	BookID   int64 `gorm:"index;not null" json:"bookId"`
	Quantity int64 `gorm:"not null;default:1" json:"quantity"`
}

// WishlistItem 心愿单条目，(UserID, BookID) 唯一
type WishlistItem struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_wishlist_user_book;not null" json:"userId"`
	BookID    int64     `gorm:"uniqueIndex:idx_wishlist_user_book;not null" json:"bookId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository 购物车/心愿单仓储接口
type Repository interface {
	GetCart(ctx context.Context, userID int64) (*Cart, error)
	// ReplaceItems 整体替换购物车内容，购物车不存在时创建
	ReplaceItems(ctx context.Context, userID int64, items []CartItem) (*Cart, error)
	// RemoveBooks 删除购物车中指定图书，返回删除条数
	RemoveBooks(ctx context.Context, userID int64, bookIDs []int64) (int64, error)

	ListWishlist(ctx context.Context, userID int64) ([]*WishlistItem, error)
	AddWishlist(ctx context.Context, userID, bookID int64) error
	RemoveWishlist(ctx context.Context, userID, bookID int64) error
}
