package sqldb

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/in004/bookscape/internal/datamodels/cart"
)

type cartRepo struct {
	db *gorm.DB
}

// NewCartRepository 创建购物车仓储
func NewCartRepository(db *gorm.DB) cart.Repository {
	return &cartRepo{db: db}
}

func (r *cartRepo) GetCart(ctx context.Context, userID int64) (*cart.Cart, error) {
	var c cart.Cart
	err := r.db.WithContext(ctx).Preload("Items").Where("user_id = ?", userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &cart.Cart{UserID: userID, Items: []cart.CartItem{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cartRepo) ReplaceItems(ctx context.Context, userID int64, items []cart.CartItem) (*cart.Cart, error) {
	var c cart.Cart
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(cart.Cart{UserID: userID}).FirstOrCreate(&c).Error; err != nil {
			return err
		}
		if err := tx.Where("cart_id = ?", c.ID).Delete(&cart.CartItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = 0
			items[i].CartID = c.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		c.Items = items
		return tx.Model(&c).UpdateColumn("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cartRepo) RemoveBooks(ctx context.Context, userID int64, bookIDs []int64) (int64, error) {
	if len(bookIDs) == 0 {
		return 0, nil
	}
	var c cart.Cart
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND book_id IN ?", c.ID, bookIDs).
		Delete(&cart.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *cartRepo) ListWishlist(ctx context.Context, userID int64) ([]*cart.WishlistItem, error) {
	var list []*cart.WishlistItem
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *cartRepo) AddWishlist(ctx context.Context, userID, bookID int64) error {
	// 重复添加视为成功
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&cart.WishlistItem{UserID: userID, BookID: bookID}).Error
}

func (r *cartRepo) RemoveWishlist(ctx context.Context, userID, bookID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Delete(&cart.WishlistItem{}).Error
}
