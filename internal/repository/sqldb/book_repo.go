package sqldb

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/in004/bookscape/internal/datamodels/book"
)

type bookRepo struct {
	db *gorm.DB
}

// NewBookRepository 创建图书仓储；传入事务句柄即得到事务内仓储
func NewBookRepository(db *gorm.DB) book.Repository {
	return &bookRepo{db: db}
}

func (r *bookRepo) GetByID(ctx context.Context, id int64) (*book.Book, error) {
	var b book.Book
	if err := r.db.WithContext(ctx).Preload("Authors").Preload("Genres").First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookRepo) GetByExternalID(ctx context.Context, externalID string) (*book.Book, error) {
	var b book.Book
	if err := r.db.WithContext(ctx).
		Preload("Authors").Preload("Genres").
		Where("external_id = ?", externalID).
		First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookRepo) Resolve(ctx context.Context, ref string) (*book.Book, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, gorm.ErrRecordNotFound
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		b, err := r.GetByID(ctx, id)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return r.GetByExternalID(ctx, ref)
}

func (r *bookRepo) List(ctx context.Context, f book.ListFilter) ([]*book.Book, error) {
	query := r.db.WithContext(ctx).Model(&book.Book{}).Preload("Authors").Preload("Genres")
	if f.GenreID > 0 {
		query = query.
			Joins("JOIN book_genres ON book_genres.book_id = books.id").
			Where("book_genres.genre_id = ?", f.GenreID)
	}
	if f.Query != "" {
		query = query.Where("LOWER(books.title) LIKE ?", "%"+strings.ToLower(f.Query)+"%")
	}
	if f.OnSale {
		query = query.Where("books.is_on_sale = ?", true)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	var list []*book.Book
	if err := query.Order("books.id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bookRepo) Create(ctx context.Context, b *book.Book) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *bookRepo) Update(ctx context.Context, b *book.Book) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Authors", "Genres").Save(b).Error; err != nil {
			return err
		}
		if err := tx.Model(b).Association("Authors").Replace(b.Authors); err != nil {
			return err
		}
		return tx.Model(b).Association("Genres").Replace(b.Genres)
	})
}

func (r *bookRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Select(clause.Associations).Delete(&book.Book{ID: id}).Error
}

func (r *bookRepo) DecrementStock(ctx context.Context, id, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&book.Book{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *bookRepo) DecrementStockClamped(ctx context.Context, id, qty int64) (int64, error) {
	// 条件更新失败说明库存被并发修改，重读后重试
	for attempt := 0; attempt < 3; attempt++ {
		var b book.Book
		if err := r.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "stock").
			First(&b, id).Error; err != nil {
			return 0, err
		}
		applied := qty
		if b.Stock < applied {
			applied = b.Stock
		}
		if applied <= 0 {
			return 0, nil
		}
		ok, err := r.DecrementStock(ctx, id, applied)
		if err != nil {
			return 0, err
		}
		if ok {
			return applied, nil
		}
	}
	return 0, errors.New("stock changed concurrently")
}

func (r *bookRepo) RecordMovement(ctx context.Context, m *book.StockMovement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *bookRepo) ListMovements(ctx context.Context, bookID int64, limit int) ([]*book.StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []*book.StockMovement
	if err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bookRepo) CreateReservation(ctx context.Context, res *book.StockReservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *bookRepo) GetReservation(ctx context.Context, id string) (*book.StockReservation, error) {
	var res book.StockReservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *bookRepo) ApplySale(ctx context.Context, percentage int) (int64, error) {
	res := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Model(&book.Book{}).
		Updates(map[string]interface{}{
			"is_on_sale":      true,
			"sale_percentage": percentage,
			"sale_price":      gorm.Expr("ROUND(price * ? / 100.0)", 100-percentage),
		})
	return res.RowsAffected, res.Error
}

func (r *bookRepo) RemoveSale(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&book.Book{}).
		Where("is_on_sale = ?", true).
		Updates(map[string]interface{}{
			"is_on_sale":      false,
			"sale_percentage": 0,
			"sale_price":      0,
		})
	return res.RowsAffected, res.Error
}

func (r *bookRepo) CurrentSalePercentage(ctx context.Context) (int, error) {
	var b book.Book
	err := r.db.WithContext(ctx).
		Select("id", "sale_percentage").
		Where("is_on_sale = ?", true).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return b.SalePercentage, nil
}

func (r *bookRepo) ListAuthors(ctx context.Context) ([]*book.Author, error) {
	var list []*book.Author
	if err := r.db.WithContext(ctx).Order("name").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bookRepo) CreateAuthor(ctx context.Context, a *book.Author) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *bookRepo) ListGenres(ctx context.Context) ([]*book.Genre, error) {
	var list []*book.Genre
	if err := r.db.WithContext(ctx).Order("name").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bookRepo) CreateGenre(ctx context.Context, g *book.Genre) error {
	return r.db.WithContext(ctx).Create(g).Error
}
