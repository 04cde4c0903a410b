package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/datamodels/book"
	"github.com/in004/bookscape/internal/repository/sqldb"
)

// BookInput 后台新增/修改图书，价格单位：元
type BookInput struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	CoverImage   string  `json:"coverImage"`
	Year         string  `json:"year"`
	Price        float64 `json:"price"`
	Stock        int64   `json:"stock"`
	AuthorIDs    []int64 `json:"authorIds"`
	GenreIDs     []int64 `json:"genreIds"`
	IsFeatured   bool    `json:"isFeatured"`
	IsBestseller bool    `json:"isBestseller"`
	IsNewArrival bool    `json:"isNewArrival"`
	IsStaffPick  bool    `json:"isStaffPick"`
}

func (in BookInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return invalidf("title is required")
	}
	if in.Price <= 0 {
		return invalidf("price must be positive")
	}
	if in.Stock < 0 {
		return invalidf("stock must not be negative")
	}
	return nil
}

type BookService struct {
	db   *gorm.DB
	repo book.Repository
}

func NewBookService(db *gorm.DB) *BookService {
	return &BookService{db: db, repo: sqldb.NewBookRepository(db)}
}

func (s *BookService) List(ctx context.Context, f book.ListFilter) ([]*book.Book, error) {
	return s.repo.List(ctx, f)
}

// Get 支持主键或 ExternalID
func (s *BookService) Get(ctx context.Context, ref string) (*book.Book, error) {
	b, err := s.repo.Resolve(ctx, ref)
	if err != nil {
		return nil, translateNotFound(err, "book")
	}
	return b, nil
}

func (s *BookService) apply(b *book.Book, in BookInput) {
	b.Title = strings.TrimSpace(in.Title)
	b.Description = in.Description
	b.CoverImage = in.CoverImage
	b.Year = in.Year
	b.Price = toCents(in.Price)
	b.Stock = in.Stock
	b.IsFeatured = in.IsFeatured
	b.IsBestseller = in.IsBestseller
	b.IsNewArrival = in.IsNewArrival
	b.IsStaffPick = in.IsStaffPick
	b.Authors = make([]book.Author, 0, len(in.AuthorIDs))
	for _, id := range in.AuthorIDs {
		b.Authors = append(b.Authors, book.Author{ID: id})
	}
	b.Genres = make([]book.Genre, 0, len(in.GenreIDs))
	for _, id := range in.GenreIDs {
		b.Genres = append(b.Genres, book.Genre{ID: id})
	}
	// 折扣进行中时同步折后价
	if b.IsOnSale && b.SalePercentage > 0 {
		b.SalePrice = (b.Price*int64(100-b.SalePercentage) + 50) / 100
	}
}

func (s *BookService) Create(ctx context.Context, in BookInput) (*book.Book, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	b := &book.Book{}
	if pct, err := s.repo.CurrentSalePercentage(ctx); err == nil && pct > 0 {
		b.IsOnSale = true
		b.SalePercentage = pct
	}
	s.apply(b, in)
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, b.ID)
}

func (s *BookService) Update(ctx context.Context, id int64, in BookInput) (*book.Book, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, "book")
	}
	s.apply(b, in)
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *BookService) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return translateNotFound(err, "book")
	}
	return s.repo.Delete(ctx, id)
}

// AdjustStock 后台调整库存并记流水，delta 为负时不允许扣成负数
func (s *BookService) AdjustStock(ctx context.Context, id, delta int64, note string) (*book.Book, error) {
	if delta == 0 {
		return nil, invalidf("delta must not be zero")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := sqldb.NewBookRepository(tx)
		if _, err := repo.GetByID(ctx, id); err != nil {
			return translateNotFound(err, "book")
		}
		// 条件扣减传负数即为加库存
		ok, err := repo.DecrementStock(ctx, id, -delta)
		if err != nil {
			return err
		}
		if !ok {
			return invalidf("stock would become negative")
		}
		ref := note
		if ref == "" {
			ref = "admin"
		}
		return repo.RecordMovement(ctx, &book.StockMovement{
			BookID:    id,
			Delta:     delta,
			Reason:    book.ReasonAdminAdjust,
			Reference: truncate(ref, 64),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *BookService) Movements(ctx context.Context, id int64, limit int) ([]*book.StockMovement, error) {
	return s.repo.ListMovements(ctx, id, limit)
}

// ApplySale 全场折扣，百分比 1-100
func (s *BookService) ApplySale(ctx context.Context, percentage int) (int64, error) {
	if percentage < 1 || percentage > 100 {
		return 0, invalidf("sale percentage must be between 1 and 100")
	}
	return s.repo.ApplySale(ctx, percentage)
}

func (s *BookService) RemoveSale(ctx context.Context) (int64, error) {
	return s.repo.RemoveSale(ctx)
}

func (s *BookService) CurrentSale(ctx context.Context) (int, error) {
	return s.repo.CurrentSalePercentage(ctx)
}

func (s *BookService) ListAuthors(ctx context.Context) ([]*book.Author, error) {
	return s.repo.ListAuthors(ctx)
}

func (s *BookService) CreateAuthor(ctx context.Context, name string) (*book.Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("author name is required")
	}
	a := &book.Author{Name: name}
	if err := s.repo.CreateAuthor(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *BookService) ListGenres(ctx context.Context) ([]*book.Genre, error) {
	return s.repo.ListGenres(ctx)
}

func (s *BookService) CreateGenre(ctx context.Context, name, description string) (*book.Genre, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("genre name is required")
	}
	g := &book.Genre{Name: name, Description: description}
	if err := s.repo.CreateGenre(ctx, g); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, invalidf("genre %s already exists", name)
		}
		return nil, err
	}
	return g, nil
}

// ParseListFilter 把查询参数转换为过滤条件
func ParseListFilter(genre, q, onSale, limit string) book.ListFilter {
	f := book.ListFilter{Query: strings.TrimSpace(q)}
	if id, err := strconv.ParseInt(genre, 10, 64); err == nil {
		f.GenreID = id
	}
	f.OnSale = onSale == "true" || onSale == "1"
	if n, err := strconv.Atoi(limit); err == nil && n > 0 {
		if n > 200 {
			n = 200
		}
		f.Limit = n
	}
	return f
}
