package service

import (
	"context"

	"github.com/in004/bookscape/internal/datamodels/book"
	"github.com/in004/bookscape/internal/datamodels/cart"
)

// CartLine 客户端同步上来的购物车行
type CartLine struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

type CartService struct {
	repo  cart.Repository
	books book.Repository
}

func NewCartService(repo cart.Repository, books book.Repository) *CartService {
	return &CartService{repo: repo, books: books}
}

func (s *CartService) Get(ctx context.Context, userID int64) (*cart.Cart, error) {
	return s.repo.GetCart(ctx, userID)
}

// Sync 用客户端购物车整体替换服务端存储，相同图书合并数量
func (s *CartService) Sync(ctx context.Context, userID int64, lines []CartLine) (*cart.Cart, error) {
	merged := make(map[int64]int64)
	order := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 || l.Quantity > MaxLineQuantity {
			return nil, invalidf("quantity for %s must be between 1 and %d", l.ID, MaxLineQuantity)
		}
		b, err := s.books.Resolve(ctx, l.ID)
		if err != nil {
			return nil, translateNotFound(err, "book "+l.ID)
		}
		if _, ok := merged[b.ID]; !ok {
			order = append(order, b.ID)
		}
		merged[b.ID] += l.Quantity
	}
	items := make([]cart.CartItem, 0, len(order))
	for _, id := range order {
		items = append(items, cart.CartItem{BookID: id, Quantity: merged[id]})
	}
	return s.repo.ReplaceItems(ctx, userID, items)
}

func (s *CartService) Remove(ctx context.Context, userID int64, bookIDs []int64) (int64, error) {
	return s.repo.RemoveBooks(ctx, userID, bookIDs)
}

func (s *CartService) Wishlist(ctx context.Context, userID int64) ([]*cart.WishlistItem, error) {
	return s.repo.ListWishlist(ctx, userID)
}

func (s *CartService) AddToWishlist(ctx context.Context, userID int64, ref string) error {
	b, err := s.books.Resolve(ctx, ref)
	if err != nil {
		return translateNotFound(err, "book")
	}
	return s.repo.AddWishlist(ctx, userID, b.ID)
}

func (s *CartService) RemoveFromWishlist(ctx context.Context, userID int64, ref string) error {
	b, err := s.books.Resolve(ctx, ref)
	if err != nil {
		return translateNotFound(err, "book")
	}
	return s.repo.RemoveWishlist(ctx, userID, b.ID)
}
