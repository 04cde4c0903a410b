package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/in004/bookscape/internal/datamodels/book"
)

func TestBookCRUDAndSale(t *testing.T) {
	db := newTestDB(t)
	svc := NewBookService(db)
	ctx := context.Background()

	author, err := svc.CreateAuthor(ctx, "Frank Herbert")
	require.NoError(t, err)
	genre, err := svc.CreateGenre(ctx, "Sci-Fi", "")
	require.NoError(t, err)
	_, err = svc.CreateGenre(ctx, "Sci-Fi", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, BookInput{Title: "", Price: 10})
	assert.ErrorIs(t, err, ErrInvalidInput)

	b, err := svc.Create(ctx, BookInput{
		Title:     "Dune",
		Price:     19.99,
		Stock:     4,
		AuthorIDs: []int64{author.ID},
		GenreIDs:  []int64{genre.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1999), b.Price)
	require.Len(t, b.Authors, 1)
	assert.Equal(t, "Frank Herbert", b.Authors[0].Name)

	_, err = svc.ApplySale(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ApplySale(ctx, 101)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ApplySale(ctx, 50)
	require.NoError(t, err)
	got, err := svc.Get(ctx, b.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.SalePrice)

	// 折扣期间新建的图书自动带折扣
	nb, err := svc.Create(ctx, BookInput{Title: "Emma", Price: 8})
	require.NoError(t, err)
	assert.True(t, nb.IsOnSale)
	assert.Equal(t, int64(400), nb.SalePrice)

	pct, err := svc.CurrentSale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, pct)

	list, err := svc.List(ctx, book.ListFilter{GenreID: genre.ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	updated, err := svc.Update(ctx, b.ID, BookInput{Title: "Dune Messiah", Price: 12, Stock: 4})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Empty(t, updated.Genres)

	require.NoError(t, svc.Delete(ctx, b.ID))
	_, err = svc.Get(ctx, b.ExternalID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewBookService(db)
	ctx := context.Background()
	b := seedBook(t, db, "Dune", 1000, 2)

	got, err := svc.AdjustStock(ctx, b.ID, 5, "restock")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Stock)

	_, err = svc.AdjustStock(ctx, b.ID, -8, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, int64(7), stockOf(t, db, b.ID))

	moves, err := svc.Movements(ctx, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, book.ReasonAdminAdjust, moves[0].Reason)
	assert.Equal(t, int64(5), moves[0].Delta)
}

func TestParseListFilter(t *testing.T) {
	f := ParseListFilter("3", " dune ", "true", "500")
	assert.Equal(t, book.ListFilter{GenreID: 3, Query: "dune", OnSale: true, Limit: 200}, f)
	assert.Equal(t, book.ListFilter{}, ParseListFilter("", "", "", "x"))
}
