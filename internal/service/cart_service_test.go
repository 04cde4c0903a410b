package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/in004/bookscape/internal/repository/sqldb"
)

func TestCartSyncAndWishlist(t *testing.T) {
	db := newTestDB(t)
	a := seedBook(t, db, "Dune", 1000, 5)
	b := seedBook(t, db, "Emma", 800, 5)
	svc := NewCartService(sqldb.NewCartRepository(db), sqldb.NewBookRepository(db))
	ctx := context.Background()

	c, err := svc.Sync(ctx, 1, []CartLine{{ID: ref(a.ID), Quantity: 1}, {ID: a.ExternalID, Quantity: 2}, {ID: ref(b.ID), Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Equal(t, int64(3), c.Items[0].Quantity)

	_, err = svc.Sync(ctx, 1, []CartLine{{ID: "missing", Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Sync(ctx, 1, []CartLine{{ID: ref(a.ID), Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	c, err = svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)

	require.NoError(t, svc.AddToWishlist(ctx, 1, b.ExternalID))
	list, err := svc.Wishlist(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].BookID)

	require.NoError(t, svc.RemoveFromWishlist(ctx, 1, ref(b.ID)))
	list, err = svc.Wishlist(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}
