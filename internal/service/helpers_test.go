package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/datamodels/book"
	"github.com/in004/bookscape/internal/datamodels/user"
	"github.com/in004/bookscape/internal/infra/mail"
	rediscache "github.com/in004/bookscape/internal/infra/redis"
	"github.com/in004/bookscape/internal/payment/paypal"
	"github.com/in004/bookscape/internal/repository/sqldb"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqldb.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "bookscape.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedBook(t *testing.T, db *gorm.DB, title string, price, stock int64) *book.Book {
	t.Helper()
	b := &book.Book{Title: title, Price: price, Stock: stock}
	require.NoError(t, sqldb.NewBookRepository(db).Create(context.Background(), b))
	return b
}

func seedUser(t *testing.T, db *gorm.DB, email, role string) *user.User {
	t.Helper()
	u := &user.User{Name: "Test", Surname: "User", Email: email, Password: "x", Role: role}
	require.NoError(t, sqldb.NewUserRepository(db).Create(context.Background(), u))
	return u
}

func stockOf(t *testing.T, db *gorm.DB, id int64) int64 {
	t.Helper()
	b, err := sqldb.NewBookRepository(db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return b.Stock
}

// fakeGateway GetOrder 按顺序返回 getStatuses，最后一个重复使用
type fakeGateway struct {
	mu            sync.Mutex
	getStatuses   []string
	getErr        error
	captureStatus string
	captureErr    error
	createErr     error
	noApproval    bool

	getCalls     int
	captureCalls int
	created      []paypal.CreateOrderRequest
	nextID       int
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	if g.noApproval {
		return nil, paypal.ErrNoApprovalLink
	}
	g.nextID++
	g.created = append(g.created, req)
	id := fmt.Sprintf("PAY-%d", g.nextID)
	return &paypal.Order{
		ID:     id,
		Status: paypal.StatusCreated,
		Links:  []paypal.Link{{Rel: "approve", Href: "https://pay.example/" + id}},
		Raw:    []byte(`{"id":"` + id + `","status":"CREATED"}`),
	}, nil
}

func (g *fakeGateway) GetOrder(ctx context.Context, id string) (*paypal.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.getErr != nil {
		return nil, g.getErr
	}
	status := paypal.StatusApproved
	if len(g.getStatuses) > 0 {
		status = g.getStatuses[0]
		if len(g.getStatuses) > 1 {
			g.getStatuses = g.getStatuses[1:]
		}
	}
	return &paypal.Order{ID: id, Status: status, Raw: []byte(`{"id":"` + id + `","status":"` + status + `"}`)}, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, id string) (*paypal.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	status := g.captureStatus
	if status == "" {
		status = paypal.StatusCompleted
	}
	return &paypal.Order{ID: id, Status: status, Raw: []byte(`{"id":"` + id + `","status":"` + status + `"}`)}, nil
}

func (g *fakeGateway) captures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captureCalls
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, rediscache.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fakeMailQueue struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (q *fakeMailQueue) Enqueue(ctx context.Context, m mail.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, m)
	return nil
}

func (q *fakeMailQueue) Send(ctx context.Context, m mail.Message) error {
	return q.Enqueue(ctx, m)
}

func (q *fakeMailQueue) messages() []mail.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]mail.Message(nil), q.sent...)
}

// failingSender 对指定收件人返回错误
type failingSender struct {
	fakeMailQueue
	fail map[string]bool
}

func (s *failingSender) Send(ctx context.Context, m mail.Message) error {
	if s.fail[m.To] {
		return errors.New("mailbox unavailable")
	}
	return s.fakeMailQueue.Send(ctx, m)
}

func testCheckoutConfig() *config.CheckoutConfig {
	cfg := config.DefaultConfig().Checkout
	return &cfg
}
