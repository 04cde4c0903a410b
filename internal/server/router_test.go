package server

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/iris-contrib/httpexpect/v2"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/httptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/datamodels/book"
	"github.com/in004/bookscape/internal/datamodels/user"
	"github.com/in004/bookscape/internal/payment/paypal"
	"github.com/in004/bookscape/internal/repository/sqldb"
	"github.com/in004/bookscape/internal/service"
)

// stubGateway 创建即批准，捕获即完成
type stubGateway struct {
	mu sync.Mutex
	n  int
}

func (g *stubGateway) CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	id := "PAY-" + strconv.Itoa(g.n)
	return &paypal.Order{ID: id, Status: paypal.StatusCreated, Links: []paypal.Link{{Rel: "approve", Href: "https://pay.example/" + id}}}, nil
}

func (g *stubGateway) GetOrder(ctx context.Context, id string) (*paypal.Order, error) {
	return &paypal.Order{ID: id, Status: paypal.StatusApproved, Raw: []byte(`{}`)}, nil
}

func (g *stubGateway) CaptureOrder(ctx context.Context, id string) (*paypal.Order, error) {
	return &paypal.Order{ID: id, Status: paypal.StatusCompleted, Raw: []byte(`{}`)}, nil
}

type testEnv struct {
	db    *gorm.DB
	svcs  *Services
	front *httpexpect.Expect
	admin *httpexpect.Expect
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "bookscape.db")}
	db, err := sqldb.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	svcs := NewServices(cfg, Infra{DB: db, Gateway: &stubGateway{}}, nil)

	front := iris.New()
	RegisterRoutes(front, svcs)
	admin := iris.New()
	RegisterAdminRoutes(admin, svcs)

	return &testEnv{
		db:    db,
		svcs:  svcs,
		front: httptest.New(t, front),
		admin: httptest.New(t, admin),
	}
}

func (env *testEnv) login(e *httpexpect.Expect, email, password string) string {
	return e.POST("/api/login").
		WithJSON(iris.Map{"email": email, "password": password}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("token").String().Raw()
}

func (env *testEnv) registerClient(t *testing.T, email string) string {
	t.Helper()
	env.front.POST("/api/register").
		WithJSON(iris.Map{"name": "Ana", "surname": "B", "email": email, "password": "secret1"}).
		Expect().Status(httptest.StatusOK)
	return env.login(env.front, email, "secret1")
}

func (env *testEnv) createStaff(t *testing.T, email, role string) string {
	t.Helper()
	_, err := env.svcs.Users.CreateStaff(context.Background(),
		service.RegisterInput{Name: "Staff", Surname: "S", Email: email, Password: "secret1"}, role)
	require.NoError(t, err)
	return env.login(env.admin, email, "secret1")
}

func (env *testEnv) seedBook(t *testing.T, title string, price, stock int64) *book.Book {
	t.Helper()
	b := &book.Book{Title: title, Price: price, Stock: stock}
	require.NoError(t, sqldb.NewBookRepository(env.db).Create(context.Background(), b))
	return b
}

func (env *testEnv) stockOf(t *testing.T, id int64) int64 {
	t.Helper()
	b, err := sqldb.NewBookRepository(env.db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return b.Stock
}

func bearer(token string) string {
	return "Bearer " + token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.front.GET("/api/health").Expect().Status(httptest.StatusOK).
		JSON().Object().Value("msg").String().IsEqual("ok")
	env.admin.GET("/api/health").Expect().Status(httptest.StatusOK)
}

func TestBookCatalog(t *testing.T) {
	env := newTestEnv(t)
	b := env.seedBook(t, "Dune", 1000, 3)

	list := env.front.GET("/api/books").WithQuery("q", "dun").
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Array()
	list.Length().IsEqual(1)
	list.Value(0).Object().Value("title").String().IsEqual("Dune")

	env.front.GET("/api/books/" + b.ExternalID).Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("id").Number().IsEqual(b.ID)
	env.front.GET("/api/books/missing").Expect().Status(httptest.StatusNotFound)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	env.front.GET("/api/cart").Expect().Status(httptest.StatusUnauthorized)
	env.front.GET("/api/cart").WithHeader("Authorization", "Bearer garbage").
		Expect().Status(httptest.StatusUnauthorized)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerClient(t, "ana@example.com")
	env.front.POST("/api/login").
		WithJSON(iris.Map{"email": "ana@example.com", "password": "wrong-pass"}).
		Expect().Status(httptest.StatusUnauthorized)
}

func TestStockValidateRoute(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerClient(t, "ana@example.com")
	a := env.seedBook(t, "A", 1000, 2)
	b := env.seedBook(t, "B", 500, 0)

	res := env.front.POST("/api/stock/validate").WithHeader("Authorization", bearer(token)).
		WithJSON(iris.Map{"items": []iris.Map{
			{"id": a.ExternalID, "requestedQuantity": 1},
			{"id": b.ExternalID, "requestedQuantity": 1},
		}}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object()
	res.Value("valid").Boolean().IsFalse()
	res.Value("errors").Array().Length().IsEqual(1)
	assert.Equal(t, int64(2), env.stockOf(t, a.ID))

	env.front.POST("/api/stock/validate").WithHeader("Authorization", bearer(token)).
		WithJSON(iris.Map{"items": []iris.Map{{"id": a.ExternalID, "requestedQuantity": 0}}}).
		Expect().Status(httptest.StatusBadRequest)
}

func TestCheckoutFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerClient(t, "ana@example.com")
	a := env.seedBook(t, "A", 1000, 5)

	created := env.front.POST("/api/checkout/create-order").WithHeader("Authorization", bearer(token)).
		WithJSON(iris.Map{
			"items":       []iris.Map{{"id": a.ExternalID, "title": "A", "quantity": 2, "price": 10.00}},
			"totalAmount": 20.00,
		}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object()
	created.Value("approvalUrl").String().NotEmpty()
	paymentID := created.Value("paymentOrderId").String().Raw()

	for i := 0; i < 2; i++ {
		env.front.POST("/api/checkout/capture").WithHeader("Authorization", bearer(token)).
			WithJSON(iris.Map{"orderId": paymentID}).
			Expect().Status(httptest.StatusOK).
			JSON().Object().Value("data").Object().Value("success").Boolean().IsTrue()
	}
	assert.Equal(t, int64(3), env.stockOf(t, a.ID))

	status := env.front.GET("/api/checkout/status/"+paymentID).WithHeader("Authorization", bearer(token)).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object()
	status.Value("success").Boolean().IsTrue()
	status.Value("status").String().IsEqual("completed")

	env.front.GET("/api/orders").WithHeader("Authorization", bearer(token)).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Array().Length().IsEqual(1)

	// 其他用户看不到这笔订单
	other := env.registerClient(t, "bob@example.com")
	env.front.GET("/api/checkout/status/"+paymentID).WithHeader("Authorization", bearer(other)).
		Expect().Status(httptest.StatusForbidden)
}

func TestCartAndWishlistRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerClient(t, "ana@example.com")
	a := env.seedBook(t, "A", 1000, 5)

	env.front.PUT("/api/cart").WithHeader("Authorization", bearer(token)).
		WithJSON(iris.Map{"items": []iris.Map{{"id": a.ExternalID, "quantity": 2}}}).
		Expect().Status(httptest.StatusOK)
	env.front.GET("/api/cart").WithHeader("Authorization", bearer(token)).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("items").Array().Length().IsEqual(1)

	env.front.POST("/api/wishlist").WithHeader("Authorization", bearer(token)).
		WithJSON(iris.Map{"bookId": a.ExternalID}).
		Expect().Status(httptest.StatusOK)
	env.front.GET("/api/wishlist").WithHeader("Authorization", bearer(token)).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Array().Length().IsEqual(1)
	env.front.DELETE("/api/wishlist/"+a.ExternalID).WithHeader("Authorization", bearer(token)).
		Expect().Status(httptest.StatusOK)
}

func TestNewsletterRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.front.POST("/api/newsletter/subscribe").WithJSON(iris.Map{"email": "not-an-email"}).
		Expect().Status(httptest.StatusBadRequest)
	env.front.POST("/api/newsletter/subscribe").WithJSON(iris.Map{"email": "reader@example.com"}).
		Expect().Status(httptest.StatusOK)
	env.front.POST("/api/newsletter/subscribe").WithJSON(iris.Map{"email": "reader@example.com"}).
		Expect().Status(httptest.StatusBadRequest)
	env.front.GET("/api/newsletter/unsubscribe").WithQuery("token", "nope").
		Expect().Status(httptest.StatusBadRequest)
}

func TestAdminRequiresRole(t *testing.T) {
	env := newTestEnv(t)
	client := env.registerClient(t, "ana@example.com")
	admin := env.createStaff(t, "root@example.com", user.RoleAdmin)

	env.admin.GET("/api/monitor").Expect().Status(httptest.StatusUnauthorized)
	env.admin.GET("/api/monitor").WithHeader("Authorization", bearer(client)).
		Expect().Status(httptest.StatusForbidden)
	env.admin.GET("/api/monitor").WithHeader("Authorization", bearer(admin)).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("checkout").Object().ContainsKey("reconcile_requests")
}

func TestAdminBookAndSaleRoutes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createStaff(t, "root@example.com", user.RoleAdmin)

	id := env.admin.POST("/api/books").WithHeader("Authorization", bearer(admin)).
		WithJSON(iris.Map{"title": "Emma", "price": 12.50, "stock": 4}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("id").Number().Raw()

	env.admin.POST("/api/books").WithHeader("Authorization", bearer(admin)).
		WithJSON(iris.Map{"title": "", "price": 1}).
		Expect().Status(httptest.StatusBadRequest)

	env.admin.POST("/api/sales/apply").WithHeader("Authorization", bearer(admin)).
		WithJSON(iris.Map{"percentage": 20}).
		Expect().Status(httptest.StatusOK)
	env.front.GET("/api/sales/current").Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("percentage").Number().IsEqual(20)

	env.admin.POST("/api/books/"+formatID(id)+"/stock").WithHeader("Authorization", bearer(admin)).
		WithJSON(iris.Map{"delta": -10}).
		Expect().Status(httptest.StatusBadRequest)
	env.admin.POST("/api/books/"+formatID(id)+"/stock").WithHeader("Authorization", bearer(admin)).
		WithJSON(iris.Map{"delta": 6, "note": "restock"}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("stock").Number().IsEqual(10)
}

func TestCourierDeliveryRoutes(t *testing.T) {
	env := newTestEnv(t)
	client := env.registerClient(t, "ana@example.com")
	admin := env.createStaff(t, "root@example.com", user.RoleAdmin)
	courierToken := env.createStaff(t, "courier@example.com", user.RoleCourier)
	a := env.seedBook(t, "A", 1000, 5)

	paymentID := env.front.POST("/api/checkout/create-order").WithHeader("Authorization", bearer(client)).
		WithJSON(iris.Map{
			"items":       []iris.Map{{"id": a.ExternalID, "quantity": 1, "price": 10.00}},
			"totalAmount": 10.00,
		}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("paymentOrderId").String().Raw()
	env.front.POST("/api/checkout/capture").WithHeader("Authorization", bearer(client)).
		WithJSON(iris.Map{"orderId": paymentID}).
		Expect().Status(httptest.StatusOK)

	o, err := sqldb.NewOrderRepository(env.db).GetByPaymentOrderID(context.Background(), paymentID)
	require.NoError(t, err)
	courier, err := sqldb.NewUserRepository(env.db).GetByEmail(context.Background(), "courier@example.com")
	require.NoError(t, err)
	orderPath := "/api/orders/" + formatID(float64(o.ID))

	env.admin.PUT(orderPath+"/courier").WithHeader("Authorization", bearer(admin)).
		WithJSON(iris.Map{"courierId": courier.ID}).
		Expect().Status(httptest.StatusOK)

	env.admin.GET("/api/courier/orders").WithHeader("Authorization", bearer(courierToken)).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Array().Length().IsEqual(1)

	deliveryPath := "/api/courier/orders/" + formatID(float64(o.ID)) + "/delivery"
	env.admin.PUT(deliveryPath).WithHeader("Authorization", bearer(courierToken)).
		WithJSON(iris.Map{"deliveryStatus": "delivered"}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("deliveryStatus").String().IsEqual("delivered")
	env.admin.PUT(deliveryPath).WithHeader("Authorization", bearer(courierToken)).
		WithJSON(iris.Map{"deliveryStatus": "cancelled"}).
		Expect().Status(httptest.StatusConflict)

	// 客户不能访问快递员接口
	env.admin.GET("/api/courier/orders").WithHeader("Authorization", bearer(client)).
		Expect().Status(httptest.StatusForbidden)
}

func formatID(id float64) string {
	return strconv.FormatInt(int64(id), 10)
}

func TestCaptureRequiresOrderOwner(t *testing.T) {
	env := newTestEnv(t)
	ana := env.registerClient(t, "ana@example.com")
	bob := env.registerClient(t, "bob@example.com")
	a := env.seedBook(t, "A", 1000, 5)

	paymentID := env.front.POST("/api/checkout/create-order").WithHeader("Authorization", bearer(ana)).
		WithJSON(iris.Map{
			"items":       []iris.Map{{"id": a.ExternalID, "quantity": 1, "price": 10.00}},
			"totalAmount": 10.00,
		}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("paymentOrderId").String().Raw()

	env.front.POST("/api/checkout/capture").WithHeader("Authorization", bearer(bob)).
		WithJSON(iris.Map{"orderId": paymentID}).
		Expect().Status(httptest.StatusForbidden)
	assert.Equal(t, int64(5), env.stockOf(t, a.ID))

	env.front.POST("/api/checkout/capture").WithHeader("Authorization", bearer(ana)).
		WithJSON(iris.Map{"orderId": "PAY-1/capture"}).
		Expect().Status(httptest.StatusBadRequest)

	env.front.POST("/api/checkout/capture").WithHeader("Authorization", bearer(ana)).
		WithJSON(iris.Map{"orderId": paymentID}).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("success").Boolean().IsTrue()
	assert.Equal(t, int64(4), env.stockOf(t, a.ID))
}

func TestAccountRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	users := sqldb.NewUserRepository(env.db)
	token := env.registerClient(t, "ana@example.com")

	u, err := users.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, u.VerifyToken)
	assert.False(t, u.IsVerified)

	env.front.GET("/api/auth/verify-email").WithQuery("token", u.VerifyToken).
		Expect().Status(httptest.StatusOK)
	env.front.GET("/api/auth/verify-email").WithQuery("token", u.VerifyToken).
		Expect().Status(httptest.StatusBadRequest)
	env.front.GET("/api/me").WithHeader("Authorization", bearer(token)).
		Expect().Status(httptest.StatusOK).
		JSON().Object().Value("data").Object().Value("isVerified").Boolean().IsTrue()

	// 未注册的邮箱同样返回成功
	env.front.POST("/api/auth/forgot-password").WithJSON(iris.Map{"email": "nobody@example.com"}).
		Expect().Status(httptest.StatusOK)
	env.front.POST("/api/auth/forgot-password").WithJSON(iris.Map{"email": "ana@example.com"}).
		Expect().Status(httptest.StatusOK)
	u, err = users.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, u.ResetToken)

	env.front.POST("/api/auth/reset-password").
		WithJSON(iris.Map{"token": u.ResetToken, "newPassword": "newpass1"}).
		Expect().Status(httptest.StatusOK)
	env.front.POST("/api/auth/reset-password").
		WithJSON(iris.Map{"token": u.ResetToken, "newPassword": "newpass2"}).
		Expect().Status(httptest.StatusBadRequest)
	token = env.login(env.front, "ana@example.com", "newpass1")

	env.front.POST("/api/auth/change-password").
		WithJSON(iris.Map{"currentPassword": "newpass1", "newPassword": "newpass3"}).
		Expect().Status(httptest.StatusUnauthorized)
	env.front.POST("/api/auth/change-password").WithHeader("Authorization", bearer(token)).
		WithJSON(iris.Map{"currentPassword": "wrong-pass", "newPassword": "newpass3"}).
		Expect().Status(httptest.StatusUnauthorized)
	env.front.POST("/api/auth/change-password").WithHeader("Authorization", bearer(token)).
		WithJSON(iris.Map{"currentPassword": "newpass1", "newPassword": "newpass3"}).
		Expect().Status(httptest.StatusOK)
	env.login(env.front, "ana@example.com", "newpass3")
}
