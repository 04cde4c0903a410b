package server

import (
	"strconv"

	"github.com/kataras/iris/v12"

	"github.com/in004/bookscape/internal/datamodels/order"
	"github.com/in004/bookscape/internal/datamodels/user"
	"github.com/in004/bookscape/internal/middleware"
	"github.com/in004/bookscape/internal/service"
	"github.com/in004/bookscape/web/controllers"
)

// RegisterAdminRoutes 注册后台管理端与快递员的 HTTP 路由
// 端口通常是 8081，与前台 Web 服务分离。
func RegisterAdminRoutes(app *iris.Application, s *Services) {
	api := app.Party("/api")

	api.Get("/health", health)
	api.Post("/login", loginHandler(s))

	authAPI := api.Party("/", middleware.Authenticate(s.JWT, s.TokenCache))

	// ---------- 快递员 ----------

	courier := authAPI.Party("/courier", middleware.RequireRole(user.RoleCourier, user.RoleAdmin))

	courier.Get("/orders", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		list, err := s.Orders.CourierOrders(ctx.Request().Context(), p, ctx.URLParam("deliveryStatus"))
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	courier.Put("/orders/{id:int64}/delivery", updateDelivery(s))

	// ---------- 以下仅管理员 ----------

	admin := authAPI.Party("/", middleware.RequireRole(user.RoleAdmin))

	// 图书管理
	admin.Get("/books", func(ctx iris.Context) {
		f := service.ParseListFilter(ctx.URLParam("genre"), ctx.URLParam("q"), ctx.URLParam("onSale"), ctx.URLParam("limit"))
		list, err := s.Books.List(ctx.Request().Context(), f)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	admin.Get("/books/{ref:string}", func(ctx iris.Context) {
		b, err := s.Books.Get(ctx.Request().Context(), ctx.Params().Get("ref"))
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, b)
	})
	admin.Post("/books", func(ctx iris.Context) {
		var req service.BookInput
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		b, err := s.Books.Create(ctx.Request().Context(), req)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, b)
	})
	admin.Put("/books/{id:int64}", func(ctx iris.Context) {
		var req service.BookInput
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		b, err := s.Books.Update(ctx.Request().Context(), ctx.Params().GetInt64Default("id", 0), req)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, b)
	})
	admin.Delete("/books/{id:int64}", func(ctx iris.Context) {
		if err := s.Books.Delete(ctx.Request().Context(), ctx.Params().GetInt64Default("id", 0)); err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, nil)
	})

	// 手工调整库存，delta 可正可负
	admin.Post("/books/{id:int64}/stock", func(ctx iris.Context) {
		var req struct {
			Delta int64  `json:"delta"`
			Note  string `json:"note"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		b, err := s.Books.AdjustStock(ctx.Request().Context(), ctx.Params().GetInt64Default("id", 0), req.Delta, req.Note)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, b)
	})
	admin.Get("/books/{id:int64}/movements", func(ctx iris.Context) {
		list, err := s.Books.Movements(ctx.Request().Context(), ctx.Params().GetInt64Default("id", 0), ctx.URLParamIntDefault("limit", 50))
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})

	admin.Get("/authors", func(ctx iris.Context) {
		list, err := s.Books.ListAuthors(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	admin.Post("/authors", func(ctx iris.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		a, err := s.Books.CreateAuthor(ctx.Request().Context(), req.Name)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, a)
	})
	admin.Get("/genres", func(ctx iris.Context) {
		list, err := s.Books.ListGenres(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	admin.Post("/genres", func(ctx iris.Context) {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		g, err := s.Books.CreateGenre(ctx.Request().Context(), req.Name, req.Description)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, g)
	})

	// ---------- 促销 ----------

	admin.Post("/sales/apply", func(ctx iris.Context) {
		var req struct {
			Percentage int `json:"percentage"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		n, err := s.Books.ApplySale(ctx.Request().Context(), req.Percentage)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"updated": n, "percentage": req.Percentage})
	})
	admin.Post("/sales/remove", func(ctx iris.Context) {
		n, err := s.Books.RemoveSale(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"updated": n})
	})
	admin.Get("/sales/current", currentSale(s))

	// ---------- 订单管理 ----------

	admin.Get("/orders", func(ctx iris.Context) {
		list, err := s.Orders.List(ctx.Request().Context(), order.ListFilter{
			Status:         ctx.URLParam("status"),
			DeliveryStatus: ctx.URLParam("deliveryStatus"),
			CourierID:      ctx.URLParamInt64Default("courierId", 0),
			UserEmail:      ctx.URLParam("email"),
			Limit:          ctx.URLParamIntDefault("limit", 100),
		})
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	admin.Get("/orders/review", func(ctx iris.Context) {
		list, err := s.Orders.ReviewQueue(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	admin.Get("/orders/{id:int64}", func(ctx iris.Context) {
		o, err := s.Orders.Get(ctx.Request().Context(), ctx.Params().GetInt64Default("id", 0))
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, o)
	})
	admin.Put("/orders/{id:int64}/courier", func(ctx iris.Context) {
		var req struct {
			CourierID int64 `json:"courierId"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		o, err := s.Orders.AssignCourier(ctx.Request().Context(), ctx.Params().GetInt64Default("id", 0), req.CourierID)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, o)
	})
	admin.Put("/orders/{id:int64}/delivery", updateDelivery(s))

	// 处理待复核订单：confirm 向网关复查，cancel 直接取消
	admin.Post("/orders/{id:int64}/review", func(ctx iris.Context) {
		var req struct {
			Action string `json:"action"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		o, err := s.Checkout.ResolveReview(ctx.Request().Context(), ctx.Params().GetInt64Default("id", 0), req.Action)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, o)
	})

	// ---------- 用户与快递员 ----------

	admin.Get("/users", func(ctx iris.Context) {
		list, err := s.Users.List(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	admin.Get("/couriers", func(ctx iris.Context) {
		list, err := s.Orders.ListCouriers(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	admin.Post("/staff", func(ctx iris.Context) {
		var req struct {
			service.RegisterInput
			Role string `json:"role"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		u, err := s.Users.CreateStaff(ctx.Request().Context(), req.RegisterInput, req.Role)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, u)
	})

	// ---------- 邮件订阅 ----------

	newsletter := controllers.NewNewsletterController(s.Newsletter)
	admin.Post("/newsletter/send", newsletter.Send)
	admin.Get("/newsletter/subscribers", newsletter.List)

	// ---------- 监控 ----------

	admin.Get("/monitor", func(ctx iris.Context) {
		controllers.OK(ctx, service.GetMonitor().GetStats())
	})
	admin.Post("/monitor/reset", func(ctx iris.Context) {
		service.GetMonitor().Reset()
		controllers.OK(ctx, nil)
	})
}

func updateDelivery(s *Services) iris.Handler {
	return func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req struct {
			DeliveryStatus string `json:"deliveryStatus"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		id, err := strconv.ParseInt(ctx.Params().Get("id"), 10, 64)
		if err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		o, err := s.Orders.UpdateDelivery(ctx.Request().Context(), p, id, req.DeliveryStatus)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, o)
	}
}
