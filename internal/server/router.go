package server

import (
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/mvc"

	"github.com/in004/bookscape/internal/middleware"
	"github.com/in004/bookscape/internal/service"
	"github.com/in004/bookscape/web/controllers"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRoutes 注册前台 HTTP 路由
func RegisterRoutes(app *iris.Application, s *Services) {
	api := app.Party("/api")

	api.Get("/health", health)

	api.Post("/register", func(ctx iris.Context) {
		var req service.RegisterInput
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		u, err := s.Users.Register(ctx.Request().Context(), req)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, u)
	})

	api.Post("/login", loginHandler(s))

	// 邮箱验证与找回密码
	api.Get("/auth/verify-email", func(ctx iris.Context) {
		if err := s.Users.VerifyEmail(ctx.Request().Context(), ctx.URLParam("token")); err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"message": "Email verified successfully"})
	})
	api.Post("/auth/forgot-password", func(ctx iris.Context) {
		var req struct {
			Email string `json:"email"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		// 邮箱是否存在都返回同样的结果
		if err := s.Users.ForgotPassword(ctx.Request().Context(), req.Email); err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"message": "If the email exists, a reset link has been sent"})
	})
	api.Post("/auth/reset-password", func(ctx iris.Context) {
		var req struct {
			Token       string `json:"token"`
			NewPassword string `json:"newPassword"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		if err := s.Users.ResetPassword(ctx.Request().Context(), req.Token, req.NewPassword); err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"message": "Password has been reset successfully"})
	})

	// 图书目录（MVC）
	books := mvc.New(api.Party("/books"))
	books.Register(s.Books)
	books.Handle(new(controllers.BookController))

	api.Get("/genres", func(ctx iris.Context) {
		list, err := s.Books.ListGenres(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	api.Get("/authors", func(ctx iris.Context) {
		list, err := s.Books.ListAuthors(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	api.Get("/sales/current", currentSale(s))

	// 订阅
	newsletter := controllers.NewNewsletterController(s.Newsletter)
	api.Post("/newsletter/subscribe", newsletter.Subscribe)
	api.Get("/newsletter/unsubscribe", newsletter.Unsubscribe)

	// 需要登录的接口
	authAPI := api.Party("/", middleware.Authenticate(s.JWT, s.TokenCache))

	authAPI.Get("/me", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		u, err := s.Users.Get(ctx.Request().Context(), p.UserID)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, u)
	})

	authAPI.Post("/auth/change-password", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		if err := s.Users.ChangePassword(ctx.Request().Context(), p, req.CurrentPassword, req.NewPassword); err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"message": "Password changed successfully"})
	})

	limited := middleware.RateLimit(s.Limiter, middleware.PrincipalKey)

	// 库存校验会扣减库存
	authAPI.Post("/stock/validate", limited, func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req struct {
			Items []service.StockItem `json:"items"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		res, err := s.Stock.Validate(ctx.Request().Context(), p.UserID, req.Items)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, res)
	})

	checkout := authAPI.Party("/checkout", limited)

	checkout.Post("/create-order", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req service.CreateOrderInput
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		res, err := s.Checkout.CreateOrder(ctx.Request().Context(), p, req)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, res)
	})

	// orderId 为网关订单号
	checkout.Post("/capture", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req struct {
			OrderID string `json:"orderId"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		res, err := s.Checkout.Reconcile(ctx.Request().Context(), p, req.OrderID)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{
			"success": res.Success,
			"status":  res.Status,
			"message": res.Message,
			"details": res.Order,
		})
	})

	checkout.Post("/mark-success", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req struct {
			OrderID       int64  `json:"orderId"`
			PaypalOrderID string `json:"paypalOrderId"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		res, err := s.Checkout.MarkSuccess(ctx.Request().Context(), p, req.OrderID, req.PaypalOrderID)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, res)
	})

	checkout.Get("/status/{id:string}", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		res, err := s.Checkout.Status(ctx.Request().Context(), p, ctx.Params().Get("id"))
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, res)
	})

	// 购物车
	authAPI.Get("/cart", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		c, err := s.Carts.Get(ctx.Request().Context(), p.UserID)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, c)
	})
	authAPI.Put("/cart", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req struct {
			Items []service.CartLine `json:"items"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		c, err := s.Carts.Sync(ctx.Request().Context(), p.UserID, req.Items)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, c)
	})
	authAPI.Post("/cart/remove", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req struct {
			BookIDs []int64 `json:"bookIds"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		n, err := s.Carts.Remove(ctx.Request().Context(), p.UserID, req.BookIDs)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"removed": n})
	})

	// 心愿单
	authAPI.Get("/wishlist", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		list, err := s.Carts.Wishlist(ctx.Request().Context(), p.UserID)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
	authAPI.Post("/wishlist", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		var req struct {
			BookID string `json:"bookId"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		if err := s.Carts.AddToWishlist(ctx.Request().Context(), p.UserID, req.BookID); err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, nil)
	})
	authAPI.Delete("/wishlist/{ref:string}", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		if err := s.Carts.RemoveFromWishlist(ctx.Request().Context(), p.UserID, ctx.Params().Get("ref")); err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, nil)
	})

	authAPI.Get("/orders", func(ctx iris.Context) {
		p, _ := middleware.PrincipalFrom(ctx)
		list, err := s.Orders.CustomerOrders(ctx.Request().Context(), p)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, list)
	})
}

func health(ctx iris.Context) {
	ctx.JSON(iris.Map{
		"code": 0,
		"msg":  "ok",
	})
}

func loginHandler(s *Services) iris.Handler {
	return func(ctx iris.Context) {
		var req loginRequest
		if err := ctx.ReadJSON(&req); err != nil {
			controllers.BadRequest(ctx, err)
			return
		}
		token, u, err := s.Users.Login(ctx.Request().Context(), req.Email, req.Password)
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"token": token, "user": u})
	}
}

func currentSale(s *Services) iris.Handler {
	return func(ctx iris.Context) {
		pct, err := s.Books.CurrentSale(ctx.Request().Context())
		if err != nil {
			controllers.Fail(ctx, err)
			return
		}
		controllers.OK(ctx, iris.Map{"isOnSale": pct > 0, "percentage": pct})
	}
}
