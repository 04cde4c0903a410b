package controllers

import (
	"github.com/kataras/iris/v12"

	"github.com/in004/bookscape/internal/service"
)

// NewsletterController 订阅相关接口
type NewsletterController struct {
	svc *service.NewsletterService
}

func NewNewsletterController(svc *service.NewsletterService) *NewsletterController {
	return &NewsletterController{svc: svc}
}

// Subscribe POST /api/newsletter/subscribe {email}
func (c *NewsletterController) Subscribe(ctx iris.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		BadRequest(ctx, err)
		return
	}
	sub, err := c.svc.Subscribe(ctx.Request().Context(), req.Email)
	if err != nil {
		Fail(ctx, err)
		return
	}
	OK(ctx, iris.Map{"email": sub.Email, "message": "Subscribed successfully"})
}

// Unsubscribe GET /api/newsletter/unsubscribe?token=
func (c *NewsletterController) Unsubscribe(ctx iris.Context) {
	if err := c.svc.Unsubscribe(ctx.Request().Context(), ctx.URLParam("token")); err != nil {
		Fail(ctx, err)
		return
	}
	OK(ctx, iris.Map{"message": "Unsubscribed successfully"})
}

// Send POST /api/newsletter/send {subject, htmlContent}，仅后台
func (c *NewsletterController) Send(ctx iris.Context) {
	var req struct {
		Subject     string `json:"subject"`
		HTMLContent string `json:"htmlContent"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		BadRequest(ctx, err)
		return
	}
	report, err := c.svc.Send(ctx.Request().Context(), req.Subject, req.HTMLContent)
	if err != nil {
		Fail(ctx, err)
		return
	}
	OK(ctx, report)
}

// List GET /api/newsletter/subscribers，仅后台
func (c *NewsletterController) List(ctx iris.Context) {
	list, err := c.svc.List(ctx.Request().Context())
	if err != nil {
		Fail(ctx, err)
		return
	}
	OK(ctx, list)
}
