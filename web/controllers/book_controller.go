package controllers

import (
	"github.com/kataras/iris/v12"

	"github.com/in004/bookscape/internal/service"
)

// BookController 前台图书目录（MVC）
// 路由在 internal/server/router.go 中通过 Iris MVC 挂载到 /api/books。
type BookController struct {
	Ctx         iris.Context
	BookService *service.BookService
}

// Get 处理 GET /api/books?genre=&q=&onSale=&limit=
func (c *BookController) Get() {
	f := service.ParseListFilter(
		c.Ctx.URLParam("genre"),
		c.Ctx.URLParam("q"),
		c.Ctx.URLParam("onSale"),
		c.Ctx.URLParam("limit"),
	)
	list, err := c.BookService.List(c.Ctx.Request().Context(), f)
	if err != nil {
		Fail(c.Ctx, err)
		return
	}
	OK(c.Ctx, list)
}

// GetBy 处理 GET /api/books/{ref}，ref 可以是数字 id 或 externalId
func (c *BookController) GetBy(ref string) {
	b, err := c.BookService.Get(c.Ctx.Request().Context(), ref)
	if err != nil {
		Fail(c.Ctx, err)
		return
	}
	OK(c.Ctx, b)
}
