package controllers

import (
	"errors"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/in004/bookscape/internal/payment/paypal"
	"github.com/in004/bookscape/internal/service"
)

// OK 统一成功响应
func OK(ctx iris.Context, data interface{}) {
	ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": data})
}

// Fail 按错误类型返回对应状态码，网关错误附带原始响应
func Fail(ctx iris.Context, err error) {
	code := service.StatusCode(err)
	body := iris.Map{"code": code, "msg": err.Error()}
	var apiErr *paypal.APIError
	if errors.As(err, &apiErr) {
		body["msg"] = "payment gateway error"
		body["details"] = iris.Map{"status": apiErr.StatusCode, "body": apiErr.Body}
	}
	if code >= 500 {
		zap.L().Error("request failed", zap.String("method", ctx.Method()), zap.String("path", ctx.Path()), zap.Error(err))
	}
	ctx.StopWithJSON(code, body)
}

// BadRequest 请求体解析失败
func BadRequest(ctx iris.Context, err error) {
	ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"code": iris.StatusBadRequest, "msg": err.Error()})
}
