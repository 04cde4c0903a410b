package middleware

import (
	"strconv"

	"github.com/kataras/iris/v12"

	"github.com/in004/bookscape/internal/auth"
	"github.com/in004/bookscape/internal/config"
)

const principalKey = "principal"

// Authenticate 校验 Authorization 头中的 JWT，并把调用方写入上下文
func Authenticate(cfg *config.JWTConfig, cache *auth.TokenCache) iris.Handler {
	return func(ctx iris.Context) {
		token := ctx.GetHeader("Authorization")
		if token == "" {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "missing token"})
			return
		}
		claims, err := cache.Authenticate(ctx.Request().Context(), cfg, token)
		if err != nil {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "invalid token"})
			return
		}
		ctx.Values().Set(principalKey, claims.Principal())
		ctx.Values().Set("user_id", claims.UserID)
		ctx.Next()
	}
}

// RequireRole 只允许指定角色访问
func RequireRole(roles ...string) iris.Handler {
	return func(ctx iris.Context) {
		p, ok := PrincipalFrom(ctx)
		if !ok {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "missing token"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				ctx.Next()
				return
			}
		}
		ctx.StopWithJSON(iris.StatusForbidden, iris.Map{"code": iris.StatusForbidden, "msg": "permission denied"})
	}
}

// PrincipalFrom 取出当前调用方
func PrincipalFrom(ctx iris.Context) (auth.Principal, bool) {
	p, ok := ctx.Values().Get(principalKey).(auth.Principal)
	return p, ok
}

// PrincipalKey 限流按用户区分，未登录时按 IP
func PrincipalKey(ctx iris.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return "u:" + strconv.FormatInt(p.UserID, 10)
	}
	return "ip:" + ctx.RemoteAddr()
}
