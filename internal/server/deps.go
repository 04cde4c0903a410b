package server

import (
	"time"

	"github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/auth"
	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/infra/mail"
	"github.com/in004/bookscape/internal/infra/mq"
	rediscache "github.com/in004/bookscape/internal/infra/redis"
	"github.com/in004/bookscape/internal/middleware"
	"github.com/in004/bookscape/internal/payment/paypal"
	"github.com/in004/bookscape/internal/repository/sqldb"
	"github.com/in004/bookscape/internal/service"
)

// Services 路由依赖的全部服务
type Services struct {
	JWT        *config.JWTConfig
	TokenCache *auth.TokenCache
	Limiter    *middleware.KeyedLimiter
	Log        *zap.Logger

	Users      *service.UserService
	Books      *service.BookService
	Stock      *service.StockService
	Checkout   *service.CheckoutService
	Orders     *service.OrderService
	Carts      *service.CartService
	Newsletter *service.NewsletterService
}

// Infra 外部依赖；测试中可替换为假实现
type Infra struct {
	DB      *gorm.DB
	Redis   radix.Client // 可为 nil，此时不缓存 JWT
	Gateway service.PaymentGateway
	Locker  service.Locker
	Queue   service.MailQueue
	Sender  mail.Sender
}

// NewServices 组装仓储与服务
func NewServices(cfg *config.Config, in Infra, log *zap.Logger) *Services {
	if log == nil {
		log = zap.NewNop()
	}
	db := in.DB
	userRepo := sqldb.NewUserRepository(db)
	tokenTTL := time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute

	return &Services{
		JWT:        &cfg.JWT,
		TokenCache: auth.NewTokenCache(in.Redis, time.Duration(cfg.Auth.TokenCacheTTLSeconds)*time.Second),
		Limiter:    middleware.NewKeyedLimiter(cfg.Checkout.RateLimitPerMinute),
		Log:        log,

		Users:    service.NewUserService(userRepo, &cfg.JWT, tokenTTL, in.Queue, cfg.SMTP.FrontendURL, log.Named("users")),
		Books:    service.NewBookService(db),
		Stock:    service.NewStockService(db, log.Named("stock")),
		Checkout: service.NewCheckoutService(db, in.Gateway, in.Locker, in.Queue, &cfg.Checkout, cfg.PayPal.Currency, log.Named("checkout")),
		Orders:   service.NewOrderService(sqldb.NewOrderRepository(db), userRepo, log.Named("orders")),
		Carts:    service.NewCartService(sqldb.NewCartRepository(db), sqldb.NewBookRepository(db)),
		Newsletter: service.NewNewsletterService(
			sqldb.NewSubscriberRepository(db), in.Queue, in.Sender, cfg.SMTP.FrontendURL, log.Named("newsletter"),
		),
	}
}

// Bootstrap 连接数据库、Redis、MQ 与网关，失败直接退出；返回的 cleanup 在退出前调用
func Bootstrap(cfg *config.Config, log *zap.Logger) (*Services, func()) {
	db := sqldb.Init(&cfg.Database)
	redisClient := rediscache.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	publisher, err := mq.NewMailPublisher(mqConn, cfg.RabbitMQ.MailQueue)
	if err != nil {
		log.Fatal("failed to open mail publisher", zap.Error(err))
	}

	svcs := NewServices(cfg, Infra{
		DB:      db,
		Redis:   redisClient,
		Gateway: paypal.NewClient(&cfg.PayPal),
		Locker:  rediscache.NewLocker(redisClient, "lock:"),
		Queue:   publisher,
		Sender:  mail.NewSMTPSender(&cfg.SMTP),
	}, log)

	cleanup := func() {
		_ = publisher.Close()
		_ = mqConn.Close()
		_ = redisClient.Close()
	}
	return svcs, cleanup
}
