package sqldb

import (
	"fmt"
	"sync"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/datamodels/book"
	"github.com/in004/bookscape/internal/datamodels/cart"
	"github.com/in004/bookscape/internal/datamodels/order"
	"github.com/in004/bookscape/internal/datamodels/subscriber"
	"github.com/in004/bookscape/internal/datamodels/user"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Models 参与自动迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&user.User{},
		&book.Author{}, &book.Genre{}, &book.Book{},
		&book.StockMovement{}, &book.StockReservation{},
		&order.Order{}, &order.OrderItem{},
		&cart.Cart{}, &cart.CartItem{}, &cart.WishlistItem{},
		&subscriber.Subscriber{},
	}
}

// Open 按驱动打开数据库并自动迁移表结构
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gcfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
	if cfg.LogSQL {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}
	conn, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	// sqlite 只允许单写者，串行化连接避免 database is locked
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := conn.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return conn, nil
}

// Init 初始化全局 GORM 实例，失败直接退出
func Init(cfg *config.DatabaseConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = Open(cfg)
		if err != nil {
			zap.L().Fatal("failed to connect database", zap.String("driver", cfg.Driver), zap.Error(err))
		}
	})
	return db
}

// DB 获取全局 DB
func DB() *gorm.DB {
	return db
}
