package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/datamodels/book"
	"github.com/in004/bookscape/internal/repository/sqldb"
)

// StockItem 待校验的单行
type StockItem struct {
	ID                string `json:"id"`
	RequestedQuantity int64  `json:"requestedQuantity"`
}

// StockShortfall 库存不足或图书不存在的明细
type StockShortfall struct {
	ItemID            string `json:"itemId"`
	RequestedQuantity int64  `json:"requestedQuantity"`
	AvailableStock    int64  `json:"availableStock"`
	Title             string `json:"title,omitempty"`
	Error             string `json:"error,omitempty"`
}

// StockValidation 校验结果；Valid 为 true 时库存已扣减并生成预留单
type StockValidation struct {
	Valid         bool             `json:"valid"`
	Errors        []StockShortfall `json:"errors,omitempty"`
	ReservationID string           `json:"reservationId,omitempty"`
}

// MaxLineQuantity 单行最大数量，库存校验、下单与购物车共用
const MaxLineQuantity = 1000

// errStockShortfall 仅用于回滚事务
var errStockShortfall = errors.New("stock shortfall")

type StockService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStockService(db *gorm.DB, log *zap.Logger) *StockService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StockService{db: db, log: log}
}

// Validate 校验并扣减库存：全部满足才提交，任一不足则整体回滚并返回所有不足项
// 预留单记在 userID 名下，只能被该用户的订单认领
func (s *StockService) Validate(ctx context.Context, userID int64, items []StockItem) (*StockValidation, error) {
	if len(items) == 0 {
		return nil, invalidf("items must not be empty")
	}
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return nil, invalidf("item id is required")
		}
		if it.RequestedQuantity <= 0 || it.RequestedQuantity > MaxLineQuantity {
			return nil, invalidf("requested quantity for %s must be between 1 and %d", it.ID, MaxLineQuantity)
		}
	}

	result := &StockValidation{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookRepo := sqldb.NewBookRepository(tx)
		var shortfalls []StockShortfall
		reserved := make(map[int64]int64)
		order := make([]int64, 0, len(items))

		for _, it := range items {
			b, err := bookRepo.Resolve(ctx, it.ID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				shortfalls = append(shortfalls, StockShortfall{
					ItemID:            it.ID,
					RequestedQuantity: it.RequestedQuantity,
					AvailableStock:    0,
					Error:             "Book not found",
				})
				continue
			}
			if err != nil {
				return err
			}

			ok, err := bookRepo.DecrementStock(ctx, b.ID, it.RequestedQuantity)
			if err != nil {
				return err
			}
			if !ok {
				// 重读拿到当前可用量
				available := int64(0)
				if cur, err := bookRepo.GetByID(ctx, b.ID); err == nil {
					available = cur.Stock
				}
				shortfalls = append(shortfalls, StockShortfall{
					ItemID:            it.ID,
					RequestedQuantity: it.RequestedQuantity,
					AvailableStock:    available,
					Title:             b.Title,
				})
				continue
			}
			if _, seen := reserved[b.ID]; !seen {
				order = append(order, b.ID)
			}
			reserved[b.ID] += it.RequestedQuantity
		}

		if len(shortfalls) > 0 {
			result.Errors = shortfalls
			return errStockShortfall
		}

		lines := make([]book.ReservedLine, 0, len(order))
		for _, id := range order {
			lines = append(lines, book.ReservedLine{BookID: id, Quantity: reserved[id]})
		}
		raw, err := json.Marshal(lines)
		if err != nil {
			return err
		}
		res := &book.StockReservation{ID: uuid.NewString(), UserID: userID, Items: string(raw)}
		if err := bookRepo.CreateReservation(ctx, res); err != nil {
			return err
		}
		for _, l := range lines {
			if err := bookRepo.RecordMovement(ctx, &book.StockMovement{
				BookID:    l.BookID,
				Delta:     -l.Quantity,
				Reason:    book.ReasonReservation,
				Reference: res.ID,
			}); err != nil {
				return err
			}
		}
		result.ReservationID = res.ID
		return nil
	})

	if errors.Is(err, errStockShortfall) {
		GetMonitor().RecordStockShortfall()
		s.log.Info("stock validation failed", zap.Int("shortfalls", len(result.Errors)))
		return result, nil
	}
	if err != nil {
		GetMonitor().RecordDBError()
		return nil, err
	}
	result.Valid = true
	s.log.Info("stock reserved", zap.String("reservation_id", result.ReservationID), zap.Int("items", len(items)))
	return result, nil
}

// reservedLines 解析预留单内容
func reservedLines(res *book.StockReservation) ([]book.ReservedLine, error) {
	var lines []book.ReservedLine
	if err := json.Unmarshal([]byte(res.Items), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}
