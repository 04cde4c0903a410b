package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/auth"
	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/datamodels/book"
	"github.com/in004/bookscape/internal/datamodels/order"
	"github.com/in004/bookscape/internal/datamodels/user"
	"github.com/in004/bookscape/internal/infra/mail"
	rediscache "github.com/in004/bookscape/internal/infra/redis"
	"github.com/in004/bookscape/internal/payment/paypal"
	"github.com/in004/bookscape/internal/repository/sqldb"
)

const (
	redisReconcileLockKey = "checkout:reconcile:%s" // gateway token

	PolicyReview     = "review"
	PolicyOptimistic = "optimistic"

	maxUnitPrice   = 1_000_000  // 元
	maxOrderAmount = 10_000_000 // 元
)

// 对账结果状态
const (
	ReconcileAlreadyProcessed = "already_processed"
	ReconcileCompleted        = "completed"
	ReconcileNeedsReview      = "needs_review"
	ReconcileCancelled        = "cancelled"
)

// PaymentGateway 支付网关
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error)
	GetOrder(ctx context.Context, id string) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, id string) (*paypal.Order, error)
}

// Locker 分布式锁
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MailQueue 异步邮件投递
type MailQueue interface {
	Enqueue(ctx context.Context, m mail.Message) error
}

// CheckoutLine 下单请求中的一行，价格单位：元
type CheckoutLine struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

type CreateOrderInput struct {
	Items         []CheckoutLine `json:"items"`
	TotalAmount   float64        `json:"totalAmount"`
	ReservationID string         `json:"reservationId"`
}

type CreateOrderResult struct {
	OrderID        int64  `json:"orderId"`
	PaymentOrderID string `json:"paymentOrderId"`
	ApprovalURL    string `json:"approvalUrl"`
}

// ReconcileResult 对账结果，网关失败也以结果形式返回
type ReconcileResult struct {
	Status  string       `json:"status"`
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Order   *order.Order `json:"order,omitempty"`
}

// PaymentState 供前端轮询的订单支付状态
type PaymentState struct {
	Success bool         `json:"success"`
	Status  string       `json:"status"`
	Order   *order.Order `json:"order"`
}

type CheckoutService struct {
	db       *gorm.DB
	gateway  PaymentGateway
	locker   Locker
	mailer   MailQueue
	cfg      *config.CheckoutConfig
	currency string
	log      *zap.Logger
}

// NewCheckoutService locker 与 mailer 可为 nil
func NewCheckoutService(
	db *gorm.DB,
	gateway PaymentGateway,
	locker Locker,
	mailer MailQueue,
	cfg *config.CheckoutConfig,
	currency string,
	log *zap.Logger,
) *CheckoutService {
	if log == nil {
		log = zap.NewNop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &CheckoutService{
		db:       db,
		gateway:  gateway,
		locker:   locker,
		mailer:   mailer,
		cfg:      cfg,
		currency: currency,
		log:      log,
	}
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// CreateOrder 创建网关订单并落库一条 pending 订单
func (s *CheckoutService) CreateOrder(ctx context.Context, p auth.Principal, in CreateOrderInput) (*CreateOrderResult, error) {
	if len(in.Items) == 0 {
		return nil, invalidf("items must not be empty")
	}
	if in.TotalAmount <= 0 || in.TotalAmount > maxOrderAmount {
		return nil, invalidf("totalAmount must be positive and at most %d", maxOrderAmount)
	}
	if p.Email == "" {
		return nil, invalidf("authenticated user email is required")
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.ID) == "" {
			return nil, invalidf("item id is required")
		}
		if it.Quantity <= 0 || it.Quantity > MaxLineQuantity {
			return nil, invalidf("quantity for %s must be between 1 and %d", it.ID, MaxLineQuantity)
		}
		if it.Price < 0 || it.Price > maxUnitPrice {
			return nil, invalidf("price for %s is out of range", it.ID)
		}
	}

	userRepo := sqldb.NewUserRepository(s.db)
	u, err := userRepo.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, translateNotFound(err, "user")
	}

	items, computed, err := s.priceItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	total := toCents(in.TotalAmount)
	if s.cfg.EnforceCatalogPricing {
		if absInt64(computed-total) > 1 {
			return nil, invalidf("totalAmount %s does not match catalog total %s",
				paypal.FormatCents(total), paypal.FormatCents(computed))
		}
		total = computed
	}

	var reservationID *string
	if in.ReservationID != "" {
		if err := s.checkReservation(ctx, in.ReservationID, u.ID, items); err != nil {
			return nil, err
		}
		id := in.ReservationID
		reservationID = &id
	}

	lines := make([]paypal.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, paypal.LineItem{Name: it.Title, Quantity: it.Quantity, UnitCents: it.UnitPrice})
	}
	// 非强制定价时明细之和可能与总额不一致，网关会拒绝，此时只传总额
	if !s.cfg.EnforceCatalogPricing && computed != total {
		lines = nil
	}
	appURL := strings.TrimRight(s.cfg.AppURL, "/")
	remote, err := s.gateway.CreateOrder(ctx, paypal.CreateOrderRequest{
		ReferenceID: strconv.FormatInt(u.ID, 10),
		Items:       lines,
		TotalCents:  total,
		ReturnURL:   appURL + "/checkout/success",
		CancelURL:   appURL + "/cart",
	})
	if err != nil {
		GetMonitor().RecordGatewayError()
		s.log.Error("create gateway order failed", zap.Int64("user_id", u.ID), zap.Error(err))
		return nil, err
	}

	o := &order.Order{
		PaymentOrderID:   remote.ID,
		Status:           order.StatusPending,
		PaymentStatus:    order.PaymentPending,
		DeliveryStatus:   order.DeliveryPending,
		Items:            items,
		TotalAmount:      total,
		Currency:         s.currency,
		UserID:           u.ID,
		UserEmail:        u.Email,
		UserName:         strings.TrimSpace(u.Name + " " + u.Surname),
		ReservationID:    reservationID,
		StockDecremented: reservationID != nil,
		GatewayResponse:  string(remote.Raw),
	}
	if err := sqldb.NewOrderRepository(s.db).Create(ctx, o); err != nil {
		GetMonitor().RecordDBError()
		return nil, err
	}
	s.log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.String("payment_order_id", o.PaymentOrderID),
		zap.Int64("total", o.TotalAmount))

	return &CreateOrderResult{
		OrderID:        o.ID,
		PaymentOrderID: o.PaymentOrderID,
		ApprovalURL:    remote.ApprovalURL(),
	}, nil
}

// priceItems 生成订单明细快照并返回明细合计（分）
func (s *CheckoutService) priceItems(ctx context.Context, lines []CheckoutLine) ([]order.OrderItem, int64, error) {
	bookRepo := sqldb.NewBookRepository(s.db)
	items := make([]order.OrderItem, 0, len(lines))
	var sum int64
	for _, l := range lines {
		it := order.OrderItem{
			BookRef:   l.ID,
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: toCents(l.Price),
		}
		b, err := bookRepo.Resolve(ctx, l.ID)
		switch {
		case err == nil:
			it.BookID = b.ID
			if s.cfg.EnforceCatalogPricing {
				it.UnitPrice = b.EffectivePrice()
				it.Title = b.Title
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if s.cfg.EnforceCatalogPricing {
				return nil, 0, invalidf("book %s not found", l.ID)
			}
		default:
			return nil, 0, err
		}
		if it.Title == "" {
			it.Title = "Book " + l.ID
		}
		line, ok := mulCents(it.UnitPrice, it.Quantity)
		if !ok {
			return nil, 0, invalidf("amount for %s is out of range", l.ID)
		}
		if sum, ok = addCents(sum, line); !ok {
			return nil, 0, invalidf("order total is out of range")
		}
		items = append(items, it)
	}
	return items, sum, nil
}

// mulCents 与 addCents 在 int64 溢出时返回 false，参数均非负
func mulCents(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func addCents(a, b int64) (int64, bool) {
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// checkReservation 预留单必须属于下单用户，且图书与数量和订单明细完全一致
func (s *CheckoutService) checkReservation(ctx context.Context, id string, userID int64, items []order.OrderItem) error {
	res, err := sqldb.NewBookRepository(s.db).GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidf("reservation %s not found", id)
		}
		return err
	}
	if res.UserID != userID {
		return invalidf("reservation %s not found", id)
	}
	lines, err := reservedLines(res)
	if err != nil {
		return err
	}
	if !sameLines(lines, items) {
		return invalidf("reservation %s does not match order items", id)
	}
	_, err = sqldb.NewOrderRepository(s.db).GetByReservationID(ctx, id)
	if err == nil {
		return fmt.Errorf("%w: reservation %s already claimed", ErrConflict, id)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

func sameLines(lines []book.ReservedLine, items []order.OrderItem) bool {
	want := make(map[int64]int64, len(lines))
	for _, l := range lines {
		want[l.BookID] += l.Quantity
	}
	for _, it := range items {
		if it.BookID == 0 {
			return false
		}
		want[it.BookID] -= it.Quantity
	}
	for _, q := range want {
		if q != 0 {
			return false
		}
	}
	return true
}

func ownsOrder(p auth.Principal, o *order.Order) bool {
	return p.Role == user.RoleAdmin || o.UserID == p.UserID || (o.UserEmail != "" && strings.EqualFold(o.UserEmail, p.Email))
}

// Reconcile 用户从网关回跳后的对账：幂等检查 -> 查询/扣款 -> 完成或转人工复核
// 本地订单只允许下单人或管理员对账；本地没有订单时，网关能查到该支付才记录孤立支付
func (s *CheckoutService) Reconcile(ctx context.Context, p auth.Principal, token string) (*ReconcileResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, invalidf("orderId is required")
	}
	if !paypal.ValidOrderID(token) {
		return nil, invalidf("orderId %q is malformed", token)
	}
	GetMonitor().RecordReconcile()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, fmt.Sprintf(redisReconcileLockKey, token), s.cfg.ReconcileLockTTL)
		switch {
		case errors.Is(err, rediscache.ErrLockHeld):
			return nil, fmt.Errorf("%w: order %s is being reconciled", ErrConflict, token)
		case err != nil:
			// 锁服务不可用时继续，完成步骤本身带条件更新
			GetMonitor().RecordRedisError()
			s.log.Warn("reconcile lock unavailable", zap.String("token", token), zap.Error(err))
		default:
			defer release()
		}
	}

	orderRepo := sqldb.NewOrderRepository(s.db)
	o, err := orderRepo.GetByPaymentOrderID(ctx, token)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		o = nil
	}
	if o != nil && !ownsOrder(p, o) {
		return nil, fmt.Errorf("%w: order belongs to another user", ErrForbidden)
	}
	if o == nil {
		if _, err := s.gateway.GetOrder(ctx, token); err != nil {
			GetMonitor().RecordGatewayError()
			s.log.Warn("unknown payment token", zap.String("token", token), zap.Error(err))
			return nil, notFoundf("order %s not found", token)
		}
	}

	if o != nil && o.PaymentStatus == order.PaymentCompleted {
		return &ReconcileResult{
			Status:  ReconcileAlreadyProcessed,
			Success: true,
			Message: "Order already processed",
			Order:   o,
		}, nil
	}
	if o != nil && o.Status == order.StatusCancelled {
		return &ReconcileResult{
			Status:  ReconcileCancelled,
			Message: "Order was cancelled",
			Order:   o,
		}, nil
	}
	// 无明细的孤立支付只能由后台处理
	if o != nil && o.Status == order.StatusNeedsReview && len(o.Items) == 0 {
		return s.reviewResult(o), nil
	}

	confirmed, payload, captureErr := s.confirmPayment(ctx, token)

	if o == nil {
		return s.recordOrphan(ctx, p, token, confirmed, payload, captureErr)
	}
	if confirmed {
		return s.finalizeResult(ctx, o, payload, "")
	}
	if s.cfg.UnverifiedPaymentPolicy == PolicyOptimistic {
		warning := "payment not confirmed by gateway"
		if captureErr != nil {
			warning += ": " + captureErr.Error()
		}
		return s.finalizeResult(ctx, o, payload, warning)
	}
	return s.markNeedsReview(ctx, o, payload, captureErr)
}

// confirmPayment 先查询网关，未完成再扣款，扣款失败再查一次
func (s *CheckoutService) confirmPayment(ctx context.Context, token string) (bool, []byte, error) {
	remote, err := s.gateway.GetOrder(ctx, token)
	if err == nil && remote.Status == paypal.StatusCompleted {
		s.log.Info("gateway order already completed, skip capture", zap.String("token", token))
		return true, remote.Raw, nil
	}
	if err != nil {
		GetMonitor().RecordGatewayError()
		s.log.Warn("get gateway order failed", zap.String("token", token), zap.Error(err))
	}

	var payload []byte
	captured, captureErr := s.gateway.CaptureOrder(ctx, token)
	if captureErr == nil {
		if captured.Status == paypal.StatusCompleted {
			return true, captured.Raw, nil
		}
		payload = captured.Raw
		captureErr = fmt.Errorf("capture returned status %s", captured.Status)
	} else {
		GetMonitor().RecordGatewayError()
	}
	s.log.Warn("capture not confirmed", zap.String("token", token), zap.Error(captureErr))

	again, err := s.gateway.GetOrder(ctx, token)
	if err != nil {
		return false, payload, captureErr
	}
	if again.Status == paypal.StatusCompleted {
		return true, again.Raw, nil
	}
	if payload == nil {
		payload = again.Raw
	}
	return false, payload, captureErr
}

func (s *CheckoutService) finalizeResult(ctx context.Context, o *order.Order, payload []byte, warning string) (*ReconcileResult, error) {
	updated, won, err := s.finalize(ctx, o.ID, payload, warning)
	if err != nil {
		GetMonitor().RecordDBError()
		s.log.Error("finalize order failed", zap.Int64("order_id", o.ID), zap.Error(err))
		return &ReconcileResult{
			Status:  ReconcileNeedsReview,
			Message: "We're processing your order. You will receive a confirmation shortly.",
			Order:   o,
		}, nil
	}
	if !won {
		return &ReconcileResult{
			Status:  ReconcileAlreadyProcessed,
			Success: true,
			Message: "Order already processed",
			Order:   updated,
		}, nil
	}
	s.afterFinalize(ctx, updated)
	msg := "Payment completed successfully"
	if warning != "" {
		msg = "Order completed; payment will be verified"
	}
	return &ReconcileResult{
		Status:  ReconcileCompleted,
		Success: true,
		Message: msg,
		Order:   updated,
	}, nil
}

// finalize 单事务内完成订单并按订单明细扣减库存，每个订单只扣一次
func (s *CheckoutService) finalize(ctx context.Context, orderID int64, payload []byte, warning string) (*order.Order, bool, error) {
	won := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderRepo := sqldb.NewOrderRepository(tx)
		bookRepo := sqldb.NewBookRepository(tx)

		fields := map[string]interface{}{
			"status":         order.StatusCompleted,
			"payment_status": order.PaymentCompleted,
			"completed_at":   time.Now(),
		}
		if payload != nil {
			fields["gateway_response"] = string(payload)
		}
		n, err := orderRepo.UpdateFieldsWhere(ctx, orderID, "payment_status <> ?", []interface{}{order.PaymentCompleted}, fields)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		won = true

		cur, err := orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		// 保留复核阶段写下的告警
		warnings := []string{}
		if cur.ReconciliationWarning != "" {
			warnings = append(warnings, cur.ReconciliationWarning)
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if !cur.StockDecremented {
			ref := "order:" + strconv.FormatInt(cur.ID, 10)
			for _, it := range cur.Items {
				if it.BookID == 0 {
					warnings = append(warnings, fmt.Sprintf("item %s has no catalog book", it.BookRef))
					continue
				}
				applied, err := bookRepo.DecrementStockClamped(ctx, it.BookID, it.Quantity)
				if errors.Is(err, gorm.ErrRecordNotFound) {
					warnings = append(warnings, fmt.Sprintf("book %d no longer exists", it.BookID))
					continue
				}
				if err != nil {
					return err
				}
				if applied < it.Quantity {
					warnings = append(warnings, fmt.Sprintf("book %d oversold by %d", it.BookID, it.Quantity-applied))
				}
				if applied > 0 {
					if err := bookRepo.RecordMovement(ctx, &book.StockMovement{
						BookID:    it.BookID,
						Delta:     -applied,
						Reason:    book.ReasonOrderFinalize,
						Reference: ref,
					}); err != nil {
						return err
					}
				}
			}
		}
		_, err = orderRepo.UpdateFields(ctx, orderID, map[string]interface{}{
			"stock_decremented":      true,
			"reconciliation_warning": truncate(strings.Join(warnings, "; "), 512),
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	o, err := sqldb.NewOrderRepository(s.db).GetByID(ctx, orderID)
	if err != nil {
		return nil, won, err
	}
	if won {
		GetMonitor().RecordFinalized()
		s.log.Info("order finalized",
			zap.Int64("order_id", o.ID),
			zap.String("payment_order_id", o.PaymentOrderID),
			zap.String("warning", o.ReconciliationWarning))
	}
	return o, won, nil
}

// afterFinalize 清理购物车并投递确认邮件，失败只记录日志
func (s *CheckoutService) afterFinalize(ctx context.Context, o *order.Order) {
	if o.UserID > 0 && len(o.Items) > 0 {
		ids := make([]int64, 0, len(o.Items))
		for _, it := range o.Items {
			if it.BookID > 0 {
				ids = append(ids, it.BookID)
			}
		}
		if _, err := sqldb.NewCartRepository(s.db).RemoveBooks(ctx, o.UserID, ids); err != nil {
			s.log.Warn("remove purchased books from cart failed", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}
	if s.mailer != nil && o.UserEmail != "" {
		if err := s.mailer.Enqueue(ctx, orderConfirmationMail(o)); err != nil {
			GetMonitor().RecordMQError()
			s.log.Warn("queue order confirmation failed", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}
}

func (s *CheckoutService) markNeedsReview(ctx context.Context, o *order.Order, payload []byte, captureErr error) (*ReconcileResult, error) {
	fields := map[string]interface{}{
		"status":                 order.StatusNeedsReview,
		"payment_status":         order.PaymentUnverified,
		"reconciliation_warning": "payment could not be confirmed with the gateway",
	}
	if captureErr != nil {
		fields["capture_error"] = truncate(captureErr.Error(), 512)
	}
	if payload != nil {
		fields["gateway_response"] = string(payload)
	}
	orderRepo := sqldb.NewOrderRepository(s.db)
	if _, err := orderRepo.UpdateFieldsWhere(ctx, o.ID, "payment_status <> ?", []interface{}{order.PaymentCompleted}, fields); err != nil {
		GetMonitor().RecordDBError()
		s.log.Error("mark order needs_review failed", zap.Int64("order_id", o.ID), zap.Error(err))
		return s.reviewResult(o), nil
	}
	GetMonitor().RecordNeedsReview()
	s.log.Warn("order parked for review", zap.Int64("order_id", o.ID), zap.String("payment_order_id", o.PaymentOrderID))

	updated, err := orderRepo.GetByID(ctx, o.ID)
	if err != nil {
		return s.reviewResult(o), nil
	}
	return s.reviewResult(updated), nil
}

func (s *CheckoutService) reviewResult(o *order.Order) *ReconcileResult {
	return &ReconcileResult{
		Status:  ReconcileNeedsReview,
		Message: "We're processing your order. You will receive a confirmation once the payment is verified.",
		Order:   o,
	}
}

// recordOrphan 网关有支付但本地没有订单，落一条无明细的待复核订单
// 提交人记为订单用户，便于后台追溯
func (s *CheckoutService) recordOrphan(ctx context.Context, p auth.Principal, token string, confirmed bool, payload []byte, captureErr error) (*ReconcileResult, error) {
	warning := "no local order for gateway payment"
	if confirmed {
		warning += " (gateway reports COMPLETED)"
	}
	o := &order.Order{
		PaymentOrderID:        token,
		Status:                order.StatusNeedsReview,
		PaymentStatus:         order.PaymentUnverified,
		DeliveryStatus:        order.DeliveryPending,
		Currency:              s.currency,
		UserID:                p.UserID,
		UserEmail:             p.Email,
		ReconciliationWarning: warning,
		GatewayResponse:       string(payload),
	}
	if captureErr != nil {
		o.CaptureError = truncate(captureErr.Error(), 512)
	}
	orderRepo := sqldb.NewOrderRepository(s.db)
	if err := orderRepo.Create(ctx, o); err != nil {
		// 并发插入时读回已有记录
		existing, gerr := orderRepo.GetByPaymentOrderID(ctx, token)
		if gerr != nil {
			GetMonitor().RecordDBError()
			s.log.Error("record orphan payment failed", zap.String("token", token), zap.Error(err))
			return s.reviewResult(nil), nil
		}
		o = existing
	}
	GetMonitor().RecordNeedsReview()
	s.log.Warn("orphan gateway payment recorded", zap.String("token", token), zap.Bool("confirmed", confirmed))
	return s.reviewResult(o), nil
}

func (s *CheckoutService) findOwnedOrder(ctx context.Context, p auth.Principal, orderID int64, paymentOrderID string) (*order.Order, error) {
	orderRepo := sqldb.NewOrderRepository(s.db)
	var (
		o   *order.Order
		err error
	)
	switch {
	case orderID > 0:
		o, err = orderRepo.GetByID(ctx, orderID)
	case strings.TrimSpace(paymentOrderID) != "":
		o, err = orderRepo.GetByPaymentOrderID(ctx, strings.TrimSpace(paymentOrderID))
	default:
		return nil, invalidf("orderId or paypalOrderId is required")
	}
	if err != nil {
		return nil, translateNotFound(err, "order")
	}
	if !ownsOrder(p, o) {
		return nil, fmt.Errorf("%w: order belongs to another user", ErrForbidden)
	}
	return o, nil
}

// MarkSuccess 前端确认支付结果；未完成支付时先跑一次对账
func (s *CheckoutService) MarkSuccess(ctx context.Context, p auth.Principal, orderID int64, paymentOrderID string) (*PaymentState, error) {
	o, err := s.findOwnedOrder(ctx, p, orderID, paymentOrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != order.PaymentCompleted {
		if _, err := s.Reconcile(ctx, p, o.PaymentOrderID); err != nil && !errors.Is(err, ErrConflict) {
			return nil, err
		}
		if o, err = sqldb.NewOrderRepository(s.db).GetByID(ctx, o.ID); err != nil {
			return nil, translateNotFound(err, "order")
		}
	}
	return paymentState(o), nil
}

// Status 查询订单支付状态
func (s *CheckoutService) Status(ctx context.Context, p auth.Principal, paymentOrderID string) (*PaymentState, error) {
	o, err := s.findOwnedOrder(ctx, p, 0, paymentOrderID)
	if err != nil {
		return nil, err
	}
	return paymentState(o), nil
}

func paymentState(o *order.Order) *PaymentState {
	return &PaymentState{
		Success: o.PaymentStatus == order.PaymentCompleted,
		Status:  o.Status,
		Order:   o,
	}
}

// 复核动作
const (
	ReviewConfirm = "confirm"
	ReviewCancel  = "cancel"
)

// ResolveReview 后台处理待复核订单
func (s *CheckoutService) ResolveReview(ctx context.Context, orderID int64, action string) (*order.Order, error) {
	orderRepo := sqldb.NewOrderRepository(s.db)
	o, err := orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, translateNotFound(err, "order")
	}
	if o.Status != order.StatusNeedsReview {
		return nil, fmt.Errorf("%w: order %d is %s, not needs_review", ErrConflict, orderID, o.Status)
	}

	switch action {
	case ReviewConfirm:
		remote, err := s.gateway.GetOrder(ctx, o.PaymentOrderID)
		if err != nil {
			GetMonitor().RecordGatewayError()
			return nil, err
		}
		if remote.Status != paypal.StatusCompleted {
			return o, nil
		}
		updated, won, err := s.finalize(ctx, o.ID, remote.Raw, "")
		if err != nil {
			return nil, err
		}
		if won {
			s.afterFinalize(ctx, updated)
		}
		return updated, nil
	case ReviewCancel:
		n, err := orderRepo.UpdateFieldsWhere(ctx, o.ID, "status = ?", []interface{}{order.StatusNeedsReview}, map[string]interface{}{
			"status":         order.StatusCancelled,
			"payment_status": order.PaymentFailed,
		})
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: order %d changed concurrently", ErrConflict, orderID)
		}
		s.log.Info("review order cancelled", zap.Int64("order_id", o.ID))
		return orderRepo.GetByID(ctx, o.ID)
	default:
		return nil, invalidf("action must be %q or %q", ReviewConfirm, ReviewCancel)
	}
}

// SweepReview 巡检待复核订单，网关已完成的直接完成，返回完成数量
func (s *CheckoutService) SweepReview(ctx context.Context, limit int) (int, error) {
	list, err := sqldb.NewOrderRepository(s.db).List(ctx, order.ListFilter{Status: order.StatusNeedsReview, Limit: limit})
	if err != nil {
		return 0, err
	}
	finalized := 0
	for _, o := range list {
		if ctx.Err() != nil {
			return finalized, ctx.Err()
		}
		if len(o.Items) == 0 {
			continue
		}
		remote, err := s.gateway.GetOrder(ctx, o.PaymentOrderID)
		if err != nil {
			GetMonitor().RecordGatewayError()
			s.log.Warn("sweep: get gateway order failed", zap.Int64("order_id", o.ID), zap.Error(err))
			continue
		}
		if remote.Status != paypal.StatusCompleted {
			continue
		}
		updated, won, err := s.finalize(ctx, o.ID, remote.Raw, "")
		if err != nil {
			s.log.Error("sweep: finalize failed", zap.Int64("order_id", o.ID), zap.Error(err))
			continue
		}
		if won {
			finalized++
			s.afterFinalize(ctx, updated)
		}
	}
	return finalized, nil
}

// truncate 按字节截断，不切开多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
