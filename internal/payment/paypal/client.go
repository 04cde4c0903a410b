package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/in004/bookscape/internal/config"
)

// 网关订单状态
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusVoided    = "VOIDED"
)

const issueAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

// APIError 网关返回非 2xx
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: status %d: %s", e.StatusCode, e.Body)
}

// Issue 返回错误详情中的第一个 issue 代码
func (e *APIError) Issue() string {
	var payload struct {
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err != nil || len(payload.Details) == 0 {
		return ""
	}
	return payload.Details[0].Issue
}

// ErrNoApprovalLink 创建订单成功但响应里没有 approve 链接
var ErrNoApprovalLink = errors.New("paypal: approval link missing in response")

// ErrInvalidOrderID 订单号含非法字符，不发请求
var ErrInvalidOrderID = errors.New("paypal: invalid order id")

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// ValidOrderID 网关订单号只含字母、数字和连字符
func ValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

func orderPath(id string) (string, error) {
	if !ValidOrderID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderID, id)
	}
	return "/v2/checkout/orders/" + url.PathEscape(id), nil
}

// Money 金额，Value 为十进制字符串
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type Item struct {
	Name       string `json:"name"`
	Quantity   string `json:"quantity"`
	UnitAmount Money  `json:"unit_amount"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// Order 网关订单，Raw 保存原始响应
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`
	Raw    []byte `json:"-"`
}

// ApprovalURL 取出用户跳转支付的链接
func (o *Order) ApprovalURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// LineItem 下单行，金额单位：分
type LineItem struct {
	Name      string
	Quantity  int64
	UnitCents int64
}

// CreateOrderRequest 创建网关订单的参数
type CreateOrderRequest struct {
	ReferenceID string
	Items       []LineItem
	TotalCents  int64
	ReturnURL   string
	CancelURL   string
}

// Client PayPal REST v2 客户端，access token 由 oauth2 token source 缓存复用
type Client struct {
	baseURL   string
	currency  string
	brandName string
	http      *http.Client
}

// NewClient 构建客户端
func NewClient(cfg *config.PayPalConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := cc.Client(tokenCtx)
	httpClient.Timeout = timeout

	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	return &Client{
		baseURL:   base,
		currency:  currency,
		brandName: cfg.BrandName,
		http:      httpClient,
	}
}

// FormatCents 1999 -> "19.99"
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// CreateOrder 创建 intent=CAPTURE 的订单
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	items := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, Item{
			Name:       it.Name,
			Quantity:   fmt.Sprintf("%d", it.Quantity),
			UnitAmount: Money{CurrencyCode: c.currency, Value: FormatCents(it.UnitCents)},
		})
	}
	total := FormatCents(req.TotalCents)
	amount := map[string]interface{}{
		"currency_code": c.currency,
		"value":         total,
	}
	if len(items) > 0 {
		amount["breakdown"] = map[string]interface{}{
			"item_total": Money{CurrencyCode: c.currency, Value: total},
		}
	}
	unit := map[string]interface{}{"amount": amount}
	if len(items) > 0 {
		unit["items"] = items
	}
	if req.ReferenceID != "" {
		unit["reference_id"] = req.ReferenceID
	}
	body := map[string]interface{}{
		"intent":         "CAPTURE",
		"purchase_units": []interface{}{unit},
		"application_context": map[string]interface{}{
			"brand_name":  c.brandName,
			"user_action": "PAY_NOW",
			"return_url":  req.ReturnURL,
			"cancel_url":  req.CancelURL,
		},
	}

	o, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", nil, body)
	if err != nil {
		return nil, err
	}
	if o.ApprovalURL() == "" {
		return nil, ErrNoApprovalLink
	}
	return o, nil
}

// GetOrder 查询订单详情
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	path, err := orderPath(id)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// CaptureOrder 扣款；请求 id 固定为 capture-<id>，网关据此去重。
// 已扣款的订单不报错，返回最新订单详情。
func (c *Client) CaptureOrder(ctx context.Context, id string) (*Order, error) {
	path, err := orderPath(id)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"PayPal-Request-Id": "capture-" + id,
		"Prefer":            "return=representation",
	}
	o, err := c.do(ctx, http.MethodPost, path+"/capture", headers, struct{}{})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Issue() == issueAlreadyCaptured {
		return c.GetOrder(ctx, id)
	}
	return o, err
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body interface{}) (*Order, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("paypal: decode response: %w", err)
	}
	o.Raw = raw
	return &o, nil
}
