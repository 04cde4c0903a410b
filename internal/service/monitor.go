package service

import (
	"sync"
	"time"
)

// Monitor 监控服务，用于统计错误和结算流程指标
type Monitor struct {
	mu sync.RWMutex

	// 错误统计
	RedisErrors   int64
	MQErrors      int64
	DBErrors      int64
	GatewayErrors int64
	MailErrors    int64

	// 结算统计
	StockShortfalls    int64
	ReconcileRequests  int64
	ReconcileFinalized int64
	ReconcileReview    int64
	MailSent           int64

	// 时间统计
	LastRedisError   time.Time
	LastMQError      time.Time
	LastDBError      time.Time
	LastGatewayError time.Time
	LastReconcile    time.Time
	LastMailTime     time.Time
}

var globalMonitor = &Monitor{}

// GetMonitor 获取全局监控实例
func GetMonitor() *Monitor {
	return globalMonitor
}

// RecordRedisError 记录Redis错误
func (m *Monitor) RecordRedisError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RedisErrors++
	m.LastRedisError = time.Now()
}

// RecordMQError 记录MQ错误
func (m *Monitor) RecordMQError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MQErrors++
	m.LastMQError = time.Now()
}

// RecordDBError 记录数据库错误
func (m *Monitor) RecordDBError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DBErrors++
	m.LastDBError = time.Now()
}

// RecordGatewayError 记录支付网关错误
func (m *Monitor) RecordGatewayError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GatewayErrors++
	m.LastGatewayError = time.Now()
}

func (m *Monitor) RecordStockShortfall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StockShortfalls++
}

// RecordReconcile 记录一次对账请求
func (m *Monitor) RecordReconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReconcileRequests++
	m.LastReconcile = time.Now()
}

func (m *Monitor) RecordFinalized() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReconcileFinalized++
}

// RecordNeedsReview 记录转入人工复核的订单
func (m *Monitor) RecordNeedsReview() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReconcileReview++
}

// RecordMailSent 记录邮件发送成功
func (m *Monitor) RecordMailSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MailSent++
	m.LastMailTime = time.Now()
}

// RecordMailFailed 记录邮件发送失败
func (m *Monitor) RecordMailFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MailErrors++
}

// GetStats 获取统计信息
func (m *Monitor) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	finalizeRate := float64(0)
	if m.ReconcileRequests > 0 {
		finalizeRate = float64(m.ReconcileFinalized) / float64(m.ReconcileRequests) * 100
	}

	mailSuccessRate := float64(0)
	totalMail := m.MailSent + m.MailErrors
	if totalMail > 0 {
		mailSuccessRate = float64(m.MailSent) / float64(totalMail) * 100
	}

	return map[string]interface{}{
		"errors": map[string]interface{}{
			"redis":   m.RedisErrors,
			"mq":      m.MQErrors,
			"db":      m.DBErrors,
			"gateway": m.GatewayErrors,
			"mail":    m.MailErrors,
		},
		"checkout": map[string]interface{}{
			"stock_shortfalls":    m.StockShortfalls,
			"reconcile_requests":  m.ReconcileRequests,
			"reconcile_finalized": m.ReconcileFinalized,
			"reconcile_review":    m.ReconcileReview,
			"finalize_rate":       finalizeRate,
			"mail_sent":           m.MailSent,
			"mail_success_rate":   mailSuccessRate,
		},
		"last_events": map[string]interface{}{
			"redis_error":   m.LastRedisError,
			"mq_error":      m.LastMQError,
			"db_error":      m.LastDBError,
			"gateway_error": m.LastGatewayError,
			"reconcile":     m.LastReconcile,
			"mail":          m.LastMailTime,
		},
	}
}

// Reset 重置统计（用于测试或定期清理）
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RedisErrors = 0
	m.MQErrors = 0
	m.DBErrors = 0
	m.GatewayErrors = 0
	m.MailErrors = 0
	m.StockShortfalls = 0
	m.ReconcileRequests = 0
	m.ReconcileFinalized = 0
	m.ReconcileReview = 0
	m.MailSent = 0
}
