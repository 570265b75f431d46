// Package metrics 提供 Prometheus 指标集合：HTTP 请求、结算结果、下载兑换结果
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/storefront/pkg/logger"
)

// Metrics 指标集合。nil 接收者上的记录方法为空操作。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 结算结果计数：placed, empty_cart, validation, stock_conflict, stock_changed, error
	CheckoutTotal *prometheus.CounterVec
	// 订单金额
	OrderTotalAmount prometheus.Histogram
	// 下载兑换结果计数：ok, not_found, expired, exhausted, error
	RedemptionsTotal *prometheus.CounterVec
	// 库存流水计数（按类型）
	InventoryAdjustmentsTotal *prometheus.CounterVec
	// 通知发送失败计数
	NotificationFailuresTotal prometheus.Counter
}

// New 创建指标实例，使用独立的 registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CheckoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "checkout_total",
			Help:      "Checkout attempts by outcome",
		}, []string{"outcome"}),
		OrderTotalAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "order_total_amount",
			Help:      "Grand total of placed orders",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000},
		}),
		RedemptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "download_redemptions_total",
			Help:      "Download redemptions by outcome",
		}, []string{"outcome"}),
		InventoryAdjustmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "inventory_adjustments_total",
			Help:      "Inventory ledger entries by change type",
		}, []string{"change_type"}),
		NotificationFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "notification_failures_total",
			Help:      "Notifications that failed to send",
		}),
	}
	return m
}

// Register 注册所有指标及运行时采集器
func (m *Metrics) Register() error {
	collectorsToRegister := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CheckoutTotal,
		m.OrderTotalAmount,
		m.RedemptionsTotal,
		m.InventoryAdjustmentsTotal,
		m.NotificationFailuresTotal,
	}
	for _, c := range collectorsToRegister {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// Handler 返回 Prometheus 抓取处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartHTTPServer 在独立端口启动 Prometheus HTTP 服务器
func (m *Metrics) StartHTTPServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info(context.Background(), "Starting metrics HTTP server", "port", port, "path", path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "Metrics HTTP server error", "error", err)
		}
	}()
	return server
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCheckout 记录结算结果
func (m *Metrics) RecordCheckout(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutTotal.WithLabelValues(outcome).Inc()
}

// ObserveOrderTotal 记录订单金额
func (m *Metrics) ObserveOrderTotal(total float64) {
	if m == nil {
		return
	}
	m.OrderTotalAmount.Observe(total)
}

// RecordRedemption 记录下载兑换结果
func (m *Metrics) RecordRedemption(outcome string) {
	if m == nil {
		return
	}
	m.RedemptionsTotal.WithLabelValues(outcome).Inc()
}

// RecordInventoryAdjustment 记录库存流水
func (m *Metrics) RecordInventoryAdjustment(changeType string) {
	if m == nil {
		return
	}
	m.InventoryAdjustmentsTotal.WithLabelValues(changeType).Inc()
}

// RecordNotificationFailure 记录通知失败
func (m *Metrics) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.NotificationFailuresTotal.Inc()
}
