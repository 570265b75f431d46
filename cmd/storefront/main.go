// Storefront 主程序
// 功能：商品目录、购物车、结算下单、数字商品下载、会员订阅
// 架构：按限界上下文分层（domain / application / infrastructure / interfaces），单进程 HTTP 服务
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	cartapp "github.com/wyfcoding/storefront/internal/cart/application"
	cartmysql "github.com/wyfcoding/storefront/internal/cart/infrastructure/persistence/mysql"
	cartredis "github.com/wyfcoding/storefront/internal/cart/infrastructure/persistence/redis"
	carthttp "github.com/wyfcoding/storefront/internal/cart/interfaces/http"
	catalogapp "github.com/wyfcoding/storefront/internal/catalog/application"
	catalogmysql "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/mysql"
	catalogredis "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/redis"
	cataloghttp "github.com/wyfcoding/storefront/internal/catalog/interfaces/http"
	contentapp "github.com/wyfcoding/storefront/internal/content/application"
	contenthttp "github.com/wyfcoding/storefront/internal/content/interfaces/http"
	dlapp "github.com/wyfcoding/storefront/internal/download/application"
	dlmysql "github.com/wyfcoding/storefront/internal/download/infrastructure/persistence/mysql"
	"github.com/wyfcoding/storefront/internal/download/infrastructure/storage"
	dlhttp "github.com/wyfcoding/storefront/internal/download/interfaces/http"
	invapp "github.com/wyfcoding/storefront/internal/inventory/application"
	invmysql "github.com/wyfcoding/storefront/internal/inventory/infrastructure/persistence/mysql"
	invhttp "github.com/wyfcoding/storefront/internal/inventory/interfaces/http"
	memberapp "github.com/wyfcoding/storefront/internal/membership/application"
	membermysql "github.com/wyfcoding/storefront/internal/membership/infrastructure/persistence/mysql"
	memberhttp "github.com/wyfcoding/storefront/internal/membership/interfaces/http"
	notifyapp "github.com/wyfcoding/storefront/internal/notification/application"
	notifymysql "github.com/wyfcoding/storefront/internal/notification/infrastructure/persistence/mysql"
	"github.com/wyfcoding/storefront/internal/notification/infrastructure/sender"
	notifyhttp "github.com/wyfcoding/storefront/internal/notification/interfaces/http"
	orderapp "github.com/wyfcoding/storefront/internal/order/application"
	orderdomain "github.com/wyfcoding/storefront/internal/order/domain"
	ordermysql "github.com/wyfcoding/storefront/internal/order/infrastructure/persistence/mysql"
	orderhttp "github.com/wyfcoding/storefront/internal/order/interfaces/http"
	"github.com/wyfcoding/storefront/pkg/cache"
	"github.com/wyfcoding/storefront/pkg/config"
	"github.com/wyfcoding/storefront/pkg/db"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
	"github.com/wyfcoding/storefront/pkg/middleware"
	"github.com/wyfcoding/storefront/pkg/mq"
	"github.com/wyfcoding/storefront/pkg/ratelimit"
	"github.com/wyfcoding/storefront/pkg/trace"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

const categoryCacheTTL = 10 * time.Minute

func main() {
	// 1. 加载配置
	configPath := config.GetEnv("STOREFRONT_CONFIG", "configs/storefront/config.toml")
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting Storefront",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	// 3. 初始化追踪
	if cfg.Tracing.Enabled {
		shutdown, err := trace.InitTracer(cfg.ServiceName, cfg.Tracing.CollectorEndpoint, cfg.Tracing.SamplingRate)
		if err != nil {
			logger.Error(ctx, "Failed to initialize tracer", "error", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()
			logger.Info(ctx, "Tracer initialized", "endpoint", cfg.Tracing.CollectorEndpoint)
		}
	}

	// 4. 初始化数据库
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		Tracing:            cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize database", "error", err)
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(models()...); err != nil {
			logger.Fatal(ctx, "Failed to migrate database", "error", err)
		}
		logger.Info(ctx, "Database migrated")
	}

	// 5. 初始化 Redis
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize Redis", "error", err)
	}
	defer redisCache.Close()

	// 6. 初始化限流器
	rateLimiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())

	// 7. 初始化指标
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.ServiceName)
		if err := m.Register(); err != nil {
			logger.Fatal(ctx, "Failed to register metrics", "error", err)
		}
	}

	// 8. 初始化通知发送方，仅 kafka 驱动需要生产者
	var publisher sender.Publisher
	if cfg.Notification.Driver == "kafka" {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize Kafka producer", "error", err)
		}
		defer producer.Close()
		publisher = producer
	}
	notificationSender, err := sender.New(cfg.Notification, publisher)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize notification sender", "error", err)
	}

	files, err := storage.NewLocalStorage(cfg.Download.MediaRoot)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize media storage", "error", err)
	}

	rules, err := orderdomain.NewPricingRules(cfg.Checkout.TaxRate, cfg.Checkout.FreeShippingThreshold, cfg.Checkout.FlatShipping)
	if err != nil {
		logger.Fatal(ctx, "Invalid checkout pricing", "error", err)
	}

	// 9. 初始化仓储与应用服务
	products := catalogmysql.NewProductRepository(database)
	categories := catalogredis.NewCachedCategoryRepository(catalogmysql.NewCategoryRepository(database), redisCache, categoryCacheTTL)
	pickups := catalogmysql.NewPickupLocationRepository(database)
	orders := ordermysql.NewOrderRepository(database)

	ledger := invapp.NewLedger(invmysql.NewInventoryRepository(database), database, m)
	catalogSvc := catalogapp.NewCatalogService(products, categories, pickups, ledger, database)
	sessionTTL := time.Duration(cfg.Auth.SessionTTLHours) * time.Hour
	cartSvc := cartapp.NewCartService(
		cartmysql.NewAccountStore(database),
		cartredis.NewSessionStore(redisCache, sessionTTL),
		products, database, rules.TaxRate,
	)
	downloadSvc := dlapp.NewDownloadService(dlmysql.NewGrantRepository(database), products, files, dlapp.Policy{
		Validity:     time.Duration(cfg.Download.ValidityDays) * 24 * time.Hour,
		MaxDownloads: cfg.Download.MaxDownloads,
	}, m)
	notifier := notifyapp.NewNotifier(notificationSender, notifymysql.NewNotificationRepository(database), cfg.Notification.SiteURL, m)
	checkoutSvc := orderapp.NewCheckoutService(cartSvc, products, catalogSvc, ledger, downloadSvc, orders, notifier, database, rules, m)
	orderSvc := orderapp.NewOrderService(orders, downloadSvc, database)
	membershipSvc, err := memberapp.NewMembershipService(membermysql.NewProfileRepository(database), database, cfg.Membership)
	if err != nil {
		logger.Fatal(ctx, "Invalid membership config", "error", err)
	}
	contentSvc := contentapp.NewContentService(cfg.Company)

	// 10. 创建 HTTP 服务器
	router := gin.New()
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.Authenticate(middleware.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)))
	api.Use(middleware.Session(cfg.Auth.SessionCookie, sessionTTL))

	catalogHandler := cataloghttp.NewCatalogHandler(catalogSvc)
	catalogHandler.RegisterRoutes(api)
	carthttp.NewCartHandler(cartSvc).RegisterRoutes(api)
	orderHandler := orderhttp.NewOrderHandler(checkoutSvc, orderSvc)
	orderHandler.RegisterRoutes(api, middleware.RateLimitMiddleware(rateLimiter, cfg.RateLimit, "checkout"))
	dlhttp.NewDownloadHandler(downloadSvc).RegisterRoutes(api, middleware.RateLimitMiddleware(rateLimiter, cfg.RateLimit, "download"))
	memberHandler := memberhttp.NewMembershipHandler(membershipSvc)
	memberHandler.RegisterRoutes(api)
	contenthttp.NewContentHandler(contentSvc).RegisterRoutes(api)

	admin := api.Group("/admin", middleware.RequireUser(), middleware.RequireAdmin())
	catalogHandler.RegisterAdminRoutes(admin)
	invhttp.NewInventoryHandler(ledger).RegisterAdminRoutes(admin)
	orderHandler.RegisterAdminRoutes(admin)
	memberHandler.RegisterAdminRoutes(admin)
	notifyhttp.NewNotificationHandler(notifier).RegisterAdminRoutes(admin)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 11. 启动服务
	g, gctx := errgroup.WithContext(ctx)

	var metricsServer *http.Server
	if m != nil {
		metricsServer = m.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	g.Go(func() error {
		logger.Info(gctx, "Starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 12. 优雅关停
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info(ctx, "Shutting down Storefront")
		case <-gctx.Done():
			logger.Info(ctx, "Context cancelled, shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(ctx, "Metrics server shutdown error", "error", err)
			}
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "Storefront exited with error", "error", err)
		return
	}
	logger.Info(ctx, "Storefront stopped")
}

// models 所有上下文需要迁移的表
func models() []any {
	var all []any
	all = append(all, catalogmysql.Models()...)
	all = append(all, invmysql.Models()...)
	all = append(all, cartmysql.Models()...)
	all = append(all, dlmysql.Models()...)
	all = append(all, ordermysql.Models()...)
	all = append(all, membermysql.Models()...)
	all = append(all, notifymysql.Models()...)
	return all
}
