// Package application 下载授权的签发与兑换
package application

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/google/uuid"
	catalog "github.com/wyfcoding/storefront/internal/catalog/domain"
	"github.com/wyfcoding/storefront/internal/download/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
)

// ProductReader 读取数字商品的文件或链接
type ProductReader interface {
	Get(ctx context.Context, id uint) (*catalog.Product, error)
}

// FileResolver 将商品文件的相对路径解析为可读取的本地路径
type FileResolver interface {
	Resolve(rel string) (string, error)
}

// Policy 新授权的默认有效期与次数上限（0 表示不限）
type Policy struct {
	Validity     time.Duration
	MaxDownloads int
}

// Delivery 兑换结果：本地文件以附件方式发送，否则重定向到外部链接
type Delivery struct {
	Grant    *domain.Grant
	FilePath string
	FileName string
	URL      string
}

// DownloadService 下载授权服务
type DownloadService struct {
	repo     domain.Repository
	products ProductReader
	files    FileResolver
	policy   Policy
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewDownloadService 创建下载授权服务
func NewDownloadService(repo domain.Repository, products ProductReader, files FileResolver, policy Policy, m *metrics.Metrics) *DownloadService {
	return &DownloadService{
		repo:     repo,
		products: products,
		files:    files,
		policy:   policy,
		metrics:  m,
		now:      time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (s *DownloadService) WithClock(now func() time.Time) *DownloadService {
	s.now = now
	return s
}

// Issue 按默认策略签发授权
func (s *DownloadService) Issue(ctx context.Context, orderID, productID uint) (*domain.Grant, error) {
	return s.IssueWith(ctx, orderID, productID, s.policy)
}

// IssueWith 签发授权。同一 (订单, 商品) 已有授权时原样返回，有效期与上限不会被刷新。
func (s *DownloadService) IssueWith(ctx context.Context, orderID, productID uint, policy Policy) (*domain.Grant, error) {
	grant, created, err := s.repo.GetOrCreate(ctx, &domain.Grant{
		OrderID:      orderID,
		ProductID:    productID,
		Token:        uuid.NewString(),
		ExpiresAt:    s.now().Add(policy.Validity),
		MaxDownloads: policy.MaxDownloads,
	})
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info(ctx, "Download grant issued", "order_id", orderID, "product_id", productID, "expires_at", grant.ExpiresAt)
	}
	return grant, nil
}

// ForOrder 订单的全部授权
func (s *DownloadService) ForOrder(ctx context.Context, orderID uint) ([]*domain.Grant, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// Backfill 为订单中缺少授权的数字商品补签，返回订单的全部授权
func (s *DownloadService) Backfill(ctx context.Context, orderID uint, digitalProductIDs []uint) ([]*domain.Grant, error) {
	grants, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	have := make(map[uint]bool, len(grants))
	for _, g := range grants {
		have[g.ProductID] = true
	}
	for _, pid := range digitalProductIDs {
		if have[pid] {
			continue
		}
		g, err := s.Issue(ctx, orderID, pid)
		if err != nil {
			return nil, err
		}
		have[pid] = true
		grants = append(grants, g)
	}
	return grants, nil
}

// Redeem 兑换下载。请求者不是订单所有人时按不存在处理；
// 计数通过条件更新递增，并发兑换不会超过上限。
func (s *DownloadService) Redeem(ctx context.Context, token string, userID uint) (*Delivery, error) {
	delivery, err := s.redeem(ctx, token, userID)
	s.metrics.RecordRedemption(outcome(err))
	return delivery, err
}

func (s *DownloadService) redeem(ctx context.Context, token string, userID uint) (*Delivery, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, domain.ErrGrantNotFound
	}
	grant, err := s.repo.FindOwned(ctx, token, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch grant.State(now) {
	case domain.StateExpired:
		return nil, domain.ErrGrantExpired
	case domain.StateExhausted:
		return nil, domain.ErrGrantExhausted
	}

	product, err := s.products.Get(ctx, grant.ProductID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, domain.ErrFileMissing
	}
	if err != nil {
		return nil, err
	}
	payload, ok := product.DigitalPayload()
	if !ok {
		return nil, domain.ErrFileMissing
	}

	delivery := &Delivery{Grant: grant}
	if payload.File != "" {
		full, err := s.files.Resolve(payload.File)
		if err != nil {
			return nil, err
		}
		delivery.FilePath = full
		delivery.FileName = path.Base(payload.File)
	} else {
		delivery.URL = payload.URL
	}

	ok, err = s.repo.IncrementIfAvailable(ctx, grant.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.rejection(ctx, token, userID)
	}
	grant.DownloadCount++
	return delivery, nil
}

// rejection 条件递增失败后重新读取授权，按当前状态给出过期或次数用尽
func (s *DownloadService) rejection(ctx context.Context, token string, userID uint) error {
	grant, err := s.repo.FindOwned(ctx, token, userID)
	if err != nil {
		return err
	}
	if grant.State(s.now()) == domain.StateExpired {
		return domain.ErrGrantExpired
	}
	return domain.ErrGrantExhausted
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrGrantNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrGrantExpired):
		return "expired"
	case errors.Is(err, domain.ErrGrantExhausted):
		return "exhausted"
	default:
		return "error"
	}
}
