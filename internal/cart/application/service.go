// Package application 购物车服务：同一套加购、改量、合并规则作用于账户与会话两种存储。
package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/storefront/internal/cart/domain"
	catalog "github.com/wyfcoding/storefront/internal/catalog/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
)

// ProductReader 读取商品的实时数据
type ProductReader interface {
	Get(ctx context.Context, id uint) (*catalog.Product, error)
	GetMany(ctx context.Context, ids []uint) (map[uint]*catalog.Product, error)
}

// TxManager 事务执行器
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Item 关联了实时商品数据的购物车行
type Item struct {
	Product  *catalog.Product
	Quantity int
}

// LineTotal 行金额，保留两位小数
func (i Item) LineTotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// LineView 购物车展示行
type LineView struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Kind      catalog.Kind    `json:"kind"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	Available int             `json:"available"`
	ImageURL  string          `json:"image_url,omitempty"`
}

// View 购物车视图
type View struct {
	Lines    []LineView      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// CartService 购物车服务
type CartService struct {
	accounts domain.Store
	sessions domain.Store
	products ProductReader
	tx       TxManager
	taxRate  decimal.Decimal
}

// NewCartService 创建购物车服务
func NewCartService(accounts, sessions domain.Store, products ProductReader, tx TxManager, taxRate decimal.Decimal) *CartService {
	return &CartService{
		accounts: accounts,
		sessions: sessions,
		products: products,
		tx:       tx,
		taxRate:  taxRate,
	}
}

func (s *CartService) store(owner domain.Owner) (domain.Store, error) {
	switch {
	case owner.IsUser():
		return s.accounts, nil
	case owner.SessionID != "":
		return s.sessions, nil
	default:
		return nil, domain.ErrNoOwner
	}
}

// Add 加购。商品不存在、已下架或无可售数量时静默忽略。
// 数字商品与服务类商品的数量固定为 1。
func (s *CartService) Add(ctx context.Context, owner domain.Owner, productID uint, qty int, override bool) error {
	st, err := s.store(owner)
	if err != nil {
		return err
	}
	p, err := s.products.Get(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.apply(ctx, st, owner, p, qty, override)
}

func (s *CartService) apply(ctx context.Context, st domain.Store, owner domain.Owner, p *catalog.Product, qty int, override bool) error {
	if !p.Active || p.Capacity() <= 0 {
		logger.Debug(ctx, "Cart add ignored", "product_id", p.ID, "active", p.Active)
		return nil
	}
	if !p.IsPhysical() && qty >= 1 {
		qty, override = 1, true
	}

	current, err := st.Quantity(ctx, owner, p.ID)
	if err != nil {
		return err
	}
	next := domain.Clamp(current, qty, override, p.Capacity())
	if next == 0 {
		return st.Delete(ctx, owner, p.ID)
	}
	return st.Put(ctx, owner, p.ID, next)
}

// Update 改量，等同于覆盖模式的 Add
func (s *CartService) Update(ctx context.Context, owner domain.Owner, productID uint, qty int) error {
	return s.Add(ctx, owner, productID, qty, true)
}

// Remove 删除一行
func (s *CartService) Remove(ctx context.Context, owner domain.Owner, productID uint) error {
	st, err := s.store(owner)
	if err != nil {
		return err
	}
	return st.Delete(ctx, owner, productID)
}

// Clear 清空购物车，在事务中调用时账户购物车随事务提交
func (s *CartService) Clear(ctx context.Context, owner domain.Owner) error {
	st, err := s.store(owner)
	if err != nil {
		return err
	}
	return st.Clear(ctx, owner)
}

// Items 返回关联实时商品数据的行，已下架或已删除的商品不出现在结果中（行仍保留）
func (s *CartService) Items(ctx context.Context, owner domain.Owner) ([]Item, error) {
	st, err := s.store(owner)
	if err != nil {
		return nil, err
	}
	lines, err := st.Lines(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.Active {
			continue
		}
		items = append(items, Item{Product: p, Quantity: l.Quantity})
	}
	return items, nil
}

// List 购物车视图：行、小计、税额与含税总计
func (s *CartService) List(ctx context.Context, owner domain.Owner) (*View, error) {
	items, err := s.Items(ctx, owner)
	if err != nil {
		return nil, err
	}

	view := &View{Lines: make([]LineView, 0, len(items)), Subtotal: decimal.Zero}
	for _, it := range items {
		line := LineView{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			Kind:      it.Product.Kind(),
			UnitPrice: it.Product.Price,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal(),
			Available: it.Product.Capacity(),
		}
		if img := it.Product.MainImage(); img != nil {
			line.ImageURL = img.URL
		}
		view.Lines = append(view.Lines, line)
		view.Subtotal = view.Subtotal.Add(line.LineTotal)
	}
	view.Tax = view.Subtotal.Mul(s.taxRate).RoundBank(2)
	view.Total = view.Subtotal.Add(view.Tax).Round(2)
	return view, nil
}

// Count 账户购物车为可见行数，会话购物车为数量合计
func (s *CartService) Count(ctx context.Context, owner domain.Owner) (int, error) {
	if owner.IsUser() {
		items, err := s.Items(ctx, owner)
		if err != nil {
			return 0, err
		}
		return len(items), nil
	}

	st, err := s.store(owner)
	if err != nil {
		return 0, err
	}
	lines, err := st.Lines(ctx, owner)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total, nil
}

// Merge 登录时将会话购物车并入账户购物车。
// 账户侧写入在一个事务内完成，提交后再清空会话购物车。
func (s *CartService) Merge(ctx context.Context, sessionID string, userID uint) (int, error) {
	if sessionID == "" || userID == 0 {
		return 0, domain.ErrNoOwner
	}
	session := domain.ForSession(sessionID)
	account := domain.ForUser(userID)

	lines, err := s.sessions.Lines(ctx, session)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, nil
	}

	ids := make([]uint, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	merged := 0
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		products, err := s.products.GetMany(ctx, ids)
		if err != nil {
			return err
		}
		for _, l := range lines {
			p, ok := products[l.ProductID]
			if !ok || !p.Active {
				continue
			}
			if err := s.apply(ctx, s.accounts, account, p, l.Quantity, false); err != nil {
				return fmt.Errorf("failed to merge product %d: %w", l.ProductID, err)
			}
			merged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := s.sessions.Clear(ctx, session); err != nil {
		return merged, err
	}
	logger.Info(ctx, "Session cart merged", "user_id", userID, "lines", merged)
	return merged, nil
}
