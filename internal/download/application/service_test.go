package application_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	catalog "github.com/wyfcoding/storefront/internal/catalog/domain"
	catalogmysql "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/mysql"
	"github.com/wyfcoding/storefront/internal/download/application"
	"github.com/wyfcoding/storefront/internal/download/domain"
	"github.com/wyfcoding/storefront/internal/download/infrastructure/persistence/mysql"
	"github.com/wyfcoding/storefront/internal/download/infrastructure/storage"
	"github.com/wyfcoding/storefront/pkg/db"
	"github.com/wyfcoding/storefront/pkg/db/dbtest"
)

type fixture struct {
	db       *db.DB
	svc      *application.DownloadService
	products catalog.ProductRepository
	now      time.Time
	build    func(repo domain.Repository) *application.DownloadService
}

func newFixture(t *testing.T, policy application.Policy) *fixture {
	t.Helper()
	database := dbtest.New(t, append(catalogmysql.Models(), mysql.Models()...)...)
	require.NoError(t, database.Exec("CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER)").Error)

	media := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(media, "books"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(media, "books", "guide.pdf"), []byte("%PDF"), 0o644))
	files, err := storage.NewLocalStorage(media)
	require.NoError(t, err)

	f := &fixture{
		db:       database,
		products: catalogmysql.NewProductRepository(database),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.build = func(repo domain.Repository) *application.DownloadService {
		return application.NewDownloadService(repo, f.products, files, policy, nil).
			WithClock(func() time.Time { return f.now })
	}
	f.svc = f.build(mysql.NewGrantRepository(database))
	return f
}

// beforeIncrement 在条件递增前执行 hook
type beforeIncrement struct {
	domain.Repository
	hook func()
}

func (r beforeIncrement) IncrementIfAvailable(ctx context.Context, id uint, now time.Time) (bool, error) {
	r.hook()
	return r.Repository.IncrementIfAvailable(ctx, id, now)
}

func (f *fixture) order(t *testing.T, id, userID uint) {
	t.Helper()
	require.NoError(t, f.db.Exec("INSERT INTO orders (id, user_id) VALUES (?, ?)", id, userID).Error)
}

func (f *fixture) digital(t *testing.T, v catalog.Digital) uint {
	t.Helper()
	p := &catalog.Product{Name: "Guide", Price: decimal.NewFromInt(5), Active: true, Variant: v}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p.ID
}

func TestIssueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, application.Policy{Validity: 7 * 24 * time.Hour, MaxDownloads: 3})
	f.order(t, 1, 10)
	pid := f.digital(t, catalog.Digital{File: "books/guide.pdf"})

	first, err := f.svc.Issue(ctx, 1, pid)
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)
	second, err := f.svc.IssueWith(ctx, 1, pid, application.Policy{Validity: time.Hour, MaxDownloads: 99})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Token, second.Token)
	assert.True(t, first.ExpiresAt.Equal(second.ExpiresAt))
	assert.Equal(t, 3, second.MaxDownloads)

	grants, err := f.svc.ForOrder(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestRedeem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, application.Policy{Validity: 24 * time.Hour, MaxDownloads: 2})
	f.order(t, 1, 10)
	fileProduct := f.digital(t, catalog.Digital{File: "books/guide.pdf"})
	urlProduct := f.digital(t, catalog.Digital{URL: "https://cdn.example.com/track.mp3"})

	fileGrant, err := f.svc.Issue(ctx, 1, fileProduct)
	require.NoError(t, err)
	urlGrant, err := f.svc.Issue(ctx, 1, urlProduct)
	require.NoError(t, err)

	t.Run("file delivery", func(t *testing.T) {
		d, err := f.svc.Redeem(ctx, fileGrant.Token, 10)
		require.NoError(t, err)
		assert.Equal(t, "guide.pdf", d.FileName)
		assert.FileExists(t, d.FilePath)
		assert.Equal(t, 1, d.Grant.DownloadCount)
	})

	t.Run("url delivery", func(t *testing.T) {
		d, err := f.svc.Redeem(ctx, urlGrant.Token, 10)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/track.mp3", d.URL)
	})

	t.Run("other user sees not found", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, fileGrant.Token, 11)
		assert.ErrorIs(t, err, domain.ErrGrantNotFound)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, "../../etc/passwd", 10)
		assert.ErrorIs(t, err, domain.ErrGrantNotFound)
	})

	t.Run("exhausted after limit", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, fileGrant.Token, 10)
		require.NoError(t, err)
		_, err = f.svc.Redeem(ctx, fileGrant.Token, 10)
		assert.ErrorIs(t, err, domain.ErrGrantExhausted)
	})

	t.Run("expired regardless of remaining count", func(t *testing.T) {
		f.now = f.now.Add(24 * time.Hour)
		_, err := f.svc.Redeem(ctx, urlGrant.Token, 10)
		assert.ErrorIs(t, err, domain.ErrGrantExpired)
	})
}

func TestConcurrentRedemptionNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, application.Policy{Validity: time.Hour, MaxDownloads: 3})
	f.order(t, 1, 10)
	pid := f.digital(t, catalog.Digital{URL: "https://cdn.example.com/a.zip"})
	grant, err := f.svc.Issue(ctx, 1, pid)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Redeem(ctx, grant.Token, 10); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	grants, err := f.svc.ForOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, grants[0].DownloadCount)
}

func TestRedeemReportsExpiryRacingTheIncrement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, application.Policy{Validity: 24 * time.Hour, MaxDownloads: 2})
	f.order(t, 1, 10)
	grant, err := f.svc.Issue(ctx, 1, f.digital(t, catalog.Digital{File: "books/guide.pdf"}))
	require.NoError(t, err)

	svc := f.build(beforeIncrement{
		Repository: mysql.NewGrantRepository(f.db),
		hook: func() {
			require.NoError(t, f.db.Exec("UPDATE digital_downloads SET expires_at = ? WHERE id = ?", f.now, grant.ID).Error)
		},
	})
	_, err = svc.Redeem(ctx, grant.Token, 10)
	assert.ErrorIs(t, err, domain.ErrGrantExpired)

	grants, err := f.svc.ForOrder(ctx, 1)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Zero(t, grants[0].DownloadCount)
}

func TestRedeemReportsExhaustionRacingTheIncrement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, application.Policy{Validity: 24 * time.Hour, MaxDownloads: 1})
	f.order(t, 1, 10)
	grant, err := f.svc.Issue(ctx, 1, f.digital(t, catalog.Digital{File: "books/guide.pdf"}))
	require.NoError(t, err)

	svc := f.build(beforeIncrement{
		Repository: mysql.NewGrantRepository(f.db),
		hook: func() {
			require.NoError(t, f.db.Exec("UPDATE digital_downloads SET download_count = 1 WHERE id = ?", grant.ID).Error)
		},
	})
	_, err = svc.Redeem(ctx, grant.Token, 10)
	assert.ErrorIs(t, err, domain.ErrGrantExhausted)
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, application.Policy{Validity: time.Hour})
	f.order(t, 1, 10)
	a := f.digital(t, catalog.Digital{URL: "https://cdn.example.com/a"})
	b := f.digital(t, catalog.Digital{URL: "https://cdn.example.com/b"})

	_, err := f.svc.Issue(ctx, 1, a)
	require.NoError(t, err)

	grants, err := f.svc.Backfill(ctx, 1, []uint{a, b})
	require.NoError(t, err)
	assert.Len(t, grants, 2)

	grants, err = f.svc.Backfill(ctx, 1, []uint{a, b})
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}

func TestGrantState(t *testing.T) {
	now := time.Now()
	g := &domain.Grant{ExpiresAt: now.Add(time.Hour), MaxDownloads: 1}
	assert.Equal(t, domain.StateValid, g.State(now))
	assert.Equal(t, 1, g.Remaining())

	g.DownloadCount = 1
	assert.Equal(t, domain.StateExhausted, g.State(now))
	assert.Equal(t, domain.StateExpired, g.State(now.Add(time.Hour)))

	unbounded := &domain.Grant{ExpiresAt: now.Add(time.Hour), DownloadCount: 500}
	assert.Equal(t, domain.StateValid, unbounded.State(now))
	assert.Equal(t, -1, unbounded.Remaining())
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.txt"), []byte("x"), 0o644))
	s, err := storage.NewLocalStorage(root)
	require.NoError(t, err)

	_, err = s.Resolve("ok.txt")
	assert.NoError(t, err)
	_, err = s.Resolve("../../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrFileMissing)
	_, err = s.Resolve("missing.txt")
	assert.ErrorIs(t, err, domain.ErrFileMissing)
}
