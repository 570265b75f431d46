package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/storefront/pkg/db"
	"github.com/wyfcoding/storefront/pkg/db/dbtest"
)

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func count(t *testing.T, d *db.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, d.Model(&widget{}).Count(&n).Error)
	return n
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		d := dbtest.New(t, &widget{})
		err := d.Transaction(ctx, func(ctx context.Context) error {
			assert.True(t, db.InTx(ctx))
			return d.Conn(ctx).Create(&widget{Name: "a"}).Error
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, count(t, d))
	})

	t.Run("rollback on error", func(t *testing.T) {
		d := dbtest.New(t, &widget{})
		boom := errors.New("boom")
		err := d.Transaction(ctx, func(ctx context.Context) error {
			require.NoError(t, d.Conn(ctx).Create(&widget{Name: "a"}).Error)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.EqualValues(t, 0, count(t, d))
	})

	t.Run("nested call joins outer transaction", func(t *testing.T) {
		d := dbtest.New(t, &widget{})
		boom := errors.New("boom")
		err := d.Transaction(ctx, func(ctx context.Context) error {
			inner := d.Transaction(ctx, func(ctx context.Context) error {
				return d.Conn(ctx).Create(&widget{Name: "inner"}).Error
			})
			require.NoError(t, inner)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.EqualValues(t, 0, count(t, d))
	})
}

func TestUpsertWithConflict(t *testing.T) {
	ctx := context.Background()
	d := dbtest.New(t, &widget{})

	require.NoError(t, d.UpsertWithConflict(ctx, &widget{ID: 1, Name: "a"}, []string{"id"}, []string{"name"}))
	require.NoError(t, d.UpsertWithConflict(ctx, &widget{ID: 1, Name: "b"}, []string{"id"}, []string{"name"}))

	var w widget
	require.NoError(t, d.First(&w, 1).Error)
	assert.Equal(t, "b", w.Name)
	assert.EqualValues(t, 1, count(t, d))
}
