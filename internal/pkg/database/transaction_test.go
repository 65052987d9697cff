package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/database"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestWithTxCommits(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	err := database.WithTx(ctx, db, time.Second, func(tx *gorm.DB) error {
		return tx.Create(&models.User{Name: "alice", Email: "alice@example.com"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := testdb.New(t)
	boom := errors.New("boom")

	err := database.WithTx(context.Background(), db, time.Second, func(tx *gorm.DB) error {
		if err := tx.Create(&models.User{Name: "bob", Email: "bob@example.com"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithTimeoutKeepsCallerDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	ctx, done := database.WithTimeout(parent, time.Millisecond)
	defer done()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.True(t, deadline.After(time.Now().Add(time.Minute)))

	ctx2, done2 := database.WithTimeout(context.Background(), time.Minute)
	defer done2()
	_, ok = ctx2.Deadline()
	assert.True(t, ok)
}
