package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tokenbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}

func TestSQLiteAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "deliveries.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.AppendDelivery(ctx, DeliveryEntry{VID: 101, Mint: "m1", Chat: "-1001", OK: true, Attempts: 1, TookMS: 12}))
	require.NoError(t, st.AppendDelivery(ctx, DeliveryEntry{VID: 101, Mint: "m1", Chat: "@chan", ThreadID: 3, Attempts: 3, Error: "forbidden", Photo: true}))

	got, err := st.RecentDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// newest first
	assert.Equal(t, "@chan", got[0].Chat)
	assert.False(t, got[0].OK)
	assert.True(t, got[0].Photo)
	assert.Equal(t, 3, got[0].ThreadID)
	assert.Equal(t, "forbidden", got[0].Error)
	assert.Equal(t, "-1001", got[1].Chat)
	assert.True(t, got[1].OK)
	assert.Equal(t, "", got[1].Error)
	assert.False(t, got[1].At.IsZero())
}

func TestSQLiteRetentionPrunesOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliveries.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.AppendDelivery(ctx, DeliveryEntry{At: time.Now().Add(-48 * time.Hour), VID: 1, Chat: "1", OK: true, Attempts: 1}))
	require.NoError(t, st.AppendDelivery(ctx, DeliveryEntry{VID: 2, Chat: "1", OK: true, Attempts: 1}))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "sqlite", Path: path, Retention: 24 * time.Hour}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	got, err := st.RecentDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].VID)
}
