package pool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/router"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int32(10), cfg.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 30*time.Minute, cfg.MaxLifetime)
	assert.Equal(t, 30*time.Second, cfg.ConnectionTimeout)
	assert.True(t, cfg.TestOnCheckout)
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Run("zero value fills everything", func(t *testing.T) {
		assert.Equal(t, DefaultConfig().MaxSize, Config{}.WithDefaults().MaxSize)
		assert.Equal(t, DefaultConfig().ConnectionTimeout, Config{}.WithDefaults().ConnectionTimeout)
	})

	t.Run("set fields are kept", func(t *testing.T) {
		cfg := Config{MaxSize: 3, ConnectionTimeout: time.Second}.WithDefaults()
		assert.Equal(t, int32(3), cfg.MaxSize)
		assert.Equal(t, time.Second, cfg.ConnectionTimeout)
		assert.Equal(t, DefaultConfig().IdleTimeout, cfg.IdleTimeout)
	})
}

func sqliteDescriptor(t *testing.T) *router.SourceDescriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.db")
	desc, err := router.ParseSource("sqlite://"+path, "")
	require.NoError(t, err)
	return desc
}

func TestBuild_SQLite(t *testing.T) {
	v, err := Build(context.Background(), sqliteDescriptor(t), DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, v)
	defer func() { _ = v.Close() }()

	assert.Equal(t, TagSQLite, v.Tag())

	db, err := v.SQLite()
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestBuild_UnsupportedBackendsReturnNil(t *testing.T) {
	for _, conn := range []string{
		"mssql://u:p@host/db",
		"bigquery:///path/creds.json",
		"trino://u@host:8080/hive",
	} {
		desc, err := router.ParseSource(conn, "")
		require.NoError(t, err)

		v, err := Build(context.Background(), desc, DefaultConfig())
		assert.NoError(t, err, "conn %q", conn)
		assert.Nil(t, v, "conn %q", conn)
	}
}

func TestBuild_UnreachableHostFailsEagerly(t *testing.T) {
	desc, err := router.ParseSource("mysql://u:p@127.0.0.1:1/db", "")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ConnectionTimeout = 200 * time.Millisecond
	_, err = Build(context.Background(), desc, cfg)
	require.Error(t, err)
	assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypePoolBuild))
}

func TestVariant_AccessorMismatchPanics(t *testing.T) {
	v, err := Build(context.Background(), sqliteDescriptor(t), DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = v.Close() }()

	assert.Panics(t, func() { _, _ = v.MySQL() })
	assert.Panics(t, func() { _, _ = v.Oracle() })
	assert.Panics(t, func() { _, _ = v.PostgresNoTLS() })
	assert.Panics(t, func() { _, _ = v.PostgresTLS() })

	// The panic value carries the programming error type.
	defer func() {
		r := recover()
		require.NotNil(t, r)
		perr, ok := r.(error)
		require.True(t, ok)
		assert.True(t, cxerrors.IsType(perr, cxerrors.ErrorTypeProgramming))
	}()
	_, _ = v.MySQL()
}

func TestVariant_CloseIsIdempotent(t *testing.T) {
	v, err := Build(context.Background(), sqliteDescriptor(t), DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	_, err = v.SQLite()
	require.Error(t, err)
	assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypeConnectionAcquire))
}
