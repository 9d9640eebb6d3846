package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/bunkar/pkg/storage"
)

func TestLocalDiskLifecycle(t *testing.T) {
	ctx := context.Background()
	d := storage.NewLocalDisk(t.TempDir(), "http://cdn.test/storage/")

	require.NoError(t, d.Put(ctx, "products/jamdani.jpg", []byte("img")))
	assert.True(t, d.Exists(ctx, "products/jamdani.jpg"))

	data, err := d.Get(ctx, "products/jamdani.jpg")
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
	assert.Equal(t, "http://cdn.test/storage/products/jamdani.jpg", d.URL("products/jamdani.jpg"))

	require.NoError(t, d.Delete(ctx, "products/jamdani.jpg"))
	assert.False(t, d.Exists(ctx, "products/jamdani.jpg"))
	assert.NoError(t, d.Delete(ctx, "products/jamdani.jpg"), "deleting a missing file is not an error")
}

func TestCleanRejectsTraversal(t *testing.T) {
	for _, p := range []string{"", "/etc/passwd", "../secret", "a/../../b", "..", `a\b`} {
		_, err := storage.Clean(p)
		assert.ErrorIs(t, err, storage.ErrInvalidPath, p)
	}
	c, err := storage.Clean("products/./a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "products/a.jpg", c)
}

func TestDefaultFallsBackToLocal(t *testing.T) {
	storage.RegisterDisk("local", storage.NewLocalDisk(t.TempDir(), "http://x"))
	storage.SetDefault("missing")
	defer storage.SetDefault("local")

	assert.NotNil(t, storage.Default())
	_, err := storage.Use("missing")
	assert.Error(t, err)
}
