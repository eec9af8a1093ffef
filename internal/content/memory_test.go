package content

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("http://files.local/")

	_, err := store.Get(ctx, "outputs/t/j.pdf")
	assert.ErrorIs(t, err, domain.ErrContentNotFound)

	_, err = store.PresignGet(ctx, "outputs/t/j.pdf", time.Minute)
	assert.ErrorIs(t, err, domain.ErrContentNotFound)

	require.NoError(t, store.Put(ctx, "outputs/t/j.pdf", []byte("%PDF"), ContentTypePDF))

	data, err := store.Get(ctx, "outputs/t/j.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	obj, ok := store.Object("outputs/t/j.pdf")
	require.True(t, ok)
	assert.Equal(t, ContentTypePDF, obj.ContentType)

	url, err := store.PresignGet(ctx, "outputs/t/j.pdf", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://files.local/outputs/t/j.pdf?expires="))
	assert.Equal(t, 1, store.Len())
}
