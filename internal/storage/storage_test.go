package storage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/quizgen/internal/storage"
	"github.com/timmy/quizgen/internal/storage/storagetest"
)

func TestReadText(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewMemory()
	store.Put("sources/a.txt", "Photosynthesis converts light energy into chemical energy.")
	store.Put("sources/unicode.txt", strings.Repeat("é", 10))

	tests := []struct {
		name  string
		key   string
		limit int
		want  string
	}{
		{"whole object", "sources/a.txt", 0, "Photosynthesis converts light energy into chemical energy."},
		{"truncated", "sources/a.txt", 14, "Photosynthesis"},
		{"limit counts characters", "sources/unicode.txt", 3, "ééé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.ReadText(ctx, store, tt.key, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := storage.ReadText(ctx, store, "sources/missing.txt", 10)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}
