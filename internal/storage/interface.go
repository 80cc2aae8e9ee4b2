package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrObjectNotFound is returned by Download for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage stores uploaded source material for generation jobs.
type ObjectStorage interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// ReadText downloads key and returns at most limit characters of it as
// text. A limit <= 0 reads the whole object.
func ReadText(ctx context.Context, store ObjectStorage, key string, limit int) (string, error) {
	body, err := store.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var reader io.Reader = body
	if limit > 0 {
		// a UTF-8 character is at most 4 bytes
		reader = io.LimitReader(body, int64(limit)*utf8.UTFMax)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read object %s: %w", key, err)
	}
	text := strings.ToValidUTF8(string(data), "")
	if limit > 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	return text, nil
}
