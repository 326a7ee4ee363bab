package persistence

import (
	"context"
	"path/filepath"
	"strings"
)

// Open returns the store for the document at path. SQLite databases are picked
// by format name or by a .db/.sqlite extension; anything else is a text
// document whose codec follows the extension, then the format name.
func Open(ctx context.Context, path, format string) (Store, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if format == "sqlite" || ext == ".db" || ext == ".sqlite" {
		return NewSQLiteStore(ctx, path)
	}

	codec, err := CodecForPath(path, format)
	if err != nil {
		return nil, err
	}
	return NewFileStore(path, codec), nil
}
