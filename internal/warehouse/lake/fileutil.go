package lake

import (
	"context"
	"fmt"
	"io"
	"os"
)

func download(ctx context.Context, store ObjectLister, key, path string) error {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create local file %q: %w", path, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local file %q: %w", path, err)
	}
	return file.Close()
}
