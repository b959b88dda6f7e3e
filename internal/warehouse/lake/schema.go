package lake

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

// readSchema reads the column list from the footer of one parquet file.
func readSchema(ctx context.Context, store ObjectLister, key string) ([]dataset.Column, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return SchemaFromParquet(data)
}

// SchemaFromParquet lists the top-level columns of a parquet file.
func SchemaFromParquet(data []byte) ([]dataset.Column, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	fields := file.Schema().Fields()
	columns := make([]dataset.Column, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, dataset.Column{Name: field.Name(), DataType: typeName(field)})
	}
	return columns, nil
}

func typeName(field parquet.Field) string {
	if !field.Leaf() {
		return "STRUCT"
	}
	name := field.Type().String()
	if field.Optional() {
		return name + " (nullable)"
	}
	if field.Repeated() {
		return "LIST<" + name + ">"
	}
	return name
}
