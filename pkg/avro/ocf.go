package avro

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	havro "github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
)

// Namespace is used for every record schema TabFlow generates.
const Namespace = "io.tabflow"

// WriteOCF writes the dataset as an Avro object container to w, with the
// schema derived by BuildRecord and deflate-compressed blocks.
func WriteOCF(w io.Writer, ds *dataset.Dataset, name string) error {
	schemaJSON, err := SchemaJSON(ds, RecordName(name), Namespace)
	if err != nil {
		return err
	}
	s, err := havro.Parse(schemaJSON)
	if err != nil {
		return fmt.Errorf("avro: parse generated schema: %w", err)
	}
	rs, ok := s.(*havro.RecordSchema)
	if !ok {
		return fmt.Errorf("avro: expected record schema, got %T", s)
	}

	enc, err := ocf.NewEncoder(schemaJSON, w, ocf.WithCodec(ocf.Deflate))
	if err != nil {
		return fmt.Errorf("avro: create encoder: %w", err)
	}

	for i, row := range ds.Rows {
		native, err := NativeRecord(rs, row)
		if err != nil {
			return fmt.Errorf("avro: row %d: %w", i, err)
		}
		if err := enc.Encode(native); err != nil {
			return fmt.Errorf("avro: encode row %d: %w", i, err)
		}
	}
	return enc.Close()
}

// WriteOCFFile writes the dataset to path, naming the record after the file.
func WriteOCFFile(path string, ds *dataset.Dataset) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("avro: create dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("avro: create %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := WriteOCF(f, ds, name); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
