package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
	"gopkg.in/yaml.v3"
)

// rawDocument is a stored document without an entity type. Compressed
// attributes stay binary.
type rawDocument = map[string]any

func rawSchema() *registry.Schema[rawDocument] {
	s, err := registry.NewSchema(registry.Descriptor[rawDocument]{
		Name: "Document",
		ID:   func(d rawDocument) string { return stringAttr(d, storagemodels.IDKey) },
		PartitionKey: []registry.Field[rawDocument]{{
			Attribute: storagemodels.PartitionKeyKey,
			Value:     func(d rawDocument) string { return stringAttr(d, storagemodels.PartitionKeyKey) },
		}},
	})
	if err != nil {
		panic(err)
	}
	return s
}

func stringAttr(d rawDocument, name string) string {
	s, _ := d[name].(string)
	return s
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
}
