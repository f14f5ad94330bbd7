package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed document.schema.json
var documentSchemaJSON string

const schemaURL = "https://tileforge.dev/schemas/document.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func documentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader([]byte(documentSchemaJSON))); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// DecodeJSON validates b against the document schema and decodes it.
func DecodeJSON(b []byte) (DocumentV1, error) {
	var doc DocumentV1
	s, err := documentSchema()
	if err != nil {
		return doc, fmt.Errorf("compile schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return doc, err
	}
	if err := s.Validate(raw); err != nil {
		return doc, fmt.Errorf("invalid document: %w", err)
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func ReadJSON(path string) (DocumentV1, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return DocumentV1{}, err
	}
	return DecodeJSON(b)
}

func WriteJSON(path string, doc DocumentV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads a document, picking the format from the file extension.
func Read(path string) (DocumentV1, error) {
	if filepath.Ext(path) == ".json" {
		return ReadJSON(path)
	}
	return ReadSnapshot(path)
}

// Write stores a document, picking the format from the file extension.
func Write(path string, doc DocumentV1) error {
	if filepath.Ext(path) == ".json" {
		return WriteJSON(path, doc)
	}
	return WriteSnapshot(path, doc)
}
