package archive

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/bill-itemizer/internal/claim"
)

// Artifact file names written for every claim run
const (
	FinalBillArtifact        = "final_bill.json"
	BillItemListArtifact     = "bill_item_list.json"
	SupportingDocMapArtifact = "supporting_doc_map.json"
	AuditLogsArtifact        = "audit_logs.json"

	ItemsXLSXArtifact = "bill_items.xlsx"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// ArtifactWriter writes run outputs as JSON files, checking each one
// against its schema first
type ArtifactWriter struct {
	store   Storage
	schemas map[string]*jsonschema.Schema
	logger  *slog.Logger
}

// NewArtifactWriter compiles the embedded artifact schemas
func NewArtifactWriter(store Storage, logger *slog.Logger) (*ArtifactWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &ArtifactWriter{store: store, schemas: schemas, logger: logger}, nil
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	entries, err := fs.ReadDir(schemaFiles, "schemas")
	if err != nil {
		return nil, fmt.Errorf("reading schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	for _, entry := range entries {
		data, err := schemaFiles.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema)
	for _, name := range []string{FinalBillArtifact, BillItemListArtifact, SupportingDocMapArtifact, AuditLogsArtifact} {
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		schemas[name] = schema
	}
	return schemas, nil
}

// Write stores the outputs of a run under <claim_id>/ and returns the stored
// paths. A failed run has only its audit log, so only that file is written.
// Nothing is written if any artifact fails its schema.
func (w *ArtifactWriter) Write(claimID string, outputs *claim.Outputs) ([]string, error) {
	if outputs == nil {
		return nil, fmt.Errorf("writing artifacts: no outputs for claim %s", claimID)
	}

	var artifacts []struct {
		name  string
		value any
	}
	add := func(name string, value any) {
		artifacts = append(artifacts, struct {
			name  string
			value any
		}{name, value})
	}
	if outputs.FinalBill != nil {
		add(FinalBillArtifact, outputs.FinalBill)
	}
	if outputs.BillItemList != nil {
		add(BillItemListArtifact, outputs.BillItemList)
	}
	if outputs.SupportingDocMap != nil {
		add(SupportingDocMapArtifact, outputs.SupportingDocMap)
	}
	if outputs.AuditLogs != nil {
		add(AuditLogsArtifact, outputs.AuditLogs)
	}

	encoded := make([][]byte, len(artifacts))
	for i, a := range artifacts {
		data, err := w.encode(a.name, a.value)
		if err != nil {
			return nil, err
		}
		encoded[i] = data
	}

	dir := safeName(claimID)
	paths := make([]string, 0, len(artifacts))
	for i, a := range artifacts {
		p, err := w.store.Save(path.Join(dir, a.name), encoded[i])
		if err != nil {
			return paths, fmt.Errorf("saving %s: %w", a.name, err)
		}
		paths = append(paths, p)
	}

	w.logger.Info("artifacts written", "claim_id", claimID, "count", len(paths))
	return paths, nil
}

func (w *ArtifactWriter) encode(name string, value any) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := w.Validate(name, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Validate checks data against the schema of the named artifact
func (w *ArtifactWriter) Validate(name string, data []byte) error {
	schema, ok := w.schemas[name]
	if !ok {
		return fmt.Errorf("no schema for artifact %s", name)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%s does not match schema: %w", name, err)
	}
	return nil
}

// WriteItemsXLSX stores the item list of a run as a spreadsheet under <claim_id>/
func (w *ArtifactWriter) WriteItemsXLSX(claimID string, list *claim.BillItemList) (string, error) {
	data, err := ExportItemsXLSX(list)
	if err != nil {
		return "", err
	}
	p, err := w.store.Save(path.Join(safeName(claimID), ItemsXLSXArtifact), data)
	if err != nil {
		return "", fmt.Errorf("saving %s: %w", ItemsXLSXArtifact, err)
	}
	return p, nil
}
