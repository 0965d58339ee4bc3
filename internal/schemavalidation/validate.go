// Package schemavalidation checks machine-readable reports against the
// embedded JSON Schema.
package schemavalidation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ReportSchemaURL is the resource name the report schema is compiled under.
const ReportSchemaURL = "https://authscan.local/schema/report-v1.schema.json"

//go:embed schema/report-v1.schema.json
var reportSchema []byte

var (
	compiled    *jsonschema.Schema
	compileErr  error
	compileOnce sync.Once
)

// ReportSchema returns the raw report schema.
func ReportSchema() []byte {
	return bytes.Clone(reportSchema)
}

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true
		if err := compiler.AddResource(ReportSchemaURL, bytes.NewReader(reportSchema)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(ReportSchemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// ValidateReport checks an encoded JSON report.
func ValidateReport(data []byte) error {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal report: %w", err)
	}
	return validate(instance)
}

// ValidateValue encodes v as JSON and checks the result.
func ValidateValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return ValidateReport(data)
}

func validate(instance any) error {
	s, err := schema()
	if err != nil {
		return err
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("report schema: %w", err)
	}
	return nil
}
