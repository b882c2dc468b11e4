// Package nemo locates NEMO model templates and runs the NEMO batch
// converter.
package nemo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Model is one template/output-format pair to run for a dataset.
type Model struct {
	Source       string
	Identifier   string
	Format       string
	TemplatePath string
}

// ModelError reports a template file that cannot be used.
type ModelError struct {
	Path   string
	Reason string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("nemo model template %s: %s", e.Path, e.Reason)
}

// NewModel resolves <templatesDir>/<source>/<identifier>_<format>.xml.
func NewModel(templatesDir, source, identifier, format string) (Model, error) {
	path := filepath.Join(templatesDir, source, identifier+"_"+format+".xml")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Model{}, &ModelError{Path: path, Reason: "does not exist"}
		}
		return Model{}, &ModelError{Path: path, Reason: err.Error()}
	}
	if !info.Mode().IsRegular() {
		return Model{}, &ModelError{Path: path, Reason: "is not a file"}
	}
	f, err := os.Open(path)
	if err != nil {
		return Model{}, &ModelError{Path: path, Reason: "cannot be accessed"}
	}
	_ = f.Close()
	return Model{Source: source, Identifier: identifier, Format: format, TemplatePath: path}, nil
}

// Name is "<identifier>_<format>".
func (m Model) Name() string { return m.Identifier + "_" + m.Format }

// PopulatedTemplatePath is where the filled template for datasetID is written.
func (m Model) PopulatedTemplatePath(tempDir, datasetID string) string {
	return filepath.Join(tempDir, datasetID+"_"+m.Name()+"_nemoModel.xml")
}

// OutputPath is the converted file NEMO writes for localCDIID.
func (m Model) OutputPath(outputDir, localCDIID string) string {
	return filepath.Join(outputDir, localCDIID+"_"+strings.ToLower(m.Format)+".txt")
}

// SummaryPath is the CDI summary file NEMO writes next to the output.
func (m Model) SummaryPath(outputDir, localCDIID string) string {
	return filepath.Join(outputDir, localCDIID+"_"+strings.ToLower(m.Format)+"_summary.txt")
}
