// Package importer defines the dataset sources the generator can process and
// the registry that selects them by name.
package importer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/squaregoldfish/cdi-generator/internal/csr"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/nemo"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/padding"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/pangaea"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/retrieval"
)

// DatasetSource is one catalogue/collection combination. A source holds the
// state of the most recently retrieved dataset; fact accessors refer to it.
type DatasetSource interface {
	Name() string

	ValidateID(id string) bool
	IDFormat() string
	IDDescriptor() string
	IDsDescriptor() string

	// Retrieve loads id. The source is usable for id only if it returns nil.
	Retrieve(ctx context.Context, id string) error
	// Data is the reformatted data table of the current dataset.
	Data() []byte

	ResolveTag(tag string) (string, bool, error)
	ColumnPaddingSpec(column string) (*padding.Spec, bool)
	Models() ([]nemo.Model, error)

	LocalCDIID() (string, error)
	DatasetName() string
	DatasetID() (string, error)
	PlatformCode() (string, error)
	DOI() (string, error)
	DOIURL() (string, error)
	Abstract() (string, error)
	CruiseName() (string, error)
	StartDate() (time.Time, error)
	StartDateTime() (time.Time, error)
	EndDateTime() (time.Time, error)
	Bounds() (pangaea.Bounds, error)
	DocumentationURL() (string, error)
	QCComment() (string, error)
	CSRReference() (string, error)
	DataType() string
}

// Deps are the shared collaborators handed to every source.
type Deps struct {
	Pipeline     *retrieval.Pipeline
	CSR          *csr.Table
	TemplatesDir string
	Logger       *log.Logger
}

// Factory builds a source.
type Factory func(Deps) (DatasetSource, error)

type entry struct {
	factory Factory
	format  string
}

// Registry maps configuration names to source factories.
type Registry struct {
	entries map[string]entry
}

// NewRegistry returns a registry holding the built-in sources.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]entry)}
	r.mustRegister(SOCATv3, socatIDFormat, socatFactory(SOCATv3))
	r.mustRegister(SOCATv4, socatIDFormat, socatFactory(SOCATv4))
	return r
}

func socatFactory(name string) Factory {
	return func(d Deps) (DatasetSource, error) {
		s, err := NewSOCAT(name, d)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name, idFormat string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("importer: name and factory required")
	}
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("importer %s already registered", name)
	}
	r.entries[name] = entry{factory: f, format: idFormat}
	return nil
}

func (r *Registry) mustRegister(name, idFormat string, f Factory) {
	if err := r.Register(name, idFormat, f); err != nil {
		panic(err)
	}
}

// Names lists the registered sources alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IDFormat returns the ID format registered for name.
func (r *Registry) IDFormat(name string) (string, bool) {
	e, ok := r.entries[name]
	return e.format, ok
}

// New builds the source registered as name.
func (r *Registry) New(name string, deps Deps) (DatasetSource, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("unknown importer %q (available: %v)", name, r.Names())
	}
	src, err := e.factory(deps)
	if err != nil {
		return nil, fmt.Errorf("create importer %s: %w", name, err)
	}
	return src, nil
}
