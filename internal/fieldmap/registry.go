package fieldmap

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"venuematch/internal"
)

//go:embed maps/*.yaml
var embeddedMaps embed.FS

// FieldMap maps a vendor's raw field name to a canonical field name.
type FieldMap map[string]string

type mapFile struct {
	Vendor string            `yaml:"vendor"`
	Fields map[string]string `yaml:"fields"`
}

// Registry holds the validated field maps of every supported vendor. It is
// read-only after construction.
type Registry struct {
	maps map[string]FieldMap
}

func NewRegistry(maps map[string]FieldMap) (*Registry, error) {
	if len(maps) == 0 {
		return nil, fmt.Errorf("no vendor field maps configured")
	}

	out := make(map[string]FieldMap, len(maps))
	for vendor, fields := range maps {
		key := normalizeVendor(vendor)
		if key == "" {
			return nil, fmt.Errorf("field map with empty vendor id")
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate field map for vendor %s", key)
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("vendor %s: field map is empty", key)
		}

		copied := make(FieldMap, len(fields))
		targets := make(map[string]string, len(fields))
		for raw, canonical := range fields {
			canonical = strings.TrimSpace(canonical)
			if strings.TrimSpace(raw) == "" || canonical == "" {
				return nil, fmt.Errorf("vendor %s: empty field name in mapping %q -> %q", key, raw, canonical)
			}
			if prev, taken := targets[canonical]; taken {
				return nil, fmt.Errorf("vendor %s: %q and %q both map to %q", key, prev, raw, canonical)
			}
			targets[canonical] = raw
			copied[raw] = canonical
		}
		out[key] = copied
	}

	return &Registry{maps: out}, nil
}

func DefaultRegistry() (*Registry, error) {
	sub, err := fs.Sub(embeddedMaps, "maps")
	if err != nil {
		return nil, err
	}
	return loadFS(sub)
}

// LoadRegistry reads every *.yaml file in dir. An empty dir selects the embedded maps.
func LoadRegistry(dir string) (*Registry, error) {
	if strings.TrimSpace(dir) == "" {
		return DefaultRegistry()
	}
	return loadFS(os.DirFS(dir))
}

func loadFS(fsys fs.FS) (*Registry, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}

	maps := map[string]FieldMap{}
	for _, name := range names {
		blob, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		var file mapFile
		if err := yaml.Unmarshal(blob, &file); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
		}
		vendor := normalizeVendor(file.Vendor)
		if vendor == "" {
			vendor = normalizeVendor(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
		}
		if _, dup := maps[vendor]; dup {
			return nil, fmt.Errorf("%s: duplicate field map for vendor %s", filepath.Base(name), vendor)
		}
		maps[vendor] = file.Fields
	}

	return NewRegistry(maps)
}

func (r *Registry) Resolve(vendorID string) (FieldMap, error) {
	fields, ok := r.maps[normalizeVendor(vendorID)]
	if !ok {
		return nil, &internal.UnknownVendorError{Vendor: vendorID}
	}
	out := make(FieldMap, len(fields))
	for raw, canonical := range fields {
		out[raw] = canonical
	}
	return out, nil
}

func (r *Registry) Mapper(vendorID string) (*Mapper, error) {
	fields, err := r.Resolve(vendorID)
	if err != nil {
		return nil, err
	}
	return NewMapper(fields), nil
}

func (r *Registry) Vendors() []string {
	out := make([]string, 0, len(r.maps))
	for vendor := range r.maps {
		out = append(out, vendor)
	}
	sort.Strings(out)
	return out
}

func normalizeVendor(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}
