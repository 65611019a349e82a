// Package fieldmap holds the static catalog mapping canonical field names to
// vendor-specific identifiers. The catalog ships with the binary, is loaded
// once on first use and is read-only afterwards, so it is safe to share across
// goroutines.
package fieldmap

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"

	_ "embed"
)

//go:embed fields.csv
var rawCatalog []byte

// Map is the bidirectional field-name catalog.
type Map struct {
	vendors    []string
	canonicals map[string]bool
	// vendor -> canonical -> vendor id
	toVendor map[string]map[string]string
	// vendor -> lower-cased vendor id -> canonical
	toCanonical map[string]map[string]string
}

var (
	loadOnce sync.Once
	loaded   *Map
	loadErr  error
)

// Load returns the process-wide catalog, parsing it on first call.
func Load() (*Map, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(rawCatalog)
	})
	return loaded, loadErr
}

// Parse builds a Map from catalog CSV bytes. The header must be
// "field_id" followed by one "<vendor>_id" column per vendor; empty cells
// mean the vendor has no identifier for that canonical field.
func Parse(data []byte) (*Map, error) {
	recs, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse field catalog: %w", err)
	}
	if len(recs) < 2 {
		return nil, fmt.Errorf("field catalog is empty")
	}

	header := recs[0]
	if header[0] != "field_id" {
		return nil, fmt.Errorf("field catalog must start with field_id column, got %q", header[0])
	}

	m := &Map{
		canonicals:  make(map[string]bool),
		toVendor:    make(map[string]map[string]string),
		toCanonical: make(map[string]map[string]string),
	}
	for _, col := range header[1:] {
		vendor := strings.TrimSuffix(col, "_id")
		if vendor == col {
			return nil, fmt.Errorf("vendor column %q must end in _id", col)
		}
		m.vendors = append(m.vendors, vendor)
		m.toVendor[vendor] = make(map[string]string)
		m.toCanonical[vendor] = make(map[string]string)
	}

	for _, rec := range recs[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("field catalog row for %q has %d columns, want %d", rec[0], len(rec), len(header))
		}
		canonical := rec[0]
		m.canonicals[canonical] = true
		for i, vendor := range m.vendors {
			id := strings.TrimSpace(rec[i+1])
			if id == "" {
				continue
			}
			m.toVendor[vendor][canonical] = id
			m.toCanonical[vendor][strings.ToLower(id)] = canonical
		}
	}
	return m, nil
}

// Vendors lists the vendors present in the catalog.
func (m *Map) Vendors() []string {
	return append([]string(nil), m.vendors...)
}

// HasVendor reports whether the catalog knows the given vendor.
func (m *Map) HasVendor(vendor string) bool {
	_, ok := m.toVendor[vendor]
	return ok
}

// VendorField returns the vendor identifier for a canonical field.
func (m *Map) VendorField(vendor, canonical string) (string, bool) {
	ids, ok := m.toVendor[vendor]
	if !ok {
		return "", false
	}
	id, ok := ids[canonical]
	return id, ok
}

// Canonical returns the canonical name for a vendor field identifier.
// Lookup is case-insensitive, matching the loose casing of vendor payloads.
func (m *Map) Canonical(vendor, vendorField string) (string, bool) {
	ids, ok := m.toCanonical[vendor]
	if !ok {
		return "", false
	}
	canonical, ok := ids[strings.ToLower(vendorField)]
	return canonical, ok
}

// IsCanonical reports whether name is a canonical field id in the catalog.
func (m *Map) IsCanonical(name string) bool {
	return m.canonicals[name]
}

// MapFields converts canonical field names to vendor identifiers, preserving
// order. Fields with no vendor identifier are returned separately so callers
// can warn and degrade rather than fail.
func (m *Map) MapFields(vendor string, fields []string) (mapped, unmapped []string) {
	for _, f := range fields {
		if id, ok := m.VendorField(vendor, f); ok {
			mapped = append(mapped, id)
		} else {
			unmapped = append(unmapped, f)
		}
	}
	return mapped, unmapped
}
