package layer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/kilianp07/ghsdash/core/geo"
)

func projectInPlace(g orb.Geometry, proj orb.Projection) orb.Geometry {
	return project.Geometry(g, proj)
}

// NameFromPath derives a layer name from a file path.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile loads a GeoJSON FeatureCollection from disk.
func ReadFile(path string) (*Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	l, err := Decode(NameFromPath(path), f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l, nil
}

// Decode parses a GeoJSON FeatureCollection. The CRS comes from the legacy
// "crs" member when present and defaults to WGS84 otherwise.
func Decode(name string, r io.Reader) (*Layer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}
	crs := geo.WGS84
	if raw, ok := fc.ExtraMembers["crs"]; ok && raw != nil {
		c, err := crsFromMember(raw)
		if err != nil {
			return nil, err
		}
		crs = c
	}
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
	}
	return &Layer{Name: name, CRS: crs, Features: fc.Features}, nil
}

func crsFromMember(raw any) (geo.CRS, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: malformed crs member", geo.ErrUnsupportedCRS)
	}
	props, _ := m["properties"].(map[string]any)
	name, _ := props["name"].(string)
	return geo.ParseCRS(name)
}

// Encode writes the layer as a GeoJSON FeatureCollection.
func Encode(w io.Writer, l *Layer) error {
	fc := geojson.NewFeatureCollection()
	fc.Features = l.Features
	if l.CRS != 0 && l.CRS != geo.WGS84 {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]any{
				"type":       "name",
				"properties": map[string]any{"name": fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", int(l.CRS))},
			},
		}
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteFile writes the layer to path, creating parent directories. The file
// is written to a temporary name first and renamed into place.
func WriteFile(path string, l *Layer) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if err := Encode(tmp, l); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("encode %s: %w", l.Name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
