// Package gpkg writes vector layers as OGC GeoPackage files.
package gpkg

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/ghsdash/core/enrich"
	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
)

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
	geomColumn    = "geom"
)

// Column SQL types.
const (
	TypeInteger = "INTEGER"
	TypeReal    = "REAL"
	TypeText    = "TEXT"
)

// Column is a feature table attribute column.
type Column struct {
	Name string
	Type string
}

type srs struct {
	name, definition, description string
	id                            int
}

var knownSRS = map[geo.CRS]srs{
	geo.WGS84: {
		name: "WGS 84 geodetic", id: 4326,
		definition:  `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
		description: "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
	},
	geo.NYLongIsland: {
		name: "NAD83 / New York Long Island (ftUS)", id: 2263,
		definition:  `PROJCS["NAD83 / New York Long Island (ftUS)",GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4269"]],PROJECTION["Lambert_Conformal_Conic_2SP"],PARAMETER["standard_parallel_1",41.0333333333333],PARAMETER["standard_parallel_2",40.6666666666667],PARAMETER["latitude_of_origin",40.1666666666667],PARAMETER["central_meridian",-74],PARAMETER["false_easting",984250],PARAMETER["false_northing",0],UNIT["US survey foot",0.304800609601219,AUTHORITY["EPSG","9003"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","2263"]]`,
		description: "NAD83 New York Long Island state plane in US survey feet",
	},
}

// WriteFile writes l into a new GeoPackage at path, replacing any existing
// file. Attribute names are sanitized first; the applied renames are
// returned. table defaults to the layer name.
func WriteFile(ctx context.Context, path, table string, l *layer.Layer) (map[string]string, error) {
	if err := l.CheckCRS(); err != nil {
		return nil, err
	}
	def, ok := knownSRS[l.CRS]
	if !ok {
		return nil, fmt.Errorf("%w: %s", geo.ErrUnsupportedCRS, l.CRS)
	}
	if table == "" {
		table = l.Name
	}
	if table == "" {
		return nil, errors.New("table name required")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	work := l.Clone()
	renames := enrich.SanitizeFields(work)
	cols := InferColumns(work)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	if err := writeLayer(ctx, db, table, def, work, cols); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return renames, nil
}

func writeLayer(ctx context.Context, db *sql.DB, table string, def srs, l *layer.Layer, cols []Column) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA application_id = %d; PRAGMA user_version = %d;", applicationID, userVersion)); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range metadataSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition, description) VALUES
		('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
		('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system')`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition, description)
		VALUES (?, ?, 'EPSG', ?, ?, ?)`, def.name, def.id, def.id, def.definition, def.description); err != nil {
		return err
	}

	geomType := GeometryTypeName(l)
	ddl := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL", quote(geomColumn) + " " + geomType}
	for _, c := range cols {
		ddl = append(ddl, quote(c.Name)+" "+c.Type)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(ddl, ", "))); err != nil {
		return err
	}

	bound, hasBound := layerBound(l)
	var minX, minY, maxX, maxY any
	if hasBound {
		minX, minY, maxX, maxY = bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO gpkg_contents
		(table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`, table, table, minX, minY, maxX, maxY, def.id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO gpkg_geometry_columns
		(table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, ?, ?, ?, 0, 0)`,
		table, geomColumn, geomType, def.id); err != nil {
		return err
	}

	names := []string{quote(geomColumn)}
	marks := []string{"?"}
	for _, c := range cols {
		names = append(names, quote(c.Name))
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, f := range l.Features {
		blob, err := EncodeGeometry(f.Geometry, int32(def.id))
		if err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		args := []any{blob}
		for _, c := range cols {
			args = append(args, columnValue(f.Properties[c.Name], c.Type))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
	}
	return tx.Commit()
}

var metadataSchema = []string{
	`CREATE TABLE gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	)`,
	`CREATE TABLE gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE,
		min_y DOUBLE,
		max_x DOUBLE,
		max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`CREATE TABLE gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
		CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
		CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
}

// EncodeGeometry returns the GeoPackage binary form of g: the GP header with
// an xy envelope followed by little endian WKB. A nil geometry encodes as
// NULL.
func EncodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	empty := geo.IsEmpty(g)
	flags := byte(0x01) // little endian
	if empty {
		flags |= 0x10
	} else {
		flags |= 0x02 // envelope [minx, maxx, miny, maxy]
	}
	out := make([]byte, 0, 8+32+len(body))
	out = append(out, 'G', 'P', 0, flags)
	out = binary.LittleEndian.AppendUint32(out, uint32(srsID))
	if !empty {
		b := g.Bound()
		for _, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
		}
	}
	return append(out, body...), nil
}

// DecodeGeometry parses a GeoPackage geometry blob.
func DecodeGeometry(b []byte) (orb.Geometry, int32, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, 0, errors.New("not a geopackage geometry")
	}
	flags := b[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(b[4:8]))
	envSize := map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}[(flags>>1)&0x07]
	if len(b) < 8+envSize {
		return nil, 0, errors.New("truncated geopackage header")
	}
	g, err := wkb.Unmarshal(b[8+envSize:])
	if err != nil {
		return nil, 0, err
	}
	return g, srsID, nil
}

// GeometryTypeName returns the upper case geometry type shared by every
// feature, or GEOMETRY when types are mixed or absent.
func GeometryTypeName(l *layer.Layer) string {
	name := ""
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		t := strings.ToUpper(f.Geometry.GeoJSONType())
		if name == "" {
			name = t
		} else if name != t {
			return "GEOMETRY"
		}
	}
	if name == "" {
		return "GEOMETRY"
	}
	return name
}

// InferColumns derives a column per attribute, sorted by name. Booleans and
// integral numbers map to INTEGER, other numbers to REAL, everything else to
// TEXT. Null values do not affect the type.
func InferColumns(l *layer.Layer) []Column {
	types := map[string]string{}
	for _, f := range l.Features {
		for k, v := range f.Properties {
			t, ok := valueType(v)
			if !ok {
				if _, seen := types[k]; !seen {
					types[k] = ""
				}
				continue
			}
			types[k] = widen(types[k], t)
		}
	}
	cols := make([]Column, 0, len(types))
	for k, t := range types {
		if strings.EqualFold(k, "fid") || strings.EqualFold(k, geomColumn) {
			continue
		}
		if t == "" {
			t = TypeText
		}
		cols = append(cols, Column{Name: k, Type: t})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols
}

func valueType(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case bool, int, int32, int64:
		return TypeInteger, true
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<53 {
			return TypeInteger, true
		}
		return TypeReal, true
	case float32:
		return TypeReal, true
	}
	return TypeText, true
}

func widen(cur, next string) string {
	switch {
	case cur == "" || cur == next:
		return next
	case cur == TypeText || next == TypeText:
		return TypeText
	}
	return TypeReal
}

func columnValue(v any, typ string) any {
	if v == nil {
		return nil
	}
	switch typ {
	case TypeInteger:
		switch x := v.(type) {
		case bool:
			if x {
				return int64(1)
			}
			return int64(0)
		case float64:
			return int64(x)
		}
		return v
	case TypeReal:
		if f, ok := layer.Float(v); ok {
			return f
		}
		return nil
	}
	switch x := v.(type) {
	case string:
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

func layerBound(l *layer.Layer) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range l.Features {
		if f.Geometry == nil || geo.IsEmpty(f.Geometry) {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

func quote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
