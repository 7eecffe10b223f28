package enrich

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
)

// ErrNoGrid is returned when a requested raster cannot be found.
var ErrNoGrid = errors.New("grid not found")

// GridTarget maps a raster name to the pollutant and year it measures.
type GridTarget struct {
	Grid      string `json:"grid"`
	Pollutant string `json:"pollutant"`
	Year      string `json:"year"`
}

// FieldName is the attribute written for the target, e.g. pm25_aa14.
func (t GridTarget) FieldName() string { return t.Pollutant + "_" + t.Year }

// DefaultGridTargets are the NYCCAS annual average surfaces for year 14.
func DefaultGridTargets() []GridTarget {
	return []GridTarget{
		{Grid: "aa14_pm300m", Pollutant: "pm25", Year: "aa14"},
		{Grid: "aa14_no2300m", Pollutant: "no2", Year: "aa14"},
	}
}

// Grid is a single band raster with square cells anchored at its lower
// left corner.
type Grid struct {
	NCols    int
	NRows    int
	XLL      float64
	YLL      float64
	CellSize float64
	NoData   *float64
	Values   []float64
}

// ReadASCIIGridFile reads an ESRI ASCII grid. A directory is resolved to the
// first .asc file it contains.
func ReadASCIIGridFile(path string) (*Grid, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		matches, err := filepath.Glob(filepath.Join(path, "*.asc"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: %w", path, ErrNoGrid)
		}
		sort.Strings(matches)
		path = matches[0]
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	g, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return g, nil
}

// ReadASCIIGrid parses the ESRI ASCII grid format: a header of ncols, nrows,
// xllcorner|xllcenter, yllcorner|yllcenter, cellsize and an optional
// NODATA_value, followed by rows from north to south.
func ReadASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		tok := sc.Text()
		key := strings.ToLower(tok)
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			first = tok
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("header %s has no value", tok)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", tok, err)
		}
		header[key] = v
	}
	g := &Grid{
		NCols:    int(header["ncols"]),
		NRows:    int(header["nrows"]),
		CellSize: header["cellsize"],
	}
	if g.NCols <= 0 || g.NRows <= 0 || g.CellSize <= 0 {
		return nil, fmt.Errorf("invalid grid header %v", header)
	}
	if v, ok := header["xllcorner"]; ok {
		g.XLL = v
	} else if v, ok := header["xllcenter"]; ok {
		g.XLL = v - g.CellSize/2
	} else {
		return nil, fmt.Errorf("missing xllcorner/xllcenter")
	}
	if v, ok := header["yllcorner"]; ok {
		g.YLL = v
	} else if v, ok := header["yllcenter"]; ok {
		g.YLL = v - g.CellSize/2
	} else {
		return nil, fmt.Errorf("missing yllcorner/yllcenter")
	}
	if v, ok := header["nodata_value"]; ok {
		nd := v
		g.NoData = &nd
	}

	n := g.NCols * g.NRows
	g.Values = make([]float64, 0, n)
	if first != "" {
		v, _ := strconv.ParseFloat(first, 64)
		g.Values = append(g.Values, v)
	}
	for len(g.Values) < n && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", len(g.Values), err)
		}
		g.Values = append(g.Values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(g.Values) != n {
		return nil, fmt.Errorf("expected %d cells, got %d", n, len(g.Values))
	}
	return g, nil
}

// Sample returns the cell value at x/y. Points outside the grid and nodata
// cells report false.
func (g *Grid) Sample(x, y float64) (float64, bool) {
	top := g.YLL + float64(g.NRows)*g.CellSize
	col := int(math.Floor((x - g.XLL) / g.CellSize))
	row := int(math.Floor((top - y) / g.CellSize))
	if col < 0 || col >= g.NCols || row < 0 || row >= g.NRows {
		return 0, false
	}
	v := g.Values[row*g.NCols+col]
	if g.NoData != nil && v == *g.NoData {
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FindGrids walks base and returns the path of every wanted grid, matched by
// directory name or by file name without extension. Every name must be found.
func FindGrids(base string, names []string) (map[string]string, error) {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	found := map[string]string{}
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == base {
			return nil
		}
		name := d.Name()
		if !d.IsDir() {
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if want[name] {
			if _, dup := found[name]; !dup {
				found[name] = path
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if _, ok := found[n]; !ok {
			return nil, fmt.Errorf("%s under %s: %w", n, base, ErrNoGrid)
		}
	}
	return found, nil
}

// SampleGrid samples grid at every point of pts into field. The grid is in
// gridCRS; points are reprojected as needed. Unsampled points get null.
func SampleGrid(pts *layer.Layer, g *Grid, gridCRS geo.CRS, field string) (int, error) {
	if err := pts.CheckCRS(); err != nil {
		return 0, err
	}
	proj, err := geo.Projection(pts.CRS, gridCRS)
	if err != nil {
		return 0, err
	}
	sampled := 0
	for _, f := range pts.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok || geo.IsEmpty(p) {
			f.Properties[field] = nil
			continue
		}
		q := proj(p)
		v, ok := g.Sample(q[0], q[1])
		if !ok {
			f.Properties[field] = nil
			continue
		}
		f.Properties[field] = v
		sampled++
	}
	return sampled, nil
}
