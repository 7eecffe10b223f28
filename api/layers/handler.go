// Package layers exposes the map catalog over HTTP.
package layers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/geojson"

	"github.com/kilianp07/ghsdash/core/catalog"
	"github.com/kilianp07/ghsdash/core/layer"
)

// Catalog is the subset of the layer catalog served by the API.
type Catalog interface {
	Specs() []catalog.LayerSpec
	Filter(name string, opts catalog.FilterOptions) (*layer.Layer, error)
	Feature(name, id string) ([]catalog.Row, error)
	Top(name, field string, n int, descending bool) ([]catalog.Ranked, error)
	MapSpec(enabled []string, showNonDAC bool) (catalog.MapSpec, error)
	Legend(enabled []string) ([]catalog.LegendEntry, error)
}

// DefaultTopN is used when the n parameter is absent.
const DefaultTopN = 10

type handlers struct {
	cat Catalog
}

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v before writing the status so that values JSON cannot
// carry, such as NaN, turn into a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody{Error: "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// writeCatalogError maps catalog errors to status codes.
func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0)
	for _, s := range h.cat.Specs() {
		names = append(names, s.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "layers": names})
}

func (h *handlers) legend(w http.ResponseWriter, r *http.Request) {
	entries, err := h.cat.Legend(layerList(r))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) mapSpec(w http.ResponseWriter, r *http.Request) {
	show, err := showNonDAC(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := h.cat.MapSpec(layerList(r), show)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (h *handlers) features(w http.ResponseWriter, r *http.Request) {
	show, err := showNonDAC(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := h.cat.Filter(mux.Vars(r)["name"], catalog.FilterOptions{ShowNonDAC: show})
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	fc := geojson.NewFeatureCollection()
	fc.Features = l.Features
	w.Header().Set("Content-Type", "application/geo+json")
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, _ = w.Write(data)
}

func (h *handlers) feature(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rows, err := h.cat.Feature(vars["name"], vars["id"])
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) top(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}
	n := DefaultTopN
	if s := q.Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = v
	}
	desc := true
	switch strings.ToLower(q.Get("order")) {
	case "", "desc":
	case "asc":
		desc = false
	default:
		writeError(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}
	ranked, err := h.cat.Top(mux.Vars(r)["name"], field, n, desc)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "route not found")
}

// layerList parses ?layers=a,b. Absent means the configured defaults; an
// empty value means no layers.
func layerList(r *http.Request) []string {
	q := r.URL.Query()
	if _, ok := q["layers"]; !ok {
		return nil
	}
	out := []string{}
	for _, p := range strings.Split(q.Get("layers"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func showNonDAC(r *http.Request) (bool, error) {
	s := r.URL.Query().Get("show_non_dac")
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.New("show_non_dac must be true or false")
	}
	return v, nil
}
