package enrich

import (
	"strconv"
	"strings"

	"github.com/kilianp07/ghsdash/core/layer"
)

// MaxFieldName is the longest attribute name geodatabase writers accept.
const MaxFieldName = 64

var reservedFields = map[string]string{
	"fid":      "src_fid",
	"objectid": "src_objectid",
	"geom":     "src_geom",
}

// SanitizeFields renames attributes that break geodatabase writers:
// fid, objectid and geom are moved aside, names are cut to MaxFieldName runes and
// collisions are resolved case-insensitively with _1, _2 suffixes. It
// returns the applied renames.
func SanitizeFields(l *layer.Layer) map[string]string {
	renames := map[string]string{}
	seen := map[string]bool{}
	for _, name := range l.Fields() {
		next := name
		if r, ok := reservedFields[strings.ToLower(name)]; ok {
			next = r
		}
		next = truncate(next, MaxFieldName)
		base := next
		for i := 1; seen[strings.ToLower(next)]; i++ {
			suf := "_" + strconv.Itoa(i)
			next = truncate(base, MaxFieldName-len(suf)) + suf
		}
		seen[strings.ToLower(next)] = true
		if next != name {
			renames[name] = next
		}
	}
	for from, to := range renames {
		l.RenameField(from, "\x00"+to)
	}
	for _, to := range renames {
		l.RenameField("\x00"+to, to)
	}
	return renames
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
