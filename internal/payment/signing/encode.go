// Package signing implements the gateway's canonical parameter encoding
// and its MD5 request signature. Both sides of the integration compute the
// digest independently, so the encoding must be byte-identical for a given
// parameter set no matter how the map was built.
package signing

import (
	"net/url"
	"sort"
	"strings"
)

// Canonical serializes params into the gateway's signature-input form:
// keys in byte order, empty values dropped, values query-escaped with
// spaces as '+', pairs joined with '&'.
func Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escape(params[k]))
	}
	return b.String()
}

// escape matches the gateway's urlencode convention: percent-encoding with
// the space sequence rendered as '+'.
func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "%20", "+")
}
