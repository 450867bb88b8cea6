package drive

import (
	gopath "path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanPath canonicalizes a PathSpec inside the drive namespace: NFC
// normalization (so composed and decomposed forms of the same name hit the
// same entry), slash-rooting, and lexical cleaning. An empty spec means
// the drive root.
func CleanPath(spec string) string {
	spec = norm.NFC.String(spec)

	if !strings.HasPrefix(spec, "/") {
		spec = "/" + spec
	}

	return gopath.Clean(spec)
}

// splitChild returns the first path segment of p relative to dir, and
// whether further segments follow it. p must be CleanPath-ed and lie under
// dir; ok is false otherwise.
func splitChild(dir, p string) (name string, nested, ok bool) {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}

	if !strings.HasPrefix(p, prefix) {
		return "", false, false
	}

	rest := p[len(prefix):]
	if rest == "" {
		return "", false, false
	}

	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx], true, true
	}

	return rest, false, true
}
