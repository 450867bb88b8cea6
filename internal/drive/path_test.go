package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want string
	}{
		{"empty means root", "", "/"},
		{"root", "/", "/"},
		{"relative gets rooted", "foo/bar", "/foo/bar"},
		{"trailing slash dropped", "/foo/", "/foo"},
		{"dot segments collapse", "/a/./b/../c", "/a/c"},
		{"double slashes collapse", "//a//b", "/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPath(tt.spec))
		})
	}
}

func TestCleanPathNormalizesNFC(t *testing.T) {
	// "é" as e + combining acute (NFD) must land on the composed form.
	decomposed := "/caf" + norm.NFD.String("é")
	composed := "/caf" + norm.NFC.String("é")

	assert.Equal(t, composed, CleanPath(decomposed))
}

func TestSplitChild(t *testing.T) {
	tests := []struct {
		name       string
		dir, path  string
		wantName   string
		wantNested bool
		wantOK     bool
	}{
		{"direct child of root", "/", "/a.txt", "a.txt", false, true},
		{"nested under root", "/", "/a/b.txt", "a", true, true},
		{"direct child of dir", "/a", "/a/b.txt", "b.txt", false, true},
		{"nested under dir", "/a", "/a/b/c.txt", "b", true, true},
		{"outside dir", "/a", "/b/c.txt", "", false, false},
		{"dir itself", "/a", "/a", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, nested, ok := splitChild(tt.dir, tt.path)
			assert.Equal(t, tt.wantOK, ok)

			if ok {
				assert.Equal(t, tt.wantName, name)
				assert.Equal(t, tt.wantNested, nested)
			}
		})
	}
}
