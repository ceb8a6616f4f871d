package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestGenerateWithPrefix_Kinds(t *testing.T) {
	for _, prefix := range []string{ControllerPrefix, RequestPrefix, ExportPrefix} {
		t.Run(prefix, func(t *testing.T) {
			id, err := GenerateWithPrefix(prefix)
			if err != nil {
				t.Fatalf("GenerateWithPrefix(%q) error: %v", prefix, err)
			}
			pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `[a-zA-Z0-9]{10}$`)
			if !pattern.MatchString(id) {
				t.Errorf("GenerateWithPrefix(%q) = %q, does not match %s", prefix, id, pattern)
			}
		})
	}
}

func TestMustWithPrefix(t *testing.T) {
	id := MustWithPrefix(RequestPrefix)
	if !strings.HasPrefix(id, RequestPrefix) || len(id) != len(RequestPrefix)+Length {
		t.Errorf("MustWithPrefix() = %q", id)
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := GenerateWithPrefix(RequestPrefix)
		if err != nil {
			t.Fatalf("GenerateWithPrefix() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
