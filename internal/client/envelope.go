package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/alfredjeanlab/eventify/internal/model"
)

// ErrEnvelope is returned when a response does not have the shape its
// endpoint promised. A page is never built from such a response.
var ErrEnvelope = errors.New("client: unexpected response envelope")

// Envelope describes where a list response keeps its rows and pagination
// metadata, as JMESPath expressions over the decoded JSON body. Empty
// expressions are not evaluated.
type Envelope struct {
	Items      string `toml:"items"`
	Count      string `toml:"count"`
	TotalPages string `toml:"total_pages"`
	Next       string `toml:"next"`
	Previous   string `toml:"previous"`

	// Success, when set, must evaluate to true; a false value fails the
	// fetch with the text found at Message.
	Success string `toml:"success"`
	Message string `toml:"message"`
}

// DRF is the stock Django REST Framework page: {count, next, previous, results}.
func DRF() Envelope {
	return Envelope{Items: "results", Count: "count", Next: "next", Previous: "previous"}
}

// Keyed is a plain {<key>: [...], count} object.
func Keyed(key string) Envelope {
	return Envelope{Items: key, Count: "count"}
}

// SuccessList is the {success, <key>: [...], count, next, previous} shape of
// the admin and organizer views.
func SuccessList(key string) Envelope {
	return Envelope{
		Items:    key,
		Count:    "count",
		Next:     "next",
		Previous: "previous",
		Success:  "success",
		Message:  "message || error",
	}
}

// NestedResults is the {results: {<key>: [...]}, count, next, previous,
// total_pages} shape of the organizer wallet.
func NestedResults(key string) Envelope {
	return Envelope{
		Items:      "results." + key,
		Count:      "count",
		TotalPages: "total_pages",
		Next:       "next",
		Previous:   "previous",
	}
}

// PagesOnly is the {results, total_pages} shape of the admin user lists.
func PagesOnly() Envelope {
	return Envelope{Items: "results", Count: "count", TotalPages: "total_pages"}
}

// Validate compiles every expression so mistakes surface at startup.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Items) == "" {
		return fmt.Errorf("envelope: items expression is required")
	}
	if strings.TrimSpace(e.Count) == "" && strings.TrimSpace(e.TotalPages) == "" {
		return fmt.Errorf("envelope: one of count or total_pages is required")
	}
	for name, expr := range map[string]string{
		"items":       e.Items,
		"count":       e.Count,
		"total_pages": e.TotalPages,
		"next":        e.Next,
		"previous":    e.Previous,
		"success":     e.Success,
		"message":     e.Message,
	} {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		if _, err := jmespath.Compile(expr); err != nil {
			return fmt.Errorf("envelope: compiling %s %q: %w", name, expr, err)
		}
	}
	return nil
}

// Normalize extracts rows and pagination metadata from a decoded body.
func (e Envelope) Normalize(doc any) ([]any, model.PageMeta, error) {
	var meta model.PageMeta

	if e.Success != "" {
		ok, err := search(e.Success, doc)
		if err != nil {
			return nil, meta, err
		}
		if b, _ := ok.(bool); !b {
			msg := "request was not successful"
			if e.Message != "" {
				if m, err := search(e.Message, doc); err == nil {
					if s, isStr := m.(string); isStr && s != "" {
						msg = s
					}
				}
			}
			return nil, meta, fmt.Errorf("%w: %s", ErrEnvelope, msg)
		}
	}

	raw, err := search(e.Items, doc)
	if err != nil {
		return nil, meta, err
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, meta, fmt.Errorf("%w: %q is %s, not a list", ErrEnvelope, e.Items, kind(raw))
	}

	haveCount, havePages := false, false
	if e.Count != "" {
		v, err := search(e.Count, doc)
		if err != nil {
			return nil, meta, err
		}
		if v != nil {
			n, err := toInt(v)
			if err != nil {
				return nil, meta, fmt.Errorf("%w: count: %v", ErrEnvelope, err)
			}
			meta.Count = n
			haveCount = true
		}
	}
	if e.TotalPages != "" {
		v, err := search(e.TotalPages, doc)
		if err != nil {
			return nil, meta, err
		}
		if v != nil {
			n, err := toInt(v)
			if err != nil {
				return nil, meta, fmt.Errorf("%w: total_pages: %v", ErrEnvelope, err)
			}
			meta.TotalPages = n
			havePages = true
		}
	}
	if !haveCount && !havePages {
		return nil, meta, fmt.Errorf("%w: neither count nor total_pages present", ErrEnvelope)
	}

	if e.Next != "" {
		v, err := search(e.Next, doc)
		if err != nil {
			return nil, meta, err
		}
		meta.Next = model.Flag(present(v))
	}
	if e.Previous != "" {
		v, err := search(e.Previous, doc)
		if err != nil {
			return nil, meta, err
		}
		meta.Previous = model.Flag(present(v))
	}
	return items, meta, nil
}

func search(expr string, doc any) (any, error) {
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: evaluating %q: %v", ErrEnvelope, expr, err)
	}
	return v, nil
}

// present interprets a cursor field: null, false and "" mean there is no
// page in that direction, anything else means there is.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	return true
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		if t < 0 || t != math.Trunc(t) {
			return 0, fmt.Errorf("%v is not a non-negative integer", t)
		}
		return int(t), nil
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%q is not a non-negative integer", t)
		}
		return n, nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%q is not a non-negative integer", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s is not a number", kind(v))
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "a list"
	case string:
		return "a string"
	case float64, json.Number:
		return "a number"
	case bool:
		return "a boolean"
	}
	return fmt.Sprintf("%T", v)
}
