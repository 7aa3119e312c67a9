package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

// Args are the decoded arguments of one tool call. Values come either from a
// JSON object (numbers as json.Number) or from URL query strings.
type Args map[string]any

// DecodeArgs parses a JSON object. An empty body yields empty Args.
func DecodeArgs(raw []byte) (Args, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Args{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var a Args
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if a == nil {
		a = Args{}
	}
	return a, nil
}

// ArgsFromQuery converts query parameters. Repeated keys become lists.
func ArgsFromQuery(q url.Values) Args {
	a := make(Args, len(q))
	for k, vs := range q {
		switch len(vs) {
		case 0:
		case 1:
			a[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			a[k] = list
		}
	}
	return a
}

// Has reports whether key is present and not null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns the trimmed string value of key. Numbers are formatted;
// other types yield "".
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Int returns key as an integer. ok is false when the key is absent; err is
// set when it is present but not an integer.
func (a Args) Int(key string) (n int64, ok bool, err error) {
	if !a.Has(key) {
		return 0, false, nil
	}
	n, valid := backend.AsInt64(a[key])
	if !valid {
		return 0, true, fmt.Errorf("%s must be an integer", key)
	}
	return n, true, nil
}

// Bool returns key as a boolean. Query-string forms such as "true", "1" and
// "no" are accepted.
func (a Args) Bool(key string) (b bool, ok bool, err error) {
	if !a.Has(key) {
		return false, false, nil
	}
	switch v := a[key].(type) {
	case bool:
		return v, true, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y":
			return true, true, nil
		case "false", "0", "no", "n":
			return false, true, nil
		}
	}
	return false, true, fmt.Errorf("%s must be boolean", key)
}

// Strings returns key as a list of strings. A single string is split on
// commas.
func (a Args) Strings(key string) []string {
	var out []string
	switch v := a[key].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			switch s := item.(type) {
			case string:
				out = append(out, strings.TrimSpace(s))
			case json.Number:
				out = append(out, s.String())
			}
		}
	}
	return out
}

// optionalBool returns a pointer for a present boolean, nil otherwise.
func (a Args) optionalBool(key string) (*bool, error) {
	b, ok, err := a.Bool(key)
	if err != nil || !ok {
		return nil, err
	}
	return &b, nil
}

func (a Args) page(limit, offset int, reverseKey string) (backend.Page, error) {
	p := backend.Page{Limit: &limit, Offset: &offset}
	r, err := a.optionalBool(reverseKey)
	if err != nil {
		return p, err
	}
	p.Reverse = r
	return p, nil
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
