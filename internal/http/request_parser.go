package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"wallet/internal/services"
	"wallet/internal/view"
)

// maxBodyBytes bounds every request body the API reads.
const maxBodyBytes = 1 << 20

// RequestBodyParser reads a body once and serves values from it whether it
// was sent as JSON or as a form.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxBodyBytes of r's body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	}
	return p
}

// Parse decodes the body. JSON is detected by its first byte, anything else
// is treated as form data. An empty body parses as an empty form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("decode JSON body: %w", err)
			return p.err
		}
		return nil
	}
	if trimmed[0] == '[' {
		p.err = fmt.Errorf("decode JSON body: expected an object")
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	return p.err
}

// Get returns the sanitized, trimmed value for key.
func (p *RequestBodyParser) Get(key string) string {
	return sanitizeInput(p.raw(key))
}

// Value returns the value for key with control characters removed but
// surrounding whitespace kept.
func (p *RequestBodyParser) Value(key string) string {
	return stripControl(p.raw(key))
}

func (p *RequestBodyParser) raw(key string) string {
	if p.jsonData != nil {
		return stringValue(p.jsonData[key])
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

// Has reports whether key was present in the body at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// Input maps the body onto a transaction input.
func (p *RequestBodyParser) Input() services.Input {
	return services.Input{
		Type:        p.Get("type"),
		Date:        p.Get("date"),
		Description: p.Get("description"),
		Amount:      p.Get("amount"),
	}
}

// Criteria maps the body onto filter criteria. The keyword is kept verbatim
// so that leading or trailing spaces still take part in the match.
func (p *RequestBodyParser) Criteria() view.Criteria {
	return view.Criteria{
		Type:    view.TypeFilter(p.Get("type")),
		Keyword: p.Value("keyword"),
	}
}

// ParseCriteria reads ?type= and ?q= from a query string. ok is false when
// neither was given.
func ParseCriteria(query url.Values) (c view.Criteria, ok bool, err error) {
	if !query.Has("type") && !query.Has("q") {
		return view.Criteria{}, false, nil
	}
	typ, err := view.ParseTypeFilter(query.Get("type"))
	if err != nil {
		return view.Criteria{}, true, err
	}
	return view.Criteria{Type: typ, Keyword: stripControl(query.Get("q"))}, true, nil
}

// ParseIndex parses a canonical list position.
func ParseIndex(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

// stringValue converts a decoded JSON value to string. Numbers arrive as
// json.Number so amounts keep every digit the client sent.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(stripControl(s))
}

// stripControl drops control characters except tab, newline and carriage return.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
