package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mechbank/internal/mechanism"
)

//go:embed mechanism.cue
var schemaSource string

// Format is a document encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatForPath picks the format from a file extension. Anything that is
// not .json is read as YAML, which also accepts JSON.
func FormatForPath(path string) Format {
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// ShapeError reports a document that does not match the CUE definitions.
type ShapeError struct {
	Source   string
	Problems []string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: document shape: %s", e.Source, strings.Join(e.Problems, "; "))
}

// IsShapeError reports whether err is a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// Decoder checks and decodes documents.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so Decoder
// serializes calls with an internal mutex.
type Decoder struct {
	mu        sync.Mutex
	ctx       *cue.Context
	mechanism cue.Value
	patch     cue.Value
}

// NewDecoder compiles the embedded schema.
func NewDecoder() (*Decoder, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("mechanism.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile mechanism.cue: %w", err)
	}
	return &Decoder{
		ctx:       ctx,
		mechanism: schema.LookupPath(cue.ParsePath("#Mechanism")),
		patch:     schema.LookupPath(cue.ParsePath("#Patch")),
	}, nil
}

// Records decodes every document in data. YAML input may hold several
// documents separated by "---"; either format may hold a top-level list.
// The first bad document fails the whole call.
func (d *Decoder) Records(source string, data []byte, format Format) ([]mechanism.Record, error) {
	docs, err := d.documents(source, data, format)
	if err != nil {
		return nil, err
	}
	out := make([]mechanism.Record, 0, len(docs))
	for _, doc := range docs {
		if doc.Err != nil {
			return nil, doc.Err
		}
		out = append(out, doc.Record)
	}
	return out, nil
}

// documents decodes each document in data independently.
func (d *Decoder) documents(source string, data []byte, format Format) ([]Document, error) {
	raw, err := splitDocuments(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	out := make([]Document, 0, len(raw))
	for i, doc := range raw {
		src := source
		if len(raw) > 1 {
			src = fmt.Sprintf("%s[%d]", source, i)
		}
		var r mechanism.Record
		err := d.decode(src, doc, d.mechanism, &r)
		out = append(out, Document{Path: src, Record: r, Err: err})
	}
	return out, nil
}

// Record decodes a single-document proposal.
func (d *Decoder) Record(source string, data []byte, format Format) (mechanism.Record, error) {
	records, err := d.Records(source, data, format)
	if err != nil {
		return mechanism.Record{}, err
	}
	if len(records) != 1 {
		return mechanism.Record{}, fmt.Errorf("%s: expected one document, found %d", source, len(records))
	}
	return records[0], nil
}

// Patch decodes a single-document partial update.
func (d *Decoder) Patch(source string, data []byte, format Format) (mechanism.Patch, error) {
	docs, err := splitDocuments(data, format)
	if err != nil {
		return mechanism.Patch{}, fmt.Errorf("%s: %w", source, err)
	}
	if len(docs) != 1 {
		return mechanism.Patch{}, fmt.Errorf("%s: expected one document, found %d", source, len(docs))
	}
	var p mechanism.Patch
	if err := d.decode(source, docs[0], d.patch, &p); err != nil {
		return mechanism.Patch{}, err
	}
	return p, nil
}

// decode unifies doc with def, requires a concrete result and decodes it
// into target.
func (d *Decoder) decode(source string, doc any, def cue.Value, target any) error {
	if _, ok := doc.(map[string]any); !ok {
		return &ShapeError{Source: source, Problems: []string{fmt.Sprintf("expected a mapping, found %T", doc)}}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return shapeError(source, err)
	}
	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return shapeError(source, err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return shapeError(source, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%s: decode: %w", source, err)
	}
	return nil
}

// shapeError flattens CUE errors into one message per problem, each
// prefixed with its field path.
func shapeError(source string, err error) error {
	se := &ShapeError{Source: source}
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := e.Path(); len(path) > 0 {
			msg = strings.Join(path, ".") + ": " + msg
		}
		se.Problems = append(se.Problems, msg)
	}
	if len(se.Problems) == 0 {
		se.Problems = []string{err.Error()}
	}
	return se
}

// splitDocuments parses data into generic values, one per record.
func splitDocuments(data []byte, format Format) ([]any, error) {
	var docs []any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		for {
			var doc any
			err := dec.Decode(&doc)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse json: %w", err)
			}
			docs = append(docs, normalizeJSON(doc))
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		for {
			var doc any
			err := dec.Decode(&doc)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
			if doc == nil {
				continue // Empty document between separators
			}
			docs = append(docs, doc)
		}
	}

	var out []any
	for _, doc := range docs {
		if list, ok := doc.([]any); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, doc)
	}
	if len(out) == 0 {
		return nil, errors.New("no documents found")
	}
	return out, nil
}

// normalizeJSON converts json.Number into int64 or float64 so CUE sees
// integers as ints.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeJSON(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeJSON(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	}
	return v
}
