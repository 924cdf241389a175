package dedupx

import (
	"encoding"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ContentHash computes a deterministic blake2b-256 digest over the
// semantically meaningful fields of work. Field ordering, ignored fields
// (ids, timestamps) and attachment byte content never influence the result.
// Missing fields, nil values, non-string types, nested objects and
// self-referential structures are all tolerated; the function never fails.
func (m *Manager) ContentHash(work any) string {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	return hashWithConfig(work, cfg)
}

func hashWithConfig(work any, cfg Config) string {
	w := &canonicalWriter{
		ignore:      toSet(cfg.IgnoreFields),
		attachments: toSet(cfg.AttachmentFields),
		visited:     make(map[uintptr]bool),
	}
	w.writeValue(reflect.ValueOf(work))

	if cfg.IncludeAttachments {
		fmt.Fprintf(&w.buf, "|attachments:%d", w.attachmentCount)
	}

	sum := blake2b.Sum256([]byte(w.buf.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalWriter serialises a value into a canonical textual form: map keys
// sorted, ignored keys dropped, cycles replaced with a marker.
type canonicalWriter struct {
	buf             strings.Builder
	ignore          map[string]bool
	attachments     map[string]bool
	visited         map[uintptr]bool
	attachmentCount int
}

func (w *canonicalWriter) writeValue(v reflect.Value) {
	if !v.IsValid() {
		w.buf.WriteString("null")
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			w.buf.WriteString("null")
			return
		}
		w.writeValue(v.Elem())

	case reflect.Pointer:
		if v.IsNil() {
			w.buf.WriteString("null")
			return
		}
		ptr := v.Pointer()
		if w.visited[ptr] {
			w.buf.WriteString("<cycle>")
			return
		}
		w.visited[ptr] = true
		w.writeValue(v.Elem())
		delete(w.visited, ptr)

	case reflect.Map:
		if v.IsNil() {
			w.buf.WriteString("null")
			return
		}
		ptr := v.Pointer()
		if w.visited[ptr] {
			w.buf.WriteString("<cycle>")
			return
		}
		w.visited[ptr] = true
		w.writeMap(v)
		delete(w.visited, ptr)

	case reflect.Struct:
		if w.writeOpaque(v) {
			return
		}
		w.writeStruct(v)

	case reflect.Slice:
		if v.IsNil() {
			w.buf.WriteString("null")
			return
		}
		ptr := v.Pointer()
		if w.visited[ptr] {
			w.buf.WriteString("<cycle>")
			return
		}
		w.visited[ptr] = true
		w.writeList(v)
		delete(w.visited, ptr)

	case reflect.Array:
		w.writeList(v)

	case reflect.String:
		fmt.Fprintf(&w.buf, "%q", v.String())

	default:
		// Numbers, booleans and anything else get their default formatting.
		fmt.Fprintf(&w.buf, "%v", v.Interface())
	}
}

func (w *canonicalWriter) writeMap(v reflect.Value) {
	keys := make([]string, 0, v.Len())
	byKey := make(map[string]reflect.Value, v.Len())
	for _, k := range v.MapKeys() {
		name := fmt.Sprintf("%v", k.Interface())
		keys = append(keys, name)
		byKey[name] = v.MapIndex(k)
	}
	sort.Strings(keys)

	w.buf.WriteByte('{')
	first := true
	for _, name := range keys {
		if w.skipField(name, byKey[name]) {
			continue
		}
		if !first {
			w.buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&w.buf, "%q:", name)
		w.writeValue(byKey[name])
	}
	w.buf.WriteByte('}')
}

// writeOpaque serialises structs that carry their value in unexported fields,
// time.Time being the common case, through their own textual form. A field
// walk over such a struct would see nothing and hash every instance alike.
func (w *canonicalWriter) writeOpaque(v reflect.Value) bool {
	if !v.CanInterface() {
		return false
	}
	switch x := v.Interface().(type) {
	case encoding.TextMarshaler:
		text, err := x.MarshalText()
		if err != nil {
			return false
		}
		fmt.Fprintf(&w.buf, "%q", text)
		return true
	case fmt.Stringer:
		fmt.Fprintf(&w.buf, "%q", x.String())
		return true
	}
	return false
}

func (w *canonicalWriter) writeStruct(v reflect.Value) {
	t := v.Type()
	names := make([]string, 0, t.NumField())
	byName := make(map[string]reflect.Value, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		names = append(names, name)
		byName[name] = v.Field(i)
	}
	sort.Strings(names)

	w.buf.WriteByte('{')
	first := true
	for _, name := range names {
		if w.skipField(name, byName[name]) {
			continue
		}
		if !first {
			w.buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&w.buf, "%q:", name)
		w.writeValue(byName[name])
	}
	w.buf.WriteByte('}')
}

func (w *canonicalWriter) writeList(v reflect.Value) {
	w.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.writeValue(v.Index(i))
	}
	w.buf.WriteByte(']')
}

// skipField drops ignored fields and counts (without serialising) attachment
// fields.
func (w *canonicalWriter) skipField(name string, v reflect.Value) bool {
	if w.ignore[name] {
		return true
	}
	if w.attachments[name] {
		w.attachmentCount += listLen(v)
		return true
	}
	return false
}

func listLen(v reflect.Value) int {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return 0
		}
		v = v.Elem()
	}
	if v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) {
		return v.Len()
	}
	return 0
}

func fieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return field.Name
	}
	return tag
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// HashSimilarity returns the fraction of positions at which two hex digests
// carry the same character, in [0,1]. It is a cheap approximate metric for
// FindSimilarWork, not a semantic distance: digest avalanche drives any two
// distinct contents toward ~1/16 regardless of how alike they are, so useful
// thresholds sit near zero. Anything much above 0.1 matches nothing but the
// exact hash.
func HashSimilarity(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	matches := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(matches) / float64(longest)
}
