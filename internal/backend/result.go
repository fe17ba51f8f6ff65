package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Result is the structured payload every gateway operation returns. It mirrors the
// backend's JSON envelope: a boolean "exito", a human-readable "mensaje" and any
// operation-specific fields. Failures never leave the gateway as Go errors.
type Result map[string]any

const (
	keySuccess  = "exito"
	keyMessage  = "mensaje"
	keyNotFound = "codigo_no_encontrado"
)

// Fail builds a failure payload.
func Fail(message string) Result {
	return Result{keySuccess: false, keyMessage: message}
}

// OK reports whether exito is true.
func (r Result) OK() bool {
	ok, _ := r[keySuccess].(bool)
	return ok
}

// Message returns mensaje, falling back to "error" or "detail" keys some endpoints use.
func (r Result) Message() string {
	for _, k := range []string{keyMessage, "error", "detail"} {
		if s, ok := r[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// With returns r with key set, for chaining on freshly built results.
func (r Result) With(key string, value any) Result {
	r[key] = value
	return r
}

// Map returns the nested object stored at key.
func (r Result) Map(key string) map[string]any {
	m, _ := r[key].(map[string]any)
	return m
}

// String returns the string stored at key.
func (r Result) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// JSON encodes the payload for the language model; encoding failures degrade to a failure payload.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"exito":false,"mensaje":%q}`, "resultado no serializable")
	}
	return string(b)
}

func decodeResult(body []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if r == nil {
		r = Result{}
	}
	return r, nil
}

// IntValue converts a JSON-decoded number or numeric string to int.
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func mentionsNotFound(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "no encontr")
}

// flagNotFound marks results whose message says the code does not exist.
func flagNotFound(r Result) Result {
	if !r.OK() && mentionsNotFound(r.Message()) {
		r[keyNotFound] = true
	}
	return r
}
