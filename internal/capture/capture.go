// Package capture turns submissions posted to the served site into bus
// records.
package capture

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"portshare/internal/addrutil"
	"portshare/internal/api"
	"portshare/internal/logging"
	"portshare/internal/model"
)

// MaxBodyBytes bounds a single submission.
const MaxBodyBytes = 10 << 20

const redacted = "***REDACTED***"

// sensitiveKeys are never forwarded to observers.
var sensitiveKeys = []string{"password", "passwd", "token", "secret"}

// Ingester is the bus surface the handler needs.
type Ingester interface {
	Ingest(rec model.Record) model.CaptureEvent
}

// Handler accepts form or JSON submissions on POST.
type Handler struct {
	bus    Ingester
	logger logrus.FieldLogger
}

func NewHandler(bus Ingester, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{bus: bus, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	fields, err := readFields(r)
	if err != nil {
		// Malformed bodies are still recorded; the fields are just absent.
		h.logger.WithError(err).WithField("remote", r.RemoteAddr).Debug("capture body unreadable")
		fields = map[string]any{}
	}

	rec := Build(r, fields)
	ev := h.bus.Ingest(rec)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.CaptureResponse{ID: ev.ID, Count: ev.Count})
}

// Build assembles the record for a request whose body fields were already read.
func Build(r *http.Request, fields map[string]any) model.Record {
	ip := addrutil.ClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"))
	ua := r.Header.Get("User-Agent")

	resource := r.URL.Query().Get("t")
	if resource == "" {
		if v, ok := fields["t"].(string); ok {
			resource = v
		}
	}
	if resource == "" {
		resource = "unknown"
	}
	if ua == "" {
		ua = "Unknown"
	}

	payload := map[string]any{
		"resource":   resource,
		"ip":         ip,
		"user_agent": ua,
		"device":     ClassifyUserAgent(r.Header.Get("User-Agent")).Map(),
		"fields":     Redact(fields),
	}
	if ref := r.Referer(); ref != "" {
		payload["referer"] = ref
	}
	return model.Record{Source: ip, Payload: payload}
}

func readFields(r *http.Request) (map[string]any, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		fields := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && err != io.EOF {
			return nil, err
		}
		return fields, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(MaxBodyBytes); err != nil {
			return nil, err
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
	}

	fields := make(map[string]any, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) == 1 {
			fields[k] = vs[0]
			continue
		}
		fields[k] = append([]string(nil), vs...)
	}
	return fields, nil
}

// Redact returns a copy of fields with sensitive values masked at any depth.
func Redact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitive(k) {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e)
		}
		return out
	}
	return v
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
