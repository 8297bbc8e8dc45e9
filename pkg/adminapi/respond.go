package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/bytebufferpool"
)

// writeJSON marshals v into a pooled buffer before copying it to w, the way
// a request handler that has to serialize variable-size debug payloads
// (root snapshots, batch listings) should avoid round-tripping through an
// intermediate []byte from json.Marshal on every call.
func writeJSON(w http.ResponseWriter, status int, v any) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"marshal failed"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.B)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
