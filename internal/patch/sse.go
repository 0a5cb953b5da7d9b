package patch

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func WriteSSE(w http.ResponseWriter, p Patch) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if p.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", p.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: patch\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

func WriteSSEComment(w http.ResponseWriter, comment string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", comment)
	return err
}
