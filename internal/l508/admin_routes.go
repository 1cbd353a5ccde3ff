package l508

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/l508/internal/httputil"
)

// AttachAdminRoutes attaches the controller's debug endpoints to mux under
// /debug/. These routes are accessible only over localhost/via Tailscale
// and are not publicly accessible.
func (c *Controller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("l508", "L508 connection status", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, c.Snapshot())
	})

	debug.HandleSilentFunc("l508/connect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		if err := c.Connect(r.Context()); err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSONOK(w, c.Snapshot())
	})

	debug.HandleSilentFunc("l508/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		c.Disconnect()
		httputil.WriteJSONOK(w, c.Snapshot())
	})

	debug.HandleSilentFunc("l508/cycle-light", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		if err := c.CycleLightMode(r.Context()); err != nil {
			httputil.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	// Server-Sent Events stream of state updates.
	debug.HandleSilentFunc("l508/tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, updates := c.Subscribe()
		defer c.Unsubscribe(id)

		// Send the current state first so a new client does not wait for
		// the next frame.
		if err := writeEvent(w, Update{Snapshot: c.Snapshot()}); err != nil {
			return
		}
		flusher.Flush()

		for {
			select {
			case u, ok := <-updates:
				if !ok {
					return
				}
				if err := writeEvent(w, u); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}

func writeEvent(w http.ResponseWriter, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
