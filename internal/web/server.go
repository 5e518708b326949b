package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"flightreplay/internal/flightlog"
	"flightreplay/internal/playback"
	"flightreplay/internal/render"
)

//go:embed assets/*
var embeddedAssets embed.FS

// Player is the playback session as seen by the HTTP layer.
// Implementations must be safe to call concurrently.
type Player interface {
	Open(path string) error
	OpenReader(name string, r io.Reader) error
	Start() error
	Stop()
	Tick() error
	Seek(index int) error
	SeekSlot(clock string) error
	Slots() []string
	Frame() (*render.MapImage, error)
	FrameHTML() ([]byte, error)
	Snapshot() playback.Snapshot
}

// Actions are optional hooks into the desktop side of the process.
type Actions struct {
	// PickFile shows a native open dialog. Nil disables the dialog.
	PickFile func(ctx context.Context) (string, error)
	// Exit asks the process to shut down.
	Exit func()
}

// Uploads larger than this are rejected.
const maxUploadBytes = 256 << 20

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("{\"ok\":true}\n"))
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// playerError maps session errors to HTTP status codes.
func playerError(w http.ResponseWriter, err error) {
	var pe *flightlog.ParseError
	switch {
	case errors.As(err, &pe):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, playback.ErrNoLog), errors.Is(err, playback.ErrNoFrame):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, render.ErrIndexRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func Handler(player Player, status *Status, settings SettingsStore, logs *LogBuffer, actions Actions) http.Handler {
	if status == nil {
		status = NewStatus()
	}
	mux := http.NewServeMux()

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		// Should never happen; keep server functional with API only.
		assetsFS = nil
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC(), player.Snapshot()))
	})

	mux.HandleFunc("/api/frame", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		img, err := player.Frame()
		if err != nil {
			playerError(w, err)
			return
		}
		writeJSON(w, img)
	})

	// The current frame as a standalone page, for embedding in a viewport.
	mux.HandleFunc("/map", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		b, err := player.FrameHTML()
		if err != nil {
			playerError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})

	mux.HandleFunc("/api/open", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		ct := strings.TrimSpace(r.Header.Get("Content-Type"))

		if strings.HasPrefix(ct, "multipart/form-data") {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
			f, hdr, err := r.FormFile("file")
			if err != nil {
				http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusBadRequest)
				return
			}
			defer f.Close()
			if err := player.OpenReader(filepath.Base(hdr.Filename), f); err != nil {
				playerError(w, err)
				return
			}
			writeJSON(w, player.Snapshot())
			return
		}

		var req struct {
			Path string `json:"path"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
			return
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
				return
			}
		}

		p := strings.TrimSpace(req.Path)
		if p == "" {
			if actions.PickFile == nil {
				http.Error(w, "path is required", http.StatusBadRequest)
				return
			}
			p, err = actions.PickFile(r.Context())
			if err != nil {
				http.Error(w, fmt.Sprintf("file dialog: %v", err), http.StatusBadRequest)
				return
			}
		}
		if err := player.Open(p); err != nil {
			playerError(w, err)
			return
		}
		writeJSON(w, player.Snapshot())
	})

	mux.HandleFunc("/api/start", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if err := player.Start(); err != nil {
			playerError(w, err)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		player.Stop()
		writeOK(w)
	})

	mux.HandleFunc("/api/step", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if err := player.Tick(); err != nil {
			playerError(w, err)
			return
		}
		writeJSON(w, player.Snapshot())
	})

	mux.HandleFunc("/api/seek", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		var req struct {
			Index *int   `json:"index"`
			Slot  string `json:"slot"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
			return
		}
		var err error
		switch {
		case req.Index != nil && req.Slot != "":
			http.Error(w, "index and slot are exclusive", http.StatusBadRequest)
			return
		case req.Index != nil:
			err = player.Seek(*req.Index)
		case req.Slot != "":
			err = player.SeekSlot(req.Slot)
		default:
			http.Error(w, "index or slot is required", http.StatusBadRequest)
			return
		}
		if errors.Is(err, playback.ErrNoLog) {
			playerError(w, err)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, player.Snapshot())
	})

	mux.HandleFunc("/api/slots", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		slots := player.Slots()
		if slots == nil {
			slots = []string{}
		}
		writeJSON(w, struct {
			Slots []string `json:"slots"`
		}{Slots: slots})
	})

	mux.HandleFunc("/api/exit", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if actions.Exit == nil {
			http.Error(w, "exit unavailable", http.StatusNotFound)
			return
		}
		writeOK(w)
		actions.Exit()
	})

	// Settings API (read/write YAML config). Changes are applied immediately.
	mux.Handle("/api/settings", settings.Handler())

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.Handle("/api/about", AboutHandler())

	if assetsFS != nil {
		fileServer := http.FileServer(http.FS(assetsFS))
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			fileServer.ServeHTTP(w, r)
		})))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			if path.Dir(r.URL.Path) == "/api" || path.Dir(r.URL.Path) == "/assets" {
				http.NotFound(w, r)
				return
			}
		}

		if assetsFS == nil {
			snap := player.Snapshot()
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>Flight Replay</title></head><body>")
			_, _ = fmt.Fprintf(w, "<h1>Flight Replay</h1>")
			_, _ = fmt.Fprintf(w, "<p>Viewer is unavailable. Use <a href=\"/map\">/map</a>.</p>")
			_, _ = fmt.Fprintf(w, "<pre>samples=%d\nflights=%d\nindex=%d</pre>", snap.Samples, snap.Flights, snap.Index)
			_, _ = fmt.Fprintf(w, "</body></html>")
			return
		}

		b, err := fs.ReadFile(assetsFS, "index.html")
		if err != nil {
			http.Error(w, "ui unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})

	return mux
}

// Serve runs the HTTP server until ctx is done. ready, if non-nil, is
// called once the listener is bound.
func Serve(ctx context.Context, listenAddr string, handler http.Handler, ready func(addr string)) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	ln, err := listen(listenAddr)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}
