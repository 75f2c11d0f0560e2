package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// EventsPath is the SSE endpoint the injected reload client listens on.
const EventsPath = "/__sluice/events"

const reloadSnippet = `<script>(function(){var es=new EventSource("` + EventsPath + `");` +
	`es.addEventListener("reload",function(){location.reload();});})();</script>`

// InjectReload inserts the live-reload client before the last </body>, or
// appends it when the document has none.
func InjectReload(html []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if idx < 0 {
		return append(append([]byte(nil), html...), reloadSnippet...)
	}
	out := make([]byte, 0, len(html)+len(reloadSnippet))
	out = append(out, html[:idx]...)
	out = append(out, reloadSnippet...)
	return append(out, html[idx:]...)
}

// DevServer serves a directory with live reload, plus the JSON API when API is set.
type DevServer struct {
	BaseDir string
	Host    string
	Port    int
	Streams *StreamManager
	API     *Server
	Logger  *slog.Logger

	mu   sync.Mutex
	addr string
}

// NewDevServer creates a dev server for baseDir. A zero port picks a free one.
func NewDevServer(baseDir, host string, port int, streams *StreamManager) *DevServer {
	if streams == nil {
		streams = NewStreamManager(nil)
	}
	return &DevServer{BaseDir: baseDir, Host: host, Port: port, Streams: streams, Logger: slog.Default()}
}

// Handler returns the router: API routes first, then the reload stream, then static files.
func (d *DevServer) Handler() http.Handler {
	r := chi.NewRouter()
	if d.API != nil {
		d.API.Mount(r)
	}
	r.Get(EventsPath, d.events)
	r.Get("/*", d.static)
	return enableCORS(r)
}

// Reload tells every connected browser that path changed.
func (d *DevServer) Reload(path string) {
	d.log().Info("Reloading browsers", "path", path, "clients", d.Streams.Subscribers(TopicReload))
	d.Streams.Broadcast(TopicReload, path)
}

// Addr returns the bound address once listening.
func (d *DevServer) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// URL returns the address as an http URL.
func (d *DevServer) URL() string {
	return "http://" + d.Addr()
}

// ListenAndServe binds, calls ready, and serves until ctx is cancelled.
func (d *DevServer) ListenAndServe(ctx context.Context, ready func()) error {
	if _, err := os.Stat(d.BaseDir); err != nil {
		return fmt.Errorf("failed to serve %s: %w", d.BaseDir, err)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(d.Host, strconv.Itoa(d.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	d.mu.Lock()
	d.addr = ln.Addr().String()
	d.mu.Unlock()

	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	d.log().Info("Dev server listening", "url", d.URL(), "dir", d.BaseDir)
	if ready != nil {
		ready()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dev server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("dev server shutdown: %w", err)
	}
	d.log().Info("Dev server stopped")
	return nil
}

func (d *DevServer) log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *DevServer) static(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(d.BaseDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		name = filepath.Join(name, "index.html")
		info, err = os.Stat(name)
	}
	if err == nil && !info.IsDir() && strings.EqualFold(filepath.Ext(name), ".html") {
		data, err := os.ReadFile(name)
		if err != nil {
			http.Error(w, "failed to read file", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(InjectReload(data))
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.FileServer(http.Dir(d.BaseDir)).ServeHTTP(w, r)
}

func (d *DevServer) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := d.Streams.Subscribe(TopicReload)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: reload\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
