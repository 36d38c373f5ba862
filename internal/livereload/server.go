package livereload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	SocketPath = "/__livereload"
	ScriptPath = "/__livereload.js"
)

const clientScript = `(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var ws = new WebSocket(proto + location.host + "` + SocketPath + `");
    ws.onmessage = function (e) {
      try {
        if (JSON.parse(e.data).command === "reload") { location.reload(); }
      } catch (err) {}
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`

var scriptTag = []byte(`<script src="` + ScriptPath + `"></script>`)

// Server serves a directory with the reload client injected into html pages.
type Server struct {
	Root string
	Addr string
	Hub  *Hub
	Log  *zap.Logger
}

// NewServer serves root on the given port of every interface.
func NewServer(root string, port int, hub *Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Root: root, Addr: fmt.Sprintf(":%d", port), Hub: hub, Log: log}
}

// Handler routes the reload socket, the client script and the files.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(SocketPath, s.Hub)
	mux.HandleFunc(ScriptPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(clientScript))
	})
	files := http.FileServer(http.Dir(s.Root))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if s.serveHTML(w, r) {
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
	return mux
}

// serveHTML writes html pages with the client script added and reports
// whether it handled the request.
func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request) bool {
	p := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		p = path.Join(p, "index.html")
	}
	if path.Ext(p) != ".html" {
		return false
	}
	b, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(p)))
	if err != nil {
		return false
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(InjectClient(b))
	return true
}

// InjectClient adds the reload script before the last </body>, or at the
// end when there is none.
func InjectClient(doc []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if i < 0 {
		return append(append(append([]byte(nil), doc...), scriptTag...), '\n')
	}
	out := make([]byte, 0, len(doc)+len(scriptTag))
	out = append(out, doc[:i]...)
	out = append(out, scriptTag...)
	return append(out, doc[i:]...)
}

// Start listens on s.Addr and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then disconnects browsers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.Log.Info("serving", zap.String("root", s.Root), zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		s.Hub.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Hijacked websocket connections are not closed by Shutdown.
	s.Hub.Close()
	err := srv.Shutdown(shutdownCtx)
	if serr := <-errc; serr != nil && !errors.Is(serr, http.ErrServerClosed) && err == nil {
		err = serr
	}
	return err
}
