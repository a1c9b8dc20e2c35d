package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"gridmdp/grid_world"
	"gridmdp/plots"
	"gridmdp/reinforcement"
	"gridmdp/server/cell_views"
	"gridmdp/server/fastview"
	"gridmdp/server/root_view"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const shutdownGracePeriod = 5 * time.Second

// Server serves live views of a single solve: the main page, its websocket, and the
// convergence chart. The views' update channel is shared, so one websocket client
// is served at a time.
type Server struct {
	addr      string
	world     *grid_world.GridWorld
	rootView  *root_view.RootView
	snapshots chan reinforcement.Snapshot
	router    *mux.Router

	mu     sync.RWMutex
	latest reinforcement.Snapshot
	// progress accumulates published sweeps until the final result is set.
	progress *reinforcement.Result
}

// NewServer builds the views over world and the routes serving them.
func NewServer(
	ctx context.Context,
	addr string,
	world *grid_world.GridWorld,
) (*Server, error) {
	snapshots := make(chan reinforcement.Snapshot)
	rootView, err := root_view.NewRootView(ctx, world, snapshots)
	if err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}

	server := &Server{
		addr:      addr,
		world:     world,
		rootView:  rootView,
		snapshots: snapshots,
		progress:  &reinforcement.Result{RunID: uuid.New()},
	}

	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket)
	router.HandleFunc("/convergence", server.serveConvergence).Methods(http.MethodGet)
	server.router = router

	return server, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Publish records a snapshot and sends it to the views, blocking until they
// accept it or ctx is done.
func (server *Server) Publish(ctx context.Context, snap reinforcement.Snapshot) {
	server.mu.Lock()
	server.latest = snap
	server.progress.Sweeps = snap.Sweep
	server.progress.MaxError = snap.MaxError
	server.progress.Values = snap.Values
	server.progress.Errors = append(server.progress.Errors, snap.MaxError)
	server.mu.Unlock()

	select {
	case server.snapshots <- snap:
	case <-ctx.Done():
	}
}

// SetResult replaces the published progress with the result of a completed solve.
func (server *Server) SetResult(res *reinforcement.Result) {
	server.mu.Lock()
	defer server.mu.Unlock()
	server.progress = res
}

// Serve listens until ctx is done, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) (err error) {
	srv := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Println("shutdown:", shutdownErr)
		}
	}()

	log.Printf("serving views of a %dx%d grid on %s\n", server.world.Size(), server.world.Size(), server.addr)
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// serveWebsocket publishes view updates to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient(server.rootView.Updates(), w, r)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}

	if err = cli.Sync(); err != nil {
		log.Println("sync:", err)
	}
}

// serveIndex renders the main page from the latest snapshot.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	server.mu.RLock()
	cells := cell_views.Convert(server.world, server.latest)
	server.mu.RUnlock()

	page := &bytes.Buffer{}
	if err := renderTemplate(page, server.rootView, cells); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = page.WriteTo(w)
}

// serveConvergence renders the max error per sweep published so far.
func (server *Server) serveConvergence(w http.ResponseWriter, r *http.Request) {
	server.mu.RLock()
	res := *server.progress
	res.Errors = append([]float64(nil), server.progress.Errors...)
	server.mu.RUnlock()

	page := &bytes.Buffer{}
	if err := plots.RenderConvergence(page, &res); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = page.WriteTo(w)
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
