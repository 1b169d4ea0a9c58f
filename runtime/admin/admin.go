// Package admin is a read-only HTTP introspection surface over a
// running Runtime: roster, shared-value-store keys, join-queue depths
// and a liveness probe. It is adapted from the teacher's adapter.HTTPServer
// (itself a chi.Router wrapped in a start/stop/wait lifecycle) with the
// gnet/layer4 event-loop listener it used dropped in favor of a plain
// net.Listener, since OpenROBO has no use for a multi-core event-loop TCP
// listener anywhere in its design.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi"

	"github.com/openrobo/openrobo/runtime"
)

// Server is a chi.Router bound to an address, with the same
// Start/AsyncStart/Wait/Shutdown lifecycle shape as the teacher's
// adapter.HTTPServer.
type Server struct {
	Router chi.Router

	httpSrv  *http.Server
	listener net.Listener
	err      error
	wg       sync.WaitGroup
}

// New builds the admin router for rt: GET /healthz, /roster,
// /store/keys, /queues.
func New(rt *runtime.Runtime) *Server {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/roster", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, rt.Table().Entries())
	})
	r.Get("/store/keys", func(w http.ResponseWriter, req *http.Request) {
		snap, err := rt.Snapshot(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, snap.StoreKeys)
	})
	r.Get("/queues", func(w http.ResponseWriter, req *http.Request) {
		snap, err := rt.Snapshot(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]int{"returnList": snap.ReturnDepth, "waitList": snap.WaitDepth})
	})
	return &Server{Router: r}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.Encode(v)
}

// Start binds addr and serves until ctx is cancelled or the listener
// errors.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.Router}

	go func() {
		<-ctx.Done()
		s.httpSrv.Close()
	}()

	err = s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// AsyncStart runs Start in its own goroutine, recording its error for Wait.
func (s *Server) AsyncStart(ctx context.Context, addr string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.err = s.Start(ctx, addr)
	}()
}

// Wait blocks until the server started by AsyncStart exits.
func (s *Server) Wait() error {
	s.wg.Wait()
	return s.err
}

// Shutdown closes the listener and idle connections and waits for
// in-flight requests to finish, until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
