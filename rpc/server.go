// Package rpc serves spec.md §6's read API: GET /blocks and
// GET /transactions, grounded on tolelom-tolchain/rpc/server.go's
// Server shape (synchronous bind, background Serve, graceful Stop) with
// the router switched from http.ServeMux to httprouter, the router
// Dedenwrg-autonity's own read API uses.
package rpc

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/corvidium/bft/chain"
)

// Server is the node's read-only HTTP API.
type Server struct {
	handler *Handler
	srv     *http.Server
	ln      net.Listener
}

// NewServer builds a Server bound to addr, serving from c.
func NewServer(addr string, c *chain.Chain) *Server {
	h := &Handler{chain: c}
	router := httprouter.New()
	router.GET("/blocks", h.getBlocks)
	router.GET("/transactions", h.getTransactions)

	return &Server{
		handler: h,
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start binds the listener synchronously, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("rpc: server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, useful when Start was called
// with a ":0" port.
func (s *Server) Addr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	return nil
}

// Stop gracefully shuts down the server, waiting up to 5 seconds for
// in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("rpc: write response: %v", err)
	}
}
