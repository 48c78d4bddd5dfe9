// Package server exposes a small JSON API over the swap history.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/config"
	"github.com/walletpilot/walletpilot/db"
)

type Server struct {
	cfg   *config.Config
	store *db.Store
}

func New(cfg *config.Config, store *db.Store) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/swaps", s.handleSwaps)
	mux.HandleFunc("/api/swaps/", s.handleSwapDetail)
	mux.HandleFunc("/api/health", s.handleHealth)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	log.Printf("server: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSwaps(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListRecentOrders(r.Context(), 50)
	if err != nil {
		log.Printf("server: listing orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	type orderView struct {
		db.Order
		SrcChainName string `json:"src_chain_name"`
		DstChainName string `json:"dst_chain_name"`
		ExplorerURL  string `json:"explorer_url,omitempty"`
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		v := orderView{
			Order:        o,
			SrcChainName: chains.Name(o.SrcChainID),
			DstChainName: chains.Name(o.DstChainID),
		}
		if o.SwapTx != "" {
			v.ExplorerURL = chains.ExplorerTxURL(o.SrcChainID, o.SwapTx)
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSwapDetail(w http.ResponseWriter, r *http.Request) {
	swapID := strings.TrimPrefix(r.URL.Path, "/api/swaps/")
	if swapID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing swap id"})
		return
	}

	order, err := s.store.GetOrder(r.Context(), swapID)
	if err != nil {
		log.Printf("server: loading order %s: %v", swapID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if order == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}
