package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fundchain/services/fundd/ledger"
)

// Credit mints raw tokens to an account. It exists for devnets where no
// external token rail funds participants.
func (s *Server) Credit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Account string `json:"account"`
		Token   string `json:"token"`
		Amount  uint64 `json:"amount,string"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAccount(req.Account, "account")
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	tokenAddr, err := parseAccount(req.Token, "token")
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	if req.Amount == 0 {
		s.fail(w, r, badRequest("amount must be positive"))
		return
	}
	s.command(w, r, ledger.Command{Name: "credit", Caller: caller}, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		if err := tx.Bank.Mint(tokenAddr, to, req.Amount); err != nil {
			return nil, err
		}
		balance, err := tx.Bank.Balance(tokenAddr, to)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"account": account(to),
			"token":   token(tokenAddr),
			"balance": strconv.FormatUint(balance, 10),
		}, nil
	})
}

// GetPauses lists paused modules.
func (s *Server) GetPauses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"paused": s.pauses.Modules()})
}

// SetPause toggles a module's pause flag.
func (s *Server) SetPause(w http.ResponseWriter, r *http.Request) {
	module := strings.TrimSpace(chi.URLParam(r, "module"))
	if module == "" {
		s.fail(w, r, badRequest("module required"))
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.pauses.Set(module, req.Paused)
	s.logger.Warn("module pause updated", "module", module, "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]any{"paused": s.pauses.Modules()})
}

// ReloadRegistry re-reads the fee and role registry from disk.
func (s *Server) ReloadRegistry(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil || strings.TrimSpace(s.cfg.RegistryPath) == "" {
		writeError(w, http.StatusNotImplemented, "registry_disabled", "registry not configured")
		return
	}
	if err := s.registry.Reload(s.cfg.RegistryPath); err != nil {
		s.fail(w, r, badRequest("reload registry: %v", err))
		return
	}
	s.logger.Info("registry reloaded", "path", s.cfg.RegistryPath)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
