package query

import (
	"TxLedger/internal/event"
	"TxLedger/internal/ledger"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// LiveHandler serves balances of a run still in progress:
//
//	GET /accounts           all accounts, ordered by client
//	GET /accounts/{client}  one account
//
// Balances are read per account, so a listing is not a point-in-time cut
// across clients.
type LiveHandler struct {
	store  *ledger.Store
	logger zerolog.Logger
}

func NewLiveHandler(store *ledger.Store, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{store: store, logger: logger}
}

// Register mounts the account routes on mux.
func (h *LiveHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /accounts", h.listAccounts)
	mux.HandleFunc("GET /accounts/{client}", h.getAccount)
}

func (h *LiveHandler) listAccounts(w http.ResponseWriter, r *http.Request) {
	resp := AccountsResponse{Live: true, Accounts: []AccountResponse{}}
	for _, a := range h.store.Accounts.Snapshot() {
		resp.Accounts = append(resp.Accounts, NewAccountResponse(a))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *LiveHandler) getAccount(w http.ResponseWriter, r *http.Request) {
	client, err := strconv.ParseUint(r.PathValue("client"), 10, 16)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "client must be an integer in 0..65535"})
		return
	}

	a, ok := h.store.Accounts.Peek(event.ClientID(client))
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, NewAccountResponse(a))
}

func (h *LiveHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug().Err(err).Msg("write response")
	}
}
