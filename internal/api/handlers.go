package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mr-tron/base58"

	"token-swap-escrow/internal/auth"
	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/escrow"
	"token-swap-escrow/internal/storage"
)

// initiateRequest is the JSON body for POST /v1/swaps. Signatures are
// base58-encoded ed25519 signatures over the initiate payload.
type initiateRequest struct {
	PartyA      string `json:"party_a"`
	PartyB      string `json:"party_b"`
	MintA       string `json:"mint_a"`
	MintB       string `json:"mint_b"`
	AmountA     uint64 `json:"amount_a"`
	AmountB     uint64 `json:"amount_b"`
	SourceA     string `json:"source_a"`
	SourceB     string `json:"source_b"`
	DestA       string `json:"dest_a"`
	DestB       string `json:"dest_b"`
	Deadline    int64  `json:"deadline"`
	GracePeriod int64  `json:"grace_period"`
	SigA        string `json:"sig_a"`
	SigB        string `json:"sig_b"`
}

type approveRequest struct {
	SigA string `json:"sig_a"`
	SigB string `json:"sig_b"`
}

type extendRequest struct {
	NewDeadline int64  `json:"new_deadline"`
	Party       string `json:"party"`
	Sig         string `json:"sig"`
}

// swapResponse is the JSON shape of a swap record.
type swapResponse struct {
	ID          string `json:"id"`
	PartyA      string `json:"party_a"`
	PartyB      string `json:"party_b"`
	MintA       string `json:"mint_a"`
	MintB       string `json:"mint_b"`
	AmountA     uint64 `json:"amount_a"`
	AmountB     uint64 `json:"amount_b"`
	SourceA     string `json:"source_a"`
	SourceB     string `json:"source_b"`
	DestA       string `json:"dest_a"`
	DestB       string `json:"dest_b"`
	CustodyA    string `json:"custody_a"`
	CustodyB    string `json:"custody_b"`
	Deadline    int64  `json:"deadline"`
	GracePeriod int64  `json:"grace_period"`
	State       string `json:"state"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// eventResponse is the JSON shape of a swap event, shared by the history
// endpoint and the WebSocket feed.
type eventResponse struct {
	SwapID    string `json:"swap_id"`
	Kind      string `json:"kind"`
	PartyA    string `json:"party_a"`
	PartyB    string `json:"party_b"`
	AmountA   uint64 `json:"amount_a"`
	AmountB   uint64 `json:"amount_b"`
	Deadline  int64  `json:"deadline"`
	Timestamp int64  `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toSwapResponse(rec *domain.SwapRecord) swapResponse {
	return swapResponse{
		ID:          rec.ID,
		PartyA:      string(rec.PartyA),
		PartyB:      string(rec.PartyB),
		MintA:       rec.MintA,
		MintB:       rec.MintB,
		AmountA:     rec.AmountA,
		AmountB:     rec.AmountB,
		SourceA:     rec.SourceA,
		SourceB:     rec.SourceB,
		DestA:       rec.DestA,
		DestB:       rec.DestB,
		CustodyA:    rec.CustodyA,
		CustodyB:    rec.CustodyB,
		Deadline:    rec.Deadline,
		GracePeriod: rec.GracePeriod,
		State:       rec.State,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	sigA, err := decodeSig(req.SigA)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sig_a: "+err.Error())
		return
	}
	sigB, err := decodeSig(req.SigB)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sig_b: "+err.Error())
		return
	}

	rec, err := s.engine.Initiate(r.Context(), escrow.InitiateRequest{
		PartyA:      domain.Address(req.PartyA),
		PartyB:      domain.Address(req.PartyB),
		MintA:       req.MintA,
		MintB:       req.MintB,
		AmountA:     req.AmountA,
		AmountB:     req.AmountB,
		SourceA:     req.SourceA,
		SourceB:     req.SourceB,
		DestA:       req.DestA,
		DestB:       req.DestB,
		Deadline:    req.Deadline,
		GracePeriod: req.GracePeriod,
		SigA:        sigA,
		SigB:        sigB,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSwapResponse(rec))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	sigA, err := decodeSig(req.SigA)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sig_a: "+err.Error())
		return
	}
	sigB, err := decodeSig(req.SigB)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sig_b: "+err.Error())
		return
	}

	rec, err := s.engine.Approve(r.Context(), escrow.ApproveRequest{
		SwapID: r.PathValue("id"),
		SigA:   sigA,
		SigB:   sigB,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSwapResponse(rec))
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Expire(r.Context(), escrow.ExpireRequest{
		SwapID: r.PathValue("id"),
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSwapResponse(rec))
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	sig, err := decodeSig(req.Sig)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sig: "+err.Error())
		return
	}

	rec, err := s.engine.ExtendDeadline(r.Context(), escrow.ExtendDeadlineRequest{
		SwapID:      r.PathValue("id"),
		NewDeadline: req.NewDeadline,
		Party:       domain.Address(req.Party),
		Sig:         sig,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSwapResponse(rec))
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Fetch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSwapResponse(rec))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	party := r.URL.Query().Get("party")
	if party == "" {
		writeError(w, http.StatusBadRequest, "party query parameter is required")
		return
	}

	recs, err := s.engine.FetchByParty(r.Context(), domain.Address(party))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	out := make([]swapResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toSwapResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventStore == nil {
		writeError(w, http.StatusNotFound, "event history not configured")
		return
	}

	id := r.PathValue("id")

	// 404 for unknown swaps rather than an empty list.
	if _, err := s.engine.Fetch(r.Context(), id); err != nil {
		s.writeEngineError(w, err)
		return
	}

	events, err := s.eventStore.GetBySwapID(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			SwapID:    e.SwapID,
			Kind:      e.Kind,
			PartyA:    string(e.PartyA),
			PartyB:    string(e.PartyB),
			AmountA:   e.AmountA,
			AmountB:   e.AmountB,
			Deadline:  e.Deadline,
			Timestamp: e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeSig decodes a base58 signature field.
func decodeSig(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("signature is required")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 signature: %w", err)
	}
	return raw, nil
}

// writeEngineError maps the escrow error taxonomy onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidDeadline),
		errors.Is(err, escrow.ErrInvalidGracePeriod),
		errors.Is(err, escrow.ErrDuplicateParty),
		errors.Is(err, escrow.ErrInvalidParty),
		errors.Is(err, escrow.ErrInvalidAccount):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, escrow.ErrNotPending),
		errors.Is(err, escrow.ErrDeadlinePassed),
		errors.Is(err, escrow.ErrDeadlineAlreadyPassed),
		errors.Is(err, escrow.ErrGracePeriodNotElapsed),
		errors.Is(err, escrow.ErrInvalidNewDeadline),
		errors.Is(err, storage.ErrDuplicateKey):
		status = http.StatusConflict
	case errors.Is(err, escrow.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.logger.Printf("internal error: %v", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
