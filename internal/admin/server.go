// Package admin serves a read-only operator API over committed indexer state.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/pipeline"
	"github.com/emperorhan/fa-indexer/internal/pipeline/identity"
	"github.com/emperorhan/fa-indexer/internal/store"
)

const (
	// maxTypeTagLength bounds asset and coin type query parameters.
	maxTypeTagLength = 1024

	// Chain timestamps are stored without a zone.
	timestampLayout = "2006-01-02T15:04:05.999999"
)

// HealthReporter exposes the pipeline health snapshot.
type HealthReporter interface {
	Snapshot() pipeline.HealthSnapshot
}

type Server struct {
	processor string
	reader    store.StateReader
	health    HealthReporter
	logger    *slog.Logger
}

type ServerOption func(*Server)

func WithHealthReporter(h HealthReporter) ServerOption {
	return func(s *Server) { s.health = h }
}

func NewServer(processor string, reader store.StateReader, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		processor: processor,
		reader:    reader,
		logger:    logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the admin routes. Callers wrap it with rate limiting and
// access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/v1/status", s.handleStatus)
	mux.HandleFunc("GET /admin/v1/balances/{storage_id}", s.handleGetBalance)
	mux.HandleFunc("GET /admin/v1/owners/{owner}/balances", s.handleOwnerBalances)
	mux.HandleFunc("GET /admin/v1/assets", s.handleAssetMetadata)
	mux.HandleFunc("GET /admin/v1/supply", s.handleSupply)
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("admin query failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// addressParam standardizes a path address so lookups match stored keys.
func addressParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	addr, err := identity.StandardizeAddress(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return addr, true
}

func typeTagQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		writeError(w, http.StatusBadRequest, name+" query param required")
		return "", false
	}
	if len(v) > maxTypeTagLength {
		writeError(w, http.StatusBadRequest, name+" too long")
		return "", false
	}
	return v, true
}

type statusResponse struct {
	Processor          string                   `json:"processor"`
	LastSuccessVersion *int64                   `json:"last_success_version"`
	LastTransactionAt  *string                  `json:"last_transaction_timestamp,omitempty"`
	Health             *pipeline.HealthSnapshot `json:"health,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cp, err := s.reader.Checkpoint(r.Context(), s.processor)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := statusResponse{Processor: s.processor}
	if cp != nil {
		v := cp.LastSuccessVersion
		resp.LastSuccessVersion = &v
		if cp.LastTransactionTimestamp != nil {
			ts := cp.LastTransactionTimestamp.Format(timestampLayout)
			resp.LastTransactionAt = &ts
		}
	}
	if s.health != nil {
		snap := s.health.Snapshot()
		resp.Health = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

type balanceResponse struct {
	StorageID                string `json:"storage_id"`
	OwnerAddress             string `json:"owner_address"`
	AssetType                string `json:"asset_type"`
	Amount                   string `json:"amount"`
	IsPrimary                bool   `json:"is_primary"`
	IsFrozen                 bool   `json:"is_frozen"`
	IsDeleted                bool   `json:"is_deleted"`
	TokenStandard            string `json:"token_standard"`
	LastTransactionVersion   int64  `json:"last_transaction_version"`
	LastEventIndex           int64  `json:"last_event_index"`
	LastTransactionTimestamp string `json:"last_transaction_timestamp"`
}

func toBalanceResponse(b *model.CurrentBalance) balanceResponse {
	return balanceResponse{
		StorageID:                b.StorageID,
		OwnerAddress:             b.OwnerAddress,
		AssetType:                b.AssetType,
		Amount:                   b.Amount.String(),
		IsPrimary:                b.IsPrimary,
		IsFrozen:                 b.IsFrozen,
		IsDeleted:                b.IsDeleted,
		TokenStandard:            string(b.TokenStandard),
		LastTransactionVersion:   b.LastTransactionVersion,
		LastEventIndex:           b.LastEventIndex,
		LastTransactionTimestamp: b.LastTransactionTimestamp.Format(timestampLayout),
	}
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	storageID, ok := addressParam(w, r, "storage_id")
	if !ok {
		return
	}
	b, err := s.reader.GetBalance(r.Context(), storageID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "balance not found")
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(b))
}

func (s *Server) handleOwnerBalances(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	rows, err := s.reader.GetBalancesByOwner(r.Context(), owner)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]balanceResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toBalanceResponse(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type metadataResponse struct {
	AssetType              string  `json:"asset_type"`
	CreatorAddress         string  `json:"creator_address"`
	Name                   string  `json:"name"`
	Symbol                 string  `json:"symbol"`
	Decimals               int32   `json:"decimals"`
	IconURI                *string `json:"icon_uri,omitempty"`
	ProjectURI             *string `json:"project_uri,omitempty"`
	TokenStandard          string  `json:"token_standard"`
	IsTokenV2              *bool   `json:"is_token_v2,omitempty"`
	SupplyV2               *string `json:"supply_v2,omitempty"`
	MaximumV2              *string `json:"maximum_v2,omitempty"`
	LastTransactionVersion int64   `json:"last_transaction_version"`
}

func (s *Server) handleAssetMetadata(w http.ResponseWriter, r *http.Request) {
	assetType, ok := typeTagQuery(w, r, "asset_type")
	if !ok {
		return
	}
	m, err := s.reader.GetAssetMetadata(r.Context(), assetType)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	resp := metadataResponse{
		AssetType:              m.AssetType,
		CreatorAddress:         m.CreatorAddress,
		Name:                   m.Name,
		Symbol:                 m.Symbol,
		Decimals:               m.Decimals,
		IconURI:                m.IconURI,
		ProjectURI:             m.ProjectURI,
		TokenStandard:          string(m.TokenStandard),
		IsTokenV2:              m.IsTokenV2,
		LastTransactionVersion: m.LastTransactionVersion,
	}
	if m.SupplyV2 != nil {
		v := m.SupplyV2.String()
		resp.SupplyV2 = &v
	}
	if m.MaximumV2 != nil {
		v := m.MaximumV2.String()
		resp.MaximumV2 = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

type supplyResponse struct {
	CoinType             string `json:"coin_type"`
	CoinTypeHash         string `json:"coin_type_hash"`
	Supply               string `json:"supply"`
	TransactionVersion   int64  `json:"transaction_version"`
	TransactionEpoch     int64  `json:"transaction_epoch"`
	TransactionTimestamp string `json:"transaction_timestamp"`
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	coinType, ok := typeTagQuery(w, r, "coin_type")
	if !ok {
		return
	}
	sn, err := s.reader.GetLatestSupply(r.Context(), coinType)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if sn == nil {
		writeError(w, http.StatusNotFound, "supply not tracked")
		return
	}
	writeJSON(w, http.StatusOK, supplyResponse{
		CoinType:             sn.CoinType,
		CoinTypeHash:         sn.CoinTypeHash,
		Supply:               sn.Supply.String(),
		TransactionVersion:   sn.TransactionVersion,
		TransactionEpoch:     sn.TransactionEpoch,
		TransactionTimestamp: sn.TransactionTimestamp.Format(timestampLayout),
	})
}
