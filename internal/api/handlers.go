package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/bill-itemizer/internal/archive"
	"github.com/zombor/bill-itemizer/internal/claim"
	"github.com/zombor/bill-itemizer/internal/common"
)

const (
	maxRequestBytes = 1 << 20
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// processClaimRequest is the body of POST /api/claims
type processClaimRequest struct {
	ClaimID string   `json:"claim_id"`
	Links   []string `json:"links"`
}

// claimSummary is one entry of GET /api/claims
type claimSummary struct {
	ClaimID     string             `json:"claim_id"`
	Status      claim.ResultStatus `json:"status"`
	FinalBillID string             `json:"final_bill_id,omitempty"`
	ErrorCode   string             `json:"error_code,omitempty"`
	Documents   int                `json:"documents"`
	ArchivedAt  time.Time          `json:"archived_at"`
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeError writes a JSON error body with CORS headers set
func writeError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", "error", err)
	}
}

// lookupError maps archive lookups onto 404 or 500
func (s *Server) lookupError(w http.ResponseWriter, what, id string, err error) {
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, what+" not found", http.StatusNotFound)
		return
	}
	s.logger.Error("Error reading archive", "id", id, "error", err)
	writeError(w, "Internal server error", http.StatusInternalServerError)
}

// handleProcessClaim runs the pipeline for the posted claim and archives the
// run whatever its outcome
func (s *Server) handleProcessClaim(w http.ResponseWriter, r *http.Request) {
	var req processClaimRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ClaimID = strings.TrimSpace(req.ClaimID)
	if req.ClaimID == "" {
		writeError(w, claim.ErrMissingClaimID.Error(), http.StatusBadRequest)
		return
	}

	result := s.processor.ProcessClaim(r.Context(), req.ClaimID, req.Links)

	if _, err := s.runs.SaveResult(result); err != nil {
		s.logger.Error("Error archiving claim run", "claim_id", req.ClaimID, "error", err)
		writeError(w, "Error archiving claim run", http.StatusInternalServerError)
		return
	}
	if s.artifacts != nil {
		if _, err := s.artifacts.Write(result.ClaimID, result.Outputs); err != nil {
			s.logger.Error("Error writing artifacts", "claim_id", req.ClaimID, "error", err)
			writeError(w, "Error writing artifacts", http.StatusInternalServerError)
			return
		}
	}

	code := http.StatusOK
	if result.Status != claim.ResultSuccess {
		code = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, code, result)
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	records, err := s.runs.ListResults()
	if err != nil {
		s.logger.Error("Error listing claims", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	summaries := make([]claimSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, claimSummary{
			ClaimID:     rec.Result.ClaimID,
			Status:      rec.Result.Status,
			FinalBillID: rec.Result.FinalBillID,
			ErrorCode:   rec.Result.ErrorCode,
			Documents:   len(rec.Result.Documents),
			ArchivedAt:  rec.ArchivedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.runs.GetResult(id)
	if err != nil {
		s.lookupError(w, "Claim", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.runs.FindByBillID(id)
	if err != nil {
		s.lookupError(w, "Bill", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record.Result.Outputs.FinalBill)
}

// handleExportItems returns the item list of a successful run as XLSX
func (s *Server) handleExportItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.runs.GetResult(id)
	if err != nil {
		s.lookupError(w, "Claim", id, err)
		return
	}
	if record.Result.Outputs == nil || record.Result.Outputs.BillItemList == nil {
		writeError(w, "Claim has no bill items", http.StatusNotFound)
		return
	}

	data, err := archive.ExportItemsXLSX(record.Result.Outputs.BillItemList)
	if err != nil {
		s.logger.Error("Error exporting items", "claim_id", id, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_items.xlsx"`, record.Result.FinalBillID))
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
