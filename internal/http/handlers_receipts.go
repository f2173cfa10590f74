package http

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"taxfolio/internal/log"
)

const maxReceiptBytes = 5 << 20 // 5 MB per receipt

// handleReceiptUpload attaches a receipt image or PDF to a transaction.
// The file lands in the receipts dir under a generated name; only the
// path is stored on the row.
func (s *Server) handleReceiptUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		respondFormError(w, "Upload too large or malformed")
		return
	}

	ctx := r.Context()
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondFieldError(w, "Invalid transaction")
		return
	}
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		respondFieldError(w, "Transaction not found")
		return
	}

	file, header, err := r.FormFile("receipt")
	if err != nil {
		respondFieldError(w, "No receipt file provided")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".pdf", ".png", ".jpg", ".jpeg", ".heic":
	default:
		respondFieldError(w, "Unsupported receipt type (pdf, png, jpg, heic)")
		return
	}

	name := fmt.Sprintf("receipt-%d-%s%s", id, uuid.NewString(), ext)
	path := filepath.Join(s.receiptsDir, name)
	dst, err := os.Create(path)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "create receipt file failed", "path", path, "error", err)
		respondServerError(w, "Error saving receipt")
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, maxReceiptBytes)); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "write receipt failed", "path", path, "error", err)
		respondServerError(w, "Error saving receipt")
		return
	}

	notes := sanitizeInput(r.Form.Get("notes"))
	if notes == "" {
		notes = txn.Notes
	}
	if err := s.repo.UpdateTransactionNotes(ctx, id, notes, name); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "attach receipt failed",
			log.FieldTxnID, id, "error", err)
		respondServerError(w, "Error attaching receipt")
		return
	}
	s.invalidatePages()

	log.FromContext(ctx).InfoContext(ctx, "receipt attached",
		log.FieldTxnID, id, "file", name)

	_ = NewHTMXResponse().
		TriggerRecordsChanged(parseTaxYearParam(r).Label()).
		TriggerSuccessNotification("Receipt attached").
		Write(w)
}

// handleReceiptView serves a transaction's stored receipt. Files are
// addressed by transaction id so the stored path never crosses the wire.
func (s *Server) handleReceiptView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil || txn.ReceiptPath == "" {
		http.NotFound(w, r)
		return
	}

	// The stored name is generated server-side, but reject separators
	// anyway so a tampered row cannot escape the receipts dir.
	if strings.ContainsAny(txn.ReceiptPath, `/\`) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.receiptsDir, txn.ReceiptPath))
}
