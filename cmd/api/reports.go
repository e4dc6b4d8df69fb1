package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcclellann/fredBilling/pkg/ledger"
	"github.com/mcclellann/fredBilling/pkg/report"
	"github.com/rs/zerolog/log"
)

func filterFromQuery(r *http.Request) (report.Filter, error) {
	q := r.URL.Query()
	return report.ParseFilter(q.Get("payment_type"), q.Get("from"), q.Get("to"))
}

func (s *Server) reportSummaryHandler(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rep, err := s.ledger.Report(f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep.Totals)
}

func (s *Server) reportExportHandler(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rep, err := s.ledger.Report(f)
	if err != nil {
		writeError(w, err)
		return
	}

	var renderer report.Renderer = report.XLSXRenderer{}
	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="relatorio-%s.xlsx"`, rep.GeneratedAt.Format("2006-01-02")))
	if err := renderer.Render(w, rep); err != nil {
		log.Error().Err(err).Msg("Error rendering report export")
	}
}

func (s *Server) schedulePreviewHandler(w http.ResponseWriter, r *http.Request) {
	var req ledger.ContractInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := ledger.PreviewSchedule(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
