package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredBilling/pkg/config"
	"github.com/mcclellann/fredBilling/pkg/ledger"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/notify"
	"github.com/mcclellann/fredBilling/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	message message.Config
}

func NewServer(s store.Storage, msg message.Config) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s),
		storage: s,
		message: msg,
	}
}

// Router registers every endpoint.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/contracts", s.listContractsHandler).Methods("GET")
	router.HandleFunc("/contracts", s.createContractHandler).Methods("POST")
	router.HandleFunc("/contracts/{id}", s.getContractHandler).Methods("GET")
	router.HandleFunc("/contracts/{id}", s.updateContractHandler).Methods("PUT")
	router.HandleFunc("/contracts/{id}", s.deleteContractHandler).Methods("DELETE")
	router.HandleFunc("/contracts/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/contracts/{id}/state", s.contractStateHandler).Methods("GET")
	router.HandleFunc("/contracts/{id}/message", s.contractMessageHandler).Methods("GET")

	router.HandleFunc("/reports/summary", s.reportSummaryHandler).Methods("GET")
	router.HandleFunc("/reports/export.xlsx", s.reportExportHandler).Methods("GET")
	router.HandleFunc("/schedule/preview", s.schedulePreviewHandler).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Contract not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrContractNotActive), errors.Is(err, store.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Msg("Request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func contractID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid contract ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) createContractHandler(w http.ResponseWriter, r *http.Request) {
	var req ledger.ContractInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := s.ledger.CreateContract(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getContractHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}

	c, err := s.ledger.GetContract(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) listContractsHandler(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.ledger.GetAllContracts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contracts)
}

func (s *Server) updateContractHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}

	var upd ledger.ContractUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := s.ledger.UpdateContract(id, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteContractHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteContract(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}

	var req ledger.PaymentInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := s.ledger.RecordPayment(id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) contractStateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}

	c, st, err := s.ledger.ResolveContract(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contract": c,
		"state":    st,
	})
}

func (s *Server) contractMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}

	c, st, err := s.ledger.ResolveContract(id)
	if err != nil {
		writeError(w, err)
		return
	}
	data, due := message.FromState(c, st)
	text := ""
	if due {
		text = message.Compose(data, s.message)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"due":     due,
		"phone":   c.ClientPhone,
		"message": text,
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logger")
	}

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SQLite store")
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, cfg.MessageConfig())

	var sender notify.Sender = notify.LogSender{}
	if cfg.WebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.WebhookURL)
	}
	dispatcher := notify.NewDispatcher(sqliteStore, sender, cfg.MessageConfig(), cfg.ReminderDaysBefore)

	jobs, err := dispatcher.Start(cfg.ReminderCron)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule reminders")
	}
	_, err = jobs.AddFunc(cfg.RefreshCron, func() {
		batchLog := logger.WithComponent("batch")
		batchLog.Info().Msg("Running balance refresh...")
		fixed := server.ledger.RefreshBalances()
		batchLog.Info().Int("fixed", fixed).Msg("Balance refresh complete.")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule balance refresh")
	}
	defer jobs.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	log.Info().Str("addr", httpServer.Addr).Msg("Server starting")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}
