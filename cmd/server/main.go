package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/microdev1/debt-collection-agent/api/http"
	"github.com/microdev1/debt-collection-agent/internal/agent"
	"github.com/microdev1/debt-collection-agent/internal/call"
	"github.com/microdev1/debt-collection-agent/internal/config"
	"github.com/microdev1/debt-collection-agent/internal/dispatch"
	"github.com/microdev1/debt-collection-agent/internal/httpserver"
	"github.com/microdev1/debt-collection-agent/internal/intent"
	"github.com/microdev1/debt-collection-agent/internal/llm"
	"github.com/microdev1/debt-collection-agent/internal/monitor"
	"github.com/microdev1/debt-collection-agent/internal/policy"
	"github.com/microdev1/debt-collection-agent/internal/store"
	"github.com/microdev1/debt-collection-agent/internal/telephony"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	pol := policy.Default()
	if cfg.PolicyPath != "" {
		var err error
		pol, err = policy.Load(cfg.PolicyPath)
		if err != nil {
			log.Fatalf("policy: %v", err)
		}
		log.Printf("policy loaded from %s", cfg.PolicyPath)
	}

	db, err := store.Open(cfg.OutcomeDBPath)
	if err != nil {
		log.Fatalf("outcome store: %v", err)
	}

	var rephraser agent.Rephraser
	if cfg.CerebrasKey != "" {
		rephraser = llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
	}
	script := agent.NewScript(pol, cfg.AgentName, rephraser)

	gateway := telephony.NewGateway(telephony.Config{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		FromNumber:    cfg.TwilioFromNumber,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	hub := monitor.NewHub()
	classifier := intent.NewClassifier(pol)

	dispatcher, err := dispatch.New(dispatch.Deps{
		Policy: pol,
		Defaults: call.Config{
			MaxCounterOffers:  cfg.DefaultMaxCounterOffers,
			MaxClarifications: cfg.DefaultMaxClarifications,
			MaxSilenceRetries: cfg.DefaultMaxSilenceRetries,
			SilenceTimeout:    time.Duration(cfg.DefaultSilenceTimeoutSeconds) * time.Second,
		},
		TranscriptDir: cfg.TranscriptDir,
		NewAdapter: func(ctx context.Context, callID string, d call.Debtor) (call.SessionAdapter, error) {
			return gateway.Dial(ctx, callID, d)
		},
		Script:   script,
		Classify: classifier.Classify,
		Store:    db,
		Hub:      hub,
		OnFinished: func(callID string, o call.Outcome) {
			gateway.Release(callID)
			log.Printf("call finished: id=%s outcome=%s", callID, o.Kind)
		},
	})
	if err != nil {
		log.Fatalf("dispatcher: %v", err)
	}

	e := httpserver.New(cfg.TwilioAuthToken)
	api.NewHandlers(dispatcher, db, hub, gateway).Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Printf("aborting in-flight calls: %v", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
