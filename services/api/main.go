package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/squaregoldfish/cdi-generator/internal/csr"
	"github.com/squaregoldfish/cdi-generator/services/api/config"
	"github.com/squaregoldfish/cdi-generator/services/api/db"
	httpserver "github.com/squaregoldfish/cdi-generator/services/api/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection error: %v", err)
	}
	defer store.Close()

	var table *csr.Table
	if cfg.CSRURL != "" {
		client := &http.Client{Timeout: 60 * time.Second}
		table, err = csr.Fetch(ctx, client, cfg.CSRURL)
		if err != nil {
			log.Printf("CSR lookups disabled: %v", err)
			table = nil
		} else {
			log.Printf("loaded CSR reference table (%d platforms)", table.Platforms())
		}
	}

	srv := httpserver.New(cfg, store, table)
	log.Printf("REST API listening on %s", cfg.ListenAddr())

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
