// Package app wires the ledger from its infrastructure parts. It is shared by
// the API server and the worker.
package app

import (
	"fmt"
	"time"

	"foodledger/internal/config"
	"foodledger/internal/domain/inventory"
	"foodledger/internal/infrastructure/cache"
	"foodledger/internal/infrastructure/events"
	"foodledger/internal/infrastructure/storage/postgres"
	"foodledger/internal/infrastructure/storage/postgres/catalog_repo"
	"foodledger/internal/infrastructure/storage/postgres/inventory_repo"
)

// Ledger is a fully wired ledger service plus the parts with a lifecycle.
type Ledger struct {
	Service   *inventory.Service
	TxManager *postgres.TxManager
	Settings  *cache.SettingsCache
}

// NewLedger builds the ledger on top of pool. The settings cache listens for
// catalog changes once Settings.Start is called.
func NewLedger(pool *postgres.Pool, pg config.PostgresConfig, cfg config.LedgerConfig) (*Ledger, error) {
	txm := postgres.NewTxManager(pool, pg.StatementTimeout)

	audit, err := postgres.NewAuditService(txm)
	if err != nil {
		return nil, fmt.Errorf("audit service: %w", err)
	}

	settings := cache.NewSettingsCache(catalog_repo.NewProductRepo(txm), pool.Pool, 5*time.Minute)
	ledgerEvents := events.NewLedgerEvents(postgres.NewOutboxPublisher(txm))

	svc := inventory.NewService(inventory.Config{
		Records:   inventory_repo.NewRecordRepo(txm),
		Movements: inventory_repo.NewMovementRepo(txm),
		Catalog:   settings,
		Alerts:    ledgerEvents,
		Costs:     ledgerEvents,
		Audit:     audit,
		TxManager: txm,
		Evaluator: inventory.NewEvaluator(cfg.NearExpirationHorizon, cfg.AlertThrottle),
	})

	return &Ledger{Service: svc, TxManager: txm, Settings: settings}, nil
}
