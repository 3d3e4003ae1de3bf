// Package postgres provides PostgreSQL infrastructure components.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "foodledger/internal/core/context"
	"foodledger/internal/core/id"
	"foodledger/internal/domain/inventory"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 10 * 1024

var _ inventory.AuditLogger = (*AuditService)(nil)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	TenantID          string          `db:"tenant_id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            string          `db:"action"`
	UserID            string          `db:"user_id"`
	UserEmail         string          `db:"user_email"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService writes manual corrections of inventory records to sys_audit.
// Large change sets are stored zstd-compressed.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	compressThreshold int
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// LogChange records the difference between two states of a record. It runs
// in the caller's transaction, so a failed audit write rolls the change back.
func (s *AuditService) LogChange(ctx context.Context, action string, before, after *inventory.Record) error {
	subject := after
	if subject == nil {
		subject = before
	}
	if subject == nil {
		return nil
	}

	oldState, err := stateOf(before)
	if err != nil {
		return err
	}
	newState, err := stateOf(after)
	if err != nil {
		return err
	}
	changes, err := json.Marshal(Diff(oldState, newState))
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	entry := AuditEntry{
		ID:         id.New(),
		TenantID:   subject.TenantID,
		EntityType: "inventory",
		EntityID:   subject.ID,
		Action:     action,
		Changes:    changes,
		CreatedAt:  time.Now().UTC(),
	}
	if u := appctx.GetUser(ctx); u != nil {
		entry.UserID = u.UserID
		entry.UserEmail = u.Email
	}
	s.compress(&entry)

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (
			id, tenant_id, entity_type, entity_id, action, user_id, user_email,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.TenantID, entry.EntityType, entry.EntityID, entry.Action,
		entry.UserID, entry.UserEmail,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return MapError(fmt.Errorf("insert audit entry: %w", err), "audit", entry.EntityID.String())
	}
	return nil
}

func (s *AuditService) compress(e *AuditEntry) {
	e.CompressionAlgo = CompressionNone
	if len(e.Changes) <= s.compressThreshold {
		return
	}
	e.ChangesCompressed = s.encoder.EncodeAll(e.Changes, nil)
	e.Changes = nil
	e.CompressionAlgo = CompressionZstd
}

// stateOf flattens a record into its JSON field map. A nil record is empty.
func stateOf(r *inventory.Record) (map[string]any, error) {
	if r == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record state: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal record state: %w", err)
	}
	return m, nil
}

// Diff calculates the difference between old and new entity states.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}
