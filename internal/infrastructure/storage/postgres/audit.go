package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "erpdir/internal/core/context"
	"erpdir/internal/core/id"
	"erpdir/internal/core/tenant"
	"erpdir/internal/domain/directory"
)

// CompressionAlgo names how the changes column is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 10 * 1024

// AuditEntry is one row of directory_record_audit.
type AuditEntry struct {
	ID                id.ID           `db:"id" json:"id"`
	RecordID          id.ID           `db:"record_id" json:"recordId"`
	Action            string          `db:"action" json:"action"`
	UserID            string          `db:"user_id" json:"userId,omitempty"`
	CompanyID         string          `db:"company_id" json:"companyId,omitempty"`
	Changes           json.RawMessage `db:"changes" json:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed" json:"-"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
}

// RecordAudit stores value changes of directory records. Large change sets
// are zstd-compressed.
type RecordAudit struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ directory.AuditLog = (*RecordAudit)(nil)

func NewRecordAudit(txManager *TxManager) (*RecordAudit, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &RecordAudit{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// LogRecordChange implements directory.AuditLog. It writes through the
// transaction in ctx, so the entry commits with the change.
func (a *RecordAudit) LogRecordChange(ctx context.Context, recordID id.ID, action string, changes map[string]any) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	entry := AuditEntry{
		ID:        id.New(),
		RecordID:  recordID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
	if u := appctx.GetUser(ctx); u != nil {
		entry.UserID = u.UserID
		entry.CompanyID = u.CompanyID
	}
	if c, err := tenant.GetCompanyID(ctx); err == nil {
		entry.CompanyID = c.String()
	}
	a.pack(&entry, raw)

	_, err = a.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO directory_record_audit (
			id, record_id, action, user_id, company_id,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)
	`,
		entry.ID, entry.RecordID, entry.Action, entry.UserID, entry.CompanyID,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record audit: %w", err)
	}
	return nil
}

// History returns the newest entries of a record first, decompressed.
func (a *RecordAudit) History(ctx context.Context, recordID id.ID, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []AuditEntry
	err := a.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		return pgxscan.Select(ctx, a.txManager.GetQuerier(ctx), &entries, `
			SELECT id, record_id, action, COALESCE(user_id, '') AS user_id,
			       COALESCE(company_id, '') AS company_id,
			       changes, changes_compressed, compression_algo, created_at
			FROM directory_record_audit
			WHERE record_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, recordID, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("query record history: %w", err)
	}
	for i := range entries {
		if err := a.unpack(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (a *RecordAudit) pack(e *AuditEntry, raw []byte) {
	e.CompressionAlgo = CompressionNone
	if len(raw) > a.compressThreshold {
		e.ChangesCompressed = a.encoder.EncodeAll(raw, nil)
		e.CompressionAlgo = CompressionZstd
		return
	}
	e.Changes = raw
}

func (a *RecordAudit) unpack(e *AuditEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.ChangesCompressed) == 0 {
		return nil
	}
	raw, err := a.decoder.DecodeAll(e.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	e.Changes = raw
	e.ChangesCompressed = nil
	return nil
}
