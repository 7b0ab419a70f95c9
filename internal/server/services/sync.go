package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/cryptox"
	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/config"
	"github.com/dmitrijs2005/leasekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
	"github.com/dmitrijs2005/leasekeeper/internal/server/repositories/repomanager"
	"github.com/juju/clock"
)

const (
	syncWritePut        = "put"
	syncWriteDeleteItem = "delete_item"
)

// SyncService guards the shared sync document with optimistic
// concurrency. The document is opaque ciphertext except inside
// DeleteItem, which decodes it with the key clients share.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cipher      *cryptox.XORCipher
	clock       clock.Clock
	archiver    Archiver
	metrics     *metrics.Collector
	log         logging.Logger
}

// NewSyncService fails only when cfg.SyncSecret is empty. A nil archiver
// disables snapshot archiving.
func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	clk clock.Clock, archiver Archiver, mc *metrics.Collector, log logging.Logger) (*SyncService, error) {
	cipher, err := cryptox.NewXORCipher(cfg.SyncSecret)
	if err != nil {
		return nil, err
	}
	return &SyncService{
		db:          db,
		repomanager: m,
		cipher:      cipher,
		clock:       clk,
		archiver:    archiver,
		metrics:     mc,
		log:         log,
	}, nil
}

func (s *SyncService) storeError(ctx context.Context, op string, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}
	logging.FromContext(ctx, s.log).Error(ctx, "sync store failure", "op", op, "error", err)
	return common.ErrorStore
}

func (s *SyncService) Get(ctx context.Context) (*models.SyncDocument, error) {
	doc, err := s.repomanager.SyncDocument(s.db).Get(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "get", err)
	}
	return doc, nil
}

// Put stores cipherText if basedOn matches the stored version, or if the
// document was never written. A stale base yields common.ErrVersionConflict
// and leaves the document untouched.
func (s *SyncService) Put(ctx context.Context, cipherText string, basedOn int64) (int64, error) {
	version, err := s.repomanager.SyncDocument(s.db).CompareAndSwap(ctx, cipherText, basedOn, s.clock.Now().Unix())
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			s.metrics.SyncConflict()
			return 0, common.ErrVersionConflict
		}
		return 0, s.storeError(ctx, "put", err)
	}

	s.metrics.SyncWrite(syncWritePut)
	s.archive(ctx, version, cipherText)
	return version, nil
}

// DeleteItem removes every record whose string "id" equals recordID and
// writes the result back without a version check. A put racing with it
// can be overwritten; clients treat this path as a last-writer-wins
// shortcut. Removing an absent id still advances the version.
func (s *SyncService) DeleteItem(ctx context.Context, recordID string) (int64, error) {
	repo := s.repomanager.SyncDocument(s.db)
	log := logging.FromContext(ctx, s.log)

	doc, err := repo.Get(ctx)
	if err != nil {
		return 0, s.storeError(ctx, "delete_item", err)
	}

	records, err := s.decodeRecords(doc.CipherText)
	if err != nil {
		log.Warn(ctx, "cannot decode sync document", "error", err)
		return 0, common.ErrorBadRequest
	}

	kept, removed := removeRecords(records, recordID)
	if removed == 0 {
		log.Warn(ctx, "record not present in sync document", "record_id", recordID)
	}

	plain, err := encodeRecords(kept)
	if err != nil {
		return 0, common.ErrorBadRequest
	}
	cipherText := s.cipher.Encrypt(plain)

	version, err := repo.ForceWrite(ctx, cipherText, s.clock.Now().Unix())
	if err != nil {
		return 0, s.storeError(ctx, "delete_item", err)
	}

	log.Info(ctx, "record removed from sync document", "record_id", recordID, "removed", removed, "version", version)
	s.metrics.SyncWrite(syncWriteDeleteItem)
	s.archive(ctx, version, cipherText)
	return version, nil
}

var errNotACollection = errors.New("sync document is not a collection")

// decodeRecords treats a never-written document as an empty collection.
func (s *SyncService) decodeRecords(cipherText string) ([]json.RawMessage, error) {
	if cipherText == "" {
		return []json.RawMessage{}, nil
	}
	plain, err := s.cipher.Decrypt(cipherText)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(plain) == "" {
		return []json.RawMessage{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(plain), &records); err != nil {
		return nil, err
	}
	if records == nil {
		return nil, errNotACollection
	}
	return records, nil
}

// encodeRecords keeps the surviving records byte for byte.
func encodeRecords(records []json.RawMessage) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func removeRecords(records []json.RawMessage, recordID string) ([]json.RawMessage, int) {
	kept := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		if recordHasID(rec, recordID) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept, len(records) - len(kept)
}

// recordHasID matches only objects whose "id" is a JSON string.
func recordHasID(rec json.RawMessage, recordID string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(rec, &obj); err != nil {
		return false
	}
	raw, ok := obj["id"]
	if !ok {
		return false
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return false
	}
	return id == recordID
}

// archive is best effort: a failed upload never fails the write.
func (s *SyncService) archive(ctx context.Context, version int64, cipherText string) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, version, cipherText); err != nil {
		s.metrics.ArchiveFailure()
		logging.FromContext(ctx, s.log).Warn(ctx, "sync snapshot archive failed", "version", version, "error", err)
	}
}
