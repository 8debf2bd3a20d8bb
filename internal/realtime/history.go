package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phishguard/internal/docstore"
	"phishguard/internal/identity"
	"phishguard/internal/localstore"
	"phishguard/internal/metrics"
	"phishguard/internal/models"
)

// HistoryLimit is the number of records a history shows and keeps locally.
const HistoryLimit = 10

// LegacyHistoryLimit caps the old list of scanned URLs.
const LegacyHistoryLimit = 5

// Outcome says where a write ended up.
type Outcome string

const (
	Remote Outcome = "remote"
	Local  Outcome = "local"
	Lost   Outcome = "lost"
)

// Result reports a history write. Degraded is set when a remote write failed
// and the local fallback was applied instead; Err then holds the remote error.
type Result struct {
	Outcome  Outcome           `json:"outcome"`
	Degraded bool              `json:"degraded"`
	Record   models.ScanRecord `json:"record"`
	Err      error             `json:"-"`
}

// History stores scan records remotely for signed-in callers and on the
// device otherwise.
type History struct {
	store  docstore.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewHistory(store docstore.Store, logger *zap.Logger) *History {
	return &History{store: store, logger: logger, now: time.Now}
}

// LocalKey is the on-device list for kind.
func LocalKey(kind models.ScanKind) string {
	switch kind {
	case models.ScanEmail:
		return localstore.KeyEmailScanHistory
	case models.ScanDoc:
		return localstore.KeyDocScanHistory
	default:
		return localstore.KeyLinkScanHistory
	}
}

// RemoteQuery is the newest-first history query of id for kind.
func RemoteQuery(id identity.Identity, kind models.ScanKind) docstore.Query {
	return docstore.Query{
		Collection: docstore.Path("users", id.ID, kind.Collection()),
		OrderBy:    "timestamp",
		Direction:  docstore.Descending,
		Limit:      HistoryLimit,
	}
}

func (h *History) localList(local localstore.Store, kind models.ScanKind) *localstore.BoundedList[models.ScanRecord] {
	return localstore.NewBoundedList[models.ScanRecord](local, LocalKey(kind), HistoryLimit, h.logger)
}

// Submit records a scan. Unauthenticated callers never touch the remote store.
func (h *History) Submit(ctx context.Context, local localstore.Store, id identity.Identity, rec models.ScanRecord) Result {
	rec.UserID = id.Owner()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = h.now().UTC()
	}

	if !id.Authenticated {
		return h.count(h.submitLocal(local, rec, nil))
	}

	collection := docstore.Path("users", id.ID, rec.Kind.Collection())
	docID, err := h.store.Add(ctx, collection, rec.ToDocument())
	if err == nil {
		rec.ID = docID
		// The stored timestamp comes from the store clock.
		if doc, err := h.store.Get(ctx, collection, docID); err == nil {
			rec = models.ScanFromDocument(rec.Kind, doc)
		} else {
			h.logger.Warn("Failed to read back stored scan", zap.String("id", docID), zap.Error(err))
		}
		return h.count(Result{Outcome: Remote, Record: rec})
	}

	h.logger.Warn("Remote history write failed, saving locally",
		zap.String("kind", string(rec.Kind)), zap.String("uid", id.ID), zap.Error(err))
	return h.count(h.submitLocal(local, rec, err))
}

func (h *History) submitLocal(local localstore.Store, rec models.ScanRecord, remoteErr error) Result {
	rec.ID = uuid.NewString()
	if _, err := h.localList(local, rec.Kind).Prepend(rec); err != nil {
		h.logger.Error("Local history write failed", zap.String("kind", string(rec.Kind)), zap.Error(err))
		if remoteErr != nil {
			err = fmt.Errorf("remote: %v; local: %w", remoteErr, err)
		}
		return Result{Outcome: Lost, Record: rec, Err: err}
	}
	return Result{Outcome: Local, Degraded: remoteErr != nil, Record: rec, Err: remoteErr}
}

func (h *History) count(r Result) Result {
	metrics.HistoryWritesTotal.WithLabelValues(string(r.Outcome)).Inc()
	return r
}

// Clear empties the history of kind. When the remote delete fails only the
// local lists are cleared and the remote records remain.
func (h *History) Clear(ctx context.Context, local localstore.Store, id identity.Identity, kind models.ScanKind) Result {
	if id.Authenticated {
		err := h.clearRemote(ctx, id, kind)
		if err == nil {
			return Result{Outcome: Remote}
		}
		h.logger.Warn("Remote history clear failed, clearing local history only",
			zap.String("kind", string(kind)), zap.String("uid", id.ID), zap.Error(err))
		if lerr := h.clearLocal(local, kind); lerr != nil {
			return Result{Outcome: Lost, Err: fmt.Errorf("remote: %v; local: %w", err, lerr)}
		}
		return Result{Outcome: Local, Degraded: true, Err: err}
	}

	if err := h.clearLocal(local, kind); err != nil {
		return Result{Outcome: Lost, Err: err}
	}
	return Result{Outcome: Local}
}

func (h *History) clearRemote(ctx context.Context, id identity.Identity, kind models.ScanKind) error {
	docs, err := h.store.List(ctx, docstore.Query{Collection: docstore.Path("users", id.ID, kind.Collection())})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return h.store.DeleteBatch(ctx, docs[0].Collection, ids)
}

func (h *History) clearLocal(local localstore.Store, kind models.ScanKind) error {
	if err := h.localList(local, kind).Clear(); err != nil {
		return err
	}
	if kind == models.ScanLink {
		return local.Delete(localstore.KeyLegacyScans)
	}
	return nil
}

// List returns the newest records. Signed-in callers read the remote store
// and fall back to the device list when it is unreachable.
func (h *History) List(ctx context.Context, local localstore.Store, id identity.Identity, kind models.ScanKind) ([]models.ScanRecord, error) {
	if id.Authenticated {
		docs, err := h.store.List(ctx, RemoteQuery(id, kind))
		if err == nil {
			out := make([]models.ScanRecord, len(docs))
			for i, d := range docs {
				out[i] = models.ScanFromDocument(kind, d)
			}
			return out, nil
		}
		h.logger.Warn("Remote history read failed, using local history", zap.String("kind", string(kind)), zap.Error(err))
	}
	return h.localList(local, kind).Load()
}

// RememberLegacy prepends url to the old URL-only history, which unsigned
// link scans still maintain.
func (h *History) RememberLegacy(local localstore.Store, url string) ([]string, error) {
	return localstore.NewBoundedList[string](local, localstore.KeyLegacyScans, LegacyHistoryLimit, h.logger).Prepend(url)
}

// Watch opens a live view of the remote history of id.
func (h *History) Watch(ctx context.Context, id identity.Identity, kind models.ScanKind, onChange func([]models.ScanRecord)) (*View[models.ScanRecord], error) {
	decode := func(d docstore.Document) models.ScanRecord { return models.ScanFromDocument(kind, d) }
	return Subscribe(ctx, h.store, RemoteQuery(id, kind), decode, onChange)
}
