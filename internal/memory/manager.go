package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bowerhall/graphmem/internal/extract"
	"github.com/bowerhall/graphmem/internal/fuse"
	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/logger"
	"github.com/bowerhall/graphmem/internal/search"
	gerrors "github.com/bowerhall/graphmem/pkg/errors"
)

// Archiver exports an owner's full snapshot before erasure.
type Archiver interface {
	ExportOwner(ctx context.Context, snapshot *graph.OwnerSnapshot) error
}

type Config struct {
	Retention           time.Duration
	MaxConcurrentOwners int
}

// Manager composes extraction, resolution, fusion, and retrieval into the
// operations exposed to the rest of the system. Mutation is serialized per
// owner; reads run concurrently under WAL snapshot semantics.
type Manager struct {
	store     *graph.Store
	extractor *extract.Extractor
	engine    *fuse.Engine
	retriever *search.Retriever
	archiver  Archiver
	cfg       Config

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func NewManager(store *graph.Store, extractor *extract.Extractor, engine *fuse.Engine, retriever *search.Retriever, archiver Archiver, cfg Config) *Manager {
	if cfg.MaxConcurrentOwners <= 0 {
		cfg.MaxConcurrentOwners = 4
	}
	return &Manager{
		store:     store,
		extractor: extractor,
		engine:    engine,
		retriever: retriever,
		archiver:  archiver,
		cfg:       cfg,
		locks:     make(map[string]*semaphore.Weighted),
	}
}

func (m *Manager) ownerLock(ownerID string) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[ownerID]
	if !ok {
		lock = semaphore.NewWeighted(1)
		m.locks[ownerID] = lock
	}
	return lock
}

type IngestResult struct {
	OpID          string
	NodesAdded    int
	EdgesAdded    int
	MergesApplied int
}

// Ingest runs the extract→resolve→fuse pipeline for one piece of text.
// At most one ingest per owner is in flight; a second concurrent call gets
// a conflict error and may retry. Provider failures degrade gracefully: the
// fact is not captured this turn and a zero result is returned.
func (m *Manager) Ingest(ctx context.Context, ownerID, text, conversationRef string) (*IngestResult, error) {
	lock := m.ownerLock(ownerID)
	if !lock.TryAcquire(1) {
		return nil, gerrors.NewConflictError(ownerID)
	}
	defer lock.Release(1)

	result := &IngestResult{OpID: uuid.New().String()}

	slice, err := m.extractor.Extract(ctx, text, conversationRef)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		logger.Get().Warn("extraction failed, turn not captured",
			zap.String("owner_id", ownerID), zap.String("op_id", result.OpID), zap.Error(err))
		return result, nil
	}

	if len(slice.Entities) == 0 && len(slice.Relations) == 0 {
		return result, nil
	}

	fused, err := m.engine.Fuse(ctx, ownerID, slice)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || gerrors.IsIntegrity(err) {
			return nil, err
		}
		logger.Get().Warn("fusion failed, turn not captured",
			zap.String("owner_id", ownerID), zap.String("op_id", result.OpID), zap.Error(err))
		return result, nil
	}

	result.NodesAdded = fused.NodesAdded
	result.EdgesAdded = fused.EdgesAdded
	result.MergesApplied = fused.MergesApplied

	metadata := map[string]string{}
	if conversationRef != "" {
		metadata["conversation_ref"] = conversationRef
	}

	doc, err := m.store.AddDocument(ctx, ownerID, text, metadata)
	if err != nil {
		logger.Get().Error("document insert failed",
			zap.String("owner_id", ownerID), zap.String("op_id", result.OpID), zap.Error(err))
		return result, nil
	}

	if err := m.store.RecordIngest(result.OpID, ownerID, doc.ID,
		result.NodesAdded, result.EdgesAdded, result.MergesApplied); err != nil {
		logger.Get().Warn("ingest log write failed", zap.String("op_id", result.OpID), zap.Error(err))
	}

	logger.Get().Info("ingest complete",
		zap.String("owner_id", ownerID), zap.String("op_id", result.OpID),
		zap.Int("nodes_added", result.NodesAdded), zap.Int("edges_added", result.EdgesAdded),
		zap.Int("merges_applied", result.MergesApplied))

	return result, nil
}

// Search is side-effect free and safe to run concurrently with an owner's
// in-flight ingest.
func (m *Manager) Search(ctx context.Context, ownerID, query string, topK int) (*search.Response, error) {
	return m.retriever.Search(ctx, ownerID, query, topK)
}

func (m *Manager) Stats(ownerID string) (*graph.Stats, error) {
	return m.store.Stats(ownerID)
}

// Consolidate re-resolves an owner's graph and prunes superseded variants.
// Unlike Ingest it waits for the owner lock instead of failing fast; the
// scheduler expects exclusive access for the call's duration.
func (m *Manager) Consolidate(ctx context.Context, ownerID string) (*fuse.ConsolidateResult, error) {
	lock := m.ownerLock(ownerID)
	if err := lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer lock.Release(1)

	return m.engine.ConsolidateOwner(ctx, ownerID, m.cfg.Retention)
}

// ConsolidateAll fans consolidation out across owners with bounded
// parallelism. One owner failing does not stop the others.
func (m *Manager) ConsolidateAll(ctx context.Context) error {
	owners, err := m.store.Owners()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrentOwners)

	for _, ownerID := range owners {
		ownerID := ownerID
		g.Go(func() error {
			if _, err := m.Consolidate(ctx, ownerID); err != nil {
				logger.Get().Error("consolidation failed",
					zap.String("owner_id", ownerID), zap.Error(err))
			}
			return nil
		})
	}

	return g.Wait()
}

// EraseOwner exports the owner's data when an archiver is configured, then
// removes every trace from the store.
func (m *Manager) EraseOwner(ctx context.Context, ownerID string) error {
	lock := m.ownerLock(ownerID)
	if err := lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer lock.Release(1)

	if m.archiver != nil {
		snapshot, err := m.store.Snapshot(ownerID)
		if err != nil {
			return err
		}
		if err := m.archiver.ExportOwner(ctx, snapshot); err != nil {
			return err
		}
	}

	if err := m.store.EraseOwner(ownerID); err != nil {
		return err
	}
	m.dropOwnerLock(ownerID)

	logger.Get().Info("owner erased", zap.String("owner_id", ownerID))
	return nil
}

// dropOwnerLock forgets an erased owner's lock entry so the map does not
// accumulate one semaphore per owner ever seen. The current holder keeps its
// reference; a later ingest for a re-created owner gets a fresh lock.
func (m *Manager) dropOwnerLock(ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, ownerID)
}
