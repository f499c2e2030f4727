// Package kb maps user ids to their knowledge bases and decides which
// knowledge bases a question reads from.
package kb

import (
	"context"
	"regexp"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/types"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/store"
)

const (
	RolePersonal = "personal"
	RoleDefault  = "default"
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateUserID rejects ids that could collide with the default knowledge
// base or escape the data directory.
func ValidateUserID(userID string) error {
	if !userIDPattern.MatchString(userID) {
		return apperr.Newf(apperr.KindInvalidInput, "user", "invalid user id %q", userID)
	}
	return nil
}

// Target is one knowledge base a question is answered from. Index is nil
// when the knowledge base does not exist yet, and Err is set when it could
// not be opened.
type Target struct {
	Role  string
	ID    string
	Index *store.Index
	Err   error
}

type Registry struct {
	backend  store.Backend
	embedder types.Embedder
	log      logr.Logger

	mu      sync.Mutex
	indexes map[string]*store.Index
	group   singleflight.Group
}

func New(backend store.Backend, embedder types.Embedder, log logr.Logger) *Registry {
	return &Registry{
		backend:  backend,
		embedder: embedder,
		log:      log.WithName("registry"),
		indexes:  make(map[string]*store.Index),
	}
}

func (r *Registry) cached(kbID string) *store.Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexes[kbID]
}

// open returns the index of kbID, loading it at most once however many
// callers ask at the same time. Without create, a missing knowledge base
// gives a nil index and no error.
func (r *Registry) open(ctx context.Context, kbID string, create bool) (*store.Index, error) {
	if ix := r.cached(kbID); ix != nil {
		return ix, nil
	}

	key := "lookup:" + kbID
	if create {
		key = "create:" + kbID
	}
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if ix := r.cached(kbID); ix != nil {
			return ix, nil
		}

		exists, err := r.backend.Exists(ctx, kbID)
		if err != nil {
			return nil, err
		}
		if !exists {
			if !create {
				return nil, nil
			}
			if err := r.backend.Create(ctx, kbID); err != nil {
				return nil, err
			}
			r.log.Info("created knowledge base", "kb", kbID)
		}

		ix, err := store.Open(ctx, kbID, r.backend, r.embedder, r.log)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.indexes[kbID]; ok {
			return existing, nil
		}
		r.indexes[kbID] = ix
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	ix, _ := v.(*store.Index)
	return ix, nil
}

func status(ix *store.Index) models.KBStatus {
	if ix == nil {
		return models.StatusAbsent
	}
	if ix.Stats(context.Background()).ChunkCount == 0 {
		return models.StatusEmpty
	}
	return models.StatusReady
}

// GetOrCreate returns the user's knowledge base, creating it on first use.
// An existing one is loaded, never replaced.
func (r *Registry) GetOrCreate(ctx context.Context, userID string) (*store.Index, models.KBStatus, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, models.StatusAbsent, err
	}
	ix, err := r.open(ctx, userID, true)
	if err != nil {
		return nil, models.StatusAbsent, err
	}
	return ix, status(ix), nil
}

// Lookup returns the user's knowledge base without creating it. The index
// is nil and the status absent if there is none.
func (r *Registry) Lookup(ctx context.Context, userID string) (*store.Index, models.KBStatus, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, models.StatusAbsent, err
	}
	ix, err := r.open(ctx, userID, false)
	if err != nil {
		return nil, models.StatusAbsent, err
	}
	return ix, status(ix), nil
}

// Default returns the shared knowledge base, or nil if nothing was ever
// seeded into it.
func (r *Registry) Default(ctx context.Context) (*store.Index, models.KBStatus, error) {
	ix, err := r.open(ctx, models.DefaultKnowledgeBaseID, false)
	if err != nil {
		return nil, models.StatusAbsent, err
	}
	return ix, status(ix), nil
}

// DefaultForWrite returns the shared knowledge base, creating it if needed.
func (r *Registry) DefaultForWrite(ctx context.Context) (*store.Index, error) {
	return r.open(ctx, models.DefaultKnowledgeBaseID, true)
}

// Resolve lists the knowledge bases a question in the given mode reads, in
// priority order. A knowledge base that fails to open is returned with Err
// set so the caller can still use the others.
func (r *Registry) Resolve(ctx context.Context, userID string, mode models.Mode) ([]Target, error) {
	if mode.NeedsUser() {
		if err := ValidateUserID(userID); err != nil {
			return nil, err
		}
	}

	var targets []Target
	switch mode {
	case models.ModePersonal:
		targets = []Target{{Role: RolePersonal, ID: userID}}
	case models.ModeDefault:
		targets = []Target{{Role: RoleDefault, ID: models.DefaultKnowledgeBaseID}}
	case models.ModeCombined:
		targets = []Target{
			{Role: RolePersonal, ID: userID},
			{Role: RoleDefault, ID: models.DefaultKnowledgeBaseID},
		}
	default:
		return nil, apperr.Newf(apperr.KindInvalidInput, "resolve", "unknown mode %q", mode)
	}

	for i := range targets {
		ix, err := r.open(ctx, targets[i].ID, false)
		if err != nil {
			r.log.Error(err, "knowledge base unavailable", "kb", targets[i].ID)
			targets[i].Err = err
			continue
		}
		targets[i].Index = ix
	}
	return targets, nil
}

// Destroy deletes the user's knowledge base. The next upload starts a new
// one.
func (r *Registry) Destroy(ctx context.Context, userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	ix, err := r.open(ctx, userID, false)
	if err != nil {
		return err
	}
	if ix == nil {
		return apperr.Newf(apperr.KindNotFound, "destroy", "knowledge base for %q does not exist", userID)
	}

	if err := ix.Drop(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	if r.indexes[userID] == ix {
		delete(r.indexes, userID)
	}
	r.mu.Unlock()

	r.log.Info("destroyed knowledge base", "kb", userID)
	return nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	r.indexes = make(map[string]*store.Index)
	r.mu.Unlock()
	return r.backend.Close()
}
