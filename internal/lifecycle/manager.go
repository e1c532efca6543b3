// Package lifecycle keeps redirects in step with content whose URI changes.
//
// The host calls BeforeContentSave before it overwrites a content item and
// AfterContentSave once the new URI is stored. Between the two the old URI is
// held in memory only. A change is then handled in order as an immediate
// undo, a return to an earlier URI in the chain, or a forward move that
// creates a new 301 rule.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/rules"
)

// SourceURIChange tags analytics records written by the manager
const SourceURIChange = "uri_change"

// RuleWriter creates and removes rules with validation and cache invalidation
type RuleWriter interface {
	Create(ctx context.Context, rule *domain.RedirectRule) (*domain.RedirectRule, error)
	Delete(ctx context.Context, id uint64) error
	BulkDelete(ctx context.Context, ids []uint64) (int64, error)
}

// OriginFinder lists the auto-generated rules of a content item, newest first
type OriginFinder interface {
	FindByOrigin(ctx context.Context, contentID, siteID uint64) ([]domain.RedirectRule, error)
}

// Action is the outcome of a processed save
type Action string

const (
	ActionNone        Action = "none"
	ActionUndo        Action = "undo"
	ActionCreated     Action = "created"
	ActionSkipped     Action = "skipped"
	ActionLoopBlocked Action = "loop_blocked"
)

// Result describes what a save did to the rule set
type Result struct {
	Action         Action               `json:"action"`
	OldPath        string               `json:"old_path,omitempty"`
	NewPath        string               `json:"new_path,omitempty"`
	Collapsed      bool                 `json:"collapsed"`
	DeletedRuleIDs []uint64             `json:"deleted_rule_ids,omitempty"`
	Rule           *domain.RedirectRule `json:"rule,omitempty"`
}

// Options configures the manager
type Options struct {
	Enabled    bool
	UndoWindow time.Duration
}

type contentKey struct {
	contentID uint64
	siteID    uint64
}

// Manager reacts to content URI changes
type Manager struct {
	source   domain.ContentSource
	uris     domain.ContentURIWriter
	finder   OriginFinder
	writer   RuleWriter
	recorder domain.AnalyticsRecorder
	opts     Options
	now      func() time.Time

	mu    sync.Mutex
	stash map[contentKey]string
}

// NewManager creates a lifecycle manager
func NewManager(source domain.ContentSource, uris domain.ContentURIWriter, finder OriginFinder, writer RuleWriter, recorder domain.AnalyticsRecorder, opts Options) *Manager {
	if opts.UndoWindow <= 0 {
		opts.UndoWindow = 60 * time.Minute
	}
	return &Manager{
		source:   source,
		uris:     uris,
		finder:   finder,
		writer:   writer,
		recorder: recorder,
		opts:     opts,
		now:      time.Now,
		stash:    make(map[contentKey]string),
	}
}

// Enabled reports whether URI changes create redirects
func (m *Manager) Enabled() bool {
	return m.opts.Enabled
}

// BeforeContentSave stashes the URI currently persisted for the content item
func (m *Manager) BeforeContentSave(ctx context.Context, contentID, siteID uint64) error {
	if !m.opts.Enabled {
		return nil
	}

	uri, err := m.source.PersistedURI(ctx, contentID, siteID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.stash[contentKey{contentID, siteID}] = uri
	m.mu.Unlock()
	return nil
}

// AfterContentSave compares the stashed URI with newURI and updates the rule
// set. The stash entry is discarded whatever the outcome. A loop error leaves
// the content save in place; only the redirect is skipped.
func (m *Manager) AfterContentSave(ctx context.Context, contentID, siteID uint64, newURI string) (Result, error) {
	key := contentKey{contentID, siteID}
	m.mu.Lock()
	oldURI, stashed := m.stash[key]
	delete(m.stash, key)
	m.mu.Unlock()

	if newURI != "" {
		defer m.rememberURI(ctx, contentID, siteID, newURI)
	}

	result := Result{Action: ActionNone}
	if !m.opts.Enabled || !stashed {
		return result, nil
	}

	oldPath := domain.URIToPath(oldURI)
	newPath := domain.URIToPath(newURI)
	result.OldPath, result.NewPath = oldPath, newPath
	if oldPath == "" || newPath == "" || domain.SameURL(oldPath, newPath) {
		return result, nil
	}

	logger := log.With().
		Uint64("content_id", contentID).
		Uint64("site_id", siteID).
		Str("old_path", oldPath).
		Str("new_path", newPath).
		Logger()

	existing, err := m.finder.FindByOrigin(ctx, contentID, siteID)
	if err != nil {
		return result, err
	}

	if len(existing) > 0 {
		latest := existing[0]
		if domain.SameURL(latest.SourceNormalized, newPath) &&
			domain.SameURL(latest.Destination, oldPath) &&
			m.now().Sub(latest.CreatedAt) <= m.opts.UndoWindow {
			if err := m.writer.Delete(ctx, latest.ID); err != nil {
				return result, err
			}
			logger.Info().Uint64("rule_id", latest.ID).Msg("URI change undone, removed its redirect")
			result.Action = ActionUndo
			result.DeletedRuleIDs = []uint64{latest.ID}
			return result, nil
		}
	}

	if revisits(existing, newPath) {
		ids := make([]uint64, len(existing))
		for i := range existing {
			ids[i] = existing[i].ID
		}
		if _, err := m.writer.BulkDelete(ctx, ids); err != nil {
			return result, err
		}
		logger.Info().Int("rules", len(ids)).Msg("Content returned to an earlier URI, collapsed its redirect chain")
		result.Collapsed = true
		result.DeletedRuleIDs = ids
	}

	created, err := m.writer.Create(ctx, &domain.RedirectRule{
		SiteID:          siteID,
		SourcePattern:   oldPath,
		SourceScope:     rules.ScopeOf(oldPath),
		MatchStrategy:   domain.MatchExact,
		Destination:     newPath,
		StatusCode:      301,
		Enabled:         true,
		Priority:        0,
		CreationType:    domain.CreationAutoURIChange,
		OriginContentID: contentID,
	})
	switch {
	case err == nil:
	case domain.IsLoop(err):
		logger.Warn().Msg("URI change would create a redirect loop, no redirect created")
		result.Action = ActionLoopBlocked
		return result, err
	case domain.IsConflict(err):
		logger.Info().Msg("A redirect for the old URI already exists, skipping")
		result.Action = ActionSkipped
		return result, nil
	default:
		return result, err
	}

	logger.Info().Uint64("rule_id", created.ID).Msg("Created redirect for URI change")
	if m.recorder != nil {
		m.recorder.Record(ctx, domain.HitRecord{
			URL:     oldPath,
			SiteID:  siteID,
			Handled: true,
			Source:  SourceURIChange,
			RuleID:  created.ID,
			Metadata: map[string]any{
				"content_id": contentID,
				"new_path":   newPath,
			},
			At: m.now(),
		})
	}

	result.Action = ActionCreated
	result.Rule = created
	return result, nil
}

// Pending returns the number of saves awaiting their after hook
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stash)
}

func (m *Manager) rememberURI(ctx context.Context, contentID, siteID uint64, uri string) {
	if m.uris == nil {
		return
	}
	if err := m.uris.SetURI(ctx, contentID, siteID, uri); err != nil {
		log.Error().Err(err).Uint64("content_id", contentID).Msg("Failed to record content URI")
	}
}

func revisits(existing []domain.RedirectRule, path string) bool {
	for i := range existing {
		if domain.SameURL(existing[i].SourceNormalized, path) {
			return true
		}
	}
	return false
}
