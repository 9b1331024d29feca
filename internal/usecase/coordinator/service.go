// Package coordinator is the public entry point of the store: it composes the
// content, revision/head and TM repositories with the reuse policies to
// implement submit, resolve and the publish lifecycle.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
	"github.com/SakenW/transhub/internal/reusekey"
	"github.com/SakenW/transhub/internal/uida"
)

// DefaultSourceLang is assumed when a submission does not name one.
const DefaultSourceLang = "en"

// DefaultCacheTTL bounds staleness of resolved payloads between explicit
// invalidations.
const DefaultCacheTTL = 10 * time.Minute

type Deps struct {
	Projects  ports.ProjectRepository
	Contents  ports.ContentRepository
	Revisions ports.RevisionRepository
	TM        ports.TMRepository
	Policies  *reusekey.Registry
	Cache     ports.Cache  // optional; nil means always-miss
	Outbox    ports.Outbox // optional
	Log       *logrus.Logger
}

type Service struct {
	d        Deps
	cacheTTL time.Duration
}

func New(d Deps) *Service {
	if d.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		d.Log = l
	}
	return &Service{d: d, cacheTTL: DefaultCacheTTL}
}

type SubmitArgs struct {
	ProjectID     string
	Namespace     string
	Keys          map[string]any
	SourcePayload map[string]any
	TargetLangs   []string
	SourceLang    string
	Variant       string
	Version       int
}

// Submit registers the content under its canonical identity and ensures each
// target dimension has either a reviewed revision (TM hit, engine bypassed)
// or a draft awaiting processing.
func (s *Service) Submit(ctx context.Context, a SubmitArgs) (string, error) {
	if a.Variant == "" {
		a.Variant = domain.DefaultVariant
	}
	if a.SourceLang == "" {
		a.SourceLang = DefaultSourceLang
	}
	if a.Version <= 0 {
		a.Version = 1
	}
	canonical, _, keyHash, err := uida.Canonicalize(a.Keys)
	if err != nil {
		return "", err
	}
	if _, err := s.d.Projects.GetOrCreate(ctx, a.ProjectID, a.ProjectID); err != nil {
		return "", err
	}
	contentID, err := s.d.Contents.Upsert(ctx, &domain.Content{
		ProjectID:     a.ProjectID,
		Namespace:     a.Namespace,
		KeyHash:       keyHash[:],
		KeyCanonical:  string(canonical),
		Keys:          a.Keys,
		SourcePayload: a.SourcePayload,
		SourceLang:    a.SourceLang,
		Version:       a.Version,
	})
	if err != nil {
		return "", err
	}

	policy := s.d.Policies.Get(a.Namespace)
	reduced := policy.Reduce(a.Keys)
	srcFields := reusekey.SourceFields(a.SourcePayload)
	reuseHash, err := reusekey.BuildReuseHash(a.Namespace, reduced, srcFields)
	if err != nil {
		return "", err
	}

	log := s.d.Log.WithFields(logrus.Fields{"project": a.ProjectID, "namespace": a.Namespace, "content_id": contentID})
	for _, lang := range a.TargetLangs {
		head, err := s.d.Revisions.GetOrCreateHead(ctx, a.ProjectID, contentID, lang, a.Variant)
		if err != nil {
			return "", err
		}
		entry, err := s.d.TM.Find(ctx, domain.TMEntry{
			ProjectID:   a.ProjectID,
			Namespace:   a.Namespace,
			ReuseHash:   reuseHash[:],
			SrcLang:     a.SourceLang,
			TgtLang:     lang,
			Variant:     a.Variant,
			PolicyVer:   reusekey.PolicyVersion,
			HashAlgoVer: reusekey.HashAlgoVersion,
		})
		if err != nil {
			return "", err
		}
		if entry != nil {
			rev, err := s.d.Revisions.Create(ctx, head.ID, domain.StatusReviewed, entry.Payload, domain.OriginTM, entry.Score)
			if err != nil {
				return "", err
			}
			if err := s.d.TM.Link(ctx, rev.ID, entry.ID); err != nil {
				return "", err
			}
			s.invalidate(ctx, contentID, lang, a.Variant)
			log.WithFields(logrus.Fields{"lang": lang, "rev_no": rev.RevNo}).Info("tm hit, reviewed revision created")
		} else if !(head.CurrentRevNo == 0 && head.CurrentStatus == domain.StatusDraft) {
			// The head creation already seeded draft 0; an existing head
			// needs a fresh draft appended for this submission.
			if _, err := s.d.Revisions.Create(ctx, head.ID, domain.StatusDraft, nil, "", nil); err != nil {
				return "", err
			}
			log.WithField("lang", lang).Info("tm miss, draft appended")
		} else {
			log.WithField("lang", lang).Info("tm miss, initial draft pending")
		}
		s.emit(ctx, a.ProjectID, head.ID, domain.EventSubmitted, map[string]any{
			"content_id": contentID, "lang": lang, "variant": a.Variant,
		})
	}
	return contentID, nil
}

// Resolve returns the published payload for the exact (lang, variant),
// falling back to the default variant and then the project's fallback chain.
// Absence is a nil payload, not an error.
func (s *Service) Resolve(ctx context.Context, projectID, namespace string, keys map[string]any, targetLang, variant string) (map[string]any, error) {
	if variant == "" {
		variant = domain.DefaultVariant
	}
	_, _, keyHash, err := uida.Canonicalize(keys)
	if err != nil {
		return nil, err
	}
	content, err := s.d.Contents.GetByKeyHash(ctx, projectID, namespace, keyHash[:])
	if err != nil || content == nil {
		return nil, err
	}

	type dim struct{ lang, variant string }
	candidates := []dim{{targetLang, variant}}
	if variant != domain.DefaultVariant {
		candidates = append(candidates, dim{targetLang, domain.DefaultVariant})
	}
	fallbacks, err := s.d.Projects.GetFallbackOrder(ctx, projectID, targetLang)
	if err != nil {
		return nil, err
	}
	for _, fb := range fallbacks {
		candidates = append(candidates, dim{fb, variant})
		if variant != domain.DefaultVariant {
			candidates = append(candidates, dim{fb, domain.DefaultVariant})
		}
	}

	for _, c := range candidates {
		key := resolveKey(content.ID, c.lang, c.variant)
		if s.d.Cache != nil {
			if payload, ok := s.d.Cache.Get(ctx, key); ok {
				return payload, nil
			}
		}
		rev, err := s.d.Revisions.GetPublished(ctx, content.ID, c.lang, c.variant)
		if err != nil {
			return nil, err
		}
		if rev != nil {
			if s.d.Cache != nil {
				s.d.Cache.Set(ctx, key, rev.Payload, s.cacheTTL)
			}
			return rev.Payload, nil
		}
	}
	return nil, nil
}

// PublishTranslation promotes a reviewed revision. A false return means the
// precondition failed (wrong status, or a concurrent publish won).
func (s *Service) PublishTranslation(ctx context.Context, revisionID string) (bool, error) {
	return s.transition(ctx, revisionID, domain.EventPublished, s.d.Revisions.Publish)
}

func (s *Service) UnpublishTranslation(ctx context.Context, revisionID string) (bool, error) {
	return s.transition(ctx, revisionID, domain.EventUnpublished, s.d.Revisions.Unpublish)
}

func (s *Service) RejectTranslation(ctx context.Context, revisionID string) (bool, error) {
	return s.transition(ctx, revisionID, domain.EventRejected, s.d.Revisions.Reject)
}

func (s *Service) transition(ctx context.Context, revisionID, event string, op func(context.Context, string) (bool, error)) (bool, error) {
	rev, err := s.d.Revisions.Get(ctx, revisionID)
	if err != nil {
		return false, err
	}
	if rev == nil {
		return false, nil
	}
	ok, err := op(ctx, revisionID)
	if err != nil || !ok {
		return ok, err
	}
	s.invalidate(ctx, rev.ContentID, rev.Lang, rev.Variant)
	s.emit(ctx, rev.ProjectID, rev.HeadID, event, map[string]any{
		"revision_id": revisionID, "rev_no": rev.RevNo, "lang": rev.Lang, "variant": rev.Variant,
	})
	s.d.Log.WithFields(logrus.Fields{"revision_id": revisionID, "event": event}).Info("revision transition")
	return true, nil
}

// ConfigureFallbacks sets the ordered fallback chain consulted by Resolve.
func (s *Service) ConfigureFallbacks(ctx context.Context, projectID, locale string, fallbacks []string) error {
	if _, err := s.d.Projects.GetOrCreate(ctx, projectID, projectID); err != nil {
		return err
	}
	return s.d.Projects.SetFallbacks(ctx, projectID, locale, fallbacks)
}

func (s *Service) invalidate(ctx context.Context, contentID, lang, variant string) {
	if s.d.Cache == nil {
		return
	}
	s.d.Cache.Delete(ctx, resolveKey(contentID, lang, variant))
}

func (s *Service) emit(ctx context.Context, projectID, headID, eventType string, payload map[string]any) {
	if s.d.Outbox == nil {
		return
	}
	if err := s.d.Outbox.Emit(ctx, &domain.OutboxEvent{
		ProjectID: projectID,
		HeadID:    headID,
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		s.d.Log.WithError(err).Warn("outbox emit failed")
	}
}

func resolveKey(contentID, lang, variant string) string {
	return fmt.Sprintf("resolve:%s:%s:%s", contentID, lang, variant)
}
