// Package worker drains draft revisions: it claims batches, calls the
// translation engine under rate limiting, and turns successes into reviewed
// revisions plus translation-memory entries. Failures retry with exponential
// backoff until the attempt budget is spent, then land in the dead-letter
// sink.
package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
	"github.com/SakenW/transhub/internal/ratelimit"
	"github.com/SakenW/transhub/internal/reusekey"
)

type Config struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	PollInterval   time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
}

type Deps struct {
	Revisions ports.RevisionRepository
	Contents  ports.ContentRepository
	TM        ports.TMRepository
	Policies  *reusekey.Registry
	Engine    ports.Engine
	Limiter   *ratelimit.Limiter // optional
	Log       *logrus.Logger
}

type Worker struct {
	d   Deps
	cfg Config
}

func New(d Deps, cfg Config) (*Worker, error) {
	if d.Engine == nil {
		return nil, &domain.ConfigurationError{Reason: "worker requires an engine"}
	}
	if d.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		d.Log = l
	}
	cfg.applyDefaults()
	return &Worker{d: d, cfg: cfg}, nil
}

// Run polls for drafts until ctx is canceled. Cancellation is honored only
// between batches: an in-flight batch always finishes (graceful drain), which
// is why the batch itself runs on a non-cancelable context.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := w.ProcessOnce(context.WithoutCancel(ctx))
		if err != nil {
			w.d.Log.WithError(err).Error("batch processing failed")
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}

// item pairs a claimed draft with its content.
type item struct {
	rev     *domain.Revision
	content *domain.Content
	fields  []string // sorted string-valued payload field names
}

// ProcessOnce claims one batch of due drafts and processes it to completion.
// It returns the number of claimed drafts; zero means the queue is idle.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.d.Revisions.ClaimDraftBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	// Claims must never outlive the call. Every draft is removed from
	// pending once it is finished, retried or dead-lettered; whatever is
	// left when an error path bails out goes straight back to the queue.
	pending := make(map[string]*domain.Revision, len(batch))
	for _, rev := range batch {
		pending[rev.ID] = rev
	}
	defer func() {
		for _, rev := range pending {
			if err := w.d.Revisions.ReleaseClaim(ctx, rev.ID, rev.Attempts, time.Time{}); err != nil {
				w.d.Log.WithError(err).Error("claim release failed")
			}
		}
	}()

	// Group by language pair so the engine sees homogeneous batches.
	groups := make(map[[2]string][]*item)
	for _, rev := range batch {
		content, err := w.d.Contents.Get(ctx, rev.ContentID)
		if err != nil {
			return len(batch), err
		}
		if content == nil {
			w.deadLetter(ctx, rev, "content record missing", rev.Attempts+1)
			delete(pending, rev.ID)
			continue
		}
		it := &item{rev: rev, content: content, fields: stringFields(content.SourcePayload)}
		key := [2]string{content.SourceLang, rev.Lang}
		groups[key] = append(groups[key], it)
	}

	for key, items := range groups {
		srcLang, tgtLang := key[0], key[1]
		if w.d.Limiter != nil {
			if err := w.d.Limiter.Acquire(ctx, 1); err != nil {
				return len(batch), err
			}
		}
		var texts []string
		offsets := make([]int, len(items))
		for i, it := range items {
			offsets[i] = len(texts)
			for _, f := range it.fields {
				texts = append(texts, it.content.SourcePayload[f].(string))
			}
		}
		results, err := w.d.Engine.TranslateBatch(ctx, texts, srcLang, tgtLang)
		if err != nil {
			// Transport-level failure: every item in the group retries.
			for _, it := range items {
				w.retry(ctx, it.rev, err.Error())
				delete(pending, it.rev.ID)
			}
			continue
		}
		if len(results) != len(texts) {
			return len(batch), fmt.Errorf("engine %s: %d results for %d texts", w.d.Engine.Name(), len(results), len(texts))
		}
		for i, it := range items {
			w.finishItem(ctx, it, tgtLang, results[offsets[i]:offsets[i]+len(it.fields)])
			delete(pending, it.rev.ID)
		}
	}
	return len(batch), nil
}

// finishItem classifies one draft's per-field results. Any non-retryable
// field failure dead-letters the draft; any retryable one re-queues it; all
// fields succeeding yields the reviewed revision and TM entry.
func (w *Worker) finishItem(ctx context.Context, it *item, tgtLang string, results []ports.EngineResult) {
	var retryable, fatal *ports.EngineError
	for i := range results {
		if e := results[i].Err; e != nil {
			if e.Retryable {
				retryable = e
			} else {
				fatal = e
			}
		}
	}
	switch {
	case fatal != nil:
		w.deadLetter(ctx, it.rev, fatal.Message, it.rev.Attempts+1)
		return
	case retryable != nil:
		w.retry(ctx, it.rev, retryable.Message)
		return
	}

	translated := make(map[string]any, len(it.content.SourcePayload))
	for k, v := range it.content.SourcePayload {
		translated[k] = v
	}
	for i, f := range it.fields {
		translated[f] = results[i].Text
	}

	policy := w.d.Policies.Get(it.content.Namespace)
	reduced := policy.Reduce(it.content.Keys)
	srcFields := reusekey.SourceFields(it.content.SourcePayload)
	reuseHash, err := reusekey.BuildReuseHash(it.content.Namespace, reduced, srcFields)
	if err != nil {
		w.deadLetter(ctx, it.rev, "reuse hash: "+err.Error(), it.rev.Attempts+1)
		return
	}
	tmID, err := w.d.TM.Upsert(ctx, &domain.TMEntry{
		ProjectID:   it.content.ProjectID,
		Namespace:   it.content.Namespace,
		ReuseHash:   reuseHash[:],
		SrcLang:     it.content.SourceLang,
		TgtLang:     tgtLang,
		Variant:     it.rev.Variant,
		PolicyVer:   reusekey.PolicyVersion,
		HashAlgoVer: reusekey.HashAlgoVersion,
		Payload:     translated,
	})
	if err != nil {
		w.d.Log.WithError(err).Error("tm upsert failed")
		w.retry(ctx, it.rev, err.Error())
		return
	}
	reviewed, err := w.d.Revisions.Create(ctx, it.rev.HeadID, domain.StatusReviewed, translated, w.d.Engine.Name(), nil)
	if err != nil {
		w.d.Log.WithError(err).Error("reviewed revision create failed")
		w.retry(ctx, it.rev, err.Error())
		return
	}
	if err := w.d.TM.Link(ctx, reviewed.ID, tmID); err != nil {
		w.d.Log.WithError(err).Error("tm link failed")
	}
	// The draft is no longer its head's current revision; clearing the claim
	// retires it from the queue for good.
	if err := w.d.Revisions.ReleaseClaim(ctx, it.rev.ID, it.rev.Attempts, time.Time{}); err != nil {
		w.d.Log.WithError(err).Error("claim release failed")
	}
	w.d.Log.WithFields(logrus.Fields{
		"content_id": it.content.ID, "lang": tgtLang, "rev_no": reviewed.RevNo, "engine": w.d.Engine.Name(),
	}).Info("draft translated")
}

// retry re-queues the draft with exponential backoff, or dead-letters it when
// the attempt budget is exhausted.
func (w *Worker) retry(ctx context.Context, rev *domain.Revision, reason string) {
	attempts := rev.Attempts + 1
	if attempts >= w.cfg.MaxAttempts {
		w.deadLetter(ctx, rev, reason, attempts)
		return
	}
	backoff := w.cfg.InitialBackoff * (1 << rev.Attempts)
	next := time.Now().Add(backoff)
	if err := w.d.Revisions.ReleaseClaim(ctx, rev.ID, attempts, next); err != nil {
		w.d.Log.WithError(err).Error("claim release failed")
		return
	}
	w.d.Log.WithFields(logrus.Fields{
		"revision_id": rev.ID, "attempt": attempts, "backoff": backoff, "reason": reason,
	}).Warn("draft retry scheduled")
}

func (w *Worker) deadLetter(ctx context.Context, rev *domain.Revision, reason string, attempts int) {
	if err := w.d.Revisions.DeadLetter(ctx, rev.ID, reason, attempts); err != nil {
		w.d.Log.WithError(err).Error("dead-letter failed")
		return
	}
	w.d.Log.WithFields(logrus.Fields{
		"revision_id": rev.ID, "attempts": attempts, "reason": reason,
	}).Warn("draft dead-lettered")
}

func stringFields(payload map[string]any) []string {
	var out []string
	for k, v := range payload {
		if _, ok := v.(string); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
