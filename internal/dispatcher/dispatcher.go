// Package dispatcher publishes due posts. One Tick polls the posts that are
// due, makes sure every credential they need is fresh, publishes each
// (post, platform) pair concurrently and then writes all outcomes from a
// single goroutine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/notify"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultConcurrency = 10
	DefaultTaskTimeout = 10 * time.Minute
)

type Options struct {
	Concurrency int
	TaskTimeout time.Duration
	// ReleaseMedia removes a post's media from the store once the post is
	// fully resolved.
	ReleaseMedia bool
}

// Report summarizes one tick.
type Report struct {
	TickID    string
	Due       int
	Published int
	Failed    int
	Skipped   int
	// Deferred counts platforms left pending because their credential could
	// not be loaded in time. The next tick retries them.
	Deferred int
}

type Dispatcher struct {
	posts     repository.PostRepository
	creds     service.CredentialService
	refresher service.RefreshService
	registry  *platform.Registry
	media     storage.Store
	notifier  notify.Notifier
	opts      Options
	tracer    trace.Tracer
	now       func() time.Time

	mu sync.Mutex
}

func New(
	posts repository.PostRepository,
	creds service.CredentialService,
	refresher service.RefreshService,
	registry *platform.Registry,
	media storage.Store,
	notifier notify.Notifier,
	opts Options,
) *Dispatcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Dispatcher{
		posts:     posts,
		creds:     creds,
		refresher: refresher,
		registry:  registry,
		media:     media,
		notifier:  notifier,
		opts:      opts,
		tracer:    otel.Tracer("github.com/maheshrc27/postflow/internal/dispatcher"),
		now:       time.Now,
	}
}

type status int

const (
	published status = iota
	failed
	skipped
)

func (s status) String() string {
	switch s {
	case published:
		return "published"
	case failed:
		return "failed"
	default:
		return "skipped"
	}
}

type outcome struct {
	postID    int64
	platform  models.Platform
	status    status
	url       string
	err       error
	cred      models.Credential
	refreshed *models.Credential
	revoke    bool
	took      time.Duration
}

// credEntry is the tick cache value for one (account, platform).
type credEntry struct {
	cred *models.Credential
	err  error
}

type task struct {
	post    *models.Post
	adapter platform.Adapter
	cred    models.Credential
}

// Tick runs one dispatch pass. Ticks never overlap.
func (d *Dispatcher) Tick(ctx context.Context) (Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	id, err := gonanoid.New()
	if err != nil {
		return Report{}, fmt.Errorf("tick id: %w", err)
	}
	report := Report{TickID: id}
	logger := log.With().Str("tick_id", id).Logger()

	ctx, span := d.tracer.Start(ctx, "dispatch.tick", trace.WithAttributes(attribute.String("tick.id", id)))
	defer span.End()

	now := d.now()
	due, err := d.poll(ctx, now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveTick("error", start)
		return report, err
	}
	report.Due = len(due)
	span.SetAttributes(attribute.Int("tick.due", len(due)))
	if len(due) == 0 {
		metrics.ObserveTick("idle", start)
		return report, nil
	}

	// Once posts are selected the tick runs to completion; a stop signal only
	// prevents the next poll.
	ctx = context.WithoutCancel(ctx)
	cache := d.refreshCredentials(ctx, due)

	var (
		outcomes []outcome
		tasks    []task
	)
	for i := range due {
		post := &due[i]
		for _, p := range post.PendingPlatforms() {
			adapter, ok := d.registry.Adapter(p)
			if !ok {
				outcomes = append(outcomes, outcome{postID: post.ID, platform: p, status: skipped,
					err: fmt.Errorf("%s publishing is disabled", p)})
				continue
			}
			key := models.CredentialKey{AccountID: post.AccountID, Platform: p}
			entry := cache[key]
			switch {
			case errors.Is(entry.err, context.Canceled), errors.Is(entry.err, context.DeadlineExceeded):
				report.Deferred++
				logger.Warn().Err(entry.err).Int64("post_id", post.ID).Str("platform", string(p)).Msg("credential not ready, leaving platform pending")
			case errors.Is(entry.err, platform.ErrCredentialRevoked), errors.Is(entry.err, platform.ErrMissingCredential):
				outcomes = append(outcomes, outcome{postID: post.ID, platform: p, status: skipped, err: entry.err})
			case entry.err != nil:
				outcomes = append(outcomes, outcome{postID: post.ID, platform: p, status: failed, err: entry.err})
			case !entry.cred.Usable():
				outcomes = append(outcomes, outcome{postID: post.ID, platform: p, status: skipped,
					err: fmt.Errorf("%w: %s", platform.ErrMissingCredential, key)})
			default:
				tasks = append(tasks, task{post: post, adapter: adapter, cred: snapshot(*entry.cred)})
			}
		}
	}

	outcomes = append(outcomes, d.fanout(ctx, tasks)...)

	d.finalize(ctx, due, outcomes, &report)

	logger.Info().
		Int("due", report.Due).
		Int("published", report.Published).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("deferred", report.Deferred).
		Dur("took", time.Since(start)).
		Msg("dispatch tick finished")
	span.SetAttributes(
		attribute.Int("tick.published", report.Published),
		attribute.Int("tick.failed", report.Failed),
		attribute.Int("tick.skipped", report.Skipped),
	)
	metrics.ObserveTick("processed", start)
	return report, nil
}

// poll returns unposted posts that are due in their own timezone.
func (d *Dispatcher) poll(ctx context.Context, now time.Time) ([]models.Post, error) {
	candidates, err := d.posts.ListUnposted(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("poll due posts: %w", err)
	}
	due := candidates[:0]
	for _, post := range candidates {
		if _, ok := post.Location(); !ok {
			log.Warn().Int64("post_id", post.ID).Str("timezone", post.PostTimezone).Msg("unknown post timezone, using UTC")
		}
		if post.Due(now) {
			due = append(due, post)
		}
	}
	return due, nil
}

// refreshCredentials loads and refreshes every credential the due posts need,
// once per (account, platform). Lookups run concurrently; only this goroutine
// writes the returned cache.
func (d *Dispatcher) refreshCredentials(ctx context.Context, due []models.Post) map[models.CredentialKey]credEntry {
	var keys []models.CredentialKey
	seen := map[models.CredentialKey]bool{}
	for i := range due {
		for _, p := range due[i].PendingPlatforms() {
			if _, ok := d.registry.Adapter(p); !ok {
				continue
			}
			key := models.CredentialKey{AccountID: due[i].AccountID, Platform: p}
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}

	entries := make([]credEntry, len(keys))
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.opts.Concurrency)
	for i, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			entries[i] = d.loadCredential(ctx, key)
		}()
	}
	wg.Wait()

	cache := make(map[models.CredentialKey]credEntry, len(keys))
	for i, key := range keys {
		cache[key] = entries[i]
	}
	return cache
}

func (d *Dispatcher) loadCredential(ctx context.Context, key models.CredentialKey) (entry credEntry) {
	defer func() {
		if r := recover(); r != nil {
			entry = credEntry{err: fmt.Errorf("credential lookup panicked: %v", r)}
			log.Error().Str("stack", string(debug.Stack())).Str("credential", key.String()).Msg("credential lookup panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.opts.TaskTimeout)
	defer cancel()

	cred, err := d.creds.Get(ctx, key.AccountID, key.Platform)
	if err != nil {
		return credEntry{err: fmt.Errorf("load %s: %w", key, err)}
	}
	if cred == nil || !cred.Usable() {
		return credEntry{}
	}
	fresh, err := d.refresher.Ensure(ctx, *cred)
	if err != nil {
		log.Warn().Err(err).Str("credential", key.String()).Msg("credential refresh failed")
		return credEntry{err: err}
	}
	return credEntry{cred: &fresh}
}

// fanout publishes every task, at most opts.Concurrency at a time, and waits
// for all of them.
func (d *Dispatcher) fanout(ctx context.Context, tasks []task) []outcome {
	results := make([]outcome, len(tasks))
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.opts.Concurrency)
	for i, t := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.publish(ctx, t)
		}()
	}
	wg.Wait()
	return results
}

// publish runs one adapter call. The task context outlives cancellation of
// ctx so a graceful stop lets in-flight calls finish; TaskTimeout bounds it.
func (d *Dispatcher) publish(parent context.Context, t task) (out outcome) {
	p := t.adapter.Platform()
	out = outcome{postID: t.post.ID, platform: p, cred: t.cred}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.opts.TaskTimeout)
	defer cancel()
	ctx = platform.WithRefresher(ctx, d.refresher)
	ctx, span := d.tracer.Start(ctx, "dispatch.publish", trace.WithAttributes(
		attribute.Int64("post.id", t.post.ID),
		attribute.String("platform", string(p)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.status = failed
			out.err = fmt.Errorf("%s adapter panicked: %v", p, r)
			log.Error().Str("stack", string(debug.Stack())).Int64("post_id", t.post.ID).Str("platform", string(p)).Msg("adapter panicked")
			d.notifier.Notify(context.WithoutCancel(ctx), fmt.Sprintf("unexpected error publishing post %d to %s: %v", t.post.ID, p, r))
		}
		out.took = time.Since(start)
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, out.err.Error())
		}
	}()

	content := platform.Content{PostID: t.post.ID, Text: t.post.Description}
	if t.post.HasMedia() {
		content.Media = storage.Media(d.media, *t.post.MediaFile)
	}

	res, err := t.adapter.Publish(ctx, t.cred, content)
	if err != nil {
		out.status = failed
		out.err = err
		var perr *platform.PublishError
		if errors.As(err, &perr) {
			out.refreshed = perr.Refreshed
		}
		out.revoke = errors.Is(err, platform.ErrCredentialRevoked)
		return out
	}
	out.status = published
	out.url = res.URL
	out.refreshed = res.Refreshed
	return out
}

// finalize is the only writer of the tick. Credential writes go first so a
// crash before the post updates leaves the freshest tokens on disk.
func (d *Dispatcher) finalize(ctx context.Context, due []models.Post, outcomes []outcome, report *Report) {
	ctx = context.WithoutCancel(ctx)
	d.writeCredentials(ctx, outcomes)

	byPost := map[int64][]repository.Resolution{}
	for _, o := range outcomes {
		ev := log.Info()
		switch o.status {
		case published:
			report.Published++
		case failed:
			report.Failed++
			ev = log.Error()
		case skipped:
			report.Skipped++
			ev = log.Warn()
		}
		ev.Err(o.err).
			Int64("post_id", o.postID).
			Str("platform", string(o.platform)).
			Str("outcome", o.status.String()).
			Str("url", o.url).
			Msg("publish outcome")
		metrics.ObservePublish(string(o.platform), o.status.String(), o.took)

		byPost[o.postID] = append(byPost[o.postID], repository.Resolution{Platform: o.platform, Link: o.url})
	}

	for i := range due {
		post := &due[i]
		updated, err := d.posts.Finalize(ctx, post.ID, byPost[post.ID])
		if err != nil {
			continue
		}
		if updated.Posted && updated.HasMedia() && d.opts.ReleaseMedia {
			if err := d.media.Remove(ctx, *updated.MediaFile); err != nil {
				log.Error().Err(err).Int64("post_id", post.ID).Str("media", *updated.MediaFile).Msg("failed to release media")
			}
		}
	}
}

// writeCredentials persists tokens refreshed mid-publish and deletes the
// credentials an adapter found unrecoverable. A revocation wins over any
// refresh for the same key.
func (d *Dispatcher) writeCredentials(ctx context.Context, outcomes []outcome) {
	refreshed := map[models.CredentialKey]models.Credential{}
	revoked := map[models.CredentialKey]outcome{}
	seen := map[models.CredentialKey]bool{}
	var order []models.CredentialKey
	for _, o := range outcomes {
		var key models.CredentialKey
		switch {
		case o.revoke:
			key = o.cred.Key()
			if _, ok := revoked[key]; !ok {
				revoked[key] = o
			}
		case o.refreshed != nil:
			key = o.refreshed.Key()
			if prev, ok := refreshed[key]; !ok || newer(*o.refreshed, prev) {
				refreshed[key] = *o.refreshed
			}
		default:
			continue
		}
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}

	for _, key := range order {
		if o, ok := revoked[key]; ok {
			metrics.ObserveRefresh(string(key.Platform), "revoked")
			if err := d.refresher.Revoke(ctx, o.cred, o.err.Error()); err != nil {
				log.Error().Err(err).Str("credential", key.String()).Msg("failed to revoke credential")
			}
			continue
		}
		cred, ok := refreshed[key]
		if !ok {
			continue
		}
		if err := d.refresher.Persist(ctx, cred); err != nil {
			log.Error().Err(err).Str("credential", key.String()).Msg("failed to persist refreshed credential")
		}
	}
}

func newer(a, b models.Credential) bool {
	if a.AccessExpiresAt == nil {
		return false
	}
	return b.AccessExpiresAt == nil || a.AccessExpiresAt.After(*b.AccessExpiresAt)
}

// snapshot copies cred so a task cannot reach the cache through the expiry
// pointer.
func snapshot(cred models.Credential) models.Credential {
	if cred.AccessExpiresAt != nil {
		exp := *cred.AccessExpiresAt
		cred.AccessExpiresAt = &exp
	}
	return cred
}
