// Package finalize turns a terminating session into a durable CallRecord.
// Every step is best effort: a failed summary, analysis, or write never
// blocks the others, and nothing here surfaces to the caller because the
// call is already over.
package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quietline/quietline/pkg/screen"
	"github.com/quietline/quietline/pkg/screen/extract"
)

// Summarizer is the post-call slice of the conversational model.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []screen.TranscriptEvent) (string, error)
	Analyze(ctx context.Context, transcript []screen.TranscriptEvent) (screen.Analysis, error)
}

// StatsDelta is the increment applied to a user's running totals.
type StatsDelta struct {
	CallsDelta    int64
	DurationDelta int64
}

// Store persists finished calls.
type Store interface {
	CreateCall(ctx context.Context, record *screen.CallRecord) (string, error)
	UpdateStats(ctx context.Context, userID string, delta StatsDelta) error
}

// Cleanup releases per-session adapter resources (transcription stream,
// transport handle). Errors are logged, never propagated.
type Cleanup func() error

type Config struct {
	SummaryTimeout  time.Duration
	AnalysisTimeout time.Duration
	PersistTimeout  time.Duration
}

type Finalizer struct {
	summarizer Summarizer
	store      Store
	logger     *slog.Logger
	cfg        Config
}

func New(summarizer Summarizer, store Store, logger *slog.Logger, cfg Config) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = 15 * time.Second
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 15 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	return &Finalizer{summarizer: summarizer, store: store, logger: logger, cfg: cfg}
}

// Finalize assembles and persists the record for a terminating session.
// It blocks until done or ctx expires; each external call carries its own
// bounded timeout beneath ctx.
func (f *Finalizer) Finalize(ctx context.Context, sess *screen.CallSession) *screen.CallRecord {
	end := sess.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	duration := int64(end.Sub(sess.StartTime) / time.Second)
	if duration < 0 {
		duration = 0
	}

	record := &screen.CallRecord{
		CallID:          sess.CallID,
		SessionID:       sess.SessionID,
		UserID:          sess.UserID,
		CallerNumber:    sess.CallerNumber,
		StartTime:       sess.StartTime,
		EndTime:         end,
		DurationSeconds: duration,
		Transcript:      sess.Transcript,
		Turns:           sess.Turns,
		Summary:         f.summarize(ctx, sess),
		Analysis:        f.analyze(ctx, sess),
	}

	info := extract.Caller(sess.Transcript)
	record.CallerName = info.Name
	record.CallPurpose = info.Purpose

	f.persist(ctx, record)
	return record
}

func (f *Finalizer) summarize(ctx context.Context, sess *screen.CallSession) string {
	if f.summarizer == nil || len(sess.Transcript) == 0 {
		return defaultSummary(sess)
	}
	sctx, cancel := context.WithTimeout(ctx, f.cfg.SummaryTimeout)
	defer cancel()

	summary, err := f.summarizer.Summarize(sctx, sess.Transcript)
	if err != nil || summary == "" {
		f.logger.Warn("summary generation failed, using default",
			"session_id", sess.SessionID, "error", err)
		return defaultSummary(sess)
	}
	return summary
}

func (f *Finalizer) analyze(ctx context.Context, sess *screen.CallSession) screen.Analysis {
	if f.summarizer == nil || len(sess.Transcript) == 0 {
		return screen.DefaultAnalysis()
	}
	actx, cancel := context.WithTimeout(ctx, f.cfg.AnalysisTimeout)
	defer cancel()

	analysis, err := f.summarizer.Analyze(actx, sess.Transcript)
	if err != nil {
		f.logger.Warn("conversation analysis failed, using defaults",
			"session_id", sess.SessionID, "error", err)
		return screen.DefaultAnalysis()
	}
	return normalizeAnalysis(analysis)
}

func (f *Finalizer) persist(ctx context.Context, record *screen.CallRecord) {
	// A record without a call id has nothing to be keyed by; skipping is a
	// precondition, not a failure.
	if record.CallID == "" {
		f.logger.Info("skipping persistence, no call id", "session_id", record.SessionID)
		return
	}
	if f.store == nil {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, f.cfg.PersistTimeout)
	defer cancel()
	if _, err := f.store.CreateCall(pctx, record); err != nil {
		f.logger.Error("failed to persist call record",
			"call_id", record.CallID, "session_id", record.SessionID, "error", err)
	}

	// Stats are written independently of the record; one failing must not
	// roll back the other.
	sctx, cancel2 := context.WithTimeout(ctx, f.cfg.PersistTimeout)
	defer cancel2()
	delta := StatsDelta{CallsDelta: 1, DurationDelta: record.DurationSeconds}
	if err := f.store.UpdateStats(sctx, record.UserID, delta); err != nil {
		f.logger.Error("failed to update user stats",
			"user_id", record.UserID, "call_id", record.CallID, "error", err)
	}
}

func defaultSummary(sess *screen.CallSession) string {
	if len(sess.Turns) == 0 {
		return "Screened call with no conversation recorded."
	}
	return fmt.Sprintf("Screened call from %s with %d exchange(s); no AI summary available.",
		sess.CallerNumber, len(sess.Turns))
}

// Malformed model output is treated the same as an analyze failure.
func normalizeAnalysis(a screen.Analysis) screen.Analysis {
	switch a.Sentiment {
	case screen.SentimentPositive, screen.SentimentNeutral, screen.SentimentNegative:
	default:
		a.Sentiment = screen.SentimentNeutral
	}
	switch a.Urgency {
	case screen.UrgencyLow, screen.UrgencyMedium, screen.UrgencyHigh:
	default:
		a.Urgency = screen.UrgencyMedium
	}
	return a
}
