// Package pipeline orchestrates one observation run: ingest, the four
// analytics passes over a shared snapshot, report assembly, council review,
// and publication, all under the exclusive run lock.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"observatory/internal/config"
	"observatory/internal/conflict"
	"observatory/internal/council"
	"observatory/internal/graph"
	"observatory/internal/logging"
	"observatory/internal/meme"
	"observatory/internal/platform/moltbook"
	"observatory/internal/publish"
	"observatory/internal/reasoning"
	"observatory/internal/report"
	"observatory/internal/reputation"
	"observatory/internal/security"
	"observatory/internal/store"
)

// Runner wires the full batch pipeline together.
type Runner struct {
	st   *store.Store
	cfg  *config.Config
	feed moltbook.Feed

	tracker  *meme.Tracker
	detector *conflict.Detector
	scorer   *reputation.Scorer
	scanner  *security.Classifier
	coord    *publish.Coordinator
}

// New builds a runner. feed may be nil for an analyze-only run over
// previously ingested activity.
func New(st *store.Store, cfg *config.Config, client reasoning.Client, feed moltbook.Feed) *Runner {
	c := council.New(client, cfg.Council.PreScreening)
	return &Runner{
		st:       st,
		cfg:      cfg,
		feed:     feed,
		tracker:  meme.New(cfg.Analysis.Meme),
		detector: conflict.New(st, cfg.Analysis.Conflict),
		scorer:   reputation.New(st, cfg.Analysis.Reputation),
		scanner:  security.New(st, cfg.Analysis.Security),
		coord:    publish.New(st, c, cfg.Publish, cfg.CouncilModel()),
	}
}

// RunResult summarizes one completed batch.
type RunResult struct {
	Batch     *store.Batch
	Ingested  *IngestStats
	Edges     int
	Memes     int
	Conflicts *conflict.Summary
	Shocks    int
	NewAlerts int
	Report    *report.Report
	Outcome   *publish.Outcome
}

// Run executes one full batch under the run lock. A second concurrent run
// on the same host gets publish.ErrLockHeld and must exit without side
// effects. Analytics run concurrently over one immutable snapshot; the
// report is assembled only after all four finish, and publication happens
// last.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	lock, err := publish.AcquireLock(r.cfg.Publish.LockPath, r.owner())
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	timer := logging.StartTimer(logging.CategoryPipeline, "Run")
	defer timer.Stop()

	batch, err := r.st.BeginBatch(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}
	res := &RunResult{Batch: batch, Ingested: &IngestStats{}}

	if r.feed != nil {
		ing := NewIngestor(r.st, r.feed, r.cfg.Platform.PageSize)
		res.Ingested, err = ing.Ingest(ctx, batch.Seq)
		if err != nil {
			return nil, fmt.Errorf("ingestion failed: %w", err)
		}
	}

	snap, err := r.st.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	logging.Pipeline("Batch %d snapshot: %d posts, %d comments, %d actors",
		batch.Seq, len(snap.Posts), len(snap.Comments), len(snap.Actors))

	g := graph.Build(snap)
	if err := r.st.ReplaceInteractions(g.Edges); err != nil {
		return nil, fmt.Errorf("failed to store interactions: %w", err)
	}
	res.Edges = len(g.Edges)

	var (
		memeRes    *meme.Result
		repEntries []store.ReputationEntry
		secRep     *security.Report
	)
	var eg errgroup.Group
	eg.Go(func() error {
		memeRes = r.tracker.Analyze(snap)
		return r.persistMemes(memeRes)
	})
	eg.Go(func() error {
		fresh, err := r.st.CommentsForBatch(batch.Seq)
		if err != nil {
			return err
		}
		exchanges := conflict.ExtractExchanges(snap, fresh)
		res.Conflicts, err = r.detector.Process(batch.Seq, exchanges)
		return err
	})
	eg.Go(func() error {
		var err error
		repEntries, err = r.scorer.Score(snap, g, batch.Seq)
		return err
	})
	eg.Go(func() error {
		var err error
		secRep, err = r.scanner.Scan(snap)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("analytics failed for batch %d: %w", batch.Seq, err)
	}
	res.Memes = len(memeRes.Memes)
	res.NewAlerts = len(secRep.NewAlerts)

	in, err := r.collectInputs(snap, g, repEntries, secRep, batch.Seq)
	if err != nil {
		return nil, err
	}
	res.Shocks = len(in.Shocks)

	rep := report.New().Assemble(batch.Seq, in)
	res.Report = rep

	extras, err := report.Exports(in)
	if err != nil {
		return nil, fmt.Errorf("failed to build exports: %w", err)
	}
	dash, err := report.BuildDashboard(batch.Seq, in, secRep.Clusters).JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to build dashboard: %w", err)
	}
	extras["dashboard.json"] = dash

	pub, err := r.coord.Submit(rep)
	if err != nil {
		return nil, err
	}
	res.Outcome, err = r.coord.Process(ctx, pub, rep, extras)
	if err != nil {
		return nil, err
	}

	err = r.st.CompleteBatch(batch.ID, res.Ingested.Posts, res.Ingested.Comments, res.Ingested.Skipped)
	if err != nil {
		return nil, fmt.Errorf("failed to complete batch: %w", err)
	}

	logging.Pipeline("Batch %d complete: %d edges, %d memes, %d new alerts, publication %s",
		batch.Seq, res.Edges, res.Memes, res.NewAlerts, res.Outcome.Verdict)
	return res, nil
}

func (r *Runner) persistMemes(memeRes *meme.Result) error {
	for i := range memeRes.Occurrences {
		if _, err := r.st.RecordMemeOccurrence(&memeRes.Occurrences[i]); err != nil {
			return err
		}
	}
	for i := range memeRes.Memes {
		if err := r.st.UpsertMeme(&memeRes.Memes[i]); err != nil {
			return err
		}
	}
	return nil
}

// collectInputs gathers every derived table the report draws from.
func (r *Runner) collectInputs(snap *store.Snapshot, g *graph.Graph, repEntries []store.ReputationEntry, secRep *security.Report, batchSeq int64) (*report.Inputs, error) {
	memes, err := r.st.SurfacedMemes()
	if err != nil {
		return nil, fmt.Errorf("failed to load memes: %w", err)
	}
	conflicts, err := r.st.AllConflicts()
	if err != nil {
		return nil, fmt.Errorf("failed to load conflicts: %w", err)
	}
	shocks, err := r.scorer.Shocks(batchSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shocks: %w", err)
	}
	alerts, err := r.st.AllAlerts()
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	return &report.Inputs{
		Snapshot:   snap,
		Graph:      g,
		Memes:      memes,
		Conflicts:  conflicts,
		Reputation: repEntries,
		Shocks:     shocks,
		Alerts:     alerts,
		Campaigns:  secRep.Campaigns,
	}, nil
}

func (r *Runner) owner() string {
	if r.cfg.Publish.Owner != "" {
		return r.cfg.Publish.Owner
	}
	return r.cfg.Name
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
