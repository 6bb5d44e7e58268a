package pipeline

import (
	"context"
	"fmt"
	"sort"

	"observatory/internal/logging"
	"observatory/internal/platform/moltbook"
	"observatory/internal/store"
)

// IngestStats counts what one ingestion pass pulled in. Skipped counts
// malformed feed records that were dropped without aborting the pass.
type IngestStats struct {
	Posts    int
	Comments int
	Actors   int
	Skipped  int
}

// Ingestor pulls recent activity from the feed into the store.
type Ingestor struct {
	st       *store.Store
	feed     moltbook.Feed
	pageSize int
}

// NewIngestor creates an ingestor reading up to pageSize posts per pass.
func NewIngestor(st *store.Store, feed moltbook.Feed, pageSize int) *Ingestor {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Ingestor{st: st, feed: feed, pageSize: pageSize}
}

// Ingest fetches recent posts, their comment trees, and the profiles of
// every author seen. Records missing an id or author are counted and
// skipped; a comment fetch failure skips that post's tree only. New
// comments are attributed to batchSeq so later passes can tell them apart
// from re-scraped history.
func (i *Ingestor) Ingest(ctx context.Context, batchSeq int64) (*IngestStats, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "Ingest")
	defer timer.Stop()

	stats := &IngestStats{}

	posts, err := i.feed.RecentPosts(ctx, i.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	// author id -> handle, for profile backfill
	authors := make(map[string]string)

	for _, p := range posts {
		if p.ID == "" || p.AuthorID == "" {
			logging.IngestWarn("Skipping malformed post (id=%q author=%q)", p.ID, p.AuthorID)
			stats.Skipped++
			continue
		}
		err := i.st.UpsertPost(&store.Post{
			ID:           p.ID,
			AuthorID:     p.AuthorID,
			Title:        p.Title,
			Content:      p.Content,
			Submolt:      p.Submolt,
			Upvotes:      p.Upvotes,
			Downvotes:    p.Downvotes,
			CommentCount: p.CommentCount,
			CreatedAt:    p.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		stats.Posts++
		authors[p.AuthorID] = p.AuthorHandle

		if err := i.ingestComments(ctx, p, batchSeq, authors, stats); err != nil {
			return nil, err
		}
	}

	if err := i.backfillActors(ctx, authors, stats); err != nil {
		return nil, err
	}

	logging.Ingest("Ingested %d posts, %d comments, %d actors (%d skipped)",
		stats.Posts, stats.Comments, stats.Actors, stats.Skipped)
	return stats, nil
}

func (i *Ingestor) ingestComments(ctx context.Context, p moltbook.APIPost, batchSeq int64, authors map[string]string, stats *IngestStats) error {
	comments, err := i.feed.CommentsForPost(ctx, p.ID)
	if err != nil {
		// One broken tree must not abort the pass.
		logging.IngestWarn("Skipping comment tree for %s: %v", p.ID, err)
		stats.Skipped++
		return nil
	}

	for _, c := range comments {
		if c.ID == "" || c.AuthorID == "" {
			logging.IngestWarn("Skipping malformed comment (id=%q author=%q)", c.ID, c.AuthorID)
			stats.Skipped++
			continue
		}
		err := i.st.UpsertComment(&store.Comment{
			ID:        c.ID,
			PostID:    p.ID,
			ParentID:  c.ParentID,
			AuthorID:  c.AuthorID,
			Content:   c.Content,
			Submolt:   p.Submolt,
			Upvotes:   c.Upvotes,
			Downvotes: c.Downvotes,
			CreatedAt: c.CreatedAt,
			BatchSeq:  batchSeq,
		})
		if err != nil {
			return err
		}
		stats.Comments++
		authors[c.AuthorID] = c.AuthorHandle
	}
	return nil
}

// backfillActors upserts a profile for every author seen this pass. When the
// profile endpoint fails we still record the id and handle so the graph can
// resolve mentions.
func (i *Ingestor) backfillActors(ctx context.Context, authors map[string]string, stats *IngestStats) error {
	ids := make([]string, 0, len(authors))
	for id := range authors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		actor := &store.Actor{ID: id, Handle: authors[id]}
		if profile, err := i.feed.Agent(ctx, id); err != nil {
			logging.IngestWarn("Profile fetch failed for %s, keeping stub: %v", id, err)
		} else {
			actor.Handle = profile.Handle
			actor.DisplayName = profile.DisplayName
			actor.Bio = profile.Bio
			actor.PostCount = profile.PostCount
			actor.CommentCount = profile.CommentCount
			actor.FirstSeen = profile.CreatedAt
		}
		if actor.Handle == "" {
			actor.Handle = id
		}
		if actor.FirstSeen.IsZero() {
			actor.FirstSeen = nowUTC()
		}
		actor.LastSeen = nowUTC()

		if err := i.st.UpsertActor(actor); err != nil {
			return err
		}
		stats.Actors++
	}
	return nil
}
