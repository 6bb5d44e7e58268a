package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Post is a raw scraped platform post.
type Post struct {
	ID           string
	AuthorID     string
	Title        string
	Content      string
	Submolt      string
	Upvotes      int
	Downvotes    int
	CommentCount int
	CreatedAt    time.Time
}

// Comment is a raw scraped platform comment. ParentID is empty for
// top-level comments, otherwise the id of the parent comment. BatchSeq is
// the ingestion batch that first saw the comment.
type Comment struct {
	ID        string
	PostID    string
	ParentID  string
	AuthorID  string
	Content   string
	Submolt   string
	Upvotes   int
	Downvotes int
	CreatedAt time.Time
	BatchSeq  int64
}

// Actor is a platform account.
type Actor struct {
	ID           string
	Handle       string
	DisplayName  string
	Bio          string
	FirstSeen    time.Time
	LastSeen     time.Time
	PostCount    int
	CommentCount int
}

// UpsertPost inserts a post, or refreshes only its engagement counters if it
// already exists. Identity fields never change once ingested.
func (s *Store) UpsertPost(p *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO posts (id, author_id, title, content, submolt, upvotes, downvotes, comment_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 upvotes = excluded.upvotes,
		 downvotes = excluded.downvotes,
		 comment_count = excluded.comment_count`,
		p.ID, p.AuthorID, p.Title, p.Content, p.Submolt,
		p.Upvotes, p.Downvotes, p.CommentCount, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", p.ID, err)
	}
	return nil
}

// UpsertComment inserts a comment, or refreshes only its vote counters.
func (s *Store) UpsertComment(c *Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO comments (id, post_id, parent_id, author_id, content, submolt, upvotes, downvotes, created_at, batch_seq)
		 VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 upvotes = excluded.upvotes,
		 downvotes = excluded.downvotes`,
		c.ID, c.PostID, c.ParentID, c.AuthorID, c.Content, c.Submolt,
		c.Upvotes, c.Downvotes, c.CreatedAt.UTC(), c.BatchSeq,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert comment %s: %w", c.ID, err)
	}
	return nil
}

// UpsertActor inserts an actor, or refreshes its handle, activity counters
// and last_seen timestamp.
func (s *Store) UpsertActor(a *Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO actors (id, handle, display_name, bio, first_seen, last_seen, post_count, comment_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 handle = excluded.handle,
		 display_name = excluded.display_name,
		 bio = excluded.bio,
		 last_seen = excluded.last_seen,
		 post_count = excluded.post_count,
		 comment_count = excluded.comment_count`,
		a.ID, a.Handle, a.DisplayName, a.Bio,
		a.FirstSeen.UTC(), a.LastSeen.UTC(), a.PostCount, a.CommentCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert actor %s: %w", a.ID, err)
	}
	return nil
}

// GetPost retrieves a post by id.
func (s *Store) GetPost(id string) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := &Post{}
	err := s.db.QueryRow(
		`SELECT id, author_id, title, content, submolt, upvotes, downvotes, comment_count, created_at
		 FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Submolt,
		&p.Upvotes, &p.Downvotes, &p.CommentCount, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AllPosts returns every ingested post ordered by creation time.
func (s *Store) AllPosts() ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, author_id, title, content, submolt, upvotes, downvotes, comment_count, created_at
		 FROM posts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Submolt,
			&p.Upvotes, &p.Downvotes, &p.CommentCount, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// AllComments returns every ingested comment ordered by creation time.
func (s *Store) AllComments() ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, post_id, COALESCE(parent_id, ''), author_id, content, submolt, upvotes, downvotes, created_at, COALESCE(batch_seq, 0)
		 FROM comments ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanComments(rows)
}

// CommentsForBatch returns the comments first ingested in the given batch,
// ordered by creation time.
func (s *Store) CommentsForBatch(batchSeq int64) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, post_id, COALESCE(parent_id, ''), author_id, content, submolt, upvotes, downvotes, created_at, COALESCE(batch_seq, 0)
		 FROM comments WHERE batch_seq = ? ORDER BY created_at, id`, batchSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanComments(rows)
}

func scanComments(rows *sql.Rows) ([]Comment, error) {
	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.ParentID, &c.AuthorID, &c.Content,
			&c.Submolt, &c.Upvotes, &c.Downvotes, &c.CreatedAt, &c.BatchSeq); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// AllActors returns every known actor.
func (s *Store) AllActors() ([]Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, handle, COALESCE(display_name, ''), COALESCE(bio, ''),
		        first_seen, last_seen, post_count, comment_count
		 FROM actors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []Actor
	for rows.Next() {
		var a Actor
		if err := rows.Scan(&a.ID, &a.Handle, &a.DisplayName, &a.Bio,
			&a.FirstSeen, &a.LastSeen, &a.PostCount, &a.CommentCount); err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

// ActorIDByHandle resolves a handle to an actor id.
func (s *Store) ActorIDByHandle(handle string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	err := s.db.QueryRow("SELECT id FROM actors WHERE handle = ?", handle).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Snapshot is the immutable view of raw activity that one analysis cycle
// operates over. All four analytics read the same snapshot.
type Snapshot struct {
	Posts    []Post
	Comments []Comment
	Actors   []Actor
}

// LoadSnapshot reads all raw activity for an analysis cycle.
func (s *Store) LoadSnapshot() (*Snapshot, error) {
	posts, err := s.AllPosts()
	if err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}
	comments, err := s.AllComments()
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	actors, err := s.AllActors()
	if err != nil {
		return nil, fmt.Errorf("failed to load actors: %w", err)
	}
	return &Snapshot{Posts: posts, Comments: comments, Actors: actors}, nil
}
