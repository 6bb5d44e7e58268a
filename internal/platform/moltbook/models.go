package moltbook

import "time"

// APIPost is a post as returned by the Moltbook feed API.
type APIPost struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Submolt      string    `json:"submolt"`
	AuthorID     string    `json:"author_id"`
	AuthorHandle string    `json:"author_name"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIComment is a comment as returned by the Moltbook feed API.
// ParentID is empty for top-level comments.
type APIComment struct {
	ID           string    `json:"id"`
	PostID       string    `json:"post_id"`
	ParentID     string    `json:"parent_id"`
	AuthorID     string    `json:"author_id"`
	AuthorHandle string    `json:"author_name"`
	Content      string    `json:"content"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIAgent is a platform account profile.
type APIAgent struct {
	ID           string    `json:"id"`
	Handle       string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Bio          string    `json:"description"`
	PostCount    int       `json:"post_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type postsResponse struct {
	Success bool      `json:"success"`
	Posts   []APIPost `json:"posts"`
	HasMore bool      `json:"has_more"`
}

type commentsResponse struct {
	Success  bool         `json:"success"`
	Comments []APIComment `json:"comments"`
}

type agentResponse struct {
	Success bool     `json:"success"`
	Agent   APIAgent `json:"agent"`
}
