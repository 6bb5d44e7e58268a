package moltbook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecentPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %q, want 2", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer mb-key" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"success":true,"posts":[
			{"id":"p1","title":"one","author_id":"a1","author_name":"alice","created_at":"2026-08-01T10:00:00Z"},
			{"id":"p2","title":"two","author_id":"a2","author_name":"bob","created_at":"2026-08-01T11:00:00Z"}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "mb-key"})
	posts, err := c.RecentPosts(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(posts))
	}
	if posts[0].ID != "p1" || posts[0].AuthorHandle != "alice" {
		t.Errorf("first post = %+v", posts[0])
	}
}

func TestCommentsForPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts/p1/comments" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"success":true,"comments":[
			{"id":"c1","post_id":"p1","author_id":"a2","content":"reply","parent_id":""}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	comments, err := c.CommentsForPost(context.Background(), "p1")
	if err != nil {
		t.Fatalf("CommentsForPost: %v", err)
	}
	if len(comments) != 1 || comments[0].ID != "c1" {
		t.Errorf("comments = %+v", comments)
	}
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"down for maintenance"}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.RecentPosts(context.Background(), 1); err == nil {
		t.Fatal("expected error for 503")
	}
}
