package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// Exports renders the flat tabular companions to the report. The publisher
// writes them next to the document; keeping them as bytes here means one
// component owns all filesystem effects.
func Exports(in *Inputs) (map[string][]byte, error) {
	files := map[string][][]string{
		"posts.csv":     postRows(in),
		"edges.csv":     edgeRows(in),
		"memes.csv":     memeRows(in),
		"actors.csv":    actorRows(in),
		"conflicts.csv": conflictRows(in),
	}

	out := make(map[string][]byte, len(files))
	for name, rows := range files {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", name, err)
		}
		out[name] = buf.Bytes()
	}
	return out, nil
}

func postRows(in *Inputs) [][]string {
	rows := [][]string{{"id", "author_id", "title", "upvotes", "downvotes", "comments", "created_at"}}
	for _, p := range in.Snapshot.Posts {
		rows = append(rows, []string{
			p.ID, p.AuthorID, p.Title,
			strconv.Itoa(p.Upvotes), strconv.Itoa(p.Downvotes), strconv.Itoa(p.CommentCount),
			p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func edgeRows(in *Inputs) [][]string {
	rows := [][]string{{"from", "to", "kind", "weight"}}
	for _, e := range in.Graph.Edges {
		rows = append(rows, []string{e.From, e.To, e.Kind, strconv.Itoa(e.Weight)})
	}
	return rows
}

func memeRows(in *Inputs) [][]string {
	rows := [][]string{{"phrase", "category", "authors", "occurrences", "first_author", "surfaced"}}
	for _, m := range in.Memes {
		rows = append(rows, []string{
			m.Phrase, m.Category,
			strconv.Itoa(m.AuthorCount), strconv.Itoa(m.OccurrenceCount),
			m.FirstAuthor, strconv.FormatBool(m.Surfaced),
		})
	}
	return rows
}

func actorRows(in *Inputs) [][]string {
	rows := [][]string{{"id", "handle", "posts", "comments"}}
	for _, a := range in.Snapshot.Actors {
		rows = append(rows, []string{
			a.ID, a.Handle, strconv.Itoa(a.PostCount), strconv.Itoa(a.CommentCount),
		})
	}
	return rows
}

func conflictRows(in *Inputs) [][]string {
	rows := [][]string{{"actor_a", "actor_b", "topic", "state", "intensity", "winner"}}
	for _, c := range in.Conflicts {
		rows = append(rows, []string{
			c.ActorA, c.ActorB, c.Topic, c.State, strconv.Itoa(c.Intensity), c.Winner,
		})
	}
	return rows
}
