package report

import (
	"encoding/json"

	"observatory/internal/store"
)

// Dashboard is the compact aggregate snapshot consumed read-only by the
// presentation layer.
type Dashboard struct {
	BatchSeq        int64               `json:"batch_seq"`
	Actors          int                 `json:"actors"`
	Posts           int                 `json:"posts"`
	Comments        int                 `json:"comments"`
	Edges           int                 `json:"edges"`
	SurfacedMemes   int                 `json:"surfaced_memes"`
	ActiveConflicts int                 `json:"active_conflicts"`
	AlertCount      int                 `json:"alert_count"`
	TopCentrality   []ActorScore        `json:"top_centrality"`
	TopReputation   []ActorScore        `json:"top_reputation"`
	FlaggedClusters map[string][]string `json:"flagged_clusters,omitempty"`
}

// BuildDashboard derives the summary from the same inputs as the report.
func BuildDashboard(batchSeq int64, in *Inputs, clusters map[string][]string) *Dashboard {
	d := &Dashboard{
		BatchSeq:        batchSeq,
		Actors:          len(in.Snapshot.Actors),
		Posts:           len(in.Snapshot.Posts),
		Comments:        len(in.Snapshot.Comments),
		Edges:           len(in.Graph.Edges),
		AlertCount:      len(in.Alerts),
		TopCentrality:   topCentrality(in.Graph, topActors),
		FlaggedClusters: clusters,
	}
	for _, m := range in.Memes {
		if m.Surfaced {
			d.SurfacedMemes++
		}
	}
	for _, c := range in.Conflicts {
		if c.State == store.ConflictActive {
			d.ActiveConflicts++
		}
	}
	for i, e := range in.Reputation {
		if i >= topActors {
			break
		}
		d.TopReputation = append(d.TopReputation, ActorScore{ActorID: e.ActorID, Score: e.Score})
	}
	return d
}

// JSON renders the dashboard with stable indentation.
func (d *Dashboard) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
