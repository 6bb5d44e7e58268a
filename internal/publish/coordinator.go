// Package publish owns every filesystem and queue side effect of a run: the
// exclusive run lock, deliberation idempotency, atomic artifact writes, and
// the publication status machine.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"observatory/internal/config"
	"observatory/internal/council"
	"observatory/internal/logging"
	"observatory/internal/report"
	"observatory/internal/store"
)

// Coordinator drives candidate reports through deliberation to publication.
type Coordinator struct {
	st      *store.Store
	council *council.Council
	cfg     config.PublishConfig
	model   string
}

// New creates a coordinator.
func New(st *store.Store, c *council.Council, cfg config.PublishConfig, model string) *Coordinator {
	return &Coordinator{st: st, council: c, cfg: cfg, model: model}
}

// Outcome summarizes one processed candidate.
type Outcome struct {
	Publication  *store.Publication
	Verdict      string
	Reused       bool
	ArtifactPath string
	Decision     *council.Decision
	FailureNote  string
}

// Submit enqueues a candidate report for review.
func (co *Coordinator) Submit(rep *report.Report) (*store.Publication, error) {
	p := &store.Publication{
		ID:          uuid.NewString(),
		Fingerprint: rep.Fingerprint(),
		Title:       rep.Title,
	}
	if err := co.st.EnqueuePublication(p); err != nil {
		return nil, err
	}
	p.Status = store.StatusPendingReview
	logging.Publish("Enqueued publication %s for fingerprint %s", p.ID, p.Fingerprint[:12])
	return p, nil
}

// Process takes a pending publication through deliberation and, on approval,
// writes the artifact set atomically. A terminal deliberation already on
// record for the fingerprint is reused without calling the council. Retry
// exhaustion or a fallback verdict records a failed cycle: no publication,
// no approved deliberation, prior artifacts untouched.
func (co *Coordinator) Process(ctx context.Context, pub *store.Publication, rep *report.Report, extras map[string][]byte) (*Outcome, error) {
	fp := rep.Fingerprint()
	out := &Outcome{Publication: pub}

	if err := co.st.TransitionPublication(pub.ID, store.StatusPendingReview, store.StatusInDeliberation, "deliberation started"); err != nil {
		return nil, err
	}

	verdict, decision, note := co.resolveVerdict(ctx, fp, rep, out)
	out.Verdict = verdict
	out.Decision = decision

	switch verdict {
	case store.VerdictApproved:
		if err := co.st.TransitionPublication(pub.ID, store.StatusInDeliberation, store.StatusApproved, note); err != nil {
			return nil, err
		}
		path, err := co.writeArtifacts(rep, extras)
		if err != nil {
			logging.PublishError("Artifact write failed for %s: %v", pub.ID, err)
			if terr := co.st.TransitionPublication(pub.ID, store.StatusApproved, store.StatusFailed, "artifact write failed"); terr != nil {
				return nil, terr
			}
			out.FailureNote = err.Error()
			return out, nil
		}
		if err := co.st.SetArtifactPath(pub.ID, path); err != nil {
			return nil, err
		}
		if err := co.st.TransitionPublication(pub.ID, store.StatusApproved, store.StatusPublished, "artifacts written"); err != nil {
			return nil, err
		}
		out.ArtifactPath = path
		logging.Publish("Published %s at %s", pub.ID, path)

	case store.VerdictRejected:
		if err := co.st.TransitionPublication(pub.ID, store.StatusInDeliberation, store.StatusRejected, note); err != nil {
			return nil, err
		}
		logging.Publish("Rejected %s: %s", pub.ID, note)

	default:
		if err := co.st.TransitionPublication(pub.ID, store.StatusInDeliberation, store.StatusFailed, note); err != nil {
			return nil, err
		}
		out.FailureNote = note
		logging.PublishWarn("Failed cycle for %s: %s", pub.ID, note)
	}

	return out, nil
}

// resolveVerdict returns the verdict for a fingerprint, reusing a terminal
// deliberation when one exists and recording a new one otherwise.
func (co *Coordinator) resolveVerdict(ctx context.Context, fp string, rep *report.Report, out *Outcome) (string, *council.Decision, string) {
	if prior, err := co.st.GetDeliberation(fp); err == nil && prior.Terminal() {
		out.Reused = true
		logging.Publish("Reusing %s deliberation for fingerprint %s", prior.Verdict, fp[:12])
		return prior.Verdict, nil, "reused prior deliberation"
	}

	decision, err := co.council.Deliberate(ctx, rep.Title, rep.Content)
	if err != nil {
		co.saveDeliberation(fp, rep.BatchSeq, store.VerdictFailed, nil, false)
		return store.VerdictFailed, nil, fmt.Sprintf("deliberation failed: %v", err)
	}

	if decision.NeedsHumanReview {
		// A reviewer emitted an unvalidatable verdict. Record a failed,
		// retryable cycle and surface it as an alert row.
		co.saveDeliberation(fp, rep.BatchSeq, store.VerdictFailed, decision, true)
		co.raiseFallbackAlert(fp)
		return store.VerdictFailed, decision, "council fallback, needs human review"
	}

	verdict := store.VerdictRejected
	if decision.Approved {
		verdict = store.VerdictApproved
	}
	co.saveDeliberation(fp, rep.BatchSeq, verdict, decision, false)
	return verdict, decision, decision.Reason
}

func (co *Coordinator) saveDeliberation(fp string, batchSeq int64, verdict string, decision *council.Decision, fallback bool) {
	var verdictJSON string
	if decision != nil {
		if raw, err := json.Marshal(decision); err == nil {
			verdictJSON = string(raw)
		}
	}
	err := co.st.SaveDeliberation(&store.Deliberation{
		Fingerprint: fp,
		BatchSeq:    batchSeq,
		Verdict:     verdict,
		VerdictJSON: verdictJSON,
		Model:       co.model,
		Fallback:    fallback,
	})
	if err != nil {
		logging.PublishError("Failed to save deliberation for %s: %v", fp[:12], err)
	}
}

func (co *Coordinator) raiseFallbackAlert(fp string) {
	err := co.st.RecordAlert(&store.SecurityAlert{
		ItemID:    "deliberation:" + fp,
		ActorID:   "council",
		PatternID: "verdict-validation-failure",
		Family:    "council-fallback",
		Severity:  "high",
		Detail:    "reviewer output failed validation; manual review recommended",
	})
	if err != nil {
		logging.PublishError("Failed to record fallback alert: %v", err)
	}
}

// writeArtifacts commits the report document and its companions, each with
// an atomic rename. The document lands last so its presence implies a
// complete export set.
func (co *Coordinator) writeArtifacts(rep *report.Report, extras map[string][]byte) (string, error) {
	dir := filepath.Join(co.cfg.OutputDir, fmt.Sprintf("batch-%d", rep.BatchSeq))

	names := make([]string, 0, len(extras))
	for name := range extras {
		names = append(names, name)
	}
	// Deterministic write order.
	sort.Strings(names)
	for _, name := range names {
		if err := WriteAtomic(filepath.Join(dir, name), extras[name]); err != nil {
			return "", err
		}
	}

	docPath := filepath.Join(dir, "report.md")
	if err := WriteAtomic(docPath, []byte(rep.Content)); err != nil {
		return "", err
	}
	return docPath, nil
}
