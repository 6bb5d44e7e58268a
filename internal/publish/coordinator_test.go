package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"observatory/internal/config"
	"observatory/internal/council"
	"observatory/internal/report"
	"observatory/internal/store"
)

type fakeClient struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.responses[(f.calls-1)%len(f.responses)], nil
}

const approval = `{"approve": true, "reasoning": "fine", "recommendation": "publish"}`
const rejection = `{"approve": false, "reasoning": "no", "recommendation": "reject"}`

func newHarness(t *testing.T, fc *fakeClient) (*Coordinator, *store.Store, string) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	outDir := t.TempDir()
	cfg := config.PublishConfig{OutputDir: outDir, Owner: "test"}
	co := New(st, council.New(fc, false), cfg, "test-model")
	return co, st, outDir
}

func testReport() *report.Report {
	return &report.Report{
		BatchSeq: 3,
		Title:    "Field Report Batch 3",
		Content:  "# Field Report Batch 3\n\nquiet week on the reef\n",
	}
}

func process(t *testing.T, co *Coordinator, rep *report.Report) *Outcome {
	t.Helper()
	pub, err := co.Submit(rep)
	if err != nil {
		t.Fatal(err)
	}
	out, err := co.Process(context.Background(), pub, rep, map[string][]byte{
		"edges.csv": []byte("from,to,kind,weight\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestApprovedReportPublishes(t *testing.T) {
	fc := &fakeClient{responses: []string{approval}}
	co, st, outDir := newHarness(t, fc)
	rep := testReport()

	out := process(t, co, rep)

	if out.Verdict != store.VerdictApproved || out.ArtifactPath == "" {
		t.Fatalf("outcome = %+v", out)
	}

	got, err := os.ReadFile(out.ArtifactPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != rep.Content {
		t.Errorf("artifact content mismatch")
	}
	if _, err := os.Stat(filepath.Join(outDir, "batch-3", "edges.csv")); err != nil {
		t.Errorf("companion export missing: %v", err)
	}

	pub, err := st.GetPublication(out.Publication.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pub.Status != store.StatusPublished || pub.ArtifactPath != out.ArtifactPath {
		t.Errorf("publication = %+v", pub)
	}

	log, err := st.PublicationLog(pub.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantStatuses := []string{
		store.StatusPendingReview, store.StatusInDeliberation,
		store.StatusApproved, store.StatusPublished,
	}
	if len(log) != len(wantStatuses) {
		t.Fatalf("audit rows = %d, want %d", len(log), len(wantStatuses))
	}
	for i, want := range wantStatuses {
		if log[i].ToStatus != want {
			t.Errorf("audit[%d] = %q, want %q", i, log[i].ToStatus, want)
		}
	}
}

func TestTerminalDeliberationReused(t *testing.T) {
	fc := &fakeClient{responses: []string{approval}}
	co, st, _ := newHarness(t, fc)
	rep := testReport()

	process(t, co, rep)
	callsAfterFirst := fc.calls

	out := process(t, co, rep)
	if !out.Reused {
		t.Error("second cycle must reuse the terminal deliberation")
	}
	if fc.calls != callsAfterFirst {
		t.Errorf("calls = %d, want no further reviewer traffic", fc.calls)
	}

	d, err := st.GetDeliberation(rep.Fingerprint())
	if err != nil {
		t.Fatal(err)
	}
	if d.Verdict != store.VerdictApproved {
		t.Errorf("deliberation = %+v", d)
	}
}

func TestRejectionIsTerminalToo(t *testing.T) {
	// Guardian rejects every time; reuse must not re-ask.
	fc := &fakeClient{responses: []string{rejection, approval, approval, approval, approval}}
	co, st, outDir := newHarness(t, fc)
	rep := testReport()

	out := process(t, co, rep)
	if out.Verdict != store.VerdictRejected {
		t.Fatalf("outcome = %+v", out)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Error("rejected report must not produce artifacts")
	}

	callsAfterFirst := fc.calls
	out = process(t, co, rep)
	if !out.Reused || out.Verdict != store.VerdictRejected || fc.calls != callsAfterFirst {
		t.Errorf("reuse outcome = %+v, calls = %d", out, fc.calls)
	}

	pub, _ := st.GetPublication(out.Publication.ID)
	if pub.Status != store.StatusRejected {
		t.Errorf("publication status = %q", pub.Status)
	}
}

func TestRetryExhaustionRecordsFailedCycle(t *testing.T) {
	fc := &fakeClient{err: errors.New("request timed out")}
	co, st, outDir := newHarness(t, fc)
	rep := testReport()

	out := process(t, co, rep)
	if out.Verdict != store.VerdictFailed || out.FailureNote == "" {
		t.Fatalf("outcome = %+v", out)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Error("failed cycle must not produce artifacts")
	}

	d, err := st.GetDeliberation(rep.Fingerprint())
	if err != nil {
		t.Fatal(err)
	}
	if d.Verdict != store.VerdictFailed || d.Terminal() {
		t.Errorf("deliberation = %+v, want retryable failure", d)
	}

	pub, _ := st.GetPublication(out.Publication.ID)
	if pub.Status != store.StatusFailed {
		t.Errorf("publication status = %q", pub.Status)
	}

	// A later healthy cycle can still deliberate the same fingerprint.
	fc.err = nil
	fc.responses = []string{approval}
	out = process(t, co, rep)
	if out.Verdict != store.VerdictApproved || out.Reused {
		t.Errorf("recovery outcome = %+v", out)
	}
}

func TestFallbackVerdictFailsWithoutArtifact(t *testing.T) {
	// The third seat returns prose instead of JSON.
	fc := &fakeClient{responses: []string{approval, approval, "LGTM!!", approval, approval}}
	co, st, outDir := newHarness(t, fc)
	rep := testReport()

	out := process(t, co, rep)
	if out.Verdict != store.VerdictFailed {
		t.Fatalf("outcome = %+v, want failed cycle on fallback", out)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Error("fallback verdict must not produce artifacts")
	}

	d, err := st.GetDeliberation(rep.Fingerprint())
	if err != nil {
		t.Fatal(err)
	}
	if !d.Fallback || d.Terminal() {
		t.Errorf("deliberation = %+v, want retryable fallback", d)
	}

	alerts, err := st.AllAlerts()
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].Family != "council-fallback" {
		t.Errorf("alerts = %+v, want one council-fallback row", alerts)
	}
}
