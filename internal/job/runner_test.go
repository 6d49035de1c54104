package job

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nexflow/internal/asset"
	"nexflow/internal/graph"
	"nexflow/internal/ledger"
	"nexflow/internal/provider"
)

type failingStorage struct{}

func (failingStorage) Save(ctx context.Context, remoteURL, hint string) (string, error) {
	return "", errors.New("disk full")
}

type recordingStorage struct {
	saves int
}

func (s *recordingStorage) Save(ctx context.Context, remoteURL, hint string) (string, error) {
	s.saves++
	return "/data/artifacts/saved.bin", nil
}

type runnerRig struct {
	store  *graph.Store
	fake   *provider.Fake
	ledger *ledger.Store
	clock  *FakeClock
	runner *Runner
}

func newRunnerRig(t *testing.T, kind graph.Kind, fake *provider.Fake, storage asset.Storage) *runnerRig {
	t.Helper()
	store := graph.NewStore()
	reg := provider.NewRegistry()
	reg.Register(kind, fake)
	led := ledger.New(filepath.Join(t.TempDir(), "tasks.json"))
	clk := NewFakeClock(time.Unix(1_700_000_000, 0))
	return &runnerRig{
		store:  store,
		fake:   fake,
		ledger: led,
		clock:  clk,
		runner: NewRunner(store, reg, asset.NewMaterializer(storage), led, clk),
	}
}

func (rig *runnerRig) addNode(t *testing.T, id string, kind graph.Kind, data map[string]any) {
	t.Helper()
	if err := rig.store.AddNode(&graph.Node{ID: id, Kind: kind, Data: data}); err != nil {
		t.Fatalf("add node: %v", err)
	}
}

// runAsync drives Run on its own goroutine and returns a channel with the
// result, so the test can steer the fake clock.
func (rig *runnerRig) runAsync(ctx context.Context, nodeID string) <-chan *Job {
	out := make(chan *Job, 1)
	go func() {
		j, _ := rig.runner.Run(ctx, nodeID)
		out <- j
	}()
	return out
}

func waitJob(t *testing.T, ch <-chan *Job) *Job {
	t.Helper()
	select {
	case j := <-ch:
		return j
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
		return nil
	}
}

func TestSyncTextResultSkipsPolling(t *testing.T) {
	fake := &provider.Fake{SubmitRes: provider.SubmitResult{ResultText: "a haiku"}}
	rig := newRunnerRig(t, graph.KindLanguageModel, fake, nil)
	rig.addNode(t, "lm", graph.KindLanguageModel, map[string]any{graph.FieldInputText: "write a haiku"})

	j, err := rig.runner.Run(context.Background(), "lm")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.State != StateSuccess {
		t.Fatalf("state = %s, want %s", j.State, StateSuccess)
	}
	if fake.Polls() != 0 {
		t.Fatalf("sync result still polled %d times", fake.Polls())
	}

	n, _ := rig.store.GetNode("lm")
	if got := n.Str(graph.FieldOutputText); got != "a haiku" {
		t.Fatalf("outputText = %q", got)
	}
	recs := rig.ledger.List()
	if len(recs) != 1 || recs[0].Status != ledger.StatusSuccess {
		t.Fatalf("ledger = %+v", recs)
	}
	if recs[0].Prompt != "write a haiku" {
		t.Fatalf("recorded prompt = %q", recs[0].Prompt)
	}
}

func TestAsyncJobPollsUntilResult(t *testing.T) {
	fake := &provider.Fake{
		SubmitRes: provider.SubmitResult{TaskID: "task-1"},
		PollScript: []provider.PollStep{
			{Res: provider.PollResult{Status: provider.StatusQueued}},
			{Res: provider.PollResult{Status: provider.StatusRunning}},
			{Res: provider.PollResult{Status: provider.StatusSuccess, ResultURL: "https://cdn/out.png"}},
		},
	}
	storage := &recordingStorage{}
	rig := newRunnerRig(t, graph.KindImage, fake, storage)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "a fox"})

	done := rig.runAsync(context.Background(), "img")
	for i := 1; i <= 2; i++ {
		rig.clock.AwaitSleepers(i)
		rig.clock.Advance(pollFast)
	}
	j := waitJob(t, done)

	if j.State != StateSuccess {
		t.Fatalf("state = %s (%s)", j.State, j.LastError)
	}
	if j.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", j.Attempts)
	}
	if storage.saves != 1 {
		t.Fatalf("storage saves = %d", storage.saves)
	}
	n, _ := rig.store.GetNode("img")
	if got := n.Str(graph.FieldOutputImage); got != "/data/artifacts/saved.bin" {
		t.Fatalf("outputImage = %q", got)
	}
	recs := rig.ledger.List()
	if len(recs) != 1 || recs[0].ArtifactURL != "https://cdn/out.png" || recs[0].LocalPath != "/data/artifacts/saved.bin" {
		t.Fatalf("ledger = %+v", recs)
	}
}

func TestMaterializationFailureKeepsJobSuccessful(t *testing.T) {
	fake := &provider.Fake{
		SubmitRes:  provider.SubmitResult{TaskID: "task-1"},
		PollScript: []provider.PollStep{{Res: provider.PollResult{Status: provider.StatusSuccess, ResultURL: "https://cdn/clip.mp4"}}},
	}
	rig := newRunnerRig(t, graph.KindVideo, fake, failingStorage{})
	rig.addNode(t, "vid", graph.KindVideo, map[string]any{graph.FieldPrompt: "a storm"})

	j, err := rig.runner.Run(context.Background(), "vid")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.State != StateSuccess {
		t.Fatalf("state = %s, want success despite storage failure", j.State)
	}
	if j.ResultLocal != "https://cdn/clip.mp4" {
		t.Fatalf("local result = %q, want remote fallback", j.ResultLocal)
	}
	n, _ := rig.store.GetNode("vid")
	if got := n.Str(graph.FieldOutputVideo); got != "https://cdn/clip.mp4" {
		t.Fatalf("outputVideo = %q", got)
	}
}

func TestJobTimesOutAfterBudget(t *testing.T) {
	fake := &provider.Fake{SubmitRes: provider.SubmitResult{TaskID: "task-1"}}
	rig := newRunnerRig(t, graph.KindImage, fake, nil)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "slow"})

	done := rig.runAsync(context.Background(), "img")
	rig.clock.AwaitSleepers(1)
	rig.clock.Advance(maxElapsed + time.Second)
	j := waitJob(t, done)

	if j.State != StateError {
		t.Fatalf("state = %s, want error", j.State)
	}
	if !strings.Contains(j.LastError, "timeout") {
		t.Fatalf("lastError = %q", j.LastError)
	}
	n, _ := rig.store.GetNode("img")
	if n.Str(graph.FieldErrorMessage) == "" {
		t.Fatal("node has no error message")
	}
	recs := rig.ledger.List()
	if len(recs) != 1 || recs[0].Status != ledger.StatusError {
		t.Fatalf("ledger = %+v", recs)
	}
}

func TestPollIntervalSlowsAfterFastWindow(t *testing.T) {
	fake := &provider.Fake{
		SubmitRes: provider.SubmitResult{TaskID: "task-1"},
		PollScript: []provider.PollStep{
			{Res: provider.PollResult{Status: provider.StatusRunning}},
			{Res: provider.PollResult{Status: provider.StatusRunning}},
			{Res: provider.PollResult{Status: provider.StatusSuccess, ResultURL: "https://cdn.example/out.png"}},
		},
	}
	rig := newRunnerRig(t, graph.KindImage, fake, nil)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "slow"})

	done := rig.runAsync(context.Background(), "img")
	rig.clock.AwaitSleepers(1)
	rig.clock.Advance(fastWindow)
	rig.clock.AwaitSleepers(2)
	rig.clock.Advance(pollSlow)
	j := waitJob(t, done)

	if j.State != StateSuccess {
		t.Fatalf("state = %s, want success", j.State)
	}
	durs := rig.clock.SleepDurations()
	if len(durs) != 2 {
		t.Fatalf("sleep count = %d, want 2 (%v)", len(durs), durs)
	}
	if durs[0] != pollFast {
		t.Fatalf("first interval = %s, want %s", durs[0], pollFast)
	}
	if durs[1] != pollSlow {
		t.Fatalf("interval past the fast window = %s, want %s", durs[1], pollSlow)
	}
}

func TestTransientBackoffDoesNotResetTimeoutBudget(t *testing.T) {
	fake := &provider.Fake{
		SubmitRes:  provider.SubmitResult{TaskID: "task-1"},
		PollScript: []provider.PollStep{{Err: &provider.TransientError{Err: errors.New("connection reset")}}},
	}
	rig := newRunnerRig(t, graph.KindImage, fake, nil)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "flaky"})

	done := rig.runAsync(context.Background(), "img")
	// Every poll fails transiently, so the runner keeps retrying on the
	// backoff interval. The overall budget is anchored at submission time
	// and must expire regardless.
	for i := 1; i <= 4; i++ {
		rig.clock.AwaitSleepers(i)
		rig.clock.Advance(maxElapsed / 4)
	}
	j := waitJob(t, done)

	if j.State != StateError {
		t.Fatalf("state = %s, want error", j.State)
	}
	if !strings.Contains(j.LastError, "timeout") {
		t.Fatalf("lastError = %q, want the timeout, not the transient error", j.LastError)
	}
	if got := fake.Polls(); got != 4 {
		t.Fatalf("polls = %d, want 4", got)
	}
	for _, d := range rig.clock.SleepDurations() {
		if d != retryBackoff {
			t.Fatalf("transient retry slept %s, want %s", d, retryBackoff)
		}
	}
}

func TestTransientPollErrorRetriesWithoutFailing(t *testing.T) {
	fake := &provider.Fake{
		SubmitRes: provider.SubmitResult{TaskID: "task-1"},
		PollScript: []provider.PollStep{
			{Err: &provider.TransientError{Err: errors.New("connection reset")}},
			{Res: provider.PollResult{Status: provider.StatusSuccess, ResultURL: "https://cdn/out.png"}},
		},
	}
	rig := newRunnerRig(t, graph.KindImage, fake, nil)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "retry me"})

	done := rig.runAsync(context.Background(), "img")
	rig.clock.AwaitSleepers(1)
	rig.clock.Advance(retryBackoff)
	j := waitJob(t, done)

	if j.State != StateSuccess {
		t.Fatalf("state = %s (%s)", j.State, j.LastError)
	}
	if fake.Polls() != 2 {
		t.Fatalf("polls = %d, want 2", fake.Polls())
	}
}

func TestTerminalPollErrorFailsImmediately(t *testing.T) {
	fake := &provider.Fake{
		SubmitRes:  provider.SubmitResult{TaskID: "task-1"},
		PollScript: []provider.PollStep{{Err: &provider.ProviderError{Code: "404", Message: "task not found"}}},
	}
	rig := newRunnerRig(t, graph.KindImage, fake, nil)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "gone"})

	j, err := rig.runner.Run(context.Background(), "img")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.State != StateError || !strings.Contains(j.LastError, "404") {
		t.Fatalf("job = %+v", j)
	}
	n, _ := rig.store.GetNode("img")
	if got := n.Str(graph.FieldErrorMessage); !strings.Contains(got, "task not found") {
		t.Fatalf("errorMessage = %q", got)
	}
}

func TestSuccessWithoutResultKeepsPolling(t *testing.T) {
	fake := &provider.Fake{
		SubmitRes: provider.SubmitResult{TaskID: "task-1"},
		PollScript: []provider.PollStep{
			{Res: provider.PollResult{Status: provider.StatusSuccess}},
			{Res: provider.PollResult{Status: provider.StatusSuccess, ResultURL: "https://cdn/late.png"}},
		},
	}
	rig := newRunnerRig(t, graph.KindImage, fake, nil)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "lagging"})

	done := rig.runAsync(context.Background(), "img")
	rig.clock.AwaitSleepers(1)
	rig.clock.Advance(pollFast)
	j := waitJob(t, done)

	if j.State != StateSuccess {
		t.Fatalf("state = %s (%s)", j.State, j.LastError)
	}
	if fake.Polls() != 2 {
		t.Fatalf("polls = %d, want 2", fake.Polls())
	}
}

func TestSongModeRequiresLyricsBeforeSubmit(t *testing.T) {
	fake := &provider.Fake{SubmitRes: provider.SubmitResult{TaskID: "task-1"}}
	rig := newRunnerRig(t, graph.KindAudio, fake, nil)
	rig.addNode(t, "song", graph.KindAudio, map[string]any{
		graph.FieldModel:     SongModel,
		graph.FieldSongName:  "Night Drive",
		graph.FieldStyleDesc: "synthwave",
		graph.FieldText:      "ignored in song mode",
	})

	j, err := rig.runner.Run(context.Background(), "song")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.State != StateError {
		t.Fatalf("state = %s, want validation error", j.State)
	}
	if !strings.Contains(j.LastError, graph.FieldLyrics) {
		t.Fatalf("lastError = %q", j.LastError)
	}
	if fake.Submits() != 0 {
		t.Fatalf("submits = %d, want 0", fake.Submits())
	}
}

func TestAudioTextModeValidates(t *testing.T) {
	fake := &provider.Fake{SubmitRes: provider.SubmitResult{ResultText: ""}}
	rig := newRunnerRig(t, graph.KindAudio, fake, nil)
	rig.addNode(t, "audio", graph.KindAudio, nil)

	j, _ := rig.runner.Run(context.Background(), "audio")
	if j.State != StateError || !strings.Contains(j.LastError, graph.FieldText) {
		t.Fatalf("job = %+v", j)
	}
	if fake.Submits() != 0 {
		t.Fatalf("submits = %d, want 0", fake.Submits())
	}
}

func TestNonGenerativeKindRejected(t *testing.T) {
	fake := &provider.Fake{}
	rig := newRunnerRig(t, graph.KindText, fake, nil)
	rig.addNode(t, "txt", graph.KindText, map[string]any{graph.FieldContent: "hello"})

	j, _ := rig.runner.Run(context.Background(), "txt")
	if j.State != StateError || !strings.Contains(j.LastError, "not generative") {
		t.Fatalf("job = %+v", j)
	}
}

func TestSecondTriggerOnBusyNodeRejected(t *testing.T) {
	fake := &provider.Fake{SubmitRes: provider.SubmitResult{TaskID: "task-1"}}
	rig := newRunnerRig(t, graph.KindImage, fake, nil)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "busy"})

	ctx, cancel := context.WithCancel(context.Background())
	done := rig.runAsync(ctx, "img")
	rig.clock.AwaitSleepers(1)

	if !rig.runner.Busy("img") {
		t.Fatal("node should be busy")
	}
	if _, err := rig.runner.Run(context.Background(), "img"); !errors.Is(err, ErrJobActive) {
		t.Fatalf("second trigger err = %v, want ErrJobActive", err)
	}

	cancel()
	rig.clock.Advance(time.Second)
	waitJob(t, done)
	if rig.runner.Busy("img") {
		t.Fatal("node still busy after terminal state")
	}
}

func TestDeletedNodeAbandonsResult(t *testing.T) {
	fake := &provider.Fake{
		SubmitRes: provider.SubmitResult{TaskID: "task-1"},
		PollScript: []provider.PollStep{
			{Res: provider.PollResult{Status: provider.StatusRunning}},
			{Res: provider.PollResult{Status: provider.StatusSuccess, ResultURL: "https://cdn/orphan.png"}},
		},
	}
	rig := newRunnerRig(t, graph.KindImage, fake, nil)
	rig.addNode(t, "img", graph.KindImage, map[string]any{graph.FieldPrompt: "doomed"})

	done := rig.runAsync(context.Background(), "img")
	rig.clock.AwaitSleepers(1)
	if err := rig.store.RemoveNode("img"); err != nil {
		t.Fatalf("remove node: %v", err)
	}
	rig.clock.Advance(pollFast)
	waitJob(t, done)

	if recs := rig.ledger.List(); len(recs) != 0 {
		t.Fatalf("abandoned job wrote ledger records: %+v", recs)
	}
}

func TestBatchRunsEveryNodeIndependently(t *testing.T) {
	fake := &provider.Fake{SubmitRes: provider.SubmitResult{ResultText: "out"}}
	rig := newRunnerRig(t, graph.KindLanguageModel, fake, nil)
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("lm%d", i)
		ids = append(ids, id)
		rig.addNode(t, id, graph.KindLanguageModel, map[string]any{graph.FieldInputText: "go"})
	}

	done := rig.runner.RunBatch(context.Background(), ids)
	for i := 1; i <= 2; i++ {
		rig.clock.AwaitSleepers(i)
		rig.clock.Advance(staggerDelay)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}

	for _, id := range ids {
		n, _ := rig.store.GetNode(id)
		if n.Str(graph.FieldOutputText) != "out" {
			t.Fatalf("node %s missing output", id)
		}
	}
	if fake.Submits() != 3 {
		t.Fatalf("submits = %d, want 3", fake.Submits())
	}
}

func TestProcessingProgressClamped(t *testing.T) {
	if p := processingProgress(0); p != 10 {
		t.Fatalf("progress(0) = %d", p)
	}
	if p := processingProgress(9 * time.Minute); p != 85 {
		t.Fatalf("progress(9m) = %d", p)
	}
}
