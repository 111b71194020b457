package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/history"
	"github.com/bizmatters/agent-builder/chart-studio/internal/metrics"
	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/internal/patch"
	"github.com/bizmatters/agent-builder/chart-studio/internal/store"
	"github.com/bizmatters/agent-builder/chart-studio/internal/testutil"
)

// fakeClient answers with a canned response. during runs while the editor
// is suspended on the call, standing in for whatever else the user does.
type fakeClient struct {
	mu      sync.Mutex
	resp    *models.AiEditResponse
	err     error
	during  func(ctx context.Context)
	calls   int
	lastReq *models.AiEditRequest
}

func (f *fakeClient) EditChart(ctx context.Context, req *models.AiEditRequest) (*models.AiEditResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	during := f.during
	f.mu.Unlock()

	if during != nil {
		during(ctx)
	}
	return f.resp, f.err
}

func (f *fakeClient) IsHealthy(context.Context) bool { return true }
func (f *fakeClient) Name() string                   { return "fake" }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// idle keep-alive connections left by the HTTP client tests wind down on
// their own
var leakOptions = []goleak.Option{
	goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
	goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
}

type fixture struct {
	store   *store.Store
	history *history.Buffer
	client  *fakeClient
	editor  *Editor
}

func newFixture(t *testing.T, client *fakeClient) *fixture {
	t.Helper()
	st := store.New()
	require.NoError(t, st.Load(testutil.SampleChart()))
	hist := history.NewBuffer(nil)
	m, err := metrics.NewEditMetrics(nil)
	require.NoError(t, err)

	return &fixture{
		store:   st,
		history: hist,
		client:  client,
		editor:  NewEditor(st, hist, client, m, EditorConfig{Timeout: time.Second, ApplyRetries: 2}),
	}
}

func respond(confidence float64, explanation string, ops ...models.PatchOp) *models.AiEditResponse {
	return &models.AiEditResponse{Patches: ops, Explanation: explanation, Confidence: confidence}
}

func (fx *fixture) lastMessage(t *testing.T) models.ChatMessage {
	t.Helper()
	msgs := fx.history.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func TestEditor_RotateLabels(t *testing.T) {
	fx := newFixture(t, &fakeClient{
		resp: respond(0.92, "Rotated x-axis labels by -45 degrees.",
			patch.Replace("/encoding/x/labelAngle", -45)),
	})

	out := fx.editor.Submit(context.Background(), "Rotate x labels 45°")

	assert.Equal(t, OutcomeApplied, out.Status)
	live := fx.store.Get()
	assert.Equal(t, int64(2), live.Version)
	require.NotNil(t, live.Encoding.X.LabelAngle)
	assert.Equal(t, -45.0, *live.Encoding.X.LabelAngle)
	assert.Same(t, live, out.Spec)

	msgs := fx.history.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Rotate x labels 45°", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Rotated x-axis labels by -45 degrees.", msgs[1].Content)
	require.NotNil(t, msgs[1].PatchCount)
	assert.Equal(t, 1, *msgs[1].PatchCount)
	assert.Equal(t, 0.92, *msgs[1].Confidence)

	assert.Equal(t, "Rotate x labels 45°", fx.client.lastReq.Instruction)
}

func TestEditor_ReadOnlyPatchLeavesChartUntouched(t *testing.T) {
	fx := newFixture(t, &fakeClient{
		resp: respond(0.8, "Renamed column.", patch.Replace("/data/columns/0/name", "mass")),
	})
	before := fx.store.Get()

	out := fx.editor.Submit(context.Background(), "rename weight to mass")

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Equal(t, models.KindReadOnlyPath, out.ErrorKind)
	assert.Same(t, before, fx.store.Get())

	last := fx.lastMessage(t)
	assert.Equal(t, models.RoleError, last.Role)
	assert.Equal(t, models.KindReadOnlyPath, last.ErrorKind)
	assert.Equal(t, models.UserMessage(models.KindReadOnlyPath), last.Content)
}

func TestEditor_ChartClearedDuringCall(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, &fakeClient{
		resp:   respond(0.9, "Rotated.", patch.Replace("/encoding/x/labelAngle", -45)),
		during: func(context.Context) { fx.store.Clear() },
	})

	out := fx.editor.Submit(context.Background(), "rotate labels")

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Equal(t, models.KindDocumentAbsent, out.ErrorKind)
	assert.Nil(t, fx.store.Get(), "patches must not resurrect a cleared chart")
	assert.Equal(t, models.KindDocumentAbsent, fx.lastMessage(t).ErrorKind)
	assert.Len(t, fx.history.Messages(), 2)
}

func TestEditor_NoChartLoaded(t *testing.T) {
	fx := newFixture(t, &fakeClient{resp: respond(1, "x")})
	fx.store.Clear()

	out := fx.editor.Submit(context.Background(), "rotate labels")

	assert.Equal(t, models.KindDocumentAbsent, out.ErrorKind)
	assert.Equal(t, 0, fx.client.callCount())
}

func TestEditor_AppliesOnTopOfConcurrentDirectEdit(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, &fakeClient{
		resp: respond(0.9, "Rotated.", patch.Replace("/encoding/x/labelAngle", -45)),
		during: func(context.Context) {
			_, err := fx.store.Edit(func(spec *chartspec.ChartSpec) error {
				spec.Style.Title = "Edited directly"
				return nil
			}, store.SourceDirect)
			assert.NoError(t, err)
		},
	})

	out := fx.editor.Submit(context.Background(), "rotate labels")

	require.Equal(t, OutcomeApplied, out.Status)
	live := fx.store.Get()
	assert.Equal(t, "Edited directly", live.Style.Title, "the direct edit must survive")
	assert.Equal(t, -45.0, *live.Encoding.X.LabelAngle)
	assert.Equal(t, int64(3), live.Version)
	assert.Equal(t, int64(1), fx.client.lastReq.SpecMetadata.Version)
}

func TestEditor_RevalidatesAgainstLatest(t *testing.T) {
	// the direct edit moves y onto the column the AI wants for x
	var fx *fixture
	fx = newFixture(t, &fakeClient{
		resp: respond(0.9, "Swapped.", patch.Replace("/encoding/x/field", "weight"), patch.Replace("/encoding/x/type", "quantitative")),
		during: func(context.Context) {
			_, err := fx.store.Edit(func(spec *chartspec.ChartSpec) error {
				spec.Encoding.X.Field, spec.Encoding.Y.Field = "weight", "group"
				spec.Encoding.X.Type, spec.Encoding.Y.Type = chartspec.Quantitative, chartspec.Nominal
				spec.Encoding.Y.Aggregate = ""
				return nil
			}, store.SourceDirect)
			assert.NoError(t, err)
		},
	})

	out := fx.editor.Submit(context.Background(), "put weight on x")

	assert.Equal(t, OutcomeZeroEffect, out.Status)
	assert.Equal(t, int64(2), fx.store.Get().Version)
}

func TestEditor_ZeroEffect(t *testing.T) {
	fx := newFixture(t, &fakeClient{
		resp: respond(0.4, "Set the title.", patch.Replace("/style/title", testutil.SampleChart().Style.Title)),
	})
	before := fx.store.Get()

	out := fx.editor.Submit(context.Background(), "make the legend sparkle")

	assert.Equal(t, OutcomeZeroEffect, out.Status)
	assert.Same(t, before, fx.store.Get())
	last := fx.lastMessage(t)
	assert.Equal(t, models.RoleError, last.Role)
	assert.Equal(t, models.KindZeroEffect, last.ErrorKind)
}

func TestEditor_ClientFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind models.ErrorKind
	}{
		{"transport error", errors.New("connection refused"), models.KindNoResponse},
		{"typed no response", models.NewEditError(models.KindNoResponse, "timeout", nil), models.KindNoResponse},
		{"parse failure", models.NewEditError(models.KindParseFailed, "malformed JSON", nil), models.KindParseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, &fakeClient{err: tt.err})
			before := fx.store.Get()

			out := fx.editor.Submit(context.Background(), "rotate labels")

			assert.Equal(t, OutcomeFailed, out.Status)
			assert.Equal(t, tt.wantKind, out.ErrorKind)
			assert.Same(t, before, fx.store.Get())
			assert.Equal(t, models.UserMessage(tt.wantKind), fx.lastMessage(t).Content)
		})
	}
}

func TestEditor_InvalidPatchSet(t *testing.T) {
	fx := newFixture(t, &fakeClient{
		resp: respond(0.9, "Higher DPI.", patch.Replace("/exportConfig/dpi", 5000)),
	})

	out := fx.editor.Submit(context.Background(), "print quality")

	assert.Equal(t, models.KindValidationFailed, out.ErrorKind)
	assert.Equal(t, int64(1), fx.store.Get().Version)
}

func TestEditor_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	client := &fakeClient{}
	client.during = func(ctx context.Context) {
		<-ctx.Done()
		client.mu.Lock()
		client.err = ctx.Err()
		client.mu.Unlock()
	}
	fx := newFixture(t, client)
	fx.editor.cfg.Timeout = 20 * time.Millisecond

	out := fx.editor.Submit(context.Background(), "rotate labels")

	assert.Equal(t, models.KindNoResponse, out.ErrorKind)
}

func TestEditor_PanicIsRecovered(t *testing.T) {
	fx := newFixture(t, &fakeClient{
		during: func(context.Context) { panic("boom") },
	})

	var out Outcome
	assert.NotPanics(t, func() { out = fx.editor.Submit(context.Background(), "rotate labels") })
	assert.Equal(t, models.KindUnknown, out.ErrorKind)
	assert.False(t, fx.editor.InFlight())

	fx.client.during = nil
	fx.client.resp = respond(1, "ok", patch.Replace("/style/title", "After panic"))
	assert.Equal(t, OutcomeApplied, fx.editor.Submit(context.Background(), "retitle").Status)
}

func TestEditor_BusyWhileInFlight(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	started := make(chan struct{})
	release := make(chan struct{})
	fx := newFixture(t, &fakeClient{
		resp: respond(0.9, "Rotated.", patch.Replace("/encoding/x/labelAngle", -45)),
		during: func(context.Context) {
			close(started)
			<-release
		},
	})
	fx.editor.SetDraft("make it blue")

	done := make(chan Outcome)
	go func() { done <- fx.editor.Submit(context.Background(), "rotate labels") }()
	<-started

	assert.True(t, fx.editor.InFlight())
	second := fx.editor.Submit(context.Background(), "also make it blue")
	assert.Equal(t, OutcomeBusy, second.Status)
	assert.Equal(t, models.KindEditInProgress, second.ErrorKind)

	draft := fx.editor.SubmitDraft(context.Background())
	assert.Equal(t, OutcomeBusy, draft.Status)
	assert.Equal(t, "make it blue", fx.editor.Draft(), "busy submissions keep the draft")

	close(release)
	first := <-done
	assert.Equal(t, OutcomeApplied, first.Status)

	msgs := fx.history.Messages()
	require.Len(t, msgs, 2, "busy submissions are not recorded")
	assert.Equal(t, "rotate labels", msgs[0].Content)
	assert.False(t, fx.editor.InFlight())
}

func TestEditor_SubmitDraft(t *testing.T) {
	fx := newFixture(t, &fakeClient{
		resp: respond(0.9, "Retitled.", patch.Replace("/style/title", "Plant growth")),
	})
	fx.editor.SetDraft("  call it plant growth ")

	out := fx.editor.SubmitDraft(context.Background())

	assert.Equal(t, OutcomeApplied, out.Status)
	assert.Empty(t, fx.editor.Draft())
	assert.Equal(t, "call it plant growth", fx.history.Messages()[0].Content)
}

func TestEditor_BlankInstructionIsIgnored(t *testing.T) {
	fx := newFixture(t, &fakeClient{resp: respond(1, "x")})

	out := fx.editor.Submit(context.Background(), "   ")

	assert.Equal(t, OutcomeIgnored, out.Status)
	assert.Equal(t, 0, fx.history.Len())
	assert.Equal(t, 0, fx.client.callCount())
}
