package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omnipro-bh/omniflow/pkg/dispatch"
	"github.com/omnipro-bh/omniflow/pkg/eventbus"
	"github.com/omnipro-bh/omniflow/pkg/events"
	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/otelhelper"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"github.com/omnipro-bh/omniflow/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeStore struct {
	workflows     map[string]*models.Workflow
	states        map[string]*models.ConversationState
	triggers      map[string]bool
	logs          []*models.ExecutionLog
	subscriptions map[string]*models.ContactSubscription

	domains       []string
	subscribeKW   []string
	unsubscribeKW []string

	failSaveState bool
}

func newFakeStore(workflows ...*models.Workflow) *fakeStore {
	store := &fakeStore{
		workflows:     map[string]*models.Workflow{},
		states:        map[string]*models.ConversationState{},
		triggers:      map[string]bool{},
		subscriptions: map[string]*models.ContactSubscription{},
	}

	for _, workflow := range workflows {
		store.workflows[workflow.ID] = workflow
	}

	return store
}

func (s *fakeStore) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	workflow, ok := s.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (s *fakeStore) ActiveWorkflowsByTenant(_ context.Context, tenantID string) ([]*models.Workflow, error) {
	var active []*models.Workflow

	for _, workflow := range s.workflows {
		if workflow.TenantID == tenantID && workflow.Active {
			active = append(active, workflow)
		}
	}

	return active, nil
}

func (s *fakeStore) ConversationState(_ context.Context, workflowID, contactID string) (*models.ConversationState, error) {
	state, ok := s.states[workflowID+"|"+contactID]
	if !ok {
		return nil, persistence.ErrConversationStateNotFound
	}

	return state, nil
}

func (s *fakeStore) SaveConversationState(_ context.Context, state *models.ConversationState) error {
	if s.failSaveState {
		return errors.New("state store unavailable")
	}

	s.states[state.WorkflowID+"|"+state.ContactID] = state

	return nil
}

func (s *fakeStore) InsertDailyTrigger(_ context.Context, flag *models.DailyTriggerFlag) error {
	key := flag.ContactID + "|" + flag.LocalDate
	if s.triggers[key] {
		return persistence.ErrDailyTriggerExists
	}

	s.triggers[key] = true

	return nil
}

func (s *fakeStore) PruneDailyTriggers(_ context.Context, _ string) (int64, error) { return 0, nil }

func (s *fakeStore) AppendExecutionLog(_ context.Context, entry *models.ExecutionLog) error {
	s.logs = append(s.logs, entry)

	return nil
}

func (s *fakeStore) UpsertSubscription(_ context.Context, sub *models.ContactSubscription) error {
	s.subscriptions[sub.ContactID] = sub

	return nil
}

func (s *fakeStore) AllowedDomains(_ context.Context) ([]string, error)     { return s.domains, nil }
func (s *fakeStore) SubscribeKeywords(_ context.Context) ([]string, error)  { return s.subscribeKW, nil }
func (s *fakeStore) UnsubscribeKeywords(_ context.Context) ([]string, error) {
	return s.unsubscribeKW, nil
}

func (s *fakeStore) HealthCheck(_ context.Context) error { return nil }
func (s *fakeStore) Close(_ context.Context) error       { return nil }

type fakeSent struct {
	records map[string]*models.SentMessageRecord
}

func newFakeSent() *fakeSent {
	return &fakeSent{records: map[string]*models.SentMessageRecord{}}
}

func (s *fakeSent) SaveSentMessage(_ context.Context, record *models.SentMessageRecord) error {
	s.records[record.ProviderMessageID] = record

	return nil
}

func (s *fakeSent) SentMessageByProviderID(_ context.Context, id string) (*models.SentMessageRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, persistence.ErrSentMessageNotFound
	}

	return record, nil
}

func (s *fakeSent) DeleteExpiredSentMessages(_ context.Context) (int64, error) { return 0, nil }

type sentMessage struct {
	Kind string
	Body string
}

type fakeDelivery struct {
	sent        []sentMessage
	failOnBody  string
	nextMessage int
}

func (d *fakeDelivery) respond(kind, body string) (dispatch.ProviderResponse, error) {
	if d.failOnBody != "" && strings.Contains(body, d.failOnBody) {
		return nil, errors.New("gateway rejected message")
	}

	d.sent = append(d.sent, sentMessage{Kind: kind, Body: body})
	d.nextMessage++

	return dispatch.ProviderResponse{"messageId": fmt.Sprintf("msg-%d", d.nextMessage)}, nil
}

func (d *fakeDelivery) SendText(_ context.Context, _ dispatch.Credentials, p dispatch.TextPayload) (dispatch.ProviderResponse, error) {
	return d.respond("text", p.Body)
}

func (d *fakeDelivery) SendMedia(_ context.Context, _ dispatch.Credentials, p dispatch.MediaPayload) (dispatch.ProviderResponse, error) {
	return d.respond("media", p.Caption)
}

func (d *fakeDelivery) SendLocation(_ context.Context, _ dispatch.Credentials, p dispatch.LocationPayload) (dispatch.ProviderResponse, error) {
	return d.respond("location", p.Name)
}

func (d *fakeDelivery) SendInteractive(_ context.Context, _ dispatch.Credentials, p dispatch.InteractivePayload) (dispatch.ProviderResponse, error) {
	return d.respond("interactive", p.Body)
}

func (d *fakeDelivery) SendCarousel(_ context.Context, _ dispatch.Credentials, p dispatch.CarouselPayload) (dispatch.ProviderResponse, error) {
	return d.respond("carousel", p.Body)
}

type fakeBus struct {
	published []eventbus.Event
}

func (b *fakeBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.published = append(b.published, event)

	return nil
}

func (b *fakeBus) Handle(events.EventType, eventbus.EventHandler) error { return nil }
func (b *fakeBus) Subscribe(context.Context) error                      { return nil }
func (b *fakeBus) Close() error                                         { return nil }
func (b *fakeBus) GenerateID() string                                   { return "evt-1" }

func (b *fakeBus) types() []events.EventType {
	kinds := make([]events.EventType, 0, len(b.published))
	for _, event := range b.published {
		kinds = append(kinds, event.GetType())
	}

	return kinds
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

var testTime = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func newTestEngine(store *fakeStore, sent *fakeSent, delivery *fakeDelivery, transport http.RoundTripper) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(testTime)
	dispatcher := dispatch.NewDispatcher(logger, delivery, sent).WithClock(clock)

	sandboxClient := sandbox.NewClient(logger, store)
	if transport != nil {
		sandboxClient = sandbox.NewClientWithTransport(logger, store, transport)
	}

	return NewEngine(logger, store, sent, dispatcher, sandboxClient).WithClock(clock)
}

func textNode(id, body string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeText, Config: map[string]any{"body": body}}
}

func quickReplyNode(id, body string, buttons ...map[string]any) *models.Node {
	items := make([]any, 0, len(buttons))
	for _, button := range buttons {
		items = append(items, button)
	}

	return &models.Node{
		ID:     id,
		Type:   models.NodeTypeQuickReply,
		Config: map[string]any{"body": body, "buttons": items},
	}
}

func httpNode(id, url string, mappings ...map[string]any) *models.Node {
	config := map[string]any{"url": url, "method": "GET"}
	if len(mappings) > 0 {
		items := make([]any, 0, len(mappings))
		for _, mapping := range mappings {
			items = append(items, mapping)
		}

		config["response_mapping"] = items
	}

	return &models.Node{ID: id, Type: models.NodeTypeHTTPRequest, Config: config}
}

func buildWorkflow(id, tenantID string, nodes []*models.Node, edges []*models.Edge) *models.Workflow {
	return &models.Workflow{
		ID:       id,
		TenantID: tenantID,
		Name:     "workflow " + id,
		Active:   true,
		Nodes:    nodes,
		Edges:    edges,
	}
}

func textEvent(contactID, text string) *models.InboundEvent {
	return &models.InboundEvent{ContactID: contactID, Text: text}
}

func buttonEvent(contactID, buttonID, title, quotedID string) *models.InboundEvent {
	return &models.InboundEvent{
		ContactID:       contactID,
		ButtonReplyID:   buttonID,
		ButtonTitle:     title,
		QuotedMessageID: quotedID,
	}
}

func TestIgnoresEventsWithoutWorkflowRelevance(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store, newFakeSent(), &fakeDelivery{}, nil)

	cases := []struct {
		name   string
		event  *models.InboundEvent
		reason string
	}{
		{"echo", &models.InboundEvent{ContactID: "c1", FromMe: true, Text: "hi"}, ReasonEcho},
		{"no content", &models.InboundEvent{ContactID: "c1"}, ReasonNoContent},
		{"group chat", &models.InboundEvent{ContactID: "c1", GroupChat: true, Text: "hi"}, ReasonGroupChat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", tc.event, dispatch.Credentials{})
			require.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, outcome.Class)
			assert.Equal(t, tc.reason, outcome.Reason)
			assert.Empty(t, outcome.Logs)
		})
	}

	assert.Empty(t, store.logs)
}

func TestInactiveWorkflowLogsWithoutSending(t *testing.T) {
	workflow := buildWorkflow("wf-1", "t1", []*models.Node{textNode("n1", "hello")}, nil)
	workflow.Active = false
	workflow.EntryNodeID = "n1"

	store := newFakeStore(workflow)
	delivery := &fakeDelivery{}
	eng := newTestEngine(store, newFakeSent(), delivery, nil)

	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", textEvent("c1", "hi"), dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeIgnored, outcome.Class)
	assert.Empty(t, delivery.sent)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, store.logs[0].Status)
	assert.Equal(t, ReasonInactive, store.logs[0].ErrorMessage)
}

func TestDailyTriggerFansOutOncePerDay(t *testing.T) {
	wfA := buildWorkflow("wf-a", "t1", []*models.Node{textNode("entry-a", "morning from A")}, nil)
	wfA.EntryNodeID = "entry-a"
	wfB := buildWorkflow("wf-b", "t1", []*models.Node{textNode("entry-b", "morning from B")}, nil)
	wfB.EntryNodeID = "entry-b"
	wfNoEntry := buildWorkflow("wf-c", "t1", []*models.Node{textNode("n1", "never sent")}, nil)

	store := newFakeStore(wfA, wfB, wfNoEntry)
	delivery := &fakeDelivery{}
	eng := newTestEngine(store, newFakeSent(), delivery, nil)

	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-a", textEvent("c1", "hello"), dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, outcome.Class)
	assert.Len(t, delivery.sent, 2)
	assert.Len(t, store.logs, 2)

	for _, entry := range store.logs {
		assert.Equal(t, models.ExecutionStatusSuccess, entry.Status)
		assert.Equal(t, models.EventTypeText, entry.EventType)
	}

	// Same contact, same local date: the uniqueness conflict suppresses a second round.
	outcome, err = eng.HandleInboundEvent(context.Background(), "wf-a", textEvent("c1", "hello again"), dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeIgnored, outcome.Class)
	assert.Equal(t, ReasonRepeatedOfDay, outcome.Reason)
	assert.Len(t, delivery.sent, 2)
	assert.Len(t, store.logs, 3)

	// A different contact still triggers independently.
	_, err = eng.HandleInboundEvent(context.Background(), "wf-a", textEvent("c2", "hello"), dispatch.Credentials{})
	require.NoError(t, err)
	assert.Len(t, delivery.sent, 4)
}

func TestDailyTriggerIsolatesWorkflowFailures(t *testing.T) {
	wfA := buildWorkflow("wf-a", "t1", []*models.Node{textNode("entry-a", "broken message")}, nil)
	wfA.EntryNodeID = "entry-a"
	wfB := buildWorkflow("wf-b", "t1", []*models.Node{textNode("entry-b", "healthy message")}, nil)
	wfB.EntryNodeID = "entry-b"

	store := newFakeStore(wfA, wfB)
	delivery := &fakeDelivery{failOnBody: "broken"}
	eng := newTestEngine(store, newFakeSent(), delivery, nil)

	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-a", textEvent("c1", "hi"), dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, outcome.Class)
	require.Len(t, delivery.sent, 1)
	assert.Equal(t, "healthy message", delivery.sent[0].Body)

	require.Len(t, store.logs, 2)

	statuses := map[models.ExecutionStatus]int{}
	for _, entry := range store.logs {
		statuses[entry.Status]++
	}

	assert.Equal(t, 1, statuses[models.ExecutionStatusError])
	assert.Equal(t, 1, statuses[models.ExecutionStatusSuccess])
}

func chainWorkflow() *models.Workflow {
	quick := quickReplyNode("q1", "pick one", map[string]any{"id": "btn-yes", "title": "Yes"})
	workflow := buildWorkflow("wf-1", "t1",
		[]*models.Node{quick, textNode("t1", "step one"), textNode("t2", "step two"), textNode("t3", "step three")},
		[]*models.Edge{
			{ID: "e1", Source: "q1", Target: "t1", SourceHandle: "btn-yes"},
			{ID: "e2", Source: "t1", Target: "t2"},
			{ID: "e3", Source: "t2", Target: "t3"},
		})

	return workflow
}

func TestButtonClickRunsNonInteractiveChain(t *testing.T) {
	store := newFakeStore(chainWorkflow())
	delivery := &fakeDelivery{}
	eng := newTestEngine(store, newFakeSent(), delivery, nil)

	event := buttonEvent("c1", "wf-1:btn-yes", "Yes", "unknown-quoted-id")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, outcome.Class)
	require.Len(t, delivery.sent, 3)
	assert.Equal(t, "step one", delivery.sent[0].Body)
	assert.Equal(t, "step three", delivery.sent[2].Body)

	require.Len(t, store.logs, 1)
	entry := store.logs[0]
	assert.Equal(t, models.ExecutionStatusSuccess, entry.Status)
	assert.Len(t, entry.ResponsesSent, 3)
	assert.Equal(t, models.EventTypeButtonReply, entry.EventType)

	state := store.states["wf-1|c1"]
	require.NotNil(t, state)
	assert.Equal(t, "t3", state.CurrentNodeID)
}

func TestButtonClickFromOtherWorkflowIsIgnored(t *testing.T) {
	store := newFakeStore(chainWorkflow())
	sent := newFakeSent()
	sent.records["quoted-1"] = &models.SentMessageRecord{
		WorkflowID:        "wf-other",
		ProviderMessageID: "quoted-1",
		ContactID:         "c1",
	}

	delivery := &fakeDelivery{}
	eng := newTestEngine(store, sent, delivery, nil)

	event := buttonEvent("c1", "btn-yes", "Yes", "quoted-1")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeIgnored, outcome.Class)
	assert.Equal(t, ReasonOtherWorkflow, outcome.Reason)
	assert.Empty(t, delivery.sent)
	require.Len(t, store.logs, 1)
	assert.Equal(t, ReasonOtherWorkflow, store.logs[0].ErrorMessage)
}

func TestTraversalHaltsAtInteractiveNode(t *testing.T) {
	quick := quickReplyNode("q2", "continue?", map[string]any{"id": "btn-go", "title": "Go"})
	workflow := buildWorkflow("wf-1", "t1",
		[]*models.Node{
			quickReplyNode("q1", "start", map[string]any{"id": "btn-start", "title": "Start"}),
			textNode("t1", "intro"),
			quick,
			textNode("t2", "should not be sent"),
		},
		[]*models.Edge{
			{ID: "e1", Source: "q1", Target: "t1", SourceHandle: "btn-start"},
			{ID: "e2", Source: "t1", Target: "q2"},
			{ID: "e3", Source: "q2", Target: "t2", SourceHandle: "btn-go"},
		})

	store := newFakeStore(workflow)
	sent := newFakeSent()
	delivery := &fakeDelivery{}
	eng := newTestEngine(store, sent, delivery, nil)

	event := buttonEvent("c1", "btn-start", "Start", "")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, outcome.Class)
	require.Len(t, delivery.sent, 2)
	assert.Equal(t, "intro", delivery.sent[0].Body)
	assert.Equal(t, "continue?", delivery.sent[1].Body)

	state := store.states["wf-1|c1"]
	require.NotNil(t, state)
	assert.Equal(t, "q2", state.CurrentNodeID)

	// The interactive halt message got an ownership record for the next click.
	require.Len(t, sent.records, 1)
	for _, record := range sent.records {
		assert.Equal(t, "wf-1", record.WorkflowID)
		assert.Equal(t, models.NodeTypeQuickReply, record.NodeType)
	}
}

func httpWorkflow(mappings ...map[string]any) *models.Workflow {
	return buildWorkflow("wf-1", "t1",
		[]*models.Node{
			quickReplyNode("q1", "check price", map[string]any{"id": "btn-price", "title": "Price"}),
			httpNode("h1", "https://api.example.com/price", mappings...),
			textNode("ok", "Price is {{price}}"),
			textNode("sorry", "Could not fetch the price"),
		},
		[]*models.Edge{
			{ID: "e1", Source: "q1", Target: "h1", SourceHandle: "btn-price"},
			{ID: "e2", Source: "h1", Target: "ok", SourceHandle: "success"},
			{ID: "e3", Source: "h1", Target: "sorry", SourceHandle: "error"},
		})
}

func TestHTTPSuccessMergesMappedVariables(t *testing.T) {
	store := newFakeStore(httpWorkflow(map[string]any{"json_path": "data.price", "variable_name": "price"}))
	store.domains = []string{"api.example.com"}

	delivery := &fakeDelivery{}
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"data":{"price":9.5}}`), nil
	})
	eng := newTestEngine(store, newFakeSent(), delivery, transport)

	event := buttonEvent("c1", "btn-price", "Price", "")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, outcome.Class)
	require.Len(t, delivery.sent, 1)
	assert.Equal(t, "Price is 9.5", delivery.sent[0].Body)

	state := store.states["wf-1|c1"]
	require.NotNil(t, state)
	assert.Equal(t, "ok", state.CurrentNodeID)
	assert.Equal(t, 9.5, state.Context["price"])
}

func TestHTTPFailureFollowsErrorHandleWithoutTouchingContext(t *testing.T) {
	store := newFakeStore(httpWorkflow(map[string]any{"json_path": "data.price", "variable_name": "price"}))
	store.domains = []string{"api.example.com"}
	store.states["wf-1|c1"] = &models.ConversationState{
		WorkflowID: "wf-1",
		ContactID:  "c1",
		Context:    map[string]any{"existing": "kept"},
	}

	delivery := &fakeDelivery{}
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	eng := newTestEngine(store, newFakeSent(), delivery, transport)

	event := buttonEvent("c1", "btn-price", "Price", "")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, outcome.Class)
	require.Len(t, delivery.sent, 1)
	assert.Equal(t, "Could not fetch the price", delivery.sent[0].Body)

	state := store.states["wf-1|c1"]
	require.NotNil(t, state)
	assert.Equal(t, "sorry", state.CurrentNodeID)
	assert.Equal(t, map[string]any{"existing": "kept"}, state.Context)
	assert.NotContains(t, state.Context, "price")

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, store.logs[0].Status)
}

func TestNoResolvableTargetLogsDiagnostic(t *testing.T) {
	store := newFakeStore(chainWorkflow())
	delivery := &fakeDelivery{}
	eng := newTestEngine(store, newFakeSent(), delivery, nil)

	event := buttonEvent("c1", "btn-unknown", "Call us", "")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, outcome.Class)
	assert.Equal(t, ReasonNoTarget, outcome.Reason)
	assert.Empty(t, delivery.sent)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, store.logs[0].Status)
	assert.Equal(t, ReasonNoTarget, store.logs[0].ErrorMessage)
}

func TestUnsubscribeKeywordUpsertsOptOut(t *testing.T) {
	store := newFakeStore(chainWorkflow())
	store.unsubscribeKW = []string{"stop", "unsubscribe"}

	eng := newTestEngine(store, newFakeSent(), &fakeDelivery{}, nil)

	event := buttonEvent("c1", "btn-unknown", "STOP", "")
	_, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	sub := store.subscriptions["c1"]
	require.NotNil(t, sub)
	assert.True(t, sub.OptedOut)
}

func TestSubscribeKeywordClearsOptOut(t *testing.T) {
	store := newFakeStore(chainWorkflow())
	store.subscribeKW = []string{"start"}
	store.unsubscribeKW = []string{"stop"}

	eng := newTestEngine(store, newFakeSent(), &fakeDelivery{}, nil)

	event := buttonEvent("c1", "btn-unknown", "Start", "")
	_, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	sub := store.subscriptions["c1"]
	require.NotNil(t, sub)
	assert.False(t, sub.OptedOut)
}

func TestStateSaveFailureStopsTraversal(t *testing.T) {
	store := newFakeStore(chainWorkflow())
	store.failSaveState = true

	delivery := &fakeDelivery{}
	eng := newTestEngine(store, newFakeSent(), delivery, nil)

	event := buttonEvent("c1", "btn-yes", "Yes", "")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, outcome.Class)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.ExecutionStatusError, store.logs[0].Status)
	assert.Contains(t, store.logs[0].ErrorMessage, "conversation state")
}

func TestCyclicGraphIsBounded(t *testing.T) {
	workflow := buildWorkflow("wf-1", "t1",
		[]*models.Node{
			quickReplyNode("q1", "loop", map[string]any{"id": "btn-loop", "title": "Loop"}),
			textNode("a", "ping"),
			textNode("b", "pong"),
		},
		[]*models.Edge{
			{ID: "e1", Source: "q1", Target: "a", SourceHandle: "btn-loop"},
			{ID: "e2", Source: "a", Target: "b"},
			{ID: "e3", Source: "b", Target: "a"},
		})

	store := newFakeStore(workflow)
	delivery := &fakeDelivery{}
	eng := newTestEngine(store, newFakeSent(), delivery, nil)

	event := buttonEvent("c1", "btn-loop", "Loop", "")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, outcome.Class)
	assert.LessOrEqual(t, len(delivery.sent), maxTraversalSteps)
}

func TestLifecycleEventsFollowClassification(t *testing.T) {
	t.Run("foreign ownership emits ignored without started", func(t *testing.T) {
		store := newFakeStore(chainWorkflow())
		sent := newFakeSent()
		sent.records["quoted-1"] = &models.SentMessageRecord{
			WorkflowID:        "wf-other",
			ProviderMessageID: "quoted-1",
			ContactID:         "c1",
		}

		bus := &fakeBus{}
		eng := newTestEngine(store, sent, &fakeDelivery{}, nil).WithEventBus(bus)

		event := buttonEvent("c1", "btn-yes", "Yes", "quoted-1")
		outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
		require.NoError(t, err)
		require.Equal(t, OutcomeIgnored, outcome.Class)

		assert.NotContains(t, bus.types(), events.ExecutionStartedEvent)
		assert.Contains(t, bus.types(), events.ExecutionIgnoredEvent)
	})

	t.Run("repeat of day emits ignored without started", func(t *testing.T) {
		workflow := buildWorkflow("wf-1", "t1", []*models.Node{textNode("n1", "morning")}, nil)
		workflow.EntryNodeID = "n1"

		store := newFakeStore(workflow)
		bus := &fakeBus{}
		eng := newTestEngine(store, newFakeSent(), &fakeDelivery{}, nil).WithEventBus(bus)

		_, err := eng.HandleInboundEvent(context.Background(), "wf-1", textEvent("c1", "hi"), dispatch.Credentials{})
		require.NoError(t, err)
		assert.Contains(t, bus.types(), events.ExecutionStartedEvent)

		bus.published = nil

		outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", textEvent("c1", "hi again"), dispatch.Credentials{})
		require.NoError(t, err)
		require.Equal(t, OutcomeIgnored, outcome.Class)

		assert.NotContains(t, bus.types(), events.ExecutionStartedEvent)
		assert.Contains(t, bus.types(), events.ExecutionIgnoredEvent)
	})

	t.Run("processed click emits started dispatched completed", func(t *testing.T) {
		store := newFakeStore(chainWorkflow())
		bus := &fakeBus{}
		eng := newTestEngine(store, newFakeSent(), &fakeDelivery{}, nil).WithEventBus(bus)

		event := buttonEvent("c1", "btn-yes", "Yes", "")
		outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, outcome.Class)

		kinds := bus.types()
		assert.Contains(t, kinds, events.ExecutionStartedEvent)
		assert.Contains(t, kinds, events.MessageDispatchedEvent)
		assert.Contains(t, kinds, events.ExecutionCompletedEvent)
		assert.NotContains(t, kinds, events.ExecutionIgnoredEvent)
	})
}

func TestTraversalFailureRecordsSpanError(t *testing.T) {
	store := newFakeStore(chainWorkflow())
	delivery := &fakeDelivery{failOnBody: "step one"}

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	eng := newTestEngine(store, newFakeSent(), delivery, nil).WithTracer(provider.Tracer("test"))

	event := buttonEvent("c1", "btn-yes", "Yes", "")
	outcome, err := eng.HandleInboundEvent(context.Background(), "wf-1", event, dispatch.Credentials{})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome.Class)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "engine.handle_inbound_event", span.Name)
	assert.Equal(t, codes.Error, span.Status.Code)

	keys := make(map[attribute.Key]string, len(span.Attributes))
	for _, kv := range span.Attributes {
		keys[kv.Key] = kv.Value.AsString()
	}

	assert.Equal(t, "wf-1", keys[attribute.Key(otelhelper.WorkflowIDKey)])
	assert.Equal(t, "c1", keys[attribute.Key(otelhelper.ContactIDKey)])
}

func TestNormalizeErrorValue(t *testing.T) {
	assert.Equal(t, "", normalizeErrorValue(nil))
	assert.Equal(t, "boom", normalizeErrorValue(errors.New("boom")))
	assert.Equal(t, "plain", normalizeErrorValue("plain"))
	assert.Equal(t, "from message", normalizeErrorValue(map[string]any{"message": "from message"}))
	assert.Equal(t, "from error", normalizeErrorValue(map[string]any{"error": "from error"}))
	assert.Equal(t, "map[code:42]", normalizeErrorValue(map[string]any{"code": 42}))
	assert.Equal(t, "17", normalizeErrorValue(17))
}
