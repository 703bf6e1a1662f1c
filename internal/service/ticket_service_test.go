package service_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/pagination"
	"github.com/spec-kit/helpdesk-service/internal/repository/repotest"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	store      *repotest.Store
	dispatcher events.Dispatcher
	svc        *service.TicketService
	org        domain.Organization
	otherOrg   domain.Organization
	agent      domain.User
	customer   domain.User
	outsider   domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore()
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)

	f := &fixture{store: store, dispatcher: events.NewInMemoryDispatcher()}
	f.org = store.AddOrganization("Acme", "acme")
	f.otherOrg = store.AddOrganization("Globex", "globex")
	f.agent = store.AddUser(f.org.ID, "agent@acme.test", domain.UserRoleAgent, "")
	f.customer = store.AddUser(f.org.ID, "customer@acme.test", domain.UserRoleCustomer, "")
	f.outsider = store.AddUser(f.otherOrg.ID, "agent@globex.test", domain.UserRoleAgent, "")

	f.svc = service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store.Tickets(),
		CommentRepo: store.Comments(),
		UserRepo:    store.Users(),
		Cursors:     pagination.NewCodec("test-cursor-secret"),
		Limits:      pagination.Limits{Default: 3, Max: 5},
		Dispatcher:  f.dispatcher,
	})
	return f
}

func (f *fixture) createTicket(t *testing.T, title string) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.CreateTicket(context.Background(), f.org.ID, f.customer.ID, service.TicketCreateInput{Title: title})
	require.NoError(t, err)
	return ticket
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, code), "want %s, got %v", code, err)
}

func statusPtr(s domain.TicketStatus) *domain.TicketStatus       { return &s }
func priorityPtr(p domain.TicketPriority) *domain.TicketPriority { return &p }
func strPtr(s string) *string                                    { return &s }
func intPtr(v int) *int                                          { return &v }

func TestCreateTicketDefaults(t *testing.T) {
	f := newFixture(t)

	ticket := f.createTicket(t, "  Printer on fire  ")
	require.NotEmpty(t, ticket.ID)
	require.Equal(t, "Printer on fire", ticket.Title)
	require.Equal(t, domain.TicketStatusOpen, ticket.Status)
	require.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	require.Equal(t, 1, ticket.Version)
	require.Nil(t, ticket.AssigneeID)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTicket(ctx, f.org.ID, f.customer.ID, service.TicketCreateInput{Title: " "})
	requireCode(t, err, apperrors.CodeInvalidInput)

	_, err = f.svc.CreateTicket(ctx, f.org.ID, f.outsider.ID, service.TicketCreateInput{Title: "x"})
	requireCode(t, err, apperrors.CodeInvalidInput)

	_, err = f.svc.CreateTicket(ctx, f.org.ID, f.customer.ID, service.TicketCreateInput{Title: "x", Priority: "urgent"})
	requireCode(t, err, apperrors.CodeInvalidInput)

	_, err = f.svc.CreateTicket(ctx, f.org.ID, f.customer.ID, service.TicketCreateInput{Title: "x", AssigneeID: &f.outsider.ID})
	requireCode(t, err, apperrors.CodeInvalidInput)

	_, err = f.svc.CreateTicket(ctx, "", f.customer.ID, service.TicketCreateInput{Title: "x"})
	requireCode(t, err, apperrors.CodeInvalidInput)
}

func TestUpdateTicketBumpsVersionAndDetectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "VPN down")

	updated, err := f.svc.UpdateTicket(ctx, service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
		Patch: domain.TicketPatch{Status: statusPtr(domain.TicketStatusInProgress)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.False(t, updated.UpdatedAt.Before(ticket.UpdatedAt))

	_, err = f.svc.UpdateTicket(ctx, service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
		Patch: domain.TicketPatch{Title: strPtr("again")},
	})
	var conflict *service.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, 2, conflict.Current.Version)
	require.Equal(t, 1, conflict.Expected)
	requireCode(t, err, apperrors.CodeVersionConflict)

	stored, ok := f.store.Ticket(ticket.ID)
	require.True(t, ok)
	require.Equal(t, 2, stored.Version)
	require.Equal(t, "VPN down", stored.Title)
}

func TestUpdateTicketTwoClientsScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "Email bouncing")
	require.Equal(t, 1, ticket.Version)

	a, err := f.svc.UpdateTicket(ctx, service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
		Patch: domain.TicketPatch{Status: statusPtr(domain.TicketStatusResolved)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, a.Version)

	_, err = f.svc.UpdateTicket(ctx, service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
		Patch: domain.TicketPatch{Priority: priorityPtr(domain.TicketPriorityHigh)},
	})
	var conflict *service.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, 2, conflict.Current.Version)
	require.Equal(t, domain.TicketStatusResolved, conflict.Current.Status)
	require.Equal(t, domain.TicketPriorityMedium, conflict.Current.Priority)
}

func TestUpdateTicketOutsideOrganizationIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "Laptop")

	for _, in := range []service.TicketUpdateInput{
		{OrgID: f.otherOrg.ID, TicketID: ticket.ID, ExpectedVersion: 1},
		{OrgID: f.otherOrg.ID, TicketID: ticket.ID, ExpectedVersion: 7},
		{OrgID: f.org.ID, TicketID: uuid.NewString(), ExpectedVersion: 1},
	} {
		in.Patch = domain.TicketPatch{Status: statusPtr(domain.TicketStatusClosed)}
		_, err := f.svc.UpdateTicket(ctx, in)
		requireCode(t, err, apperrors.CodeNotFound)
		var conflict *service.VersionConflictError
		require.False(t, errors.As(err, &conflict))
	}

	stored, _ := f.store.Ticket(ticket.ID)
	require.Equal(t, 1, stored.Version)
	require.Equal(t, domain.TicketStatusOpen, stored.Status)
}

func TestUpdateTicketRejectedPatchKeepsVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "Keyboard")
	bogus := domain.TicketStatus("archived")
	bogusPriority := domain.TicketPriority("urgent")

	cases := map[string]service.TicketUpdateInput{
		"empty patch":       {Patch: domain.TicketPatch{}},
		"bad status":        {Patch: domain.TicketPatch{Status: &bogus}},
		"bad priority":      {Patch: domain.TicketPatch{Priority: &bogusPriority}},
		"blank title":       {Patch: domain.TicketPatch{Title: strPtr("   ")}},
		"cross-org assign":  {Patch: domain.TicketPatch{Assignee: domain.NullableString{Set: true, Value: &f.outsider.ID}}},
		"unknown assignee":  {Patch: domain.TicketPatch{Assignee: domain.NullableString{Set: true, Value: strPtr(uuid.NewString())}}},
		"malformed assign":  {Patch: domain.TicketPatch{Assignee: domain.NullableString{Set: true, Value: strPtr("bob")}}},
		"zero version":      {ExpectedVersion: 0, Patch: domain.TicketPatch{Title: strPtr("x")}},
		"negative version":  {ExpectedVersion: -3, Patch: domain.TicketPatch{Title: strPtr("x")}},
		"oversized version": {ExpectedVersion: math.MaxInt32 + 1, Patch: domain.TicketPatch{Title: strPtr("x")}},
		"malformed ticket":  {TicketID: "42", Patch: domain.TicketPatch{Title: strPtr("x")}},
		"missing org scope": {OrgID: "-", Patch: domain.TicketPatch{Title: strPtr("x")}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if in.OrgID == "" {
				in.OrgID = f.org.ID
			} else if in.OrgID == "-" {
				in.OrgID = ""
			}
			if in.TicketID == "" {
				in.TicketID = ticket.ID
			}
			if in.ExpectedVersion == 0 && name != "zero version" {
				in.ExpectedVersion = 1
			}
			_, err := f.svc.UpdateTicket(ctx, in)
			requireCode(t, err, apperrors.CodeInvalidInput)

			stored, _ := f.store.Ticket(ticket.ID)
			require.Equal(t, 1, stored.Version)
		})
	}
}

func TestUpdateTicketAssignAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "Monitor")

	assigned, err := f.svc.UpdateTicket(ctx, service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
		Patch: domain.TicketPatch{
			Assignee: domain.NullableString{Set: true, Value: &f.agent.ID},
			Content:  domain.NullableString{Set: true, Value: strPtr("flickers after lunch")},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, assigned.AssigneeID)
	require.Equal(t, f.agent.ID, *assigned.AssigneeID)
	require.Equal(t, "flickers after lunch", *assigned.Content)

	cleared, err := f.svc.UpdateTicket(ctx, service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 2,
		Patch: domain.TicketPatch{
			Assignee: domain.NullableString{Set: true},
			Content:  domain.NullableString{Set: true},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 3, cleared.Version)
	require.Nil(t, cleared.AssigneeID)
	require.Nil(t, cleared.Content)
}

func TestUpdateTicketConcurrentWritersSingleWinner(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, "Race")

	const writers = 16
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			priority := domain.TicketPriorityHigh
			if i%2 == 0 {
				priority = domain.TicketPriorityLow
			}
			_, err := f.svc.UpdateTicket(context.Background(), service.TicketUpdateInput{
				OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
				Patch: domain.TicketPatch{Priority: &priority},
			})
			var conflict *service.VersionConflictError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.As(err, &conflict):
				conflicts++
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, writers-1, conflicts)
	stored, _ := f.store.Ticket(ticket.ID)
	require.Equal(t, 2, stored.Version)
}

func TestUpdateTicketStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, "Outage")
	f.store.FailWith(errors.New("dial tcp: connection refused"))

	_, err := f.svc.UpdateTicket(context.Background(), service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
		Patch: domain.TicketPatch{Status: statusPtr(domain.TicketStatusClosed)},
	})
	requireCode(t, err, apperrors.CodeStoreUnavailable)

	_, err = f.svc.ListTickets(context.Background(), service.TicketListQuery{OrgID: f.org.ID})
	requireCode(t, err, apperrors.CodeStoreUnavailable)
}

func TestUpdateTicketHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, "Slow")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.UpdateTicket(ctx, service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
		Patch: domain.TicketPatch{Status: statusPtr(domain.TicketStatusClosed)},
	})
	requireCode(t, err, apperrors.CodeStoreUnavailable)
	require.ErrorIs(t, err, context.Canceled)

	stored, _ := f.store.Ticket(ticket.ID)
	require.Equal(t, 1, stored.Version)
}

func TestUpdateTicketPublishesEvent(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, "Events")

	var got []events.Event
	f.dispatcher.Subscribe(events.EventTicketUpdated, func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return errors.New("subscriber failures do not fail the update")
	})

	_, err := f.svc.UpdateTicket(context.Background(), service.TicketUpdateInput{
		OrgID: f.org.ID, TicketID: ticket.ID, ExpectedVersion: 1, ActorID: &f.agent.ID,
		Patch: domain.TicketPatch{Status: statusPtr(domain.TicketStatusResolved)},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, ticket.ID, got[0].TicketID)
	require.Equal(t, f.org.ID, got[0].OrgID)
	payload, ok := got[0].Payload.(events.TicketUpdatedPayload)
	require.True(t, ok)
	require.Equal(t, 2, payload.Version)
	require.Equal(t, []string{"status"}, payload.Changed)
}

func TestGetTicketScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, "Scoped")

	got, err := f.svc.GetTicket(context.Background(), f.org.ID, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, ticket.ID, got.ID)

	_, err = f.svc.GetTicket(context.Background(), f.otherOrg.ID, ticket.ID)
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "Thread")

	first, err := f.svc.AddComment(ctx, f.org.ID, ticket.ID, f.customer.ID, " it broke ")
	require.NoError(t, err)
	require.Equal(t, "it broke", first.Body)
	_, err = f.svc.AddComment(ctx, f.org.ID, ticket.ID, f.agent.ID, "looking")
	require.NoError(t, err)

	comments, err := f.svc.ListComments(ctx, f.org.ID, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.Equal(t, first.ID, comments[0].ID)
	require.Equal(t, "looking", comments[1].Body)

	_, err = f.svc.AddComment(ctx, f.org.ID, ticket.ID, f.agent.ID, "   ")
	requireCode(t, err, apperrors.CodeInvalidInput)
	_, err = f.svc.AddComment(ctx, f.org.ID, ticket.ID, f.outsider.ID, "hi")
	requireCode(t, err, apperrors.CodeInvalidInput)
	_, err = f.svc.AddComment(ctx, f.otherOrg.ID, ticket.ID, f.outsider.ID, "hi")
	requireCode(t, err, apperrors.CodeNotFound)
	_, err = f.svc.ListComments(ctx, f.otherOrg.ID, ticket.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	ticketAfter, _ := f.store.Ticket(ticket.ID)
	require.Equal(t, 1, ticketAfter.Version)
}

func TestAddCommentPreviewKeepsRunesWhole(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, "Unicode")

	var previews []string
	f.dispatcher.Subscribe(events.EventCommentAdded, func(_ context.Context, e events.Event) error {
		previews = append(previews, e.Payload.(events.CommentAddedPayload).BodyPreview)
		return nil
	})

	body := strings.Repeat("ü", 200)
	_, err := f.svc.AddComment(context.Background(), f.org.ID, ticket.ID, f.customer.ID, body)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	require.True(t, utf8.ValidString(previews[0]))
	require.Equal(t, strings.Repeat("ü", 117)+"...", previews[0])
}

func TestSlowSubscriberDoesNotHoldUpdate(t *testing.T) {
	store := repotest.NewStore()
	org := store.AddOrganization("Acme", "acme")
	agent := store.AddUser(org.ID, "agent@acme.test", domain.UserRoleAgent, "")
	ticket := store.PutTicket(domain.Ticket{
		OrgID: org.ID, ReporterID: agent.ID, Title: "Slow broker",
		Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityLow,
	})

	dispatcher := events.NewInMemoryDispatcher()
	subscriberErr := make(chan error, 1)
	dispatcher.Subscribe(events.EventTicketUpdated, func(ctx context.Context, _ events.Event) error {
		<-ctx.Done()
		subscriberErr <- ctx.Err()
		return ctx.Err()
	})
	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   store.Tickets(),
		CommentRepo:  store.Comments(),
		UserRepo:     store.Users(),
		Cursors:      pagination.NewCodec("test-cursor-secret"),
		Limits:       pagination.Limits{Default: 3, Max: 5},
		Dispatcher:   dispatcher,
		EventTimeout: 50 * time.Millisecond,
		Logger:       zap.NewNop(),
	})

	start := time.Now()
	updated, err := svc.UpdateTicket(context.Background(), service.TicketUpdateInput{
		OrgID: org.ID, TicketID: ticket.ID, ExpectedVersion: 1,
		Patch: domain.TicketPatch{Status: statusPtr(domain.TicketStatusClosed)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Less(t, time.Since(start), 2*time.Second)
	require.ErrorIs(t, <-subscriberErr, context.DeadlineExceeded)
}
