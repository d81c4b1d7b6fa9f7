package vaccination

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcare/mcare/internal/domain/child"
	"github.com/mcare/mcare/internal/domain/mother"
	"github.com/mcare/mcare/internal/domain/visit"
	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/db/dbtest"
	"github.com/mcare/mcare/internal/platform/httpx"
	"github.com/mcare/mcare/internal/platform/outbox"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/civil"
	"github.com/mcare/mcare/pkg/pagination"
)

// =========== Mock Repositories ===========

type childMap map[int64]child.Child

func (m childMap) GetByID(_ context.Context, id int64) (*child.Child, error) {
	c, ok := m[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &c, nil
}

type motherMap map[int64]mother.Mother

func (m motherMap) GetByID(_ context.Context, id int64) (*mother.Mother, error) {
	mo, ok := m[id]
	if !ok || !mo.IsActive {
		return nil, db.ErrNotFound
	}
	return &mo, nil
}

type workerSet map[int64]bool

func (w workerSet) Exists(_ context.Context, id int64) (bool, error) { return w[id], nil }

type mockRepo struct {
	mu       sync.Mutex
	store    map[int64]Vaccination
	children childMap
	nextID   int64
}

func newMockRepo(children childMap) *mockRepo {
	return &mockRepo{store: map[int64]Vaccination{}, children: children}
}

func (m *mockRepo) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]Vaccination, len(m.store))
	for k, v := range m.store {
		saved[k] = v
	}
	next := m.nextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.store, m.nextID = saved, next
	}
}

func (m *mockRepo) Create(_ context.Context, v *Vaccination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.children[v.ChildID]
	if !ok {
		return db.ErrForeignKeyViolation
	}
	m.nextID++
	v.ID = m.nextID
	v.OwnerUserID = c.OwnerUserID
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	m.store[v.ID] = *v
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Vaccination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &v, nil
}

func (m *mockRepo) sorted(match func(Vaccination) bool) []*Vaccination {
	var out []*Vaccination
	for _, v := range m.store {
		if match(v) {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateGiven != out[j].DateGiven {
			return out[i].DateGiven.After(out[j].DateGiven)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *mockRepo) ListByChild(_ context.Context, childID int64) ([]*Vaccination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(v Vaccination) bool { return v.ChildID == childID }), nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Vaccination, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(Vaccination) bool { return true })
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *mockRepo) Update(_ context.Context, v *Vaccination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[v.ID]; !ok {
		return db.ErrNotFound
	}
	v.UpdatedAt = time.Now()
	m.store[v.ID] = *v
	return nil
}

func (m *mockRepo) SetFollowUpVisit(_ context.Context, id, visitID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[id]
	if !ok {
		return db.ErrNotFound
	}
	v.FollowUpVisitID = &visitID
	m.store[id] = v
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func alertDate(v Vaccination, useNextDue bool) (civil.Date, bool) {
	if useNextDue {
		if v.NextDueDate == nil {
			return civil.Date{}, false
		}
		return *v.NextDueDate, true
	}
	return v.DateGiven, true
}

func (m *mockRepo) due(useNextDue bool, match func(civil.Date) bool, newestFirst bool) []*Due {
	var out []*Due
	for _, v := range m.store {
		d, ok := alertDate(v, useNextDue)
		if !ok || !match(d) {
			continue
		}
		v := v
		c := m.children[v.ChildID]
		out = append(out, &Due{Vaccination: &v, ChildName: c.FullName(), MotherID: c.MotherID})
	}
	sort.Slice(out, func(i, j int) bool {
		di, _ := alertDate(*out[i].Vaccination, useNextDue)
		dj, _ := alertDate(*out[j].Vaccination, useNextDue)
		if di != dj {
			return di.Before(dj) != newestFirst
		}
		return (out[i].ID < out[j].ID) != newestFirst
	})
	return out
}

func (m *mockRepo) ListDueBetween(_ context.Context, useNextDue bool, from, to civil.Date) ([]*Due, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.due(useNextDue, func(d civil.Date) bool { return !d.Before(from) && !d.After(to) }, false), nil
}

func (m *mockRepo) ListOverdue(_ context.Context, useNextDue bool, before civil.Date, limit int) ([]*Due, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.due(useNextDue, func(d civil.Date) bool { return d.Before(before) }, true)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockVisits struct {
	mu     sync.Mutex
	store  map[int64]visit.Visit
	nextID int64
	fail   error
}

func (m *mockVisits) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]visit.Visit, len(m.store))
	for k, v := range m.store {
		saved[k] = v
	}
	next := m.nextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.store, m.nextID = saved, next
	}
}

func (m *mockVisits) Create(_ context.Context, v *visit.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.nextID += 100
	v.ID = m.nextID
	m.store[v.ID] = *v
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) Record(_ context.Context, eventType string, _ any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, eventType)
	return nil
}

func (l *eventLog) Snapshot() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.events)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = l.events[:n]
	}
}

// =========== Fixtures ===========

var (
	admin  = auth.Principal{UserID: 1, Role: auth.RoleAdmin}
	worker = auth.Principal{UserID: 2, Role: auth.RoleHealthWorker}
	owner  = auth.Principal{UserID: 9, Role: auth.RoleMother}
	other  = auth.Principal{UserID: 5, Role: auth.RoleMother}
)

var today = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	repo   *mockRepo
	visits *mockVisits
	events *eventLog
	tx     *dbtest.TxManager
}

func newFixture(useNextDue bool) *fixture {
	children := childMap{
		7: {ID: 7, MotherID: 3, FirstName: "Baraka", LastName: "Wanjiru", OwnerUserID: 9},
		8: {ID: 8, MotherID: 4, FirstName: "Imani", LastName: "Otieno", OwnerUserID: 5},
		// Child of a deactivated mother.
		12: {ID: 12, MotherID: 6, FirstName: "Zawadi", LastName: "Kamau", OwnerUserID: 15},
	}
	mothers := motherMap{
		3: {ID: 3, UserID: 9, IsActive: true},
		4: {ID: 4, UserID: 5, IsActive: true},
		6: {ID: 6, UserID: 15, IsActive: false},
	}
	f := &fixture{
		repo:   newMockRepo(children),
		visits: &mockVisits{store: map[int64]visit.Visit{}},
		events: &eventLog{},
	}
	f.tx = dbtest.NewTxManager(f.repo, f.visits, f.events)
	f.svc = NewService(Deps{
		Vaccinations:         f.repo,
		Children:             children,
		Mothers:              mothers,
		Visits:               f.visits,
		HealthWorkers:        workerSet{11: true},
		Tx:                   f.tx,
		Engine:               validation.NewEngine(validation.WithClock(func() time.Time { return today })),
		Events:               f.events,
		Logger:               zerolog.Nop(),
		AlertsUseNextDueDate: useNextDue,
	})
	return f
}

func dose(childID int64, given, nextDue string) validation.Payload {
	p := validation.Payload{
		"child_id":     float64(childID),
		"vaccine_name": "Polio",
		"date_given":   given,
	}
	if nextDue != "" {
		p["next_due_date"] = nextDue
	}
	return p
}

// =========== Tests ===========

func TestRecord_SchedulesFollowUp(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	p := dose(7, "2025-06-01", "2025-09-01")
	p["notes"] = "second dose"
	p["health_worker_id"] = float64(11)
	res, err := f.svc.Record(ctx, worker, p)
	require.NoError(t, err)

	require.NotNil(t, res.VisitID)
	assert.Equal(t, int64(1), res.VaccinationID)

	fu := f.visits.store[*res.VisitID]
	assert.Equal(t, int64(3), fu.MotherID)
	assert.Equal(t, int64(7), *fu.ChildID)
	assert.Equal(t, "2025-09-01", fu.VisitDate.String())
	assert.Equal(t, visit.TypePostnatal, fu.VisitType)
	assert.Equal(t, visit.StatusScheduled, fu.Status)
	assert.Nil(t, fu.HealthWorkerID)
	assert.Equal(t, "Next vaccination appointment for Baraka Wanjiru: Polio | Vaccine notes: second dose", *fu.Notes)

	stored := f.repo.store[res.VaccinationID]
	require.NotNil(t, stored.FollowUpVisitID)
	assert.Equal(t, *res.VisitID, *stored.FollowUpVisitID)
	assert.Equal(t, []string{outbox.VaccinationRecorded, outbox.VisitScheduled}, f.events.events)
}

func TestRecord_WithoutNextDueDate(t *testing.T) {
	f := newFixture(false)
	res, err := f.svc.Record(context.Background(), admin, dose(7, "2025-06-01", ""))
	require.NoError(t, err)
	assert.Nil(t, res.VisitID)
	assert.Nil(t, res.FollowUpVisit)
	assert.Empty(t, f.visits.store)
	assert.Equal(t, []string{outbox.VaccinationRecorded}, f.events.events)
}

func TestRecord_Rejections(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	_, err := f.svc.Record(ctx, worker, dose(70, "2025-06-01", "2025-09-01"))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindNotFound, ae.Kind)
	assert.Equal(t, "child not found", ae.Message)

	_, err = f.svc.Record(ctx, owner, dose(7, "2025-06-01", "2025-09-01"))
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.Record(ctx, worker, dose(7, "2025-06-01", "2025-05-01"))
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "next_due_date must be after date_given", ae.Fields["next_due_date"])

	_, err = f.svc.Record(ctx, worker, dose(7, "2025-07-01", ""))
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "date_given")

	p := dose(7, "2025-06-01", "")
	p["health_worker_id"] = float64(12)
	_, err = f.svc.Record(ctx, worker, p)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.Empty(t, f.repo.store)
	assert.Empty(t, f.visits.store)
	assert.Empty(t, f.events.events)
}

func TestRecord_DeactivatedMother(t *testing.T) {
	f := newFixture(false)

	_, err := f.svc.Record(context.Background(), worker, dose(12, "2025-06-01", "2025-09-01"))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindNotFound, ae.Kind)
	assert.Equal(t, "mother not found", ae.Message)

	assert.Empty(t, f.repo.store)
	assert.Empty(t, f.visits.store)
	assert.Empty(t, f.events.events)
}

func TestRecord_VisitFailureRollsBack(t *testing.T) {
	f := newFixture(false)
	f.visits.fail = db.ErrForeignKeyViolation

	_, err := f.svc.Record(context.Background(), worker, dose(7, "2025-06-01", "2025-09-01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrForeignKeyViolation)
	assert.Empty(t, f.repo.store, "vaccination row must not survive a failed follow-up")
	assert.Empty(t, f.events.events)
	assert.Equal(t, 1, f.tx.Rollbacks)
}

func TestService_ReadAccess(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	for _, d := range []string{"2025-05-01", "2025-06-01"} {
		_, err := f.svc.Record(ctx, worker, dose(7, d, ""))
		require.NoError(t, err)
	}
	_, err := f.svc.Record(ctx, worker, dose(8, "2025-06-02", ""))
	require.NoError(t, err)

	v, err := f.svc.Get(ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, "Polio", v.VaccineName)
	_, err = f.svc.Get(ctx, other, 1)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Get(ctx, owner, 99)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	items, err := f.svc.ListByChild(ctx, owner, 7)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2025-06-01", items[0].DateGiven.String())
	_, err = f.svc.ListByChild(ctx, other, 7)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	all, total, err := f.svc.List(ctx, worker, pagination.Parse("1", "2"))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 2)
	_, _, err = f.svc.List(ctx, owner, pagination.Parse("", ""))
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestService_UpdateAndDelete(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	res, err := f.svc.Record(ctx, worker, dose(7, "2025-06-01", "2025-09-01"))
	require.NoError(t, err)

	got, err := f.svc.Update(ctx, worker, res.VaccinationID, validation.Payload{
		"batch_number":  "PV-2025-01",
		"next_due_date": "2025-10-01",
		"child_id":      float64(8),
	})
	require.NoError(t, err)
	assert.Equal(t, "PV-2025-01", *got.BatchNumber)
	assert.Equal(t, int64(7), got.ChildID)
	assert.Len(t, f.visits.store, 1, "follow-up is not rescheduled")
	assert.Equal(t, "2025-09-01", f.visits.store[*res.VisitID].VisitDate.String())

	_, err = f.svc.Update(ctx, worker, res.VaccinationID, validation.Payload{"next_due_date": "2025-05-01"})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "next_due_date")

	_, err = f.svc.Update(ctx, owner, res.VaccinationID, validation.Payload{"notes": "x"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	assert.True(t, apperr.Is(f.svc.Delete(ctx, owner, res.VaccinationID), apperr.KindForbidden))
	require.NoError(t, f.svc.Delete(ctx, admin, res.VaccinationID))
	assert.True(t, apperr.Is(f.svc.Delete(ctx, admin, res.VaccinationID), apperr.KindNotFound))
}

func TestService_AlertsByDateGiven(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	for _, p := range []validation.Payload{
		dose(7, "2025-06-10", ""),
		dose(8, "2025-06-15", "2025-07-15"),
	} {
		_, err := f.svc.Record(ctx, worker, p)
		require.NoError(t, err)
	}

	alerts, err := f.svc.Alerts(ctx, worker)
	require.NoError(t, err)
	require.Len(t, alerts.Overdue, 1)
	assert.Equal(t, "Baraka Wanjiru", alerts.Overdue[0].ChildName)
	assert.Equal(t, -5, alerts.Overdue[0].DaysUntil)
	require.Len(t, alerts.Upcoming, 1)
	assert.Equal(t, 0, alerts.Upcoming[0].DaysUntil)
	assert.Equal(t, int64(4), alerts.Upcoming[0].MotherID)

	_, err = f.svc.Alerts(ctx, owner)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestService_AlertsByNextDueDate(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	for _, p := range []validation.Payload{
		dose(7, "2025-06-01", "2025-06-12"),
		dose(7, "2025-06-01", "2025-06-20"),
		dose(8, "2025-06-01", "2025-06-22"),
		dose(8, "2025-06-01", "2025-07-30"),
		dose(8, "2025-06-01", ""),
	} {
		_, err := f.svc.Record(ctx, worker, p)
		require.NoError(t, err)
	}

	alerts, err := f.svc.Alerts(ctx, worker)
	require.NoError(t, err)
	require.Len(t, alerts.Overdue, 1)
	assert.Equal(t, "2025-06-12", alerts.Overdue[0].AlertDate.String())
	require.Len(t, alerts.Upcoming, 2)
	assert.Equal(t, 5, alerts.Upcoming[0].DaysUntil)
	assert.Equal(t, 7, alerts.Upcoming[1].DaysUntil)
}

func TestService_AlertsUpcomingNotCrowdedOut(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	old := civil.Date{Year: 2025, Month: 1, Day: 10}
	for i := 0; i < MaxAlerts+5; i++ {
		require.NoError(t, f.repo.Create(ctx, &Vaccination{ChildID: 7, VaccineName: "OPV", DateGiven: old}))
	}
	_, err := f.svc.Record(ctx, worker, dose(8, "2025-06-14", ""))
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, worker, dose(8, "2025-06-15", ""))
	require.NoError(t, err)

	alerts, err := f.svc.Alerts(ctx, worker)
	require.NoError(t, err)
	require.Len(t, alerts.Upcoming, 1)
	assert.Equal(t, "Imani Otieno", alerts.Upcoming[0].ChildName)
	require.Len(t, alerts.Overdue, MaxAlerts)
	assert.Equal(t, "2025-06-14", alerts.Overdue[0].AlertDate.String(), "most recent overdue first")
}

func TestService_AlertsEmpty(t *testing.T) {
	f := newFixture(false)
	alerts, err := f.svc.Alerts(context.Background(), admin)
	require.NoError(t, err)
	assert.NotNil(t, alerts.Upcoming)
	assert.NotNil(t, alerts.Overdue)
}

func TestHandler_Routes(t *testing.T) {
	f := newFixture(false)
	e := echo.New()
	e.HTTPErrorHandler = httpx.ErrorHandler(zerolog.Nop(), false)
	caller := worker
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), caller)))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := send(http.MethodPost, "/api/v1/vaccinations", `{"child_id":7,"vaccine_name":"BCG","date_given":"2025-06-14","next_due_date":"2025-08-14"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"vaccination_id":1`)
	assert.Contains(t, rec.Body.String(), `"visit_id":100`)

	rec = send(http.MethodGet, "/api/v1/vaccinations/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"child_name":"Baraka Wanjiru"`)

	rec = send(http.MethodPost, "/api/v1/vaccinations", `{"child_id":70,"vaccine_name":"BCG","date_given":"2025-06-14"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	caller = owner
	rec = send(http.MethodGet, "/api/v1/children/7/vaccinations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"vaccine_name":"BCG"`)

	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/v1/vaccinations/1", "").Code)
	assert.Equal(t, http.StatusForbidden, send(http.MethodGet, "/api/v1/vaccinations/alerts", "").Code)
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/api/v1/vaccinations", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, send(http.MethodDelete, "/api/v1/vaccinations/1", "").Code)
}
