package mother

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

	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/db/dbtest"
	"github.com/mcare/mcare/internal/platform/httpx"
	"github.com/mcare/mcare/internal/platform/outbox"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/pagination"
)

// =========== Mock Repository ===========

type mockRepo struct {
	mu     sync.Mutex
	store  map[int64]Mother
	emails map[int64]string
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: map[int64]Mother{}, emails: map[int64]string{}}
}

func (m *mockRepo) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]Mother, len(m.store))
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

func (m *mockRepo) Create(_ context.Context, mo *Mother) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.UserID == mo.UserID {
			return db.ErrUniqueViolation
		}
	}
	m.nextID++
	mo.ID = m.nextID
	mo.CreatedAt = time.Now()
	mo.UpdatedAt = mo.CreatedAt
	m.store[mo.ID] = *mo
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Mother, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo, ok := m.store[id]
	if !ok || !mo.IsActive {
		return nil, db.ErrNotFound
	}
	return &mo, nil
}

func (m *mockRepo) GetByUserID(_ context.Context, userID int64) (*Mother, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mo := range m.store {
		if mo.UserID == userID && mo.IsActive {
			mo := mo
			return &mo, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockRepo) ExistsForUser(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mo := range m.store {
		if mo.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Update(_ context.Context, mo *Mother) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[mo.ID]
	if !ok || !cur.IsActive {
		return db.ErrNotFound
	}
	mo.UpdatedAt = time.Now()
	m.store[mo.ID] = *mo
	return nil
}

func (m *mockRepo) Deactivate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo, ok := m.store[id]
	if !ok || !mo.IsActive {
		return db.ErrNotFound
	}
	mo.IsActive = false
	m.store[id] = mo
	return nil
}

func (m *mockRepo) active(match func(Mother) bool) []*Mother {
	var out []*Mother
	for _, mo := range m.store {
		if mo.IsActive && match(mo) {
			mo := mo
			out = append(out, &mo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Mother, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.active(func(mo Mother) bool {
		if f.ClinicID != nil && (mo.ClinicID == nil || *mo.ClinicID != *f.ClinicID) {
			return false
		}
		return f.PregnancyStatus == "" || mo.PregnancyStatus == f.PregnancyStatus
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) Search(_ context.Context, term string, clinicID *int64, limit int) ([]*Mother, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	term = strings.ToLower(term)
	out := m.active(func(mo Mother) bool {
		if clinicID != nil && (mo.ClinicID == nil || *mo.ClinicID != *clinicID) {
			return false
		}
		for _, s := range []string{mo.FirstName, mo.LastName, mo.PhoneNumber, m.emails[mo.UserID]} {
			if strings.Contains(strings.ToLower(s), term) {
				return true
			}
		}
		return false
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type roleMap map[int64]string

func (r roleMap) RoleOf(_ context.Context, userID int64) (string, error) {
	role, ok := r[userID]
	if !ok {
		return "", apperr.NotFound("user")
	}
	return role, nil
}

type clinicSet map[int64]bool

func (c clinicSet) Exists(_ context.Context, id int64) (bool, error) { return c[id], nil }

type fixedCount int

func (n fixedCount) CountByMother(context.Context, int64) (int, error) { return int(n), nil }

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) Record(_ context.Context, eventType string, _ any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, eventType)
	return nil
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
	events *eventLog
}

func newFixture(strict bool) *fixture {
	f := &fixture{repo: newMockRepo(), events: &eventLog{}}
	f.svc = NewService(Deps{
		Mothers:       f.repo,
		Clinics:       clinicSet{3: true},
		Users:         roleMap{1: auth.RoleAdmin, 2: auth.RoleHealthWorker, 5: auth.RoleMother, 9: auth.RoleMother, 10: auth.RoleMother},
		Children:      fixedCount(2),
		Visits:        fixedCount(4),
		Tx:            dbtest.NewTxManager(f.repo),
		Engine:        validation.NewEngine(validation.WithClock(func() time.Time { return today })),
		Events:        f.events,
		StrictUpdates: strict,
	})
	return f
}

func profile() validation.Payload {
	return validation.Payload{
		"first_name":    "Grace",
		"last_name":     "Wanjiru",
		"date_of_birth": "1995-03-10",
		"phone_number":  "+254 712 000 111",
		"blood_type":    "O+",
	}
}

func (f *fixture) seed(t *testing.T, caller auth.Principal, p validation.Payload) *Mother {
	t.Helper()
	m, err := f.svc.Create(context.Background(), caller, p)
	require.NoError(t, err)
	return m
}

// =========== Tests ===========

func TestService_CreateOwnProfile(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	p := profile()
	p["address"] = "Kibera, Nairobi"
	p["emergency_contact"] = "Peter Wanjiru"
	p["pregnancy_status"] = StatusPregnant
	p["last_menstrual_period"] = "2025-04-06"
	p["expected_delivery_date"] = "2026-01-11"
	p["number_of_pregnancies"] = float64(3)
	p["number_of_live_births"] = float64(2)
	p["medical_conditions"] = "Gestational diabetes"
	p["allergies"] = "Penicillin"
	p["clinic_id"] = float64(3)
	m := f.seed(t, owner, p)

	assert.Equal(t, int64(9), m.UserID)
	assert.Equal(t, "Grace", m.FirstName)
	assert.Equal(t, "Wanjiru", m.LastName)
	assert.Equal(t, "1995-03-10", m.DateOfBirth.String())
	assert.Equal(t, "+254712000111", m.PhoneNumber)
	assert.Equal(t, "O+", m.BloodType)
	assert.Equal(t, "Kibera, Nairobi", *m.Address)
	assert.Equal(t, "Peter Wanjiru", *m.EmergencyContact)
	assert.Equal(t, StatusPregnant, m.PregnancyStatus)
	assert.Equal(t, "2025-04-06", m.LastMenstrualPeriod.String())
	assert.Equal(t, "2026-01-11", m.ExpectedDeliveryDate.String())
	assert.Equal(t, 3, m.NumberOfPregnancies)
	assert.Equal(t, 2, m.NumberOfLiveBirths)
	assert.Equal(t, "Gestational diabetes", *m.MedicalConditions)
	assert.Equal(t, "Penicillin", *m.Allergies)
	assert.Equal(t, int64(3), *m.ClinicID)
	assert.True(t, m.IsActive)

	got, err := f.svc.Get(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, *m, *got)

	defaults := f.seed(t, auth.Principal{UserID: 10, Role: auth.RoleMother}, profile())
	assert.Equal(t, StatusNotPregnant, defaults.PregnancyStatus)
	assert.Nil(t, defaults.ClinicID)
}

func TestService_CreateByStaff(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, worker, profile())
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "user_id")

	p := profile()
	p["user_id"] = float64(10)
	p["clinic_id"] = float64(3)
	m, err := f.svc.Create(ctx, worker, p)
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.UserID)
}

func TestService_CreateRejections(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	f.seed(t, owner, profile())

	_, err := f.svc.Create(ctx, owner, profile())
	assert.True(t, apperr.Is(err, apperr.KindConflict), "second profile for the same user")

	p := profile()
	p["user_id"] = float64(9)
	_, err = f.svc.Create(ctx, other, p)
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "mother creating a profile for someone else")

	p = profile()
	p["user_id"] = float64(2)
	_, err = f.svc.Create(ctx, admin, p)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "account without the mother role")

	p = profile()
	p["user_id"] = float64(77)
	_, err = f.svc.Create(ctx, admin, p)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown account")

	p = profile()
	p["clinic_id"] = float64(8)
	_, err = f.svc.Create(ctx, other, p)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown clinic")
	assert.Len(t, f.repo.store, 1)
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(false)
	p := profile()
	p["date_of_birth"] = "2020-01-01"
	p["number_of_pregnancies"] = float64(1)
	p["number_of_live_births"] = float64(3)

	_, err := f.svc.Create(context.Background(), owner, p)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "date_of_birth")
	assert.Contains(t, ae.Fields, "number_of_live_births")
}

func TestService_ReadAuthorization(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	m := f.seed(t, owner, profile())

	_, err := f.svc.Get(ctx, other, m.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	for _, caller := range []auth.Principal{admin, worker, owner} {
		_, err := f.svc.Get(ctx, caller, m.ID)
		assert.NoError(t, err, caller.Role)
	}

	_, err = f.svc.Get(ctx, admin, 404)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := f.svc.GetForUser(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = f.svc.GetForUser(ctx, other)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestService_Update(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	p := profile()
	p["number_of_pregnancies"] = float64(2)
	p["number_of_live_births"] = float64(1)
	m := f.seed(t, owner, p)

	got, err := f.svc.Update(ctx, owner, m.ID, validation.Payload{
		"address":          "Kibera, Nairobi",
		"pregnancy_status": StatusPregnant,
		"user_id":          float64(5),
	})
	require.NoError(t, err)
	require.NotNil(t, got.Address)
	assert.Equal(t, "Kibera, Nairobi", *got.Address)
	assert.Equal(t, StatusPregnant, got.PregnancyStatus)
	assert.Equal(t, int64(9), got.UserID, "ownership cannot be moved")

	_, err = f.svc.Update(ctx, owner, m.ID, validation.Payload{"number_of_live_births": float64(3)})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "number_of_live_births")
	assert.Equal(t, 1, f.repo.store[m.ID].NumberOfLiveBirths)

	_, err = f.svc.Update(ctx, other, m.ID, validation.Payload{"address": "elsewhere"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestService_UpdateStrict(t *testing.T) {
	f := newFixture(true)
	m := f.seed(t, owner, profile())

	_, err := f.svc.Update(context.Background(), owner, m.ID, validation.Payload{
		"address": "Kisumu",
		"user_id": float64(5),
	})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "field is not updatable", ae.Fields["user_id"])
}

func TestService_Deactivate(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	m := f.seed(t, owner, profile())

	assert.True(t, apperr.Is(f.svc.Deactivate(ctx, owner, m.ID), apperr.KindForbidden))

	require.NoError(t, f.svc.Deactivate(ctx, worker, m.ID))
	assert.Equal(t, []string{outbox.MotherDeactivated}, f.events.types)

	_, err := f.svc.Get(ctx, admin, m.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.Update(ctx, admin, m.ID, validation.Payload{"address": "x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(f.svc.Deactivate(ctx, worker, m.ID), apperr.KindNotFound))

	_, err = f.svc.Create(ctx, owner, profile())
	assert.True(t, apperr.Is(err, apperr.KindConflict), "a deactivated profile still holds the account")
}

func TestService_ListAndSearch(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	f.repo.emails[9] = "grace@example.com"

	p := profile()
	p["clinic_id"] = float64(3)
	p["pregnancy_status"] = StatusPregnant
	f.seed(t, owner, p)

	p = profile()
	p["first_name"] = "Halima"
	p["last_name"] = "Mohamed"
	p["phone_number"] = "+254733999888"
	f.seed(t, other, p)

	items, total, err := f.svc.List(ctx, worker, Filter{PregnancyStatus: StatusPregnant}, pagination.Parse("", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Grace", items[0].FirstName)

	_, _, err = f.svc.List(ctx, worker, Filter{PregnancyStatus: "expecting"}, pagination.Parse("", ""))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = f.svc.List(ctx, owner, Filter{}, pagination.Parse("", ""))
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	found, err := f.svc.Search(ctx, worker, "grace@", nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(9), found[0].UserID)

	clinic := int64(3)
	found, err = f.svc.Search(ctx, admin, "0733", &clinic)
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = f.svc.Search(ctx, admin, "   ", nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_PregnancySummary(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	p := profile()
	p["pregnancy_status"] = StatusPregnant
	p["last_menstrual_period"] = "2025-04-06"
	m := f.seed(t, owner, p)

	sum, err := f.svc.PregnancySummary(ctx, owner, m.ID)
	require.NoError(t, err)
	require.NotNil(t, sum.PregnancyWeek)
	assert.Equal(t, 10, *sum.PregnancyWeek)
	assert.Equal(t, "Grace Wanjiru", sum.FullName)
	assert.Equal(t, 4, sum.TotalVisits)
	assert.Equal(t, 2, sum.ChildrenCount)

	_, err = f.svc.Update(ctx, owner, m.ID, validation.Payload{"pregnancy_status": StatusPostpartum})
	require.NoError(t, err)
	sum, err = f.svc.PregnancySummary(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Nil(t, sum.PregnancyWeek)

	_, err = f.svc.PregnancySummary(ctx, other, m.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestHandler_Routes(t *testing.T) {
	f := newFixture(false)
	m := f.seed(t, owner, profile())

	e := echo.New()
	e.HTTPErrorHandler = httpx.ErrorHandler(zerolog.Nop(), false)
	caller := owner
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), caller)))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/api/v1/mothers/profile")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"first_name":"Grace"`)
	assert.Contains(t, rec.Body.String(), `"date_of_birth":"1995-03-10"`)

	rec = get("/api/v1/mothers/1/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pregnancy_week":null`)

	assert.Equal(t, http.StatusForbidden, get("/api/v1/mothers").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/mothers/abc").Code)

	caller = worker
	rec = get("/api/v1/mothers?status=not_pregnant&per_page=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/mothers/1", strings.NewReader(`{"allergies":"penicillin"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"allergies":"penicillin"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/mothers/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.repo.store[m.ID].IsActive)
}
