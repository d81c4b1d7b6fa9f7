package child

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

	"github.com/mcare/mcare/internal/domain/mother"
	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/db/dbtest"
	"github.com/mcare/mcare/internal/platform/httpx"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/pagination"
)

// =========== Mock Repositories ===========

type motherMap map[int64]mother.Mother

func (m motherMap) GetByID(_ context.Context, id int64) (*mother.Mother, error) {
	mo, ok := m[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &mo, nil
}

type mockChildRepo struct {
	mu     sync.Mutex
	store  map[int64]Child
	owners motherMap
	nextID int64
}

func newMockChildRepo(owners motherMap) *mockChildRepo {
	return &mockChildRepo{store: map[int64]Child{}, owners: owners}
}

func (m *mockChildRepo) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]Child, len(m.store))
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

func (m *mockChildRepo) Create(_ context.Context, c *Child) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo, ok := m.owners[c.MotherID]
	if !ok {
		return db.ErrForeignKeyViolation
	}
	m.nextID++
	c.ID = m.nextID
	c.OwnerUserID = mo.UserID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.store[c.ID] = *c
	return nil
}

func (m *mockChildRepo) GetByID(_ context.Context, id int64) (*Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &c, nil
}

func (m *mockChildRepo) filter(motherID *int64) []*Child {
	var out []*Child
	for _, c := range m.store {
		if motherID == nil || c.MotherID == *motherID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockChildRepo) ListByMother(_ context.Context, motherID int64) ([]*Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(&motherID), nil
}

func (m *mockChildRepo) List(_ context.Context, motherID *int64, limit, offset int) ([]*Child, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(motherID)
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *mockChildRepo) Update(_ context.Context, c *Child) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[c.ID]; !ok {
		return db.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	m.store[c.ID] = *c
	return nil
}

func (m *mockChildRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockChildRepo) CountByMother(ctx context.Context, motherID int64) (int, error) {
	items, _ := m.ListByMother(ctx, motherID)
	return len(items), nil
}

type mockMedicalRecordRepo struct {
	mu     sync.Mutex
	store  []MedicalRecord
	nextID int64
}

func (m *mockMedicalRecordRepo) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, next := len(m.store), m.nextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.store, m.nextID = m.store[:n], next
	}
}

func (m *mockMedicalRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	r.RecordedAt = time.Now()
	m.store = append(m.store, *r)
	return nil
}

func (m *mockMedicalRecordRepo) ListByChild(_ context.Context, childID int64) ([]*MedicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MedicalRecord
	for i := len(m.store) - 1; i >= 0; i-- {
		if m.store[i].ChildID == childID {
			r := m.store[i]
			out = append(out, &r)
		}
	}
	return out, nil
}

// =========== Fixtures ===========

var (
	admin  = auth.Principal{UserID: 1, Role: auth.RoleAdmin}
	worker = auth.Principal{UserID: 2, Role: auth.RoleHealthWorker}
	owner  = auth.Principal{UserID: 9, Role: auth.RoleMother}
	other  = auth.Principal{UserID: 5, Role: auth.RoleMother}
)

type fixture struct {
	svc     *Service
	repo    *mockChildRepo
	records *mockMedicalRecordRepo
}

func newFixture() *fixture {
	mothers := motherMap{
		3: {ID: 3, UserID: 9, FirstName: "Grace", LastName: "Wanjiru", IsActive: true},
		4: {ID: 4, UserID: 5, FirstName: "Halima", LastName: "Mohamed", IsActive: true},
	}
	f := &fixture{repo: newMockChildRepo(mothers), records: &mockMedicalRecordRepo{}}
	f.svc = NewService(Deps{
		Children:       f.repo,
		MedicalRecords: f.records,
		Mothers:        mothers,
		Tx:             dbtest.NewTxManager(f.repo, f.records),
		Engine:         validation.NewEngine(),
	})
	return f
}

func newborn(motherID float64) validation.Payload {
	return validation.Payload{
		"mother_id":     motherID,
		"first_name":    "Baraka",
		"last_name":     "Wanjiru",
		"gender":        "male",
		"date_of_birth": "2025-01-20",
		"birth_weight":  3.2,
		"birth_height":  49.5,
		"birth_type":    "normal",
		"apgar_score":   float64(9),
	}
}

// =========== Tests ===========

func TestService_CreateAndGet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, err := f.svc.Create(ctx, owner, newborn(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.MotherID)
	assert.Equal(t, int64(9), c.OwnerUserID)
	assert.Equal(t, "Baraka Wanjiru", c.FullName())

	got, err := f.svc.Get(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.2, got.BirthWeight)
	assert.Equal(t, 9, got.ApgarScore)

	_, err = f.svc.Get(ctx, other, c.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Get(ctx, worker, c.ID)
	assert.NoError(t, err)
}

func TestService_CreateRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, admin, newborn(99))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Create(ctx, other, newborn(3))
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	p := newborn(3)
	p["apgar_score"] = float64(11)
	p["gender"] = "unknown"
	_, err = f.svc.Create(ctx, owner, p)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "apgar_score")
	assert.Contains(t, ae.Fields, "gender")
	assert.Empty(t, f.repo.store)
}

func TestService_ListByMotherAndList(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, mid := range []float64{3, 3, 4} {
		_, err := f.svc.Create(ctx, admin, newborn(mid))
		require.NoError(t, err)
	}

	items, err := f.svc.ListByMother(ctx, owner, 3)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = f.svc.ListByMother(ctx, owner, 4)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.ListByMother(ctx, owner, 42)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	mid := int64(4)
	page, total, err := f.svc.List(ctx, worker, &mid, pagination.Parse("1", "10"))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, page, 1)

	_, _, err = f.svc.List(ctx, owner, nil, pagination.Parse("", ""))
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	n, err := f.repo.CountByMother(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestService_UpdateAndDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, err := f.svc.Create(ctx, owner, newborn(3))
	require.NoError(t, err)

	got, err := f.svc.Update(ctx, owner, c.ID, validation.Payload{
		"first_name": "Imani",
		"blood_type": "B+",
		"mother_id":  float64(4),
	})
	require.NoError(t, err)
	assert.Equal(t, "Imani", got.FirstName)
	require.NotNil(t, got.BloodType)
	assert.Equal(t, "B+", *got.BloodType)
	assert.Equal(t, int64(3), got.MotherID)

	_, err = f.svc.Update(ctx, owner, c.ID, validation.Payload{"birth_weight": -1.0})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Update(ctx, other, c.ID, validation.Payload{"first_name": "Zawadi"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	assert.True(t, apperr.Is(f.svc.Delete(ctx, owner, c.ID), apperr.KindForbidden))
	require.NoError(t, f.svc.Delete(ctx, worker, c.ID))
	assert.True(t, apperr.Is(f.svc.Delete(ctx, worker, c.ID), apperr.KindNotFound))
}

func TestService_MedicalRecords(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, err := f.svc.Create(ctx, owner, newborn(3))
	require.NoError(t, err)

	_, err = f.svc.AddMedicalRecord(ctx, owner, c.ID, validation.Payload{"weight": 4.1})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.AddMedicalRecord(ctx, worker, c.ID, validation.Payload{"medications": []any{"ORS"}})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)

	rec, err := f.svc.AddMedicalRecord(ctx, worker, c.ID, validation.Payload{
		"weight":      4.1,
		"temperature": 36.8,
		"allergies":   []any{"peanuts"},
		"notes":       "Healthy weight gain",
	})
	require.NoError(t, err)
	require.NotNil(t, rec.RecordedBy)
	assert.Equal(t, worker.UserID, *rec.RecordedBy)
	assert.Equal(t, []string{"peanuts"}, rec.Allergies)

	_, err = f.svc.AddMedicalRecord(ctx, worker, 77, validation.Payload{"weight": 4.1})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	items, err := f.svc.ListMedicalRecords(ctx, owner, c.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Healthy weight gain", *items[0].Notes)

	_, err = f.svc.ListMedicalRecords(ctx, other, c.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestHandler_Routes(t *testing.T) {
	f := newFixture()
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

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := send(http.MethodPost, "/api/v1/children", `{"mother_id":3,"first_name":"Baraka","last_name":"Wanjiru",
		"gender":"male","date_of_birth":"2025-01-20","birth_weight":3.2,"birth_height":49.5,
		"birth_type":"normal","apgar_score":9}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "owner_user_id")

	rec = send(http.MethodGet, "/api/v1/mothers/3/children", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"first_name":"Baraka"`)

	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/api/v1/children/1/medical-records", `{"weight":4}`).Code)
	assert.Equal(t, http.StatusForbidden, send(http.MethodGet, "/api/v1/children", "").Code)

	caller = worker
	rec = send(http.MethodPost, "/api/v1/children/1/medical-records", `{"weight":4.4,"heart_rate":130}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = send(http.MethodGet, "/api/v1/children/1/medical-records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"heart_rate":130`)

	rec = send(http.MethodDelete, "/api/v1/children/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, send(http.MethodGet, "/api/v1/children/1", "").Code)
}
