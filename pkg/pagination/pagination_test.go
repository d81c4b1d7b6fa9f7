package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		page, perPage string
		want          Params
	}{
		{"", "", Params{Page: 1, PerPage: 20, Offset: 0}},
		{"3", "1000", Params{Page: 3, PerPage: 100, Offset: 200}},
		{"2", "15", Params{Page: 2, PerPage: 15, Offset: 15}},
		{"0", "-5", Params{Page: 1, PerPage: 20, Offset: 0}},
		{"abc", "1.5", Params{Page: 1, PerPage: 20, Offset: 0}},
		{" 4 ", "1", Params{Page: 4, PerPage: 1, Offset: 3}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Parse(tt.page, tt.perPage), "page=%q per_page=%q", tt.page, tt.perPage)
	}
}

func TestParseWithLimits(t *testing.T) {
	assert.Equal(t, Params{Page: 1, PerPage: 10, Offset: 0}, ParseWithLimits("", "", 10, 50))
	assert.Equal(t, Params{Page: 2, PerPage: 50, Offset: 50}, ParseWithLimits("2", "80", 10, 50))
}

func TestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=2&per_page=30", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	assert.Equal(t, Params{Page: 2, PerPage: 30, Offset: 30}, FromContext(c))
}

func TestLimit(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), httptest.NewRecorder())
	assert.Equal(t, 50, Limit(c, 10, 50))

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, 10, Limit(c, 10, 50))
}

func TestNewMeta(t *testing.T) {
	m := NewMeta(Params{Page: 2, PerPage: 20, Offset: 20}, 45)
	assert.Equal(t, 3, m.Pages)
	assert.True(t, m.HasNext)
	assert.True(t, m.HasPrev)

	m = NewMeta(Params{Page: 1, PerPage: 20}, 0)
	assert.Equal(t, 0, m.Pages)
	assert.False(t, m.HasNext)
	assert.False(t, m.HasPrev)
}
