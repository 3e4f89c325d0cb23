package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dhima/mysql-connector/internal/api/response"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/dhima/mysql-connector/internal/session"
	"github.com/dhima/mysql-connector/pkg/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var importedAt = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

var testParams = session.Params{
	Server:   "db.local",
	Port:     "3306",
	Database: "shop",
	User:     "app",
	Password: "secret",
}

type apiFixture struct {
	t       *testing.T
	router  *gin.Engine
	mock    sqlmock.Sqlmock
	session *session.Session
}

// newAPIFixture wires every handler onto a router backed by a session
// whose driver is a sqlmock.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := session.New(
		session.WithOpener(func(string, string) (*sql.DB, error) { return db, nil }),
		session.WithClock(clock.NewFixed(importedAt)),
	)

	logger := logging.NewNoOpLogger()
	sessions := NewSessionHandler(logger, s)
	tables := NewTableHandler(logger, s)

	router := gin.New()
	router.GET("/health", NewHealthHandler(logger, s).Health)
	v1 := router.Group("/api/v1")
	v1.GET("/session", sessions.Status)
	v1.POST("/session/open", sessions.Open)
	v1.POST("/session/close", sessions.Close)
	v1.POST("/query", sessions.Query)
	v1.POST("/execute", sessions.Execute)
	v1.GET("/tables", tables.ListTables)
	v1.POST("/tables/:name", tables.ImportTable)
	v1.PUT("/tables/:name", tables.RefreshTable)
	v1.GET("/tables/:name", tables.GetTable)
	v1.DELETE("/tables/:name", tables.DropTable)
	v1.POST("/hash", NewHashHandler(logger).Hash)

	return &apiFixture{t: t, router: router, mock: mock, session: s}
}

func (f *apiFixture) configured() *apiFixture {
	f.t.Helper()
	require.NoError(f.t, f.session.Configure(context.Background(), testParams))
	return f
}

func (f *apiFixture) opened() *apiFixture {
	f.t.Helper()
	f.configured()
	require.NoError(f.t, f.session.Open(context.Background()))
	return f
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// decodeData unwraps the data field of a success response.
func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var wrapper struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wrapper), w.Body.String())
	return wrapper.Data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func newRows(names ...string) *sqlmock.Rows {
	columns := make([]*sqlmock.Column, len(names))
	for i, name := range names {
		columns[i] = sqlmock.NewColumn(name).OfType("VARCHAR", "").Nullable(true)
	}
	return sqlmock.NewRowsWithColumnDefinition(columns...)
}
