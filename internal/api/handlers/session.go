package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dhima/mysql-connector/internal/api/response"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/dhima/mysql-connector/internal/models"
	"github.com/dhima/mysql-connector/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Session is the database session the API drives. *session.Session
// satisfies it.
type Session interface {
	Initialized() bool
	IsOpen() (bool, error)
	Open(ctx context.Context) error
	Close() error
	LastError() string
	Query(ctx context.Context, query string) (*session.Cursor, error)
	Execute(ctx context.Context, statement string) (int64, error)
	Tables() []string
	Table(name string) (*session.Table, error)
	ImportTable(ctx context.Context, name string) error
	RefreshTable(ctx context.Context, name string) error
	DropTable(ctx context.Context, name string) error
}

// SessionHandler exposes connection state, reads and writes.
type SessionHandler struct {
	logger  logging.Logger
	session Session
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(logger logging.Logger, s Session) *SessionHandler {
	return &SessionHandler{
		logger:  logger.With(zap.String("handler", "session")),
		session: s,
	}
}

// Status reports whether the session is configured and open, its last
// error and the cached tables.
func (h *SessionHandler) Status(c *gin.Context) {
	response.OK(c, h.status())
}

// Open opens the session connection.
func (h *SessionHandler) Open(c *gin.Context) {
	if err := h.session.Open(c.Request.Context()); err != nil {
		writeSessionError(c, h.logger, err, "open session")
		return
	}
	response.Success(c, http.StatusOK, h.status(), "session opened")
}

// Close closes the session connection and any open cursor.
func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.session.Close(); err != nil {
		writeSessionError(c, h.logger, err, "close session")
		return
	}
	response.Success(c, http.StatusOK, h.status(), "session closed")
}

// Query runs a read statement and returns at most max_rows rows. A cursor
// that still has rows after the limit is closed and the response is
// marked truncated.
func (h *SessionHandler) Query(c *gin.Context) {
	var req models.StatementRequest
	if !bindValidated(c, querySchema, &req) {
		return
	}
	limit := req.MaxRows
	if limit == 0 {
		limit = models.DefaultMaxRows
	}

	cursor, err := h.session.Query(c.Request.Context(), req.SQL)
	if err != nil {
		writeSessionError(c, h.logger, err, "query")
		return
	}

	result, err := drain(cursor, limit)
	if err != nil {
		writeSessionError(c, h.logger, err, "query")
		return
	}
	if err := releaseTruncated(cursor, result); err != nil {
		h.logger.Warn("failed to close truncated cursor",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)))
	}

	h.logger.Debug("query served",
		logging.Statement(req.SQL),
		zap.Int("rows", len(result.Rows)),
		zap.Bool("truncated", result.Truncated),
		zap.String("request_id", response.GetRequestID(c)))
	response.OK(c, result)
}

// Execute runs a write or DDL statement.
func (h *SessionHandler) Execute(c *gin.Context) {
	var req models.StatementRequest
	if !bindValidated(c, executeSchema, &req) {
		return
	}

	affected, err := h.session.Execute(c.Request.Context(), req.SQL)
	if err != nil {
		writeSessionError(c, h.logger, err, "execute")
		return
	}

	var resp models.ExecuteResponse
	if affected != session.NoRowCount {
		resp.RowsAffected = &affected
		resp.RowCount = true
	}
	response.OK(c, resp)
}

func (h *SessionHandler) status() models.SessionStatus {
	open, err := h.session.IsOpen()
	if err != nil && !errors.Is(err, session.ErrNotInitialized) {
		h.logger.Warn("failed to read session state", zap.Error(err))
	}
	return models.SessionStatus{
		Initialized: h.session.Initialized(),
		Open:        open,
		LastError:   h.session.LastError(),
		Tables:      h.session.Tables(),
	}
}

// drain reads up to limit rows from a cursor positioned at its first row.
func drain(cursor *session.Cursor, limit int) (models.QueryResponse, error) {
	result := models.QueryResponse{Columns: cursor.Columns(), Rows: [][]any{}}
	for {
		values, err := cursor.Values()
		if err != nil {
			return result, err
		}
		result.Rows = append(result.Rows, values)

		if !cursor.Next() {
			break
		}
		if len(result.Rows) == limit {
			result.Truncated = true
			break
		}
	}
	if err := cursor.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// releaseTruncated closes a cursor that still has rows after a truncated
// drain. Only the drained cursor is closed: by now the session may hold a
// cursor opened by another caller.
func releaseTruncated(cursor *session.Cursor, result models.QueryResponse) error {
	if !result.Truncated {
		return nil
	}
	return cursor.Close()
}
