package handlers

import (
	"net/http"

	"github.com/dhima/mysql-connector/internal/api/response"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/dhima/mysql-connector/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TableHandler manages cached table snapshots.
type TableHandler struct {
	logger  logging.Logger
	session Session
}

// NewTableHandler creates a new table handler.
func NewTableHandler(logger logging.Logger, s Session) *TableHandler {
	return &TableHandler{
		logger:  logger.With(zap.String("handler", "table")),
		session: s,
	}
}

// ListTables returns the names of the cached snapshots.
func (h *TableHandler) ListTables(c *gin.Context) {
	response.OK(c, models.TableListResponse{Tables: h.session.Tables()})
}

// ImportTable snapshots a server table into the cache.
func (h *TableHandler) ImportTable(c *gin.Context) {
	name := c.Param("name")
	if err := h.session.ImportTable(c.Request.Context(), name); err != nil {
		writeSessionError(c, h.logger, err, "import table")
		return
	}
	h.respondWithTable(c, name, func(resp models.TableResponse) {
		h.logger.Info("table imported",
			logging.Table(name),
			zap.Int("rows", resp.RowCount),
			zap.String("request_id", response.GetRequestID(c)))
		response.Created(c, resp, "table imported")
	})
}

// RefreshTable replaces an existing snapshot with the server's current
// contents.
func (h *TableHandler) RefreshTable(c *gin.Context) {
	name := c.Param("name")
	if err := h.session.RefreshTable(c.Request.Context(), name); err != nil {
		writeSessionError(c, h.logger, err, "refresh table")
		return
	}
	h.respondWithTable(c, name, func(resp models.TableResponse) {
		response.Success(c, http.StatusOK, resp, "table refreshed")
	})
}

// GetTable returns a cached snapshot.
func (h *TableHandler) GetTable(c *gin.Context) {
	h.respondWithTable(c, c.Param("name"), func(resp models.TableResponse) {
		response.OK(c, resp)
	})
}

// DropTable removes a snapshot from the cache.
func (h *TableHandler) DropTable(c *gin.Context) {
	if err := h.session.DropTable(c.Request.Context(), c.Param("name")); err != nil {
		writeSessionError(c, h.logger, err, "drop table")
		return
	}
	response.NoContent(c)
}

func (h *TableHandler) respondWithTable(c *gin.Context, name string, send func(models.TableResponse)) {
	table, err := h.session.Table(name)
	if err != nil {
		writeSessionError(c, h.logger, err, "get table")
		return
	}
	send(models.NewTableResponse(table))
}
