package handlers

import (
	"github.com/dhima/mysql-connector/internal/api/response"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/dhima/mysql-connector/internal/models"
	"github.com/dhima/mysql-connector/internal/security"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HashHandler computes digests of request text.
type HashHandler struct {
	logger logging.Logger
}

// NewHashHandler creates a new hash handler.
func NewHashHandler(logger logging.Logger) *HashHandler {
	return &HashHandler{logger: logger.With(zap.String("handler", "hash"))}
}

// Hash returns the digest of the request text.
func (h *HashHandler) Hash(c *gin.Context) {
	var req models.HashRequest
	if !bindValidated(c, hashSchema, &req) {
		return
	}

	alg, err := security.ParseAlgorithm(req.Algorithm)
	if err != nil {
		response.BadRequest(c, err.Error(), nil)
		return
	}
	enc, err := security.ParseEncoding(req.Encoding)
	if err != nil {
		response.BadRequest(c, err.Error(), nil)
		return
	}

	digest, err := security.HashEncoded(alg, enc, req.Text)
	if err != nil {
		h.logger.Error("hash failed", zap.Error(err), zap.String("request_id", response.GetRequestID(c)))
		response.InternalServerError(c, "internal server error")
		return
	}

	response.OK(c, models.HashResponse{
		Algorithm: string(alg),
		Encoding:  string(enc),
		Digest:    digest,
	})
}
