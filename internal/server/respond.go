package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/validate"
)

// maxUpload bounds PDF and XML request bodies
const maxUpload = 10 << 20

// mapError converts a service error into a status and response body.
// Upstream lookup failures are checked first since they wrap ErrUnavailable.
func mapError(err error) (int, ErrorResponse) {
	var (
		verr *model.ValidationError
		lerr *model.LookupError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: verr.Message, Code: "VALIDATION_ERROR", Field: verr.Field}
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"}
	case errors.As(err, &lerr):
		return http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "UPSTREAM_ERROR"}
	case errors.Is(err, model.ErrInvalid):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_INPUT"}
	case errors.Is(err, model.ErrNotConfigured):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "NOT_CONFIGURED"}
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "CONFLICT"}
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "UNAVAILABLE"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "INTERNAL_ERROR"}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := mapError(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

// bind decodes the JSON body and runs the binding rules
func (s *Server) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, validate.FromError(err))
		return false
	}
	return true
}

// body reads a raw upload, rejecting empty and oversized bodies
func (s *Server) body(c *gin.Context) ([]byte, bool) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body", Code: "INVALID_INPUT"})
		return nil, false
	}
	switch {
	case len(data) == 0:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body", Code: "INVALID_INPUT"})
		return nil, false
	case len(data) > maxUpload:
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "body exceeds 10 MiB", Code: "TOO_LARGE"})
		return nil, false
	}
	return data, true
}

func (s *Server) uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 0)
	if err != nil || v == 0 {
		s.fail(c, model.NewValidationError(name, c.Param(name), "id", "must be a positive integer"))
		return 0, false
	}
	return uint(v), true
}

func (s *Server) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		s.fail(c, model.NewValidationError(name, c.Param(name), "uuid", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// uintQuery reads an optional numeric query parameter, 0 when absent
func (s *Server) uintQuery(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 0)
	if err != nil {
		s.fail(c, model.NewValidationError(name, raw, "id", "must be a positive integer"))
		return 0, false
	}
	return uint(v), true
}

func (s *Server) listQuery(c *gin.Context) (repository.ListQuery, bool) {
	var q repository.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.fail(c, validate.FromError(err))
		return q, false
	}
	return q, true
}

// sequenceKey reads /:id/sequences/:type/:env/:series
func (s *Server) sequenceKey(c *gin.Context) (model.SequenceKey, bool) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return model.SequenceKey{}, false
	}
	docType, ok := model.ParseDocumentType(c.Param("type"))
	if !ok {
		s.fail(c, model.NewValidationError("document_type", c.Param("type"), "oneof", "unknown document type"))
		return model.SequenceKey{}, false
	}
	env, ok := model.ParseEnvironment(c.Param("env"))
	if !ok {
		s.fail(c, model.NewValidationError("environment", c.Param("env"), "oneof", "must be production or homologation"))
		return model.SequenceKey{}, false
	}
	series, err := strconv.Atoi(c.Param("series"))
	if err != nil {
		s.fail(c, model.NewValidationError("series", c.Param("series"), "numeric", "must be a number"))
		return model.SequenceKey{}, false
	}
	key := model.SequenceKey{EmitterID: id, DocumentType: docType, Environment: env, Series: series}
	if err := key.Validate(); err != nil {
		s.fail(c, err)
		return model.SequenceKey{}, false
	}
	return key, true
}

func attachment(c *gin.Context, name, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, data)
}
