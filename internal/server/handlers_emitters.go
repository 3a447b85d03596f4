package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/fiscal-manager/internal/documents"
	"github.com/rezonia/fiscal-manager/internal/emitter"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/validate"
)

func (s *Server) handleListEmitters(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Emitters.List(ctx, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreateEmitter(c *gin.Context) {
	var e model.Emitter
	if !s.bind(c, &e) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Emitters.Create(ctx, &e); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) handleGetEmitter(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	e, err := s.app.Emitters.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleUpdateEmitter(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var e model.Emitter
	if !s.bind(c, &e) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	updated, err := s.app.Emitters.Update(ctx, id, &e)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteEmitter(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Emitters.Delete(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetEnvironment(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var req EnvironmentRequest
	if !s.bind(c, &req) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	e, err := s.app.Emitters.SetEnvironment(ctx, id, req.Environment)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleListSequences(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	seqs, err := s.app.Emitters.Sequences(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: seqs, Total: len(seqs)})
}

func (s *Server) handlePeekSequence(c *gin.Context) {
	key, ok := s.sequenceKey(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	seq, err := s.app.Emitters.Peek(ctx, key)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seq)
}

func (s *Server) handleConfigureSequence(c *gin.Context) {
	key, ok := s.sequenceKey(c)
	if !ok {
		return
	}
	var req ConfigureSequenceRequest
	if !s.bind(c, &req) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	seq, err := s.app.Emitters.ConfigureSequence(ctx, key, req.NextNumber)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seq)
}

func (s *Server) handleSequenceHistory(c *gin.Context) {
	key, ok := s.sequenceKey(c)
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.fail(c, model.NewValidationError("limit", raw, "gte", "must be a positive integer"))
			return
		}
		limit = v
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	numbers, err := s.app.Emitters.History(ctx, key, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: numbers, Total: len(numbers)})
}

func (s *Server) handleVoidNumbers(c *gin.Context) {
	key, ok := s.sequenceKey(c)
	if !ok {
		return
	}
	var req VoidRequest
	if !s.bind(c, &req) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.app.Emitters.Void(ctx, key, req.From, req.To, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleIssueDocument(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var req emitter.IssueRequest
	if !s.bind(c, &req) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	doc, err := s.app.Emitters.Issue(ctx, id, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	var f documents.ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		s.fail(c, validate.FromError(err))
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if _, err := s.app.Emitters.Get(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	page, err := s.app.Documents.List(ctx, id, f, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
