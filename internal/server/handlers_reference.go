package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/model"
)

func (s *Server) handleListTaxConfigs(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.TaxConfigs.List(ctx, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreateTaxConfig(c *gin.Context) {
	var tc model.TaxConfig
	if !s.bind(c, &tc) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.TaxConfigs.Create(ctx, &tc); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tc)
}

func (s *Server) handleGetTaxConfig(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	tc, err := s.app.TaxConfigs.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tc)
}

func (s *Server) handleUpdateTaxConfig(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var tc model.TaxConfig
	if !s.bind(c, &tc) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	updated, err := s.app.TaxConfigs.Update(ctx, id, &tc)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteTaxConfig(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.TaxConfigs.Delete(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCalculateTax(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var req CalculateRequest
	if !s.bind(c, &req) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	breakdown, err := s.app.TaxConfigs.Calculate(ctx, id, req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) handleListStates(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	states, err := s.app.Reference.States(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: states, Total: len(states)})
}

func (s *Server) handleGetState(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	state, err := s.app.Reference.State(ctx, c.Param("uf"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleListMunicipalities(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Reference.Municipalities(ctx, c.Param("uf"), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetMunicipality(c *gin.Context) {
	code, err := strconv.Atoi(c.Param("code"))
	if err != nil {
		s.fail(c, model.NewValidationError("code", c.Param("code"), "numeric", "must be a 7-digit IBGE code"))
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	m, err := s.app.Reference.Municipality(ctx, code)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleListCFOPs(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Reference.CFOPs(ctx, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetCFOP(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	cfop, err := s.app.Reference.CFOP(ctx, c.Param("code"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfop)
}

func (s *Server) handleListCSTs(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	csts, err := s.app.Reference.CSTs(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: csts, Total: len(csts)})
}

func (s *Server) handleListCSOSNs(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	codes, err := s.app.Reference.CSOSNs(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: codes, Total: len(codes)})
}

func (s *Server) handleListNCMs(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Reference.NCMs(ctx, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetNCM(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	ncm, err := s.app.Reference.NCM(ctx, c.Param("code"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ncm)
}

func (s *Server) handleListPaymentMethods(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	methods, err := s.app.Reference.PaymentMethods(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: methods, Total: len(methods)})
}

// handleSeed loads reference tables; it can take longer than a regular request
func (s *Server) handleSeed(c *gin.Context) {
	var req SeedRequest
	if c.Request.ContentLength != 0 && !s.bind(c, &req) {
		return
	}

	results, err := s.app.Seeder(req.Source, req.Force).Seed(c.Request.Context(), req.Tables...)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("reference data seeded", zap.Strings("tables", req.Tables), zap.Bool("force", req.Force))
	c.JSON(http.StatusOK, SeedResponse{Results: results})
}

func (s *Server) handleLookupCNPJ(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	company, err := s.app.Lookup.CNPJ(ctx, c.Param("cnpj"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

func (s *Server) handleLookupCEP(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	addr, err := s.app.Lookup.CEP(ctx, c.Param("cep"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, addr)
}

func (s *Server) handleClassifyNCM(c *gin.Context) {
	var req ClassifyRequest
	if !s.bind(c, &req) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	suggestions, err := s.app.Classifier.SuggestNCM(ctx, req.Description, req.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ClassifyResponse{Description: req.Description, Suggestions: suggestions})
}
