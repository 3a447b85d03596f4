package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/fiscal-manager/internal/model"
)

func (s *Server) handleListClients(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Catalog.ListClients(ctx, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreateClient(c *gin.Context) {
	var cl model.Client
	if !s.bind(c, &cl) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Catalog.CreateClient(ctx, &cl); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cl)
}

func (s *Server) handleGetClient(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	cl, err := s.app.Catalog.GetClient(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (s *Server) handleUpdateClient(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var cl model.Client
	if !s.bind(c, &cl) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	updated, err := s.app.Catalog.UpdateClient(ctx, id, &cl)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteClient(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Catalog.DeleteClient(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListSuppliers(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Catalog.ListSuppliers(ctx, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreateSupplier(c *gin.Context) {
	var sp model.Supplier
	if !s.bind(c, &sp) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Catalog.CreateSupplier(ctx, &sp); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sp)
}

func (s *Server) handleGetSupplier(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	sp, err := s.app.Catalog.GetSupplier(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sp)
}

func (s *Server) handleUpdateSupplier(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var sp model.Supplier
	if !s.bind(c, &sp) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	updated, err := s.app.Catalog.UpdateSupplier(ctx, id, &sp)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteSupplier(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Catalog.DeleteSupplier(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListProducts(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Catalog.ListProducts(ctx, c.Query("ncm"), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreateProduct(c *gin.Context) {
	var p model.Product
	if !s.bind(c, &p) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Catalog.CreateProduct(ctx, &p); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleGetProduct(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.app.Catalog.GetProduct(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleUpdateProduct(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var p model.Product
	if !s.bind(c, &p) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	updated, err := s.app.Catalog.UpdateProduct(ctx, id, &p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteProduct(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Catalog.DeleteProduct(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
