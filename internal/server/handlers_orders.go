package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/fiscal-manager/internal/model"
)

func (s *Server) handleListOrders(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	clientID, ok := s.uintQuery(c, "client_id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Orders.ListOrders(ctx, clientID, model.OrderStatus(c.Query("status")), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var o model.Order
	if !s.bind(c, &o) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Orders.CreateOrder(ctx, &o); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	o, err := s.app.Orders.GetOrder(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleUpdateOrder(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var o model.Order
	if !s.bind(c, &o) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	updated, err := s.app.Orders.UpdateOrder(ctx, id, &o)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleSetOrderStatus(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var req OrderStatusRequest
	if !s.bind(c, &req) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	o, err := s.app.Orders.SetOrderStatus(ctx, id, req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleDeleteOrder(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Orders.DeleteOrder(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListQuotes(c *gin.Context) {
	q, ok := s.listQuery(c)
	if !ok {
		return
	}
	clientID, ok := s.uintQuery(c, "client_id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	page, err := s.app.Orders.ListQuotes(ctx, clientID, model.QuoteStatus(c.Query("status")), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreateQuote(c *gin.Context) {
	var q model.Quote
	if !s.bind(c, &q) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Orders.CreateQuote(ctx, &q); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (s *Server) handleGetQuote(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	q, err := s.app.Orders.GetQuote(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handleUpdateQuote(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	var q model.Quote
	if !s.bind(c, &q) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	updated, err := s.app.Orders.UpdateQuote(ctx, id, &q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteQuote(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.app.Orders.DeleteQuote(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleConvertQuote(c *gin.Context) {
	id, ok := s.uintParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	o, err := s.app.Orders.ConvertToOrder(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}
