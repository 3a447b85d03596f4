package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/fiscal-manager/internal/documents"
)

func (s *Server) handleGetDocument(c *gin.Context) {
	id, ok := s.uuidParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	doc, err := s.app.Documents.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleGetDocumentByKey(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	doc, err := s.app.Documents.GetByAccessKey(ctx, c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleUpdateDocumentStatus(c *gin.Context) {
	id, ok := s.uuidParam(c, "id")
	if !ok {
		return
	}
	var req documents.StatusUpdate
	if !s.bind(c, &req) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	doc, err := s.app.Documents.UpdateStatus(ctx, id, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleAttachPDF(c *gin.Context) {
	id, ok := s.uuidParam(c, "id")
	if !ok {
		return
	}
	data, ok := s.body(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	info, err := s.app.Documents.AttachPDF(ctx, id, data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleDownloadPDF(c *gin.Context) {
	id, ok := s.uuidParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	data, err := s.app.Documents.PDF(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	attachment(c, fmt.Sprintf("%s.pdf", id), "application/pdf", data)
}

func (s *Server) handleAttachXML(c *gin.Context) {
	id, ok := s.uuidParam(c, "id")
	if !ok {
		return
	}
	data, ok := s.body(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	in, err := s.app.Documents.AttachXML(ctx, id, data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

func (s *Server) handleDownloadXML(c *gin.Context) {
	id, ok := s.uuidParam(c, "id")
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	xml, err := s.app.Documents.XML(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	attachment(c, fmt.Sprintf("%s.xml", id), "application/xml", []byte(xml))
}

func (s *Server) handleInspectXML(c *gin.Context) {
	data, ok := s.body(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	in, err := s.app.Documents.InspectXML(ctx, data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

func (s *Server) handleVerifySignature(c *gin.Context) {
	data, ok := s.body(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.app.Verifier.Verify(ctx, data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
