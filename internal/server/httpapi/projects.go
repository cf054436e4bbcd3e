package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createProjectRequest struct {
	Name      string `json:"name"`
	StorageMB int64  `json:"storageMb"`
}

func (h *handlers) createProject(c *gin.Context) {
	var req createProjectRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.Projects.Create(c.Request.Context(), req.Name, req.StorageMB)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) listProjects(c *gin.Context) {
	ps, err := h.Projects.List(c.Request.Context())
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, ps)
}

func (h *handlers) getProject(c *gin.Context) {
	p, err := h.Projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) verifyKey(c *gin.Context) {
	var req struct {
		ProjectID string `json:"projectId"`
		APIKey    string `json:"apiKey"`
	}
	if !bind(c, &req) {
		return
	}
	ok, err := h.Projects.VerifyKey(c.Request.Context(), req.ProjectID, req.APIKey)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isValid": ok})
}

func (h *handlers) listURLs(c *gin.Context) {
	urls, err := h.Projects.URLs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

type urlRequest struct {
	URL string `json:"url"`
}

func (h *handlers) addURL(c *gin.Context) {
	var req urlRequest
	if !bind(c, &req) {
		return
	}
	if req.URL == "" {
		respondMessage(c, http.StatusBadRequest, "url is required")
		return
	}
	urls, err := h.Projects.AddURL(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

func (h *handlers) removeURL(c *gin.Context) {
	var req urlRequest
	if !bind(c, &req) {
		return
	}
	urls, err := h.Projects.RemoveURL(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

func (h *handlers) regenerateKey(c *gin.Context) {
	key, err := h.Projects.RegenerateKey(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKey": key, "message": "Store this key safely. It won't be shown again."})
}

func (h *handlers) initAuth(c *gin.Context) {
	var req struct {
		ProjectID string `json:"projectId"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ProjectID == "" {
		respondMessage(c, http.StatusBadRequest, "projectId is required")
		return
	}
	report, err := h.Projects.InitSystemTables(c.Request.Context(), req.ProjectID)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	success(c, gin.H{"added": report.Added})
}

// bind decodes a JSON body. An empty body leaves v at its zero value.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		respondMessage(c, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
