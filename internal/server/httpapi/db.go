package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/and161185/zerobase/internal/errs"
)

func (h *handlers) listTables(c *gin.Context) {
	tables, err := h.Schema.Tables(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (h *handlers) createTable(c *gin.Context) {
	var req struct {
		TableName string `json:"tableName"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.Schema.CreateTable(c.Request.Context(), projectID(c), req.TableName); err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "table created", map[string]any{"table": req.TableName})
	success(c, nil)
}

func (h *handlers) dropTable(c *gin.Context) {
	table := c.Param("tableName")
	if err := h.Schema.DropTable(c.Request.Context(), projectID(c), table); err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "table dropped", map[string]any{"table": table})
	success(c, nil)
}

func (h *handlers) addColumn(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if !bind(c, &req) {
		return
	}
	if req.Name == "" || req.Type == "" {
		respondMessage(c, http.StatusBadRequest, "missing name or type")
		return
	}
	table := c.Param("tableName")
	if err := h.Schema.AddColumn(c.Request.Context(), projectID(c), table, req.Name, req.Type); err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "column added", map[string]any{"table": table, "column": req.Name, "type": req.Type})
	success(c, nil)
}

func (h *handlers) listDocuments(c *gin.Context) {
	docs, err := h.Documents.List(c.Request.Context(), projectID(c), c.Param("tableName"))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *handlers) insertDocument(c *gin.Context) {
	doc, err := decodeDocument(c)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	table := c.Param("tableName")
	row, err := h.Documents.Insert(c.Request.Context(), projectID(c), table, doc)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "document inserted", map[string]any{"table": table})
	c.JSON(http.StatusOK, row)
}

func (h *handlers) updateAuthUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid user id")
		return
	}
	doc, err := decodeDocument(c)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	row, err := h.Documents.UpdateAuthUser(c.Request.Context(), projectID(c), userID, doc)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "user updated", map[string]any{"user_id": userID})
	c.JSON(http.StatusOK, row)
}

// decodeDocument reads {"document": {...}}. Integral JSON numbers become int64
// and the rest float64, so they bind to integer and numeric columns alike.
func decodeDocument(c *gin.Context) (map[string]any, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	var body struct {
		Document map[string]any `json:"document"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON body: %v", errs.ErrValidation, err)
		}
	}
	doc := make(map[string]any, len(body.Document))
	for k, v := range body.Document {
		doc[k] = normalizeNumber(v)
	}
	return doc, nil
}

func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func (h *handlers) listIndexes(c *gin.Context) {
	idx, err := h.Schema.Indexes(c.Request.Context(), projectID(c), c.Param("tableName"))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"indexes": idx})
}

func (h *handlers) createIndex(c *gin.Context) {
	var req struct {
		Columns []string `json:"columns"`
		Unique  bool     `json:"unique"`
		Method  string   `json:"method"`
	}
	if !bind(c, &req) {
		return
	}
	table := c.Param("tableName")
	name, err := h.Schema.CreateIndex(c.Request.Context(), projectID(c), table, req.Columns, req.Method, req.Unique)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "index created", map[string]any{"table": table, "index": name})
	success(c, gin.H{"indexName": name})
}

func (h *handlers) dropIndex(c *gin.Context) {
	table, index := c.Param("tableName"), c.Param("indexName")
	if err := h.Schema.DropIndex(c.Request.Context(), projectID(c), table, index); err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "index dropped", map[string]any{"table": table, "index": index})
	success(c, nil)
}

func (h *handlers) listExtensions(c *gin.Context) {
	ext, err := h.Schema.Extensions(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"extensions": ext})
}

type extensionRequest struct {
	Name string `json:"name"`
}

func (h *handlers) enableExtension(c *gin.Context) {
	var req extensionRequest
	if !bind(c, &req) {
		return
	}
	if err := h.Schema.EnableExtension(c.Request.Context(), projectID(c), req.Name); err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "extension enabled", map[string]any{"extension": req.Name})
	success(c, nil)
}

func (h *handlers) disableExtension(c *gin.Context) {
	var req extensionRequest
	if !bind(c, &req) {
		return
	}
	if err := h.Schema.DisableExtension(c.Request.Context(), projectID(c), req.Name); err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "extension disabled", map[string]any{"extension": req.Name})
	success(c, nil)
}
