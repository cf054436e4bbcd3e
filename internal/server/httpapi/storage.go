package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/and161185/zerobase/internal/storage"
)

func (h *handlers) storageInfo(c *gin.Context) {
	info, err := h.Storage.Info(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handlers) setQuota(c *gin.Context) {
	var req struct {
		NewQuotaMB int64 `json:"newQuotaMb"`
	}
	if !bind(c, &req) {
		return
	}
	info, err := h.Storage.SetQuota(c.Request.Context(), projectID(c), req.NewQuotaMB)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "storage quota updated", map[string]any{"quota_mb": req.NewQuotaMB})
	success(c, gin.H{"quotaMb": info.QuotaMB, "usedMb": info.UsedMB, "availableDiskMb": info.AvailableDiskMB})
}

func (h *handlers) upload(c *gin.Context) {
	if h.opts.MaxUploadMB > 0 {
		// one extra MiB leaves room for the multipart envelope
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, (h.opts.MaxUploadMB+1)*storage.MiB)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondMessage(c, http.StatusBadRequest, fmt.Sprintf("file exceeds the %d MB limit", h.opts.MaxUploadMB))
			return
		}
		respondMessage(c, http.StatusBadRequest, "no file uploaded")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	defer f.Close()

	info, err := h.Storage.Upload(c.Request.Context(), projectID(c), fh.Filename, f)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "file uploaded", map[string]any{"file": info.Name, "bytes": info.SizeBytes})
	success(c, gin.H{"file": gin.H{
		"name":         info.Name,
		"originalName": fh.Filename,
		"size":         info.SizeBytes,
		"mimetype":     info.MimeType,
	}})
}

func (h *handlers) listFiles(c *gin.Context) {
	files, err := h.Storage.Files(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *handlers) download(c *gin.Context) {
	f, info, err := h.Storage.Open(c.Request.Context(), projectID(c), c.Param("filename"))
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	defer f.Close()

	if info.MimeType != "" {
		c.Header("Content-Type", info.MimeType)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name))
	http.ServeContent(c.Writer, c.Request, info.Name, info.ModifiedAt, f)
}

func (h *handlers) deleteFile(c *gin.Context) {
	name := c.Param("filename")
	if err := h.Storage.Delete(c.Request.Context(), projectID(c), name); err != nil {
		respondError(c, err, h.Log)
		return
	}
	note(c, "file deleted", map[string]any{"file": name})
	success(c, nil)
}
