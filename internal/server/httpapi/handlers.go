package httpapi

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/services"
)

// Storage is the part of services.StorageService the HTTP API drives.
type Storage interface {
	Upload(ctx context.Context, req services.UploadRequest) (*services.FileSummary, error)
	Fetch(ctx context.Context, id string, mode services.FetchMode) (*services.FetchResult, error)
	List(ctx context.Context, token string) ([]services.FileSummary, error)
	Delete(ctx context.Context, token, id string) (int64, error)
	BulkDelete(ctx context.Context, token string, mode services.BulkMode, confirm bool) (int, error)
	UserInfo(ctx context.Context, token string, rotate bool) (*services.UserInfo, error)
	Enroll(ctx context.Context, userID string) (*services.Enrollment, error)
}

type handlers struct {
	storage Storage
	logger  logging.Logger
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader(common.AuthorizationHeaderName)
	if len(h) > len(common.BearerPrefix) && strings.EqualFold(h[:len(common.BearerPrefix)], common.BearerPrefix) {
		return strings.TrimSpace(h[len(common.BearerPrefix):])
	}
	return ""
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) enroll(c *gin.Context) {
	en, err := h.storage.Enroll(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	code := http.StatusOK
	if en.Created {
		code = http.StatusCreated
	}
	c.JSON(code, en)
}

type userQuery struct {
	Rotate   bool   `form:"rotate"`
	Function string `form:"function" binding:"omitempty,oneof=change_token"`
}

func (h *handlers) userInfo(c *gin.Context) {
	var q userQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", common.ErrBadRequest, err))
		return
	}

	info, err := h.storage.UserInfo(c.Request.Context(), bearerToken(c), q.Rotate || q.Function == "change_token")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// filePart advances mr to the "file" part. Parts before it are skipped.
func filePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		_ = part.Close()
	}
}

// upload streams the "file" part straight into the storage service, so the
// token and quota are checked before the file bytes are read.
func (h *handlers) upload(c *gin.Context) {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		h.fail(c, fmt.Errorf("%w: multipart body expected: %v", common.ErrBadRequest, err))
		return
	}

	part, err := filePart(mr)
	if err != nil {
		if statusFor(err) == http.StatusRequestEntityTooLarge {
			h.fail(c, fmt.Errorf("%w: %v", common.ErrFileTooLarge, err))
			return
		}
		h.fail(c, fmt.Errorf("%w: multipart field \"file\" is required", common.ErrBadRequest))
		return
	}
	defer part.Close()

	sum, err := h.storage.Upload(c.Request.Context(), services.UploadRequest{
		Token:       bearerToken(c),
		Body:        part,
		Size:        -1,
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sum)
}

type fetchQuery struct {
	Output string `form:"output" binding:"omitempty,oneof=file raw download html json"`
}

func (h *handlers) fetch(c *gin.Context) {
	var q fetchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", common.ErrBadRequest, err))
		return
	}

	mode := services.OutputRaw
	switch q.Output {
	case "html":
		mode = services.OutputPreview
	case "json":
		mode = services.OutputMetadata
	}

	res, err := h.storage.Fetch(c.Request.Context(), c.Param("id"), mode)
	if err != nil {
		h.fail(c, err)
		return
	}

	switch mode {
	case services.OutputPreview:
		c.Data(http.StatusOK, "text/html; charset=utf-8", res.HTML)
	case services.OutputMetadata:
		c.JSON(http.StatusOK, res.Summary)
	default:
		defer res.Body.Close()
		disposition := "inline"
		if q.Output == "download" {
			disposition = "attachment"
		}
		c.DataFromReader(http.StatusOK, res.File.Size, res.File.ContentType, res.Body, map[string]string{
			"Content-Disposition": mime.FormatMediaType(disposition, map[string]string{"filename": res.File.FileName}),
		})
	}
}

func (h *handlers) list(c *gin.Context) {
	files, err := h.storage.List(c.Request.Context(), bearerToken(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

func (h *handlers) deleteFile(c *gin.Context) {
	id := c.Param("id")
	freed, err := h.storage.Delete(c.Request.Context(), bearerToken(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "freed_bytes": freed})
}

type bulkQuery struct {
	Confirm  string `form:"confirm"`
	Function string `form:"function"`
}

func (h *handlers) deleteAll(c *gin.Context) {
	var q bulkQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", common.ErrBadRequest, err))
		return
	}
	if q.Function == "" {
		q.Function = string(services.BulkAll)
	}

	n, err := h.storage.BulkDelete(c.Request.Context(), bearerToken(c), services.BulkMode(q.Function), q.Confirm == "yes")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n, "function": q.Function})
}
