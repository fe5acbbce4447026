package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/filestore"
	"aurelienallenic/api/models"
	"aurelienallenic/api/store"
)

const maxCVFileSize = 10 << 20

var cvFields = []string{"imageWebpFr", "imageWebpEn", "pdfFr", "pdfEn"}

var allowedCVTypes = map[string]string{
	"image/webp":      "webp",
	"application/pdf": "pdf",
}

type CVHandlers struct {
	CVs    store.CVRepository
	Files  filestore.FileStore
	Prefix string
	Log    *logrus.Logger
	now    func() time.Time
}

// NewCVHandlers builds the CV handlers. files may be nil when object storage
// is not configured; uploads then answer 503.
func NewCVHandlers(cvs store.CVRepository, files filestore.FileStore, prefix string, log *logrus.Logger) *CVHandlers {
	return &CVHandlers{CVs: cvs, Files: files, Prefix: prefix, Log: log, now: time.Now}
}

type cvUpload struct {
	field       string
	body        []byte
	contentType string
	ext         string
}

func (h *CVHandlers) Get(c *gin.Context) {
	cv, err := h.CVs.GetCV(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"data": nil})
			return
		}
		h.Log.WithError(err).Error("GetCV: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Erreur serveur"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cv})
}

// Put uploads the given files and keeps the previous URL of every field
// that was not sent.
func (h *CVHandlers) Put(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(len(cvFields))*maxCVFileSize+(1<<20))

	uploads, err := h.readUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if len(uploads) > 0 && h.Files == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "File storage is not configured"})
		return
	}

	ctx := c.Request.Context()
	var previous models.Cv
	existing, err := h.CVs.GetCV(ctx)
	switch {
	case err == nil:
		previous = *existing
	case errors.Is(err, store.ErrNotFound):
	default:
		h.Log.WithError(err).Error("PutCV: failed to load current CV")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Erreur serveur"})
		return
	}

	cv := previous
	var replaced []string
	ts := h.now().UnixMilli()
	for _, u := range uploads {
		key := path.Join(h.Prefix, fmt.Sprintf("cv-%s-%d.%s", u.field, ts, u.ext))
		url, err := h.Files.Put(ctx, key, u.body, u.contentType)
		if err != nil {
			h.Log.WithError(err).WithField("field", u.field).Error("PutCV: upload failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Erreur serveur"})
			return
		}
		if old := setCVField(&cv, u.field, url); old != "" && old != url {
			replaced = append(replaced, old)
		}
	}

	if err := h.CVs.UpsertCV(ctx, &cv); err != nil {
		h.Log.WithError(err).Error("PutCV: upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Erreur serveur"})
		return
	}
	h.removeFiles(ctx, replaced)

	c.JSON(http.StatusOK, gin.H{"message": "CV enregistré.", "data": cv})
}

func (h *CVHandlers) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	cv, err := h.CVs.GetCV(ctx)
	if err == nil {
		err = h.CVs.DeleteCV(ctx)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Aucun CV trouvé."})
			return
		}
		h.Log.WithError(err).Error("DeleteCV: failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Erreur serveur"})
		return
	}
	h.removeFiles(ctx, []string{cv.ImageWebpFr, cv.ImageWebpEn, cv.PdfFr, cv.PdfEn})

	c.JSON(http.StatusOK, gin.H{"message": "CV supprimé."})
}

func (h *CVHandlers) readUploads(c *gin.Context) ([]cvUpload, error) {
	if c.ContentType() != "multipart/form-data" {
		return nil, nil
	}
	var uploads []cvUpload
	for _, field := range cvFields {
		header, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("invalid upload: %w", err)
		}
		u, err := readCVFile(field, header)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

// readCVFile enforces the size limit and sniffs the content. The client
// supplied content type is ignored.
func readCVFile(field string, header *multipart.FileHeader) (cvUpload, error) {
	if header.Size > maxCVFileSize {
		return cvUpload{}, fmt.Errorf("%s exceeds the 10 MB limit", field)
	}
	f, err := header.Open()
	if err != nil {
		return cvUpload{}, fmt.Errorf("invalid upload %s: %w", field, err)
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, maxCVFileSize+1))
	if err != nil {
		return cvUpload{}, fmt.Errorf("invalid upload %s: %w", field, err)
	}
	if len(body) > maxCVFileSize {
		return cvUpload{}, fmt.Errorf("%s exceeds the 10 MB limit", field)
	}

	kind, err := filetype.Match(body)
	if err != nil {
		return cvUpload{}, fmt.Errorf("invalid upload %s: %w", field, err)
	}
	ext, ok := allowedCVTypes[kind.MIME.Value]
	if !ok {
		return cvUpload{}, fmt.Errorf("%s: only WebP and PDF files are allowed", field)
	}
	return cvUpload{field: field, body: body, contentType: kind.MIME.Value, ext: ext}, nil
}

// setCVField stores url in the named field and returns the value it replaced.
func setCVField(cv *models.Cv, field, url string) string {
	var dst *string
	switch field {
	case "imageWebpFr":
		dst = &cv.ImageWebpFr
	case "imageWebpEn":
		dst = &cv.ImageWebpEn
	case "pdfFr":
		dst = &cv.PdfFr
	case "pdfEn":
		dst = &cv.PdfEn
	default:
		return ""
	}
	old := *dst
	*dst = url
	return old
}

func (h *CVHandlers) removeFiles(ctx context.Context, urls []string) {
	if h.Files == nil {
		return
	}
	for _, url := range urls {
		if url == "" {
			continue
		}
		if err := h.Files.Delete(ctx, url); err != nil {
			h.Log.WithError(err).WithField("url", url).Warn("failed to remove stored CV file")
		}
	}
}
