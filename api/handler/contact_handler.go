package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"agencecom/internal/service"

	"github.com/labstack/echo/v4"
)

const maxAttachmentBytes = 5 << 20

type ContactHandler struct {
	Service *service.ContactService
}

func NewContactHandler(svc *service.ContactService) *ContactHandler {
	return &ContactHandler{Service: svc}
}

// Submit handles the multipart contact form. A repeated X-Idempotency-Key
// within the dedup window answers ok without re-sending anything.
func (h *ContactHandler) Submit(c echo.Context) error {
	input := service.ContactInput{
		Name:           c.FormValue("name"),
		Email:          c.FormValue("email"),
		Body:           c.FormValue("message"),
		IdempotencyKey: c.Request().Header.Get("X-Idempotency-Key"),
	}

	fileHeader, err := c.FormFile("attachment")
	if err == nil && fileHeader != nil {
		attachment, err := readAttachment(fileHeader)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		}
		input.Attachment = attachment
	}

	duplicate, err := h.Service.Submit(c.Request().Context(), input)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		}
		return c.JSON(http.StatusBadGateway, map[string]any{"ok": false, "message": "message could not be sent"})
	}
	if duplicate {
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "dedup": true})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "message": "message sent"})
}

func readAttachment(fileHeader *multipart.FileHeader) (*service.Attachment, error) {
	if fileHeader.Size > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds 5 MB")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("attachment could not be read")
	}
	defer file.Close()

	// One byte past the limit catches files whose declared size lied.
	content, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("attachment could not be read")
	}
	if len(content) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds 5 MB")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	return &service.Attachment{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Content:     content,
	}, nil
}
