package handler

import (
	"errors"
	"io"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/corrigeo/api/internal/middleware"
	"github.com/corrigeo/api/internal/model"
	"github.com/corrigeo/api/internal/queue"
	"github.com/corrigeo/api/internal/service"
	"github.com/corrigeo/api/internal/store"
	"github.com/corrigeo/api/pkg/response"
)

type CorrectionHandler struct {
	service   *service.CorrectionService
	validator *validator.Validate
}

func NewCorrectionHandler(svc *service.CorrectionService, v *validator.Validate) *CorrectionHandler {
	return &CorrectionHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/corrections
// @Summary      Create correction
// @Description  Register a new pending correction before uploading copies
// @Tags         Corrections
// @Accept       json
// @Produce      json
// @Param        request body model.CreateCorrectionRequest true "Correction metadata"
// @Success      201 {object} model.CreateCorrectionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/corrections [post]
func (h *CorrectionHandler) Create(c *fiber.Ctx) error {
	var req model.CreateCorrectionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Create(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSubmission) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Process handles POST /api/corrections/:id/process
// @Summary      Submit copies for correction
// @Description  Upload student copies and start the asynchronous correction pipeline
// @Tags         Corrections
// @Accept       multipart/form-data
// @Produce      json
// @Param        id              path     string true  "Correction ID"
// @Param        files           formData file   true  "Student copies (image or PDF; max 10 files, 10MB each)"
// @Param        reference       formData file   false "Reference answer (corrigé type)"
// @Param        gradingCriteria formData string false "Grading rubric"
// @Param        classLevel      formData string false "Class level"
// @Success      202 {object} model.ProcessResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/corrections/{id}/process [post]
func (h *CorrectionHandler) Process(c *fiber.Ctx) error {
	correctionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.ValidationError(c, "Invalid correction ID", nil)
	}

	req := model.ProcessRequest{
		GradingCriteria: c.FormValue("gradingCriteria"),
		ClassLevel:      c.FormValue("classLevel"),
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "No files uploaded", nil)
	}

	files, err := readFormFiles(form.File["files"])
	if err != nil {
		return response.ValidationError(c, "Failed to read uploaded files", nil)
	}

	var reference []byte
	if refs := form.File["reference"]; len(refs) > 0 {
		ref, err := readFormFiles(refs[:1])
		if err != nil {
			return response.ValidationError(c, "Failed to read reference file", nil)
		}
		reference = ref[0].Data
	}

	count, err := h.service.Submit(c.Context(), correctionID, middleware.GetUserID(c), files, reference, req.GradingCriteria, req.ClassLevel)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSubmission):
			return response.ValidationError(c, err.Error(), nil)
		case errors.Is(err, store.ErrNotFound):
			return response.NotFound(c, "Correction not found")
		case errors.Is(err, queue.ErrQueueUnavailable):
			return response.ServiceError(c, "Correction queue unavailable, submission not started")
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.Accepted(c, model.ProcessResponse{
		Message:    "Processing started",
		FilesCount: count,
	})
}

// Status handles GET /api/corrections/:id/status
// @Summary      Get correction status
// @Produce      json
// @Param        id path string true "Correction ID"
// @Success      200 {object} model.CorrectionStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/corrections/{id}/status [get]
func (h *CorrectionHandler) Status(c *fiber.Ctx) error {
	correctionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.ValidationError(c, "Invalid correction ID", nil)
	}

	result, err := h.service.GetStatus(c.Context(), correctionID, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Correction not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Documents handles GET /api/corrections/:id/documents
// @Summary      List correction documents
// @Description  List the generated document for each processed copy
// @Produce      json
// @Param        id path string true "Correction ID"
// @Success      200 {object} model.CorrectionDocumentsResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/corrections/{id}/documents [get]
func (h *CorrectionHandler) Documents(c *fiber.Ctx) error {
	correctionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.ValidationError(c, "Invalid correction ID", nil)
	}

	result, err := h.service.ListDocuments(c.Context(), correctionID, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Correction not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/corrections/:id/cancel
// @Summary      Cancel correction
// @Description  Mark a pending or processing correction as failed; in-flight jobs are dropped
// @Produce      json
// @Param        id path string true "Correction ID"
// @Success      200 {object} model.CancelResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/corrections/{id}/cancel [post]
func (h *CorrectionHandler) Cancel(c *fiber.Ctx) error {
	correctionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.ValidationError(c, "Invalid correction ID", nil)
	}

	result, err := h.service.Cancel(c.Context(), correctionID, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Correction not found")
		}
		return response.ValidationError(c, err.Error(), nil)
	}

	return response.OK(c, result)
}

func readFormFiles(headers []*multipart.FileHeader) ([]service.SubmittedFile, error) {
	files := make([]service.SubmittedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, service.SubmittedFile{Name: fh.Filename, Data: data})
	}
	return files, nil
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[e.Field()] = e.Tag()
		}
		return errs
	}
	return nil
}
