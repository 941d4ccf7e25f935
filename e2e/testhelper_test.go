package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/corrigeo/api/internal/auth"
	"github.com/corrigeo/api/internal/client"
	"github.com/corrigeo/api/internal/config"
	"github.com/corrigeo/api/internal/docgen"
	"github.com/corrigeo/api/internal/handler"
	"github.com/corrigeo/api/internal/middleware"
	"github.com/corrigeo/api/internal/model"
	"github.com/corrigeo/api/internal/ocr"
	"github.com/corrigeo/api/internal/publish"
	"github.com/corrigeo/api/internal/queue"
	"github.com/corrigeo/api/internal/service"
	"github.com/corrigeo/api/internal/store"
	"github.com/corrigeo/api/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.MemoryStore
}

// stubOCRRunner replaces the tesseract binary so the suite runs anywhere.
type stubOCRRunner struct{}

func (stubOCRRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	if len(args) == 1 && args[0] == "--version" {
		return []byte("tesseract 5.3.0"), nil, nil
	}
	return []byte("Texte reconnu de la copie."), nil, nil
}

// syncEnqueuer runs each job inline instead of going through Redis, so a
// submission is fully processed by the time the process request returns.
type syncEnqueuer struct {
	worker *worker.CorrectionWorker
}

func (e *syncEnqueuer) Enqueue(ctx context.Context, job *model.CorrectionJob) error {
	task, err := queue.NewCorrectionTask(job)
	if err != nil {
		return err
	}
	// Outside a real asynq server every attempt is the last one.
	_ = e.worker.ProcessTask(context.Background(), task)
	return nil
}

// setupApp creates a Fiber app identical to main.go but with an in-memory
// store, a stubbed OCR engine and unconfigured external clients. This
// triggers mock/fallback responses through the whole pipeline.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	correctionStore := store.NewMemoryStore()
	validate := validator.New()

	extractor := ocr.NewExtractorWithRunner(config.OCRConfig{
		TesseractPath: "tesseract",
		Language:      "fra",
		Timeout:       5 * time.Second,
	}, stubOCRRunner{})
	grader := client.NewMistralClient(&config.MistralConfig{}) // no API key → mock
	renderer := docgen.NewDocxRenderer()
	publisher := publish.NewPublisher(nil, correctionStore) // nil storage → mock URLs

	correctionWorker := worker.NewCorrectionWorker(correctionStore, extractor, grader, renderer, publisher, nil, time.Minute)

	correctionService := service.NewCorrectionService(correctionStore, &syncEnqueuer{worker: correctionWorker}, config.UploadConfig{
		MaxFileSize: 10 * 1024 * 1024,
		MaxFiles:    10,
	})
	correctionHandler := handler.NewCorrectionHandler(correctionService, validate)

	// Auth handler (for /auth/verify)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Auth middleware — legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"database": true,
				"redis":    false,
				"mistral":  false,
				"storage":  false,
				"auth":     true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// API routes (authenticated, no rate limiting so tests don't need Redis)
	api := app.Group("/api", authMiddleware.Authenticate())

	corrections := api.Group("/corrections")
	corrections.Post("/", correctionHandler.Create)
	corrections.Post("/:id/process", correctionHandler.Process)
	corrections.Get("/:id/status", correctionHandler.Status)
	corrections.Get("/:id/documents", correctionHandler.Documents)
	corrections.Post("/:id/cancel", correctionHandler.Cancel)

	return &testApp{app: app, store: correctionStore}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "corrigeo-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doMultipartRequest performs an authenticated multipart upload. files maps
// each uploaded copy name to its content; fields carries plain form values.
func doMultipartRequest(t *testing.T, app *fiber.App, path string, files map[string][]byte, fields map[string]string) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t))

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
