package ocr

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corrigeo/api/internal/config"
)

// ErrExtractionFailed marks a job-level OCR failure: the input was malformed
// or the engine rejected it. It is never a queue-level failure.
var ErrExtractionFailed = errors.New("text extraction failed")

// Extractor turns a raw student copy (image or PDF bytes) into plain text by
// shelling out to the tesseract engine. The engine's language data is checked
// at most once per process; concurrent first calls share the same probe.
type Extractor struct {
	runner  Runner
	binary  string
	lang    string
	dataDir string
	timeout time.Duration

	warmupOnce sync.Once
	warmupErr  error
}

func NewExtractor(cfg config.OCRConfig) *Extractor {
	return &Extractor{
		runner:  execRunner{},
		binary:  cfg.TesseractPath,
		lang:    cfg.Language,
		dataDir: cfg.TessdataDir,
		timeout: cfg.Timeout,
	}
}

// NewExtractorWithRunner is used by tests to stub the engine invocation.
func NewExtractorWithRunner(cfg config.OCRConfig, r Runner) *Extractor {
	e := NewExtractor(cfg)
	e.runner = r
	return e
}

// warmup probes the engine once so a missing binary or language pack is
// reported on first use instead of failing every job with a confusing error.
func (e *Extractor) warmup(ctx context.Context) error {
	e.warmupOnce.Do(func() {
		_, stderr, err := e.runner.Run(ctx, e.binary, "--version")
		if err != nil {
			e.warmupErr = fmt.Errorf("tesseract unavailable: %v (%s)", err, strings.TrimSpace(string(stderr)))
			return
		}
		log.Printf("OCR engine ready (%s, lang=%s)", e.binary, e.lang)
	})
	return e.warmupErr
}

// Extract runs OCR on the given file bytes and returns the recognized text.
func (e *Extractor) Extract(ctx context.Context, fileBytes []byte) (string, error) {
	if len(fileBytes) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrExtractionFailed)
	}

	if err := e.warmup(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	tmp, err := os.CreateTemp("", "copy-"+uuid.New().String()+"-*")
	if err != nil {
		return "", fmt.Errorf("%w: temp file: %v", ErrExtractionFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(fileBytes); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write temp file: %v", ErrExtractionFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close temp file: %v", ErrExtractionFailed, err)
	}

	args := []string{tmp.Name(), "stdout", "-l", e.lang}
	if e.dataDir != "" {
		args = append(args, "--tessdata-dir", e.dataDir)
	}

	stdout, stderr, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %v (%s)", ErrExtractionFailed, err, strings.TrimSpace(string(stderr)))
	}

	text := strings.TrimSpace(string(stdout))
	if text == "" {
		return "", fmt.Errorf("%w: engine produced no text", ErrExtractionFailed)
	}
	return text, nil
}
