package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maepena22/receipt/internal/common"
)

// Config for the text-detection client.
type Config struct {
	APIKey   string
	BaseURL  string // default https://vision.googleapis.com
	Language string // single language hint, default "en"
	Timeout  time.Duration
}

// Client calls the remote images:annotate endpoint with a TEXT_DETECTION
// feature request. No retries: a failure is terminal for the file and the
// orchestrator decides what happens next.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://vision.googleapis.com"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image        annotateImage   `json:"image"`
	Features     []annotateFeat  `json:"features"`
	ImageContext annotateContext `json:"imageContext"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeat struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateContext struct {
	LanguageHints []string `json:"languageHints"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// DetectText sends one image and returns the full transcription from the
// first text annotation. Returns common.ErrNoTextDetected when the service
// finds no text region.
func (c *Client) DetectText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", common.NewAppError("OCR_EMPTY_IMAGE", "image bytes are empty", common.ErrValidation)
	}

	reqID := uuid.New().String()
	start := time.Now()

	body := annotateRequest{Requests: []annotateEntry{{
		Image:        annotateImage{Content: base64.StdEncoding.EncodeToString(image)},
		Features:     []annotateFeat{{Type: "TEXT_DETECTION", MaxResults: 1}},
		ImageContext: annotateContext{LanguageHints: []string{c.cfg.Language}},
	}}}

	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode annotate request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/images:annotate?key=" + c.cfg.APIKey

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build annotate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Info("vision.annotate.request",
		"req_id", reqID,
		"image_bytes", len(image),
		"language", c.cfg.Language,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("vision.annotate.send_error", "req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", common.NewAppError("OCR_TRANSPORT", "vision request failed", fmt.Errorf("%w: %w", common.ErrUpstream, err))
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warn("vision.annotate.body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 != 2 {
		c.logger.Error("vision.annotate.status_error",
			"req_id", reqID, "status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.NewAppError("OCR_STATUS",
			fmt.Sprintf("vision status %d", resp.StatusCode), common.ErrUpstream)
	}

	var ar annotateResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return "", common.NewAppError("OCR_DECODE", "decode annotate response", fmt.Errorf("%w: %w", common.ErrUpstream, err))
	}
	if len(ar.Responses) == 0 {
		return "", common.NewAppError("OCR_EMPTY_RESPONSE", "annotate response has no entries", common.ErrUpstream)
	}
	if e := ar.Responses[0].Error; e != nil {
		return "", common.NewAppError("OCR_REMOTE",
			fmt.Sprintf("vision error %d: %s", e.Code, e.Message), common.ErrUpstream)
	}
	anns := ar.Responses[0].TextAnnotations
	if len(anns) == 0 || strings.TrimSpace(anns[0].Description) == "" {
		c.logger.Warn("vision.annotate.no_text", "req_id", reqID)
		return "", common.ErrNoTextDetected
	}

	c.logger.Info("vision.annotate.ok",
		"req_id", reqID,
		"text_bytes", len(anns[0].Description),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return anns[0].Description, nil
}
