package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"phishguard/internal/models"
)

var (
	// ErrUnavailable wraps transport failures: the API could not be reached.
	ErrUnavailable = errors.New("inference API unavailable")
	ErrNoQRCode    = errors.New("no QR code detected")
)

// DefaultConfidence is used when the API omits a confidence.
const DefaultConfidence = 0.5

// API paths of the classification service.
const (
	pathLink  = "/scan/link"
	pathEmail = "/scan/email"
	pathDoc   = "/scan/doc"
	pathQR    = "/scan/qr/api/qr/scan"
)

// LinkResult is the verdict for a URL.
type LinkResult struct {
	Prediction  models.Prediction  `json:"prediction"`
	Confidence  float64            `json:"confidence"`
	ThreatLevel models.ThreatLevel `json:"threat_level"`
}

// Verdict is the result for an email or document.
type Verdict struct {
	Prediction    models.Prediction `json:"prediction"`
	Confidence    float64           `json:"confidence"`
	ExtractedText string            `json:"extracted_text,omitempty"`
}

// QRResult is the decoded content of a QR image and its verdict.
type QRResult struct {
	Content    string            `json:"text"`
	URL        string            `json:"url,omitempty"`
	Prediction models.Prediction `json:"prediction"`
	Confidence float64           `json:"confidence"`
}

type apiResponse struct {
	Prediction    string   `json:"prediction"`
	Confidence    *float64 `json:"confidence"`
	ThreatLevel   string   `json:"threat_level"`
	ExtractedText string   `json:"extracted_text"`
	QRContent     string   `json:"qr_content"`
	Error         string   `json:"error"`
}

type apiError struct {
	Detail string `json:"detail"`
}

// Client talks to the classification service.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// ScanLink classifies a URL.
func (c *Client) ScanLink(ctx context.Context, url string) (LinkResult, error) {
	resp, err := c.post(ctx, pathLink, c.http.R().SetBody(map[string]string{"url": url}))
	if err != nil {
		return LinkResult{}, err
	}
	r := LinkResult{
		Prediction: models.NormalizePrediction(resp.Prediction),
		Confidence: normalizeConfidence(resp.Confidence),
	}
	switch {
	case resp.ThreatLevel != "":
		r.ThreatLevel = models.NormalizeThreatLevel(resp.ThreatLevel)
	case r.Prediction == models.Legit:
		r.ThreatLevel = models.ThreatLow
	default:
		r.ThreatLevel = models.ThreatHigh
	}
	return r, nil
}

// ScanEmail classifies an email body with its sender domain.
func (c *Client) ScanEmail(ctx context.Context, text, senderDomain string) (Verdict, error) {
	body := map[string]string{"text_content": text, "sender_domain": senderDomain}
	resp, err := c.post(ctx, pathEmail, c.http.R().SetBody(body))
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{
		Prediction: models.NormalizePrediction(resp.Prediction),
		Confidence: normalizeConfidence(resp.Confidence),
	}, nil
}

// ScanDocument classifies a PDF or DOCX upload.
func (c *Client) ScanDocument(ctx context.Context, filename string, r io.Reader) (Verdict, error) {
	resp, err := c.post(ctx, pathDoc, c.http.R().SetFileReader("file", filename, r))
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{
		Prediction:    models.NormalizePrediction(resp.Prediction),
		Confidence:    normalizeConfidence(resp.Confidence),
		ExtractedText: strings.TrimSpace(resp.ExtractedText),
	}, nil
}

// ScanQR decodes and classifies a QR code image.
func (c *Client) ScanQR(ctx context.Context, filename string, r io.Reader) (QRResult, error) {
	resp, err := c.post(ctx, pathQR, c.http.R().SetFileReader("file", filename, r))
	if err != nil {
		return QRResult{}, err
	}
	if resp.Error != "" || resp.QRContent == "" {
		return QRResult{}, ErrNoQRCode
	}
	res := QRResult{
		Content:    resp.QRContent,
		Prediction: models.NormalizePrediction(resp.Prediction),
		Confidence: normalizeConfidence(resp.Confidence),
	}
	if looksLikeURL(resp.QRContent) {
		res.URL = resp.QRContent
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, path string, req *resty.Request) (*apiResponse, error) {
	var out apiResponse
	var apiErr apiError
	resp, err := req.SetContext(ctx).SetResult(&out).SetError(&apiErr).Post(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		if apiErr.Detail != "" {
			return nil, fmt.Errorf("inference API returned status %d: %s", resp.StatusCode(), apiErr.Detail)
		}
		return nil, fmt.Errorf("inference API returned status %d", resp.StatusCode())
	}
	return &out, nil
}

// normalizeConfidence keeps confidences on the 0..1 scale. Percent values
// are scaled down.
func normalizeConfidence(c *float64) float64 {
	if c == nil {
		return DefaultConfidence
	}
	v := *c
	if v > 1 && v <= 100 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func looksLikeURL(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
