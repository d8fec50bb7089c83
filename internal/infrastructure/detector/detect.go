package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/core/ports"
)

// Detect submits the file via POST /detect. Calibration fields the caller
// supplied are serialized as query parameters; absent fields are omitted.
// Progress is reported as request bytes go out; on a retried attempt the
// transfer (and its progress) restarts from zero.
func (c *Client) Detect(ctx context.Context, in ports.DetectInput) (*domain.DetectionResponse, error) {
	payload, contentType, err := encodeMultipart(in.Filename, in.MimeType, in.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "detect", err)
	}

	detectURL := c.baseURL + "/detect" + calibrationQuery(in.Calibration)

	var out domain.DetectionResponse
	err = c.executor.Execute(ctx, "detect", func(ctx context.Context) error {
		return c.doDetect(ctx, detectURL, contentType, payload, in.OnProgress, &out)
	}, classifyBackendError)
	if err != nil {
		return nil, c.finalize(ctx, "detect", err)
	}
	return &out, nil
}

func (c *Client) doDetect(
	ctx context.Context,
	detectURL, contentType string,
	payload []byte,
	onProgress func(domain.UploadProgress),
	out *domain.DetectionResponse,
) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	reporter := newProgressReader(attemptCtx, bytes.NewReader(payload), int64(len(payload)), onProgress)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, detectURL, reporter)
	if err != nil {
		return fmt.Errorf("create detect request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(payload))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError("detect", resp)
	}

	// The transfer is complete and the backend answered: the final progress
	// call must report 100 before the result is delivered.
	reporter.finish()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode detect response: %w", err)
	}
	return nil
}

func encodeMultipart(filename, mimeType string, body io.Reader) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filename),
	}
	if mimeType != "" {
		header["Content-Type"] = []string{mimeType}
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, "", fmt.Errorf("copy upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func calibrationQuery(patch *domain.CalibrationPatch) string {
	if patch == nil {
		return ""
	}
	q := url.Values{}
	if patch.FlipOutputInterpretation != nil {
		q.Set("flip_output_interpretation", strconv.FormatBool(*patch.FlipOutputInterpretation))
	}
	if patch.Threshold != nil {
		q.Set("threshold", strconv.FormatFloat(*patch.Threshold, 'f', -1, 64))
	}
	if patch.UncertaintyRange != nil {
		q.Set("uncertainty_range", strconv.FormatFloat(*patch.UncertaintyRange, 'f', -1, 64))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// progressReader counts transmitted bytes and emits floor-percentage progress
// events, monotonic non-decreasing within one attempt. Once the attempt's
// context is done no further events fire.
type progressReader struct {
	ctx        context.Context
	r          io.Reader
	total      int64
	loaded     int64
	lastPct    int
	started    bool
	onProgress func(domain.UploadProgress)
}

func newProgressReader(ctx context.Context, r io.Reader, total int64, onProgress func(domain.UploadProgress)) *progressReader {
	return &progressReader{
		ctx:        ctx,
		r:          r,
		total:      total,
		lastPct:    -1,
		onProgress: onProgress,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.emit()
	}
	return n, err
}

func (p *progressReader) finish() {
	p.loaded = p.total
	p.emit()
}

func (p *progressReader) emit() {
	if p.onProgress == nil || p.ctx.Err() != nil {
		return
	}
	pct := 100
	if p.total > 0 {
		pct = int(p.loaded * 100 / p.total)
	}
	if pct > 100 {
		pct = 100
	}
	if p.started && pct <= p.lastPct {
		return
	}
	p.started = true
	p.lastPct = pct
	p.onProgress(domain.UploadProgress{
		Loaded:     p.loaded,
		Total:      p.total,
		Percentage: pct,
	})
}
