// Package assistant provides the typed client the session orchestrators use
// to reach the backend through a tlahtollid gateway.
//
// Every call posts a multipart form to POST {proxy}/proxy?endpoint={name}
// and decodes the endpoint-specific response shape. The client performs no
// retries: a failed call is terminal for the pipeline invocation that
// issued it.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Endpoint names understood by the gateway.
const (
	EndpointTranscribe = "transcribe"
	EndpointChat       = "chat-response"
	EndpointTTS        = "tts"
	EndpointOCR        = "ocr"
	EndpointUploadPDF  = "upload-pdf"
	EndpointQuery      = "query"
)

// Client talks to the assistant backend through the gateway.
type Client struct {
	proxyURL string
	client   *http.Client
}

// New creates a client for the gateway at proxyURL (e.g. "http://localhost:3000").
func New(proxyURL string) *Client {
	return &Client{
		proxyURL: strings.TrimRight(proxyURL, "/"),
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Transcribe converts recorded audio to text. contentType is the true
// container of the capture (e.g. "audio/wav"); the upload filename extension
// is derived from it rather than assumed.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	form := newForm()
	if err := form.file("file", "recording"+extFromContentType(contentType), audio); err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := c.postJSON(ctx, EndpointTranscribe, form, &result); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return result.Text, nil
}

// Reply sends user text to the chat endpoint and returns the assistant reply.
func (c *Client) Reply(ctx context.Context, text string) (string, error) {
	form := newForm()
	form.field("text", text)

	var result struct {
		Reply string `json:"reply"`
	}
	if err := c.postJSON(ctx, EndpointChat, form, &result); err != nil {
		return "", fmt.Errorf("chat response: %w", err)
	}
	return result.Reply, nil
}

// Synthesize converts text to audio. The returned bytes may be empty when
// the backend produced no audio; callers tolerate that.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	form := newForm()
	form.field("text", text)

	resp, err := c.post(ctx, EndpointTTS, form)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: reading audio: %w", err)
	}
	return audio, nil
}

// ExtractText runs OCR over an image.
func (c *Client) ExtractText(ctx context.Context, image []byte) (string, error) {
	form := newForm()
	if err := form.file("file", "image.jpg", image); err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := c.postJSON(ctx, EndpointOCR, form, &result); err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return result.Text, nil
}

// UploadPDF registers a document under the given session token and returns
// the backend acknowledgment message. A success response that is not JSON is
// a protocol error.
func (c *Client) UploadPDF(ctx context.Context, pdf []byte, filename, sessionID string) (string, error) {
	form := newForm()
	if err := form.file("file", filename, pdf); err != nil {
		return "", err
	}
	form.field("session_id", sessionID)

	resp, err := c.post(ctx, EndpointUploadPDF, form)
	if err != nil {
		return "", fmt.Errorf("upload pdf: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("upload pdf: %w", err)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 100))
		return "", fmt.Errorf("upload pdf: expected JSON response, got: %s", body)
	}

	var result struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("upload pdf: decoding response: %w", err)
	}
	return result.Message, nil
}

// Query asks a question about the uploaded document. chatHistory carries the
// prior exchanges serialized as alternating turns so the backend can stay
// stateless per-request.
func (c *Client) Query(ctx context.Context, userMessage, chatHistory string) (string, error) {
	form := newForm()
	form.field("user_message", userMessage)
	form.field("chat_history", chatHistory)

	var result struct {
		Answer string `json:"answer"`
	}
	if err := c.postJSON(ctx, EndpointQuery, form, &result); err != nil {
		return "", fmt.Errorf("query: %w", err)
	}
	return result.Answer, nil
}

// --- transport helpers ---

func (c *Client) post(ctx context.Context, endpoint string, form *form) (*http.Response, error) {
	form.close()

	reqURL := c.proxyURL + "/proxy?endpoint=" + url.QueryEscape(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &form.buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", form.contentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, form *form, out any) error {
	resp, err := c.post(ctx, endpoint, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("status %d: %s", resp.StatusCode, body)
}

// form accumulates a multipart body.
type form struct {
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newForm() *form {
	f := &form{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) {
	_ = f.writer.WriteField(name, value)
}

func (f *form) file(name, filename string, data []byte) error {
	part, err := f.writer.CreateFormFile(name, filename)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing form file: %w", err)
	}
	return nil
}

func (f *form) close()              { _ = f.writer.Close() }
func (f *form) contentType() string { return f.writer.FormDataContentType() }

func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	default:
		return ".wav"
	}
}
