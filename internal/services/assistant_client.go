package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"reader-gateway/internal/models"
)

// AssistantClientInterface defines the interface for assistant backend communication
type AssistantClientInterface interface {
	StreamChat(ctx context.Context, req *ChatRequest) (TokenStream, error)
	GenerateRoadmap(ctx context.Context, text string) ([]models.RoadmapNode, error)
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	ShareDocument(ctx context.Context, filename string, fileData []byte) (string, error)
	HealthCheck(ctx context.Context) (bool, error)
}

// AssistantClient handles communication with the assistant backend endpoints
// (chat streaming, roadmap generation, text-to-speech, document sharing).
type AssistantClient struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout. A chat stream legitimately runs
	// much longer than any unary call; its lifetime is bounded by the
	// request context instead.
	streamClient *http.Client
	logger       *log.Logger
}

// NewAssistantClient creates a new assistant client with default settings
func NewAssistantClient(baseURL string, logger *log.Logger) *AssistantClient {
	return NewAssistantClientWithOptions(baseURL, 60*time.Second, logger)
}

// NewAssistantClientWithOptions creates a client with a custom unary timeout
func NewAssistantClientWithOptions(baseURL string, timeout time.Duration, logger *log.Logger) *AssistantClient {
	if logger == nil {
		logger = log.Default()
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &AssistantClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
		logger: logger,
	}
}

// ============================================================================
// Request/Response Models
// ============================================================================

// ChatTurn is one prior exchange entry sent back to the backend as history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the body of the streaming chat endpoint. The file
// fields carry base64-encoded payloads bucketed by attachment kind.
type ChatRequest struct {
	MainQuery        string     `json:"main_query"`
	PDFFiles         []string   `json:"pdf_files,omitempty"`
	Images           []string   `json:"images,omitempty"`
	AudioFiles       []string   `json:"audio_files,omitempty"`
	PreviousMessages []ChatTurn `json:"previous_messages,omitempty"`
}

// NewChatRequest builds a chat request from a composed query, the message's
// attachments and the history window. Attachments are sorted into the three
// wire buckets by their classified kind and base64-encoded.
func NewChatRequest(mainQuery string, attachments []models.Attachment, history []ChatTurn) *ChatRequest {
	req := &ChatRequest{
		MainQuery:        mainQuery,
		PreviousMessages: history,
	}
	for _, att := range attachments {
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		switch att.Kind {
		case models.AttachmentDocument:
			req.PDFFiles = append(req.PDFFiles, encoded)
		case models.AttachmentImage:
			req.Images = append(req.Images, encoded)
		case models.AttachmentAudio:
			req.AudioFiles = append(req.AudioFiles, encoded)
		}
	}
	return req
}

// roadmapRequest represents the body of the roadmap generation endpoint
type roadmapRequest struct {
	Text string `json:"text"`
}

// roadmapResponse represents the roadmap generation response
type roadmapResponse struct {
	Roadmap []models.RoadmapNode `json:"roadmap"`
}

// speechRequest represents the body of the text-to-speech endpoint
type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// shareResponse represents the document sharing response
type shareResponse struct {
	URL string `json:"url"`
}

// ============================================================================
// HTTP Helper Methods
// ============================================================================

// doRequest performs a single HTTP request. Transport-level failures are
// classified as ErrBackendUnreachable so callers can tell "backend down"
// apart from "backend answered with an error".
func (c *AssistantClient) doRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	req, err := c.makeRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrBackendUnreachable, err)
	}
	return resp, nil
}

// makeRequest creates an HTTP request with a JSON body
func (c *AssistantClient) makeRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	url := c.baseURL + endpoint

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// parseResponse reads and parses a JSON response
func parseResponse(resp *http.Response, endpoint string, result interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// apiError turns a non-2xx response into an error. A 404 becomes
// ErrEndpointNotFound; anything else surfaces the backend's detail message
// when it sent one.
func apiError(resp *http.Response, endpoint string) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", models.ErrEndpointNotFound, endpoint)
	}

	if detail := extractDetail(bodyBytes); detail != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, detail)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}

// extractDetail pulls the backend's {"detail": "..."} message out of an error
// body, if that is what it sent.
func extractDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}

// ============================================================================
// Chat Methods
// ============================================================================

// StreamChat opens a streaming chat exchange. The returned stream yields text
// deltas until the backend signals completion; the caller must Close it.
func (c *AssistantClient) StreamChat(ctx context.Context, req *ChatRequest) (TokenStream, error) {
	httpReq, err := c.makeRequest(ctx, "POST", "/chat", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrBackendUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp, "/chat")
	}

	return newChatStream(ctx, resp.Body, c.logger), nil
}

// ============================================================================
// Roadmap Methods
// ============================================================================

// GenerateRoadmap sends document text to the backend and returns the node
// list of the generated learning roadmap.
func (c *AssistantClient) GenerateRoadmap(ctx context.Context, text string) ([]models.RoadmapNode, error) {
	req := roadmapRequest{Text: text}

	resp, err := c.doRequest(ctx, "POST", "/roadmap/generate", req)
	if err != nil {
		return nil, fmt.Errorf("roadmap request failed: %w", err)
	}

	var result roadmapResponse
	if err := parseResponse(resp, "/roadmap/generate", &result); err != nil {
		return nil, err
	}

	return result.Roadmap, nil
}

// ============================================================================
// Speech Methods
// ============================================================================

// Synthesize converts text to speech and returns the raw audio payload.
func (c *AssistantClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	req := speechRequest{Text: text, Voice: voice}

	resp, err := c.doRequest(ctx, "POST", "/tts", req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp, "/tts")
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio payload: %w", err)
	}
	return audio, nil
}

// ============================================================================
// Share Methods
// ============================================================================

// ShareDocument uploads a document and returns its shareable URL.
func (c *AssistantClient) ShareDocument(ctx context.Context, filename string, fileData []byte) (string, error) {
	url := c.baseURL + "/share"

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(fileData)); err != nil {
		return "", fmt.Errorf("failed to write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", models.ErrBackendUnreachable, err)
	}

	var result shareResponse
	if err := parseResponse(resp, "/share", &result); err != nil {
		return "", err
	}
	if result.URL == "" {
		return "", fmt.Errorf("share response carried no url")
	}
	return result.URL, nil
}

// ============================================================================
// Health Methods
// ============================================================================

// HealthCheck reports whether the backend answers its health endpoint.
func (c *AssistantClient) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := c.doRequest(ctx, "GET", "/health", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}

	status, ok := result["status"].(string)
	return ok && status == "healthy", nil
}
