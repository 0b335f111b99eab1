package generators

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"nightloom/server/internal/config"
	"nightloom/server/internal/interfaces"
)

const (
	geminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	geminiTimeout     = 180 * time.Second
	geminiMaxRetries  = 3
	geminiRetryDelay  = 1 * time.Second
	videoPollAttempts = 60
)

// GeminiClient talks to the Gemini REST API. It implements the text,
// image, inspection, speech and video collaborator interfaces.
type GeminiClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	textModel    string
	imageModel   string
	speechModel  string
	videoModel   string
	pollInterval time.Duration
	logger       *zap.Logger
}

// geminiContent mirrors the REST API content object
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type geminiGenerationConfig struct {
	Temperature        float64                `json:"temperature,omitempty"`
	MaxOutputTokens    int                    `json:"maxOutputTokens,omitempty"`
	ResponseMimeType   string                 `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]interface{} `json:"responseSchema,omitempty"`
	ResponseModalities []string               `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig    `json:"speechConfig,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiClient creates a Gemini client from config. An empty API key
// is allowed; every call then fails and callers degrade per their own
// fallback rules.
func NewGeminiClient(cfg config.GeminiConfig, visual config.VisualConfig, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{
		httpClient:   &http.Client{Timeout: geminiTimeout},
		baseURL:      geminiBaseURL,
		apiKey:       cfg.APIKey,
		textModel:    cfg.TextModel,
		imageModel:   cfg.ImageModel,
		speechModel:  cfg.SpeechModel,
		videoModel:   cfg.VideoModel,
		pollInterval: visual.PollInterval,
		logger:       logger,
	}
}

// Configured reports whether a credential is present.
func (c *GeminiClient) Configured() bool {
	return c.apiKey != ""
}

// GenerateText implements interfaces.TextGenerator.
func (c *GeminiClient) GenerateText(ctx context.Context, req *interfaces.TextRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}

	body := &geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.Instruction != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.Instruction}}}
	}
	if req.Schema != nil {
		body.GenerationConfig.ResponseMimeType = "application/json"
		body.GenerationConfig.ResponseSchema = req.Schema
	}

	resp, err := c.generate(ctx, c.textModel, body)
	if err != nil {
		return "", err
	}
	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// GenerateImage implements interfaces.ImageGenerator.
func (c *GeminiClient) GenerateImage(ctx context.Context, prompt string) (*interfaces.Image, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}

	body := &geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	resp, err := c.generate(ctx, c.imageModel, body)
	if err != nil {
		return nil, err
	}
	img := firstImage(resp)
	if img == nil {
		return nil, fmt.Errorf("no image in response")
	}
	return img, nil
}

// EditImage implements interfaces.ImageGenerator. The base image travels
// inline alongside the change instruction.
func (c *GeminiClient) EditImage(ctx context.Context, base *interfaces.Image, change string) (*interfaces.Image, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	if base == nil || len(base.Data) == 0 {
		return nil, fmt.Errorf("no base image to edit")
	}

	body := &geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{
				{InlineData: &geminiBlob{
					MIMEType: base.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(base.Data),
				}},
				{Text: change},
			}},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	resp, err := c.generate(ctx, c.imageModel, body)
	if err != nil {
		return nil, err
	}
	img := firstImage(resp)
	if img == nil {
		return nil, fmt.Errorf("no image in edit response")
	}
	return img, nil
}

// InspectImage implements interfaces.ImageInspector: a vision pass over the
// image returning the model's raw JSON verdict.
func (c *GeminiClient) InspectImage(ctx context.Context, img *interfaces.Image, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}
	if img == nil || len(img.Data) == 0 {
		return "", fmt.Errorf("no image to inspect")
	}

	body := &geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{
				{InlineData: &geminiBlob{
					MIMEType: img.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(img.Data),
				}},
				{Text: prompt},
			}},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseMimeType: "application/json",
		},
	}
	resp, err := c.generate(ctx, c.textModel, body)
	if err != nil {
		return "", err
	}
	return firstText(resp), nil
}

// Synthesize implements interfaces.SpeechGenerator.
func (c *GeminiClient) Synthesize(ctx context.Context, script, voiceID string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}

	body := &geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: script}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &geminiSpeechConfig{
				VoiceConfig: geminiVoiceConfig{
					PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: voiceID},
				},
			},
		},
	}
	resp, err := c.generate(ctx, c.speechModel, body)
	if err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode audio payload: %w", err)
				}
				return data, nil
			}
		}
	}
	return nil, fmt.Errorf("no audio in response")
}

// videoOperation mirrors the long-running operation envelope for Veo.
type videoOperation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
	Error *geminiError `json:"error,omitempty"`
}

// Animate implements interfaces.VideoGenerator: kicks off a Veo operation
// from a still image plus prompt and polls until it completes.
func (c *GeminiClient) Animate(ctx context.Context, base *interfaces.Image, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}
	if base == nil || len(base.Data) == 0 {
		return "", fmt.Errorf("no base image to animate")
	}

	reqBody := map[string]interface{}{
		"instances": []map[string]interface{}{
			{
				"prompt": prompt + ", subtle cinematic movement, slow pan, atmospheric lighting",
				"image": map[string]interface{}{
					"bytesBase64Encoded": base64.StdEncoding.EncodeToString(base.Data),
					"mimeType":           base.MIMEType,
				},
			},
		},
	}

	url := fmt.Sprintf("%s/models/%s:predictLongRunning?key=%s", c.baseURL, c.videoModel, c.apiKey)
	var op videoOperation
	if err := c.postJSON(ctx, url, reqBody, &op); err != nil {
		return "", fmt.Errorf("failed to start video operation: %w", err)
	}
	if op.Name == "" {
		return "", fmt.Errorf("video operation has no name")
	}

	for attempt := 0; attempt < videoPollAttempts; attempt++ {
		if op.Done {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
		pollURL := fmt.Sprintf("%s/%s?key=%s", c.baseURL, op.Name, c.apiKey)
		if err := c.getJSON(ctx, pollURL, &op); err != nil {
			c.logger.Warn("video poll failed", zap.Error(err))
		}
	}

	if !op.Done {
		return "", fmt.Errorf("video operation timed out")
	}
	if op.Error != nil {
		return "", fmt.Errorf("video operation failed: %s", op.Error.Message)
	}
	if op.Response == nil || len(op.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		return "", fmt.Errorf("video operation returned no samples")
	}
	return op.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI, nil
}

// generate posts a generateContent request with bounded retries on
// transport errors and rate limits.
func (c *GeminiClient) generate(ctx context.Context, model string, body *geminiRequest) (*geminiResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(geminiRetryDelay * time.Duration(attempt)):
			}
		}

		var resp geminiResponse
		err := c.postJSON(ctx, url, body, &resp)
		if err == nil {
			if resp.Error != nil {
				return nil, fmt.Errorf("API error: %s", resp.Error.Message)
			}
			return &resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("generate failed after retries: %w", lastErr)
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func isRetryable(err error) bool {
	if se, ok := err.(*httpStatusError); ok {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	// Transport-level failures are worth one more try.
	return true
}

func (c *GeminiClient) postJSON(ctx context.Context, url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *GeminiClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *GeminiClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{code: resp.StatusCode, body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func firstText(resp *geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

func firstImage(resp *geminiResponse) *interfaces.Image {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				continue
			}
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return &interfaces.Image{Data: data, MIMEType: mime}
		}
	}
	return nil
}
