package tasks

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Stencil/internal/domain"
)

const (
	// TaskTypeHTTP — тип HTTP задачи.
	TaskTypeHTTP = "http"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи параметров HTTP задачи.
const (
	paramMethod          = "method"
	paramURL             = "url"
	paramHeaders         = "headers"
	paramBody            = "body"
	paramFollowRedirects = "follow_redirects"
	paramValidateSSL     = "validate_ssl"
	paramTimeoutSec      = "timeout_sec"
	paramAllowFailed     = "allow_failed"
)

// HTTPTask выполняет HTTP запрос.
//
// Параметры:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/data",
//	    "headers": {"Authorization": "Bearer {{ inputs.token }}"},
//	    "body": {"data": "{{ outputs.fetch.body.items }}"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30,
//	    "allow_failed": false   // статус >= 400 не считается ошибкой
//	}
//
// Outputs:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json"},
//	    "body": {...}  // разобранный JSON или строка
//	}
type HTTPTask struct{}

// NewHTTPTask создаёт HTTPTask.
func NewHTTPTask() *HTTPTask {
	return &HTTPTask{}
}

// Type возвращает тип задачи.
func (t *HTTPTask) Type() string {
	return TaskTypeHTTP
}

// Execute выполняет HTTP запрос.
func (t *HTTPTask) Execute(ctx context.Context, req *Request) (*Response, error) {
	p, err := parseHTTPParams(req.Params)
	if err != nil {
		return nil, err
	}

	httpReq, err := p.request(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client(req.Timeout).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	outputs, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest && !p.allowFailed {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       fmt.Sprint(outputs["body"]),
		}
	}

	req.Log(levelFromStatus(resp.StatusCode), "%s %s -> %d", p.method, p.url, resp.StatusCode)
	return NewResponse(outputs), nil
}

// httpParams — разобранные параметры HTTP задачи.
type httpParams struct {
	method          string
	url             string
	headers         map[string]string
	body            any
	followRedirects bool
	validateSSL     bool
	timeout         time.Duration
	allowFailed     bool
}

func parseHTTPParams(params map[string]any) (*httpParams, error) {
	p := &httpParams{
		method:          strings.ToUpper(GetParamString(params, paramMethod)),
		url:             GetParamString(params, paramURL),
		headers:         make(map[string]string),
		body:            params[paramBody],
		followRedirects: GetParamBool(params, paramFollowRedirects, true),
		validateSSL:     GetParamBool(params, paramValidateSSL, true),
		timeout:         defaultHTTPTimeout,
		allowFailed:     GetParamBool(params, paramAllowFailed, false),
	}

	if p.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidParams, TaskTypeHTTP)
	}
	if p.method == "" {
		p.method = http.MethodGet
	}
	for k, v := range GetParamMapString(params, paramHeaders) {
		p.headers[k] = v
	}
	if sec := GetParamInt(params, paramTimeoutSec); sec > 0 {
		p.timeout = time.Duration(sec) * time.Second
	}

	return p, nil
}

// client создаёт HTTP клиент под параметры запроса.
// Таймаут запроса из Request имеет приоритет.
func (p *httpParams) client(reqTimeout time.Duration) *http.Client {
	timeout := p.timeout
	if reqTimeout > 0 {
		timeout = reqTimeout
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !p.followRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !p.validateSSL},
		},
	}
}

func (p *httpParams) request(ctx context.Context) (*http.Request, error) {
	var bodyReader io.Reader

	if p.body != nil {
		var payload []byte
		switch v := p.body.(type) {
		case string:
			payload = []byte(v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("serialize body: %w", err)
			}
			payload = b
			if _, ok := p.headers["Content-Type"]; !ok {
				p.headers["Content-Type"] = "application/json"
			}
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.url, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range p.headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func readResponse(resp *http.Response) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			body = decoded
		}
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}

func levelFromStatus(code int) domain.Level {
	if code >= http.StatusBadRequest {
		return domain.LevelWarn
	}
	return domain.LevelDebug
}

// HTTPError — ответ с кодом >= 400.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Unwrap связывает HTTPError с ErrTaskFailed.
func (e *HTTPError) Unwrap() error {
	return ErrTaskFailed
}

// IsHTTPError проверяет, является ли ошибка HTTP ошибкой.
func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}
