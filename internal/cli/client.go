package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shaiso/Stencil/internal/domain"
)

// ExecutionSummary — execution в списке /executions.
type ExecutionSummary struct {
	ID         string     `json:"id"`
	Namespace  string     `json:"namespace"`
	FlowID     string     `json:"flowId"`
	State      string     `json:"state"`
	TaskRuns   int        `json:"taskRuns"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// StartOpts — параметры запуска execution.
type StartOpts struct {
	Inputs map[string]any

	// Wait — ждать финального состояния.
	Wait bool

	// Timeout — сколько сервер ждёт при Wait (0 — значение сервера).
	Timeout time.Duration
}

// APIError — ответ API с ошибкой.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client — HTTP-клиент для Stencil API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// запуск с ожиданием может длиться до таймаута execution
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Templates ---

// ListTemplates возвращает все шаблоны.
func (c *Client) ListTemplates() ([]domain.Template, error) {
	var templates []domain.Template
	err := c.list("/api/v1/templates", nil, &templates)
	return templates, err
}

// GetTemplate возвращает шаблон.
func (c *Client) GetTemplate(namespace, id string) (*domain.Template, error) {
	var tmpl domain.Template
	err := c.get("/api/v1/templates/"+url.PathEscape(namespace)+"/"+url.PathEscape(id), &tmpl)
	return &tmpl, err
}

// CreateTemplate сохраняет шаблон.
func (c *Client) CreateTemplate(tmpl *domain.Template) (*domain.Template, error) {
	var created domain.Template
	err := c.doData(http.MethodPost, "/api/v1/templates", tmpl, &created)
	return &created, err
}

// --- Flows ---

// ListFlows возвращает все flow.
func (c *Client) ListFlows() ([]domain.Flow, error) {
	var flows []domain.Flow
	err := c.list("/api/v1/flows", nil, &flows)
	return flows, err
}

// GetFlow возвращает flow.
func (c *Client) GetFlow(namespace, id string) (*domain.Flow, error) {
	var flow domain.Flow
	err := c.get(flowPath(namespace, id), &flow)
	return &flow, err
}

// PutFlow создаёт или заменяет flow.
func (c *Client) PutFlow(flow *domain.Flow) (*domain.Flow, error) {
	var saved domain.Flow
	err := c.doData(http.MethodPut, flowPath(flow.Namespace, flow.ID), flow, &saved)
	return &saved, err
}

func flowPath(namespace, id string) string {
	return "/api/v1/flows/" + url.PathEscape(namespace) + "/" + url.PathEscape(id)
}

// --- Executions ---

// ListExecutions возвращает execution сервера.
func (c *Client) ListExecutions(namespace, flowID, state string) ([]ExecutionSummary, error) {
	params := url.Values{}
	if namespace != "" {
		params.Set("namespace", namespace)
	}
	if flowID != "" {
		params.Set("flowId", flowID)
	}
	if state != "" {
		params.Set("state", state)
	}

	var execs []ExecutionSummary
	err := c.list("/api/v1/executions", params, &execs)
	return execs, err
}

// StartExecution запускает flow.
func (c *Client) StartExecution(namespace, flowID string, opts StartOpts) (*domain.Execution, error) {
	params := url.Values{}
	if opts.Wait {
		params.Set("wait", "true")
	}
	if opts.Timeout > 0 {
		params.Set("timeout", opts.Timeout.String())
	}

	path := "/api/v1/executions/" + url.PathEscape(namespace) + "/" + url.PathEscape(flowID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body := map[string]any{"inputs": opts.Inputs}
	var exec domain.Execution
	err := c.doData(http.MethodPost, path, body, &exec)
	return &exec, err
}

// GetExecution возвращает execution.
func (c *Client) GetExecution(id string) (*domain.Execution, error) {
	var exec domain.Execution
	err := c.get("/api/v1/executions/"+url.PathEscape(id), &exec)
	return &exec, err
}

// KillExecution останавливает execution.
func (c *Client) KillExecution(id string) (*domain.Execution, error) {
	var exec domain.Execution
	err := c.doData(http.MethodPost, "/api/v1/executions/"+url.PathEscape(id)+"/kill", nil, &exec)
	return &exec, err
}

// ExecutionLogs возвращает записи лога execution.
func (c *Client) ExecutionLogs(id, minLevel string) ([]domain.LogEntry, error) {
	params := url.Values{}
	if minLevel != "" {
		params.Set("minLevel", minLevel)
	}

	var entries []domain.LogEntry
	err := c.list("/api/v1/executions/"+url.PathEscape(id)+"/logs", params, &entries)
	return entries, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
