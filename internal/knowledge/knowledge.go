// Package knowledge получает справочный материал по URL через внешние
// MCP сервисы (fetch и deepwiki).
package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vibedoc-server/internal/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// Таймаут проверки доступности URL перед походом в MCP.
const urlCheckTimeout = 10 * time.Second

// toolCaller - минимальная поверхность MCP клиента, нужная сервису.
// Выделена в интерфейс ради подмены в тестах.
type toolCaller interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ServiceStatus - результат проверки одного MCP сервиса.
type ServiceStatus struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Available bool   `json:"available"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Service инкапсулирует маршрутизацию запросов к MCP сервисам.
type Service struct {
	cfg        *config.Config
	logger     *zap.Logger
	httpClient *http.Client
	dial       func(baseURL string) (toolCaller, error)
}

// NewService создает сервис знаний с SSE-транспортом MCP.
func NewService(cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger.Named("Knowledge"),
		httpClient: &http.Client{
			Timeout: urlCheckTimeout,
		},
		dial: func(baseURL string) (toolCaller, error) {
			return client.NewSSEMCPClient(baseURL)
		},
	}
}

// CheckURL делает HEAD-запрос и считает URL доступным при ответе 2xx/3xx.
// Редиректы http.Client проходит сам, так что 3xx здесь - крайний случай.
func (s *Service) CheckURL(ctx context.Context, rawURL string) error {
	checkCtx, cancel := context.WithTimeout(ctx, urlCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("invalid reference url %q: %w", rawURL, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reference url %q is unreachable: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("reference url %q returned status %d", rawURL, resp.StatusCode)
	}
	return nil
}

// Retrieve получает содержимое справочного URL через подходящий MCP сервис.
// Для deepwiki-совместимых URL сначала пробуется deepwiki, при неудаче fetch.
func (s *Service) Retrieve(ctx context.Context, rawURL string) (string, error) {
	if err := s.CheckURL(ctx, rawURL); err != nil {
		return "", err
	}

	if s.isDeepwikiCandidate(rawURL) {
		content, err := s.callTool(ctx, s.cfg.MCPDeepwikiURL, "read_wiki_contents", map[string]any{
			"url": rawURL,
		})
		if err == nil {
			return s.truncate(content), nil
		}
		s.logger.Warn("Deepwiki MCP failed, falling back to fetch",
			zap.String("url", rawURL),
			zap.Error(err),
		)
	}

	content, err := s.callTool(ctx, s.cfg.MCPFetchURL, "fetch", map[string]any{
		"url":        rawURL,
		"max_length": s.cfg.MCPMaxContentLength,
	})
	if err != nil {
		return "", fmt.Errorf("fetch MCP failed for %q: %w", rawURL, err)
	}
	return s.truncate(content), nil
}

// Status проверяет доступность всех сконфигурированных MCP сервисов.
func (s *Service) Status(ctx context.Context) []ServiceStatus {
	endpoints := []struct {
		name string
		url  string
	}{
		{"fetch", s.cfg.MCPFetchURL},
		{"deepwiki", s.cfg.MCPDeepwikiURL},
	}

	statuses := make([]ServiceStatus, 0, len(endpoints))
	for _, ep := range endpoints {
		status := ServiceStatus{Name: ep.name, URL: ep.url}
		start := time.Now()
		err := s.probe(ctx, ep.url)
		status.LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			status.Error = err.Error()
			s.logger.Warn("MCP service probe failed", zap.String("service", ep.name), zap.Error(err))
		} else {
			status.Available = true
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// probe устанавливает MCP сессию без вызова инструментов.
func (s *Service) probe(ctx context.Context, baseURL string) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.MCPTimeout)
	defer cancel()

	c, err := s.dial(baseURL)
	if err != nil {
		return fmt.Errorf("mcp dial failed: %w", err)
	}
	defer c.Close()

	if err := c.Start(probeCtx); err != nil {
		return fmt.Errorf("mcp transport start failed: %w", err)
	}
	if _, err := c.Initialize(probeCtx, newInitializeRequest()); err != nil {
		return fmt.Errorf("mcp initialize failed: %w", err)
	}
	return nil
}

// callTool выполняет полный цикл: сессия, initialize, вызов инструмента.
func (s *Service) callTool(ctx context.Context, baseURL, tool string, args map[string]any) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.MCPTimeout)
	defer cancel()

	c, err := s.dial(baseURL)
	if err != nil {
		return "", fmt.Errorf("mcp dial failed: %w", err)
	}
	defer c.Close()

	if err := c.Start(callCtx); err != nil {
		return "", fmt.Errorf("mcp transport start failed: %w", err)
	}
	if _, err := c.Initialize(callCtx, newInitializeRequest()); err != nil {
		return "", fmt.Errorf("mcp initialize failed: %w", err)
	}

	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	request.Params.Arguments = args

	result, err := c.CallTool(callCtx, request)
	if err != nil {
		return "", fmt.Errorf("mcp tool %q call failed: %w", tool, err)
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool %q returned an error result", tool)
	}

	text := extractText(result)
	if text == "" {
		return "", fmt.Errorf("mcp tool %q returned no text content", tool)
	}
	return text, nil
}

func newInitializeRequest() mcp.InitializeRequest {
	request := mcp.InitializeRequest{}
	request.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	request.Params.ClientInfo = mcp.Implementation{
		Name:    "vibedoc-server",
		Version: "1.0.0",
	}
	return request
}

// extractText склеивает все текстовые элементы ответа инструмента.
func extractText(result *mcp.CallToolResult) string {
	var parts []string
	for _, item := range result.Content {
		if tc, ok := item.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// isDeepwikiCandidate: deepwiki.org напрямую или репозиторий github.com,
// у которого есть зеркало документации на deepwiki.
func (s *Service) isDeepwikiCandidate(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "deepwiki.org" || strings.HasSuffix(host, ".deepwiki.org") ||
		host == "github.com" || host == "www.github.com"
}

func (s *Service) truncate(content string) string {
	max := s.cfg.MCPMaxContentLength
	if max > 0 && len(content) > max {
		return content[:max]
	}
	return content
}
