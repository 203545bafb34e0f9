// Package remote implements the remote collection store client
// Package remote 远端集合存储客户端
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Config 远端客户端配置
type Config struct {
	// BaseURL e.g. http://127.0.0.1:9100
	BaseURL string
	// Token identity token sent as a bearer credential
	// Token 以 Bearer 方式发送的身份令牌
	Token string
	// Timeout bounds every request, the engine itself sets none
	// Timeout 单次请求超时，同步引擎本身不设超时
	Timeout time.Duration
	// HTTPClient 可选，测试时注入
	HTTPClient *http.Client
}

// Client implements domain.DocumentStore over HTTP and a gws realtime stream
// Client 基于 HTTP 与 gws 实时流实现 domain.DocumentStore
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *zap.Logger
	sf     singleflight.Group

	ackTimeout time.Duration
}

// envelope mirrors app.Res with a typed payload
// envelope 与 app.Res 对应的带类型响应
type envelope[T any] struct {
	Code    int    `json:"code"`
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Details string `json:"details"`
}

type listData struct {
	List  []dto.RecordDTO `json:"list"`
	Total int             `json:"total"`
}

// New 创建远端客户端
func New(cfg Config, zl *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote base url must be http or https, got %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Client{
		base:       base,
		token:      cfg.Token,
		http:       hc,
		logger:     zl,
		ackTimeout: cfg.Timeout,
	}, nil
}

func (c *Client) recordsPath(collection string, id ...string) string {
	p := "/api/collections/" + url.PathEscape(collection) + "/records"
	if len(id) > 0 {
		p += "/" + url.PathEscape(id[0])
	}
	return p
}

// do sends one request and decodes the envelope into out
// do 发送请求并把响应解析到 out
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	c.logger.Debug("remote request",
		zap.String(logger.FieldMethod, method),
		zap.String(logger.FieldURL, path),
		zap.Int("status", resp.StatusCode),
		zap.Duration(logger.FieldDuration, time.Since(start)))

	// 先校验响应头再解析数据
	var head envelope[json.RawMessage]
	if err := sonic.Unmarshal(raw, &head); err != nil {
		return code.ErrorRemoteRequest.WithDetails(fmt.Sprintf("%s %s: http %d, undecodable body", method, path, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK || !head.Status {
		detail := fmt.Sprintf("%s %s: http %d, code %d %s", method, path, resp.StatusCode, head.Code, head.Message)
		if head.Details != "" {
			detail += " (" + head.Details + ")"
		}
		return code.ErrorRemoteRequest.WithDetails(detail)
	}
	if out == nil || len(head.Data) == 0 || string(head.Data) == "null" {
		return nil
	}
	if err := sonic.Unmarshal(head.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ListDocuments 列出集合中的全部文档
func (c *Client) ListDocuments(ctx context.Context, collection string) ([]*domain.Document, error) {
	var data listData
	if err := c.do(ctx, http.MethodGet, c.recordsPath(collection), nil, &data); err != nil {
		return nil, err
	}
	out := make([]*domain.Document, 0, len(data.List))
	for _, r := range data.List {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

// CreateDocument 创建文档并返回远端 ID
func (c *Client) CreateDocument(ctx context.Context, collection string, fields domain.DocumentFields) (string, error) {
	var rec dto.RecordDTO
	err := c.do(ctx, http.MethodPost, c.recordsPath(collection), dto.RecordCreateRequest{
		Title:     fields.Title,
		Content:   fields.Content,
		Owner:     fields.Owner,
		ClientKey: fields.ClientKey,
	}, &rec)
	if err != nil {
		return "", err
	}
	if rec.ID == "" {
		return "", code.ErrorRemoteRequest.WithDetails("create returned no id")
	}
	return rec.ID, nil
}

// UpdateDocument 更新文档
func (c *Client) UpdateDocument(ctx context.Context, collection, remoteID string, fields domain.DocumentFields) error {
	return c.do(ctx, http.MethodPatch, c.recordsPath(collection, remoteID), dto.RecordUpdateRequest{
		Title:   fields.Title,
		Content: fields.Content,
		Owner:   fields.Owner,
	}, nil)
}

// DeleteDocument 删除文档
func (c *Client) DeleteDocument(ctx context.Context, collection, remoteID string) error {
	return c.do(ctx, http.MethodDelete, c.recordsPath(collection, remoteID), nil, nil)
}

// HealthCheck probes /api/health, concurrent probes share one request
// HealthCheck 探测 /api/health，并发探测共享同一请求
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err, _ := c.sf.Do("health", func() (interface{}, error) {
		var h dto.HealthDTO
		if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
			return nil, err
		}
		if h.Status != "ok" {
			return nil, fmt.Errorf("status %q", h.Status)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", code.ErrorConnectivityLost, err)
	}
	return nil
}

var _ domain.DocumentStore = (*Client)(nil)
