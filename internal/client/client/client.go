// Package client is a small HTTP client for the blobkeeper API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/blobkeeper/internal/client/models"
	"github.com/dmitrijs2005/blobkeeper/internal/common"
)

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) Token() string { return c.token }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.token)
	}
	return req, nil
}

// do sends req and decodes a JSON response into out. Non-2xx answers are
// turned into errors wrapping the matching sentinel from package common.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if body.Error == "" {
		body.Error = resp.Status
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		sentinel = common.ErrUnauthenticated
	case http.StatusForbidden:
		sentinel = common.ErrForbidden
		if strings.Contains(body.Error, common.ErrQuotaExceeded.Error()) {
			sentinel = common.ErrQuotaExceeded
		}
	case http.StatusNotFound:
		sentinel = common.ErrorNotFound
	case http.StatusRequestEntityTooLarge:
		sentinel = common.ErrFileTooLarge
	case http.StatusTooManyRequests:
		sentinel = common.ErrRateLimited
	case http.StatusBadRequest:
		sentinel = common.ErrBadRequest
	default:
		sentinel = common.ErrorInternal
	}
	if body.Error == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, body.Error)
}

func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) Enroll(ctx context.Context, userID string) (*models.Enrollment, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	var out models.Enrollment
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserInfo reports usage. With rotate set the server issues a new token,
// which is also adopted by the client.
func (c *Client) UserInfo(ctx context.Context, rotate bool) (*models.UserInfo, error) {
	path := "/user"
	if rotate {
		path += "?rotate=true"
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out models.UserInfo
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Token != "" {
		c.token = out.Token
	}
	return &out, nil
}

// Upload streams r as a multipart upload named name.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*models.FileSummary, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out models.FileSummary
	if err := c.do(req, &out); err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	return &out, nil
}

func (c *Client) List(ctx context.Context) ([]models.FileSummary, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Files []models.FileSummary `json:"files"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// Download copies the bytes of file id into w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/s/"+url.PathEscape(id)+"?output=download", nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) Delete(ctx context.Context, id string) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/delete/"+url.PathEscape(id), nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Freed int64 `json:"freed_bytes"`
	}
	if err := c.do(req, &out); err != nil {
		return 0, err
	}
	return out.Freed, nil
}

// DeleteAll removes every file ("all") or only expired ones ("expired").
func (c *Client) DeleteAll(ctx context.Context, function string) (int, error) {
	q := url.Values{"confirm": {"yes"}, "function": {function}}
	req, err := c.newRequest(ctx, http.MethodDelete, "/delete_all?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(req, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}
