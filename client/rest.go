package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"sapa/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// restClient talks to the Sapa REST API. The session cookie issued by
// Login/Signup is held in the jar and shared with the socket dialer.
type restClient struct {
	baseURL string
	http    *http.Client
}

// NewREST creates an API implementation against the given base URL.
func NewREST(baseURL string) (*restClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &restClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar},
	}, nil
}

var _ API = (*restClient)(nil)

func (c *restClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &envelope)
		msg := envelope.Error
		if msg == "" {
			msg = envelope.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (c *restClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

// Login authenticates and stores the session cookie in the jar.
func (c *restClient) Login(ctx context.Context, email, password string) (models.UserResponse, error) {
	var resp struct {
		Data models.UserResponse `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password}, &resp)
	return resp.Data, err
}

// Signup registers a new account and stores the session cookie.
func (c *restClient) Signup(ctx context.Context, fullName, email, password string) (models.UserResponse, error) {
	var resp struct {
		Data models.UserResponse `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup",
		map[string]string{"fullName": fullName, "email": email, "password": password}, &resp)
	return resp.Data, err
}

func (c *restClient) Users(ctx context.Context) ([]SidebarUser, map[string]int, error) {
	var resp struct {
		Users          []SidebarUser  `json:"users"`
		UnseenMessages map[string]int `json:"unseenMessages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/users", nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Users, resp.UnseenMessages, nil
}

func (c *restClient) Messages(ctx context.Context, userID string, page, limit int) (PageResult, error) {
	var resp PageResult
	path := "/api/messages/" + url.PathEscape(userID) +
		"?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *restClient) MessageDetail(ctx context.Context, id string) (models.Message, error) {
	var resp struct {
		Message models.Message `json:"message"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/messages/detail/"+url.PathEscape(id), nil, &resp)
	return resp.Message, err
}

func (c *restClient) MarkSeen(ctx context.Context, id string) (models.Message, error) {
	var resp struct {
		Data models.Message `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPut, "/api/messages/mark/"+url.PathEscape(id), nil, &resp)
	return resp.Data, err
}

func (c *restClient) Send(ctx context.Context, receiverID, text string, att *Attachment) (models.Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if text != "" {
		if err := w.WriteField("text", text); err != nil {
			return models.Message{}, err
		}
	}
	if att != nil {
		part, err := w.CreateFormFile("image", att.Name)
		if err != nil {
			return models.Message{}, err
		}
		if _, err := part.Write(att.Data); err != nil {
			return models.Message{}, err
		}
	}
	if err := w.Close(); err != nil {
		return models.Message{}, err
	}

	var resp struct {
		Message models.Message `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(receiverID),
		&buf, w.FormDataContentType(), &resp)
	return resp.Message, err
}

func (c *restClient) Delete(ctx context.Context, id string) (models.Message, error) {
	var resp struct {
		Data models.Message `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(id), nil, &resp)
	return resp.Data, err
}

func (c *restClient) ToggleReaction(ctx context.Context, id, emoji string) (models.Message, error) {
	var resp struct {
		Message models.Message `json:"message"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/messages/reaction/"+url.PathEscape(id),
		map[string]string{"emoji": emoji}, &resp)
	return resp.Message, err
}
