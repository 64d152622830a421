package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MattCruikshank/mindcare/internal/auth"
	"github.com/MattCruikshank/mindcare/internal/booking"
	"github.com/MattCruikshank/mindcare/internal/chat"
	"github.com/MattCruikshank/mindcare/internal/models"
)

// ForumAPI is the request/response side of the forum.
type ForumAPI interface {
	ListThreads(ctx context.Context) ([]models.Thread, error)
	GetThread(ctx context.Context, id int64) (*models.ThreadDetail, error)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// APIClient talks to a mindcare-server over HTTP.
type APIClient struct {
	base   string
	name   string
	token  string
	client *http.Client
}

// NewAPIClient creates a client for the server at base, e.g. "http://localhost:8080".
// name is the display name asserted to servers outside a tailnet.
func NewAPIClient(base, name string) *APIClient {
	return &APIClient{
		base:   strings.TrimSuffix(base, "/"),
		name:   name,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient replaces the HTTP client, e.g. with one dialing through tsnet.
func (c *APIClient) SetHTTPClient(hc *http.Client) {
	c.client = hc
}

// SetToken sets the admin bearer token sent with every request.
func (c *APIClient) SetToken(token string) {
	c.token = token
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.name != "" {
		req.Header.Set(auth.NameHeader, c.name)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// ListThreads fetches the thread index, newest first.
func (c *APIClient) ListThreads(ctx context.Context) ([]models.Thread, error) {
	var threads []models.Thread
	if err := c.do(ctx, http.MethodGet, "/api/threads", nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// GetThread fetches a thread with its replies.
func (c *APIClient) GetThread(ctx context.Context, id int64) (*models.ThreadDetail, error) {
	var detail models.ThreadDetail
	if err := c.do(ctx, http.MethodGet, "/api/thread/"+strconv.FormatInt(id, 10), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Chat sends a message to the assistant. Any failure yields the
// "trouble connecting" text along with the error.
func (c *APIClient) Chat(ctx context.Context, message string) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat", map[string]string{"message": message}, &out); err != nil {
		return chat.UnavailableResponse, err
	}
	return out.Response, nil
}

// Counselors lists the counselors.
func (c *APIClient) Counselors(ctx context.Context) ([]models.Counselor, error) {
	var out []models.Counselor
	err := c.do(ctx, http.MethodGet, "/api/counselors", nil, &out)
	return out, err
}

// Slots lists a counselor's slots on date (YYYY-MM-DD).
func (c *APIClient) Slots(ctx context.Context, counselorID int, date string) ([]booking.Slot, error) {
	var out []booking.Slot
	path := fmt.Sprintf("/api/counselors/%d/slots?date=%s", counselorID, url.QueryEscape(date))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Book requests a counselor session.
func (c *APIClient) Book(ctx context.Context, req booking.Request) (*models.Booking, error) {
	var out models.Booking
	if err := c.do(ctx, http.MethodPost, "/api/bookings", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resources searches the resource library.
func (c *APIClient) Resources(ctx context.Context, f models.ResourceFilter) ([]models.Resource, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Language != "" {
		q.Set("language", f.Language)
	}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	path := "/api/resources"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []models.Resource
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// QuestionBank is a screening's questions with the shared answer options.
type QuestionBank struct {
	Type      models.ScreeningType `json:"type"`
	Title     string               `json:"title"`
	Questions []string             `json:"questions"`
	Options   []string             `json:"options"`
}

// QuestionBank fetches a screening questionnaire.
func (c *APIClient) QuestionBank(ctx context.Context, typ models.ScreeningType) (*QuestionBank, error) {
	var out QuestionBank
	if err := c.do(ctx, http.MethodGet, "/api/screenings/"+url.PathEscape(string(typ)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitScreening scores a completed screening.
func (c *APIClient) SubmitScreening(ctx context.Context, typ models.ScreeningType, answers []int) (*models.ScreeningResult, error) {
	var out models.ScreeningResult
	body := map[string]interface{}{"type": typ, "answers": answers}
	if err := c.do(ctx, http.MethodPost, "/api/screenings", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminLogin exchanges admin credentials for a token and keeps it for later calls.
func (c *APIClient) AdminLogin(ctx context.Context, user, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": user, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/admin/login", body, &out); err != nil {
		return err
	}
	c.token = out.Token
	return nil
}

// Analytics fetches the admin dashboard snapshot.
func (c *APIClient) Analytics(ctx context.Context) (*models.Analytics, error) {
	var out models.Analytics
	if err := c.do(ctx, http.MethodGet, "/api/admin/analytics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
