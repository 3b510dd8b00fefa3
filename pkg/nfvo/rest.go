package nfvo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	apiPrefix = "/api/v1"

	// OAuth client registered by the orchestrator for API consumers.
	oauthClientID     = "openbatonOSClient"
	oauthClientSecret = "secret"
)

// RESTConfig describes how to reach the orchestrator.
type RESTConfig struct {
	Host     string
	Port     int
	HTTPS    bool
	Username string
	Password string
	Timeout  time.Duration
}

// RESTAgent implements Agent over the orchestrator's HTTP API.
type RESTAgent struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

var _ Agent = (*RESTAgent)(nil)

// Option customises agent instantiation.
type Option func(*RESTAgent)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(a *RESTAgent) {
		if h != nil {
			a.httpClient = h
		}
	}
}

// WithBaseURL points the agent at an explicit base URL, e.g. a test server.
func WithBaseURL(base string) Option {
	return func(a *RESTAgent) {
		a.baseURL = strings.TrimRight(base, "/")
	}
}

// NewRESTAgent constructs an agent for the orchestrator described by cfg.
func NewRESTAgent(cfg RESTConfig, opts ...Option) (*RESTAgent, error) {
	scheme := "http"
	if cfg.HTTPS {
		scheme = "https"
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 8080
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	base := fmt.Sprintf("%s://%s:%d", scheme, host, port)
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid nfvo url: %w", err)
	}

	a := &RESTAgent{
		baseURL:    base,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached token or requests a new one.
func (a *RESTAgent) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.tokenExpiry) {
		return a.token, nil
	}

	form := url.Values{}
	form.Set("username", a.username)
	form.Set("password", a.password)
	form.Set("grant_type", "password")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(oauthClientID, oauthClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &APIError{StatusCode: resp.StatusCode, Method: http.MethodPost, Path: "/oauth/token", Message: extractError(resp.Body)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: token: %v", ErrMalformedResponse, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrMalformedResponse)
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	a.token = tok.AccessToken
	// Renew a little early so in-flight calls don't race the expiry.
	a.tokenExpiry = a.now().Add(expiresIn - expiresIn/10)
	return a.token, nil
}

func (a *RESTAgent) invalidateToken() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

// request describes one API call. newBody is called per attempt so that
// the call can be retried after a token refresh.
type request struct {
	method      string
	path        string
	projectID   string
	contentType string
	newBody     func() (io.Reader, error)
}

func jsonBody(v any) (func() (io.Reader, error), error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return func() (io.Reader, error) { return bytes.NewReader(payload), nil }, nil
}

// do performs the call and returns the response body. A 401 triggers one
// retry with a fresh token.
func (a *RESTAgent) do(ctx context.Context, r request) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		data, status, err := a.doOnce(ctx, r)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized && attempt == 0 {
			a.invalidateToken()
			continue
		}
		if status >= http.StatusBadRequest {
			return nil, &APIError{StatusCode: status, Method: r.method, Path: r.path, Message: extractError(bytes.NewReader(data))}
		}
		return data, nil
	}
}

func (a *RESTAgent) doOnce(ctx context.Context, r request) ([]byte, int, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	var body io.Reader
	if r.newBody != nil {
		if body, err = r.newBody(); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, a.baseURL+apiPrefix+r.path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.projectID != "" {
		req.Header.Set("project-id", r.projectID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func extractError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	if payload.Message != "" {
		return strings.TrimSpace(payload.Message)
	}
	return strings.TrimSpace(payload.Error)
}

func (a *RESTAgent) get(ctx context.Context, projectID, path string, out any) error {
	data, err := a.do(ctx, request{method: http.MethodGet, path: path, projectID: projectID})
	if err != nil {
		return err
	}
	return decode(data, out)
}

func (a *RESTAgent) post(ctx context.Context, projectID, path string, in, out any) error {
	newBody, err := jsonBody(in)
	if err != nil {
		return err
	}
	data, err := a.do(ctx, request{
		method:      http.MethodPost,
		path:        path,
		projectID:   projectID,
		contentType: "application/json",
		newBody:     newBody,
	})
	if err != nil {
		return err
	}
	return decode(data, out)
}

func (a *RESTAgent) delete(ctx context.Context, projectID, path string) error {
	_, err := a.do(ctx, request{method: http.MethodDelete, path: path, projectID: projectID})
	return err
}

// upload posts a file as multipart form data under the "file" field.
func (a *RESTAgent) upload(ctx context.Context, projectID, path, filePath string) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy package: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	payload := buf.Bytes()
	return a.do(ctx, request{
		method:      http.MethodPost,
		path:        path,
		projectID:   projectID,
		contentType: w.FormDataContentType(),
		newBody:     func() (io.Reader, error) { return bytes.NewReader(payload), nil },
	})
}

func decode(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func escape(id string) string {
	return url.PathEscape(id)
}

// ListProjects lists every project visible to the configured user.
func (a *RESTAgent) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := a.get(ctx, "", "/projects", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject creates a project.
func (a *RESTAgent) CreateProject(ctx context.Context, project Project) (*Project, error) {
	var created Project
	if err := a.post(ctx, "", "/projects", project, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteProject deletes a project.
func (a *RESTAgent) DeleteProject(ctx context.Context, id string) error {
	return a.delete(ctx, "", "/projects/"+escape(id))
}

// ListUsers lists users.
func (a *RESTAgent) ListUsers(ctx context.Context, projectID string) ([]User, error) {
	var users []User
	if err := a.get(ctx, projectID, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser creates a user.
func (a *RESTAgent) CreateUser(ctx context.Context, projectID string, user User) (*User, error) {
	var created User
	if err := a.post(ctx, projectID, "/users", user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteUser deletes a user.
func (a *RESTAgent) DeleteUser(ctx context.Context, projectID, id string) error {
	return a.delete(ctx, projectID, "/users/"+escape(id))
}

// ListVimInstances lists the vim instances of a project.
func (a *RESTAgent) ListVimInstances(ctx context.Context, projectID string) ([]VimInstance, error) {
	var vims []VimInstance
	if err := a.get(ctx, projectID, "/datacenters", &vims); err != nil {
		return nil, err
	}
	return vims, nil
}

// CreateVimInstance registers a vim instance in a project.
func (a *RESTAgent) CreateVimInstance(ctx context.Context, projectID string, vim VimInstance) (*VimInstance, error) {
	var created VimInstance
	if err := a.post(ctx, projectID, "/datacenters", vim, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteVimInstance removes a vim instance.
func (a *RESTAgent) DeleteVimInstance(ctx context.Context, projectID, id string) error {
	return a.delete(ctx, projectID, "/datacenters/"+escape(id))
}

// ListKeys lists the keys of a project.
func (a *RESTAgent) ListKeys(ctx context.Context, projectID string) ([]Key, error) {
	var keys []Key
	if err := a.get(ctx, projectID, "/keys", &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// CreateKey imports a public key.
func (a *RESTAgent) CreateKey(ctx context.Context, projectID string, key Key) (*Key, error) {
	var created Key
	if err := a.post(ctx, projectID, "/keys", key, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteKey deletes a key.
func (a *RESTAgent) DeleteKey(ctx context.Context, projectID, id string) error {
	return a.delete(ctx, projectID, "/keys/"+escape(id))
}

// UploadPackage uploads a component package.
func (a *RESTAgent) UploadPackage(ctx context.Context, projectID, path string) (*VNFD, error) {
	data, err := a.upload(ctx, projectID, "/vnf-packages", path)
	if err != nil {
		return nil, err
	}
	var vnfd VNFD
	if err := decode(data, &vnfd); err != nil {
		return nil, err
	}
	if vnfd.ID == "" {
		return nil, fmt.Errorf("%w: package upload returned no id", ErrMalformedResponse)
	}
	return &vnfd, nil
}

// ListNSDs lists the service descriptors of a project.
func (a *RESTAgent) ListNSDs(ctx context.Context, projectID string) ([]NSD, error) {
	var nsds []NSD
	if err := a.get(ctx, projectID, "/ns-descriptors", &nsds); err != nil {
		return nil, err
	}
	return nsds, nil
}

// GetNSD fetches a service descriptor.
func (a *RESTAgent) GetNSD(ctx context.Context, projectID, id string) (*NSD, error) {
	var nsd NSD
	if err := a.get(ctx, projectID, "/ns-descriptors/"+escape(id), &nsd); err != nil {
		return nil, err
	}
	if nsd.ID == "" {
		return nil, &APIError{Method: http.MethodGet, Path: "/ns-descriptors/" + id, Message: "descriptor not found"}
	}
	return &nsd, nil
}

// CreateNSD creates a service descriptor.
func (a *RESTAgent) CreateNSD(ctx context.Context, projectID string, nsd NSD) (*NSD, error) {
	var created NSD
	if err := a.post(ctx, projectID, "/ns-descriptors", nsd, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateNSDFromCSAR onboards a CSAR archive as a service descriptor.
func (a *RESTAgent) CreateNSDFromCSAR(ctx context.Context, projectID, path string) (*NSD, error) {
	data, err := a.upload(ctx, projectID, "/csar-nsd", path)
	if err != nil {
		return nil, err
	}
	var nsd NSD
	if err := decode(data, &nsd); err != nil {
		return nil, err
	}
	return &nsd, nil
}

// DeleteNSD deletes a service descriptor.
func (a *RESTAgent) DeleteNSD(ctx context.Context, projectID, id string) error {
	return a.delete(ctx, projectID, "/ns-descriptors/"+escape(id))
}

// CreateNSR instantiates a service descriptor.
func (a *RESTAgent) CreateNSR(ctx context.Context, projectID, nsdID string, body NSRBody) (*NSR, error) {
	newBody, err := jsonBody(body)
	if err != nil {
		return nil, err
	}
	data, err := a.do(ctx, request{
		method:      http.MethodPost,
		path:        "/ns-records/" + escape(nsdID),
		projectID:   projectID,
		contentType: "application/json",
		newBody:     newBody,
	})
	if err != nil {
		return nil, err
	}
	return ParseNSR(data)
}

// GetNSR fetches a service record.
func (a *RESTAgent) GetNSR(ctx context.Context, projectID, id string) (*NSR, error) {
	data, err := a.do(ctx, request{method: http.MethodGet, path: "/ns-records/" + escape(id), projectID: projectID})
	if err != nil {
		return nil, err
	}
	return ParseNSR(data)
}

// DeleteNSR deletes a service record.
func (a *RESTAgent) DeleteNSR(ctx context.Context, projectID, id string) error {
	return a.delete(ctx, projectID, "/ns-records/"+escape(id))
}
