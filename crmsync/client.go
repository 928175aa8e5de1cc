package crmsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/edumatic/school_backend/config"
)

// crmClient talks to the school CRM over its JSON-over-POST list
// endpoints. All outbound traffic is serialized through one throttle so
// the CRM's per-minute rate limit holds no matter how many feeds are
// fetched concurrently.
type crmClient struct {
	baseURL     string
	apiKey      string
	bearerToken string

	httpClient   *http.Client
	minInterval  time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	rateBackoff  time.Duration
	pageSize     int

	mu          sync.Mutex
	lastRequest time.Time

	// overridable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newCrmClient(cfg config.CrmConfig) *crmClient {
	return &crmClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		bearerToken:  cfg.BearerToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		minInterval:  cfg.RequestInterval,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: time.Second,
		rateBackoff:  2 * time.Second,
		pageSize:     cfg.PageSize,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// throttle blocks until at least minInterval has passed since the
// previous request started. The lock is held across the sleep so
// concurrent callers line up behind one clock.
func (c *crmClient) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := c.now().Sub(c.lastRequest); elapsed < c.minInterval {
		if err := c.sleep(ctx, c.minInterval-elapsed); err != nil {
			return err
		}
	}
	c.lastRequest = c.now()
	return nil
}

type crmEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// request POSTs a JSON body to the given endpoint and decodes the data
// field of the response envelope into out. Transient failures are
// retried with exponential backoff, HTTP 429 with a longer one. A
// success=false envelope counts as a failed attempt too.
//
// Every attempt passes the throttle, so retries count against the rate
// limit exactly like fresh calls and the next caller measures its gap
// from the last attempt actually dispatched.
func (c *crmClient) request(ctx context.Context, endpoint string, body map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("crm api %s: encode request: %w", endpoint, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		rateLimited := false

		if err := c.throttle(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("crm api %s: build request: %w", endpoint, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("crm api %s: %w", endpoint, err)
		} else {
			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("crm api %s: read response: %w", endpoint, readErr)
			case resp.StatusCode == http.StatusTooManyRequests:
				rateLimited = true
				lastErr = fmt.Errorf("crm api %s: rate limited (status 429)", endpoint)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				lastErr = fmt.Errorf("crm api %s: status %d", endpoint, resp.StatusCode)
			default:
				var env crmEnvelope
				if err := json.Unmarshal(respBody, &env); err != nil {
					lastErr = fmt.Errorf("crm api %s: decode response: %w", endpoint, err)
				} else if !env.Success {
					lastErr = fmt.Errorf("crm api %s: request rejected: %s", endpoint, env.Message)
				} else {
					if out == nil {
						return nil
					}
					if err := json.Unmarshal(env.Data, out); err != nil {
						return fmt.Errorf("crm api %s: decode data: %w", endpoint, err)
					}
					return nil
				}
			}
		}

		if attempt < c.maxAttempts {
			base := c.retryBackoff
			if rateLimited {
				base = c.rateBackoff
			}
			wait := time.Duration(1<<uint(attempt)) * base
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("crm api %s: giving up after %d attempts: %w", endpoint, c.maxAttempts, lastErr)
}

type pageFetch[T any] func(ctx context.Context, page int, perPage int) ([]T, CrmPagination, error)

// fetchAllPages walks an endpoint page by page, trusting the
// endpoint's own pagination metadata for the page count. Items fetched
// so far are returned alongside any error so the caller can still use
// the partial feed while treating it as incomplete.
func fetchAllPages[T any](ctx context.Context, fetch pageFetch[T], perPage int) ([]T, error) {
	var all []T
	page := 1
	totalPages := 1
	for page <= totalPages {
		items, pagination, err := fetch(ctx, page, perPage)
		if err != nil {
			return all, err
		}
		all = append(all, items...)
		if pagination.TotalPages > 0 {
			totalPages = pagination.TotalPages
		}
		page++
	}
	return all, nil
}

type studentsPage struct {
	Students   []CrmStudent  `json:"students"`
	Pagination CrmPagination `json:"pagination"`
}

type teachersPage struct {
	Teachers   []CrmTeacher  `json:"teachers"`
	Pagination CrmPagination `json:"pagination"`
}

type specialtiesPage struct {
	Specialties []CrmSpecialty `json:"specialties"`
	Pagination  CrmPagination  `json:"pagination"`
}

type groupsPage struct {
	Groups     []CrmGroup    `json:"groups"`
	Pagination CrmPagination `json:"pagination"`
}

func pageBody(page, perPage int, filters map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{"page": page, "per_page": perPage}
	for k, v := range filters {
		body[k] = v
	}
	return body
}

func (c *crmClient) FetchAllStudents(ctx context.Context, filters map[string]interface{}) ([]CrmStudent, error) {
	return fetchAllPages(ctx, func(ctx context.Context, page, perPage int) ([]CrmStudent, CrmPagination, error) {
		var data studentsPage
		if err := c.request(ctx, "/students-list", pageBody(page, perPage, filters), &data); err != nil {
			return nil, CrmPagination{}, err
		}
		return data.Students, data.Pagination, nil
	}, c.pageSize)
}

func (c *crmClient) FetchAllTeachers(ctx context.Context, filters map[string]interface{}) ([]CrmTeacher, error) {
	return fetchAllPages(ctx, func(ctx context.Context, page, perPage int) ([]CrmTeacher, CrmPagination, error) {
		var data teachersPage
		if err := c.request(ctx, "/teachers-list", pageBody(page, perPage, filters), &data); err != nil {
			return nil, CrmPagination{}, err
		}
		return data.Teachers, data.Pagination, nil
	}, c.pageSize)
}

func (c *crmClient) FetchAllSpecialties(ctx context.Context, filters map[string]interface{}) ([]CrmSpecialty, error) {
	return fetchAllPages(ctx, func(ctx context.Context, page, perPage int) ([]CrmSpecialty, CrmPagination, error) {
		var data specialtiesPage
		if err := c.request(ctx, "/specialty-list", pageBody(page, perPage, filters), &data); err != nil {
			return nil, CrmPagination{}, err
		}
		return data.Specialties, data.Pagination, nil
	}, c.pageSize)
}

func (c *crmClient) FetchAllGroups(ctx context.Context, filters map[string]interface{}) ([]CrmGroup, error) {
	return fetchAllPages(ctx, func(ctx context.Context, page, perPage int) ([]CrmGroup, CrmPagination, error) {
		var data groupsPage
		if err := c.request(ctx, "/groups-list", pageBody(page, perPage, filters), &data); err != nil {
			return nil, CrmPagination{}, err
		}
		return data.Groups, data.Pagination, nil
	}, c.pageSize)
}
