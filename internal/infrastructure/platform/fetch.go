package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrTooManyPages is returned when a paginated fetch hits the configured
// page ceiling before the platform signals the end.
var ErrTooManyPages = errors.New("platform: pagination exceeded page ceiling")

// graphqlOnly lists resources the platform has deprecated on REST. Fetches
// for these transparently go through GraphQL with the same cursor contract.
var graphqlOnly = map[string]bool{
	"orders": true,
}

// Fetcher is a lazy, restartable, cursor-based record sequence. It holds at
// most one page in memory at a time; callers consume records through Each
// and the page is discarded before the next one is requested.
type Fetcher struct {
	client   *Client
	creds    Credentials
	resource string
	filter   url.Values
	pageSize int

	cursor string
	done   bool
}

// Fetch starts a paginated read of a resource. The filter applies to the
// first page; subsequent pages are addressed by cursor alone, as the
// platform requires.
func (c *Client) Fetch(creds Credentials, resource string, filter url.Values) *Fetcher {
	return &Fetcher{
		client:   c,
		creds:    creds,
		resource: resource,
		filter:   filter,
		pageSize: c.cfg.PageSize,
	}
}

// WithPageSize overrides the configured page size for this sequence.
func (f *Fetcher) WithPageSize(n int) *Fetcher {
	if n > 0 {
		f.pageSize = n
	}
	return f
}

// Restart rewinds the sequence to the first page.
func (f *Fetcher) Restart() {
	f.cursor = ""
	f.done = false
}

// Resume positions the sequence at a cursor returned by an earlier page.
func (f *Fetcher) Resume(cursor string) *Fetcher {
	f.cursor = cursor
	f.done = false
	return f
}

// Cursor returns the cursor addressing the next unread page, or "" when the
// sequence is exhausted.
func (f *Fetcher) Cursor() string {
	return f.cursor
}

// Page fetches the next page and reports whether more pages remain. Callers
// that hand platform paging through to their own clients use Page; bulk
// consumers stream with Each.
func (f *Fetcher) Page(ctx context.Context) ([]json.RawMessage, bool, error) {
	if f.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	records, next, err := f.fetchPage(ctx)
	if err != nil {
		return nil, false, err
	}

	// A short page or a missing cursor both end the sequence.
	if next == "" || len(records) < f.pageSize {
		f.done = true
	}
	f.cursor = next
	return records, !f.done, nil
}

// Each streams every record through fn, one page at a time. Memory stays
// proportional to the page size regardless of the total count. Iteration
// stops early when fn returns an error, when the context is done, or when
// the page ceiling is hit.
func (f *Fetcher) Each(ctx context.Context, fn func(record json.RawMessage) error) error {
	for page := 0; !f.done; page++ {
		if page >= f.client.cfg.MaxPages {
			return ErrTooManyPages
		}

		records, _, err := f.Page(ctx)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := fn(record); err != nil {
				return err
			}
		}
	}
	return nil
}

// Collect drains the sequence into a slice. Only for callers that know the
// result is small; everything else should stream with Each.
func (f *Fetcher) Collect(ctx context.Context) ([]json.RawMessage, error) {
	var records []json.RawMessage
	err := f.Each(ctx, func(record json.RawMessage) error {
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// fetchPage retrieves one page over whichever protocol serves the resource.
func (f *Fetcher) fetchPage(ctx context.Context) ([]json.RawMessage, string, error) {
	if graphqlOnly[f.resource] {
		return f.client.graphqlPage(ctx, f.creds, f.resource, f.filter, f.pageSize, f.cursor)
	}
	return f.restPage(ctx)
}

func (f *Fetcher) restPage(ctx context.Context) ([]json.RawMessage, string, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(f.pageSize))
	if f.cursor != "" {
		query.Set("page_info", f.cursor)
	} else {
		for key, values := range f.filter {
			for _, value := range values {
				query.Add(key, value)
			}
		}
	}

	body, header, err := f.client.Get(ctx, f.creds, f.resource+".json", query)
	if err != nil {
		return nil, "", err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", fmt.Errorf("platform: failed to parse %s page: %w", f.resource, err)
	}

	var records []json.RawMessage
	if raw, ok := envelope[f.resource]; ok {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, "", fmt.Errorf("platform: failed to parse %s records: %w", f.resource, err)
		}
	}

	return records, nextPageCursor(header.Get("Link")), nil
}

// nextPageCursor extracts the page_info cursor from a Link header of the
// form `<https://...page_info=abc>; rel="next"`, possibly alongside a
// previous-page link.
func nextPageCursor(linkHeader string) string {
	for _, link := range strings.Split(linkHeader, ",") {
		if !strings.Contains(link, `rel="next"`) {
			continue
		}
		start := strings.Index(link, "<")
		end := strings.Index(link, ">")
		if start < 0 || end < 0 || end <= start {
			return ""
		}
		parsed, err := url.Parse(link[start+1 : end])
		if err != nil {
			return ""
		}
		return parsed.Query().Get("page_info")
	}
	return ""
}
