package cartsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrStale is returned by a push whose version token no longer matches the server.
var ErrStale = errors.New("cartsync: server copy changed since last fetch")

// Snapshot is a server list with its version token.
type Snapshot struct {
	Items   []Item
	Version int64
}

// List names one of the synced lists.
type List string

const (
	ListCart     List = "cart"
	ListWishlist List = "wishlist"
)

// Remote talks to the server copy of the signed-in user's lists.
type Remote interface {
	Fetch(ctx context.Context, list List) (Snapshot, error)
	// Push replaces the server list when version still matches, returning the new version.
	// A mismatch yields ErrStale.
	Push(ctx context.Context, list List, items []Item, version int64) (int64, error)
}

// HTTPRemote calls GET/POST /api/v1/{cart,wishlist}. Bodies are bare item
// arrays; the version is read from the ETag response header.
type HTTPRemote struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
}

// NewHTTPRemote builds a remote for baseURL. token supplies the bearer token per call.
func NewHTTPRemote(baseURL string, token func() string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemote) Fetch(ctx context.Context, list List) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(list), nil)
	if err != nil {
		return Snapshot{}, err
	}
	return r.do(req)
}

func (r *HTTPRemote) Push(ctx context.Context, list List, items []Item, version int64) (int64, error) {
	if items == nil {
		items = []Item{}
	}
	body, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", list, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url(list), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(version, 10)))
	snap, err := r.do(req)
	if err != nil {
		return 0, err
	}
	return snap.Version, nil
}

func (r *HTTPRemote) url(list List) string {
	return r.baseURL + "/api/v1/" + string(list)
}

func (r *HTTPRemote) do(req *http.Request) (Snapshot, error) {
	if r.token != nil {
		if tok := r.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPreconditionFailed {
		io.Copy(io.Discard, resp.Body)
		return Snapshot{}, ErrStale
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	version, ok := parseETag(resp.Header.Get("ETag"))
	if !ok {
		io.Copy(io.Discard, resp.Body)
		return Snapshot{}, fmt.Errorf("%s %s: missing or invalid ETag", req.Method, req.URL.Path)
	}
	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return Snapshot{Items: items, Version: version}, nil
}

func parseETag(tag string) (int64, bool) {
	tag = strings.Trim(strings.TrimPrefix(strings.TrimSpace(tag), "W/"), `"`)
	if tag == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(tag, 10, 64)
	return v, err == nil
}
