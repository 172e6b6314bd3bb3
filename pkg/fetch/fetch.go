package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aarondl/opt/null"
	json "github.com/goccy/go-json"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

// DefaultPageSize is the number of records requested per round-trip.
const DefaultPageSize = 500

// Client fetches historical telemetry from the manager's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	channel    string
	token      string
	pageSize   int
	log        *log.Logger
}

type Option func(c *Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithPageSize(pageSize int) Option {
	return func(c *Client) {
		if pageSize > 0 {
			c.pageSize = pageSize
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

func NewClient(baseURL, channel string, opts ...Option) *Client {
	ret := &Client{
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
		channel:    channel,
		pageSize:   DefaultPageSize,
		log:        log.Default().Named("fetch"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// FetchRange loads all records from start (inclusive) to the optional end,
// paging through the API until a page comes back short.
func (c *Client) FetchRange(ctx context.Context, start int64, end null.Val[int64]) (
	[]model.RawRecord, error,
) {
	ret := make([]model.RawRecord, 0)
	for page := 1; ; page++ {
		records, err := c.fetchPage(ctx, start, end, page)
		if err != nil {
			return nil, err
		}
		ret = append(ret, records...)
		if len(records) < c.pageSize {
			break
		}
	}
	c.log.Debug("range loaded",
		log.Int64("start", start), log.Int("count", len(ret)))
	return ret, nil
}

func (c *Client) fetchPage(ctx context.Context, start int64, end null.Val[int64], page int) (
	[]model.RawRecord, error,
) {
	params := url.Values{}
	params.Set("start", strconv.FormatInt(start, 10))
	if endTS := end.GetOrZero(); endTS > 0 {
		params.Set("end", strconv.FormatInt(endTS, 10))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(c.pageSize))

	var ret []model.RawRecord
	if err := c.getJSON(ctx, c.endpoint("history")+"?"+params.Encode(), &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Days returns the calendar days for which history exists.
func (c *Client) Days(ctx context.Context) ([]string, error) {
	var ret []string
	if err := c.getJSON(ctx, c.endpoint("days"), &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Latest returns the newest archived record, nil if the channel is empty.
func (c *Client) Latest(ctx context.Context) (model.RawRecord, error) {
	var ret model.RawRecord
	err := c.getJSON(ctx, c.endpoint("latest"), &ret)
	switch {
	case err == nil:
		return ret, nil
	case errors.Is(err, ErrNoData):
		return nil, nil
	default:
		return nil, err
	}
}

func (c *Client) endpoint(suffix string) string {
	return fmt.Sprintf("%s/api/v1/channels/%s/%s",
		c.baseURL, url.PathEscape(c.channel), suffix)
}

func (c *Client) getJSON(ctx context.Context, reqURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", reqURL, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrNoData signals that the channel holds no matching records.
var ErrNoData = errors.New("no data")
