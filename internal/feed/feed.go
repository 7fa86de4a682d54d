// Package feed fetches the launch countdown feed: a compressed JSON object
// keyed by mission ID.
package feed

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "marquee/pkg/logx"
)

// DefaultURL is the public upcoming-missions document.
const DefaultURL = "https://sxcontent9668.azureedge.us/cms-assets/future_missions.json"

// maxBody bounds the decompressed document.
const maxBody = 8 << 20

var ErrNoMissions = errors.New("feed has no missions")

type Mission struct {
	ID     string    `json:"id"`
	Order  float64   `json:"order"`
	TZero  time.Time `json:"t_zero"`
	Paused bool      `json:"paused"`
}

type rawMission struct {
	Order           float64 `json:"Order"`
	TZeroPaused     bool    `json:"TZeroPaused"`
	TZeroLaunchDate struct {
		Seconds int64 `json:"Seconds"`
	} `json:"TZeroLaunchDate"`
}

type Client struct {
	url  string
	http *http.Client
	log  logx.Logger
}

func New(url string, timeout time.Duration, log logx.Logger) *Client {
	if strings.TrimSpace(url) == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}, log: log}
}

// Fetch downloads and decodes every mission in the feed.
func (c *Client) Fetch(ctx context.Context) (map[string]Mission, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("feed fetch: http=%d", resp.StatusCode)
	}

	body, err := decompress(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed decompress: %w", err)
	}
	defer body.Close()

	var raw map[string]rawMission
	if err := json.NewDecoder(io.LimitReader(body, maxBody)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("feed decode: %w", err)
	}

	out := make(map[string]Mission, len(raw))
	for id, m := range raw {
		out[id] = Mission{
			ID:     id,
			Order:  m.Order,
			TZero:  time.Unix(m.TZeroLaunchDate.Seconds, 0),
			Paused: m.TZeroPaused,
		}
	}
	c.log.Debug("feed fetched", logx.Int("missions", len(out)))
	return out, nil
}

// Next fetches the feed and returns the mission with the lowest Order.
func (c *Client) Next(ctx context.Context) (Mission, error) {
	ms, err := c.Fetch(ctx)
	if err != nil {
		return Mission{}, err
	}
	return Pick(ms)
}

// Mission fetches the feed and returns the mission with the given ID.
func (c *Client) Mission(ctx context.Context, id string) (Mission, error) {
	ms, err := c.Fetch(ctx)
	if err != nil {
		return Mission{}, err
	}
	m, ok := ms[id]
	if !ok {
		return Mission{}, fmt.Errorf("mission %q: %w", id, ErrNoMissions)
	}
	return m, nil
}

// Pick returns the mission with the lowest Order, ties broken by ID.
func Pick(ms map[string]Mission) (Mission, error) {
	var (
		best  Mission
		found bool
	)
	for _, m := range ms {
		if !found || m.Order < best.Order || (m.Order == best.Order && m.ID < best.ID) {
			best, found = m, true
		}
	}
	if !found {
		return Mission{}, ErrNoMissions
	}
	return best, nil
}

// decompress sniffs gzip and zlib headers and falls back to raw deflate.
func decompress(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	hdr, _ := br.Peek(2)

	switch {
	case len(hdr) == 2 && hdr[0] == 0x1f && hdr[1] == 0x8b:
		return gzip.NewReader(br)
	case len(hdr) == 2 && hdr[0]&0x0f == 8 && (uint16(hdr[0])<<8|uint16(hdr[1]))%31 == 0:
		return zlib.NewReader(br)
	case len(hdr) > 0 && (hdr[0] == '{' || hdr[0] == '['):
		return io.NopCloser(br), nil
	default:
		return flate.NewReader(br), nil
	}
}

// Compress deflates b in the feed's raw format. Used to serve fixtures.
func Compress(b []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestCompression)
	_, _ = w.Write(b)
	_ = w.Close()
	return buf.Bytes()
}
