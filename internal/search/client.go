// Package search wraps the Elasticsearch cluster that stores SQL Server
// collector output.
//
// Build one Client per request from the current config snapshot:
//
//	cli, err := search.New(mgr.Get().Search)
//	waits, err := search.NewService(cli).LatestWaits(ctx, "SQL01", 50)
//
// The client speaks the Lucene `q` query syntax only; sqlscope never sends
// DSL bodies.
package search

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/yanizio/sqlscope/internal/config"
	"github.com/yanizio/sqlscope/internal/metrics"
)

const compatMediaType = "application/vnd.elasticsearch+json; compatible-with="

// Document is one `_source` object.
type Document = map[string]any

// Client runs searches against the metrics and logs index patterns.
type Client struct {
	es       *elasticsearch.Client
	settings config.SearchSettings
	timeout  time.Duration
}

// CompatibilityHeader returns the versioned media-type headers for version
// v, or nil when v < 1.
func CompatibilityHeader(v int) http.Header {
	if v < 1 {
		return nil
	}
	mt := compatMediaType + strconv.Itoa(v)
	h := http.Header{}
	h.Set("Accept", mt)
	h.Set("Content-Type", mt)
	return h
}

// New builds a Client from s.  Basic auth is sent only when both username
// and password are set.  The CA file is ignored in insecure mode.
func New(s config.SearchSettings) (*Client, error) {
	tr, err := transport(s)
	if err != nil {
		return nil, err
	}

	cfg := elasticsearch.Config{
		Addresses: []string{s.URL},
		Transport: tr,
		Header:    CompatibilityHeader(s.CompatibilityVersion),
	}
	if s.Username != "" && s.Password != "" {
		cfg.Username = s.Username
		cfg.Password = s.Password
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	zap.S().Debugw("elasticsearch client ready",
		"url", s.URL,
		"basic_auth", cfg.Username != "",
		"insecure", s.Insecure,
		"ca_cert", s.CACert != "" && !s.Insecure,
		"compatibility_version", s.CompatibilityVersion,
	)
	return &Client{
		es:       es,
		settings: s,
		timeout:  time.Duration(s.RequestTimeout) * time.Second,
	}, nil
}

func transport(s config.SearchSettings) (*http.Transport, error) {
	tr := cleanhttp.DefaultPooledTransport()
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	switch {
	case s.Insecure:
		tlsCfg.InsecureSkipVerify = true
	case s.CACert != "":
		pem, err := os.ReadFile(s.CACert)
		if err != nil {
			return nil, fmt.Errorf("read ca_cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca_cert %s: no PEM certificates found", s.CACert)
		}
		tlsCfg.RootCAs = pool
	}
	tr.TLSClientConfig = tlsCfg
	return tr, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// RawSearch runs a `q` query against index and returns the `_source` of
// every hit.
func (c *Client) RawSearch(ctx context.Context, index, query string, size int) (docs []Document, err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues("elasticsearch", metrics.Result(err)).
			Observe(time.Since(start).Seconds())
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	zap.S().Debugw("elasticsearch search", "index", index, "query", query, "size", size)
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithQuery(query),
		c.es.Search.WithSize(size),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("search %s: %s: %s", index, res.Status(), body)
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	docs = make([]Document, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, nil
}

// FetchMetrics searches the metrics index pattern.
func (c *Client) FetchMetrics(ctx context.Context, query string, size int) ([]Document, error) {
	return c.RawSearch(ctx, c.settings.MetricsIndex, query, size)
}

// FetchLogs searches the logs index pattern.
func (c *Client) FetchLogs(ctx context.Context, query string, size int) ([]Document, error) {
	return c.RawSearch(ctx, c.settings.LogsIndex, query, size)
}
