// Package fetcher downloads forecast export files (archive CSVs, ERA5 NetCDF
// bundles) over HTTP and FTP with per-host rate limiting, retries, and a
// circuit breaker per host.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body. The caller
	// owns the returned reader.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path, returning the
	// bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Client routes downloads by URL scheme to the HTTP or FTP fetcher.
type Client struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewClient builds a scheme-routing client sharing one HTTP fetcher.
func NewClient(httpOpts HTTPOptions, ftpOpts FTPOptions) *Client {
	return &Client{
		http: NewHTTPFetcher(httpOpts),
		ftp:  NewFTPFetcher(ftpOpts),
	}
}

func (c *Client) forURL(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return c.http, nil
	case "ftp":
		return c.ftp, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Download fetches the URL with the fetcher matching its scheme.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := c.forURL(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile fetches the URL into path with the fetcher matching its
// scheme.
func (c *Client) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	f, err := c.forURL(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// FileName derives a local file name from the URL path; "download" when the
// path is empty.
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}
