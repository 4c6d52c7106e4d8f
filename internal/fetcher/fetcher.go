// Package fetcher resolves evidence sources (local files, HTTP/HTTPS, FTP)
// and decodes the raw fact records they carry (JSON, CSV).
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/model"
)

// Loader resolves evidence references into raw facts.
type Loader struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewLoader builds a loader from the evidence settings.
func NewLoader(cfg config.EvidenceConfig) *Loader {
	return &Loader{
		http: NewHTTPFetcher(HTTPOptions{
			Timeout:    time.Duration(cfg.HTTPTimeoutSecs) * time.Second,
			MaxRetries: cfg.HTTPMaxRetries,
			RateLimit:  cfg.HTTPRateLimit,
		}),
		ftp: NewFTPFetcher(FTPOptions{
			Timeout: time.Duration(cfg.FTPTimeoutSecs) * time.Second,
		}),
	}
}

// Load resolves every reference in order and concatenates the decoded facts.
// Fact order follows reference order, which downstream fact ids depend on.
func (l *Loader) Load(ctx context.Context, refs []string) ([]model.RawFact, error) {
	var out []model.RawFact
	for _, ref := range refs {
		facts, err := l.loadOne(ctx, ref)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: load %s", ref)
		}
		zap.L().Debug("fetcher: evidence loaded",
			zap.String("ref", ref),
			zap.Int("facts", len(facts)),
		)
		out = append(out, facts...)
	}
	return out, nil
}

func (l *Loader) loadOne(ctx context.Context, ref string) ([]model.RawFact, error) {
	rc, err := l.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	switch strings.ToLower(path.Ext(refPath(ref))) {
	case ".json":
		return DecodeJSON(rc, ref)
	case ".csv":
		return DecodeCSV(rc, ref)
	default:
		return nil, eris.Errorf("unsupported evidence format %q", path.Ext(ref))
	}
}

func (l *Loader) open(ctx context.Context, ref string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.http.Download(ctx, ref)
	case strings.HasPrefix(ref, "ftp://"):
		return l.ftp.Download(ctx, ref)
	default:
		f, err := os.Open(ref)
		if err != nil {
			return nil, eris.Wrap(err, "open evidence file")
		}
		return f, nil
	}
}

// refPath strips any URL query so extension sniffing sees the path alone.
func refPath(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return u.Path
	}
	return ref
}
