package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webqa/internal/types"
)

// BasicCheckRunner probes the reachability of the page and its outgoing
// links: HTTP status plus certificate expiry on HTTPS endpoints.
type BasicCheckRunner struct{}

const (
	maxSubLinks      = 10
	probeConcurrency = 5
	probeTimeout     = 10 * time.Second
	certExpiryWarn   = 30 * 24 * time.Hour
)

type probeOutcome struct {
	URL        string
	StatusCode int
	Err        error
	CertExpiry time.Time
}

func (p probeOutcome) status() types.TestStatus {
	switch {
	case p.Err != nil:
		return types.StatusFailed
	case p.StatusCode >= 400:
		return types.StatusFailed
	case !p.CertExpiry.IsZero() && time.Until(p.CertExpiry) < 0:
		return types.StatusFailed
	case !p.CertExpiry.IsZero() && time.Until(p.CertExpiry) < certExpiryWarn:
		return types.StatusWarning
	default:
		return types.StatusPassed
	}
}

func (p probeOutcome) summary() string {
	switch {
	case p.Err != nil:
		return fmt.Sprintf("request failed: %v", p.Err)
	case p.StatusCode >= 400:
		return fmt.Sprintf("HTTP %d", p.StatusCode)
	case !p.CertExpiry.IsZero() && time.Until(p.CertExpiry) < 0:
		return fmt.Sprintf("certificate expired %s", p.CertExpiry.Format("2006-01-02"))
	case !p.CertExpiry.IsZero() && time.Until(p.CertExpiry) < certExpiryWarn:
		return fmt.Sprintf("certificate expires %s", p.CertExpiry.Format("2006-01-02"))
	default:
		return fmt.Sprintf("HTTP %d", p.StatusCode)
	}
}

func (r *BasicCheckRunner) Run(ctx context.Context, in Input) *types.TestResult {
	if in.Session == nil {
		return failedResult(in.Config, fmt.Errorf("basic check requires a browser session"))
	}
	logger := in.logger()
	result := newResult(in.Config)

	html, err := in.Session.Page().HTML()
	if err != nil {
		return failedResult(in.Config, fmt.Errorf("read page html: %w", err))
	}
	links := ExtractLinks(html, in.TargetURL, maxSubLinks)
	targets := append([]string{in.TargetURL}, links...)

	outcomes := make([]probeOutcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	client := &http.Client{Timeout: probeTimeout}
	for i, target := range targets {
		g.Go(func() error {
			outcomes[i] = probe(gctx, client, target)
			return nil
		})
	}
	_ = g.Wait()

	for i, outcome := range outcomes {
		name := "主链接"
		if i > 0 {
			name = fmt.Sprintf("子链接 %d", i)
		}
		status := outcome.status()
		sub := types.SubTestResult{
			Name:         fmt.Sprintf("%s %s", name, outcome.URL),
			Status:       status,
			FinalSummary: outcome.summary(),
		}
		if status != types.StatusPassed {
			sub.Report = []types.ReportEntry{{Title: "可访问性", Issues: []string{outcome.summary()}}}
			logger.Warn("link probe not clean",
				zap.String("url", outcome.URL),
				zap.String("status", string(status)),
				zap.String("detail", outcome.summary()))
		}
		result.SubTests = append(result.SubTests, sub)
	}

	result.Metrics = map[string]interface{}{
		"links_checked": len(targets),
	}
	result.Finish(result.DeriveStatus())
	return result
}

// ExtractLinks pulls absolute same-document-origin-or-external hrefs out of
// the page HTML, deduplicated and capped.
func ExtractLinks(html, baseURL string, limit int) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	seen := map[string]bool{}
	var out []string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return true
		}
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return true
		}
		u.Fragment = ""
		abs := u.String()
		if seen[abs] || abs == baseURL {
			return true
		}
		seen[abs] = true
		out = append(out, abs)
		return len(out) < limit
	})
	return out
}

func probe(ctx context.Context, client *http.Client, target string) probeOutcome {
	outcome := probeOutcome{URL: target}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	resp, err := client.Do(req)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		outcome.CertExpiry = resp.TLS.PeerCertificates[0].NotAfter
	}
	return outcome
}
