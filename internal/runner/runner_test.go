package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webqa/internal/types"
)

func TestRegistryCoversAllTestTypes(t *testing.T) {
	r := NewRegistry()
	for _, tt := range []types.TestType{
		types.TestTypeUIAgent, types.TestTypeUX, types.TestTypeButton,
		types.TestTypeBasicCheck, types.TestTypePerformance, types.TestTypeSecurity,
	} {
		runner, err := r.For(tt)
		require.NoError(t, err, "type %s", tt)
		assert.NotNil(t, runner)
	}

	_, err := r.For(types.TestType("made_up"))
	assert.Error(t, err)
	assert.Len(t, r.Types(), 6)
}

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
		<a href="/about">About</a>
		<a href="https://other.example.org/page">External</a>
		<a href="/about">Duplicate</a>
		<a href="#section">Anchor</a>
		<a href="javascript:void(0)">JS</a>
		<a href="mailto:hi@example.com">Mail</a>
		<a href="/contact">Contact</a>
	</body></html>`

	links := ExtractLinks(html, "https://example.com", 10)
	assert.Equal(t, []string{
		"https://example.com/about",
		"https://other.example.org/page",
		"https://example.com/contact",
	}, links)
}

func TestExtractLinksHonorsLimit(t *testing.T) {
	html := `<body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body>`
	links := ExtractLinks(html, "https://example.com", 2)
	assert.Len(t, links, 2)
}

func TestProbeOutcomeStatus(t *testing.T) {
	assert.Equal(t, types.StatusPassed, probeOutcome{StatusCode: 200}.status())
	assert.Equal(t, types.StatusFailed, probeOutcome{StatusCode: 404}.status())
	assert.Equal(t, types.StatusFailed, probeOutcome{Err: context.DeadlineExceeded}.status())
	assert.Equal(t, types.StatusFailed,
		probeOutcome{StatusCode: 200, CertExpiry: time.Now().Add(-time.Hour)}.status())
	assert.Equal(t, types.StatusWarning,
		probeOutcome{StatusCode: 200, CertExpiry: time.Now().Add(5 * 24 * time.Hour)}.status())
	assert.Equal(t, types.StatusPassed,
		probeOutcome{StatusCode: 200, CertExpiry: time.Now().Add(365 * 24 * time.Hour)}.status())
}

func TestProbeAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: time.Second}
	outcome := probe(context.Background(), client, srv.URL)
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
	assert.Equal(t, types.StatusPassed, outcome.status())

	outcome = probe(context.Background(), client, srv.URL+"/missing")
	assert.Equal(t, types.StatusFailed, outcome.status())

	outcome = probe(context.Background(), client, "http://127.0.0.1:1/unreachable")
	assert.Error(t, outcome.Err)
}

func TestProbeCapturesTLSExpiry(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outcome := probe(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, outcome.Err)
	assert.False(t, outcome.CertExpiry.IsZero())
}

func TestExternalRunnersSkipWithoutTools(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	cfg := &types.TestConfiguration{TestID: "perf1", TestType: types.TestTypePerformance, TestName: "perf"}
	res := (&LighthouseRunner{}).Run(context.Background(), Input{Config: cfg, TargetURL: "https://example.com"})
	assert.Equal(t, types.StatusIncompleted, res.Status)
	assert.Contains(t, res.ErrorMessage, "not installed")

	cfg = &types.TestConfiguration{TestID: "sec1", TestType: types.TestTypeSecurity, TestName: "sec"}
	res = (&SecurityRunner{}).Run(context.Background(), Input{Config: cfg, TargetURL: "https://example.com"})
	assert.Equal(t, types.StatusIncompleted, res.Status)
}

func TestParseNucleiFindings(t *testing.T) {
	out := []byte(`{"info":{"name":"Exposed .git","severity":"high"},"matched-at":"https://example.com/.git"}
not json
{"info":{"name":"Missing CSP","severity":"medium"},"matched-at":"https://example.com"}`)

	findings := parseNucleiFindings(out)
	require.Len(t, findings, 2)
	assert.Contains(t, findings[0], "[high] Exposed .git")
	assert.Contains(t, findings[1], "Missing CSP")
}

func TestRunnersFailFastWithoutSession(t *testing.T) {
	cfg := &types.TestConfiguration{TestID: "t1", TestType: types.TestTypeUX, TestName: "ux"}
	res := (&UXRunner{}).Run(context.Background(), Input{Config: cfg})
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "browser session")

	cfg = &types.TestConfiguration{TestID: "t2", TestType: types.TestTypeUIAgent, TestName: "agent"}
	res = (&UIAgentRunner{}).Run(context.Background(), Input{Config: cfg})
	assert.Equal(t, types.StatusFailed, res.Status)

	cfg = &types.TestConfiguration{TestID: "t3", TestType: types.TestTypeButton, TestName: "btn"}
	res = (&ButtonRunner{}).Run(context.Background(), Input{Config: cfg})
	assert.Equal(t, types.StatusFailed, res.Status)
}

func TestFirstCharsCutsOnRuneBoundaries(t *testing.T) {
	long := strings.Repeat("错误提示文案", 10) // 60 runes, 180 bytes
	got := firstChars(long, 40)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("错误提示文案", 6)+"错误提示"+"…", got)

	short := "保存成功"
	assert.Equal(t, short, firstChars(short, 40))
}
