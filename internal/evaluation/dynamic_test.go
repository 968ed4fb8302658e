package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-appgrader/pkg/browser"
)

type stubBrowser struct {
	render func(page browser.PageRequest) browser.Snapshot
	err    error
	pages  []browser.PageRequest
}

func (s *stubBrowser) Visit(_ context.Context, pages []browser.PageRequest) ([]browser.Snapshot, error) {
	s.pages = append(s.pages, pages...)
	if s.err != nil {
		return nil, s.err
	}
	snapshots := make([]browser.Snapshot, 0, len(pages))
	for _, page := range pages {
		snapshots = append(snapshots, s.render(page))
	}
	return snapshots, nil
}

func longText() string {
	return strings.Repeat("Forecast data for your city. ", 3)
}

func TestDynamicCheckWeatherEcho(t *testing.T) {
	stub := &stubBrowser{render: func(page browser.PageRequest) browser.Snapshot {
		body := longText()
		if strings.Contains(page.URL, "city=London") {
			body += " Weather in London"
		}
		return browser.Snapshot{URL: page.URL, Title: "Weather", BodyText: body}
	}}

	outcome := NewDynamicCheck(stub, DefaultProbes()).Run(context.Background(), "https://student.github.io/app/", "weather-dashboard-1a2b3")
	require.Equal(t, 1.0, outcome.Score)
	require.Contains(t, outcome.Reason, "city parameter handling")
	require.Len(t, stub.pages, 2)
	require.Equal(t, "https://student.github.io/app/?city=London", stub.pages[1].URL)
}

func TestDynamicCheckTodoControls(t *testing.T) {
	stub := &stubBrowser{render: func(page browser.PageRequest) browser.Snapshot {
		return browser.Snapshot{Title: "", BodyText: "tiny", Counts: map[string]int{"input": 1, "button": 2}}
	}}

	outcome := NewDynamicCheck(stub, nil).Run(context.Background(), "https://student.github.io/todo/", "todo-manager-abcde")
	require.Equal(t, 0.4, outcome.Score)
	require.Len(t, stub.pages, 1)
	require.Equal(t, []string{"input", "button"}, stub.pages[0].Selectors)
}

func TestDynamicCheckIsMonotonicInSubProbes(t *testing.T) {
	cases := []struct {
		name    string
		title   string
		body    string
		echo    bool
		expects float64
	}{
		{"nothing", "", "", false, 0},
		{"title", "Captcha", "", false, 0.3},
		{"title and content", "Captcha", longText(), false, 0.6},
		{"everything", "Captcha", longText(), true, 1.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubBrowser{render: func(page browser.PageRequest) browser.Snapshot {
				body := tc.body
				if tc.echo && strings.Contains(page.URL, "url=test") {
					body += " test"
				}
				return browser.Snapshot{Title: tc.title, BodyText: body}
			}}
			outcome := NewDynamicCheck(stub, nil).Run(context.Background(), "https://x.github.io/c/", "captcha-solver-00aa1")
			require.Equal(t, tc.expects, outcome.Score)
		})
	}
}

func TestDynamicCheckUnknownFamilyScoresBasics(t *testing.T) {
	stub := &stubBrowser{render: func(browser.PageRequest) browser.Snapshot {
		return browser.Snapshot{Title: "App", BodyText: longText()}
	}}

	outcome := NewDynamicCheck(stub, nil).Run(context.Background(), "https://x.github.io/a/", "spreadsheet-12345")
	require.Equal(t, 0.6, outcome.Score)
	require.Len(t, stub.pages, 1)
}

func TestDynamicCheckRegistryIsExtensible(t *testing.T) {
	registry := NewProbeRegistry()
	registry.Register("markdown-editor", ControlsProbe("editor present", "textarea"))

	stub := &stubBrowser{render: func(browser.PageRequest) browser.Snapshot {
		return browser.Snapshot{Counts: map[string]int{"textarea": 1}}
	}}
	outcome := NewDynamicCheck(stub, registry).Run(context.Background(), "https://x.github.io/m/", "markdown-editor-fffff")
	require.Equal(t, 0.4, outcome.Score)
}

func TestDynamicCheckDegradesOnBrowserFaults(t *testing.T) {
	outcome := NewDynamicCheck(nil, nil).Run(context.Background(), "https://x.github.io/a/", "todo-manager-abcde")
	require.Equal(t, NeutralScore, outcome.Score)

	stub := &stubBrowser{err: errors.New("chrome crashed")}
	outcome = NewDynamicCheck(stub, nil).Run(context.Background(), "https://x.github.io/a/", "todo-manager-abcde")
	require.Equal(t, 0.0, outcome.Score)
	require.Contains(t, outcome.Logs, "chrome crashed")
}
