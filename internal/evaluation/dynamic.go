package evaluation

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/noah-isme/gema-appgrader/internal/catalog"
	"github.com/noah-isme/gema-appgrader/pkg/browser"
)

const (
	titleCredit   = 0.3
	contentCredit = 0.3
	probeCredit   = 0.4
	minBodyLength = 50
)

// Browser renders pages in a single session per call.
type Browser interface {
	Visit(ctx context.Context, pages []browser.PageRequest) ([]browser.Snapshot, error)
}

// Probe is a family-specific behaviour test. When Query is set the page is loaded a
// second time with those parameters and Passed sees that snapshot.
type Probe struct {
	Name      string
	Query     url.Values
	Selectors []string
	Passed    func(snapshot browser.Snapshot) bool
}

// ProbeRegistry maps task family ids to probes.
type ProbeRegistry struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewProbeRegistry returns an empty registry.
func NewProbeRegistry() *ProbeRegistry {
	return &ProbeRegistry{probes: make(map[string]Probe)}
}

// Register binds probe to family, replacing any previous binding.
func (r *ProbeRegistry) Register(family string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[family] = probe
}

// Lookup finds the probe for family.
func (r *ProbeRegistry) Lookup(family string) (Probe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	probe, ok := r.probes[family]
	return probe, ok
}

// DefaultProbes registers the behaviour probes for the bundled task families.
func DefaultProbes() *ProbeRegistry {
	registry := NewProbeRegistry()
	registry.Register("captcha-solver", EchoProbe("URL parameter handling", "url", "test"))
	registry.Register("weather-dashboard", EchoProbe("city parameter handling", "city", "London"))
	registry.Register("todo-manager", ControlsProbe("todo interface elements", "input", "button"))
	return registry
}

// EchoProbe passes when value given as query parameter key shows up in the page text.
func EchoProbe(name, key, value string) Probe {
	return Probe{
		Name:  name,
		Query: url.Values{key: []string{value}},
		Passed: func(snapshot browser.Snapshot) bool {
			return strings.Contains(strings.ToLower(snapshot.BodyText), strings.ToLower(value))
		},
	}
}

// ControlsProbe passes when every selector matches at least one element.
func ControlsProbe(name string, selectors ...string) Probe {
	return Probe{
		Name:      name,
		Selectors: selectors,
		Passed: func(snapshot browser.Snapshot) bool {
			for _, selector := range selectors {
				if snapshot.Counts[selector] == 0 {
					return false
				}
			}
			return true
		},
	}
}

// DynamicCheck drives a browser against the deployed page.
type DynamicCheck struct {
	browser Browser
	probes  *ProbeRegistry
}

// NewDynamicCheck builds the check. A nil browser yields a neutral score.
func NewDynamicCheck(b Browser, probes *ProbeRegistry) *DynamicCheck {
	if probes == nil {
		probes = DefaultProbes()
	}
	return &DynamicCheck{browser: b, probes: probes}
}

// Run scores title, content and the family probe for taskID.
func (c *DynamicCheck) Run(ctx context.Context, pagesURL, taskID string) Outcome {
	if c.browser == nil {
		return Outcome{Name: CheckDynamic, Score: NeutralScore, Reason: "browser not available for dynamic checks"}
	}

	probe, hasProbe := c.probes.Lookup(catalog.FamilyFromTaskID(taskID))

	pages := []browser.PageRequest{{URL: pagesURL}}
	probeIndex := 0
	if hasProbe {
		if len(probe.Query) > 0 {
			probeURL, err := withQuery(pagesURL, probe.Query)
			if err != nil {
				return Outcome{Name: CheckDynamic, Score: 0, Reason: "invalid pages url", Logs: err.Error()}
			}
			pages = append(pages, browser.PageRequest{URL: probeURL, Selectors: probe.Selectors})
			probeIndex = 1
		} else {
			pages[0].Selectors = probe.Selectors
		}
	}

	snapshots, err := c.browser.Visit(ctx, pages)
	if err != nil || len(snapshots) == 0 {
		logs := "no snapshot returned"
		if err != nil {
			logs = err.Error()
		}
		return Outcome{Name: CheckDynamic, Score: 0, Reason: "Dynamic check error", Logs: logs}
	}

	score := 0.0
	passed := make([]string, 0, 3)
	landing := snapshots[0]
	if strings.TrimSpace(landing.Title) != "" {
		score += titleCredit
		passed = append(passed, "page has title")
	}
	if len(strings.TrimSpace(landing.BodyText)) > minBodyLength {
		score += contentCredit
		passed = append(passed, "page has content")
	}
	if hasProbe && probeIndex < len(snapshots) && probe.Passed(snapshots[probeIndex]) {
		score += probeCredit
		passed = append(passed, probe.Name)
	}

	reason := "Dynamic checks passed: none"
	if len(passed) > 0 {
		reason = "Dynamic checks passed: " + strings.Join(passed, ", ")
	}
	return Outcome{Name: CheckDynamic, Score: Clamp(score), Reason: reason}
}

func withQuery(raw string, query url.Values) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	values := parsed.Query()
	for key, vals := range query {
		values[key] = vals
	}
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}
