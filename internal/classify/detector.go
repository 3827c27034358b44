// Package classify turns one upstream response into a live/offline/unknown
// verdict. Classification is pure text inspection; no I/O happens here.
package classify

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/sgtv/livestatus/internal/live"
	"github.com/sgtv/livestatus/internal/probe"
)

// compiledSignals is an immutable snapshot of the active fingerprint set.
// Detector swaps whole snapshots so concurrent Classify calls never observe a
// half-reloaded state.
type compiledSignals struct {
	blockKeywords  []string
	liveMarkers    []*regexp.Regexp
	roomIDPatterns []*regexp.Regexp
	offlineMarkers []*regexp.Regexp
}

// Detector classifies probe responses against a reloadable signal set.
type Detector struct {
	current atomic.Pointer[compiledSignals]
}

// NewDetector compiles the supplied signals; empty lists fall back to the
// built-in defaults.
func NewDetector(signals Signals) (*Detector, error) {
	compiled, err := compile(signals.merged())
	if err != nil {
		return nil, err
	}
	d := &Detector{}
	d.current.Store(compiled)
	return d, nil
}

// Reload swaps in a new signal set. A compile failure leaves the previous set
// active so a bad signals file cannot blind the detector.
func (d *Detector) Reload(signals Signals) error {
	compiled, err := compile(signals.merged())
	if err != nil {
		return err
	}
	d.current.Store(compiled)
	return nil
}

// Classify inspects status code, final URL, and body text, in that priority:
// block signals first, then live markers, then explicit offline markers.
// Anything ambiguous stays unknown; a booby-trapped response must never be
// reported as a confident offline.
func (d *Detector) Classify(resp *probe.Response) live.Result {
	signals := d.current.Load()

	if resp == nil || strings.TrimSpace(resp.Body) == "" {
		return live.Result{Status: live.StatusUnknown}
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return live.Result{Status: live.StatusUnknown}
	}

	lowerURL := strings.ToLower(resp.FinalURL)
	lowerBody := strings.ToLower(resp.Body)
	for _, keyword := range signals.blockKeywords {
		if strings.Contains(lowerURL, keyword) || strings.Contains(lowerBody, keyword) {
			return live.Result{Status: live.StatusUnknown}
		}
	}

	for _, marker := range signals.liveMarkers {
		if marker.MatchString(resp.Body) {
			return live.Result{Status: live.StatusLive, RoomID: extractRoomID(signals.roomIDPatterns, resp.Body)}
		}
	}

	for _, marker := range signals.offlineMarkers {
		if marker.MatchString(resp.Body) {
			return live.Result{Status: live.StatusOffline}
		}
	}

	return live.Result{Status: live.StatusUnknown}
}

// extractRoomID walks the prioritized pattern list; the first pattern whose
// capture group yields digits wins.
func extractRoomID(patterns []*regexp.Regexp, body string) string {
	for _, pattern := range patterns {
		match := pattern.FindStringSubmatch(body)
		if len(match) >= 2 && match[1] != "" {
			return match[1]
		}
	}
	return ""
}

func compile(signals Signals) (*compiledSignals, error) {
	out := &compiledSignals{
		blockKeywords: make([]string, 0, len(signals.BlockKeywords)),
	}
	for _, keyword := range signals.BlockKeywords {
		trimmed := strings.ToLower(strings.TrimSpace(keyword))
		if trimmed == "" {
			continue
		}
		out.blockKeywords = append(out.blockKeywords, trimmed)
	}

	var err error
	if out.liveMarkers, err = compileAll("live marker", signals.LiveMarkers); err != nil {
		return nil, err
	}
	if out.roomIDPatterns, err = compileAll("room id pattern", signals.RoomIDPatterns); err != nil {
		return nil, err
	}
	if out.offlineMarkers, err = compileAll("offline marker", signals.OfflineMarkers); err != nil {
		return nil, err
	}
	return out, nil
}

func compileAll(kind string, sources []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(sources))
	for _, source := range sources {
		if strings.TrimSpace(source) == "" {
			continue
		}
		pattern, err := regexp.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("classify: compile %s %q: %w", kind, source, err)
		}
		compiled = append(compiled, pattern)
	}
	return compiled, nil
}
