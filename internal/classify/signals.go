package classify

// Signals collects the textual fingerprints the detector scans for. The
// zero value is unusable; start from DefaultSignals and override fields via
// the signals file when the platform shifts its markup.
type Signals struct {
	// BlockKeywords flag anti-bot interstitials when found in the final URL
	// or the body, case-insensitively.
	BlockKeywords []string `koanf:"blockKeywords" json:"blockKeywords"`
	// LiveMarkers are regular expressions whose match classifies the page as
	// a running broadcast.
	LiveMarkers []string `koanf:"liveMarkers" json:"liveMarkers"`
	// RoomIDPatterns are tried in order against a live page; each must carry
	// one capture group for the numeric room identifier. First non-empty
	// capture wins.
	RoomIDPatterns []string `koanf:"roomIdPatterns" json:"roomIdPatterns"`
	// OfflineMarkers are regular expressions naming an explicit "not
	// broadcasting" state.
	OfflineMarkers []string `koanf:"offlineMarkers" json:"offlineMarkers"`
}

// DefaultSignals returns the built-in fingerprint set for the upstream
// platform's live pages.
func DefaultSignals() Signals {
	return Signals{
		BlockKeywords: []string{"captcha", "challenge", "verify", "denied", "blocked"},
		LiveMarkers: []string{
			`"isLive"\s*:\s*true`,
			`"roomId"\s*:\s*"?\d+`,
			`"liveStatus"\s*:\s*"live"`,
		},
		RoomIDPatterns: []string{
			`"roomId"\s*:\s*"(\d+)"`,
			`"roomId"\s*:\s*(\d+)`,
			`"room_id"\s*:\s*"?(\d+)"?`,
			`roomId[^0-9]{0,8}(\d{5,})`,
		},
		OfflineMarkers: []string{
			`"isLive"\s*:\s*false`,
			`(?i)stream ended`,
			`(?i)not live right now`,
			`"liveStatus"\s*:\s*"offline"`,
		},
	}
}

// merged returns s with any empty field replaced by the built-in default, so
// a signals file may override only the lists it cares about.
func (s Signals) merged() Signals {
	def := DefaultSignals()
	if len(s.BlockKeywords) == 0 {
		s.BlockKeywords = def.BlockKeywords
	}
	if len(s.LiveMarkers) == 0 {
		s.LiveMarkers = def.LiveMarkers
	}
	if len(s.RoomIDPatterns) == 0 {
		s.RoomIDPatterns = def.RoomIDPatterns
	}
	if len(s.OfflineMarkers) == 0 {
		s.OfflineMarkers = def.OfflineMarkers
	}
	return s
}
