package reply

import (
	"regexp"
	"strings"
)

// Marker terminates truncated content.
const Marker = "...[truncated]"

// fenceState tracks the single open fence while scanning. Fences nest at
// most one deep in practice; an inner fence of the other character is
// literal text.
type fenceState struct {
	open   bool
	char   byte // '`' or '~'
	length int
}

var fenceLineRe = regexp.MustCompile("^(`{3,}|~{3,})")

// scanFences walks line-leading fence runs in content and returns the
// state at the end. An opening fence is closed only by a same-character
// fence of equal or greater length.
func scanFences(content string) fenceState {
	var state fenceState
	for _, line := range strings.Split(content, "\n") {
		run := fenceLineRe.FindString(line)
		if run == "" {
			continue
		}
		if !state.open {
			state = fenceState{open: true, char: run[0], length: len(run)}
			continue
		}
		if run[0] == state.char && len(run) >= state.length {
			state = fenceState{}
		}
	}
	return state
}

var linkRe = regexp.MustCompile(`!?\[[^\]\n]*\]\([^)\n]*\)`)

// Truncate cuts content to at most limit bytes, closing any open code
// fence and backing off a bisected markdown link before appending the
// marker. limit <= 0 means unlimited. The result never exceeds limit;
// limits too small to hold the marker or a fence closer get a bare
// prefix cut instead.
func Truncate(content string, limit int) (string, bool) {
	if limit <= 0 || len(content) <= limit {
		return content, false
	}

	cutoff := limit - len(Marker)
	if cutoff < 0 {
		cutoff = 0
	}

	closer := ""
	if state := scanFences(content[:cutoff]); state.open {
		closer = "\n" + strings.Repeat(string(state.char), state.length) + "\n"
		cutoff -= len(closer)
		if cutoff < 0 {
			cutoff = 0
		}
	}

	// Back off to just before a link the cutoff would bisect.
	for _, span := range linkRe.FindAllStringIndex(content, -1) {
		if span[0] >= cutoff {
			break
		}
		if span[1] > cutoff {
			cutoff = span[0]
			break
		}
	}

	out := content[:cutoff] + closer + Marker
	if len(out) > limit {
		out = content[:limit]
	}
	return out, true
}

// EffectiveLimit resolves the inline limit: the smaller of the per-call
// and global limits when both are set; zero on either side defers to the
// other; both zero means unlimited.
func EffectiveLimit(perCall, global int) int {
	switch {
	case perCall > 0 && global > 0:
		if perCall < global {
			return perCall
		}
		return global
	case perCall > 0:
		return perCall
	default:
		return global
	}
}
