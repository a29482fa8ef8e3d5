package session

import (
	"regexp"
	"strings"
)

// promptEndings are the characters an interactive prompt ends with.
const promptEndings = "#>$:])"

// maxPromptLength bounds a plausible prompt. Longer candidates are treated
// as command output that happened to end a line and are skipped.
const maxPromptLength = 40

// FallbackPromptPattern is returned when every discovery strategy fails. It
// is a character-class pattern, not a literal prompt: completion detection
// must then rely purely on quiescence.
const FallbackPromptPattern = "[#>$]"

var lineSplit = regexp.MustCompile(`[\r\n]+`)

// endsWithPromptChar reports whether the line ends in a prompt character.
func endsWithPromptChar(line string) bool {
	if line == "" {
		return false
	}
	return strings.ContainsRune(promptEndings, rune(line[len(line)-1]))
}

// lastNonBlankLine returns the trailing non-blank line of text, trimmed.
func lastNonBlankLine(text string) string {
	lines := lineSplit.Split(text, -1)
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// collapseRepeats undoes prompt repetition caused by remote echo or multiple
// terminators: "switch1> switch1> switch1>" collapses to "switch1>". A line
// without repetition is returned unchanged.
func collapseRepeats(line string) string {
	// Split on each prompt-ending character in turn; two or more identical
	// non-empty segments mean the same prompt token repeated.
	for _, ending := range promptEndings {
		if !strings.ContainsRune(line, ending) {
			continue
		}
		parts := strings.Split(line, string(ending))
		if len(parts) < 3 {
			continue
		}
		segments := parts[:len(parts)-1]
		base := strings.TrimSpace(segments[0])
		if base == "" {
			continue
		}
		identical := true
		for _, seg := range segments[1:] {
			if strings.TrimSpace(seg) != base {
				identical = false
				break
			}
		}
		if identical {
			return base + string(ending)
		}
	}

	// Repeated whitespace-separated prompt tokens ("router# router#").
	fields := strings.Fields(line)
	if len(fields) > 1 && endsWithPromptChar(fields[0]) {
		identical := true
		for _, f := range fields[1:] {
			if f != fields[0] {
				identical = false
				break
			}
		}
		if identical {
			return fields[0]
		}
	}

	return line
}

// candidatePrompt applies the prompt test to a body of text: take the last
// non-blank line, require a prompt-ending character and a plausible length,
// and collapse repetition. Returns "" when the text holds no acceptable
// candidate.
func candidatePrompt(text string) string {
	line := lastNonBlankLine(text)
	if line == "" || !endsWithPromptChar(line) {
		return ""
	}
	line = collapseRepeats(line)
	if len(line) > maxPromptLength {
		return ""
	}
	return line
}

// promptFromBuffer searches a multi-line buffer in reverse for the first
// line containing a prompt-ending character and collapses it. Used when the
// trailing line itself is not a clean candidate.
func promptFromBuffer(text string) string {
	lines := lineSplit.Split(text, -1)
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || len(line) > maxPromptLength {
			continue
		}
		if strings.ContainsAny(line, promptEndings) {
			collapsed := collapseRepeats(line)
			if endsWithPromptChar(collapsed) {
				return collapsed
			}
		}
	}
	return ""
}

// DiscoverPrompt determines the device's prompt using a cascade of probing
// strategies, terminal on first success:
//
//  1. inspect the existing buffer for a trailing prompt line
//  2. send a bare line terminator and inspect only the new output
//  3. send a harmless "?" and inspect only the new output
//  4. give up and return the fallback character-class pattern
//
// On success the literal prompt is recorded on the session for completion
// detection. The fallback pattern is returned for reporting but is not
// installed as a literal prompt, so later completion checks degrade to
// quiescence timing.
func (s *Session) DiscoverPrompt() string {
	s.pump()

	if prompt := candidatePrompt(s.buf.Snapshot()); prompt != "" {
		s.logger.Debug().Str("prompt", prompt).Msg("Prompt detected from existing buffer")
		s.SetPrompt(prompt)
		return prompt
	}

	for _, probe := range []string{"\n", "?"} {
		pos := s.buf.Len()
		if err := s.transport.Send(probe); err != nil {
			s.logger.Debug().Err(err).Msg("Prompt probe send failed")
			continue
		}
		s.settle(s.timing.SettleInterval)

		newContent := s.buf.Since(pos)
		prompt := candidatePrompt(newContent)
		if prompt == "" {
			prompt = promptFromBuffer(newContent)
		}
		if prompt != "" {
			s.logger.Debug().Str("prompt", prompt).Str("probe", strings.TrimSpace(probe)).Msg("Prompt detected from probe")
			s.SetPrompt(prompt)
			return prompt
		}
	}

	s.logger.Debug().Msg("Prompt discovery exhausted all strategies, using fallback pattern")
	return FallbackPromptPattern
}
