// SPDX-License-Identifier: MIT

package providers

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxTranscriptChars bounds the transcript portion of the prompt so one
// very long video cannot blow the model's context window.
const maxTranscriptChars = 48000

// SummaryPrompt builds the summarization prompt from a transcript and the
// video's title and channel.
func SummaryPrompt(transcript, title, channel string) string {
	if len(transcript) > maxTranscriptChars {
		// Back up to a rune boundary so the cut never produces an
		// invalid UTF-8 sequence.
		cut := maxTranscriptChars
		for cut > 0 && !utf8.RuneStart(transcript[cut]) {
			cut--
		}
		transcript = transcript[:cut] + "\n[transcript truncated]"
	}

	var b strings.Builder
	b.WriteString("Summarize the following video transcript in Markdown.\n")
	b.WriteString("Start with a one-paragraph overview, then list the key points as bullets.\n")
	b.WriteString("Keep technical terms and names exact.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", title)
	if channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", channel)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}
