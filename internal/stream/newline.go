// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "strings"

// newlineDecoder replaces the transport's newline sentinel with "\n",
// holding back a trailing partial token until the next fragment decides it.
type newlineDecoder struct {
	token   string
	pending string
}

// feed decodes s. When final is set nothing is held back.
func (n *newlineDecoder) feed(s string, final bool) string {
	if n.token == "" {
		return s
	}
	s = n.pending + s
	n.pending = ""

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		rest := s[i:]
		if strings.HasPrefix(rest, n.token) {
			b.WriteByte('\n')
			i += len(n.token)
			continue
		}
		if !final && isPartial(rest, n.token) {
			n.pending = rest
			break
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// isPartial reports whether rest is a proper prefix of marker, i.e. the
// buffer ended in the middle of what may still become marker.
func isPartial(rest, marker string) bool {
	return len(rest) < len(marker) && strings.HasPrefix(marker, rest)
}

// EncodeNewlines replaces every "\n" in s with token. It is the inverse of
// the decoding the Decoder applies and is used when raw text is written to
// line-oriented storage.
func EncodeNewlines(s, token string) string {
	if token == "" {
		token = DefaultNewlineToken
	}
	return strings.ReplaceAll(s, "\n", token)
}

// DecodeNewlines replaces every complete token in s with "\n".
func DecodeNewlines(s, token string) string {
	if token == "" {
		token = DefaultNewlineToken
	}
	return strings.ReplaceAll(s, token, "\n")
}
