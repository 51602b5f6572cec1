package objbridge

import (
	"strings"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// truncationMarker replaces the removed middle of an overlong message.
const truncationMarker = "\n<...truncated...>\n"

// renderException formats an exception with the guest's own facility,
// appends the static hint, and bounds the result length. Generic string
// conversion must not clobber a pending exception, so the error state is
// saved around it.
func (b *Bridge) renderException(exc *guest.Object) string {
	scope := b.rt.SaveErrorScope()
	defer scope.Restore()

	var sb strings.Builder
	for _, line := range b.rt.FormatException(exc) {
		sb.WriteString(line)
	}
	sb.WriteString(b.staticHint())
	return truncateMiddle(sb.String(), b.cfg.MaxMessageLen, b.cfg.TruncateReserve)
}

// staticHint is computed once per bridge lifetime.
func (b *Bridge) staticHint() string {
	b.hintOnce.Do(func() {
		b.hint = "Run LastException() for the full guest traceback.\n"
	})
	return b.hint
}

// RenderException formats a wrapped exception object for display, applying
// the same length bound as error crossings.
func (b *Bridge) RenderException(ref *ObjectRef) string {
	return b.renderException(ref.obj)
}

// truncateMiddle bounds msg to max bytes by cutting from the middle: the
// first two lines and the tail survive, with a visible marker in between.
// Diagnostic payloads front-load a short summary and tail the root cause, so
// both ends matter more than the middle. reserve is slack subtracted from
// the budget so the marker and head always fit.
func truncateMiddle(msg string, max, reserve int) string {
	if max <= 0 || len(msg) <= max {
		return msg
	}

	head := msg[:max/2]
	if i := nthLineEnd(msg, 2); i >= 0 && i < max/2 {
		head = msg[:i+1]
	}
	budget := max - reserve - len(head) - len(truncationMarker)
	if budget < 0 {
		budget = 0
	}
	tail := msg[len(msg)-budget:]
	return head + truncationMarker + tail
}

// nthLineEnd returns the index of the n-th newline in s, or -1.
func nthLineEnd(s string, n int) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n--
			if n == 0 {
				return i
			}
		}
	}
	return -1
}
