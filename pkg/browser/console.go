package browser

import (
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"dev/bravebird/ui-verify/pkg/models"
)

// OnConsole calls fn for every console API call made by the page, in
// emission order. The returned channel closes once the listener has stopped,
// which happens when the session is closed.
func (s *Session) OnConsole(fn func(models.ConsoleMessage)) <-chan struct{} {
	wait := s.page.Context(s.ctx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		fn(models.ConsoleMessage{
			Type:      string(e.Type),
			Text:      ConsoleText(e.Args),
			Timestamp: time.Now(),
		})
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()
	return done
}

// ConsoleText renders console call arguments the way the devtools console
// does for primitives, space separated.
func ConsoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		switch {
		case !a.Value.Nil():
			parts = append(parts, a.Value.Str())
		case a.UnserializableValue != "":
			parts = append(parts, string(a.UnserializableValue))
		case a.Type == proto.RuntimeRemoteObjectTypeUndefined:
			parts = append(parts, "undefined")
		case a.Subtype == proto.RuntimeRemoteObjectSubtypeNull:
			parts = append(parts, "null")
		case a.Description != "":
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
