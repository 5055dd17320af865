package bot

import (
	"context"
	"fmt"
	"strings"

	"voxmail/internal/ipc"
)

// ControlHandler answers requests on the control socket.
func (s *Service) ControlHandler(storeDriver string) ipc.Handler {
	return func(_ context.Context, req ipc.Request) ipc.Response {
		switch strings.ToLower(strings.TrimSpace(req.Cmd)) {
		case "ping":
			return ipc.Response{OK: true, Text: "pong"}
		case "status":
			st := s.Stats()
			return ipc.Response{OK: true, Text: fmt.Sprintf(
				"provider=%s store=%s events=%d drafts=%d failures=%d",
				s.Provider(), storeDriver, st.Events, st.Drafts, st.Failures)}
		default:
			return ipc.Fail("unknown command %q (want ping|status)", req.Cmd)
		}
	}
}
