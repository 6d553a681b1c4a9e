package domain

import "testing"

func TestCommandToPayloadCarriesIdentityAndParams(t *testing.T) {
	c := &Command{
		ID:          "cmd-1",
		CommandName: "reboot",
		Params:      RawMessage(`{"delay_s":5}`),
	}
	p := c.ToPayload()
	if p.CmdID != "cmd-1" || p.Command != "reboot" || string(p.Params) != `{"delay_s":5}` {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestCommandStatusConstantsAreDistinct(t *testing.T) {
	seen := map[CommandStatus]bool{}
	for _, s := range []CommandStatus{CommandPending, CommandSent, CommandAcked, CommandFailed, CommandRetry, CommandCancelled} {
		if seen[s] {
			t.Fatalf("duplicate command status value %q", s)
		}
		seen[s] = true
	}
}
