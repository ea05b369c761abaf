package prompt

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/toolgate/toolgate/internal/confirm"
)

// decideTerminal renders an interactive select form for one pending
// confirmation and blocks until the operator chooses.
func decideTerminal(p confirm.Pending) (confirm.Result, error) {
	var choice string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Server %q requests %d tool(s)", p.ServerID, len(p.Tools))).
				Description(summarize(p)).
				Options(
					huh.NewOption("Approve", string(confirm.ResultApproved)),
					huh.NewOption("Allow once", string(confirm.ResultAllowOnce)),
					huh.NewOption("Deny", string(confirm.ResultDenied)),
				).
				Value(&choice),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt: form: %w", err)
	}
	return confirm.ParseResult(choice)
}
