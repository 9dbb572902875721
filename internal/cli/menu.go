// Package cli holds the interactive mode menu.
package cli

import (
	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"

	"github.com/valeria-popova/guildmgr/internal/pipeline"
)

// ErrAborted is returned when the user cancels the menu.
var ErrAborted = errors.New("aborted")

// ChooseMode prompts for the operation to run.
func ChooseMode() (pipeline.Mode, error) {
	var mode pipeline.Mode
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[pipeline.Mode]().
				Title("Select operation").
				Options(
					huh.NewOption("Check tokens", pipeline.ModeValidate),
					huh.NewOption("Collect guild lists", pipeline.ModeCollect),
					huh.NewOption("Leave guilds from list", pipeline.ModeLeave),
				).
				Value(&mode),
		),
	)

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return 0, ErrAborted
		}
		return 0, errors.Wrap(err, "mode menu")
	}
	return mode, nil
}
