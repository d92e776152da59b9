// Package boot implements the intrinsic commands a scie dispatches through
// the SCIE environment variable, plus the help screen the selector renders
// when no boot command can be chosen.
package boot

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/scietool/jump/core/config"
)

// Command is one selectable named boot command for help and list output.
type Command struct {
	Name        string
	Description string
}

// VisibleCommands returns the named commands that belong in help listings,
// sorted by name. A named command with an empty description is hidden when
// any sibling named command carries one.
func VisibleCommands(lift *config.Lift) []Command {
	anyDescribed := false
	for name, command := range lift.Boot.Commands {
		if name != "" && command.Description != "" {
			anyDescribed = true
		}
	}
	var visible []Command
	for name, command := range lift.Boot.Commands {
		if name == "" {
			continue
		}
		if anyDescribed && command.Description == "" {
			continue
		}
		visible = append(visible, Command{Name: name, Description: command.Description})
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].Name < visible[j].Name })
	return visible
}

// RenderHelp builds the boot command help screen: the lift description when
// there is one, then the visible named commands in two aligned columns.
func RenderHelp(lift *config.Lift) string {
	var help strings.Builder
	if lift.Description != "" {
		help.WriteString(lift.Description)
		help.WriteString("\n\n")
	}
	commands := VisibleCommands(lift)
	if len(commands) == 0 {
		help.WriteString("This scie defines no selectable boot commands.\n")
		return help.String()
	}
	help.WriteString("Please select from the following boot commands:\n\n")
	width := 0
	for _, command := range commands {
		if len(command.Name) > width {
			width = len(command.Name)
		}
	}
	for _, command := range commands {
		if command.Description != "" {
			fmt.Fprintf(&help, "%-*s%s\n", width+2, command.Name, command.Description)
		} else {
			help.WriteString(command.Name)
			help.WriteByte('\n')
		}
	}
	help.WriteString("\nYou can select a boot command by passing it as the 1st argument or else by setting the SCIE_BOOT environment variable.\n")
	return help.String()
}

// List writes one line per visible named command.
func List(writer io.Writer, lift *config.Lift) error {
	for _, command := range VisibleCommands(lift) {
		if _, err := fmt.Fprintln(writer, command.Name); err != nil {
			return err
		}
	}
	return nil
}
