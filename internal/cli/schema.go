// Package cli holds helpers shared by the better404d commands.
package cli

import (
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// FlagSchema describes one flag of a command.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Inherited   bool   `json:"inherited,omitempty"`
}

// CommandSchema is the machine-readable form of a command tree, printed by
// --help-json for scripts that drive the admin CLI.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Example     string          `json:"example,omitempty"`
	Aliases     []string        `json:"aliases,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
		Example:     strings.TrimSpace(cmd.Example),
		Aliases:     cmd.Aliases,
	}

	addFlags := func(set *pflag.FlagSet, inherited bool) {
		set.VisitAll(func(f *pflag.Flag) {
			if f.Name == helpJSONFlag || f.Name == "help" {
				return
			}
			_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
			schema.Flags = append(schema.Flags, FlagSchema{
				Name:        f.Name,
				Shorthand:   f.Shorthand,
				Type:        f.Value.Type(),
				Default:     f.DefValue,
				Description: f.Usage,
				Required:    required,
				Inherited:   inherited,
			})
		})
	}
	addFlags(cmd.LocalFlags(), false)
	addFlags(cmd.InheritedFlags(), true)

	for _, sub := range cmd.Commands() {
		if !sub.IsAvailableCommand() {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}

	return schema
}

// AddHelpJSONFlag registers --help-json on cmd and all of its children.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(helpJSONFlag, false, "Output command schema as JSON")
}

// HandleHelpJSON writes the schema of the command addressed by args when
// args contain --help-json. It runs before Execute so required arguments
// and flags are not validated. The bool reports whether a schema was written.
func HandleHelpJSON(root *cobra.Command, args []string, w io.Writer) (bool, error) {
	idx := slices.Index(args, "--"+helpJSONFlag)
	if idx < 0 {
		return false, nil
	}

	target := findTargetCommand(root, args[:idx])
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(GenerateSchema(target))
}

// findTargetCommand walks command names and aliases, stopping at the first
// word that is not a subcommand.
func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	for _, arg := range args {
		next := cmd
		for _, sub := range cmd.Commands() {
			if sub.Name() == arg || sub.HasAlias(arg) {
				next = sub
				break
			}
		}
		if next == cmd {
			break
		}
		cmd = next
	}
	return cmd
}
