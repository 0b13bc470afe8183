package main

// Template fragments shared by the usage layouts below.
const (
	commandsSection = `{{if .HasAvailableSubCommands}}Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}  {{rpad .Name .NamePadding }} {{.Short}}
{{end}}{{end}}
{{end}}`
	examplesSection = `{{if .HasExample}}Examples:
{{.Example}}

{{end}}`
	localFlagsSection = `{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}`
	globalFlagsSection = `{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}`
	moreHelpLine = `{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`
)

const subcommandUsageTemplate = `Usage:
  {{.UseLine}}

` + examplesSection + localFlagsSection + globalFlagsSection

const rootUsageTemplate = `Usage:
  ocap run <folder> --model <name> --prompt <text> [flags]
  {{.CommandPath}} [command]

` + commandsSection + localFlagsSection + moreHelpLine

// groupUsageTemplate is for commands that only hold subcommands.
const groupUsageTemplate = `Usage:
  {{.UseLine}}
  {{.CommandPath}} [command]

` + commandsSection + examplesSection + globalFlagsSection + moreHelpLine
