package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qoze/internal/skills"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Manage skill packs",
	Long: `Skills are SKILL.md knowledge packs discovered from
<workspace>/.qoze/skills (project tier), ~/.qoze/skills (user tier)
and any configured extra paths. Changes apply to future sessions.`,
	RunE: listSkills,
}

var skillsEnableCmd = &cobra.Command{
	Use:   "enable [name]",
	Short: "Re-enable a disabled skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return skills.NewLoader(cfg.Skills).SetDisabled(args[0], false)
	},
}

var skillsDisableCmd = &cobra.Command{
	Use:   "disable [name]",
	Short: "Disable a skill for all future sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return skills.NewLoader(cfg.Skills).SetDisabled(args[0], true)
	},
}

func init() {
	skillsCmd.AddCommand(skillsEnableCmd)
	skillsCmd.AddCommand(skillsDisableCmd)
}

func listSkills(cmd *cobra.Command, args []string) error {
	loader := skills.NewLoader(cfg.Skills)
	list, err := loader.List(workspace)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no skills found")
		return nil
	}
	for _, skill := range list {
		trigger := "always"
		if skill.Trigger != "" {
			trigger = skill.Trigger
		}
		fmt.Printf("%-24s %-8s trigger=%-16s %s\n", skill.Name, skill.Tier, trigger, skill.Description)
	}
	return nil
}
