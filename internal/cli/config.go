package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/affinity/internal/config"
)

var initForce bool

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Long:  "Write the default configuration to --config (or $AFFINITY_CONFIG, ~/.affinity/config.yaml). An existing file is kept unless --force is given.",
		Run:   runConfigInit,
	}
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after env overrides",
		Run:   runConfigShow,
	}

	configCmd.AddCommand(initCmd, showCmd)
	RootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := getConfigPath()
	if err := config.WriteDefault(path, initForce); err != nil {
		exitErr("config init", err)
	}
	fmt.Printf("wrote %s\n", path)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		exitErr("marshal config", err)
	}
	fmt.Print(string(out))
}
