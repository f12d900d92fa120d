// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pluginvm is a thin cobra CLI over the pluginvm library facade,
// the idiomatic-Go analogue of the teacher's hand-rolled "command"
// interface in main.go/cmd.go (SPEC_FULL.md "CLI").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/golang/pluginvm"
	"github.com/golang/pluginvm/config"
)

var configPath string

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pluginvm:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pluginvm",
		Short: "Install and run sandboxed CommonJS plugins",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "pluginvm.toml", "path to a pluginvm.toml config file")

	root.AddCommand(
		newInstallCommand(),
		newUninstallCommand(),
		newListCommand(),
		newRequireCommand(),
		newRunScriptCommand(),
	)
	return root
}

// newManager loads configPath (if present) and constructs a Manager,
// shared by every subcommand below.
func newManager() (*pluginvm.Manager, error) {
	opts, err := config.Load(configPathIfExists())
	if err != nil {
		return nil, err
	}
	return pluginvm.New(opts)
}

func configPathIfExists() string {
	if configPath == "" {
		return ""
	}
	if _, err := os.Stat(configPath); err != nil {
		return ""
	}
	return configPath
}

func newInstallCommand() *cobra.Command {
	var (
		source string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "install <name> <selector>",
		Short: "Install a plugin from npm, github, bitbucket, or a local path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager()
			if err != nil {
				return err
			}
			name, selector := args[0], args[1]
			opts := pluginvm.InstallOptions{Force: force}

			var info *pluginvm.PluginInfo
			switch source {
			case "github":
				info, err = m.InstallFromGithub(name, selector, opts)
			case "bitbucket":
				info, err = m.InstallFromBitbucket(name, selector, opts)
			case "path":
				info, err = m.InstallFromPath(name, selector, opts)
			default:
				info, err = m.InstallFromNpm(name, selector, opts)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s@%s at %s\n", info.Name, info.Version, info.Location)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "npm", "one of: npm, github, bitbucket, path")
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even if a satisfying version is already installed")
	return cmd
}

func newUninstallCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "uninstall [name]",
		Short: "Uninstall a top-level plugin, or all of them with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager()
			if err != nil {
				return err
			}
			if all {
				return m.UninstallAll()
			}
			if len(args) != 1 {
				return fmt.Errorf("uninstall requires a plugin name, or --all")
			}
			return m.Uninstall(args[0])
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "uninstall every installed plugin")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed top-level plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager()
			if err != nil {
				return err
			}
			for _, info := range m.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s@%s\t%s\n", info.Name, info.Version, info.Location)
			}
			return nil
		},
	}
}

func newRequireCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "require <name>",
		Short: "Load a plugin and print its exported value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager()
			if err != nil {
				return err
			}
			val, err := m.Require(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%#v\n", val)
			return nil
		},
	}
}

func newRunScriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-script <code>",
		Short: "Evaluate a snippet of code against the active view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager()
			if err != nil {
				return err
			}
			val, err := m.RunScript(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%#v\n", val)
			return nil
		},
	}
}
