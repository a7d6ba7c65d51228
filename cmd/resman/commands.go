package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quayside/resman/internal/resource"
	"github.com/quayside/resman/pkg/client"
)

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "resman",
		Short:         "resman supervises game-server resources and mods",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newEnableCmd())
	root.AddCommand(newDisableCmd())
	root.AddCommand(newAutorestartCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newRenameCmd())
	root.AddCommand(newDeleteCmd())
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", defaultAPIURL, "daemon API base URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 0, "API request timeout")
}

// apiClient builds a client and verifies the daemon answers before any
// command-specific call.
func apiClient(f APIFlags) (*client.Client, error) {
	c := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
	if !c.IsReachable(context.Background()) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'resman serve'", f.APIUrl)
	}
	return c, nil
}

func newStartCmd() *cobra.Command {
	f := LifecycleFlags{}
	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := apiClient(f.APIFlags)
			if err != nil {
				return err
			}
			if err := c.Start(context.Background(), f.Name); err != nil {
				return err
			}
			fmt.Printf("Started resource: %s\n", f.Name)
			return nil
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newStopCmd() *cobra.Command {
	f := LifecycleFlags{}
	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := apiClient(f.APIFlags)
			if err != nil {
				return err
			}
			if err := c.Stop(context.Background(), f.Name); err != nil {
				return err
			}
			fmt.Printf("Stopped resource: %s\n", f.Name)
			return nil
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newRestartCmd() *cobra.Command {
	f := LifecycleFlags{}
	cmd := &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := apiClient(f.APIFlags)
			if err != nil {
				return err
			}
			if err := c.Restart(context.Background(), f.Name); err != nil {
				return err
			}
			fmt.Printf("Restarted resource: %s\n", f.Name)
			return nil
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func setFlag(f ConfigFlags, patch resource.ConfigPatch, verb string) error {
	c, err := apiClient(f.APIFlags)
	if err != nil {
		return err
	}
	if err := c.SetConfig(context.Background(), f.Name, patch); err != nil {
		return err
	}
	fmt.Printf("%s resource: %s\n", verb, f.Name)
	return nil
}

func newEnableCmd() *cobra.Command {
	f := ConfigFlags{}
	cmd := &cobra.Command{
		Use:   "enable <name>",
		Short: "Mark a resource enabled (does not start it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f.Name = args[0]
			on := true
			return setFlag(f, resource.ConfigPatch{Enabled: &on}, "Enabled")
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newDisableCmd() *cobra.Command {
	f := ConfigFlags{}
	cmd := &cobra.Command{
		Use:   "disable <name>",
		Short: "Mark a resource disabled (does not stop it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f.Name = args[0]
			off := false
			return setFlag(f, resource.ConfigPatch{Enabled: &off}, "Disabled")
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newAutorestartCmd() *cobra.Command {
	f := ConfigFlags{}
	var on, off bool
	cmd := &cobra.Command{
		Use:   "autorestart <name>",
		Short: "Toggle restart-on-change for a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f.Name = args[0]
			if on == off {
				return fmt.Errorf("exactly one of --on or --off is required")
			}
			v := on
			verb := "Disabled restart-on-change for"
			if v {
				verb = "Enabled restart-on-change for"
			}
			return setFlag(f, resource.ConfigPatch{RestartOnChange: &v}, verb)
		},
	}
	cmd.Flags().BoolVar(&on, "on", false, "enable restart-on-change")
	cmd.Flags().BoolVar(&off, "off", false, "disable restart-on-change")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newStatusCmd() *cobra.Command {
	f := StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status [name]",
		Short: "Show resource status (all resources when name is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := apiClient(f.APIFlags)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				st, err := c.Status(context.Background(), args[0])
				if err != nil {
					return err
				}
				printJSON(st)
				return nil
			}
			sts, err := c.Statuses(context.Background())
			if err != nil {
				return err
			}
			printJSON(sts)
			return nil
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newRenameCmd() *cobra.Command {
	f := RenameFlags{}
	cmd := &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Rename a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			f.From, f.To = args[0], args[1]
			c, err := apiClient(f.APIFlags)
			if err != nil {
				return err
			}
			if err := c.Rename(context.Background(), f.From, f.To); err != nil {
				return err
			}
			fmt.Printf("Renamed resource: %s -> %s\n", f.From, f.To)
			return nil
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	f := DeleteFlags{}
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Stop and remove a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f.Name = args[0]
			c, err := apiClient(f.APIFlags)
			if err != nil {
				return err
			}
			if err := c.Delete(context.Background(), f.Name); err != nil {
				return err
			}
			fmt.Printf("Deleted resource: %s\n", f.Name)
			return nil
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}
