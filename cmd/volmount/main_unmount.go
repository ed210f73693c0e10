package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pam-mount/volmount/volume"
)

type cmdUnmount struct {
	global *cmdGlobal

	flagKind       string
	flagMountpoint string
	flagVolume     string
	flagServer     string
	flagUser       string
	flagCreated    bool
}

func (c *cmdUnmount) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "unmount"
	cmd.Short = "Unmount a single volume for a user"
	cmd.Long = `Description:
  Unmount a single volume the way a PAM session-close hook would: tear
  down the mount, reverse any encrypted-container layer cmtab recorded
  for it, and remove the mountpoint if this tool created it.
`
	cmd.RunE = c.run

	cmd.Flags().StringVar(&c.flagKind, "kind", "", "Volume kind (local, cifs, smb, ncp, nfs, fuse, crypt, tcrypt)")
	cmd.Flags().StringVar(&c.flagMountpoint, "mountpoint", "", "Mountpoint directory")
	cmd.Flags().StringVar(&c.flagVolume, "volume", "", "Remote share path, or local container path")
	cmd.Flags().StringVar(&c.flagServer, "server", "", "Server hostname (required for non-local kinds)")
	cmd.Flags().StringVar(&c.flagUser, "user", "", "Target user the volume was mounted as")
	cmd.Flags().BoolVar(&c.flagCreated, "created-mountpoint", false,
		"Assert that the matching mount created the mountpoint, so unmount removes it (this process has no memory of a prior mount invocation)")

	return cmd
}

func (c *cmdUnmount) run(cmd *cobra.Command, args []string) error {
	kind, ok := volume.ParseKind(c.flagKind)
	if !ok {
		return fmt.Errorf("unknown volume kind %q", c.flagKind)
	}

	rec := &volume.Record{
		Kind:         kind,
		Mountpoint:   c.flagMountpoint,
		Volume:       c.flagVolume,
		Server:       c.flagServer,
		MountUser:    c.flagUser,
		CreatedMntpt: c.flagCreated,
	}

	ctrl, err := c.global.controller()
	if err != nil {
		return err
	}

	return ctrl.Unmount(rec)
}
