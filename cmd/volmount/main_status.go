package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type cmdStatus struct {
	global *cmdGlobal
}

func (c *cmdStatus) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "status"
	cmd.Short = "List the encrypted-volume layer stacks currently tracked in cmtab"
	cmd.RunE = c.run
	return cmd
}

func (c *cmdStatus) run(cmd *cobra.Command, args []string) error {
	ctrl, err := c.global.controller()
	if err != nil {
		return err
	}

	records, err := ctrl.Cmtab.All()
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("no tracked encrypted-volume mounts")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s\tcontainer=%s\tloop=%s\tcrypto=%s\n",
			rec.Mountpoint, rec.Container, displayOrNone(rec.LoopDevice), displayOrNone(rec.CryptoDevice))
	}
	return nil
}

func displayOrNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
