package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pam-mount/volmount/volume"
)

type cmdMount struct {
	global *cmdGlobal

	flagKind       string
	flagMountpoint string
	flagVolume     string
	flagServer     string
	flagUser       string
	flagOptions    []string
	flagKeyPath    string
	flagKeyCipher  string
	flagKeyDigest  string
	flagReadOnly   bool
}

func (c *cmdMount) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "mount"
	cmd.Short = "Mount a single volume for a user"
	cmd.Long = `Description:
  Mount a single volume the way a PAM session-open hook would, reading
  the authentication password from stdin (a single line, no echo
  handling — that belongs to whatever captured it).
`
	cmd.RunE = c.run

	cmd.Flags().StringVar(&c.flagKind, "kind", "", "Volume kind (local, cifs, smb, ncp, nfs, fuse, crypt, tcrypt)")
	cmd.Flags().StringVar(&c.flagMountpoint, "mountpoint", "", "Mountpoint directory")
	cmd.Flags().StringVar(&c.flagVolume, "volume", "", "Remote share path, or local container path")
	cmd.Flags().StringVar(&c.flagServer, "server", "", "Server hostname (required for non-local kinds)")
	cmd.Flags().StringVar(&c.flagUser, "user", "", "Target user to mount as")
	cmd.Flags().StringSliceVar(&c.flagOptions, "option", nil, "Mount option, repeatable (key=value or a bare flag)")
	cmd.Flags().StringVar(&c.flagKeyPath, "key-path", "", "Path to the encrypted filesystem keyfile")
	cmd.Flags().StringVar(&c.flagKeyCipher, "key-cipher", "", "Cipher the keyfile was encrypted with")
	cmd.Flags().StringVar(&c.flagKeyDigest, "key-digest", "", "Digest used to derive the keyfile's key")
	cmd.Flags().BoolVar(&c.flagReadOnly, "read-only", false, "Mount read-only")

	return cmd
}

func (c *cmdMount) run(cmd *cobra.Command, args []string) error {
	kind, ok := volume.ParseKind(c.flagKind)
	if !ok {
		return fmt.Errorf("unknown volume kind %q", c.flagKind)
	}

	rec := &volume.Record{
		Kind:       kind,
		Mountpoint: c.flagMountpoint,
		Volume:     c.flagVolume,
		Server:     c.flagServer,
		MountUser:  c.flagUser,
		Options:    parseOptions(c.flagOptions),
		KeyPath:    c.flagKeyPath,
		KeyCipher:  c.flagKeyCipher,
		KeyDigest:  c.flagKeyDigest,
		ReadOnly:   c.flagReadOnly,
	}

	ctrl, err := c.global.controller()
	if err != nil {
		return err
	}

	password, err := readPasswordLine()
	if err != nil {
		return err
	}

	return ctrl.Mount(rec, password)
}

func parseOptions(opts []string) map[string]string {
	if len(opts) == 0 {
		return nil
	}
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		if i := strings.IndexByte(o, '='); i >= 0 {
			m[o[:i]] = o[i+1:]
		} else {
			m[o] = ""
		}
	}
	return m
}

// readPasswordLine reads one line from stdin as the authentication
// password. An empty final line without a trailing newline (stdin
// closed right after the password) is still accepted, matching
// do_mount's precondition that the password "must not be null" rather
// than non-empty.
func readPasswordLine() ([]byte, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading password from stdin: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
