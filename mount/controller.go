// Package mount implements the mount controller (C10, spec §4.10): the
// do_mount/do_unmount state machine composing every earlier component
// (variable map, keyfile decryptor, EHD engine, command templater,
// process spawner, association registry) into one login-time volume
// mount/unmount primitive. Grounded on the same allocate/verify/roll-
// back shape lxd/daemon/daemon_share_mounts.go uses around a mount
// attempt, and on lxd-user's privilege-scoped helper invocation.
package mount

import (
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/pam-mount/volmount/cmtab"
	"github.com/pam-mount/volmount/config"
	"github.com/pam-mount/volmount/coreerr"
	"github.com/pam-mount/volmount/cryptsetup"
	"github.com/pam-mount/volmount/ehd"
	"github.com/pam-mount/volmount/keyfile"
	"github.com/pam-mount/volmount/subprocess"
	"github.com/pam-mount/volmount/template"
	"github.com/pam-mount/volmount/volume"
	"github.com/pam-mount/volmount/volumelog"
)

// mountpointMode is the mode do_mount creates a missing mountpoint
// with (spec §4.10 step 3).
const mountpointMode = 0711

// Controller is the per-invocation state machine described by spec
// §4.10. It holds no per-volume state between Mount/Unmount calls;
// everything it needs to reverse a mount lives in the cmtab registry.
type Controller struct {
	Config *config.Config
	Cmtab  *cmtab.Registry
	Smtab  *cmtab.Smtab
	Ehd    *ehd.Engine
	Log    *volumelog.Logger

	// MountsPath is the kernel mount list read for the already-mounted
	// check; defaults to DefaultMountsPath.
	MountsPath string

	// CreateMountpoints and RemoveMountpoints gate step 3 of do_mount
	// and step 4 of do_unmount respectively.
	CreateMountpoints bool
	RemoveMountpoints bool
}

// New wires a Controller from an operator config and logger: a cmtab
// and smtab rooted at the configured paths, and the real (non-fake)
// EHD engine. A configured cryptsetup path replaces cryptsetup.Binary.
func New(cfg *config.Config, log *volumelog.Logger) *Controller {
	if cfg.CryptsetupPath != "" {
		cryptsetup.Binary = cfg.CryptsetupPath
	}
	return &Controller{
		Config:            cfg,
		Cmtab:             cmtab.New(cfg.CmtabPath),
		Smtab:             cmtab.NewSmtab(cfg.SmtabPath),
		Ehd:               ehd.New(),
		Log:               log,
		MountsPath:        DefaultMountsPath,
		CreateMountpoints: true,
		RemoveMountpoints: true,
	}
}

// Mount implements do_mount (spec §4.10). rec.CreatedMntpt is updated
// in place if this call creates the mountpoint, so Unmount can later
// decide whether to remove it.
func (c *Controller) Mount(rec *volume.Record, password []byte) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	log := c.Log.AddContext(volumelog.Ctx{"mountpoint": rec.Mountpoint, "kind": rec.Kind.String()})

	vars := volume.NewVariableMap(rec, time.Now())
	uid, gid, identity, hasIdentity := resolveIdentity(rec.MountUser)
	if hasIdentity {
		vars.SetUser(uid, gid)
	}

	mounted, err := c.checkAlreadyMounted(rec)
	if err != nil {
		return coreerr.Wrap(coreerr.MountHelperFailed, "checking already-mounted state", err)
	}
	if mounted {
		return nil
	}

	if err := c.ensureMountpoint(rec, uid, gid); err != nil {
		return err
	}

	key, err := c.resolveFSKey(rec, password)
	if err != nil {
		return err
	}
	defer zeroBytes(key)
	vars.SetKeyBits(len(key))

	if c.requiresPreflightFsck(rec) {
		c.preflightFsck(rec, key, vars, log)
	}

	var ehdInfo volume.EHDInfo
	if rec.Kind.IsEncrypted() {
		ehdInfo, err = c.Ehd.Load(volume.EHDRequest{
			Container: rec.Volume,
			Cipher:    rec.KeyCipher,
			Hash:      rec.KeyDigest,
			Key:       key,
			ReadOnly:  rec.ReadOnly,
		})
		if err != nil {
			return coreerr.Wrap(coreerr.MountHelperFailed, "preparing encrypted container", err)
		}
		vars["VOLUME"] = ehdInfo.CryptoDevice
	}

	argvTemplate, ok := c.Config.MountTemplate(rec.Kind)
	if !ok {
		c.rollbackEHD(rec, ehdInfo, log)
		return coreerr.New(coreerr.ConfigInvalid, "no mount helper configured for kind "+rec.Kind.String())
	}

	expanded, err := expandTemplate(argvTemplate, vars)
	if err != nil {
		c.rollbackEHD(rec, ehdInfo, log)
		return err
	}

	env := map[string]string{}
	if rec.Kind == volume.KindCIFS || rec.Kind == volume.KindSMB {
		env["PASSWD_FD"] = "0"
	}

	// The encrypted kinds already handed the FS key to the EHD engine
	// above; the mount helper itself now operates on the mapper device
	// and needs no stdin password. NFS never takes one either.
	wantStdin := rec.Kind != volume.KindNFS && !rec.Kind.IsEncrypted()

	p, err := subprocess.Spawn(subprocess.Request{
		Argv:      expanded,
		Env:       env,
		WantStdin: wantStdin,
		Identity:  identity,
	})
	if err != nil {
		c.rollbackEHD(rec, ehdInfo, log)
		return coreerr.Wrap(coreerr.MountHelperFailed, "spawning mount helper", err)
	}
	if wantStdin {
		if err := p.WriteAndClose(key); err != nil {
			c.rollbackEHD(rec, ehdInfo, log)
			return coreerr.Wrap(coreerr.MountHelperFailed, "delivering key to mount helper", err)
		}
	}

	status, err := p.Wait()
	if err != nil {
		c.rollbackEHD(rec, ehdInfo, log)
		return coreerr.Wrap(coreerr.MountHelperFailed, "waiting for mount helper", err)
	}
	if status != 0 {
		c.rollbackEHD(rec, ehdInfo, log)
		return coreerr.New(coreerr.MountHelperFailed, "mount helper exited non-zero")
	}

	if rec.Kind.IsEncrypted() {
		if err := c.Cmtab.Append(cmtab.Record{
			Mountpoint:   rec.Mountpoint,
			Container:    rec.Volume,
			LoopDevice:   ehdInfo.LoopDevice,
			CryptoDevice: ehdInfo.CryptoDevice,
		}); err != nil {
			// Spec §4.10 failure semantics: a failed cmtab append after
			// a successful mount is logged, not undone.
			log.Warn("mount succeeded but cmtab append failed: " + err.Error())
		}
	}

	return nil
}

// Unmount implements do_unmount (spec §4.10).
func (c *Controller) Unmount(rec *volume.Record) error {
	log := c.Log.AddContext(volumelog.Ctx{"mountpoint": rec.Mountpoint, "kind": rec.Kind.String()})

	if c.Config.Debug {
		log.Debug("unmounting; diagnostic open-file-list helper is out of core scope")
	}

	argvTemplate, ok := c.Config.UnmountTemplate(rec.Kind)
	if !ok {
		argvTemplate = []string{"umount", "%(MNTPT)"}
	}

	vars := volume.NewVariableMap(rec, time.Now())
	uid, gid, identity, hasIdentity := resolveIdentity(rec.MountUser)
	if hasIdentity {
		vars.SetUser(uid, gid)
	}

	expanded, err := expandTemplate(argvTemplate, vars)
	if err != nil {
		return err
	}

	p, err := subprocess.Spawn(subprocess.Request{Argv: expanded, Identity: identity})
	if err != nil {
		return coreerr.Wrap(coreerr.UnmountHelperFailed, "spawning unmount helper", err)
	}
	status, err := p.Wait()
	if err != nil {
		return coreerr.Wrap(coreerr.UnmountHelperFailed, "waiting for unmount helper", err)
	}
	if status != 0 {
		return coreerr.New(coreerr.UnmountHelperFailed, "unmount helper exited non-zero")
	}

	if rec.CreatedMntpt && c.RemoveMountpoints {
		if err := os.Remove(rec.Mountpoint); err != nil {
			log.Warn("rmdir of mountpoint failed: " + err.Error())
		}
	}

	if rec.Kind.IsEncrypted() {
		c.teardownEHD(rec, log)
	}

	return nil
}

// teardownEHD implements do_unmount step 5: look the volume's layer
// stack up by mountpoint, tear it down, and remove the registry entry.
func (c *Controller) teardownEHD(rec *volume.Record, log *volumelog.Logger) {
	cmrec, ok, err := c.Cmtab.Lookup(cmtab.FieldMountpoint, rec.Mountpoint)
	if err != nil {
		log.Warn("cmtab lookup failed: " + err.Error())
		return
	}
	if !ok {
		return
	}

	info := volume.EHDInfo{
		Container:    cmrec.Container,
		LoopDevice:   cmrec.LoopDevice,
		CryptoDevice: cmrec.CryptoDevice,
		CryptoName:   cryptsetup.MangleName(cmrec.Container),
	}
	if err := c.Ehd.Unload(info); err != nil {
		log.Warn("EHD unload failed: " + err.Error())
	}
	if _, err := c.Cmtab.Remove(cmtab.FieldMountpoint, rec.Mountpoint); err != nil {
		log.Warn("cmtab remove failed: " + err.Error())
	}
}

// rollbackEHD undoes a Load already performed for rec when a later
// step in do_mount fails (spec §4.10's reverse-order rollback), and
// is a no-op if no layer was established.
func (c *Controller) rollbackEHD(rec *volume.Record, info volume.EHDInfo, log *volumelog.Logger) {
	if !rec.Kind.IsEncrypted() || info.CryptoName == "" {
		return
	}
	if err := c.Ehd.Unload(info); err != nil {
		log.Warn("rolling back encrypted-volume layer after failed mount: " + err.Error())
	}
}

// checkAlreadyMounted implements do_mount step 2.
func (c *Controller) checkAlreadyMounted(rec *volume.Record) (bool, error) {
	path := c.MountsPath
	if path == "" {
		path = DefaultMountsPath
	}
	entries, err := readMounts(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	resolver := loopBackingResolver(nil)
	if c.Ehd != nil && c.Ehd.Loop != nil {
		resolver = c.Ehd.Loop.BackingFile
	}
	return isAlreadyMounted(entries, rec, resolver), nil
}

// ensureMountpoint implements do_mount step 3.
func (c *Controller) ensureMountpoint(rec *volume.Record, uid, gid int) error {
	if _, err := os.Stat(rec.Mountpoint); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return coreerr.Wrap(coreerr.MountpointCreateFailed, "stat mountpoint", err)
	}

	if !c.CreateMountpoints {
		return coreerr.New(coreerr.MountpointCreateFailed, "mountpoint does not exist and creation is disabled")
	}

	err := withFSIdentity(uid, gid, func() error {
		return os.Mkdir(rec.Mountpoint, mountpointMode)
	})
	if err == nil {
		rec.CreatedMntpt = true
		return nil
	}

	if mkErr := os.Mkdir(rec.Mountpoint, mountpointMode); mkErr != nil {
		return coreerr.Wrap(coreerr.MountpointCreateFailed, "creating mountpoint", mkErr)
	}
	if uid != 0 || gid != 0 {
		if chErr := os.Chown(rec.Mountpoint, uid, gid); chErr != nil {
			return coreerr.Wrap(coreerr.MountpointCreateFailed, "chowning mountpoint", chErr)
		}
	}
	rec.CreatedMntpt = true
	return nil
}

// resolveFSKey implements do_mount step 4: either the keyfile
// decryptor's output, or the password truncated at the max field
// length. The returned buffer is owned by the caller, who must zero
// it (spec §4.10 step 8).
func (c *Controller) resolveFSKey(rec *volume.Record, password []byte) ([]byte, error) {
	if rec.KeyCipher != "" {
		return keyfile.Decrypt(rec.KeyPath, rec.KeyDigest, rec.KeyCipher, password)
	}

	n := len(password)
	if n > volume.MaxFieldLen {
		n = volume.MaxFieldLen
	}
	key := make([]byte, n)
	copy(key, password[:n])
	return key, nil
}

// requiresPreflightFsck reports whether rec's kind needs the loop-
// backed preflight filesystem check of do_mount step 5. Only the
// encrypted container kinds route through a loop-backed filesystem
// check here; plain remote/local kinds rely on their own mount helper
// to validate the filesystem.
func (c *Controller) requiresPreflightFsck(rec *volume.Record) bool {
	return rec.Kind.IsEncrypted() && c.Config.FsckPath != ""
}

// preflightFsck implements do_mount step 5. Failure here is always a
// warning: the overall mount continues regardless (spec §4.10 failure
// semantics: "A failed preflight fsck is a warning only").
func (c *Controller) preflightFsck(rec *volume.Record, key []byte, vars volume.VariableMap, log *volumelog.Logger) {
	info, err := c.Ehd.Load(volume.EHDRequest{
		Container: rec.Volume,
		Cipher:    rec.KeyCipher,
		Hash:      rec.KeyDigest,
		Key:       key,
		ReadOnly:  false,
	})
	if err != nil {
		log.Warn("preflight fsck: attaching loop/crypto layer failed: " + err.Error())
		return
	}
	defer func() {
		if err := c.Ehd.Unload(info); err != nil {
			log.Warn("preflight fsck: detaching loop/crypto layer failed: " + err.Error())
		}
	}()

	vars.SetFsckTarget(info.CryptoDevice)

	p, err := subprocess.Spawn(subprocess.Request{Argv: []string{c.Config.FsckPath, "-p", info.CryptoDevice}})
	if err != nil {
		log.Warn("preflight fsck: spawning fsck failed: " + err.Error())
		return
	}
	status, err := p.Wait()
	if err != nil {
		log.Warn("preflight fsck: waiting for fsck failed: " + err.Error())
		return
	}
	// Exit 1 is fsck's "errors corrected" status, treated as success
	// (spec §4.10 step 5).
	if status != 0 && status != 1 {
		log.Warn("preflight fsck reported uncorrected errors (exit " + strconv.Itoa(status) + ")")
	}
}

// expandTemplate expands every element of tmpl against vars, draining
// the Expander's error list instead of silently ignoring parse errors
// (unlike template.ArglistBuild, which cannot report them).
func expandTemplate(tmpl []string, vars volume.VariableMap) ([]string, error) {
	exp := template.New()
	argv := make([]string, len(tmpl))
	for i, t := range tmpl {
		argv[i] = exp.Expand(t, vars)
	}
	if errs := exp.Errors(); len(errs) > 0 {
		return nil, coreerr.Wrap(coreerr.TemplateExpand, "expanding helper command", errs[0])
	}
	return argv, nil
}

// resolveIdentity looks username up and reports its uid/gid plus a
// ready-made subprocess.Identity, or ok=false if username is empty or
// unknown (the caller then runs/creates as whatever identity the
// process already has).
func resolveIdentity(username string) (uid, gid int, identity *subprocess.Identity, ok bool) {
	if username == "" {
		return 0, 0, nil, false
	}
	u, err := user.Lookup(username)
	if err != nil {
		return 0, 0, nil, false
	}
	uid, _ = strconv.Atoi(u.Uid)
	gid, _ = strconv.Atoi(u.Gid)
	return uid, gid, &subprocess.Identity{Uid: uint32(uid), Gid: uint32(gid), Home: u.HomeDir, User: username}, true
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
