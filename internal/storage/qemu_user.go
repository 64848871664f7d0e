package storage

import (
	"bufio"
	"os"
	"os/user"
	"strings"
	"sync"
)

// qemuConfPath is where libvirt's qemu driver configures its process user.
var qemuConfPath = "/etc/libvirt/qemu.conf"

// fallbackQEMUID is the qemu uid/gid on Fedora and RHEL.
const fallbackQEMUID = "107"

var (
	qemuUID  string
	qemuGID  string
	qemuOnce sync.Once
)

// qemuOwner returns the uid and gid that qemu runs as, so seed images are
// readable by the hypervisor. The lookup runs once per process.
func qemuOwner() (uid, gid string) {
	qemuOnce.Do(func() {
		qemuUID, qemuGID = lookupQEMUOwner(qemuConfPath)
	})
	return qemuUID, qemuGID
}

// lookupQEMUOwner resolves the configured user and group from confPath,
// then well-known account names, then the fallback id.
func lookupQEMUOwner(confPath string) (uid, gid string) {
	username, groupname := readQEMUConf(confPath)

	if username != "" {
		if u, err := user.Lookup(username); err == nil {
			gid = u.Gid
			if groupname != "" {
				if g, err := user.LookupGroup(groupname); err == nil {
					gid = g.Gid
				}
			}
			return u.Uid, gid
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, err := user.Lookup(name); err == nil {
			return u.Uid, u.Gid
		}
	}

	return fallbackQEMUID, fallbackQEMUID
}

// readQEMUConf extracts the user and group settings from qemu.conf.
func readQEMUConf(path string) (username, groupname string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}

	return username, groupname
}
