// Package playbook applies an Ansible playbook to a reachable host as a
// resource.
//
// Change detection is content addressed: the MD5 of the playbook file is
// recorded after every successful run, and a later diff reports a change
// only when the file's hash differs from the recorded one. After each run
// the declared artifact files are read back from the host over SSH.
package playbook
