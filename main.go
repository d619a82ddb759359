// tb-repair: automatic repair of cluster instances on failed nodes.
//
// Each invocation runs a single reconciliation pass and exits; schedule it
// periodically (cron or a systemd timer).
//
// Usage:
//
//	tb-repair --endpoint /var/run/ganeti/socket/ganeti-master
//	tb-repair --endpoint ssh://root@master.example.com/var/run/ganeti/socket/ganeti-master --dry-run
//	tb-repair --config /etc/tb-repair/config.toml
package main

import "github.com/tinkerbelle-io/tb-repair/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
