// Package systemd renders unit files for running the gateway as a service.
package systemd

import (
	"fmt"
	"strings"
)

// DefaultBinary is where install scripts place the toolgate binary.
const DefaultBinary = "/usr/local/bin/toolgate"

// UnitOptions configures the serve unit.
type UnitOptions struct {
	Binary  string
	User    string
	Addr    string
	Policy  string
	DataDir string
	// EnvFile holds secrets such as TOOLGATE_SIGNING_KEY and TOOLGATE_JWT_SECRET.
	EnvFile string
}

func (o UnitOptions) withDefaults() UnitOptions {
	if o.Binary == "" {
		o.Binary = DefaultBinary
	}
	if o.User == "" {
		o.User = "toolgate"
	}
	if o.DataDir == "" {
		o.DataDir = "/var/lib/toolgate"
	}
	if o.Policy == "" {
		o.Policy = "/etc/toolgate/policy.yaml"
	}
	if o.EnvFile == "" {
		o.EnvFile = "/etc/toolgate/toolgate.env"
	}
	return o
}

// ServeUnit returns a hardened unit for `toolgate serve`.
// The data directory is the only writable path.
func ServeUnit(o UnitOptions) string {
	o = o.withDefaults()

	args := []string{
		o.Binary, "serve",
		"--log-format", "json",
		"--policy", o.Policy,
		"--audit-log", o.DataDir + "/audit.jsonl",
		"--pending-dir", o.DataDir + "/pending",
		"--tamper-log", o.DataDir + "/tamper.jsonl",
		"--actors", "/etc/toolgate/actors.yaml",
	}
	if o.Addr != "" {
		args = append(args, "--addr", o.Addr)
	}

	return fmt.Sprintf(`[Unit]
Description=toolgate authorization gateway
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=%[1]s
Group=%[1]s
EnvironmentFile=-%[2]s
ExecStart=%[3]s
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths=%[4]s
ReadOnlyPaths=/etc/toolgate

[Install]
WantedBy=multi-user.target
`, o.User, o.EnvFile, strings.Join(args, " "), o.DataDir)
}
