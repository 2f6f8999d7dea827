package firewall

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// DefaultPHPPath - PHP CLI on pfSense.
const DefaultPHPPath = "/usr/local/bin/php"

// DefaultTimeout - Per-command timeout.
const DefaultTimeout = 10 * time.Second

// ErrNoAuthMethod - Neither password nor private key configured.
var ErrNoAuthMethod = errors.New("no SSH auth method configured")

// Config - Connection settings for the firewall.
type Config struct {
	Address        string `json:"address" toml:"address"`
	Port           uint   `json:"port" toml:"port"` // Optional, default 22
	Username       string `json:"username" toml:"username"`
	Password       string `json:"password" toml:"password"`
	PrivateKeyPath string `json:"private_key_path" toml:"private_key_path"`
	PHPPath        string `json:"php_path" toml:"php_path"`
}

// The includes every script gets, most calls need at least one of them.
const phpPrelude = `<?php
ini_set('display_errors', 0);
require_once '/etc/inc/config.inc';
require_once '/etc/inc/util.inc';
require_once '/etc/inc/system.inc';
require_once '/etc/inc/interfaces.inc';
require_once '/etc/inc/pfsense-utils.inc';
require_once '/etc/inc/service-utils.inc';
require_once '/usr/local/www/includes/functions.inc.php';
global $config;
$data = json_decode(base64_decode('%s'), true);
`

const phpEpilogue = `
echo json_encode($toreturn);
`

// SSHClient - Client which runs PHP snippets on the firewall over SSH and decodes their JSON output.
type SSHClient struct {
	config     Config
	sshConfig  *ssh.ClientConfig
	address    string
	dialer     net.Dialer
	runTimeout time.Duration
}

// NewSSHClient - Create a client. Connections are opened per call.
func NewSSHClient(config Config) (*SSHClient, error) {
	authMethods := make([]ssh.AuthMethod, 0)
	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}
	if config.PrivateKeyPath != "" {
		privkey, err := os.ReadFile(config.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH private key %v: %w", config.PrivateKeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(privkey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH private key %v: %w", config.PrivateKeyPath, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if len(authMethods) == 0 {
		return nil, ErrNoAuthMethod
	}
	if config.PHPPath == "" {
		config.PHPPath = DefaultPHPPath
	}

	port := uint(22)
	if config.Port > 0 {
		port = config.Port
	}

	return &SSHClient{
		config: config,
		sshConfig: &ssh.ClientConfig{
			User:            config.Username,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Auth:            authMethods,
			Timeout:         DefaultTimeout,
		},
		address:    net.JoinHostPort(config.Address, strconv.FormatUint(uint64(port), 10)),
		runTimeout: DefaultTimeout,
	}, nil
}

func (client *SSHClient) openSSHClient(ctx context.Context) (*ssh.Client, error) {
	conn, err := client.dialer.DialContext(ctx, "tcp", client.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to firewall %v: %w", client.address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	sshConn, channels, requests, err := ssh.NewClientConn(conn, client.address, client.sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open SSH connection to %v: %w", client.address, err)
	}
	return ssh.NewClient(sshConn, channels, requests), nil
}

// Open SSH connection and run a single command, returning STDOUT.
func (client *SSHClient) runSSHCommand(ctx context.Context, command string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, client.runTimeout)
	defer cancel()

	sshClient, err := client.openSSHClient(ctx)
	if err != nil {
		return nil, err
	}
	defer sshClient.Close()
	session, err := sshClient.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()
	select {
	case err = <-done:
	case <-ctx.Done():
		// Closing the connection unblocks Run
		sshClient.Close()
		return nil, ctx.Err()
	}

	if stderr.Len() > 0 {
		log.WithFields(log.Fields{
			"firewall": client.config.Address,
		}).Tracef("Received STDERR: %v", strings.TrimSpace(stderr.String()))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run SSH command: %w", err)
	}
	return stdout.Bytes(), nil
}

// Run a PHP snippet which assigns $toreturn, with params available as $data, and decode the result into destination.
func (client *SSHClient) execPHP(ctx context.Context, script string, params interface{}, destination interface{}) error {
	encodedParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode script params: %w", err)
	}
	fullScript := fmt.Sprintf(phpPrelude, base64.StdEncoding.EncodeToString(encodedParams)) + script + phpEpilogue
	command := fmt.Sprintf("echo %s | b64decode -r | %s -q", base64.StdEncoding.EncodeToString([]byte(fullScript)), client.config.PHPPath)

	output, err := client.runSSHCommand(ctx, command)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bytes.TrimSpace(output), destination); err != nil {
		return fmt.Errorf("failed to decode script output: %w", err)
	}
	return nil
}

// Scripts return {"data": ...}, this unwraps it.
func (client *SSHClient) execPHPData(ctx context.Context, script string, params interface{}, destination interface{}) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := client.execPHP(ctx, script, params, &wrapper); err != nil {
		return err
	}
	if len(wrapper.Data) == 0 || string(wrapper.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(wrapper.Data, destination); err != nil {
		return fmt.Errorf("failed to decode script data: %w", err)
	}
	return nil
}

// GetSystemInfo - Hostname, domain and unique device ID.
func (client *SSHClient) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	err := client.execPHP(ctx, `
$toreturn = [
  "hostname" => $config["system"]["hostname"],
  "domain" => $config["system"]["domain"],
  "serial" => system_get_serial(),
  "netgate_device_id" => system_get_uniqueid(),
  "platform" => system_identify_specific_platform()["descr"],
];
`, nil, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetHostFirmwareVersion - Platform and firmware version.
func (client *SSHClient) GetHostFirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	var version FirmwareVersion
	err := client.execPHPData(ctx, `
$toreturn = [
  "data" => host_firmware_version(),
];
`, nil, &version)
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// GetTelemetry - System, interface, gateway, filesystem and OpenVPN telemetry.
func (client *SSHClient) GetTelemetry(ctx context.Context) (*Telemetry, error) {
	var raw map[string]interface{}
	if err := client.execPHP(ctx, telemetryScript, nil, &raw); err != nil {
		return nil, err
	}
	// Empty PHP arrays encode as lists
	if _, ok := raw["gateways"].([]interface{}); ok {
		raw["gateways"] = map[string]interface{}{}
	}
	return NewTelemetry(raw), nil
}

// GetConfig - The full firewall configuration.
func (client *SSHClient) GetConfig(ctx context.Context) (map[string]interface{}, error) {
	var config map[string]interface{}
	err := client.execPHPData(ctx, `
$toreturn = [
  "data" => $config,
];
`, nil, &config)
	return config, err
}

// GetInterfaces - The interfaces configuration section.
func (client *SSHClient) GetInterfaces(ctx context.Context) (map[string]interface{}, error) {
	var interfaces map[string]interface{}
	err := client.execPHPData(ctx, `
$toreturn = [
  "data" => $config["interfaces"],
];
`, nil, &interfaces)
	return interfaces, err
}

// GetServices - Services with their enabled and running state.
func (client *SSHClient) GetServices(ctx context.Context) ([]Service, error) {
	var services []Service
	err := client.execPHPData(ctx, `
$services = [];
foreach (get_services() as $service) {
  if (!is_array($service) || empty($service)) {
    continue;
  }
  $service["enabled"] = is_service_enabled($service["name"]);
  $service["status"] = is_service_running($service["name"]);
  $services[] = $service;
}
$toreturn = [
  "data" => $services,
];
`, nil, &services)
	return services, err
}

// GetCARPInterfaces - CARP virtual IPs with their status.
func (client *SSHClient) GetCARPInterfaces(ctx context.Context) ([]CARPInterface, error) {
	var vips []CARPInterface
	err := client.execPHPData(ctx, `
$vips = [];
foreach ((array) $config['virtualip']['vip'] as $vip) {
  if ($vip["mode"] != "carp") {
    continue;
  }
  $vip["status"] = get_carp_interface_status("_vip{$vip['uniqid']}");
  $vips[] = $vip;
}
$toreturn = [
  "data" => $vips,
];
`, nil, &vips)
	return vips, err
}

// GetCARPStatus - Whether CARP is enabled.
func (client *SSHClient) GetCARPStatus(ctx context.Context) (bool, error) {
	var status bool
	err := client.execPHPData(ctx, `
$toreturn = [
  "data" => (bool) get_carp_status(),
];
`, nil, &status)
	return status, err
}

// GetDHCPLeases - Current DHCP leases.
func (client *SSHClient) GetDHCPLeases(ctx context.Context) ([]Lease, error) {
	var leases []Lease
	err := client.execPHPData(ctx, `
$leases = system_get_dhcpleases();
$toreturn = [
  "data" => $leases["lease"],
];
`, nil, &leases)
	return leases, err
}

// GetARPTable - The ARP table. forceRefresh resolves hostnames on the firewall.
func (client *SSHClient) GetARPTable(ctx context.Context, forceRefresh bool) ([]ARPEntry, error) {
	var entries []ARPEntry
	err := client.execPHPData(ctx, `
$toreturn = [
  "data" => system_get_arp_table($data["resolve_hostnames"]),
];
`, map[string]interface{}{"resolve_hostnames": forceRefresh}, &entries)
	return entries, err
}

// DeleteARPEntry - Delete an ARP entry so the firewall re-learns it.
func (client *SSHClient) DeleteARPEntry(ctx context.Context, ipAddress string) error {
	if ipAddress == "" {
		return nil
	}
	var ret interface{}
	return client.execPHPData(ctx, `
$toreturn = [
  "data" => mwexec("arp -d " . escapeshellarg(trim($data["ip"])), true),
];
`, map[string]interface{}{"ip": ipAddress}, &ret)
}

const telemetryScript = `
function stripalpha($s) {
  return preg_replace("/\D/", "", $s);
}

$mbuf = null;
$mbufpercent = null;
get_mbuf($mbuf, $mbufpercent);
$mbuf_parts = explode("/", $mbuf);

$boottime = exec_command("sysctl kern.boottime");
preg_match("/sec = [0-9]*/", $boottime, $matches);
$boottime = (int) trim(explode("=", $matches[0])[1]);

$pfstate_parts = explode("/", get_pfstate());
$cpu_usage_parts = explode("|", cpu_usage());
$cpu_load_average_parts = explode(",", get_load_average());
$cpu_frequency_parts = explode(",", get_cpufreq());
$memory_parts = explode("\n", exec_command("sysctl hw.physmem hw.usermem hw.realmem vm.swap_total vm.swap_reserved"));

$filesystems = get_mounted_filesystems();
foreach ($filesystems as &$fs) {
  $fs["percent_used"] = (int) $fs["percent_used"];
}

$toreturn = [
  "pfstate" => [
    "used" => (int) $pfstate_parts[0],
    "total" => (int) $pfstate_parts[1],
    "used_percent" => floatval(get_pfstate(true)),
  ],
  "mbuf" => [
    "used" => (int) $mbuf_parts[0],
    "total" => (int) $mbuf_parts[1],
    "used_percent" => floatval($mbufpercent),
  ],
  "memory" => [
    "swap_used_percent" => floatval(swap_usage()),
    "used_percent" => floatval(mem_usage()),
    "physmem" => (int) trim(explode(":", $memory_parts[0])[1]),
    "usermem" => (int) trim(explode(":", $memory_parts[1])[1]),
    "realmem" => (int) trim(explode(":", $memory_parts[2])[1]),
    "swap_total" => (int) trim(explode(":", $memory_parts[3])[1]),
    "swap_reserved" => (int) trim(explode(":", $memory_parts[4])[1]),
  ],
  "system" => [
    "boottime" => $boottime,
    "uptime" => (int) get_uptime_sec(),
    "temp" => floatval(get_temp()),
  ],
  "cpu" => [
    "frequency" => [
      "current" => (int) stripalpha($cpu_frequency_parts[0]),
      "max" => (int) stripalpha($cpu_frequency_parts[1]),
    ],
    "count" => (int) get_cpu_count(),
    "used_percent" => floatval(100 - (100 * $cpu_usage_parts[1] / max(1, $cpu_usage_parts[0]))),
    "load_average" => [
      "one_minute" => floatval(trim($cpu_load_average_parts[0])),
      "five_minute" => floatval(trim($cpu_load_average_parts[1])),
      "fifteen_minute" => floatval(trim($cpu_load_average_parts[2])),
    ],
  ],
  "filesystems" => $filesystems,
  "interfaces" => [],
  "openvpn" => ["servers" => []],
  "gateways" => return_gateways_status(true),
];

foreach (get_configured_interface_with_descr() as $ifdescr => $ifname) {
  $info = get_interface_info($ifdescr);
  $info["descr"] = $ifname;
  $info["ifname"] = $ifdescr;
  $toreturn["interfaces"][$ifdescr] = $info;
}

foreach (openvpn_get_active_servers() as $server) {
  $recv = 0;
  $sent = 0;
  foreach ($server["conns"] as $conn) {
    $recv += $conn["bytes_recv"];
    $sent += $conn["bytes_sent"];
  }
  $toreturn["openvpn"]["servers"][$server["vpnid"]] = [
    "name" => $server["name"],
    "vpnid" => $server["vpnid"],
    "connected_client_count" => count($server["conns"]),
    "total_bytes_recv" => $recv,
    "total_bytes_sent" => $sent,
  ];
}
`
