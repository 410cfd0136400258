// Package service installs "scribe serve" as a systemd unit on Linux or a
// launchd daemon on macOS.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const (
	launchdLabel = "com.kayz.scribe"
	systemdUnit  = "scribe"
	logPath      = "/var/log/scribe.log"
)

// Spec describes what the installed service runs.
type Spec struct {
	BinaryPath string
	// ConfigPath is passed as --config when set.
	ConfigPath string
	LogPath    string
}

// Paths returns the installed binary and service definition paths.
func Paths() (binaryPath, unitPath string, err error) {
	return pathsFor(runtime.GOOS)
}

func pathsFor(goos string) (string, string, error) {
	switch goos {
	case "darwin":
		return "/usr/local/bin/scribe", "/Library/LaunchDaemons/" + launchdLabel + ".plist", nil
	case "linux":
		return "/usr/local/bin/scribe", "/etc/systemd/system/" + systemdUnit + ".service", nil
	default:
		return "", "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

// IsInstalled checks whether the service definition and binary exist.
func IsInstalled() bool {
	binaryPath, unitPath, err := Paths()
	if err != nil {
		return false
	}
	if _, err := os.Stat(unitPath); err != nil {
		return false
	}
	_, err = os.Stat(binaryPath)
	return err == nil
}

// IsRunning checks whether the service is active.
func IsRunning() bool {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("launchctl", "list", launchdLabel).Run() == nil
	case "linux":
		return exec.Command("systemctl", "is-active", "--quiet", systemdUnit).Run() == nil
	default:
		return false
	}
}

// Install copies sourceBinary into place, writes the service definition and
// enables it. configPath may be empty.
func Install(sourceBinary, configPath string) error {
	binaryPath, unitPath, err := Paths()
	if err != nil {
		return err
	}
	if configPath != "" {
		if configPath, err = filepath.Abs(configPath); err != nil {
			return err
		}
	}

	if err := copyBinary(sourceBinary, binaryPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}

	def, err := Render(runtime.GOOS, Spec{BinaryPath: binaryPath, ConfigPath: configPath, LogPath: logPath})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(unitPath, []byte(def), 0644); err != nil {
		return fmt.Errorf("failed to write service definition: %w", err)
	}

	if err := enable(unitPath); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}
	return nil
}

// Uninstall stops and removes the service.
func Uninstall() error {
	binaryPath, unitPath, err := Paths()
	if err != nil {
		return err
	}
	_ = Stop()

	switch runtime.GOOS {
	case "darwin":
		_ = exec.Command("launchctl", "unload", unitPath).Run()
	case "linux":
		_ = exec.Command("systemctl", "disable", systemdUnit).Run()
		_ = exec.Command("systemctl", "daemon-reload").Run()
	}

	os.Remove(unitPath)
	os.Remove(binaryPath)
	return nil
}

// Start starts the service.
func Start() error {
	_, unitPath, err := Paths()
	if err != nil {
		return err
	}
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("launchctl", "load", unitPath).Run()
	default:
		return exec.Command("systemctl", "start", systemdUnit).Run()
	}
}

// Stop stops the service.
func Stop() error {
	_, unitPath, err := Paths()
	if err != nil {
		return err
	}
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("launchctl", "unload", unitPath).Run()
	default:
		return exec.Command("systemctl", "stop", systemdUnit).Run()
	}
}

// Restart restarts the service. A stop failure is ignored since the
// service might not be running.
func Restart() error {
	_ = Stop()
	return Start()
}

// Render returns the service definition for goos.
func Render(goos string, spec Spec) (string, error) {
	if spec.LogPath == "" {
		spec.LogPath = logPath
	}
	args := []string{spec.BinaryPath, "serve"}
	if spec.ConfigPath != "" {
		args = append(args, "--config", spec.ConfigPath)
	}

	var text string
	switch goos {
	case "darwin":
		text = launchdPlistTemplate
	case "linux":
		text = systemdUnitTemplate
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
	tmpl, err := template.New(goos).Parse(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	err = tmpl.Execute(&b, map[string]any{
		"Label":   launchdLabel,
		"Args":    args,
		"Command": strings.Join(args, " "),
		"LogPath": spec.LogPath,
	})
	return b.String(), err
}

func copyBinary(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0755)
}

func enable(unitPath string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("launchctl", "load", unitPath).Run()
	default:
		if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
			return err
		}
		return exec.Command("systemctl", "enable", systemdUnit).Run()
	}
}

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>
    <key>StandardErrorPath</key>
    <string>{{.LogPath}}</string>
</dict>
</plist>
`

const systemdUnitTemplate = `[Unit]
Description=scribe document interview bot
After=network.target

[Service]
Type=simple
ExecStart={{.Command}}
Restart=always
RestartSec=5
StandardOutput=append:{{.LogPath}}
StandardError=append:{{.LogPath}}

[Install]
WantedBy=multi-user.target
`
