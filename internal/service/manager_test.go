package service

import (
	"strings"
	"testing"
)

func TestRenderSystemdUnit(t *testing.T) {
	unit, err := Render("linux", Spec{BinaryPath: "/usr/local/bin/scribe", ConfigPath: "/etc/scribe/.scribe.yaml"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/scribe serve --config /etc/scribe/.scribe.yaml\n") {
		t.Fatalf("unexpected ExecStart:\n%s", unit)
	}
	if !strings.Contains(unit, "StandardOutput=append:/var/log/scribe.log") {
		t.Fatalf("missing default log path:\n%s", unit)
	}
}

func TestRenderLaunchdPlist(t *testing.T) {
	plist, err := Render("darwin", Spec{BinaryPath: "/usr/local/bin/scribe", LogPath: "/tmp/s.log"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "        <string>/usr/local/bin/scribe</string>\n        <string>serve</string>\n    </array>"
	if !strings.Contains(plist, want) {
		t.Fatalf("unexpected arguments:\n%s", plist)
	}
	if strings.Contains(plist, "--config") {
		t.Fatalf("config flag without a config path:\n%s", plist)
	}
	if !strings.Contains(plist, "<string>/tmp/s.log</string>") {
		t.Fatalf("missing log path:\n%s", plist)
	}
}

func TestRenderUnsupported(t *testing.T) {
	if _, err := Render("plan9", Spec{BinaryPath: "/bin/scribe"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, _, err := pathsFor("windows"); err == nil {
		t.Fatalf("expected error")
	}
}
