package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnsupported is returned when no clipboard tool is available
var ErrUnsupported = errors.New("clipboard is not supported on this system")

// Backend reads and writes the system clipboard
type Backend interface {
	Write(text string) error
	Read() (string, error)
	Name() string
}

// command drives a pair of copy/paste programs
type command struct {
	name  string
	copy  []string
	paste []string
}

var (
	pbcopy     = command{"pbcopy", []string{"pbcopy"}, []string{"pbpaste"}}
	wlCopy     = command{"wl-copy", []string{"wl-copy"}, []string{"wl-paste", "--no-newline"}}
	xclip      = command{"xclip", []string{"xclip", "-selection", "clipboard"}, []string{"xclip", "-selection", "clipboard", "-output"}}
	xsel       = command{"xsel", []string{"xsel", "--clipboard", "--input"}, []string{"xsel", "--clipboard", "--output"}}
	powershell = command{"powershell", []string{"powershell", "-NoProfile", "-Command", "$input | Set-Clipboard"}, []string{"powershell", "-NoProfile", "-Command", "Get-Clipboard -Raw"}}
)

// candidates lists the tools to try for goos, in order of preference
func candidates(goos string, wayland bool) []command {
	switch goos {
	case "darwin":
		return []command{pbcopy}
	case "windows":
		return []command{powershell}
	case "linux", "freebsd", "openbsd", "netbsd":
		if wayland {
			return []command{wlCopy, xclip, xsel}
		}
		return []command{xclip, xsel, wlCopy}
	}
	return nil
}

// Detect picks the first clipboard tool found on PATH
func Detect() (Backend, error) {
	for _, c := range candidates(runtime.GOOS, os.Getenv("WAYLAND_DISPLAY") != "") {
		if available(c.copy[0]) && available(c.paste[0]) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w (%s)", ErrUnsupported, runtime.GOOS)
}

func available(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}

func (c command) Name() string { return c.name }

func (c command) Write(text string) error {
	cmd := exec.Command(c.copy[0], c.copy[1:]...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (c command) Read() (string, error) {
	out, err := exec.Command(c.paste[0], c.paste[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	if c.name == "powershell" {
		return strings.TrimRight(string(out), "\r\n"), nil
	}
	return string(out), nil
}
