package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

// Options controls the behaviour of the setup routine.
type Options struct {
	// BinaryPath is the busd executable the unit starts.
	BinaryPath string
	// WorkDir is the WorkingDirectory for the busd systemd unit.
	// Example: /var/lib/msgbus
	WorkDir    string
	DataDir    string
	LogDir     string
	ListenAddr string
	TopicsFile string
	LogLevel   string
	// ServicePath is where the unit file is written. Empty skips it.
	ServicePath string
	// StartService runs systemctl after writing the unit.
	StartService bool
	DryRun       bool
}

// Result collects output and executed commands.
type Result struct {
	Commands []string
	Unit     string
}

const serviceName = "busd"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=msgbus daemon
After=network.target

[Service]
Type=simple
WorkingDirectory={{.WorkDir}}
Environment=MSGBUS_HTTP_LISTEN={{.ListenAddr}}
Environment=MSGBUS_DB_PATH={{.DBPath}}
{{- if .TopicsFile}}
Environment=MSGBUS_TOPICS_FILE={{.TopicsFile}}
{{- end}}
{{- if .LogLevel}}
Environment=MSGBUS_LOG_LEVEL={{.LogLevel}}
{{- end}}
ExecStart={{.BinaryPath}}
Restart=always
RestartSec=5
StandardOutput=append:{{.LogFile}}
StandardError=append:{{.LogFile}}

[Install]
WantedBy=multi-user.target
`))

// Run prepares directories and the systemd unit for busd.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.WorkDir) == "" {
		opts.WorkDir = "/var/lib/msgbus"
	}
	if opts.DataDir == "" {
		opts.DataDir = opts.WorkDir
	}
	if opts.LogDir == "" {
		opts.LogDir = "/var/log/msgbus"
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1:7780"
	}

	res := &Result{}
	for _, dir := range []string{opts.WorkDir, opts.DataDir, opts.LogDir} {
		if err := ensureDir(dir, opts.DryRun, res); err != nil {
			return nil, err
		}
	}

	if opts.TopicsFile != "" {
		abs, err := filepath.Abs(opts.TopicsFile)
		if err != nil {
			return nil, fmt.Errorf("resolve topics file: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("topics file: %w", err)
		}
		opts.TopicsFile = abs
	}

	if opts.ServicePath == "" {
		return res, nil
	}
	if err := writeServiceFile(opts, res); err != nil {
		return nil, err
	}
	if opts.StartService {
		if err := runCommand(ctx, []string{"systemctl", "daemon-reload"}, opts.DryRun, res, false); err != nil {
			return nil, err
		}
		if err := runCommand(ctx, []string{"systemctl", "enable", "--now", serviceName}, opts.DryRun, res, true); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func ensureDir(path string, dryRun bool, res *Result) error {
	if path == "" {
		return errors.New("directory path cannot be empty")
	}
	res.Commands = append(res.Commands, fmt.Sprintf("mkdir -p %s", path))
	if dryRun {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", path, err)
	}
	return nil
}

func runCommand(ctx context.Context, args []string, dryRun bool, res *Result, ignoreErrors bool) error {
	res.Commands = append(res.Commands, strings.Join(args, " "))
	if dryRun {
		return nil
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if err := cmd.Run(); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("run %v: %w", args, err)
	}
	return nil
}

func renderUnit(opts Options) (string, error) {
	var sb strings.Builder
	err := unitTemplate.Execute(&sb, struct {
		Options
		DBPath  string
		LogFile string
	}{
		Options: opts,
		DBPath:  filepath.Join(opts.DataDir, "catalog.db"),
		LogFile: filepath.Join(opts.LogDir, serviceName+".log"),
	})
	if err != nil {
		return "", fmt.Errorf("render service unit: %w", err)
	}
	return sb.String(), nil
}

func writeServiceFile(opts Options, res *Result) error {
	if opts.BinaryPath == "" {
		return errors.New("server binary path required when writing service file")
	}

	unit, err := renderUnit(opts)
	if err != nil {
		return err
	}
	res.Unit = unit
	res.Commands = append(res.Commands, fmt.Sprintf("write service file %s", opts.ServicePath))
	if opts.DryRun {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.ServicePath), 0o755); err != nil {
		return fmt.Errorf("prepare service directory: %w", err)
	}
	if err := os.WriteFile(opts.ServicePath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("write service file: %w", err)
	}
	return nil
}
