package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models/config"
)

const TranscoderPluginID string = "Transcoder"

// Transcoder turns formats the Go decoders cannot read into png, for
// comparison only.
type Transcoder struct {
	config config.TranscoderConfig
}

func newTranscoder() *Transcoder {
	return &Transcoder{}
}

func (t *Transcoder) Name() string {
	return "Transcoder"
}
func (t *Transcoder) ID() string {
	return TranscoderPluginID
}
func (t *Transcoder) Load(app interfaces.IApplication) error {
	t.config = app.GetAppConfig().Transcoder
	if _, err := exec.LookPath(t.config.Command); err != nil {
		slog.Warn("transcode command not found, conversions will fail", "command", t.config.Command, "error", err)
	}
	return nil
}
func (t *Transcoder) Unload() {
}
func (t *Transcoder) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.TranscoderServiceID:
		return t, nil
	}
	return nil, unsupportedService(serviceID)
}

func (t *Transcoder) NeedsTranscode(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range t.config.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (t *Transcoder) ToPNG(ctx context.Context, input, output string) error {
	logger := slog.With("input", input, "output", output)
	outputDir := filepath.Dir(output)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		logger.Error("create transcode output dir failed", "path", outputDir, "error", err)
		return err
	}
	cmd := exec.CommandContext(ctx, t.config.Command, input, "png:"+output)
	var errOut strings.Builder
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		logger.Error("transcode image failed", "error", err, "stderr", errOut.String(), "exit code", exitCode, "cmd", cmd.String())
		return fmt.Errorf("transcode %s: %w", input, err)
	}
	return nil
}
