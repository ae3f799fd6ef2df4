package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"audioloop/internal/audio"
)

var ErrPrerequisitesMissing = errors.New("some prerequisites are missing")

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := NewFormatter(deps.stdout())
			if !runDoctor(deps, f) {
				f.Warning("some prerequisites are missing")
				return ErrPrerequisitesMissing
			}
			f.Info("All prerequisites met. Ready to record!")
			return nil
		},
	}
}

func runDoctor(deps *Dependencies, f *Formatter) bool {
	cfg := deps.Config
	ok := true

	for _, tool := range []struct{ name, command string }{
		{"ffmpeg", cfg.Audio.FFmpegCommand},
		{"ffplay", cfg.Audio.FFplayCommand},
	} {
		if path, err := audio.CheckCommand(tool.command); err != nil {
			f.Check(tool.name, false, err.Error())
			ok = false
		} else {
			f.Check(tool.name, true, path)
		}
	}

	if err := os.MkdirAll(cfg.Artifacts.Dir, 0o755); err != nil {
		f.Check("artifact directory", false, err.Error())
		ok = false
	} else if probe, err := os.CreateTemp(cfg.Artifacts.Dir, ".audioloop-doctor-*"); err != nil {
		f.Check("artifact directory", false, err.Error())
		ok = false
	} else {
		_ = probe.Close()
		_ = os.Remove(probe.Name())
		f.Check("artifact directory", true, cfg.Artifacts.Dir)
	}

	if cfg.Path != "" {
		f.Check("config file", true, cfg.Path)
	} else {
		f.Check("config file", true, "none (defaults and environment)")
	}
	f.Check("input", true, cfg.Audio.InputFormat+":"+cfg.Audio.InputDevice)
	return ok
}
