package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"audioloop/internal/config"
)

var (
	Version = "dev"
	Commit  = "none"
)

type Dependencies struct {
	Config config.Config
	Stdin  io.Reader
	Stdout io.Writer
}

func (d *Dependencies) stdin() io.Reader {
	if d.Stdin == nil {
		return os.Stdin
	}
	return d.Stdin
}

func (d *Dependencies) stdout() io.Writer {
	if d.Stdout == nil {
		return os.Stdout
	}
	return d.Stdout
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "audioloop",
		Short:         "Record, convert and play back audio with one key",
		Long:          "audioloop records the microphone to WAV, converts the recording to AAC and plays it back.\nEach press of Enter advances to the next step.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("audioloop %s, commit %s\n", Version, Commit))

	rootCmd.AddCommand(NewRunCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
