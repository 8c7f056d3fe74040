package adaptorcli

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/openjd-adaptors/max-openjd/adaptor"
)

// hostFlags pick the 3ds Max executable the session drives. They ride along
// from `daemon start` into the hidden backend and client modes.
type hostFlags struct {
	maxExe  string
	maxArgs []string
}

func (f *hostFlags) register(cmd flagSet) {
	cmd.StringVar(&f.maxExe, "max-exe", "3dsmaxbatch", "3ds Max executable to drive")
	cmd.StringArrayVar(&f.maxArgs, "max-arg", nil, "extra argument for the 3ds Max executable (repeatable)")
}

func (f *hostFlags) argv() []string {
	return append([]string{f.maxExe}, f.maxArgs...)
}

// passthrough rebuilds the flags for re-exec into the backend.
func (f *hostFlags) passthrough() []string {
	args := []string{"--max-exe", f.maxExe}
	for _, a := range f.maxArgs {
		args = append(args, "--max-arg", a)
	}
	return args
}

type flagSet interface {
	StringVar(p *string, name string, value string, usage string)
	StringArrayVar(p *[]string, name string, value []string, usage string)
}

// newSessionAdaptor builds the adaptor for one render session. The work
// directory is the connection file's directory, which under a job is the
// session working directory.
func newSessionAdaptor(initArg, connFile string, host hostFlags) (*adaptor.Adaptor, error) {
	var init adaptor.InitData
	if err := adaptor.ParseDataArg(initArg, &init); err != nil {
		return nil, errors.Wrap(err, "parsing init data")
	}

	self, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "locating own executable")
	}

	clientArgv := append([]string{self, "_client", "--max-exe", host.maxExe}, hostArgPairs(host.maxArgs)...)
	return adaptor.New(init, adaptor.Config{
		WorkDir:    filepath.Dir(connFile),
		ClientArgv: clientArgv,
		Status:     adaptor.NewOpenJDStatus(os.Stdout),
	}), nil
}

func hostArgPairs(args []string) []string {
	var out []string
	for _, a := range args {
		out = append(out, "--max-arg", a)
	}
	return out
}
