package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/openjd-adaptors/max-openjd/cli/adaptorcli"
	"github.com/openjd-adaptors/max-openjd/common/log/hooks"
)

// Adaptor binary for rendering 3ds Max scenes under Open Job Description.
//	Supported commands: (see "-h" for all options)
//		daemon start|run|stop [--connection-file ...]
//		run [--init-data ... --run-data ...]
//		version
//	Global flags:
//		--log-level [<error|warn|info|debug> level and above should be logged]

func main() {
	log.AddHook(hooks.NewContextHook())

	if err := adaptorcli.New().Exec(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
