package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/openjd-adaptors/max-openjd/cli/submittercli"
	"github.com/openjd-adaptors/max-openjd/common/log/hooks"
)

// Submitter binary: builds Open Job Description job bundles from 3ds Max
// scenes.
//	Supported commands: (see "-h" for all options)
//		submit --scene-manifest <path> [settings flags]
//		install-menu --startup-dir <path>
//		version

func main() {
	log.AddHook(hooks.NewContextHook())

	if err := submittercli.New().Exec(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
