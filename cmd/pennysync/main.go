// Command pennysync extracts expense records from bank notification mails
// and syncs them into the expense store.
package main

import (
	"fmt"
	"os"

	"github.com/rushikc/pennywise-sync/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.FromEnv())

	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "run":
		err = runSync(logger, false)
	case "daemon":
		err = runSync(logger, true)
	case "backfill-tags":
		err = runBackfill(logger)
	case "setup":
		err = runSetup(logger)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: pennysync [command]

Commands:
  run            run one sync batch (default)
  daemon         run sync batches on an interval
  backfill-tags  re-tag stored expenses from the vendor-tag map
  setup          run the Google OAuth flow and cache the token
  help           show this message

Configuration is read from the environment (and an optional config.json);
see pkg/config for the variable names.`)
}
