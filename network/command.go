package network

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// runCommand runs the given command and returns its standard output. On
// failure the error carries the command line and its combined output.
func runCommand(ctx context.Context, args ...string) ([]byte, error) {
	log.Debug(strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Errorf("run %q: %s: %s", cmd, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
