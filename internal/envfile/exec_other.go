//go:build !unix

package envfile

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Exec runs argv under env and exits with its status, since the process
// cannot be replaced on this platform
func Exec(argv []string, env []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no command given")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	if err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
