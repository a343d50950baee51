//go:build unix

package envfile

import (
	"fmt"
	"os/exec"
	"syscall"
)

// Exec replaces the current process with argv run under env
func Exec(argv []string, env []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no command given")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return err
	}
	return syscall.Exec(path, argv, env)
}
