//go:build unix

package process

// shellCommand maps a shell line onto the spawn configuration: POSIX runs it
// through the system shell.
func shellCommand(line string) (argv []string, cmdline string) {
	return []string{"/bin/sh", "-c", line}, ""
}
