//go:build windows

package process

// shellCommand maps a shell line onto the spawn configuration: Windows passes
// the line verbatim to the native create-process call.
func shellCommand(line string) (argv []string, cmdline string) {
	return nil, line
}
