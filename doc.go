// Package subproc manages child processes: launch with redirected standard
// streams, wait and poll with exactly-one-reap semantics, signal, and exchange
// input and output without pipe-buffer deadlocks.
//
// The package is the convenience facade; the heavy lifting lives in focused
// subpackages:
//
//   - process: Cmd configuration, Proc lifecycle, Communicate
//   - stream: handles, pipes and redirection Specs
//   - shell: command-line tokenizing and quoting
//   - config: YAML configuration
//   - observability: OpenTelemetry metrics, audit trail
//   - hooks: launch-lifecycle extension points
//   - resilience: launch rate limiting and retry backoff
//
// # Quick Start
//
//	code, err := subproc.Call("ls", "-la")
//
//	out, err := subproc.Output("git", "status")
//
// For full control build a Cmd and drive the Proc directly:
//
//	cmd := subproc.Command("cat").
//	    WithStdin(subproc.UsePipe()).
//	    WithStdout(subproc.UsePipe()).
//	    MustBuild()
//	p, err := subproc.StartProc(cmd)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//	res, err := p.Communicate([]byte("hello\n"))
//
// # Thread Safety
//
// A Proc may be shared: concurrent Wait and Poll calls serialize on an
// internal reap lock so the child is reaped exactly once and every caller
// observes the same return code.
package subproc
