package gateway

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"ogkb/ogkbd/internal/audit"
)

// maxLoggedUA bounds the user agent in REQ lines.
const maxLoggedUA = 80

// Gateway ties the chain, the audit log and the executor together. Decide is
// phase one and runs on the request goroutine; Commit hands phase two to the
// worker and must be called only after the response has been written.
type Gateway struct {
	Chain    Chain
	Audit    audit.Recorder
	Executor Executor
	Worker   *Worker

	// optional observers, used for metrics
	OnDecision func(Decision)
	OnExec     func(ExecResult)
}

func New(rec audit.Recorder, exec Executor, w *Worker) *Gateway {
	return &Gateway{Chain: DefaultChain, Audit: rec, Executor: exec, Worker: w}
}

// Decide logs the request, runs the chain and logs the verdict.
func (g *Gateway) Decide(req Request) Decision {
	g.Audit.Record(fmt.Sprintf("REQ method=%s remote=%s sid=%s ua=%s",
		req.Method, req.Remote, shortID(req.SessionID), truncate(req.UserAgent, maxLoggedUA)))

	d := g.Chain.Authorize(req)
	if d.Allowed() {
		g.Audit.Record("ALLOW ok:true issuing shutdown")
	} else {
		g.Audit.Record(denyLine(d, req))
	}
	if g.OnDecision != nil {
		g.OnDecision(d)
	}
	return d
}

// Commit queues exactly one execution for an allowed decision. Denied
// decisions are ignored, so a caller cannot reach the executor by mistake.
func (g *Gateway) Commit(d Decision) error {
	if !d.Allowed() {
		return nil
	}
	if err := g.Worker.Submit(g.run); err != nil {
		// the verdict was already logged; record that nothing ran
		g.Audit.Record(fmt.Sprintf("EXEC rc=-1 not_started err=%q", err.Error()))
		return err
	}
	return nil
}

func (g *Gateway) run(ctx context.Context) {
	res := g.Executor.Execute(ctx)
	g.Audit.Record(execLine(res))
	if g.OnExec != nil {
		g.OnExec(res)
	}
}

func denyLine(d Decision, req Request) string {
	line := fmt.Sprintf("DENY %d %s", d.Status(), d.Reason)
	switch d.Reason {
	case ReasonBadToken:
		line += fmt.Sprintf(" token_len=%d", len(req.SubmittedToken))
	case ReasonNetworkBlock:
		line += " remote=" + req.Remote
	}
	return line
}

func execLine(res ExecResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EXEC rc=%d", res.Code)
	switch {
	case res.TimedOut:
		b.WriteString(" timeout")
	case res.Signaled:
		fmt.Fprintf(&b, " signal err=%q", res.Err.Error())
	case res.Err != nil:
		fmt.Fprintf(&b, " spawn_error err=%q", res.Err.Error())
	}
	b.WriteString(" out=")
	b.WriteString(FlattenOutput(res.Output, MaxLoggedOutput))
	return b.String()
}

// shortID keeps enough of a session id to correlate lines without writing a
// usable identifier to the log.
func shortID(id string) string {
	if id == "" {
		return "-"
	}
	return truncate(id, 8)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
