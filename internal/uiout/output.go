// Package uiout provides context-scoped progress and log output for the
// aggsync CLI: a spinner while an operation is in flight, plain log lines
// otherwise, and a verbose mode that trades the spinner for timestamped
// lines on stderr.
package uiout

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
)

// There is one and only one standard out, which is used for logging and for the spinner.
// Using a spinner will lock this for the entire time it's active, and writes to standard out
// will lock this to avoid stepping on each other, on the spinner, or on logs queued while the
// spinner is active being printed when the spinner context is cancelled.
var stdOutLock sync.Mutex

// isStdoutTerminal returns true iff standard output is an interactive terminal.
func isStdoutTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// isStderrTerminal returns true iff standard err is an interactive terminal.
func isStderrTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// EchoLogsToStdErr returns true iff messages sent to standard out should
// also be echoed to standard error.
func EchoLogsToStdErr() bool {
	return (isStdoutTerminal() != isStderrTerminal()) || (!isStdoutTerminal() && !isStderrTerminal())
}

// ShowTerminalCursor emits the escape code needed to show the cursor on standard out,
// iff standard out is a terminal.
func ShowTerminalCursor() {
	if !isStdoutTerminal() {
		return
	}
	// from Go sample at https://rosettacode.org/wiki/Terminal_control/Hiding_the_cursor#Escape_code
	fmt.Print("\033[?25h")
}

type contextKey string

func (c contextKey) String() string {
	return "uiout context key " + string(c)
}

// Out carries the current output mode (verbose/spinner state) through a context.Context.
type Out struct {
	isVerbose     bool
	spinner       *spinner.Spinner
	spinLogBuffer *spinningLogBuffer
	lastProgress  *int64
}

var outContextKey = contextKey("out")

// From returns the Out attached to ctx, or a bare non-verbose Out if none was attached.
func From(ctx context.Context) Out {
	out, ok := ctx.Value(outContextKey).(Out)
	if ok {
		return out
	}
	return Out{}
}

// With attaches a bare Out to ctx if one isn't already present.
func With(ctx context.Context) context.Context {
	_, ok := ctx.Value(outContextKey).(Out)
	if ok {
		return ctx
	}
	return context.WithValue(ctx, outContextKey, Out{})
}

// WithVerbose attaches a verbose Out to ctx.
func WithVerbose(ctx context.Context) context.Context {
	out, ok := ctx.Value(outContextKey).(Out)
	if !ok {
		out = Out{}
	}
	out.isVerbose = true
	return context.WithValue(ctx, outContextKey, out)
}

func initSpinner(ctx context.Context) (context.Context, context.CancelFunc) {
	out, ok := ctx.Value(outContextKey).(Out)
	if !ok {
		out = Out{}
	}

	if out.isVerbose || !isStdoutTerminal() {
		return context.WithCancel(context.WithValue(ctx, outContextKey, out))
	}

	if out.spinner != nil {
		// never start a second spinner.
		return context.WithCancel(context.WithValue(ctx, outContextKey, out))
	}

	stdOutLock.Lock()
	out.spinner = spinner.New(spinner.CharSets[14], 50*time.Millisecond)
	out.spinLogBuffer = &spinningLogBuffer{}
	_ = out.spinner.Color("reset")
	out.spinner.HideCursor = true
	out.spinner.Start()

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		<-ctx.Done()
		out.spinner.Stop()
		ShowTerminalCursor()
		stdOutLock.Unlock()
		if out.spinLogBuffer != nil && len(out.spinLogBuffer.logs) > 0 {
			out.LogMulti(out.spinLogBuffer.logs)
			out.spinLogBuffer.logs = nil
		}
	}()

	return context.WithValue(ctx, outContextKey, out), cancel
}

// WithSpinner starts a spinner (or falls back to verbose logging / no-op) with the given
// initial suffix message, returning an updater and a cancel func that stops the spinner.
func WithSpinner(ctx context.Context, initialMsg string) (context.Context, func(string), context.CancelFunc) {
	ctx, cancel := initSpinner(ctx)
	out, ok := ctx.Value(outContextKey).(Out)
	if !ok {
		panic("initSpinner must set outContextKey")
	}
	if out.spinner == nil {
		if out.isVerbose {
			return ctx, func(s string) {
				out.Verbose(s)
			}, cancel
		}
		// not verbose, but standard out is noninteractive, so do nothing:
		return ctx, func(s string) {}, cancel
	}

	update := func(msg string) {
		maxWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || maxWidth == 0 {
			maxWidth = int(math.Round(80.0 * 0.75))
		} else {
			maxWidth = int(math.Round(float64(maxWidth) * 0.75))
		}

		suffix := " " + msg
		if len(suffix) > maxWidth {
			suffix = suffix[:maxWidth-3] + "..."
		}
		if out.spinner != nil {
			out.spinner.Suffix = suffix
		}
	}
	update(initialMsg)

	return ctx, update, cancel
}

// WithProgress starts a spinner-backed (or verbose/no-op) progress reporter counting up to total.
func WithProgress(ctx context.Context, verb string, total int64) (context.Context, func(int64), context.CancelFunc) {
	ctx, cancel := initSpinner(ctx)
	out, ok := ctx.Value(outContextKey).(Out)
	if !ok {
		panic("initSpinner must set outContextKey")
	}
	if out.lastProgress == nil {
		// needed even if we don't have a spinner, for progress logging in verbose
		p := int64(0)
		out.lastProgress = &p
	}
	if out.spinner == nil {
		if out.isVerbose {
			return ctx, func(progress int64) {
				oldProgress := 10 * float64(*out.lastProgress) / float64(total)
				newProgress := 10 * float64(progress) / float64(total)
				if math.Abs(math.Floor(newProgress)-math.Floor(oldProgress)) > 0.01 {
					out.Verbose(fmt.Sprintf("%s %d / %d (%.f%%)", verb, progress, total, math.Round(10*newProgress)))
				}
				*out.lastProgress = progress
			}, cancel
		}
		return ctx, func(progress int64) {
			oldProgress := float64(*out.lastProgress) / float64(total)
			newProgress := float64(progress) / float64(total)
			if (oldProgress < 0.25 && newProgress >= 0.25) || (oldProgress < 0.5 && newProgress >= 0.5) || (oldProgress < 0.75 && newProgress >= 0.75) || (oldProgress < 1.0 && newProgress >= 1.0) {
				out.Log(fmt.Sprintf("%s %d / %d (%.f%%)", verb, progress, total, math.Round(100*newProgress)))
			}
			*out.lastProgress = progress
		}, cancel
	}

	if len(verb) > 0 {
		verb = " " + verb
	}

	update := func(progress int64) {
		if total > 0 {
			out.spinner.Suffix = fmt.Sprintf("%s %d / %d (%.f%%)", verb, progress, total, math.Round(100*float64(progress)/float64(total)))
		} else {
			out.spinner.Suffix = fmt.Sprintf("%s #%d ...", verb, progress)
		}
	}
	update(0)

	return ctx, update, cancel
}

type spinningLogBuffer struct {
	logs []string
}

// HasSpinner returns true iff a spinner is currently attached.
func (o Out) HasSpinner() bool {
	return o.spinner != nil
}

// Warning logs msg with a "[warning]" prefix.
func (o Out) Warning(msg string) {
	o.Log("[warning] " + msg)
}

// Warnings logs each message with a "[warning]" prefix.
func (o Out) Warnings(msgs []string) {
	for _, msg := range msgs {
		o.Warning(msg)
	}
}

// Log prints msg to standard out, buffering it until an active spinner stops.
func (o Out) Log(msg string) {
	if o.isVerbose && EchoLogsToStdErr() {
		o.Verbose(msg)
	}
	if o.spinner != nil && o.spinner.Active() && o.spinLogBuffer != nil {
		o.spinLogBuffer.logs = append(o.spinLogBuffer.logs, msg)
	} else {
		stdOutLock.Lock()
		defer stdOutLock.Unlock()
		fmt.Println(msg)
	}
}

// LogMulti logs each message in order.
func (o Out) LogMulti(msgs []string) {
	for _, msg := range msgs {
		o.Log(msg)
	}
}

// Verbose logs msg with a timestamp, iff verbose mode is enabled.
func (o Out) Verbose(msg string) {
	if !o.isVerbose {
		return
	}
	log.Println(msg)
}

// VerboseMulti logs each message, iff verbose mode is enabled.
func (o Out) VerboseMulti(msgs []string) {
	if !o.isVerbose {
		return
	}
	for _, msg := range msgs {
		o.Verbose(msg)
	}
}
