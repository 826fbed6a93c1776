// Package lua runs device scripts on an embedded Lua interpreter.
package lua

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/hoststack"
)

// OutputRecord is one line a script printed.
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
}

// Error describes a failed load or run.
type Error struct {
	Type       string // "syntax", "runtime", "api"
	Message    string
	Line       int
	Source     string
	Underlying error
}

func (e *Error) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, "in "+e.Source)
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}

	prefix := "Lua " + e.Type + " error"
	if len(parts) > 0 {
		prefix += " (" + strings.Join(parts, ", ") + ")"
	}
	return prefix + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches another *Error of the same Type.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Type == other.Type
	}
	return false
}

// Engine owns one Lua state. print() output is captured into a ring channel.
type Engine struct {
	mu     sync.Mutex
	state  *lua.State
	logger *logrus.Logger
	output *hoststack.RingChannel[OutputRecord]
}

// NewEngine creates an engine with the standard libraries loaded.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		logger: logger,
		output: hoststack.NewRingChannel[OutputRecord](256),
	}
	e.Reset()
	return e
}

// Reset replaces the Lua state with a fresh one.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != nil {
		e.state.Close()
	}
	e.state = lua.NewState()
	e.state.OpenLibs()
	e.registerPrint()
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}

// Output delivers printed lines; records are dropped oldest first when
// nobody reads.
func (e *Engine) Output() <-chan OutputRecord {
	return e.output.C()
}

// Do runs fn with exclusive access to the state. fn must not call back into
// the engine.
func (e *Engine) Do(fn func(L *lua.State)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return &Error{Type: "api", Message: "engine closed"}
	}
	fn(e.state)
	return nil
}

// Wrap guards a Go function exposed to Lua: a Go panic becomes a Lua error
// instead of tearing down the process.
func (e *Engine) Wrap(name string, fn lua.LuaGoFunction) lua.LuaGoFunction {
	return func(L *lua.State) (ret int) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.WithFields(logrus.Fields{
					"function": name,
					"panic":    r,
				}).Debugf("Lua binding failed\n%s", debug.Stack())
				L.RaiseError(fmt.Sprintf("%s: %v", name, r))
			}
		}()
		return fn(L)
	}
}

// SetArgs publishes args as the global table arg.
func (e *Engine) SetArgs(args map[string]string) error {
	return e.Do(func(L *lua.State) {
		L.NewTable()
		for k, v := range args {
			L.PushString(v)
			L.SetField(-2, k)
		}
		L.SetGlobal("arg")
	})
}

// LoadFile reads a script from disk.
func LoadFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return string(content), nil
}

// Check compiles script without running it.
func (e *Engine) Check(script, name string) error {
	if strings.TrimSpace(script) == "" {
		return &Error{Type: "api", Message: "empty script", Source: name}
	}

	var loadErr error
	err := e.Do(func(L *lua.State) {
		if status := L.LoadString(script); status != 0 {
			msg := "non-string error object"
			if L.IsString(-1) {
				msg = L.ToString(-1)
			}
			L.Pop(1)
			loadErr = parseError(msg, "syntax", name, nil)
			return
		}
		L.Pop(1)
	})
	if err != nil {
		return err
	}
	return loadErr
}

// Execute compiles and runs script. Failures are also reported on the
// stderr output stream.
func (e *Engine) Execute(script, name string) error {
	if err := e.Check(script, name); err != nil {
		e.emit("stderr", err.Error())
		return err
	}

	var runErr error
	err := e.Do(func(L *lua.State) {
		if err := L.DoString(script); err != nil {
			runErr = parseError(err.Error(), "runtime", name, err)
		}
	})
	if err != nil {
		return err
	}
	if runErr != nil {
		e.emit("stderr", runErr.Error())
	}
	return runErr
}

// parseError splits a chunk message like `[string "..."]:12: message` into
// line and message.
func parseError(msg, typ, source string, cause error) *Error {
	line := 0
	if i := strings.Index(msg, "]:"); i >= 0 {
		rest := msg[i+2:]
		if _, err := fmt.Sscanf(rest, "%d:", &line); err == nil {
			if j := strings.Index(rest, ":"); j >= 0 {
				msg = strings.TrimSpace(rest[j+1:])
			}
		}
	}
	return &Error{Type: typ, Message: msg, Line: line, Source: source, Underlying: cause}
}

func (e *Engine) emit(source, content string) {
	e.output.Send(OutputRecord{Content: content, Timestamp: time.Now(), Source: source})
}

// registerPrint replaces print with a version that feeds Output.
func (e *Engine) registerPrint() {
	e.state.Register("print", func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			case L.IsNumber(i) || L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}
		e.emit("stdout", strings.Join(parts, "\t"))
		return 0
	})
}
