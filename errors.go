// Completion: 100% - Diagnostic collection complete, clear and helpful messages
package main

import (
	"fmt"
	"strings"
)

// ErrorLevel indicates the severity of a diagnostic
type ErrorLevel int

const (
	LevelWarning ErrorLevel = iota
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of diagnostic
type ErrorCategory int

const (
	CategoryInternal ErrorCategory = iota
	CategoryResource
	CategoryAdvisory
	CategoryHardware
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryInternal:
		return "internal"
	case CategoryResource:
		return "resource"
	case CategoryAdvisory:
		return "advisory"
	case CategoryHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// SourceLocation represents a position in the original source code,
// as carried through the IL
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

func (loc SourceLocation) String() string {
	if loc.File == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// ErrorContext provides additional context for a diagnostic
type ErrorContext struct {
	Function   string // Function being generated when the problem surfaced
	Suggestion string // "Did you mean 'x'?"
	HelpText   string // Explanatory help text
}

// CompilerError represents a single code generation diagnostic
type CompilerError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	Context  ErrorContext
}

// Error implements the error interface
func (e CompilerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

// Format returns a nicely formatted diagnostic with context
func (e CompilerError) Format(useColor bool) string {
	var sb strings.Builder

	// Header
	if useColor {
		if e.Level == LevelWarning {
			sb.WriteString("\033[1;33m") // Bold yellow
		} else {
			sb.WriteString("\033[1;31m") // Bold red
		}
	}
	sb.WriteString(e.Level.String())
	sb.WriteString(": ")
	if useColor {
		sb.WriteString("\033[0m") // Reset
	}
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	// Location
	if useColor {
		sb.WriteString("\033[1;34m") // Bold blue
	}
	sb.WriteString("  --> ")
	sb.WriteString(e.Location.String())
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString("\n")

	// Enclosing function
	if e.Context.Function != "" {
		sb.WriteString("   in: ")
		sb.WriteString(e.Context.Function)
		sb.WriteString("\n")
	}

	// Suggestion
	if e.Context.Suggestion != "" {
		if useColor {
			sb.WriteString("\033[1;32m") // Bold green
		}
		sb.WriteString("   help: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Context.Suggestion)
		sb.WriteString("\n")
	}

	// Help text
	if e.Context.HelpText != "" {
		if useColor {
			sb.WriteString("\033[1;36m") // Bold cyan
		}
		sb.WriteString("   note: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Context.HelpText)
		sb.WriteString("\n")
	}

	return sb.String()
}

// ErrorCollector accumulates diagnostics across a whole module so that
// one broken function does not hide problems in the next one
type ErrorCollector struct {
	errors    []CompilerError
	warnings  []CompilerError
	maxErrors int
}

// NewErrorCollector creates a new error collector
func NewErrorCollector(maxErrors int) *ErrorCollector {
	if maxErrors <= 0 {
		maxErrors = 20 // Default: stop after 20 errors
	}
	return &ErrorCollector{
		errors:    make([]CompilerError, 0),
		warnings:  make([]CompilerError, 0),
		maxErrors: maxErrors,
	}
}

// AddError adds a diagnostic, routing warnings to the warning list
func (ec *ErrorCollector) AddError(err CompilerError) {
	if err.Level == LevelFatal || err.Level == LevelError {
		ec.errors = append(ec.errors, err)
	} else {
		ec.warnings = append(ec.warnings, err)
	}
}

// AddWarning adds a warning
func (ec *ErrorCollector) AddWarning(warn CompilerError) {
	warn.Level = LevelWarning
	ec.warnings = append(ec.warnings, warn)
}

// HasErrors returns true if any errors were collected
func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.errors) > 0
}

// HasFatalError returns true if any fatal errors were collected
func (ec *ErrorCollector) HasFatalError() bool {
	for _, err := range ec.errors {
		if err.Level == LevelFatal {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of errors
func (ec *ErrorCollector) ErrorCount() int {
	return len(ec.errors)
}

// WarningCount returns the number of warnings
func (ec *ErrorCollector) WarningCount() int {
	return len(ec.warnings)
}

// ShouldStop returns true if we've hit the error limit
func (ec *ErrorCollector) ShouldStop() bool {
	return len(ec.errors) >= ec.maxErrors
}

// Errors returns the collected errors in the order they were added
func (ec *ErrorCollector) Errors() []CompilerError {
	return ec.errors
}

// Warnings returns the collected warnings in the order they were added
func (ec *ErrorCollector) Warnings() []CompilerError {
	return ec.warnings
}

// Report formats all errors and warnings for display
func (ec *ErrorCollector) Report(useColor bool) string {
	var sb strings.Builder

	for i, err := range ec.errors {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(err.Format(useColor))
	}

	for i, warn := range ec.warnings {
		if i > 0 || len(ec.errors) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(warn.Format(useColor))
	}

	// Summary
	if len(ec.errors) > 0 || len(ec.warnings) > 0 {
		sb.WriteString("\n")
		if len(ec.errors) > 0 {
			if useColor {
				sb.WriteString("\033[1;31m")
			}
			sb.WriteString(fmt.Sprintf("%d error(s)", len(ec.errors)))
			if useColor {
				sb.WriteString("\033[0m")
			}
		}
		if len(ec.warnings) > 0 {
			if len(ec.errors) > 0 {
				sb.WriteString(", ")
			}
			if useColor {
				sb.WriteString("\033[1;33m")
			}
			sb.WriteString(fmt.Sprintf("%d warning(s)", len(ec.warnings)))
			if useColor {
				sb.WriteString("\033[0m")
			}
		}
		sb.WriteString(" found\n")
	}

	return sb.String()
}

// Clear resets the error collector
func (ec *ErrorCollector) Clear() {
	ec.errors = make([]CompilerError, 0)
	ec.warnings = make([]CompilerError, 0)
}

// Helper functions for creating common diagnostics

// UnresolvableValueError reports an IL value with no tracked location.
// This points at a bug in the lowering, not in the input program.
func UnresolvableValueError(id, fn string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryInternal,
		Message:  fmt.Sprintf("value '%s' has no tracked location", id),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
			HelpText: "This is an internal code generator error. Please report this bug.",
		},
	}
}

// MalformedILError reports structurally invalid input
func MalformedILError(message string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryInternal,
		Message:  message,
		Location: loc,
	}
}

// SpillExhaustedError reports that a function needs more spill cells
// than the machine profile provides
func SpillExhaustedError(fn string, need, have int, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryResource,
		Message:  fmt.Sprintf("function '%s' exhausts the zero-page spill pool (%d byte(s) requested, %d available)", fn, need, have),
		Location: loc,
		Context: ErrorContext{
			Function:   fn,
			Suggestion: "split the function or reduce the number of live values",
		},
	}
}

// ZeroPageExhaustedError reports overflow of a named zero-page region
func ZeroPageExhaustedError(region, fn string, need, have int, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryResource,
		Message:  fmt.Sprintf("zero-page region '%s' exhausted in '%s' (%d byte(s) requested, %d available)", region, fn, need, have),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
		},
	}
}

// ParamWindowOverflowError reports a signature too wide for the
// zero-page parameter window
func ParamWindowOverflowError(fn string, need, have int, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryResource,
		Message:  fmt.Sprintf("parameter list of '%s' needs %d byte(s) but the zero-page parameter window holds %d", fn, need, have),
		Location: loc,
		Context: ErrorContext{
			Function:   fn,
			Suggestion: "pass fewer or narrower parameters",
		},
	}
}

// ReadOnlyWriteError reports a store to a read-only binding
func ReadOnlyWriteError(sym, fn string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryHardware,
		Message:  fmt.Sprintf("write to read-only location '%s'", sym),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
		},
	}
}

// CallbackSignatureError reports an interrupt callback with parameters
// or a result
func CallbackSignatureError(fn string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryHardware,
		Message:  fmt.Sprintf("interrupt callback '%s' must take no parameters and return nothing", fn),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
			HelpText: "Interrupt entry carries no arguments on this CPU; callbacks communicate through globals.",
		},
	}
}

// UnknownVectorError reports a callback bound to a vector the machine
// profile does not define
func UnknownVectorError(fn, vector string, known []string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryHardware,
		Message:  fmt.Sprintf("function '%s' is bound to unknown interrupt vector '%s'", fn, vector),
		Location: loc,
		Context: ErrorContext{
			Function:   fn,
			Suggestion: fmt.Sprintf("known vectors: %s", strings.Join(known, ", ")),
		},
	}
}

// RecursionAdvisory warns about a recursive call cycle, which the
// packed parameter window does not support
func RecursionAdvisory(fn string, cycle []string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelWarning,
		Category: CategoryAdvisory,
		Message:  fmt.Sprintf("function '%s' is recursive; zero-page parameters and locals are not reentrant", fn),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
			HelpText: fmt.Sprintf("call cycle: %s", strings.Join(cycle, " -> ")),
		},
	}
}

// TailCallAdvisory warns about a self tail call, which is safe for
// parameters but still reuses the same locals
func TailCallAdvisory(fn string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelWarning,
		Category: CategoryAdvisory,
		Message:  fmt.Sprintf("function '%s' tail-calls itself; locals are shared across iterations", fn),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
		},
	}
}

// CallDepthAdvisory warns when the static call graph is deeper than
// the configured threshold
func CallDepthAdvisory(fn string, depth, threshold int, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelWarning,
		Category: CategoryAdvisory,
		Message:  fmt.Sprintf("call path through '%s' is %d frames deep (threshold %d)", fn, depth, threshold),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
			HelpText: "The hardware stack holds 256 bytes shared by JSR return addresses and interrupt state.",
		},
	}
}

// IsrHelperAdvisory warns that an interrupt callback calls a runtime
// helper. Helpers stage operands in the shared scratch bytes, and the
// interrupted code may be inside the same helper.
func IsrHelperAdvisory(fn, helper string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelWarning,
		Category: CategoryAdvisory,
		Message:  fmt.Sprintf("interrupt callback '%s' calls runtime helper '%s', whose scratch bytes are shared with interrupted code", fn, helper),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
			HelpText: "Move multiplies, divides and variable shifts out of the handler, or guard them with sei/cli in the main program.",
		},
	}
}

// SpillPressureAdvisory warns when a function keeps most of the spill
// pool busy at its peak
func SpillPressureAdvisory(fn string, peak, capacity int, loc SourceLocation) CompilerError {
	pct := 0
	if capacity > 0 {
		pct = peak * 100 / capacity
	}
	return CompilerError{
		Level:    LevelWarning,
		Category: CategoryAdvisory,
		Message:  fmt.Sprintf("function '%s' uses %d of %d spill byte(s) at its peak (%d%%)", fn, peak, capacity, pct),
		Location: loc,
		Context: ErrorContext{
			Function: fn,
		},
	}
}

// FatalError creates a fatal internal error
func FatalError(message string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryInternal,
		Message:  message,
		Location: loc,
		Context: ErrorContext{
			HelpText: "This is an internal code generator error. Please report this bug.",
		},
	}
}
