package loreline

import (
	"log"
	"os"
)

// HostFunction is a script-callable function registered by the host.
// Pure marks a function as safe to call from a choice-option guard
// under Options.StrictAccess (spec §7's open question on guard
// purity); impure functions called from a guard are rejected with
// ErrGuardImpurity rather than being evaluated twice.
type HostFunction struct {
	Pure bool
	Call func(interp *Interpreter, args []Value) (Value, error)
}

// Options configures a Play/Resume call, generalizing the teacher's
// package-level debug flag (pongo2_options.go) into a per-Interpreter
// options bag the way the teacher's own TemplateSet carries
// per-instance configuration (pongo2_options.go's Options/ExecutionOptions
// family of knobs).
type Options struct {
	// Functions are host-registered callables, keyed by the name
	// scripts invoke them under.
	Functions map[string]HostFunction

	// StrictAccess turns unresolved path lookups into UndefinedReference
	// errors (instead of yielding Null) and enforces guard purity.
	StrictAccess bool

	// CustomCreateFields lets a host back a character or beat state
	// frame with its own object instead of the default ordered map.
	// kind is "global", "character", "beat-persistent" or
	// "beat-transient"; name is the character identifier or beat name the
	// frame belongs to (empty for the global frame).
	CustomCreateFields func(interp *Interpreter, kind, name string) FieldsObject

	// Translations, when set, is consulted before rendering every Text
	// node (spec §4.7).
	Translations *Translations

	// Logger receives diagnostic output when non-nil and Debug is set,
	// mirroring the teacher's logf/Logf helpers generalized to an
	// injectable sink instead of a package-level global.
	Logger *log.Logger
	Debug  bool
}

func (o *Options) logf(format string, args ...any) {
	if o == nil || !o.Debug {
		return
	}
	l := o.Logger
	if l == nil {
		l = log.New(os.Stderr, "[loreline] ", log.LstdFlags)
	}
	l.Printf(format, args...)
}

func (o *Options) lookupFunction(name string) (HostFunction, bool) {
	if o == nil || o.Functions == nil {
		return HostFunction{}, false
	}
	fn, ok := o.Functions[name]
	return fn, ok
}
