package loreline

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/google/uuid"
)

// InterpreterStatus is the Interpreter's coarse run state.
type InterpreterStatus int

const (
	StatusReady InterpreterStatus = iota
	StatusAwaitingDialogue
	StatusAwaitingChoice
	StatusFinished
	StatusFailed
)

// DialogueContinuation resumes execution past a suspended Text node. It
// must be invoked exactly once; a second invocation fails with
// ErrDoubleContinuation (spec §4.6).
type DialogueContinuation func() error

// ChoiceSelector resumes execution past a suspended Choice node, index
// being the option's absolute position in the declared list (spec §4.6).
type ChoiceSelector func(index int) error

// ChoiceOptionView is one entry of the option list handed to ChoiceFunc.
type ChoiceOptionView struct {
	Text    string
	Tags    []TagMarker
	Enabled bool
}

type DialogueFunc func(character string, text string, tags []TagMarker, cont DialogueContinuation)
type ChoiceFunc func(options []ChoiceOptionView, selector ChoiceSelector)
type FinishFunc func()

// maxRunSteps bounds a single uninterrupted run() loop: a script that
// transitions between beats forever without ever reaching a Text or
// Choice node would otherwise spin the Go call stack's host goroutine
// indefinitely (spec §4.6's infinite-loop guard, ErrInfiniteLoopGuard).
const maxRunSteps = 1000000

type stackFrame struct {
	beat  string
	block *Block
	index int
	scope *scope
}

type nodeLoc struct {
	block *Block
	index int
}

// Interpreter is a tree-walking evaluator over a parsed Script, driven
// by an explicit frame stack rather than native-call recursion so that
// dialogue/choice suspension can pause and later resume mid-tree (spec
// §4.6, §9). It generalizes the teacher's ExecutionContext
// (context.go)'s Public/Private layering into named frames: one global
// state frame, one frame per character, and persistent/transient
// frames per beat.
type Interpreter struct {
	script    *Script
	opts      *Options
	filename  string
	sessionID string

	global         FieldsObject
	characters     map[string]FieldsObject
	beatPersistent map[string]FieldsObject
	beatTransient  map[string]FieldsObject

	stack       []stackFrame
	currentBeat string

	status InterpreterStatus
	epoch  int
	err    error

	rng *rngState

	locations map[NodeId]nodeLoc
	beats     map[string]*BeatDecl

	onDialogue DialogueFunc
	onChoice   ChoiceFunc
	onFinish   FinishFunc
}

func newInterpreter(script *Script, onDialogue DialogueFunc, onChoice ChoiceFunc, onFinish FinishFunc, opts *Options) (*Interpreter, error) {
	if opts == nil {
		opts = &Options{}
	}
	ip := &Interpreter{
		script:         script,
		opts:           opts,
		characters:     make(map[string]FieldsObject),
		beatPersistent: make(map[string]FieldsObject),
		beatTransient:  make(map[string]FieldsObject),
		locations:      make(map[NodeId]nodeLoc),
		beats:          make(map[string]*BeatDecl),
		onDialogue:     onDialogue,
		onChoice:       onChoice,
		onFinish:       onFinish,
	}
	ip.sessionID = uuid.NewString()
	ip.rng = newRNGFromSeed(randomSeed(), randomSeed())
	ip.global = ip.newFields("global", "")

	for _, d := range script.Declarations {
		switch decl := d.(type) {
		case *StateDecl:
			if err := ip.applyFieldAssigns(ip.global, decl.Fields, nil, ""); err != nil {
				return nil, err
			}
		case *CharacterDecl:
			f := ip.newFields("character", decl.Name)
			if err := ip.applyFieldAssigns(f, decl.Fields, nil, ""); err != nil {
				return nil, err
			}
			ip.characters[decl.Name] = f
		case *BeatDecl:
			ip.beats[decl.Name] = decl
			ip.indexBlock(decl.Body)
		}
	}
	return ip, nil
}

func randomSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0x9e3779b97f4a7c15
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// newFields constructs a fresh FieldsObject, deferring to
// Options.CustomCreateFields when the host registered one (spec §4.8).
// kind is "global", "character", "beat-persistent" or "beat-transient";
// name is the character identifier or beat name the frame belongs to.
func (ip *Interpreter) newFields(kind, name string) FieldsObject {
	var f FieldsObject
	if ip.opts.CustomCreateFields != nil {
		if custom := ip.opts.CustomCreateFields(ip, kind, name); custom != nil {
			f = custom
		}
	}
	if f == nil {
		f = newMapFields()
	}
	f.OnCreate(ip)
	return f
}

func (ip *Interpreter) applyFieldAssigns(dest FieldsObject, assigns []FieldAssign, sc *scope, beat string) error {
	for _, fa := range assigns {
		v, err := ip.eval(fa.Value, sc, beat)
		if err != nil {
			return err
		}
		dest.Set(fa.Name, v)
	}
	return nil
}

// indexBlock records, for every statement reachable from b, the block
// and index it lives at, so a saved NodeId cursor (save.go) can be
// relocated without re-parsing.
func (ip *Interpreter) indexBlock(b *Block) {
	if b == nil {
		return
	}
	for i, stmt := range b.Statements {
		ip.locations[stmt.ID()] = nodeLoc{block: b, index: i}
		switch s := stmt.(type) {
		case *IfStmt:
			ip.indexBlock(s.Then)
			ip.indexBlock(s.Else)
		case *ChoiceStmt:
			for _, opt := range s.Options {
				ip.indexBlock(opt.Body)
			}
		}
	}
}

// Start begins execution at the named beat, discarding any prior stack.
func (ip *Interpreter) Start(beatName string) error {
	beat, ok := ip.beats[beatName]
	if !ok {
		return newError(ErrUnknownBeat, "interpreter", ip.filename, Position{}, "no such beat %q", beatName)
	}
	ip.stack = nil
	ip.enterBeat(beatName, beat)
	ip.status = StatusReady
	return ip.run()
}

func (ip *Interpreter) enterBeat(name string, beat *BeatDecl) {
	ip.opts.logf("entering beat %q", name)
	ip.currentBeat = name
	ip.stack = append(ip.stack, stackFrame{beat: name, block: beat.Body, index: 0, scope: newScope(nil)})
}

// Resume continues a restored or otherwise paused interpreter from its
// recorded cursor. It is distinct from the per-suspension
// DialogueContinuation/ChoiceSelector closures: those resume past one
// specific Text/Choice node; Resume restarts the statement loop itself,
// used after Restore populates the stack from a save payload.
func (ip *Interpreter) Resume() error {
	if ip.status == StatusAwaitingDialogue || ip.status == StatusAwaitingChoice {
		return newError(ErrDoubleContinuation, "interpreter", ip.filename, Position{}, "cannot call Resume while awaiting a dialogue or choice continuation")
	}
	if ip.status == StatusFinished {
		return nil
	}
	ip.status = StatusReady
	return ip.run()
}

// run drives the frame stack statement-by-statement until the script
// finishes, suspends on a Text/Choice node, or fails. A frame's index
// is advanced past a statement only once that statement has fully
// executed without suspending; a suspending statement (Text, Choice)
// leaves the frame's index pointing at itself, so a cursor captured by
// Save while awaiting a continuation names the suspended statement —
// restoring and resuming re-presents it rather than skipping past it.
func (ip *Interpreter) run() error {
	steps := 0
	for {
		steps++
		if steps > maxRunSteps {
			err := newError(ErrInfiniteLoopGuard, "interpreter", ip.filename, Position{}, "exceeded %d statement steps without suspending", maxRunSteps)
			ip.status = StatusFailed
			ip.err = err
			return err
		}
		if len(ip.stack) == 0 {
			ip.status = StatusFinished
			if ip.onFinish != nil {
				ip.onFinish()
			}
			return nil
		}
		i := len(ip.stack) - 1
		block := ip.stack[i].block
		idx := ip.stack[i].index
		if block == nil || idx >= len(block.Statements) {
			ip.stack = ip.stack[:i]
			continue
		}
		stmt := block.Statements[idx]
		beat := ip.stack[i].beat
		sc := ip.stack[i].scope

		suspended, err := ip.execStmt(stmt, beat, sc, i, idx)
		if err != nil {
			ip.opts.logf("beat %q failed: %v", beat, err)
			ip.status = StatusFailed
			ip.err = err
			return err
		}
		if suspended {
			return nil
		}
		if i < len(ip.stack) && ip.stack[i].block == block && ip.stack[i].scope == sc {
			ip.stack[i].index = idx + 1
		}
	}
}

func (ip *Interpreter) execStmt(stmt Stmt, beat string, sc *scope, frameIdx, stmtIdx int) (bool, error) {
	switch s := stmt.(type) {
	case *TextStmt:
		return ip.execText(s, beat, sc, frameIdx, stmtIdx)
	case *AssignStmt:
		return false, ip.execAssign(s, sc, beat)
	case *IfStmt:
		return false, ip.execIf(s, beat, sc)
	case *ChoiceStmt:
		return ip.execChoice(s, beat, sc, frameIdx, stmtIdx)
	case *TransitionStmt:
		return false, ip.execTransition(s)
	case *CallStmt:
		_, err := ip.evalCall(s.Call, sc, beat)
		return false, err
	case *StateDecl:
		return false, ip.execLocalState(beat, s, sc)
	}
	return false, newError(ErrUnexpectedToken, "interpreter", ip.filename, stmt.Pos(), "unsupported statement node")
}

func (ip *Interpreter) execText(s *TextStmt, beat string, sc *scope, frameIdx, stmtIdx int) (bool, error) {
	text, tags, err := ip.renderText(s.ID(), s.Fragments, sc, beat)
	if err != nil {
		return false, err
	}
	epoch := ip.epoch
	ip.status = StatusAwaitingDialogue
	cont := func() error {
		if ip.status != StatusAwaitingDialogue || epoch != ip.epoch {
			return newError(ErrDoubleContinuation, "interpreter", ip.filename, s.Pos(), "dialogue continuation already used")
		}
		ip.epoch++
		ip.status = StatusReady
		ip.stack[frameIdx].index = stmtIdx + 1
		return ip.run()
	}
	if ip.onDialogue != nil {
		ip.onDialogue(s.Character, text, tags, cont)
	}
	return true, nil
}

func (ip *Interpreter) execIf(s *IfStmt, beat string, sc *scope) error {
	cond, err := ip.eval(s.Cond, sc, beat)
	if err != nil {
		return err
	}
	blk := s.Else
	if cond.Truthy() {
		blk = s.Then
	}
	if blk != nil && len(blk.Statements) > 0 {
		ip.stack = append(ip.stack, stackFrame{beat: beat, block: blk, index: 0, scope: newScope(sc)})
	}
	return nil
}

func (ip *Interpreter) execChoice(s *ChoiceStmt, beat string, sc *scope, frameIdx, stmtIdx int) (bool, error) {
	views := make([]ChoiceOptionView, len(s.Options))
	for i, opt := range s.Options {
		text, tags, err := ip.renderText(opt.ID(), opt.Prompt, sc, beat)
		if err != nil {
			return false, err
		}
		enabled := true
		if opt.Guard != nil {
			if err := ip.checkGuardPurity(opt.Guard); err != nil {
				return false, err
			}
			v, err := ip.eval(opt.Guard, sc, beat)
			if err != nil {
				return false, err
			}
			enabled = v.Truthy()
		}
		views[i] = ChoiceOptionView{Text: text, Tags: tags, Enabled: enabled}
	}
	epoch := ip.epoch
	ip.status = StatusAwaitingChoice
	selector := func(index int) error {
		if ip.status != StatusAwaitingChoice || epoch != ip.epoch {
			return newError(ErrDoubleContinuation, "interpreter", ip.filename, s.Pos(), "choice selector already used")
		}
		if index < 0 || index >= len(s.Options) {
			return newError(ErrUnexpectedToken, "interpreter", ip.filename, s.Pos(), "choice index %d out of range", index)
		}
		ip.epoch++
		ip.status = StatusReady
		opt := s.Options[index]
		ip.opts.logf("choice index %d selected in beat %q", index, beat)
		ip.stack[frameIdx].index = stmtIdx + 1
		ip.stack = append(ip.stack, stackFrame{beat: beat, block: opt.Body, index: 0, scope: newScope(sc)})
		return ip.run()
	}
	if ip.onChoice != nil {
		ip.onChoice(views, selector)
	}
	return true, nil
}

func (ip *Interpreter) execTransition(s *TransitionStmt) error {
	if s.Self {
		beat, ok := ip.beats[ip.currentBeat]
		if !ok {
			return newError(ErrUnknownBeat, "interpreter", ip.filename, s.Pos(), "no such beat %q", ip.currentBeat)
		}
		delete(ip.beatTransient, ip.currentBeat)
		ip.stack = ip.stack[:0]
		ip.enterBeat(ip.currentBeat, beat)
		return nil
	}
	beat, ok := ip.beats[s.Target]
	if !ok {
		return newError(ErrUnknownBeat, "interpreter", ip.filename, s.Pos(), "no such beat %q", s.Target)
	}
	ip.stack = ip.stack[:0]
	ip.enterBeat(s.Target, beat)
	return nil
}

func (ip *Interpreter) execLocalState(beat string, decl *StateDecl, sc *scope) error {
	if decl.New {
		f := ip.newFields("beat-transient", beat)
		if err := ip.applyFieldAssigns(f, decl.Fields, sc, beat); err != nil {
			return err
		}
		ip.beatTransient[beat] = f
		return nil
	}
	if _, ok := ip.beatPersistent[beat]; ok {
		return nil
	}
	f := ip.newFields("beat-persistent", beat)
	if err := ip.applyFieldAssigns(f, decl.Fields, sc, beat); err != nil {
		return err
	}
	ip.beatPersistent[beat] = f
	return nil
}

// GetCharacterField returns a character field's current value.
func (ip *Interpreter) GetCharacterField(character, field string) (Value, error) {
	f, ok := ip.characters[character]
	if !ok {
		return Null, newError(ErrUnknownCharacter, "interpreter", ip.filename, Position{}, "unknown character %q", character)
	}
	v, _ := f.Get(field)
	return v, nil
}

// SetCharacterField writes a character field.
func (ip *Interpreter) SetCharacterField(character, field string, value Value) error {
	f, ok := ip.characters[character]
	if !ok {
		return newError(ErrUnknownCharacter, "interpreter", ip.filename, Position{}, "unknown character %q", character)
	}
	f.Set(field, value)
	return nil
}

// Play parses nothing itself — it drives an already-parsed Script from
// beatName, the host-facing convenience entry point named in the
// external interface table.
func Play(script *Script, onDialogue DialogueFunc, onChoice ChoiceFunc, onFinish FinishFunc, beatName string, opts *Options) (*Interpreter, error) {
	ip, err := newInterpreter(script, onDialogue, onChoice, onFinish, opts)
	if err != nil {
		return nil, err
	}
	if err := ip.Start(beatName); err != nil && ip.status == StatusFailed {
		return ip, err
	}
	return ip, nil
}

// Resume parses nothing either — it restores an interpreter from a save
// payload and continues it, falling back to Start(beatName) when the
// payload carries an empty execution stack (e.g. a save taken at the
// very top, before Start was ever called).
func Resume(script *Script, onDialogue DialogueFunc, onChoice ChoiceFunc, onFinish FinishFunc, saveData, beatName string, opts *Options) (*Interpreter, error) {
	ip, err := newInterpreter(script, onDialogue, onChoice, onFinish, opts)
	if err != nil {
		return nil, err
	}
	if err := ip.Restore(saveData); err != nil {
		return nil, err
	}
	if len(ip.stack) == 0 {
		if err := ip.Start(beatName); err != nil && ip.status == StatusFailed {
			return ip, err
		}
		return ip, nil
	}
	if err := ip.Resume(); err != nil && ip.status == StatusFailed {
		return ip, err
	}
	return ip, nil
}
