package loreline

import "strings"

// eval evaluates an expression against a lexical scope and the current
// beat, generalizing the teacher's variableResolver (variable.go) from
// "resolve a dotted path against a Context of any" to "resolve against
// the interpreter's layered scope/state/character/global frames".
func (ip *Interpreter) eval(e Expr, sc *scope, beat string) (Value, error) {
	switch x := e.(type) {
	case *LiteralExpr:
		return x.Value, nil
	case *TextExpr:
		text, _, err := ip.renderText(x.ID(), x.Fragments, sc, beat)
		if err != nil {
			return Null, err
		}
		return StringValue(text), nil
	case *PathExpr:
		v, ok, err := ip.resolveGet(x.Path, sc, beat)
		if err != nil {
			return Null, err
		}
		if !ok {
			if ip.opts.StrictAccess {
				return Null, newError(ErrUndefinedReference, "interpreter:eval", ip.filename, x.Pos(), "undefined reference %q", joinDots(x.Path))
			}
			return Null, nil
		}
		return v, nil
	case *UnaryExpr:
		v, err := ip.eval(x.Operand, sc, beat)
		if err != nil {
			return Null, err
		}
		switch x.Op {
		case "!":
			return BoolValue(!v.Truthy()), nil
		case "-":
			if v.Kind == KindFloat {
				return FloatValue(-v.FloatVal), nil
			}
			return IntValue(-v.IntVal), nil
		}
		return Null, newError(ErrMalformedExpression, "interpreter:eval", ip.filename, x.Pos(), "unknown unary operator %q", x.Op)
	case *BinaryExpr:
		return ip.evalBinary(x, sc, beat)
	case *CallExpr:
		return ip.evalCall(x, sc, beat)
	}
	return Null, newError(ErrMalformedExpression, "interpreter:eval", ip.filename, e.Pos(), "unsupported expression node")
}

func (ip *Interpreter) evalBinary(x *BinaryExpr, sc *scope, beat string) (Value, error) {
	switch x.Op {
	case "&&":
		l, err := ip.eval(x.Left, sc, beat)
		if err != nil {
			return Null, err
		}
		if !l.Truthy() {
			return BoolValue(false), nil
		}
		r, err := ip.eval(x.Right, sc, beat)
		if err != nil {
			return Null, err
		}
		return BoolValue(r.Truthy()), nil
	case "||":
		l, err := ip.eval(x.Left, sc, beat)
		if err != nil {
			return Null, err
		}
		if l.Truthy() {
			return BoolValue(true), nil
		}
		r, err := ip.eval(x.Right, sc, beat)
		if err != nil {
			return Null, err
		}
		return BoolValue(r.Truthy()), nil
	}

	l, err := ip.eval(x.Left, sc, beat)
	if err != nil {
		return Null, err
	}
	r, err := ip.eval(x.Right, sc, beat)
	if err != nil {
		return Null, err
	}
	switch x.Op {
	case "==":
		return BoolValue(l.Equal(r)), nil
	case "!=":
		return BoolValue(!l.Equal(r)), nil
	case "<", "<=", ">", ">=":
		return ip.evalCompare(x.Op, l, r, x.Pos())
	case "+":
		if l.Kind == KindString || r.Kind == KindString {
			return StringValue(l.String() + r.String()), nil
		}
		return ip.evalArith(x.Op, l, r, x.Pos())
	case "-", "*", "/":
		return ip.evalArith(x.Op, l, r, x.Pos())
	}
	return Null, newError(ErrMalformedExpression, "interpreter:eval", ip.filename, x.Pos(), "unknown operator %q", x.Op)
}

func isNumeric(v Value) bool { return v.Kind == KindInt || v.Kind == KindFloat }

func (ip *Interpreter) evalArith(op string, l, r Value, pos Position) (Value, error) {
	if !isNumeric(l) || !isNumeric(r) {
		return Null, newError(ErrTypeMismatch, "interpreter:eval", ip.filename, pos, "operator %q requires numeric operands", op)
	}
	if l.Kind == KindInt && r.Kind == KindInt {
		a, b := l.IntVal, r.IntVal
		switch op {
		case "+":
			return IntValue(a + b), nil
		case "-":
			return IntValue(a - b), nil
		case "*":
			return IntValue(a * b), nil
		case "/":
			if b == 0 {
				return Null, newError(ErrDivideByZero, "interpreter:eval", ip.filename, pos, "division by zero")
			}
			return IntValue(a / b), nil
		}
	}
	a, b := l.asFloat(), r.asFloat()
	switch op {
	case "+":
		return FloatValue(a + b), nil
	case "-":
		return FloatValue(a - b), nil
	case "*":
		return FloatValue(a * b), nil
	case "/":
		if b == 0 {
			return Null, newError(ErrDivideByZero, "interpreter:eval", ip.filename, pos, "division by zero")
		}
		return FloatValue(a / b), nil
	}
	return Null, newError(ErrMalformedExpression, "interpreter:eval", ip.filename, pos, "unknown operator %q", op)
}

func (ip *Interpreter) evalCompare(op string, l, r Value, pos Position) (Value, error) {
	if !isNumeric(l) || !isNumeric(r) {
		return Null, newError(ErrTypeMismatch, "interpreter:eval", ip.filename, pos, "operator %q requires numeric operands", op)
	}
	a, b := l.asFloat(), r.asFloat()
	switch op {
	case "<":
		return BoolValue(a < b), nil
	case "<=":
		return BoolValue(a <= b), nil
	case ">":
		return BoolValue(a > b), nil
	case ">=":
		return BoolValue(a >= b), nil
	}
	return Null, newError(ErrMalformedExpression, "interpreter:eval", ip.filename, pos, "unknown operator %q", op)
}

// isBuiltinFunction reports whether name names an interpreter built-in
// rather than a host-registered function (spec §4.5/§4.6 — chance(n)
// is the sole built-in).
func isBuiltinFunction(name string) bool { return name == "chance" }

func (ip *Interpreter) evalCall(c *CallExpr, sc *scope, beat string) (Value, error) {
	args := make([]Value, len(c.Args))
	for i, a := range c.Args {
		v, err := ip.eval(a, sc, beat)
		if err != nil {
			return Null, err
		}
		args[i] = v
	}
	if fn, ok := ip.opts.lookupFunction(c.Name); ok {
		return fn.Call(ip, args)
	}
	if v, handled, err := ip.evalBuiltin(c.Name, args, c.Pos()); handled {
		return v, err
	}
	if ip.opts.StrictAccess {
		return Null, newError(ErrUndefinedReference, "interpreter:eval", ip.filename, c.Pos(), "undefined function %q", c.Name)
	}
	return Null, nil
}

func (ip *Interpreter) evalBuiltin(name string, args []Value, pos Position) (Value, bool, error) {
	switch name {
	case "chance":
		if len(args) != 1 || !isNumeric(args[0]) {
			return Null, true, newError(ErrTypeMismatch, "interpreter:eval", ip.filename, pos, "chance(n) requires one numeric argument")
		}
		n := int64(args[0].asFloat())
		if n < 1 {
			return Null, true, newError(ErrTypeMismatch, "interpreter:eval", ip.filename, pos, "chance(n) requires n >= 1")
		}
		return BoolValue(ip.rng.chance(n)), true, nil
	}
	return Null, false, nil
}

// checkGuardPurity enforces spec §7's guard-purity decision: under
// StrictAccess, a guard expression may only reach host functions marked
// Pure. It is a static walk rather than a speculative evaluation, so an
// impure call is rejected without ever running (see DESIGN.md).
func (ip *Interpreter) checkGuardPurity(e Expr) error {
	if e == nil || !ip.opts.StrictAccess {
		return nil
	}
	var calls []*CallExpr
	collectCalls(e, &calls)
	for _, c := range calls {
		if isBuiltinFunction(c.Name) {
			continue
		}
		if fn, ok := ip.opts.lookupFunction(c.Name); ok && !fn.Pure {
			return newError(ErrGuardImpurity, "interpreter:guard", ip.filename, c.Pos(), "guard calls impure function %q", c.Name)
		}
	}
	return nil
}

func collectCalls(e Expr, out *[]*CallExpr) {
	switch x := e.(type) {
	case *CallExpr:
		*out = append(*out, x)
		for _, a := range x.Args {
			collectCalls(a, out)
		}
	case *UnaryExpr:
		collectCalls(x.Operand, out)
	case *BinaryExpr:
		collectCalls(x.Left, out)
		collectCalls(x.Right, out)
	}
}

// resolveGet implements spec §4.6's lookup order: scope chain, then the
// current beat's state frames (transient before persistent — a fresh
// "new state" shadows a stale persistent one with the same field name),
// then character frames (matched by path head against a declared
// character identifier), then global state.
func (ip *Interpreter) resolveGet(path []string, sc *scope, beat string) (Value, bool, error) {
	if len(path) == 0 {
		return Null, false, nil
	}
	head := path[0]
	if v, ok := sc.lookup(head); ok {
		return ip.walkPath(v, path[1:])
	}
	if f, ok := ip.beatTransient[beat]; ok {
		if v, ok := f.Get(head); ok {
			return ip.walkPath(v, path[1:])
		}
	}
	if f, ok := ip.beatPersistent[beat]; ok {
		if v, ok := f.Get(head); ok {
			return ip.walkPath(v, path[1:])
		}
	}
	if f, ok := ip.characters[head]; ok {
		if len(path) < 2 {
			return FieldsValue(f), true, nil
		}
		v, ok := f.Get(path[1])
		if !ok {
			return Null, false, nil
		}
		return ip.walkPath(v, path[2:])
	}
	if v, ok := ip.global.Get(head); ok {
		return ip.walkPath(v, path[1:])
	}
	return Null, false, nil
}

func (ip *Interpreter) walkPath(v Value, rest []string) (Value, bool, error) {
	cur := v
	for _, seg := range rest {
		switch cur.Kind {
		case KindFields:
			if cur.Fields == nil {
				return Null, false, nil
			}
			nv, ok := cur.Fields.Get(seg)
			if !ok {
				return Null, false, nil
			}
			cur = nv
		case KindStringMap:
			nv, ok := cur.StrMapVal[seg]
			if !ok {
				return Null, false, nil
			}
			cur = nv
		default:
			return Null, false, nil
		}
	}
	return cur, true, nil
}

// execAssign applies spec §4.6's assignment rule: evaluate the RHS,
// apply the compound operator against the current value when Op isn't
// a bare "=", then write to the resolved path.
func (ip *Interpreter) execAssign(s *AssignStmt, sc *scope, beat string) error {
	rhs, err := ip.eval(s.Value, sc, beat)
	if err != nil {
		return err
	}
	final := rhs
	if s.Op != "=" {
		cur, ok, err := ip.resolveGet(s.Target, sc, beat)
		if err != nil {
			return err
		}
		if !ok {
			cur = Null
		}
		final, err = ip.applyCompound(s.Op, cur, rhs, s.Pos())
		if err != nil {
			return err
		}
	}
	return ip.resolveAssign(s.Target, final, sc, beat)
}

func (ip *Interpreter) applyCompound(op string, cur, rhs Value, pos Position) (Value, error) {
	switch op {
	case "+=":
		if cur.Kind == KindString || rhs.Kind == KindString {
			return StringValue(cur.String() + rhs.String()), nil
		}
		return ip.evalArith("+", cur, rhs, pos)
	case "-=":
		return ip.evalArith("-", cur, rhs, pos)
	case "*=":
		return ip.evalArith("*", cur, rhs, pos)
	case "/=":
		return ip.evalArith("/", cur, rhs, pos)
	}
	return Null, newError(ErrMalformedExpression, "interpreter:assign", ip.filename, pos, "unknown assignment operator %q", op)
}

// resolveAssign writes to the innermost frame that already defines the
// target, creating the binding in the innermost state frame on a miss
// when strict access is off (spec §4.6).
func (ip *Interpreter) resolveAssign(path []string, v Value, sc *scope, beat string) error {
	if len(path) == 0 {
		return newError(ErrMalformedExpression, "interpreter:assign", ip.filename, Position{}, "empty assignment target")
	}
	head := path[0]
	if len(path) == 1 {
		if sc.assign(head, v) {
			return nil
		}
		if f, ok := ip.beatTransient[beat]; ok && f.Exists(head) {
			f.Set(head, v)
			return nil
		}
		if f, ok := ip.beatPersistent[beat]; ok && f.Exists(head) {
			f.Set(head, v)
			return nil
		}
		if ip.global.Exists(head) {
			ip.global.Set(head, v)
			return nil
		}
		if ip.opts.StrictAccess {
			return newError(ErrUndefinedReference, "interpreter:assign", ip.filename, Position{}, "undefined reference %q", head)
		}
		ip.innermostStateFrame(beat).Set(head, v)
		return nil
	}
	container, ok, err := ip.resolveGet(path[:len(path)-1], sc, beat)
	if err != nil {
		return err
	}
	if !ok || container.Kind != KindFields || container.Fields == nil {
		return newError(ErrTypeMismatch, "interpreter:assign", ip.filename, Position{}, "cannot assign into %q", joinDots(path))
	}
	container.Fields.Set(path[len(path)-1], v)
	return nil
}

// innermostStateFrame returns the current beat's transient frame if one
// exists, else its persistent frame, creating an empty persistent frame
// lazily if neither exists yet.
func (ip *Interpreter) innermostStateFrame(beat string) FieldsObject {
	if f, ok := ip.beatTransient[beat]; ok {
		return f
	}
	if f, ok := ip.beatPersistent[beat]; ok {
		return f
	}
	f := ip.newFields("beat-persistent", beat)
	ip.beatPersistent[beat] = f
	return f
}

// TagMarker is one open/close tag encountered while rendering a Text
// node, carrying the byte offset into the *rendered* text at which it
// appears (spec §4.1/§8 Scenario C: a tag rendered after an
// interpolation is offset by the interpolation's expanded length, not
// its raw source length).
type TagMarker struct {
	Tag     string
	Closing bool
	Offset  int
}

// renderText turns a Text node's fragments into a rendered string and
// its ordered tag markers, consulting the active Translations table
// first (spec §4.7): on a hit, the localised raw text is re-parsed into
// fragments exactly as source text is, so interpolation and tags behave
// identically regardless of which language produced them.
func (ip *Interpreter) renderText(id NodeId, frags []TextFragment, sc *scope, beat string) (string, []TagMarker, error) {
	useFrags := frags
	if ip.opts.Translations != nil {
		original := fragmentsRawText(frags)
		if localized, ok := ip.opts.Translations.Lookup(id, original); ok {
			useFrags = parseTextFragments(localized, false)
		}
	}
	var sb strings.Builder
	var tags []TagMarker
	for _, f := range useFrags {
		switch f.Kind {
		case FragLiteral:
			sb.WriteString(f.Literal)
		case FragInterp:
			v, ok, err := ip.resolveGet(f.Path, sc, beat)
			if err != nil {
				return "", nil, err
			}
			if !ok && ip.opts.StrictAccess {
				return "", nil, newError(ErrUndefinedReference, "interpreter:text", ip.filename, Position{}, "undefined reference %q", joinDots(f.Path))
			}
			sb.WriteString(v.String())
		case FragTagOpen:
			tags = append(tags, TagMarker{Tag: f.Tag, Offset: sb.Len()})
		case FragTagClose:
			tags = append(tags, TagMarker{Tag: f.Tag, Closing: true, Offset: sb.Len()})
		}
	}
	return sb.String(), tags, nil
}
