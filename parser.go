package loreline

import "io"

// parser is a recursive-descent cursor over a token stream, grounded on
// the teacher's Parser (parser.go): Match/Peek/Error-style helpers over
// an index into a flat token slice, generalized with the idCounters
// needed to assign deterministic NodeIds as each construct is
// recognised.
type parser struct {
	filename string
	tokens   []Token
	idx      int

	ids idCounters

	loader     FileLoader
	loadedAbs  map[string]bool
	loadingAbs map[string]bool

	comments []Token

	beatNames      map[string]bool
	characterNames map[string]bool
}

// Parse tokenises and parses source into a Script, resolving "import"
// declarations through loader (which may be nil if the script has no
// imports). filePath is used for diagnostics and import-relative
// resolution.
func Parse(filePath, source string, loader FileLoader) (*Script, error) {
	tokens, err := Lex(filePath, source)
	if err != nil {
		return nil, err
	}
	p := &parser{
		filename:       filePath,
		tokens:         tokens,
		loader:         loader,
		loadedAbs:      map[string]bool{},
		loadingAbs:     map[string]bool{},
		beatNames:      map[string]bool{},
		characterNames: map[string]bool{},
	}
	if loader != nil && filePath != "" {
		p.loadedAbs[loader.Abs("", filePath)] = true
	}
	script := &Script{}
	if err := p.parseTopLevel(script); err != nil {
		return nil, err
	}
	script.Comments = p.comments
	return script, nil
}

func (p *parser) get(i int) Token {
	if i >= 0 && i < len(p.tokens) {
		return p.tokens[i]
	}
	if len(p.tokens) > 0 {
		last := p.tokens[len(p.tokens)-1]
		return Token{Kind: TokenEOF, Pos: last.Pos.End()}
	}
	return Token{Kind: TokenEOF}
}

func (p *parser) peek() Token        { return p.get(p.idx) }
func (p *parser) peekAt(n int) Token { return p.get(p.idx + n) }
func (p *parser) previous() Token {
	if p.idx > 0 {
		return p.tokens[p.idx-1]
	}
	return Token{}
}

func (p *parser) advance() Token {
	t := p.peek()
	if p.idx < len(p.tokens) {
		p.idx++
	}
	return t
}

func (p *parser) atEOF() bool { return p.peek().Kind == TokenEOF }

func (p *parser) check(k TokenKind) bool { return p.peek().Kind == k }

func (p *parser) checkPunct(v string) bool {
	t := p.peek()
	return t.Kind == TokenPunct && t.Value == v
}

func (p *parser) checkOperator(v string) bool {
	t := p.peek()
	return t.Kind == TokenOperator && t.Value == v
}

func (p *parser) checkKeyword(v string) bool {
	t := p.peek()
	return t.Kind == TokenKeyword && t.Value == v
}

func (p *parser) expectIdent() (Token, error) {
	t := p.peek()
	if t.Kind != TokenIdent {
		return t, p.errorAt(ErrUnexpectedToken, t, "expected identifier, got %s", t.String())
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(v string) (Token, error) {
	if !p.checkKeyword(v) {
		t := p.peek()
		return t, p.errorAt(ErrUnexpectedToken, t, "expected %q, got %s", v, t.String())
	}
	return p.advance(), nil
}

func (p *parser) expectPunct(v string) (Token, error) {
	if !p.checkPunct(v) {
		t := p.peek()
		return t, p.errorAt(ErrUnexpectedToken, t, "expected %q, got %s", v, t.String())
	}
	return p.advance(), nil
}

// matchAssignOp consumes one of the assignment-family operators if the
// current token is one, per the spec's uniform "assignment always uses
// =-family operators" rule (see DESIGN.md).
func (p *parser) matchAssignOp() (Token, bool) {
	t := p.peek()
	if t.Kind != TokenOperator {
		return Token{}, false
	}
	switch t.Value {
	case "=", "+=", "-=", "*=", "/=":
		return p.advance(), true
	}
	return Token{}, false
}

func (p *parser) errorAt(kind ErrorKind, tok Token, format string, args ...any) error {
	return newError(kind, "parser", p.filename, tok.Pos, format, args...)
}

func (p *parser) nextID() NodeId { return p.ids.next() }

// skipBlank consumes Newline tokens and siphons Comment tokens into the
// script's comment list, without crossing an Indent/Dedent boundary.
func (p *parser) skipBlank() {
	for {
		t := p.peek()
		if t.Kind == TokenNewline {
			p.advance()
			continue
		}
		if t.Kind == TokenComment {
			p.comments = append(p.comments, p.advance())
			continue
		}
		break
	}
}

// enterBlock consumes the opening delimiter of a block ("{" or an
// Indent token) and reports which form was used, so the caller knows
// which closing delimiter to look for.
func (p *parser) enterBlock() (brace bool, err error) {
	if p.checkPunct("{") {
		p.advance()
		return true, nil
	}
	if p.check(TokenIndent) {
		p.advance()
		return false, nil
	}
	t := p.peek()
	return false, p.errorAt(ErrUnexpectedToken, t, "expected a block ('{' or indentation), got %s", t.String())
}

// parseBlock parses a statement block in either brace or indent form,
// pushing and popping the node-id block counter around it (spec §4.2's
// node-id assignment rule).
func (p *parser) parseBlock() (*Block, error) {
	saved := p.ids.pushBlock()
	defer p.ids.popBlock(saved)

	isBrace, err := p.enterBlock()
	if err != nil {
		return nil, err
	}
	blk := &Block{}
	for {
		p.skipBlank()
		if isBrace {
			if p.checkPunct("}") {
				p.advance()
				break
			}
		} else {
			if p.check(TokenDedent) {
				p.advance()
				break
			}
		}
		if p.atEOF() {
			return nil, p.errorAt(ErrUnexpectedToken, p.peek(), "unterminated block")
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		blk.Statements = append(blk.Statements, stmt)
	}
	return blk, nil
}

// parseFieldAssignBlock parses the body of a state/character
// declaration: a block of "name = expr" pairs.
func (p *parser) parseFieldAssignBlock() ([]FieldAssign, error) {
	saved := p.ids.pushBlock()
	defer p.ids.popBlock(saved)

	isBrace, err := p.enterBlock()
	if err != nil {
		return nil, err
	}
	var fields []FieldAssign
	for {
		p.skipBlank()
		if isBrace {
			if p.checkPunct("}") {
				p.advance()
				break
			}
		} else {
			if p.check(TokenDedent) {
				p.advance()
				break
			}
		}
		if p.atEOF() {
			return nil, p.errorAt(ErrUnexpectedToken, p.peek(), "unterminated declaration body")
		}
		nameTok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		opTok, ok := p.matchAssignOp()
		if !ok || opTok.Value != "=" {
			return nil, p.errorAt(ErrUnexpectedToken, p.peek(), "expected '=' after field name %q", nameTok.Value)
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		fields = append(fields, FieldAssign{Name: nameTok.Value, Value: val, Pos: nameTok.Pos})
	}
	return fields, nil
}

// parseTopLevel parses the sequence of top-level declarations,
// resolving imports inline as they are encountered.
func (p *parser) parseTopLevel(script *Script) error {
	for {
		p.skipBlank()
		if p.atEOF() {
			return nil
		}
		tok := p.peek()
		if tok.Kind != TokenKeyword {
			return p.errorAt(ErrUnexpectedToken, tok, "expected a top-level declaration, got %s", tok.String())
		}
		p.ids.nextSection()
		switch tok.Value {
		case "import":
			if err := p.parseImport(script); err != nil {
				return err
			}
		case "new", "state":
			decl, err := p.parseStateBlock()
			if err != nil {
				return err
			}
			if err := p.addDecl(script, decl); err != nil {
				return err
			}
		case "character":
			decl, err := p.parseCharacterDecl()
			if err != nil {
				return err
			}
			if err := p.addDecl(script, decl); err != nil {
				return err
			}
		case "beat":
			decl, err := p.parseBeatDecl()
			if err != nil {
				return err
			}
			if err := p.addDecl(script, decl); err != nil {
				return err
			}
		default:
			return p.errorAt(ErrUnexpectedToken, tok, "unexpected %q at top level", tok.Value)
		}
	}
}

func (p *parser) addDecl(script *Script, d Decl) error {
	switch t := d.(type) {
	case *BeatDecl:
		if p.beatNames[t.Name] {
			return p.errorAt(ErrDuplicateBeat, Token{Pos: t.Pos()}, "beat %q already declared", t.Name)
		}
		p.beatNames[t.Name] = true
	case *CharacterDecl:
		if p.characterNames[t.Name] {
			return p.errorAt(ErrDuplicateCharacter, Token{Pos: t.Pos()}, "character %q already declared", t.Name)
		}
		p.characterNames[t.Name] = true
	}
	script.Declarations = append(script.Declarations, d)
	return nil
}

func (p *parser) parseStateBlock() (*StateDecl, error) {
	isNew := false
	if p.checkKeyword("new") {
		p.advance()
		isNew = true
	}
	stateTok, err := p.expectKeyword("state")
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldAssignBlock()
	if err != nil {
		return nil, err
	}
	return &StateDecl{base: base{id: p.nextID(), pos: stateTok.Pos}, New: isNew, Fields: fields}, nil
}

func (p *parser) parseCharacterDecl() (*CharacterDecl, error) {
	kwTok, err := p.expectKeyword("character")
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldAssignBlock()
	if err != nil {
		return nil, err
	}
	return &CharacterDecl{base: base{id: p.nextID(), pos: kwTok.Pos}, Name: nameTok.Value, Fields: fields}, nil
}

func (p *parser) parseBeatDecl() (*BeatDecl, error) {
	kwTok, err := p.expectKeyword("beat")
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &BeatDecl{base: base{id: p.nextID(), pos: kwTok.Pos}, Name: nameTok.Value, Body: body}, nil
}

// parseImport handles "import NAME": it resolves NAME to a ".lor" file
// via p.loader, recursively parses it, and merges its declarations into
// script — deduplicating repeat imports by absolute path and rejecting
// import cycles still in progress.
func (p *parser) parseImport(script *Script) error {
	kwTok, err := p.expectKeyword("import")
	if err != nil {
		return err
	}
	nameTok, err := p.expectIdent()
	if err != nil {
		return err
	}
	decl := &ImportDecl{base: base{id: p.nextID(), pos: kwTok.Pos}, Path: nameTok.Value}
	script.Declarations = append(script.Declarations, decl)

	if p.loader == nil {
		return nil
	}
	filename := nameTok.Value + ".lor"
	abs := p.loader.Abs(p.filename, filename)
	if abs == "" {
		return p.errorAt(ErrUnresolvedImport, nameTok, "cannot resolve import %q", nameTok.Value)
	}
	if p.loadingAbs[abs] {
		return p.errorAt(ErrImportCycle, nameTok, "import cycle detected at %q", nameTok.Value)
	}
	if p.loadedAbs[abs] {
		return nil
	}

	reader, err := p.loader.Get(abs)
	if err != nil {
		return newError(ErrUnresolvedImport, "parser", p.filename, nameTok.Pos, "failed to load import %q: %v", nameTok.Value, err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return newError(ErrUnresolvedImport, "parser", p.filename, nameTok.Pos, "failed to read import %q: %v", nameTok.Value, err)
	}

	p.loadingAbs[abs] = true
	sub := &parser{
		filename:       abs,
		loader:         p.loader,
		loadedAbs:      p.loadedAbs,
		loadingAbs:     p.loadingAbs,
		beatNames:      p.beatNames,
		characterNames: p.characterNames,
	}
	sub.tokens, err = Lex(abs, string(data))
	if err != nil {
		delete(p.loadingAbs, abs)
		return err
	}
	subScript := &Script{}
	if err := sub.parseTopLevel(subScript); err != nil {
		delete(p.loadingAbs, abs)
		return err
	}
	delete(p.loadingAbs, abs)
	p.loadedAbs[abs] = true
	script.Declarations = append(script.Declarations, subScript.Declarations...)
	script.Comments = append(script.Comments, sub.comments...)
	return nil
}

func (p *parser) parseStmt() (Stmt, error) {
	p.skipBlank()
	tok := p.peek()
	switch {
	case tok.Kind == TokenKeyword && tok.Value == "if":
		return p.parseIf()
	case tok.Kind == TokenKeyword && tok.Value == "choice":
		return p.parseChoice()
	case tok.Kind == TokenKeyword && (tok.Value == "new" || tok.Value == "state"):
		return p.parseStateBlock()
	case tok.Kind == TokenArrow:
		return p.parseTransition()
	case tok.Kind == TokenText:
		t := p.advance()
		return &TextStmt{base: base{id: p.nextID(), pos: t.Pos}, Fragments: parseTextFragments(t.Value, false)}, nil
	case tok.Kind == TokenString:
		t := p.advance()
		return &TextStmt{base: base{id: p.nextID(), pos: t.Pos}, Fragments: parseTextFragments(t.Value, true), Quoted: true}, nil
	case tok.Kind == TokenIdent:
		if p.peekAt(1).Kind == TokenPunct && p.peekAt(1).Value == ":" {
			return p.parseDialogue()
		}
		return p.parseAssignOrCall()
	default:
		return nil, p.errorAt(ErrUnexpectedToken, tok, "unexpected token %s", tok.String())
	}
}

func (p *parser) parseDialogue() (Stmt, error) {
	identTok, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	textTok := p.peek()
	if textTok.Kind != TokenText {
		return nil, p.errorAt(ErrUnexpectedToken, textTok, "expected dialogue text after %q:", identTok.Value)
	}
	p.advance()
	return &TextStmt{
		base:      base{id: p.nextID(), pos: span(identTok.Pos, textTok.Pos)},
		Character: identTok.Value,
		Fragments: parseTextFragments(textTok.Value, false),
	}, nil
}

func (p *parser) parseAssignOrCall() (Stmt, error) {
	expr, err := p.parsePathOrCall()
	if err != nil {
		return nil, err
	}
	if call, ok := expr.(*CallExpr); ok {
		return &CallStmt{base: base{id: p.nextID(), pos: call.Pos()}, Call: call}, nil
	}
	path := expr.(*PathExpr)
	opTok, ok := p.matchAssignOp()
	if !ok {
		t := p.peek()
		return nil, p.errorAt(ErrUnexpectedToken, t, "expected assignment operator after %q, got %s", joinDots(path.Path), t.String())
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &AssignStmt{
		base:   base{id: p.nextID(), pos: span(path.Pos(), value.Pos())},
		Target: path.Path,
		Op:     opTok.Value,
		Value:  value,
	}, nil
}

func (p *parser) parseIf() (Stmt, error) {
	ifTok, err := p.expectKeyword("if")
	if err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	thenBlk, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{base: base{id: p.nextID(), pos: ifTok.Pos}, Cond: cond, Then: thenBlk}

	mark := p.idx
	p.skipBlank()
	if p.checkKeyword("else") {
		p.advance()
		if p.checkKeyword("if") {
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.Else = &Block{Statements: []Stmt{nested}}
		} else {
			elseBlk, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseBlk
		}
	} else {
		p.idx = mark
	}
	return stmt, nil
}

func (p *parser) parseChoice() (Stmt, error) {
	choiceTok, err := p.expectKeyword("choice")
	if err != nil {
		return nil, err
	}
	saved := p.ids.pushBlock()
	defer p.ids.popBlock(saved)

	isBrace, err := p.enterBlock()
	if err != nil {
		return nil, err
	}
	var options []*ChoiceOption
	for {
		p.skipBlank()
		if isBrace {
			if p.checkPunct("}") {
				p.advance()
				break
			}
		} else {
			if p.check(TokenDedent) {
				p.advance()
				break
			}
		}
		if p.atEOF() {
			return nil, p.errorAt(ErrUnexpectedToken, p.peek(), "unterminated choice")
		}
		opt, err := p.parseChoiceOption()
		if err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	if len(options) == 0 {
		return nil, p.errorAt(ErrUnexpectedToken, choiceTok, "choice must declare at least one option")
	}
	return &ChoiceStmt{base: base{id: p.nextID(), pos: choiceTok.Pos}, Options: options}, nil
}

func (p *parser) parseChoiceOption() (*ChoiceOption, error) {
	p.ids.nextBranch()
	tok := p.peek()
	var prompt []TextFragment
	switch tok.Kind {
	case TokenText:
		p.advance()
		prompt = parseTextFragments(tok.Value, false)
	case TokenString:
		p.advance()
		prompt = parseTextFragments(tok.Value, true)
	default:
		return nil, p.errorAt(ErrUnexpectedToken, tok, "expected a choice option prompt, got %s", tok.String())
	}
	var guard Expr
	if p.checkKeyword("if") {
		p.advance()
		g, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		guard = g
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ChoiceOption{base: base{id: p.nextID(), pos: tok.Pos}, Prompt: prompt, Guard: guard, Body: body}, nil
}

func (p *parser) parseTransition() (Stmt, error) {
	arrowTok := p.advance()
	if p.checkPunct(".") {
		p.advance()
		return &TransitionStmt{base: base{id: p.nextID(), pos: arrowTok.Pos}, Self: true}, nil
	}
	idTok, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &TransitionStmt{base: base{id: p.nextID(), pos: span(arrowTok.Pos, idTok.Pos)}, Target: idTok.Value}, nil
}
