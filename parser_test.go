package loreline

import "testing"

func parseOK(t *testing.T, src string) *Script {
	t.Helper()
	script, err := Parse("test.lor", src, nil)
	if err != nil {
		t.Fatalf("Parse(%q): unexpected error: %v", src, err)
	}
	return script
}

func TestParseStateAndCharacterDecls(t *testing.T) {
	script := parseOK(t, "state {\n    gold = 10\n}\n\nnew state {\n    alarmed = false\n}\n\ncharacter hero {\n    name = \"Alex\"\n}\n")
	if len(script.Declarations) != 3 {
		t.Fatalf("got %d declarations, want 3", len(script.Declarations))
	}
	st, ok := script.Declarations[0].(*StateDecl)
	if !ok || st.New {
		t.Fatalf("first decl = %#v, want persistent StateDecl", script.Declarations[0])
	}
	if len(st.Fields) != 1 || st.Fields[0].Name != "gold" {
		t.Fatalf("state fields = %#v", st.Fields)
	}

	ns, ok := script.Declarations[1].(*StateDecl)
	if !ok || !ns.New {
		t.Fatalf("second decl = %#v, want transient StateDecl", script.Declarations[1])
	}

	ch, ok := script.Declarations[2].(*CharacterDecl)
	if !ok || ch.Name != "hero" {
		t.Fatalf("third decl = %#v, want CharacterDecl hero", script.Declarations[2])
	}
}

func TestParseBeatWithDialogueAndNarration(t *testing.T) {
	script := parseOK(t, "beat start\n    The room is quiet.\n    maya: Hello there\n")
	beat := script.BeatByName("start")
	if beat == nil {
		t.Fatalf("beat %q not found", "start")
	}
	if len(beat.Body.Statements) != 2 {
		t.Fatalf("got %d statements, want 2", len(beat.Body.Statements))
	}
	narration := beat.Body.Statements[0].(*TextStmt)
	if narration.Character != "" || fragmentsRawText(narration.Fragments) != "The room is quiet." {
		t.Fatalf("narration = %#v", narration)
	}
	dialogue := beat.Body.Statements[1].(*TextStmt)
	if dialogue.Character != "maya" || fragmentsRawText(dialogue.Fragments) != "Hello there" {
		t.Fatalf("dialogue = %#v", dialogue)
	}
}

func TestParseAssignmentOperators(t *testing.T) {
	script := parseOK(t, "beat start\n    gold = 10\n    gold += 5\n    gold -= 1\n    gold *= 2\n    gold /= 2\n")
	beat := script.BeatByName("start")
	if len(beat.Body.Statements) != 5 {
		t.Fatalf("got %d statements, want 5", len(beat.Body.Statements))
	}
	wantOps := []string{"=", "+=", "-=", "*=", "/="}
	for i, want := range wantOps {
		assign, ok := beat.Body.Statements[i].(*AssignStmt)
		if !ok {
			t.Fatalf("statement %d = %#v, want AssignStmt", i, beat.Body.Statements[i])
		}
		if assign.Op != want {
			t.Fatalf("statement %d op = %q, want %q", i, assign.Op, want)
		}
		if len(assign.Target) != 1 || assign.Target[0] != "gold" {
			t.Fatalf("statement %d target = %v", i, assign.Target)
		}
	}
}

func TestParseDottedAssignmentTarget(t *testing.T) {
	script := parseOK(t, "beat start\n    hero.gold = 10\n")
	beat := script.BeatByName("start")
	assign := beat.Body.Statements[0].(*AssignStmt)
	if len(assign.Target) != 2 || assign.Target[0] != "hero" || assign.Target[1] != "gold" {
		t.Fatalf("target = %v, want [hero gold]", assign.Target)
	}
}

func TestParseIfElseIfElseChain(t *testing.T) {
	script := parseOK(t, "beat start\n    if gold > 10\n        x = 1\n    else if gold > 0\n        x = 2\n    else\n        x = 3\n")
	beat := script.BeatByName("start")
	top := beat.Body.Statements[0].(*IfStmt)
	if top.Else == nil || len(top.Else.Statements) != 1 {
		t.Fatalf("expected a nested else-if, got %#v", top.Else)
	}
	nested, ok := top.Else.Statements[0].(*IfStmt)
	if !ok {
		t.Fatalf("else branch statement = %#v, want nested IfStmt", top.Else.Statements[0])
	}
	if nested.Else == nil || len(nested.Else.Statements) != 1 {
		t.Fatalf("expected a final else block, got %#v", nested.Else)
	}
}

func TestParseChoiceWithGuardsAndBodies(t *testing.T) {
	script := parseOK(t, "beat start\n    choice\n        Leave town if gold >= 10\n            -> leave\n        Stay\n            -> stay\n")
	beat := script.BeatByName("start")
	choice := beat.Body.Statements[0].(*ChoiceStmt)
	if len(choice.Options) != 2 {
		t.Fatalf("got %d options, want 2", len(choice.Options))
	}
	first := choice.Options[0]
	if fragmentsRawText(first.Prompt) != "Leave town" {
		t.Fatalf("first prompt = %q", fragmentsRawText(first.Prompt))
	}
	if first.Guard == nil {
		t.Fatalf("first option should have a guard")
	}
	if len(first.Body.Statements) != 1 {
		t.Fatalf("first option body = %#v", first.Body.Statements)
	}
	second := choice.Options[1]
	if second.Guard != nil {
		t.Fatalf("second option should have no guard, got %#v", second.Guard)
	}
}

func TestParseTransitions(t *testing.T) {
	script := parseOK(t, "beat start\n    -> ending\n")
	beat := script.BeatByName("start")
	tr := beat.Body.Statements[0].(*TransitionStmt)
	if tr.Self || tr.Target != "ending" {
		t.Fatalf("transition = %#v, want target ending", tr)
	}

	self := parseOK(t, "beat start\n    -> .\n")
	beat = self.BeatByName("start")
	tr = beat.Body.Statements[0].(*TransitionStmt)
	if !tr.Self {
		t.Fatalf("transition = %#v, want a self-transition", tr)
	}
}

func TestParseCallStatementAndExpression(t *testing.T) {
	script := parseOK(t, "beat start\n    roll(6)\n    x = roll(6) + 1\n")
	beat := script.BeatByName("start")
	callStmt, ok := beat.Body.Statements[0].(*CallStmt)
	if !ok || callStmt.Call.Name != "roll" || len(callStmt.Call.Args) != 1 {
		t.Fatalf("call statement = %#v", beat.Body.Statements[0])
	}
	assign := beat.Body.Statements[1].(*AssignStmt)
	bin, ok := assign.Value.(*BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("assignment value = %#v, want a binary +", assign.Value)
	}
	if _, ok := bin.Left.(*CallExpr); !ok {
		t.Fatalf("left operand = %#v, want CallExpr", bin.Left)
	}
}

func TestParseExpressionPrecedence(t *testing.T) {
	script := parseOK(t, "beat start\n    x = 1 + 2 * 3\n")
	beat := script.BeatByName("start")
	assign := beat.Body.Statements[0].(*AssignStmt)
	top, ok := assign.Value.(*BinaryExpr)
	if !ok || top.Op != "+" {
		t.Fatalf("top operator = %#v, want +", assign.Value)
	}
	right, ok := top.Right.(*BinaryExpr)
	if !ok || right.Op != "*" {
		t.Fatalf("right operand = %#v, want a * node", top.Right)
	}
}

func TestParseLogicalAndComparisonPrecedence(t *testing.T) {
	script := parseOK(t, "beat start\n    x = a > 1 && b == 2 || c\n")
	beat := script.BeatByName("start")
	assign := beat.Body.Statements[0].(*AssignStmt)
	top, ok := assign.Value.(*BinaryExpr)
	if !ok || top.Op != "||" {
		t.Fatalf("top operator = %#v, want ||", assign.Value)
	}
	left, ok := top.Left.(*BinaryExpr)
	if !ok || left.Op != "&&" {
		t.Fatalf("left operand = %#v, want &&", top.Left)
	}
}

func TestParseUnaryAndParens(t *testing.T) {
	script := parseOK(t, "beat start\n    x = -(1 + 2) * !flag\n")
	beat := script.BeatByName("start")
	assign := beat.Body.Statements[0].(*AssignStmt)
	top := assign.Value.(*BinaryExpr)
	if top.Op != "*" {
		t.Fatalf("top operator = %q, want *", top.Op)
	}
	neg, ok := top.Left.(*UnaryExpr)
	if !ok || neg.Op != "-" {
		t.Fatalf("left operand = %#v, want unary -", top.Left)
	}
	if _, ok := neg.Operand.(*BinaryExpr); !ok {
		t.Fatalf("negated operand = %#v, want a parenthesized +", neg.Operand)
	}
	not, ok := top.Right.(*UnaryExpr)
	if !ok || not.Op != "!" {
		t.Fatalf("right operand = %#v, want unary !", top.Right)
	}
}

func TestParseLiteralsTrueFalseNull(t *testing.T) {
	script := parseOK(t, "beat start\n    a = true\n    b = false\n    c = null\n")
	beat := script.BeatByName("start")
	for i, want := range []Value{BoolValue(true), BoolValue(false), Null} {
		assign := beat.Body.Statements[i].(*AssignStmt)
		lit, ok := assign.Value.(*LiteralExpr)
		if !ok {
			t.Fatalf("statement %d value = %#v, want LiteralExpr", i, assign.Value)
		}
		if !lit.Value.Equal(want) {
			t.Fatalf("statement %d literal = %#v, want %#v", i, lit.Value, want)
		}
	}
}

func TestParseDuplicateBeatIsAnError(t *testing.T) {
	_, err := Parse("test.lor", "beat start\n    x = 1\nbeat start\n    x = 2\n", nil)
	if err == nil {
		t.Fatalf("expected a duplicate-beat error")
	}
}

func TestParseDuplicateCharacterIsAnError(t *testing.T) {
	_, err := Parse("test.lor", "character hero {\n    gold = 1\n}\ncharacter hero {\n    gold = 2\n}\n", nil)
	if err == nil {
		t.Fatalf("expected a duplicate-character error")
	}
}

func TestParseUnterminatedChoiceIsAnError(t *testing.T) {
	_, err := Parse("test.lor", "beat start {\n  choice {\n    \"Leave\" {\n      -> leave\n    }\n", nil)
	if err == nil {
		t.Fatalf("expected an unterminated-block error for the truncated choice")
	}
}

func TestParseBraceDelimitedBeat(t *testing.T) {
	script := parseOK(t, "beat start {\n  x = 1\n  y = 2\n}\n")
	beat := script.BeatByName("start")
	if len(beat.Body.Statements) != 2 {
		t.Fatalf("got %d statements, want 2", len(beat.Body.Statements))
	}
}

func TestParseImportMergesDeclarations(t *testing.T) {
	loader := MapFileLoader{
		"shared.lor": "character hero {\n    gold = 1\n}\n",
	}
	script, err := Parse("main.lor", "import shared\nbeat start\n    hero.gold += 1\n", loader)
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	var sawHero, sawStart bool
	for _, d := range script.Declarations {
		switch decl := d.(type) {
		case *CharacterDecl:
			if decl.Name == "hero" {
				sawHero = true
			}
		case *BeatDecl:
			if decl.Name == "start" {
				sawStart = true
			}
		}
	}
	if !sawHero || !sawStart {
		t.Fatalf("import did not merge expected declarations: %#v", script.Declarations)
	}
}

func TestParseImportCycleIsAnError(t *testing.T) {
	loader := MapFileLoader{
		"a.lor": "import b\nbeat a\n    x = 1\n",
		"b.lor": "import a\nbeat b\n    x = 1\n",
	}
	_, err := Parse("main.lor", "import a\nbeat main\n    x = 1\n", loader)
	if err == nil {
		t.Fatalf("expected an import-cycle error")
	}
}

func TestParseNodeIdsAreStable(t *testing.T) {
	src := "beat start\n    x = 1\n    y = 2\n"
	first := parseOK(t, src)
	second := parseOK(t, src)
	firstBeat := first.BeatByName("start")
	secondBeat := second.BeatByName("start")
	for i := range firstBeat.Body.Statements {
		id1 := firstBeat.Body.Statements[i].ID()
		id2 := secondBeat.Body.Statements[i].ID()
		if id1 != id2 {
			t.Fatalf("statement %d NodeId not stable across identical parses: %v != %v", i, id1, id2)
		}
	}
}
