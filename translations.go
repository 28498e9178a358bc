package loreline

import "hash/fnv"

// Translations is a read-only map from a Text node's stable key to its
// localised replacement text, derived once from a parsed translation
// script and shared across interpreters (spec §4.7).
type Translations struct {
	entries map[uint64]string
}

// hash computes the stable key for a Text node. It is keyed on NodeId
// alone: a translation script is expected to be structurally parallel
// to its base script (same declarations in the same order, so every
// Text node lands on the identical NodeId — see Scenario E), and the
// two scripts' rendered text necessarily differs, so folding the text
// into the hash would make a translated node's key never match its
// base counterpart's. originalText is accepted to match the spec's
// hash(nodeId, originalText) signature and is reserved for a future
// content-fingerprint safeguard; see DESIGN.md.
func hash(id NodeId, originalText string) uint64 {
	_ = originalText
	h := fnv.New64a()
	var buf [8]byte
	v := uint64(id)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64()
}

// ExtractTranslations walks script and records, for every TextStmt
// node, the localised text keyed by hash(nodeId, text) — "text" here is
// this (translation) script's own rendered text, which becomes the
// replacement a base script's matching node will look up at runtime.
// The error return exists for the same reason Parse's does: a nil
// script is a caller error worth reporting rather than panicking on.
func ExtractTranslations(script *Script) (*Translations, error) {
	if script == nil {
		return nil, newError(ErrUnexpectedToken, "translations", "", Position{}, "cannot extract translations from a nil script")
	}
	t := &Translations{entries: make(map[uint64]string)}
	walkScriptText(script, func(stmt *TextStmt) {
		raw := fragmentsRawTextUnquoted(stmt.Fragments)
		t.entries[hash(stmt.ID(), raw)] = raw
	})
	return t, nil
}

// Lookup returns the localised replacement for a Text node, if any.
func (t *Translations) Lookup(id NodeId, originalText string) (string, bool) {
	if t == nil {
		return "", false
	}
	s, ok := t.entries[hash(id, originalText)]
	return s, ok
}

func walkScriptText(script *Script, visit func(*TextStmt)) {
	for _, d := range script.Declarations {
		if beat, ok := d.(*BeatDecl); ok {
			walkBlockText(beat.Body, visit)
		}
	}
}

func walkBlockText(b *Block, visit func(*TextStmt)) {
	if b == nil {
		return
	}
	for _, stmt := range b.Statements {
		switch s := stmt.(type) {
		case *TextStmt:
			visit(s)
		case *IfStmt:
			walkBlockText(s.Then, visit)
			walkBlockText(s.Else, visit)
		case *ChoiceStmt:
			for _, opt := range s.Options {
				walkBlockText(opt.Body, visit)
			}
		}
	}
}
