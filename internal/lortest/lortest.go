// Package lortest is a small YAML-driven scenario harness used by this
// module's own test files. Inline `<test>` blocks in `.lor` source are
// explicitly out of scope for the runtime itself (spec's host-tooling
// boundary); this package exists only so the table-driven tests this
// module ships can describe a script, a sequence of choices, and an
// expected event trace as data rather than hand-rolled Go per case —
// the same role the teacher's own test-only `gopkg.in/yaml.v2` /
// `tags_test.go`-style scenario tables play for template fixtures.
package lortest

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/loreline-run/loreline"
)

// EventKind distinguishes the three host callbacks a scenario trace
// can record.
type EventKind string

const (
	EventDialogue EventKind = "dialogue"
	EventChoice   EventKind = "choice"
	EventFinish   EventKind = "finish"
)

// TagRecord mirrors loreline.TagMarker for YAML (de)serialization.
type TagRecord struct {
	Tag     string `yaml:"tag"`
	Closing bool   `yaml:"closing,omitempty"`
	Offset  int    `yaml:"offset"`
}

// OptionRecord is one entry of a recorded choice menu.
type OptionRecord struct {
	Text    string      `yaml:"text"`
	Tags    []TagRecord `yaml:"tags,omitempty"`
	Enabled bool        `yaml:"enabled"`
}

// Event is one entry of a scenario's recorded trace, serializable so
// expectations can be authored as YAML alongside the script under test.
type Event struct {
	Kind      EventKind      `yaml:"kind"`
	Character string         `yaml:"character,omitempty"`
	Text      string         `yaml:"text,omitempty"`
	Tags      []TagRecord    `yaml:"tags,omitempty"`
	Options   []OptionRecord `yaml:"options,omitempty"`
}

func toTagRecords(tags []loreline.TagMarker) []TagRecord {
	if len(tags) == 0 {
		return nil
	}
	out := make([]TagRecord, len(tags))
	for i, t := range tags {
		out[i] = TagRecord{Tag: t.Tag, Closing: t.Closing, Offset: t.Offset}
	}
	return out
}

// Scenario describes one end-to-end run: a script, an optional
// translation overlay, the beat to start from, the sequence of choice
// indices to pick in order, and optionally a 1-based ordinal (into the
// sequence of choice presentations, not dialogue lines) at which the
// harness saves and restores the interpreter before continuing — the
// shape Scenario D needs.
type Scenario struct {
	Name            string `yaml:"name"`
	Script          string `yaml:"script"`
	Translation     string `yaml:"translation,omitempty"`
	StartBeat       string `yaml:"startBeat"`
	Choices         []int  `yaml:"choices,omitempty"`
	SaveAtChoiceNum int    `yaml:"saveAtChoiceNum,omitempty"`
}

// ParseScenarios decodes a YAML document into a list of scenarios. The
// document may be either a bare list or a `{scenarios: [...]}` mapping.
func ParseScenarios(data []byte) ([]Scenario, error) {
	var wrapped struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Scenarios) > 0 {
		return wrapped.Scenarios, nil
	}
	var list []Scenario
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("lortest: decoding scenarios: %w", err)
	}
	return list, nil
}

// recorder accumulates host-callback events and drives the scripted
// choice sequence, optionally triggering one save/restore cycle.
type recorder struct {
	sc      Scenario
	opts    *loreline.Options
	trace   []Event
	choices []int
	nextIdx int

	choicesSeen  int
	saveData     string
	savedAt      int
	savedNextIdx int
	ip           *loreline.Interpreter
}

func (r *recorder) onDialogue(character, text string, tags []loreline.TagMarker, cont loreline.DialogueContinuation) {
	r.trace = append(r.trace, Event{Kind: EventDialogue, Character: character, Text: text, Tags: toTagRecords(tags)})
	if err := cont(); err != nil {
		panic(err)
	}
}

func (r *recorder) onChoice(options []loreline.ChoiceOptionView, selector loreline.ChoiceSelector) {
	r.choicesSeen++
	recs := make([]OptionRecord, len(options))
	for i, o := range options {
		recs[i] = OptionRecord{Text: o.Text, Tags: toTagRecords(o.Tags), Enabled: o.Enabled}
	}
	r.trace = append(r.trace, Event{Kind: EventChoice, Options: recs})

	if r.sc.SaveAtChoiceNum != 0 && r.choicesSeen == r.sc.SaveAtChoiceNum && r.saveData == "" {
		data, err := r.ip.Save()
		if err != nil {
			panic(err)
		}
		r.saveData = data
		// Exclude the choice event just appended: the resumed run re-enters
		// at this exact suspended node and re-emits it itself, so counting
		// it in both the kept prefix and the resumed suffix would double it.
		r.savedAt = len(r.trace) - 1
		// nextIdx hasn't advanced for the choice about to be made at this
		// presentation, so it is exactly the index a resumed run must
		// start consuming from to replay the same remaining decisions.
		r.savedNextIdx = r.nextIdx
	}

	if r.nextIdx >= len(r.choices) {
		panic(fmt.Errorf("lortest: scenario %q ran out of scripted choices at presentation %d", r.sc.Name, r.choicesSeen))
	}
	choice := r.choices[r.nextIdx]
	r.nextIdx++
	if err := selector(choice); err != nil {
		panic(err)
	}
}

func (r *recorder) onFinish() {
	r.trace = append(r.trace, Event{Kind: EventFinish})
}

// Run executes a scenario to completion and returns its event trace.
// opts is merged into the interpreter; pass nil for the zero value.
func Run(sc Scenario, opts *loreline.Options) (trace []Event, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("lortest: %v", rec)
			}
		}
	}()

	script, perr := loreline.Parse(sc.Name+".lor", sc.Script, nil)
	if perr != nil {
		return nil, perr
	}
	if opts == nil {
		opts = &loreline.Options{}
	}
	if sc.Translation != "" {
		transScript, terr := loreline.Parse(sc.Name+".translation.lor", sc.Translation, nil)
		if terr != nil {
			return nil, terr
		}
		translations, terr := loreline.ExtractTranslations(transScript)
		if terr != nil {
			return nil, terr
		}
		opts.Translations = translations
	}

	r := &recorder{sc: sc, opts: opts, choices: sc.Choices}
	ip, err := loreline.Play(script, r.onDialogue, r.onChoice, r.onFinish, sc.StartBeat, opts)
	if err != nil {
		return r.trace, err
	}
	r.ip = ip

	// Play drives the interpreter synchronously to completion (or to the
	// scripted choice running out): each suspension's continuation is
	// invoked immediately by the recorder, recursing back into run().
	// Nothing further to do here unless a save/restore swap was queued.
	if r.saveData == "" {
		return r.trace, nil
	}
	return finishWithRestore(script, r, opts)
}

// finishWithRestore discards ip and recreates an interpreter from the
// save payload captured mid-run, then continues driving it with the
// remaining scripted choices — Scenario D's destroy-and-recreate step.
func finishWithRestore(script *loreline.Script, r *recorder, opts *loreline.Options) (trace []Event, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("lortest: %v", rec)
			}
		}
	}()

	resumedSc := r.sc
	resumedSc.SaveAtChoiceNum = 0 // one save/restore cycle per scenario run
	resumed := &recorder{
		sc:      resumedSc,
		opts:    opts,
		choices: r.choices,
		nextIdx: r.savedNextIdx,
		// The resumed interpreter re-presents the very choice that was
		// pending at save time, so the next onChoice call must land back
		// on the same ordinal the original run saw at save time.
		choicesSeen: r.sc.SaveAtChoiceNum - 1,
	}
	ip, rerr := loreline.Resume(script, resumed.onDialogue, resumed.onChoice, resumed.onFinish, r.saveData, r.sc.StartBeat, opts)
	if rerr != nil {
		return r.trace, rerr
	}
	resumed.ip = ip

	full := append([]Event{}, r.trace[:r.savedAt]...)
	full = append(full, resumed.trace...)
	return full, nil
}
