// Package loreline is an embeddable runtime for an interactive-fiction
// scripting language: source files declare persistent state,
// characters, and beats — named blocks mixing narrative lines,
// character dialogue, branches, state mutations, choice menus and
// transitions to other beats. A host application parses a script once
// and drives it interactively through three callbacks: one for
// narration/dialogue, one for choice menus, and one for completion.
//
// Current caveats
//   - Concurrency: an Interpreter is single-logical-flow and not safe
//     for concurrent use; run one script per goroutine.
//   - Guard purity: choice-option guards are evaluated once; a host
//     that needs to reject side-effecting guards must register its
//     functions and set Options.StrictAccess.
//
// A minimal example:
//
//	script, err := loreline.Parse("story.lor", source, nil)
//	if err != nil {
//	    panic(err)
//	}
//	ip, err := loreline.Play(script,
//	    func(character, text string, tags []loreline.TagMarker, cont loreline.DialogueContinuation) {
//	        fmt.Println(character, text)
//	        cont()
//	    },
//	    func(options []loreline.ChoiceOptionView, pick loreline.ChoiceSelector) {
//	        pick(0)
//	    },
//	    func() { fmt.Println("done") },
//	    "start", nil)
//	if err != nil {
//	    panic(err)
//	}
package loreline
