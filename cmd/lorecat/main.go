// Command lorecat is a minimal terminal driver for a .lor script: it
// prints dialogue lines, numbers and prompts choice menus, and reads
// the player's selection from stdin. Typewriter animation, ANSI
// colouring and richer terminal rendering are explicitly out of scope
// for the core (spec §1) and are left to a real host; this wrapper
// only exists to exercise the three callbacks end to end, the way a
// library like the teacher ships no CLI of its own at all.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/loreline-run/loreline"
)

func main() {
	beatName := flag.String("beat", "start", "beat to begin execution from")
	saveFlag := flag.String("save", "", "path to a save file to resume from, if it exists")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: lorecat [-beat NAME] [-save PATH] <script.lor>")
		os.Exit(2)
	}
	if err := run(args[0], *beatName, *saveFlag); err != nil {
		fmt.Fprintln(os.Stderr, "lorecat:", err)
		os.Exit(1)
	}
}

func run(path, beatName, savePath string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loader, err := loreline.NewLocalFileLoader(dirOf(path))
	if err != nil {
		return err
	}
	script, err := loreline.Parse(path, string(src), loader)
	if err != nil {
		return err
	}

	in := bufio.NewReader(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	opts := &loreline.Options{}
	var ip *loreline.Interpreter

	onDialogue := func(character, text string, tags []loreline.TagMarker, cont loreline.DialogueContinuation) {
		if character != "" {
			fmt.Fprintf(out, "%s: %s\n", character, text)
		} else {
			fmt.Fprintln(out, text)
		}
		out.Flush()
		waitForEnter(in)
		if err := cont(); err != nil {
			fmt.Fprintln(os.Stderr, "lorecat:", err)
			os.Exit(1)
		}
	}

	onChoice := func(options []loreline.ChoiceOptionView, selector loreline.ChoiceSelector) {
		for i, o := range options {
			marker := " "
			if !o.Enabled {
				marker = "x"
			}
			fmt.Fprintf(out, "  [%s] %d) %s\n", marker, i+1, o.Text)
		}
		out.Flush()
		choice := readChoice(in, out, options)
		if err := selector(choice); err != nil {
			fmt.Fprintln(os.Stderr, "lorecat:", err)
			os.Exit(1)
		}
	}

	onFinish := func() {
		fmt.Fprintln(out, "--- finished ---")
	}

	if savePath != "" {
		if data, err := os.ReadFile(savePath); err == nil {
			ip, err = loreline.Resume(script, onDialogue, onChoice, onFinish, string(data), beatName, opts)
			if err != nil {
				return err
			}
		}
	}
	if ip == nil {
		ip, err = loreline.Play(script, onDialogue, onChoice, onFinish, beatName, opts)
		if err != nil {
			return err
		}
	}

	if savePath != "" {
		data, err := ip.Save()
		if err != nil {
			return err
		}
		if err := os.WriteFile(savePath, []byte(data), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func waitForEnter(in *bufio.Reader) {
	in.ReadString('\n')
}

func readChoice(in *bufio.Reader, out *bufio.Writer, options []loreline.ChoiceOptionView) int {
	for {
		fmt.Fprint(out, "> ")
		out.Flush()
		line, err := in.ReadString('\n')
		if err != nil {
			return 0
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || n < 1 || n > len(options) || !options[n-1].Enabled {
			fmt.Fprintln(out, "invalid choice")
			continue
		}
		return n - 1
	}
}

func dirOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return "."
}
