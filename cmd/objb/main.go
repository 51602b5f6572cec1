// Command objb is an interactive explorer for the host/guest object bridge.
// Input lines are JSON literals, materialized as guest runtime objects and
// converted back through the bridge so the host-side representation (type
// narrowing, wrappers, class tags) can be inspected.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/objbridge"
	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

const version = "0.1.0"

// Styles
var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	warningColor   = lipgloss.Color("#F59E0B")
	infoColor      = lipgloss.Color("#3B82F6")
	dimColor       = lipgloss.Color("#6B7280")

	logoStyle     = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	promptStyle   = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	errorMsgStyle = lipgloss.NewStyle().Foreground(errorColor)
	successStyle  = lipgloss.NewStyle().Foreground(secondaryColor)
	infoStyle     = lipgloss.NewStyle().Foreground(infoColor)
	dimStyle      = lipgloss.NewStyle().Foreground(dimColor)
	cmdStyle      = lipgloss.NewStyle().Foreground(warningColor)
	titleStyle    = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Underline(true)
	resultStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
	typeStyle     = lipgloss.NewStyle().Foreground(secondaryColor)
)

// Syntax highlighter
var (
	jsonLexer   chroma.Lexer
	chromaStyle *chroma.Style
	formatter   chroma.Formatter
)

func initSyntaxHighlighter() {
	jsonLexer = lexers.Get("json")
	if jsonLexer == nil {
		jsonLexer = lexers.Fallback
	}
	jsonLexer = chroma.Coalesce(jsonLexer)
	chromaStyle = styles.Get("dracula")
	if chromaStyle == nil {
		chromaStyle = styles.Fallback
	}
	formatter = formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
}

func highlightCode(code string) string {
	if jsonLexer == nil {
		return code
	}
	var buf bytes.Buffer
	iterator, err := jsonLexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	if err := formatter.Format(&buf, chromaStyle, iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

type replState struct {
	bridge     *objbridge.Bridge
	rl         *readline.Instance
	convert    bool
	showTiming bool
	evalCount  int
	startTime  time.Time
}

func main() {
	os.Exit(run())
}

func run() int {
	evalLiteral := flag.String("e", "", "convert a JSON literal and exit")
	showVersion := flag.Bool("version", false, "show version")
	showHelp := flag.Bool("help", false, "show help")
	timing := flag.Bool("timing", false, "show conversion time")
	flag.Parse()

	initSyntaxHighlighter()

	if *showVersion {
		printVersion()
		return 0
	}
	if *showHelp {
		printUsage()
		return 0
	}

	bridge, err := objbridge.New(
		objbridge.WithLogger(zap.NewNop()),
		objbridge.WithOutput(os.Stdout, os.Stderr),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" failed to create bridge:", err)
		return 1
	}
	defer bridge.Close()

	state := &replState{
		bridge:     bridge,
		convert:    true,
		showTiming: *timing,
		startTime:  time.Now(),
	}

	if *evalLiteral != "" {
		out, duration, err := state.eval(*evalLiteral)
		if err != nil {
			printError(err)
			return 1
		}
		fmt.Println(out)
		if state.showTiming {
			printTiming(duration)
		}
		return 0
	}

	state.runREPL()
	return 0
}

func printVersion() {
	fmt.Println(logoStyle.Render("objb") + dimStyle.Render(" v"+version))
	fmt.Println(dimStyle.Render("An interactive host/guest object bridge explorer"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("Go %s, %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)))
}

func printUsage() {
	fmt.Println()
	fmt.Println(titleStyle.Render("objb - object bridge explorer"))
	fmt.Println()

	fmt.Println(logoStyle.Render("USAGE"))
	fmt.Println("  objb [options]")
	fmt.Println()

	fmt.Println(logoStyle.Render("OPTIONS"))
	fmt.Println("  " + cmdStyle.Render("-e <literal>") + "   Convert a JSON literal and exit")
	fmt.Println("  " + cmdStyle.Render("-timing") + "        Show conversion time")
	fmt.Println("  " + cmdStyle.Render("-version") + "       Show version information")
	fmt.Println("  " + cmdStyle.Render("-help") + "          Show this help message")
	fmt.Println()

	fmt.Println(logoStyle.Render("REPL COMMANDS"))
	cmds := []struct{ cmd, desc string }{
		{".help", "Show help for REPL commands"},
		{".exit", "Exit the REPL"},
		{".clear", "Clear the screen"},
		{".convert", "Toggle eager conversion (wrappers when off)"},
		{".timing", "Toggle timing display"},
		{".lasterror", "Show the last bridged exception"},
		{".pending", "Drain cross-thread callbacks"},
		{".info", "Show bridge information"},
	}
	for _, c := range cmds {
		fmt.Printf("  %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-14s", c.cmd)), dimStyle.Render(c.desc))
	}
	fmt.Println()
}

func (s *replState) runREPL() {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".objb_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptStyle.Render("objb> "),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" failed to initialize readline:", err)
		return
	}
	defer rl.Close()
	s.rl = rl

	printBanner()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			s.bridge.Interrupt()
			fmt.Println(dimStyle.Render("(interrupt recorded; it surfaces at the next error crossing)"))
			continue
		}
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if s.handleCommand(line) {
				break
			}
			continue
		}

		out, duration, err := s.eval(line)
		if err != nil {
			printError(err)
			continue
		}
		fmt.Println(out)
		if s.showTiming {
			printTiming(duration)
		}
		s.evalCount++
	}
}

func printBanner() {
	fmt.Println()
	fmt.Println(logoStyle.Render("objb") + dimStyle.Render(" v"+version) +
		dimStyle.Render(" - type a JSON literal, .help for commands"))
	fmt.Println()
}

// handleCommand returns true when the REPL should exit.
func (s *replState) handleCommand(line string) bool {
	switch line {
	case ".exit", ".quit":
		return true
	case ".help":
		printUsage()
	case ".clear":
		fmt.Print("\033[2J\033[H")
	case ".convert":
		s.convert = !s.convert
		fmt.Println(infoStyle.Render("convert = " + strconv.FormatBool(s.convert)))
	case ".timing":
		s.showTiming = !s.showTiming
		fmt.Println(infoStyle.Render("timing = " + strconv.FormatBool(s.showTiming)))
	case ".lasterror":
		last := s.bridge.LastException()
		if last == nil {
			fmt.Println(dimStyle.Render("no exception has crossed the bridge yet"))
			break
		}
		fmt.Println(errorMsgStyle.Render(s.bridge.RenderException(last)))
		last.Close()
	case ".pending":
		n := s.bridge.RunPending()
		fmt.Println(infoStyle.Render(fmt.Sprintf("ran %d pending callback(s)", n)))
	case ".info":
		s.printInfo()
	default:
		fmt.Println(errorMsgStyle.Render("unknown command: " + line))
	}
	return false
}

func (s *replState) printInfo() {
	fmt.Println(titleStyle.Render("Bridge"))
	fmt.Printf("  %s %s\n", dimStyle.Render("uptime:"), time.Since(s.startTime).Round(time.Second))
	fmt.Printf("  %s %d\n", dimStyle.Render("conversions:"), s.evalCount)
	fmt.Printf("  %s %d\n", dimStyle.Render("preserved host values:"), s.bridge.PreservedCount())
	fmt.Printf("  %s %t\n", dimStyle.Render("numeric arrays:"), s.bridge.NumericAvailable())
	fmt.Printf("  %s %t\n", dimStyle.Render("eager conversion:"), s.convert)
}

// eval parses a JSON literal, materializes it as a guest object and converts
// it back through the bridge, rendering both sides.
func (s *replState) eval(literal string) (string, time.Duration, error) {
	var parsed any
	if err := sonic.UnmarshalString(literal, &parsed); err != nil {
		return "", 0, fmt.Errorf("not a JSON literal: %w", err)
	}

	start := time.Now()
	obj := guestFromJSON(s.bridge.Runtime(), parsed)
	defer obj.DecRef()
	v, err := s.bridge.ToHost(obj, s.convert)
	duration := time.Since(start)
	if err != nil {
		return "", duration, err
	}

	var sb strings.Builder
	sb.WriteString(dimStyle.Render("guest: ") + highlightCode(s.bridge.Runtime().Repr(obj)))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("host:  ") + renderValue(v))
	return sb.String(), duration, nil
}

// guestFromJSON builds a guest object from a decoded JSON value.
func guestFromJSON(rt *guest.Runtime, v any) *guest.Object {
	switch x := v.(type) {
	case nil:
		return rt.None.IncRef()
	case bool:
		return rt.NewBool(x)
	case float64:
		if x == float64(int64(x)) {
			return rt.NewInt(int64(x))
		}
		return rt.NewFloat(x)
	case string:
		return rt.NewStr(x)
	case []any:
		items := make([]*guest.Object, len(x))
		for i, el := range x {
			items[i] = guestFromJSON(rt, el)
		}
		return rt.NewList(items...)
	case map[string]any:
		dict := rt.NewDict()
		for k, el := range x {
			key := rt.NewStr(k)
			val := guestFromJSON(rt, el)
			rt.DictSet(dict, key, val)
			key.DecRef()
			val.DecRef()
		}
		return dict
	default:
		return rt.NewStr(fmt.Sprintf("%v", x))
	}
}

// renderValue formats a host value with its kind annotated.
func renderValue(v objbridge.Value) string {
	kind := typeStyle.Render("<" + v.Kind().String() + ">")
	switch v.Kind() {
	case objbridge.KindNull:
		return kind + " " + dimStyle.Render("NULL")
	case objbridge.KindLogical:
		return kind + " " + resultStyle.Render(fmt.Sprintf("%v", v.Logicals()))
	case objbridge.KindInteger:
		return kind + " " + resultStyle.Render(fmt.Sprintf("%v", v.Integers()))
	case objbridge.KindDouble:
		return kind + " " + resultStyle.Render(fmt.Sprintf("%v", v.Doubles()))
	case objbridge.KindComplex:
		return kind + " " + resultStyle.Render(fmt.Sprintf("%v", v.Complexes()))
	case objbridge.KindCharacter:
		return kind + " " + resultStyle.Render(fmt.Sprintf("%q", v.Characters()))
	case objbridge.KindRaw:
		return kind + " " + resultStyle.Render(fmt.Sprintf("%x", v.RawBytes()))
	case objbridge.KindList:
		var sb strings.Builder
		sb.WriteString(kind + " [")
		for i, el := range v.Elements() {
			if i > 0 {
				sb.WriteString(", ")
			}
			if names := v.Names(); names != nil {
				sb.WriteString(infoStyle.Render(names[i]) + "=")
			}
			sb.WriteString(renderValue(el))
		}
		sb.WriteString("]")
		return sb.String()
	case objbridge.KindClosure:
		return kind + " " + successStyle.Render(v.ClosureValue().Name)
	case objbridge.KindExternal:
		if ref := v.Ref(); ref != nil {
			return kind + " " + successStyle.Render(strings.Join(ref.ClassTags(), ", "))
		}
		return kind + " " + dimStyle.Render("opaque handle")
	default:
		return kind
	}
}

func printError(err error) {
	fmt.Println(errorStyle.Render("Error: ") + errorMsgStyle.Render(err.Error()))
}

func printTiming(d time.Duration) {
	fmt.Println(dimStyle.Render(fmt.Sprintf("  %s", d.Round(time.Microsecond))))
}
