package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mrdg/daw/dub"
	"github.com/mrdg/daw/engine"
)

type env struct {
	engine *engine.Engine
	out    io.Writer
}

// eval runs every command on the line and stops at the first error.
func (e *env) eval(input string) (dub.Node, error) {
	cmds, err := dub.ParseLine(input)
	if err != nil {
		return nil, err
	}
	var result dub.Node
	for _, c := range cmds {
		if result, err = e.exec(c); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (e *env) exec(command dub.Command) (dub.Node, error) {
	name := string(command.Name)
	for _, cmd := range commands {
		if name != cmd.name {
			continue
		}
		if cmd.arity < 0 {
			arity := -cmd.arity
			if len(command.Args) < arity {
				return nil, fmt.Errorf("%s: wrong number of arguments: need at least %v, got %v",
					cmd.name, arity, len(command.Args))
			}
		} else if len(command.Args) != cmd.arity {
			return nil, fmt.Errorf("%s: wrong number of arguments: want %v, got %v",
				cmd.name, cmd.arity, len(command.Args))
		}
		result, err := cmd.run(e, command.Args)
		if err != nil {
			return result, fmt.Errorf("%s error: %w", cmd.name, err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("unknown command: %s", name)
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, cmd := range commands {
		items = append(items, readline.PcItem(cmd.name))
	}
	return readline.NewPrefixCompleter(items...)
}

func repl(env *env, history string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "> ",
		HistoryFile:  history,
		AutoComplete: completer(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == io.EOF {
			return nil
		}
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			fmt.Fprintln(env.out, err)
			continue
		}
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}
		if result, err := env.eval(line); err != nil {
			fmt.Fprintln(env.out, err)
		} else if result != nil {
			fmt.Fprintln(env.out, result)
		}
	}
}

type command struct {
	name  string
	run   func(*env, []dub.Node) (dub.Node, error)
	arity int // -n means len(args) must be >= n
	help  string
}

var errArgs = errors.New("argument error")

func readArgs(args []dub.Node, slots ...interface{}) error {
	if len(args) != len(slots) {
		return fmt.Errorf("%w: want %d arguments, got %d", errArgs, len(slots), len(args))
	}
	for n, arg := range args {
		dest := slots[n]
		switch p := dest.(type) {
		case *string:
			switch s := arg.(type) {
			case dub.String:
				*p = string(s)
			case dub.Identifier:
				*p = string(s)
			default:
				return fmt.Errorf("%w: expected a string or identifier, got %v", errArgs, arg)
			}
		case *float64:
			switch v := arg.(type) {
			case dub.Float:
				*p = float64(v)
			case dub.Int:
				*p = float64(v)
			default:
				return fmt.Errorf("%w: expected a number, got %v", errArgs, arg)
			}
		case *int:
			v, ok := arg.(dub.Int)
			if !ok {
				return fmt.Errorf("%w: expected an integer, got %v", errArgs, arg)
			}
			*p = int(v)
		case *bool:
			v, ok := arg.(dub.Identifier)
			if !ok || (v != "on" && v != "off") {
				return fmt.Errorf("%w: expected on or off, got %v", errArgs, arg)
			}
			*p = v == "on"
		case *dub.MatchExpr:
			v, ok := arg.(dub.MatchExpr)
			if !ok {
				return fmt.Errorf("%w: expected a match expression, got %v", errArgs, arg)
			}
			*p = v
		case *dub.Node:
			*p = arg
		default:
			panic("readArgs: unhandled destination type: " + fmt.Sprint(p))
		}
	}
	return nil
}

// value converts a literal to the type device properties take.
func value(arg dub.Node) (interface{}, error) {
	switch v := arg.(type) {
	case dub.Int:
		return float64(v), nil
	case dub.Float:
		return float64(v), nil
	case dub.String:
		return string(v), nil
	case dub.Identifier:
		return string(v), nil
	default:
		return nil, fmt.Errorf("unsupported property type: %v", v)
	}
}
