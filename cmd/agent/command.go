package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/septivank/water-meter-agent/internal/models"
)

const usage = `usage: agent <command> [arguments]

commands:
  login -email <email> -password <password>
  logout
  me
  lookup <code>
  status <code>
  submit <code> [-index <value>] [-photo <path>] [-inaccessible] [-lat <f> -lon <f>] [-comments <text>] [-yes]
  bills <code>
  complain <code> -subject <text> -message <text>
  watch
`

var errHelp = errors.New("help requested")

// Command is a parsed command line
type Command struct {
	Name string
	Code string

	Email    string
	Password string

	Index        string
	Photo        string
	Inaccessible bool
	Comments     string
	Location     *models.Location
	Yes          bool

	Subject string
	Message string
}

// parseCommand parses "agent <command> [code] [flags]"; the code may come before or after the flags
func parseCommand(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, errors.New("missing command")
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "-help" || name == "--help" {
		return nil, errHelp
	}

	cmd := &Command{Name: name}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var lat, lon float64
	switch name {
	case "login":
		fs.StringVar(&cmd.Email, "email", "", "agent email")
		fs.StringVar(&cmd.Password, "password", "", "agent password")
	case "submit":
		fs.StringVar(&cmd.Index, "index", "", "meter index, comma or dot decimals")
		fs.StringVar(&cmd.Photo, "photo", "", "path of the meter photo")
		fs.BoolVar(&cmd.Inaccessible, "inaccessible", false, "the meter could not be read")
		fs.StringVar(&cmd.Comments, "comments", "", "free text comments")
		fs.Float64Var(&lat, "lat", 0, "latitude")
		fs.Float64Var(&lon, "lon", 0, "longitude")
		fs.BoolVar(&cmd.Yes, "yes", false, "confirm a lower index without prompting")
	case "complain":
		fs.StringVar(&cmd.Subject, "subject", "", "complaint subject")
		fs.StringVar(&cmd.Message, "message", "", "complaint message")
	case "logout", "me", "lookup", "status", "bills", "watch":
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}

	rest := args[1:]
	var positional []string
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		positional = append(positional, rest[0])
		rest = rest[1:]
	}
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errHelp
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	positional = append(positional, fs.Args()...)

	switch name {
	case "lookup", "status", "submit", "bills", "complain":
		if len(positional) != 1 {
			return nil, fmt.Errorf("%s: expected exactly one customer code", name)
		}
		cmd.Code = positional[0]
	default:
		if len(positional) != 0 {
			return nil, fmt.Errorf("%s: unexpected argument %q", name, positional[0])
		}
	}

	if name == "submit" {
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if set["lat"] != set["lon"] {
			return nil, errors.New("submit: -lat and -lon must be given together")
		}
		if set["lat"] {
			cmd.Location = &models.Location{Latitude: lat, Longitude: lon}
		}
	}

	return cmd, nil
}
