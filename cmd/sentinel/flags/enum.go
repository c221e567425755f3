package flags

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

// EnumValue is a string flag value constrained to a fixed set. Parsed
// values land in Destination.
type EnumValue struct {
	Name        string
	Usage       string
	Destination *string
	Enum        []string
	Value       string
}

// Set implements cli.Generic. Values outside the enum are rejected.
func (e *EnumValue) Set(value string) error {
	for _, allowed := range e.Enum {
		if allowed == value {
			*e.Destination = value
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %s", e.Name, strings.Join(e.Enum, ", "))
}

// String implements cli.Generic.
func (e *EnumValue) String() string {
	if e.Destination != nil && *e.Destination != "" {
		return *e.Destination
	}
	return e.Value
}

// GenericFlag wraps the value so it can be registered with the cli app,
// seeding Destination with the default.
func (e EnumValue) GenericFlag() *cli.GenericFlag {
	*e.Destination = e.Value
	var value cli.Generic = &e
	return &cli.GenericFlag{Name: e.Name, Usage: e.Usage, Destination: value, Value: value}
}
