package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Veraticus/the-rent-must-flow/internal/cli"
	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

// levelsFromArgs reads "<level1> <level2> [level3]".
func levelsFromArgs(args []string) (model.Levels, error) {
	if len(args) < 2 || len(args) > 3 {
		return model.Levels{}, common.NewUserError("expected <level1> <level2> [level3]", common.ErrInvalidCombination)
	}
	levels := model.Levels{Level1: args[0], Level2: args[1]}
	if len(args) == 3 {
		levels.Level3 = model.Level3(args[2])
	}
	return levels.Normalize(), nil
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("invalid %s ID %q", what, arg), common.ErrNotFound)
	}
	return id, nil
}

func formatLevels(levels model.Levels) string {
	if levels.IsEmpty() {
		return cli.SubtleStyle.Render("unassigned")
	}
	return levels.String()
}

func writeln(w io.Writer, a ...any) error {
	_, err := fmt.Fprintln(w, a...)
	return err
}

func writef(w io.Writer, format string, a ...any) error {
	_, err := fmt.Fprintf(w, format, a...)
	return err
}
