package debug

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list <file:lineno>",
	Short:   "查看源码信息, 断点所在行以*标记",
	Aliases: []string{"l"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if len(args) != 1 {
			return fmt.Errorf("invalid location, must be file:lineno")
		}

		file, lineno, err := parseFileLineno(args[0])
		if err != nil {
			return err
		}

		// print lines
		return listFileLines(file, lineno, 5)
	},
}

// list file lines, lineno is 1-based
func listFileLines(file string, lineno, rng int) error {
	rel := projectRelative(file)
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(CurrentProject.Dir, file)
	}

	lines, offset, err := listFile(path, lineno-1, rng)
	if err != nil {
		return fmt.Errorf("list file err: %v", err)
	}

	// use 1-based counter
	idx := offset + 1
	for _, ln := range lines {
		mark := ""
		if bp := CurrentProject.Catalog.LineBreakpoint(rel, idx-1); bp != nil {
			mark = "*"
			if !bp.Enabled {
				mark = "o"
			}
		}
		if idx == lineno {
			mark += "=>"
		}
		fmt.Printf("%-4s\t%d\t%s\n", mark, idx, ln)
		idx++
	}

	return nil
}

func init() {
	debugRootCmd.AddCommand(listCmd)
}

// return value `offset` is zero-based counter
func listFile(file string, lineno, rng int) (lines []string, offset int, err error) {
	dat, err := ioutil.ReadFile(file)
	if err != nil {
		err = fmt.Errorf("read file err: %v", err)
		return
	}

	raw := strings.Split(string(dat), "\n")
	count := len(raw)

	begin := lineno - rng
	if begin < 0 {
		begin = 0
	}
	if begin > count {
		return
	}

	end := lineno + rng + 1
	if end > count {
		end = count
	}

	return raw[begin:end], begin, nil
}
